package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/starbeam-hq/jobcoord/internal/model"
)

var ErrUnknownConnector = fmt.Errorf("unknown connector")

// Connector names one pollable integration. The value doubles as the
// whitelist key for its connections table.
type Connector string

const (
	ConnectorGoogle Connector = "google"
	ConnectorGitHub Connector = "github"
	ConnectorLinear Connector = "linear"
	ConnectorNotion Connector = "notion"
)

// Connectors lists every pollable integration in the order their candidate
// lists are fed to the round-robin selector.
func Connectors() []Connector {
	return []Connector{ConnectorGoogle, ConnectorGitHub, ConnectorLinear, ConnectorNotion}
}

var connectorTables = map[Connector]string{
	ConnectorGoogle: "google_connections",
	ConnectorGitHub: "github_connections",
	ConnectorLinear: "linear_connections",
	ConnectorNotion: "notion_connections",
}

// ListPollCandidates returns workspace/user pairs owning a connection that
// is due for a poll: connected or errored, never attempted or last attempted
// at or before cutoff. Ordered so the longest-starved candidates come first.
func (r *repository) ListPollCandidates(ctx context.Context, connector Connector, cutoff time.Time, limit int) ([]model.ConnectorPair, error) {
	table, ok := connectorTables[connector]
	if !ok {
		return nil, ErrUnknownConnector
	}

	var pairs []model.ConnectorPair
	err := r.db.SelectContext(
		ctx,
		&pairs,
		// The table name comes from the whitelist above, never from input.
		fmt.Sprintf(`SELECT workspace_id, owner_user_id
			 FROM %s
			 WHERE status IN ('CONNECTED', 'ERROR')
			   AND (last_attempted_at IS NULL OR last_attempted_at <= $1)
			 ORDER BY last_attempted_at ASC NULLS FIRST, updated_at ASC
			 LIMIT $2`, table),
		cutoff,
		limit,
	)
	return pairs, err
}

func (r *repository) FindMembership(ctx context.Context, workspaceID, userID string) (*model.Membership, error) {
	var m model.Membership
	err := r.db.GetContext(
		ctx,
		&m,
		`SELECT workspace_id, user_id, role, timezone, created_at
		 FROM memberships
		 WHERE workspace_id = $1 AND user_id = $2`,
		workspaceID,
		userID,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMembershipsAfter pages memberships in (created_at, id) order. A zero
// createdAt starts from the beginning.
func (r *repository) ListMembershipsAfter(ctx context.Context, createdAt time.Time, id string, limit int) ([]model.Membership, error) {
	var members []model.Membership
	err := r.db.SelectContext(
		ctx,
		&members,
		`SELECT workspace_id, user_id, role, timezone, created_at
		 FROM memberships
		 WHERE (created_at, user_id) > ($1, $2)
		 ORDER BY created_at ASC, user_id ASC
		 LIMIT $3`,
		createdAt,
		id,
		limit,
	)
	return members, err
}

func (r *repository) HasPulseEdition(ctx context.Context, workspaceID, userID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(
		ctx,
		&exists,
		`SELECT EXISTS (
			SELECT 1 FROM pulse_editions WHERE workspace_id = $1 AND user_id = $2
		 )`,
		workspaceID,
		userID,
	)
	return exists, err
}

func (r *repository) FindPulseEditionForDay(ctx context.Context, workspaceID, userID string, editionDate time.Time) (*model.PulseEdition, error) {
	var p model.PulseEdition
	err := r.db.GetContext(
		ctx,
		&p,
		`SELECT id, status FROM pulse_editions
		 WHERE workspace_id = $1 AND user_id = $2 AND edition_date = $3`,
		workspaceID,
		userID,
		editionDate,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
