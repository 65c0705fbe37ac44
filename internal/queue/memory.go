package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryJob is one pending job recorded by the in-memory queue.
type MemoryJob struct {
	Task        string
	Payload     json.RawMessage
	JobKey      string
	RunAt       time.Time
	MaxAttempts int
}

// Memory implements the Queue port without a database. It mirrors the
// replace/dedupe key semantics of the Postgres adapter and exists so the
// enqueue layer can be tested against the same contract it runs against in
// production.
type Memory struct {
	mu sync.Mutex

	jobs   []MemoryJob
	byKey  map[string]int
	addErr error
}

func NewMemory() *Memory {
	return &Memory{byKey: make(map[string]int)}
}

// FailWith makes every subsequent AddJob return err. Pass nil to recover.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addErr = err
}

func (m *Memory) AddJob(_ context.Context, task string, payload any, opts Options) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.addErr != nil {
		return m.addErr
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	runAt := opts.RunAt
	if runAt.IsZero() {
		runAt = time.Now().UTC()
	}

	job := MemoryJob{
		Task:        task,
		Payload:     body,
		JobKey:      opts.JobKey,
		RunAt:       runAt,
		MaxAttempts: opts.MaxAttempts,
	}

	if opts.JobKey == "" {
		m.jobs = append(m.jobs, job)
		return nil
	}

	if i, ok := m.byKey[opts.JobKey]; ok {
		switch opts.KeyMode {
		case KeyModeReplace, "":
			m.jobs[i].RunAt = runAt
			m.jobs[i].Payload = body
			return nil
		case KeyModeDedupe:
			return nil
		default:
			return ErrUnknownKeyMode
		}
	}

	if opts.KeyMode != KeyModeReplace && opts.KeyMode != KeyModeDedupe && opts.KeyMode != "" {
		return ErrUnknownKeyMode
	}

	m.jobs = append(m.jobs, job)
	m.byKey[opts.JobKey] = len(m.jobs) - 1
	return nil
}

func (m *Memory) CancelByKey(_ context.Context, jobKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, ok := m.byKey[jobKey]
	if !ok {
		return nil
	}
	delete(m.byKey, jobKey)

	m.jobs = append(m.jobs[:i], m.jobs[i+1:]...)
	for key, j := range m.byKey {
		if j > i {
			m.byKey[key] = j - 1
		}
	}
	return nil
}

// Jobs returns a snapshot of the pending jobs in insertion order.
func (m *Memory) Jobs() []MemoryJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MemoryJob, len(m.jobs))
	copy(out, m.jobs)
	return out
}

// JobByKey returns the pending job for key, if any.
func (m *Memory) JobByKey(key string) (MemoryJob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.byKey[key]
	if !ok {
		return MemoryJob{}, false
	}
	return m.jobs[i], true
}

var _ Queue = (*Memory)(nil)
