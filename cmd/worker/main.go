package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	_ "github.com/lib/pq"

	"github.com/starbeam-hq/jobcoord/internal/config"
	"github.com/starbeam-hq/jobcoord/internal/enqueue"
	"github.com/starbeam-hq/jobcoord/internal/queue"
	"github.com/starbeam-hq/jobcoord/internal/repository"
	"github.com/starbeam-hq/jobcoord/internal/tasks"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "path to config yaml (optional)")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	log := newLogger(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database connect failed")
	}
	defer db.Close()

	repo := repository.NewWithConnection(db)
	q := queue.NewPG(db)
	enq := enqueue.New(repo, q, log)
	runner := tasks.NewRunner(tasks.New(repo, q, enq, cfg, log), db, log)

	if err := runner.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("task runner failed to start")
	}

	log.Info().Str("env", cfg.Env).Msg("worker up")
	<-ctx.Done()

	runner.Stop()
	log.Info().Msg("worker shut down")
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	if cfg.Env != "production" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
