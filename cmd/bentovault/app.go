package main

import (
	"context"
	"fmt"

	"github.com/bentousd/bento-vault/chain"
	"github.com/bentousd/bento-vault/config"
	"github.com/bentousd/bento-vault/deploy"
	"github.com/bentousd/bento-vault/relay"
	"github.com/nats-io/nats.go"
	"github.com/nspcc-dev/neo-go/pkg/core/storage"
	"github.com/nspcc-dev/neo-go/pkg/core/storage/dbconfig"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// app is the environment opened for a single command.
type app struct {
	cfg   *config.Config
	log   *zap.Logger
	store storage.Store
	conn  *nats.Conn

	chain *chain.Chain
	env   *deploy.Environment
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	c := zap.NewProductionConfig()
	c.Level = zap.NewAtomicLevelAt(lvl)
	c.Encoding = "console"
	c.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return c.Build()
}

func openStore(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case config.StorageBoltDB:
		s, err := storage.NewBoltDBStore(dbconfig.BoltDBOptions{FilePath: cfg.Path})
		if err != nil {
			return nil, fmt.Errorf("open BoltDB store: %w", err)
		}
		return s, nil
	default:
		return storage.NewMemoryStore(), nil
	}
}

// openApp opens the chain store and brings the environment up. With
// registerOnly set, contracts are registered without touching the state.
func openApp(ctx context.Context, cfg *config.Config, log *zap.Logger, registerOnly bool) (*app, error) {
	store, err := openStore(cfg.Storage)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:   cfg,
		log:   log,
		store: store,
		chain: chain.New(chain.Prm{Store: store, Logger: log}),
	}

	if cfg.Relay.URL != "" {
		if a.conn, err = relay.Connect(cfg.Relay.URL, log); err != nil {
			a.close()
			return nil, err
		}

		relay.New(relay.Prm{
			Publisher: a.conn,
			Prefix:    cfg.Relay.Prefix,
			Logger:    log,
		}).Attach(a.chain)
	}

	prm := deploy.Prm{
		Logger:     log,
		Chain:      a.chain,
		Config:     cfg,
		Registerer: prometheus.NewRegistry(),
	}

	if registerOnly {
		a.env, err = deploy.Register(prm)
	} else {
		a.env, err = deploy.Deploy(ctx, prm)
	}
	if err != nil {
		a.close()
		return nil, err
	}

	return a, nil
}

func (a *app) close() {
	if a.conn != nil {
		if err := a.conn.Drain(); err != nil {
			a.log.Warn("failed to drain NATS connection", zap.Error(err))
		}
	}

	if err := a.store.Close(); err != nil {
		a.log.Warn("failed to close chain store", zap.Error(err))
	}
}
