package executor

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"breakoutexecutor/src/connectors"
	"breakoutexecutor/src/database"
	"breakoutexecutor/src/engine"
)

type Executor struct {
	Log *logrus.Entry
}

// Start runs the engine until SIGINT or SIGTERM.
func (t *Executor) Start() error {
	config := GetConfig()
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	return t.Run(ctx, config)
}

func (t *Executor) Run(ctx context.Context, config *Config) error {
	log := t.Log
	if log == nil {
		log = logrus.WithField("cmd", "executor")
	}

	db, err := database.Open(config.Database)
	if err != nil {
		log.WithError(err).Error("Failed to connect to main database")
		return err
	}

	gateway, err := connectors.NewGateway(config.Exchange)
	if err != nil {
		log.WithError(err).Error("Failed to build exchange gateway")
		_ = database.Close(db)
		return err
	}

	log.WithField("targetExchange", gateway.Name()).Info("Starting breakout executor for exchange")

	eng := engine.New(db, gateway, &config.Engine, &config.Server, log)
	if err := eng.Run(ctx); err != nil {
		log.WithError(err).Error("Engine stopped with error")
		return err
	}
	return nil
}
