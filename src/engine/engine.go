// Package engine wires the scheduler, the reconciliation loop, the order
// manager and the status API around one gateway and one database.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"breakoutexecutor/src/connectors"
	"breakoutexecutor/src/database"
	"breakoutexecutor/src/model"
	"breakoutexecutor/src/orders"
	"breakoutexecutor/src/reconcile"
	"breakoutexecutor/src/repository"
	"breakoutexecutor/src/risk"
	"breakoutexecutor/src/scheduler"
	"breakoutexecutor/src/server"
	"breakoutexecutor/src/signal"
)

var ErrAlreadyStarted = errors.New("engine already started")

type Engine struct {
	db      *gorm.DB
	gateway connectors.Gateway
	log     *logrus.Entry

	Orders    *repository.OrderRepository
	Positions *repository.PositionRepository
	Pairs     *repository.PairRepository
	Params    *repository.ParameterRepository

	Manager    *orders.Manager
	Reconciler *reconcile.Reconciler
	Scheduler  *scheduler.Scheduler
	server     *server.Server

	mu        sync.Mutex
	started   bool
	stopped   bool
	startedAt time.Time
	cancel    context.CancelFunc
	group     *errgroup.Group
	stopErr   error
}

// New builds an engine. A nil serverConfig or an empty port leaves the status API off.
func New(db *gorm.DB, gateway connectors.Gateway, config *Config, serverConfig *server.Config, log *logrus.Entry) *Engine {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	e := &Engine{
		db:        db,
		gateway:   gateway,
		log:       log.WithFields(logrus.Fields{"component": "engine", "exchange": gateway.Name()}),
		Orders:    repository.NewOrderRepositoryWithDB(db),
		Positions: repository.NewPositionRepositoryWithDB(db),
		Pairs:     repository.NewPairRepositoryWithDB(db),
		Params:    repository.NewParameterRepositoryWithDB(db),
	}

	sizer := risk.NewSizer(gateway, config.AmountPrecision, log)
	e.Manager = orders.NewManager(gateway, e.Orders, e.Pairs, e.Params, sizer, orders.Options{
		PriceOffset: decimal.NewFromFloat(config.OrderPriceOffset),
		Log:         log,
	})
	e.Reconciler = reconcile.New(gateway, e.Orders, e.Positions, e.Pairs, e.Manager, reconcile.Config{
		Interval: config.ReconcileInterval,
		Backoff:  config.ReconcileBackoff,
		Log:      log,
	})
	e.Scheduler = scheduler.New(e.Pairs, e.Params, e.Orders, e.Positions, signal.NewGenerator(gateway, log), e.Manager, scheduler.Config{
		Interval: config.SchedulerInterval,
		Pacing:   config.SchedulerPacing,
		Retry:    config.SchedulerRetry,
		Log:      log,
	})

	if serverConfig != nil && serverConfig.Port != "" {
		e.server = server.New(serverConfig, server.Routes{
			Status:    e,
			Pairs:     e.Pairs,
			Orders:    e.Orders,
			Positions: e.Positions,
		})
	}
	return e
}

// Start launches the loops and returns. Stop, or cancellation of ctx, ends them.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)

	group.Go(func() error { return e.Scheduler.Run(groupCtx) })
	group.Go(func() error { return e.Reconciler.Run(groupCtx) })
	if e.server != nil {
		group.Go(func() error {
			if err := e.server.Run(groupCtx); err != nil {
				return fmt.Errorf("status server: %w", err)
			}
			return nil
		})
	}

	e.started = true
	e.startedAt = time.Now().UTC()
	e.cancel = cancel
	e.group = group

	e.log.Info("Engine started")
	return nil
}

// Wait blocks until every loop has returned and reports the first failure.
func (e *Engine) Wait() error {
	e.mu.Lock()
	group := e.group
	e.mu.Unlock()
	if group == nil {
		return nil
	}
	return group.Wait()
}

// Stop cancels the loops, waits for them and for the auto-cancel tasks, then
// closes the database. Calling it again returns the first result.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.stopped {
		err := e.stopErr
		e.mu.Unlock()
		return err
	}
	e.stopped = true
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	runErr := e.Wait()
	e.Manager.Shutdown()

	var err error
	if runErr != nil {
		err = runErr
	}
	if closeErr := database.Close(e.db); closeErr != nil {
		e.log.WithError(closeErr).Error("Failed to close database")
		if err == nil {
			err = closeErr
		}
	}

	e.mu.Lock()
	e.stopErr = err
	e.mu.Unlock()

	e.log.Info("Engine stopped")
	return err
}

// Run starts the engine and blocks until ctx is done or a loop fails.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Start(ctx); err != nil {
		return err
	}
	waitErr := make(chan error, 1)
	go func() { waitErr <- e.Wait() }()

	select {
	case <-ctx.Done():
	case err := <-waitErr:
		if err != nil {
			e.log.WithError(err).Error("Engine loop failed")
		}
	}
	return e.Stop()
}

// Status implements handler.StatusProvider.
func (e *Engine) Status(ctx context.Context) (model.EngineStatus, error) {
	e.mu.Lock()
	status := model.EngineStatus{
		Exchange: e.gateway.Name(),
		Running:  e.started && !e.stopped,
	}
	if e.started {
		startedAt := e.startedAt
		status.StartedAt = &startedAt
	}
	e.mu.Unlock()

	cycles, lastCycle := e.Scheduler.Stats()
	status.SchedulerCycles = cycles
	if !lastCycle.IsZero() {
		status.LastCycleAt = &lastCycle
	}
	if lastSweep := e.Reconciler.LastSweep(); !lastSweep.IsZero() {
		status.LastSweepAt = &lastSweep
	}
	status.ActiveCancelTasks = e.Manager.ActiveTasks()
	status.PendingCloses = e.Reconciler.PendingCloses()

	openOrders, err := e.Orders.ListOpen(ctx)
	if err != nil {
		return status, err
	}
	openPositions, err := e.Positions.ListOpen(ctx)
	if err != nil {
		return status, err
	}
	status.OpenOrders = len(openOrders)
	status.OpenPositions = len(openPositions)
	return status, nil
}
