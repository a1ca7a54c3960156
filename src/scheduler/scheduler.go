// Package scheduler runs the periodic signal scan over enabled pairs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"breakoutexecutor/src/errs"
	"breakoutexecutor/src/metrics"
	"breakoutexecutor/src/model"
	"breakoutexecutor/src/repository"
	"breakoutexecutor/src/utils"
)

const (
	DefaultPacing = 500 * time.Millisecond
	DefaultRetry  = 5 * time.Second
)

// SignalSource evaluates one symbol.
type SignalSource interface {
	Generate(ctx context.Context, symbol string, lookback int, volumeMultiplier float64) *model.Signal
}

// OrderPlacer submits an entry order.
type OrderPlacer interface {
	PlaceLimitOrder(ctx context.Context, symbol string, direction model.Direction, cancelAfter int) (string, error)
}

// CycleReport counts what one cycle did.
type CycleReport struct {
	Pairs   int
	Skipped int
	Signals int
	Placed  int
	Errors  int
}

type Config struct {
	// Interval is used when check_interval is missing or not positive.
	Interval time.Duration
	Pacing   time.Duration
	Retry    time.Duration
	Log      *logrus.Entry
}

type Scheduler struct {
	pairs     *repository.PairRepository
	params    *repository.ParameterRepository
	orders    *repository.OrderRepository
	positions *repository.PositionRepository
	signals   SignalSource
	placer    OrderPlacer

	interval time.Duration
	pacing   time.Duration
	retry    time.Duration
	log      *logrus.Entry
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time

	mu        sync.Mutex
	lastCycle time.Time
	cycles    int
}

func New(
	pairs *repository.PairRepository,
	params *repository.ParameterRepository,
	orders *repository.OrderRepository,
	positions *repository.PositionRepository,
	signals SignalSource,
	placer OrderPlacer,
	config Config,
) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = utils.Seconds(model.DefaultCheckInterval)
	}
	if config.Pacing <= 0 {
		config.Pacing = DefaultPacing
	}
	if config.Retry <= 0 {
		config.Retry = DefaultRetry
	}
	log := config.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Scheduler{
		pairs:     pairs,
		params:    params,
		orders:    orders,
		positions: positions,
		signals:   signals,
		placer:    placer,
		interval:  config.Interval,
		pacing:    config.Pacing,
		retry:     config.Retry,
		log:       log.WithField("component", "scheduler"),
		sleep:     utils.Sleep,
		now:       time.Now,
	}
}

// Run executes cycles until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("Scheduler started")
	for {
		wait := s.Interval(ctx)
		if _, err := s.safeCycle(ctx); err != nil {
			if ctx.Err() != nil {
				s.log.Info("Scheduler stopped")
				return nil
			}
			metrics.Errors.WithLabelValues("scheduler").Inc()
			s.log.WithError(err).Error("Scheduler cycle failed")
			wait = s.retry
		}
		if err := s.sleep(ctx, wait); err != nil {
			s.log.Info("Scheduler stopped")
			return nil
		}
	}
}

// Interval returns the pause between cycles, read from check_interval.
func (s *Scheduler) Interval(ctx context.Context) time.Duration {
	secs, err := s.params.GetInt(ctx, model.ParamCheckInterval, 0)
	if err != nil || secs <= 0 {
		return s.interval
	}
	return utils.Seconds(secs)
}

func (s *Scheduler) safeCycle(ctx context.Context) (report CycleReport, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in cycle: %v", p)
		}
	}()
	return s.RunCycle(ctx)
}

// RunCycle scans every enabled pair once, in configuration order.
func (s *Scheduler) RunCycle(ctx context.Context) (CycleReport, error) {
	var report CycleReport

	pairs, err := s.pairs.ListEnabledPairs(ctx)
	if err != nil {
		return report, fmt.Errorf("list enabled pairs: %w", err)
	}

	lookback, err := s.params.GetInt(ctx, model.ParamLookback, model.DefaultLookback)
	if err != nil {
		return report, fmt.Errorf("read %s: %w", model.ParamLookback, err)
	}
	multiplier, err := s.params.GetFloat(ctx, model.ParamVolumeMultiplier, model.DefaultVolumeMultiplier)
	if err != nil {
		return report, fmt.Errorf("read %s: %w", model.ParamVolumeMultiplier, err)
	}

	for i := range pairs {
		if i > 0 {
			if err := s.sleep(ctx, s.pacing); err != nil {
				return report, err
			}
		}
		report.Pairs++
		s.processPair(ctx, &pairs[i], lookback, multiplier, &report)
	}

	s.mu.Lock()
	s.lastCycle = s.now().UTC()
	s.cycles++
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"pairs":   report.Pairs,
		"skipped": report.Skipped,
		"signals": report.Signals,
		"placed":  report.Placed,
		"errors":  report.Errors,
	}).Debug("Cycle finished")
	return report, nil
}

func (s *Scheduler) processPair(ctx context.Context, pair *model.PairConfig, lookback int, multiplier float64, report *CycleReport) {
	log := s.log.WithField("symbol", pair.Symbol)

	fail := func(op string, err error) {
		report.Errors++
		metrics.Errors.WithLabelValues("scheduler").Inc()
		log.WithField("op", op).WithError(err).Error("Pair skipped after error")
	}

	hasPosition, err := s.positions.HasOpenPosition(ctx, pair.Symbol)
	if err != nil {
		fail("has_open_position", err)
		return
	}
	if hasPosition {
		report.Skipped++
		log.Debug("Open position, skipping")
		return
	}

	hasOrder, err := s.orders.HasOpenOrder(ctx, pair.Symbol)
	if err != nil {
		fail("has_open_order", err)
		return
	}
	if hasOrder {
		report.Skipped++
		log.Debug("Open order, skipping")
		return
	}

	sig := s.signals.Generate(ctx, pair.Symbol, lookback, multiplier)
	if sig == nil {
		return
	}
	report.Signals++

	id, err := s.placer.PlaceLimitOrder(ctx, pair.Symbol, sig.Direction, pair.CancelAfter)
	if errors.Is(err, errs.ErrOrderAlreadyOpen) {
		report.Skipped++
		log.Debug("Order already in flight, skipping")
		return
	}
	if errors.Is(err, errs.ErrShortUnsupported) {
		report.Skipped++
		log.Debug("Short signal on a long-only gateway, skipping")
		return
	}
	if err != nil {
		fail("place_limit_order", err)
		return
	}

	report.Placed++
	log.WithFields(logrus.Fields{
		"order_id":  id,
		"direction": sig.Direction,
	}).Info("Entry order placed")
}

// Stats returns the number of completed cycles and when the last one ended.
func (s *Scheduler) Stats() (int, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycles, s.lastCycle
}
