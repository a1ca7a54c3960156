package engine

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// SchedulerInterval applies while the check_interval parameter is unset.
	SchedulerInterval time.Duration `envconfig:"SCHEDULER_INTERVAL" default:"60s"`
	SchedulerPacing   time.Duration `envconfig:"SCHEDULER_PACING" default:"500ms"`
	SchedulerRetry    time.Duration `envconfig:"SCHEDULER_RETRY" default:"5s"`

	ReconcileInterval time.Duration `envconfig:"RECONCILE_INTERVAL" default:"10s"`
	ReconcileBackoff  time.Duration `envconfig:"RECONCILE_BACKOFF" default:"10s"`

	OrderPriceOffset float64 `envconfig:"ORDER_PRICE_OFFSET" default:"0.001"`
	AmountPrecision  int32   `envconfig:"AMOUNT_PRECISION" default:"8"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
