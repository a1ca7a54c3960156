package connectors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	ExchangePhemex  = "phemex"
	ExchangeBinance = "binance"
)

type Config struct {
	TargetExchange string        `envconfig:"TARGET_EXCHANGE" default:"phemex"`
	BaseURL        string        `envconfig:"BASE_URL" default:""`
	APIKey         string        `envconfig:"EXCHANGE_API_KEY" default:""`
	APISecret      string        `envconfig:"EXCHANGE_API_SECRET" default:""`
	QuoteCurrency  string        `envconfig:"QUOTE_CURRENCY" default:"USDT"`
	RequestTimeout time.Duration `envconfig:"EXCHANGE_REQUEST_TIMEOUT" default:"15s"`
	// Merged for one-way mode, Hedged to send Long/Short posSide.
	PhemexPosMode string `envconfig:"PHEMEX_POS_MODE" default:"Merged"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// NewGateway builds the gateway selected by TargetExchange.
func NewGateway(config Config) (Gateway, error) {
	switch config.TargetExchange {
	case ExchangePhemex, "":
		return NewPhemexClient(config), nil
	case ExchangeBinance:
		return NewBinanceGateway(config), nil
	default:
		return nil, fmt.Errorf("unsupported TARGET_EXCHANGE %q", config.TargetExchange)
	}
}
