package server

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Port of the status API. Empty disables the server.
	Port            string        `envconfig:"STATUS_PORT" default:"9898"`
	ShutdownTimeout time.Duration `envconfig:"STATUS_SHUTDOWN_TIMEOUT" default:"5s"`
	// Browser origins allowed to read the API. Empty sends no CORS headers.
	AllowedOrigins []string `envconfig:"STATUS_ALLOWED_ORIGINS"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
