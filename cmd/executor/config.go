package executor

import (
	"breakoutexecutor/src/connectors"
	"breakoutexecutor/src/database"
	"breakoutexecutor/src/engine"
	"breakoutexecutor/src/server"
)

// Config gathers the settings of every package the executor wires.
type Config struct {
	Database database.Config
	Exchange connectors.Config
	Engine   engine.Config
	Server   server.Config
}

func GetConfig() *Config {
	return &Config{
		Database: database.GetConfig(),
		Exchange: connectors.GetConfig(),
		Engine:   *engine.GetConfig(),
		Server:   *server.GetConfig(),
	}
}
