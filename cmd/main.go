package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"breakoutexecutor/cmd/executor"
	"breakoutexecutor/cmd/pairs"
	"breakoutexecutor/src/database"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "breakout-executor"
	app.Usage = "Breakout signal-to-order engine"
	app.Version = Version

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "env-file",
			Usage: "dotenv file loaded before reading configuration",
			Value: ".env",
		},
	}
	app.Before = func(c *cli.Context) error {
		loadEnv(c.GlobalString("env-file"))
		setupLogger()
		return nil
	}

	app.Commands = []cli.Command{
		engineCMD,
		pairsCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	engineCMD = cli.Command{
		Name:        "engine",
		Usage:       "run the trading engine",
		Action:      engineAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the scheduler, reconciliation loop and status API until SIGINT/SIGTERM`,
	}
	pairsCMD = cli.Command{
		Name:  "pairs",
		Usage: "manage pair configuration",
		Subcommands: []cli.Command{
			{
				Name:   "import",
				Usage:  "upsert pairs and parameters from a YAML file",
				Action: pairsImportAction,
				Flags: []cli.Flag{
					cli.StringFlag{Name: "file, f", Usage: "pairs YAML file", Value: "pairs.yaml"},
				},
			},
			{
				Name:   "list",
				Usage:  "print configured pairs and parameters",
				Action: pairsListAction,
			},
		},
	}
)

// loadEnv reads a dotenv file when present. Variables already set win.
func loadEnv(path string) {
	if path == "" {
		return
	}
	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).WithField("file", path).Warn("Failed to load env file")
	}
}

func setupLogger() {
	level, err := logrus.ParseLevel(strings.ToLower(os.Getenv("LOG_LEVEL")))
	if err != nil {
		level = logrus.DebugLevel
	}
	logrus.SetLevel(level)

	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

func engineAction(_ *cli.Context) error {
	logrus.Info("Starting engine CMD")

	exec := &executor.Executor{Log: logrus.WithField("cmd", "engine")}
	if err := exec.Start(); err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}
	return nil
}

func withPairs(fn func(ctx context.Context, p *pairs.Pairs) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(database.GetConfig())
	if err != nil {
		logrus.WithError(err).Error("Failed to connect to database")
		return err
	}
	defer func() { _ = database.Close(db) }()

	return fn(ctx, &pairs.Pairs{Log: logrus.WithField("cmd", "pairs"), DB: db})
}

func pairsImportAction(c *cli.Context) error {
	file := c.String("file")
	return withPairs(func(ctx context.Context, p *pairs.Pairs) error {
		return p.Import(ctx, file)
	})
}

func pairsListAction(_ *cli.Context) error {
	return withPairs(func(ctx context.Context, p *pairs.Pairs) error {
		return p.List(ctx, os.Stdout)
	})
}
