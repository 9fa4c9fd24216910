package main

import (
	"fmt"
	"os"

	"github.com/yoockh/livevoice/config"
	"github.com/yoockh/livevoice/internal/cli"
	"github.com/yoockh/livevoice/internal/logger"
)

func main() {
	cfg := config.Load()
	deps := &cli.Dependencies{
		Config: cfg,
		Logger: logger.New(cfg.LogLevel),
	}

	if err := cli.NewRootCmd(deps).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
