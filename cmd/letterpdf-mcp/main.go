// Command letterpdf-mcp is an MCP (Model Context Protocol) server that lets
// AI assistants export, preview and inspect official letters.
//
// # Available Tools
//
//   - export_letter: export a letter to PDF
//   - preview_letter_page: render a page of the exported PDF as PNG
//   - bundle_letters: export several letters into one PDF
//   - pdf_info: inspect any PDF file
//
// # Available Resources
//
//   - letter://{id}/metadata : letter reference, status and filename
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lvillar/letterpdf/config"
	"github.com/lvillar/letterpdf/internal/app"
	"github.com/lvillar/letterpdf/logger"
	"github.com/lvillar/letterpdf/mcp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "letterpdf-mcp: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	s := mcp.NewServer(log)
	mcp.RegisterTools(s, a.Exporter)
	mcp.RegisterResources(s, a.Letters)
	return s.Run(ctx)
}
