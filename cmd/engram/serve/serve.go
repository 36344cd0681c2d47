// Package servecmder provides the serve command for running the HTTP API
// server.
package servecmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/engramchat/engram/api"
	"github.com/engramchat/engram/pkg/config"
	"github.com/engramchat/engram/pkg/logger"
	"github.com/engramchat/engram/pkg/service"
)

type ServeCommander struct {
	listen string
	debug  bool

	cfg    *config.Config
	logger *zap.Logger
}

const serveLongDesc string = `Run the engram API server.

The server exposes the chat and persona endpoints over HTTP:
  GET  /ping                  Health check
  POST /chat                  Run a chat turn (set "stream": true for NDJSON)
  GET  /personas              List personas
  POST /personas              Create a persona
  GET  /personas/:handle      Show one persona

Examples:
  engram serve
  engram serve --api-listen :9090`

const serveShortDesc string = "Run the engram API server"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, config.Flags, []string{
				config.FlagAPIListen,
				config.FlagModel,
				config.FlagSQLite,
			})

			cmder.cfg, err = config.FromViper(v)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			cmder.listen = cmder.cfg.API.Listen
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}
			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagAPIListen, &cmder.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagModel, new(string))
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, new(string))

	return cmd
}

func (c *ServeCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer c.logger.Sync()

	stack, err := service.BuildStack(context.Background(), c.cfg, c.logger)
	if err != nil {
		return fmt.Errorf("building stack: %w", err)
	}
	defer stack.Close()

	server := api.NewServer(api.Config{
		ListenAddr: c.listen,
	}, stack.Resolver, stack.Personas, stack.Orchestrator, c.logger)

	c.logger.Info("starting api server",
		zap.String("listen", c.listen),
		zap.String("store", c.cfg.Store.Provider),
		zap.String("llm", c.cfg.LLM.Provider),
	)

	// Channel to capture errors from the server goroutine
	errChan := make(chan error, 1)

	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("api server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	if err := server.Shutdown(); err != nil {
		c.logger.Warn("shutting down api server", zap.Error(err))
	}

	return nil
}
