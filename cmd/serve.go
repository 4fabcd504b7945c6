package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"

	"github.com/abarwater/aqua-router/api"
	"github.com/abarwater/aqua-router/config"
	"github.com/abarwater/aqua-router/webhook"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook, catalog and sync HTTP server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// runServe builds the app and starts the HTTP server, mirroring the
// teacher's restServer: one fiber.App, routes registered up front, a
// signal-triggered graceful shutdown that tears down every dependency
// before returning.
func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(recover.New())
	app.Use(logger.New())

	var transcriber webhook.Transcriber
	if a.Transcriber != nil {
		transcriber = a.Transcriber
	}
	webhook.Register(app, "/webhook", &webhook.Handler{
		Orchestrator: a.Orchestrator,
		Transcriber:  transcriber,
		VerifyToken:  cfg.WatiWebhookVerifyToken,
		Logger:       a.Logger,
	})
	api.RegisterCatalog(app, a.Catalog)
	api.RegisterSync(app, a.SyncWorker)

	ctx, cancel := context.WithCancel(context.Background())
	a.SyncWorker.Start(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		a.Logger.Info("serve: shutdown signal received")
		cancel()
		a.SyncWorker.Stop()
		if err := app.Shutdown(); err != nil {
			a.Logger.WithError(err).Error("serve: fiber shutdown failed")
		}
	}()

	a.Logger.WithField("port", cfg.HTTPPort).Info("serve: listening")
	if err := app.Listen(":" + cfg.HTTPPort); err != nil {
		a.Logger.WithError(err).Error("serve: listen failed")
		return err
	}
	return nil
}
