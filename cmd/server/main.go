package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/OFFIS-RIT/caseboard/backend/internal/queue"
	"github.com/OFFIS-RIT/caseboard/backend/internal/server"
	mid "github.com/OFFIS-RIT/caseboard/backend/internal/server/middleware"
	"github.com/OFFIS-RIT/caseboard/backend/internal/setup"
	"github.com/OFFIS-RIT/caseboard/backend/internal/util"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/logger"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/logger/console"

	"github.com/MicahParks/keyfunc/v3"
	_ "github.com/lib/pq"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := setup.New(ctx)
	if err != nil {
		logger.Fatal("Failed to set up workspace", "err", err)
	}
	defer deps.Close()

	app := &mid.App{
		Workspace:    deps.Workspace,
		MasterAPIKey: util.GetEnv("MASTER_API_KEY"),
		AuthDisabled: util.GetEnvBool("AUTH_DISABLED", false),
	}

	if authURL := util.GetEnv("AUTH_URL"); authURL != "" {
		k, err := keyfunc.NewDefault([]string{authURL + "/jwks"})
		if err != nil {
			logger.Fatal("Failed to load jwks keys", "err", err)
		}
		app.Key = k
	}
	if app.AuthDisabled {
		logger.Warn("[Server] Authentication is disabled, every request is treated as an admin")
	}

	// Captures are extracted inline unless a broker is configured.
	if util.GetEnv("RABBITMQ_HOST") != "" {
		conn, err := queue.Dial()
		if err != nil {
			logger.Fatal("Failed to connect to RabbitMQ", "err", err)
		}
		defer conn.Close()

		ch, err := conn.Channel()
		if err != nil {
			logger.Fatal("Failed to open channel", "err", err)
		}
		defer ch.Close()

		if err := queue.SetupQueues(ch, []string{queue.CaptureQueue}); err != nil {
			logger.Fatal("Failed to set up queues", "err", err)
		}
		app.Queue = ch
	}

	files, err := setup.NewCaptureFiles(ctx)
	if err != nil {
		logger.Fatal("Failed to create S3 client", "err", err)
	}
	if files != nil {
		app.Files = files
	}

	e := server.New(app, util.GetEnv("BODY_LIMIT"))
	if err := server.Run(ctx, e, util.GetEnv("PORT")); err != nil {
		logger.Fatal("Server failed", "err", err)
	}
}
