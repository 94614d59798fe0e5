package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OFFIS-RIT/caseboard/backend/internal/queue"
	"github.com/OFFIS-RIT/caseboard/backend/internal/setup"
	"github.com/OFFIS-RIT/caseboard/backend/internal/util"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/ai"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/logger"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/logger/console"

	_ "github.com/lib/pq"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	deps, err := setup.New(ctx)
	if err != nil {
		logger.Fatal("Failed to set up workspace", "err", err)
	}
	defer deps.Close()

	params := queue.NewCaptureProcessorParams{Workspace: deps.Workspace}
	files, err := setup.NewCaptureFiles(ctx)
	if err != nil {
		logger.Fatal("Failed to create S3 client", "err", err)
	}
	if files != nil {
		params.Images = files
	}

	// Init rabbitmq
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
	params.Events = ch
	processor := queue.NewCaptureProcessor(params)

	// A separate consumer channel with prefetch=1 so only one capture is
	// extracted at a time.
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	if err := consumerCh.Qos(1, 0, true); err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	logger.Info("Listening for messages", "queue", queue.CaptureQueue)

	handler := func(ctx context.Context, body []byte) error {
		startTime := time.Now()
		err := processor.ProcessCaptureMessage(ctx, body)
		logMetrics(deps.AI, time.Since(startTime))
		return err
	}

	if err := queue.Run(ctx, consumerCh, ch, queue.CaptureQueue, handler); err != nil {
		logger.Fatal("Consumer failed", "err", err)
	}
	logger.Info("Shutdown signal received, exiting...")
}

func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d:%02d", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}

// logMetrics reports the AI usage of one message and resets the counters.
func logMetrics(client ai.GraphAIClient, processing time.Duration) {
	metrics := client.GetMetrics()
	logger.Info(
		"AI Metrics",
		"input_tokens", metrics.InputTokens,
		"output_tokens", metrics.OutputTokens,
		"total_tokens", metrics.TotalTokens,
		"duration", formatDuration(time.Duration(metrics.DurationMs)*time.Millisecond),
	)
	logger.Info("Processing time", "duration", formatDuration(processing))
	client.ResetMetrics()
}
