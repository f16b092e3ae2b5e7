package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/tmskss/portfolio-health-report/internal/config"
	"github.com/tmskss/portfolio-health-report/internal/dedupe"
	"github.com/tmskss/portfolio-health-report/internal/logger"
	"github.com/tmskss/portfolio-health-report/internal/models"
	"github.com/tmskss/portfolio-health-report/internal/pipeline"
	"github.com/tmskss/portfolio-health-report/internal/report"
)

type reportRunner interface {
	Run(ctx context.Context) (*report.Outcome, error)
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

func main() {
	log := logger.New("worker")
	if err := config.LoadDotEnv(); err != nil {
		log.Error("load .env", slog.Any("err", err))
		os.Exit(1)
	}

	cfg, err := config.LoadWorker()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	p, _, err := pipeline.Build(ctx, cfg.Common, log)
	if err != nil {
		log.Error("init pipeline", slog.Any("err", err))
		os.Exit(1)
	}

	cache := dedupe.NewCache(cfg.DedupeCapacity, cfg.DedupeTTL)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		Topic:          cfg.RequestTopic,
		GroupID:        cfg.KafkaConsumer,
		QueueCapacity:  1,
		MinBytes:       1,
		MaxBytes:       1e6,
		CommitInterval: 0, // Disable auto-commit; manual commit only
	})
	defer reader.Close()

	resultWriter := kafka.NewWriter(kafka.WriterConfig{
		Brokers:     cfg.KafkaBrokers,
		Topic:       cfg.ResultTopic,
		MaxAttempts: 3,
	})
	defer resultWriter.Close()

	dlqWriter := kafka.NewWriter(kafka.WriterConfig{
		Brokers:     cfg.KafkaBrokers,
		Topic:       cfg.RequestTopic + "_dlq",
		MaxAttempts: 3,
	})
	defer dlqWriter.Close()

	log.Info("worker started",
		slog.String("request_topic", cfg.RequestTopic),
		slog.String("result_topic", cfg.ResultTopic),
		slog.String("group", cfg.KafkaConsumer),
		slog.String("emails_dir", cfg.EmailsDir),
	)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("context canceled, stopping")
				return
			}
			log.Error("fetch message", slog.Any("err", err))
			continue
		}

		if err := processMessage(ctx, log, p, resultWriter, cache, cfg.RunTimeout, msg); err != nil {
			log.Warn("process message failed, sending to DLQ",
				slog.Any("err", err),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
			)

			if !sendToDLQ(ctx, log, dlqWriter, msg, err) {
				log.Error("DLQ write exhausted retries, request may be lost if later messages commit",
					slog.Int("partition", msg.Partition),
					slog.Int64("offset", msg.Offset),
				)
				continue
			}
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Error("commit message", slog.Any("err", err))
		}
	}
}

// processMessage runs the pipeline for one request and publishes the outcome.
// A failed run is published as a failure result; only undecodable requests
// and publish failures are returned as errors.
func processMessage(ctx context.Context, log *slog.Logger, runner reportRunner, results messageWriter, cache *dedupe.Cache, timeout time.Duration, msg kafka.Message) error {
	requestID, err := requestIDFor(msg)
	if err != nil {
		return err
	}

	if cache.IsSeen(requestID) {
		log.Debug("duplicate report request", slog.String("request_id", requestID))
		return nil
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	outcome, runErr := runner.Run(runCtx)
	cancel()

	result := pipeline.Result(outcome, runErr)
	if runErr != nil {
		log.Error("report run failed", slog.String("request_id", requestID), slog.Any("err", runErr))
	}

	payload, err := json.Marshal(models.ReportResponse{RequestID: requestID, RunResult: result})
	if err != nil {
		return fmt.Errorf("marshal report response: %w", err)
	}

	if err := results.WriteMessages(ctx, kafka.Message{Key: []byte(requestID), Value: payload}); err != nil {
		return fmt.Errorf("publish report response: %w", err)
	}

	cache.MarkSeen(requestID)
	log.Info("published report", slog.String("request_id", requestID), slog.Bool("success", result.Success))
	return nil
}

// requestIDFor resolves the request ID from the payload, then the message key.
// Empty payloads are valid requests.
func requestIDFor(msg kafka.Message) (string, error) {
	var req models.ReportRequest
	if len(strings.TrimSpace(string(msg.Value))) > 0 {
		if err := json.Unmarshal(msg.Value, &req); err != nil {
			return "", fmt.Errorf("decode report request: %w", err)
		}
	}

	if id := strings.TrimSpace(req.RequestID); id != "" {
		return id, nil
	}
	if len(msg.Key) > 0 {
		return string(msg.Key), nil
	}
	return uuid.NewString(), nil
}

func sendToDLQ(ctx context.Context, log *slog.Logger, dlq messageWriter, msg kafka.Message, cause error) bool {
	dlqMsg := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(msg.Headers,
			kafka.Header{Key: "original_partition", Value: []byte(fmt.Sprintf("%d", msg.Partition))},
			kafka.Header{Key: "original_offset", Value: []byte(fmt.Sprintf("%d", msg.Offset))},
			kafka.Header{Key: "error", Value: []byte(cause.Error())},
			kafka.Header{Key: "timestamp", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		),
	}

	for attempt := 0; attempt < 5; attempt++ {
		dlqErr := dlq.WriteMessages(ctx, dlqMsg)
		if dlqErr == nil {
			log.Info("message sent to DLQ",
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.Int("attempt", attempt+1),
			)
			return true
		}

		backoff := time.Duration(1<<uint(attempt)) * time.Second
		log.Warn("DLQ write failed, retrying",
			slog.Any("err", dlqErr),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return false
		}
	}
	return false
}
