package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/hydrometric-etl/internal/config"
	"github.com/couchcryptid/hydrometric-etl/internal/domain"
	"github.com/couchcryptid/hydrometric-etl/internal/observability"
)

// messageWriter is the subset of *kafkago.Writer the alert writer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes station alerts to a Kafka topic.
// It implements pipeline.Sink.
type Writer struct {
	writer          messageWriter
	minReturnPeriod float64
	logger          *slog.Logger
	metrics         *observability.Metrics
}

// NewWriter creates a Kafka producer for the configured alert topic.
func NewWriter(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaAlertTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return newWriter(w, cfg.AlertMinReturnPeriod, logger, metrics)
}

func newWriter(w messageWriter, minReturnPeriod float64, logger *slog.Logger, metrics *observability.Metrics) *Writer {
	return &Writer{writer: w, minReturnPeriod: minReturnPeriod, logger: logger, metrics: metrics}
}

// Name implements pipeline.Sink.
func (w *Writer) Name() string { return "kafka" }

// Save publishes the report summary when the station's peak label meets the
// minimum return period. Other reports are skipped without error.
func (w *Writer) Save(ctx context.Context, r domain.StationReport) error {
	if !r.Peak.Exceeds(w.minReturnPeriod) {
		return nil
	}
	msg, err := serializeToMessage(r.Summary())
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish alert for %s: %w", r.Station.Code, err)
	}
	w.metrics.AlertsPublished.Inc()
	w.logger.Info("alert published", "station", r.Station.Code, "peak", r.Peak.String())
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a report summary into a Kafka message keyed by
// station code.
func serializeToMessage(s domain.ReportSummary) (kafkago.Message, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize report summary: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(s.Station),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "peak_label", Value: []byte(s.PeakLabel.String())},
			{Key: "generated_at", Value: []byte(s.GeneratedAt.Format(time.RFC3339))},
		},
	}, nil
}
