// Package ingest consumes staged amendment events from Kafka, for
// deployments that stage change events through a queue instead of the spool
// directory.
package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/segmentio/kafka-go"

	"github.com/hexperiment-labs/fluptrack/internal/amendment"
	"github.com/hexperiment-labs/fluptrack/internal/config"
)

// Consumer reads event records from a topic and appends them to the tracker.
type Consumer struct {
	reader  *kafka.Reader
	tracker *amendment.Tracker
}

// NewConsumer creates a consumer for the configured topic.
func NewConsumer(cfg config.IngestConfig, tr *amendment.Tracker) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  strings.Split(cfg.Brokers, ","),
		Topic:    cfg.Topic,
		GroupID:  cfg.Group,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{reader: reader, tracker: tr}
}

// Run consumes until ctx is cancelled. Undecodable or unappendable messages
// are warned about and dropped; the loop keeps going.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Warn("ingest: read error", "error", err)
			continue
		}
		a, err := decodeAndAppend(msg.Value, c.tracker)
		if err != nil {
			slog.Warn("ingest: dropping message", "offset", msg.Offset, "error", err)
			continue
		}
		slog.Info("ingest: appended amendment", "category", a.Category, "id", a.ID)
	}
}

// Close releases the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

func decodeAndAppend(value []byte, tr *amendment.Tracker) (*amendment.Amendment, error) {
	var ev amendment.Event
	if err := json.Unmarshal(value, &ev); err != nil {
		return nil, err
	}
	return tr.AppendEvent(&ev)
}
