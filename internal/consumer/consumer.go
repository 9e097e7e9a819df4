package consumer

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"pulse-analytics/internal/model"
	"pulse-analytics/internal/pipeline"
	"pulse-analytics/internal/storage"
)

// BatchResult reports how one batch of raw payloads was handled.
type BatchResult struct {
	Received int
	Inserted int
	Skipped  int
}

// Consumer turns batches of raw stream payloads into canonical rows and
// routes them to the storage backend.
type Consumer struct {
	store storage.Store
	log   *zap.Logger
}

// New builds a consumer on top of an already-initialized store.
func New(store storage.Store, log *zap.Logger) *Consumer {
	return &Consumer{store: store, log: log}
}

// ConsumeBatch decodes and normalizes every payload, skipping and logging
// individual failures, then inserts all surviving rows in one call. An insert
// failure fails the entire batch so the upstream stream redelivers it; a
// batch with zero normalizable payloads is a no-op success.
func (c *Consumer) ConsumeBatch(ctx context.Context, payloads [][]byte) (BatchResult, error) {
	res := BatchResult{Received: len(payloads)}
	rows := make([]model.CanonicalEventRow, 0, len(payloads))

	for _, payload := range payloads {
		var raw model.RawEvent
		if err := json.Unmarshal(payload, &raw); err != nil {
			res.Skipped++
			c.log.Warn("skipping undecodable payload",
				zap.Error(&model.DecodeError{Err: err}))
			continue
		}
		row, err := pipeline.Normalize(raw)
		if err != nil {
			res.Skipped++
			c.log.Warn("skipping event that failed normalization",
				zap.String("projectId", raw.ProjectID),
				zap.String("eventType", raw.EventType),
				zap.Error(err))
			continue
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return res, nil
	}
	if err := c.store.InsertEvents(ctx, rows); err != nil {
		return res, err
	}
	res.Inserted = len(rows)
	return res, nil
}
