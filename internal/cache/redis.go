// Package cache keeps recently read submission records in redis so repeated
// reads of the same document skip Postgres.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"intakeservice/internal/model"
	"intakeservice/pkg/logging"
)

const keyPrefix = "submission:"

type RecordCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRecordCache(rdb *redis.Client, ttl time.Duration) *RecordCache {
	return &RecordCache{rdb: rdb, ttl: ttl}
}

// Get returns the cached record for a document id. A plain miss and a
// transport failure both fall through to the store; only the latter is
// worth a log line.
func (c *RecordCache) Get(ctx context.Context, documentID string) (*model.StructuredRecord, bool) {
	data, err := c.rdb.Get(ctx, keyPrefix+documentID).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			if logger, ok := logging.GetFromContext(ctx); ok {
				logger.Warn(ctx, "record cache read failed",
					zap.String("document_id", documentID), zap.Error(err))
			}
		}
		return nil, false
	}

	var record model.StructuredRecord
	if err := json.Unmarshal(data, &record); err != nil {
		// Unreadable payload under our key; evict it and read through.
		c.rdb.Del(ctx, keyPrefix+documentID)
		return nil, false
	}
	return &record, true
}

func (c *RecordCache) Set(ctx context.Context, documentID string, record *model.StructuredRecord) {
	data, err := json.Marshal(record)
	if err != nil {
		return
	}
	c.rdb.Set(ctx, keyPrefix+documentID, data, c.ttl)
}

func (c *RecordCache) Delete(ctx context.Context, documentID string) {
	c.rdb.Del(ctx, keyPrefix+documentID)
}
