package history

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/eleven-am/voice-widget/internal/shared"
	"github.com/redis/go-redis/v9"
)

const (
	recordTTL  = 24 * time.Hour
	metricsTTL = 7 * 24 * time.Hour
)

// Store keeps conversation records and hourly per-agent counters in Redis.
type Store struct {
	redis   *redis.Client
	agentID string
}

func NewStore(redisClient *redis.Client, agentID string) *Store {
	return &Store{redis: redisClient, agentID: agentID}
}

func (s *Store) Begin(ctx context.Context, key, agentID string) error {
	if agentID == "" {
		agentID = s.agentID
	}
	now := time.Now()
	rec := &Record{
		ID:           key,
		AgentID:      agentID,
		Status:       StatusActive,
		StartedAt:    now,
		LastActiveAt: now,
	}
	if err := s.save(ctx, rec); err != nil {
		return err
	}
	return s.IncrementMetric(ctx, agentID, "conversations", 1)
}

func (s *Store) RecordInterruption(ctx context.Context, key string, eventID int) error {
	rec, err := s.update(ctx, key, func(r *Record) {
		r.Interruptions++
		if eventID > r.LastInterruptID {
			r.LastInterruptID = eventID
		}
	})
	if err != nil {
		return err
	}
	return s.IncrementMetric(ctx, rec.AgentID, "interruptions", 1)
}

func (s *Store) RecordReconnect(ctx context.Context, key string) error {
	rec, err := s.update(ctx, key, func(r *Record) {
		r.Reconnects++
	})
	if err != nil {
		return err
	}
	return s.IncrementMetric(ctx, rec.AgentID, "reconnects", 1)
}

// End marks the conversation finished. Sessions that never reached the
// endpoint get a record here so failures stay visible.
func (s *Store) End(ctx context.Context, key string, failed bool) error {
	rec, err := s.update(ctx, key, func(r *Record) {
		now := time.Now()
		r.EndedAt = &now
		r.Status = StatusEnded
		if failed {
			r.Status = StatusFailed
		}
	})
	if err != nil {
		return err
	}
	if failed {
		return s.IncrementMetric(ctx, rec.AgentID, "failures", 1)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	data, err := s.redis.Get(ctx, RecordRedisKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	return s.redis.Del(ctx, RecordRedisKey(id)).Err()
}

func (s *Store) update(ctx context.Context, key string, fn func(*Record)) (*Record, error) {
	rec, err := s.Get(ctx, key)
	if errors.Is(err, shared.ErrNotFound) {
		rec = &Record{ID: key, AgentID: s.agentID, Status: StatusActive, StartedAt: time.Now()}
	} else if err != nil {
		return nil, err
	}

	fn(rec)
	if err := s.save(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) save(ctx context.Context, rec *Record) error {
	rec.LastActiveAt = time.Now()
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, rec.RedisKey(), data, recordTTL).Err()
}

func (s *Store) IncrementMetric(ctx context.Context, agentID string, field string, value int64) error {
	if agentID == "" {
		return nil
	}
	now := time.Now().UTC()
	key := MetricsRedisKey(agentID, now.Format("2006-01-02"), now.Hour())

	pipe := s.redis.Pipeline()
	pipe.HIncrBy(ctx, key, field, value)
	pipe.Expire(ctx, key, metricsTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) GetMetrics(ctx context.Context, agentID string, hours int) ([]*Metrics, error) {
	now := time.Now().UTC()
	var metrics []*Metrics

	for i := 0; i < hours; i++ {
		t := now.Add(-time.Duration(i) * time.Hour)
		key := MetricsRedisKey(agentID, t.Format("2006-01-02"), t.Hour())

		data, err := s.redis.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			continue
		}

		m := &Metrics{
			AgentID: agentID,
			Date:    t.Format("2006-01-02"),
			Hour:    t.Hour(),
		}
		m.Conversations, _ = strconv.ParseInt(data["conversations"], 10, 64)
		m.Interruptions, _ = strconv.ParseInt(data["interruptions"], 10, 64)
		m.Reconnects, _ = strconv.ParseInt(data["reconnects"], 10, 64)
		m.Failures, _ = strconv.ParseInt(data["failures"], 10, 64)
		metrics = append(metrics, m)
	}
	return metrics, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}
