package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/edirooss/rtsplive-server/internal/service/streaming"
	"go.uber.org/zap"
)

func cameraStatusKey(id string) string { return "camera:" + id + ":status" }

// StatusRepository mirrors stream worker state into camera:<id>:status so
// external dashboards can follow it without polling the HTTP API.
type StatusRepository struct {
	client *Client
	log    *zap.Logger
	ttl    time.Duration
}

// NewStatusRepository expires entries after ttl, so a dead server stops
// advertising running streams. Use a small multiple of the tick interval.
func NewStatusRepository(log *zap.Logger, client *Client, ttl time.Duration) *StatusRepository {
	return &StatusRepository{
		client: client,
		log:    log.Named("status_repo"),
		ttl:    ttl,
	}
}

// CameraStatus mirrors the JSON stored at camera:<id>:status.
//
//	{
//	  "state": "running",
//	  "pid": 1234,
//	  "launches": 2,
//	  "last_canary": 1700000000,
//	  "timestamp": 1700000005
//	}
type CameraStatus struct {
	State      string `json:"state"`
	PID        int    `json:"pid,omitempty"`
	Launches   int    `json:"launches"`
	LastCanary int64  `json:"last_canary"`
	Timestamp  int64  `json:"timestamp"`
}

func encodeStatus(st streaming.WorkerStatus, now time.Time) ([]byte, error) {
	cs := CameraStatus{
		State:     st.State,
		PID:       st.PID,
		Launches:  st.Launches,
		Timestamp: now.Unix(),
	}
	if !st.LastCanary.IsZero() {
		cs.LastCanary = st.LastCanary.Unix()
	}
	return json.Marshal(cs)
}

// PublishStatuses writes every status in one pipeline.
func (r *StatusRepository) PublishStatuses(ctx context.Context, statuses []streaming.WorkerStatus) error {
	if len(statuses) == 0 {
		return nil
	}

	now := time.Now()
	pipe := r.client.Pipeline()
	for _, st := range statuses {
		raw, err := encodeStatus(st, now)
		if err != nil {
			return fmt.Errorf("encode status %s: %w", st.ID, err)
		}
		pipe.Set(ctx, cameraStatusKey(st.ID), raw, r.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish statuses: %w", err)
	}
	return nil
}

// BulkStatus fetches camera:<id>:status for all ids in one MGET.
// Missing keys are ignored.
func (r *StatusRepository) BulkStatus(ctx context.Context, ids []string) (map[string]*CameraStatus, error) {
	out := make(map[string]*CameraStatus, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, cameraStatusKey(id))
	}

	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget status: %w", err)
	}

	for i, v := range vals {
		if v == nil {
			continue // key missing or expired
		}
		var raw string
		switch t := v.(type) {
		case string:
			raw = t
		case []byte:
			raw = string(t)
		default:
			r.log.Warn("unexpected redis type for status", zap.Any("type", t))
			continue
		}
		var st CameraStatus
		if err := json.Unmarshal([]byte(raw), &st); err != nil {
			r.log.Warn("bad status json", zap.String("key", keys[i]), zap.Error(err))
			continue
		}
		out[ids[i]] = &st
	}
	return out, nil
}
