package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/d60-Lab/attribution/internal/model"
	"github.com/d60-Lab/attribution/internal/repository"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.Session{}, &model.Signal{},
		&model.FallbackMessage{}, &model.DeadLetter{}, &model.ReplayAudit{}))
	return db
}

func setupCache(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func newTestReconciler(t *testing.T, db *gorm.DB) *Reconciler {
	t.Helper()
	_, cache := setupCache(t)
	stats := NewStatsRecorder(cache, 64)
	return NewReconciler(
		repository.NewSessionRepository(db),
		repository.NewDeadLetterRepository(db),
		stats,
		1000,
	)
}

func eventBody(t *testing.T, mutate func(*model.InboundEvent)) []byte {
	t.Helper()
	e := &model.InboundEvent{
		TenantID:   "t1",
		SessionID:  "s1",
		Category:   model.CategoryInteraction,
		Action:     model.ActionView,
		LandingURL: "https://shop.example.com/?utm_source=google&p=1",
		Provider:   "google_ads",
		Metadata:   map[string]any{},
		OccurredAt: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	if mutate != nil {
		mutate(e)
	}
	body, err := json.Marshal(e)
	require.NoError(t, err)
	return body
}

func TestProcessPersistsSignalAndSession(t *testing.T) {
	db := setupDB(t)
	r := newTestReconciler(t, db)

	body := eventBody(t, func(e *model.InboundEvent) {
		e.Metadata["score"] = 4
	})
	require.NoError(t, r.Process(context.Background(), Delivery{
		BrokerMessageID: "m1", DedupID: "pub-1", Body: body,
	}))

	var sig model.Signal
	require.NoError(t, db.First(&sig).Error)
	assert.True(t, sig.Billable)
	assert.Equal(t, "interaction_view", sig.BillReason)
	assert.Equal(t, "https://shop.example.com/?p=1", sig.LandingURL)
	// score 4 → 默认成交价全额 1000，同日信号 HOT 档 ×0.5
	assert.Equal(t, 500.0, sig.Value)
	assert.Equal(t, "m1", sig.BrokerMessageID)

	var sess model.Session
	require.NoError(t, db.First(&sess).Error)
	assert.Equal(t, "t1", sess.TenantID)
	assert.Equal(t, 4, sess.Score)
	assert.Equal(t, 500.0, sess.EstimatedValue)
}

func TestProcessDuplicateDeliveryIsIdempotent(t *testing.T) {
	db := setupDB(t)
	r := newTestReconciler(t, db)
	body := eventBody(t, nil)

	require.NoError(t, r.Process(context.Background(), Delivery{BrokerMessageID: "m1", Body: body}))
	require.NoError(t, r.Process(context.Background(), Delivery{BrokerMessageID: "m2", Body: body}))

	var signals int64
	require.NoError(t, db.Model(&model.Signal{}).Count(&signals).Error)
	assert.Equal(t, int64(1), signals, "same logical event must persist exactly once")

	var sessions int64
	require.NoError(t, db.Model(&model.Session{}).Count(&sessions).Error)
	assert.Equal(t, int64(1), sessions)

	var dead int64
	require.NoError(t, db.Model(&model.DeadLetter{}).Count(&dead).Error)
	assert.Zero(t, dead)
}

func TestProcessNonBillableSignalHasZeroValue(t *testing.T) {
	db := setupDB(t)
	r := newTestReconciler(t, db)

	body := eventBody(t, func(e *model.InboundEvent) {
		e.Action = model.ActionScrollDepth
		e.Metadata["score"] = 5
	})
	require.NoError(t, r.Process(context.Background(), Delivery{Body: body}))

	var sig model.Signal
	require.NoError(t, db.First(&sig).Error)
	assert.False(t, sig.Billable)
	assert.Equal(t, "scroll_depth", sig.BillReason)
	assert.Zero(t, sig.Value)
}

func TestProcessDecodeFailureDeadLetters(t *testing.T) {
	db := setupDB(t)
	r := newTestReconciler(t, db)

	err := r.Process(context.Background(), Delivery{
		BrokerMessageID: "m1", DedupID: "pub-1", Body: []byte("not json"),
	})
	require.NoError(t, err, "dead-lettered message must still be acknowledged")

	var entry model.DeadLetter
	require.NoError(t, db.First(&entry).Error)
	assert.Equal(t, model.StageDecode, entry.Stage)
	assert.Equal(t, "not json", entry.Payload)
	assert.Equal(t, "m1", entry.BrokerMessageID)
	assert.Equal(t, "pub-1", entry.DedupEventID)
	assert.Zero(t, entry.ReplayCount)
}

func TestProcessPersistFailureDeadLetters(t *testing.T) {
	db := setupDB(t)
	r := newTestReconciler(t, db)
	require.NoError(t, db.Migrator().DropTable(&model.Signal{}))

	err := r.Process(context.Background(), Delivery{BrokerMessageID: "m1", Body: eventBody(t, nil)})
	require.NoError(t, err)

	var entry model.DeadLetter
	require.NoError(t, db.First(&entry).Error)
	assert.Equal(t, model.StagePersist, entry.Stage)
	assert.Equal(t, "t1", entry.TenantID)
	assert.NotEmpty(t, entry.ErrorText)
}

func TestProcessReturnsErrorWhenDeadLetterWriteFails(t *testing.T) {
	db := setupDB(t)
	r := newTestReconciler(t, db)
	require.NoError(t, db.Migrator().DropTable(&model.Signal{}))
	require.NoError(t, db.Migrator().DropTable(&model.DeadLetter{}))

	err := r.Process(context.Background(), Delivery{Body: eventBody(t, nil)})
	assert.Error(t, err, "only a failed DLQ write may trigger broker redelivery")
}
