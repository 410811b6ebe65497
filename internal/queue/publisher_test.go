package queue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/d60-Lab/attribution/internal/model"
	"github.com/d60-Lab/attribution/internal/repository"
)

func setupFallbackRepo(t *testing.T) (repository.FallbackRepository, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.FallbackMessage{}))
	return repository.NewFallbackRepository(db), db
}

func TestPublishSendsEnvelope(t *testing.T) {
	var got model.QueueMessage
	var auth string
	broker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer broker.Close()

	repo, _ := setupFallbackRepo(t)
	p := NewPublisher(broker.URL, "secret", 3, time.Second, repo)

	err := p.Publish(context.Background(), "https://app.example.com/api/v1/queue/sync",
		[]byte(`{"tenant_id":"t1"}`), "evt_abc")
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "https://app.example.com/api/v1/queue/sync", got.URL)
	assert.Equal(t, "evt_abc", got.DeduplicationID)
	assert.Equal(t, 3, got.Retries)
	assert.JSONEq(t, `{"tenant_id":"t1"}`, string(got.Body))
}

func TestPublishRetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	broker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer broker.Close()

	repo, _ := setupFallbackRepo(t)
	p := NewPublisher(broker.URL, "", 3, time.Second, repo)

	err := p.Publish(context.Background(), "https://dest", []byte(`{}`), "evt_1")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestPublishOrBufferWritesFallbackRow(t *testing.T) {
	broker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broker.Close()

	repo, db := setupFallbackRepo(t)
	p := NewPublisher(broker.URL, "", 3, time.Second, repo)

	p.PublishOrBuffer(context.Background(), "t1", "https://dest", []byte(`{"x":1}`), "evt_2")

	var rows []model.FallbackMessage
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "t1", rows[0].TenantID)
	assert.Equal(t, model.FallbackStatusPending, rows[0].Status)
	assert.Equal(t, `{"x":1}`, rows[0].Payload)
	require.NotNil(t, rows[0].ErrorReason)
	assert.Contains(t, *rows[0].ErrorReason, "500")
}

func TestPublishOrBufferNoRowOnSuccess(t *testing.T) {
	broker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer broker.Close()

	repo, db := setupFallbackRepo(t)
	p := NewPublisher(broker.URL, "", 3, time.Second, repo)

	p.PublishOrBuffer(context.Background(), "t1", "https://dest", []byte(`{}`), "evt_3")

	var count int64
	require.NoError(t, db.Model(&model.FallbackMessage{}).Count(&count).Error)
	assert.Zero(t, count)
}
