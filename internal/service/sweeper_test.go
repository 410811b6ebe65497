package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/d60-Lab/attribution/internal/model"
	"github.com/d60-Lab/attribution/internal/queue"
	"github.com/d60-Lab/attribution/internal/repository"
	"github.com/d60-Lab/attribution/pkg/redisx"
)

func seedPending(t *testing.T, db *gorm.DB, n int) {
	t.Helper()
	repo := repository.NewFallbackRepository(db)
	for i := 0; i < n; i++ {
		require.NoError(t, repo.Create(context.Background(), &model.FallbackMessage{
			TenantID:    "t1",
			Destination: "https://app.example.com/api/v1/queue/sync",
			DedupID:     "evt_" + string(rune('a'+i)),
			Payload:     `{"tenant_id":"t1"}`,
		}))
	}
}

func newSweeper(t *testing.T, db *gorm.DB, brokerURL string) (*FallbackSweeper, *redisx.Lock) {
	t.Helper()
	_, cache := setupCache(t)
	lock := redisx.NewLock(cache)
	pub := queue.NewPublisher(brokerURL, "", 3, time.Second,
		repository.NewFallbackRepository(db))
	return NewFallbackSweeper(lock, repository.NewFallbackRepository(db), pub,
		1000, 50, time.Minute), lock
}

func TestSweepRecoversPendingRows(t *testing.T) {
	db := setupDB(t)
	seedPending(t, db, 3)

	broker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer broker.Close()

	sweeper, _ := newSweeper(t, db, broker.URL)
	result, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, result.Scanned)
	assert.Equal(t, 3, result.Recovered)
	assert.Zero(t, result.Failed)

	var pending int64
	require.NoError(t, db.Model(&model.FallbackMessage{}).
		Where("status = ?", model.FallbackStatusPending).Count(&pending).Error)
	assert.Zero(t, pending)

	var recovered []model.FallbackMessage
	require.NoError(t, db.Where("status = ?", model.FallbackStatusRecovered).Find(&recovered).Error)
	require.Len(t, recovered, 3)
	for _, row := range recovered {
		assert.NotNil(t, row.ProcessedAt, "recovered rows carry their processing time")
	}
}

func TestSweepLeavesFailuresPending(t *testing.T) {
	db := setupDB(t)
	seedPending(t, db, 2)

	broker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broker.Close()

	sweeper, _ := newSweeper(t, db, broker.URL)
	result, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Failed)
	assert.Zero(t, result.Recovered)

	var rows []model.FallbackMessage
	require.NoError(t, db.Find(&rows).Error)
	for _, row := range rows {
		assert.Equal(t, model.FallbackStatusPending, row.Status)
		require.NotNil(t, row.ErrorReason)
		assert.Contains(t, *row.ErrorReason, "502")
	}
}

func TestSweepSkipsWhenLockHeld(t *testing.T) {
	db := setupDB(t)
	broker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer broker.Close()

	sweeper, lock := newSweeper(t, db, broker.URL)
	require.True(t, lock.TryAcquire(context.Background(), "fallback_sweep", time.Minute))

	_, err := sweeper.Sweep(context.Background())
	assert.ErrorIs(t, err, ErrSweepLocked)
}

func TestSweepReleasesLock(t *testing.T) {
	db := setupDB(t)
	broker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer broker.Close()

	sweeper, _ := newSweeper(t, db, broker.URL)
	_, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	_, err = sweeper.Sweep(context.Background())
	assert.NoError(t, err, "lock must be released after a round")
}
