package handler

import (
	"time"

	"github.com/d60-Lab/attribution/internal/queue"
	"github.com/d60-Lab/attribution/internal/service"
	"github.com/d60-Lab/attribution/pkg/redisx"
)

// Handler 聚合各 API 依赖
type Handler struct {
	publisher *queue.Publisher
	reconcile *service.Reconciler
	replay    *service.ReplayService
	sweeper   *service.FallbackSweeper
	reporting *service.ReportingService
	semaphore *redisx.Semaphore

	callbackBaseURL string
	semLimit        int
	semTTL          time.Duration
}

func New(
	publisher *queue.Publisher,
	reconcile *service.Reconciler,
	replay *service.ReplayService,
	sweeper *service.FallbackSweeper,
	reporting *service.ReportingService,
	semaphore *redisx.Semaphore,
	callbackBaseURL string,
	semLimit int,
	semTTL time.Duration,
) *Handler {
	return &Handler{
		publisher:       publisher,
		reconcile:       reconcile,
		replay:          replay,
		sweeper:         sweeper,
		reporting:       reporting,
		semaphore:       semaphore,
		callbackBaseURL: callbackBaseURL,
		semLimit:        semLimit,
		semTTL:          semTTL,
	}
}

// SyncCallbackPath broker 回投路径，发布与重放共用
const SyncCallbackPath = "/api/v1/queue/sync"
