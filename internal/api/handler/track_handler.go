package handler

import (
	"encoding/json"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/attribution/internal/model"
	"github.com/d60-Lab/attribution/internal/tracking"
	"github.com/d60-Lab/attribution/pkg/metrics"
	"github.com/d60-Lab/attribution/pkg/redisx"
	"github.com/d60-Lab/attribution/pkg/response"
)

// Track 接收客户端埋点事件（快速确认，异步对账）
// @Summary 上报埋点事件
// @Tags 埋点
// @Accept json
// @Produce json
// @Param request body model.InboundEvent true "事件内容"
// @Success 202 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/track [post]
func (h *Handler) Track(c *gin.Context) {
	var event model.InboundEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	dedupID := tracking.DedupID(&event)

	body, err := json.Marshal(&event)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	// 每租户×渠道并发上限；缓存故障时放行（成本控制让位于可用性）
	token := h.semaphore.Acquire(c.Request.Context(),
		redisx.SemKey(event.TenantID, event.Provider), h.semLimit, h.semTTL)
	if h.semLimit > 0 && token == nil {
		// 槽位耗尽不丢事件：直接进兜底缓冲，由回收任务限速补投
		h.publisher.Buffer(c.Request.Context(), event.TenantID,
			h.callbackBaseURL+SyncCallbackPath, body, dedupID, "throttled")
		response.Accepted(c, gin.H{"dedup_id": dedupID, "throttled": true})
		return
	}
	defer h.semaphore.Release(c.Request.Context(), token)

	metrics.EventsIngested.WithLabelValues(event.TenantID, string(event.Category)).Inc()
	h.publisher.PublishOrBuffer(c.Request.Context(), event.TenantID,
		h.callbackBaseURL+SyncCallbackPath, body, dedupID)

	// 下游成败一律不回传：摄入端永远快速确认
	response.Accepted(c, gin.H{"dedup_id": dedupID})
}
