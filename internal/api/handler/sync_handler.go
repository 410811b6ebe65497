package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/attribution/internal/service"
	"github.com/d60-Lab/attribution/pkg/response"
)

// SyncCallback broker 投递回调：消费一条队列消息并对账。
// 返回 2xx 即确认；仅死信都写不进去时回 5xx 让 broker 在预算内重投
// @Summary 队列投递回调（broker 专用）
// @Tags 队列
// @Accept json
// @Produce json
// @Param X-Broker-Message-Id header string false "broker 消息 ID"
// @Param X-Deduplication-Id header string false "发布时的去重 ID"
// @Success 200 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/queue/sync [post]
func (h *Handler) SyncCallback(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	d := service.Delivery{
		BrokerMessageID: c.GetHeader("X-Broker-Message-Id"),
		DedupID:         c.GetHeader("X-Deduplication-Id"),
		Body:            body,
	}
	if err := h.reconcile.Process(c.Request.Context(), d); err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, nil)
}
