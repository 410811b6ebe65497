package handler

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/d60-Lab/attribution/internal/api/middleware"
	"github.com/d60-Lab/attribution/internal/service"
	"github.com/d60-Lab/attribution/pkg/response"
)

// ListDeadLetters 分页查询死信
// @Summary 查询死信列表
// @Tags 死信
// @Param tenant_id query string false "按租户过滤"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(20)
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/admin/dlq [get]
func (h *Handler) ListDeadLetters(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 20
	}

	rows, total, err := h.replay.List(c.Request.Context(),
		c.Query("tenant_id"), (page-1)*pageSize, pageSize)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"page": page, "page_size": pageSize, "total": total, "list": rows})
}

// GetDeadLetter 查询单条死信
// @Summary 查询死信详情
// @Tags 死信
// @Param id path string true "死信 ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/admin/dlq/{id} [get]
func (h *Handler) GetDeadLetter(c *gin.Context) {
	entry, err := h.replay.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c, "dead letter not found")
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Success(c, entry)
}

// ReplayDeadLetter 手工重放一条死信（每次调用恰好产生一条审计）
// @Summary 重放死信
// @Tags 死信
// @Param id path string true "死信 ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/admin/dlq/{id}/replay [post]
func (h *Handler) ReplayDeadLetter(c *gin.Context) {
	outcome, err := h.replay.Replay(c.Request.Context(), c.Param("id"), middleware.Actor(c))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c, "dead letter not found")
			return
		}
		response.InternalError(c, err)
		return
	}

	data := gin.H{
		"ok":           outcome.PublishErr == nil,
		"replay_count": outcome.Entry.ReplayCount,
	}
	if outcome.PublishErr != nil {
		data["error"] = outcome.PublishErr.Error()
	}
	response.Success(c, data)
}

// DailyReport 租户单日计费报表
// @Summary 租户日报表
// @Tags 报表
// @Param tenant_id path string true "租户 ID"
// @Param date query string false "日期 YYYY-MM-DD，缺省今天"
// @Success 200 {object} response.Response{data=service.DailyReport}
// @Router /api/v1/admin/reports/{tenant_id}/daily [get]
func (h *Handler) DailyReport(c *gin.Context) {
	day := time.Now().UTC()
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			response.BadRequest(c, "date must be YYYY-MM-DD")
			return
		}
		day = parsed
	}

	report, err := h.reporting.Daily(c.Request.Context(), c.Param("tenant_id"), day)
	if err != nil {
		if errors.Is(err, service.ErrReportTimeout) {
			c.JSON(504, response.Response{Code: 50400, Message: err.Error()})
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Success(c, report)
}

// SweepFallback 触发一轮兜底缓冲回灌（外部定时器调用，分布式锁防并跑）
// @Summary 回灌兜底缓冲
// @Tags 任务
// @Success 200 {object} response.Response{data=service.SweepResult}
// @Router /api/v1/admin/jobs/sweep-fallback [post]
func (h *Handler) SweepFallback(c *gin.Context) {
	result, err := h.sweeper.Sweep(c.Request.Context())
	if err != nil {
		if errors.Is(err, service.ErrSweepLocked) {
			response.Success(c, gin.H{"skipped": true, "reason": err.Error()})
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Success(c, result)
}
