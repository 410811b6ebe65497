package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/d60-Lab/attribution/internal/model"
	"github.com/d60-Lab/attribution/internal/repository"
	"github.com/d60-Lab/attribution/internal/rules"
	"github.com/d60-Lab/attribution/internal/tracking"
	"github.com/d60-Lab/attribution/pkg/logger"
	"github.com/d60-Lab/attribution/pkg/metrics"
)

// Delivery broker 回调投递的一条消息
type Delivery struct {
	BrokerMessageID string
	DedupID         string
	Body            []byte
}

// Reconciler 同步工作器：消费投递、匹配会话、套用计费与估值规则后落库。
// 匹配/落库失败写死信并确认消息——重试面在 DLQ 人工重放，不靠 broker
// 无限重投；统计类失败只吞掉
type Reconciler struct {
	sessions         repository.SessionRepository
	dlq              repository.DeadLetterRepository
	stats            *StatsRecorder
	defaultDealValue float64
}

func NewReconciler(sessions repository.SessionRepository, dlq repository.DeadLetterRepository, stats *StatsRecorder, defaultDealValue float64) *Reconciler {
	return &Reconciler{
		sessions:         sessions,
		dlq:              dlq,
		stats:            stats,
		defaultDealValue: defaultDealValue,
	}
}

// Process 处理一条投递。返回 nil 表示消息已被确认（含成功落库、重复投递、
// 已转死信三种情况）；仅在死信本身写不进去时返回错误让 broker 重投
func (r *Reconciler) Process(ctx context.Context, d Delivery) error {
	start := time.Now()
	defer func() {
		metrics.ReconcileDuration.Observe(time.Since(start).Seconds())
	}()

	var event model.InboundEvent
	if err := json.Unmarshal(d.Body, &event); err != nil {
		return r.deadLetter(ctx, d, "", model.StageDecode, err)
	}

	// 匹配阶段：按 (tenant, session) 幂等取或建会话
	normalized := tracking.NormalizeLandingURL(event.LandingURL)
	session, err := r.sessions.Upsert(ctx, event.TenantID, event.SessionID,
		normalized, event.Provider, event.OccurredAt)
	if err != nil {
		return r.deadLetter(ctx, d, event.TenantID, model.StageMatch, err)
	}

	// 分类与估值为纯计算，不会失败
	verdict := rules.Classify(event.Category, event.Action)
	score := r.eventScore(&event)
	enteredPrice, _ := event.MetaNumber("value")
	base := rules.LeadValue(score, enteredPrice, r.defaultDealValue)
	var value float64
	if verdict.Billable {
		value = rules.DecayedValue(base, session.FirstSeenAt, event.OccurredAt)
	}

	sig := &model.Signal{
		TenantID:        event.TenantID,
		SessionID:       event.SessionID,
		DedupID:         tracking.DedupID(&event),
		Category:        string(event.Category),
		Action:          event.Action,
		LandingURL:      normalized,
		Billable:        verdict.Billable,
		BillReason:      verdict.Reason,
		Value:           value,
		BrokerMessageID: d.BrokerMessageID,
		OccurredAt:      event.OccurredAt,
	}
	inserted, err := r.sessions.CreateSignal(ctx, sig)
	if err != nil {
		return r.deadLetter(ctx, d, event.TenantID, model.StagePersist, err)
	}
	if !inserted {
		// 同一逻辑事件的重复投递：无序到达是常态，静默确认
		metrics.SignalsDuplicate.Inc()
		logger.Debug("duplicate delivery acknowledged",
			zap.String("dedup_id", sig.DedupID),
			zap.String("broker_message_id", d.BrokerMessageID))
		return nil
	}

	if score > 0 || event.Category == model.CategoryConversion {
		if err := r.sessions.UpdateValuation(ctx, session.ID, score, value); err != nil {
			return r.deadLetter(ctx, d, event.TenantID, model.StagePersist, err)
		}
	}

	// 统计只尽力而为，任何失败都不回滚任务
	metrics.SignalsPersisted.WithLabelValues(event.TenantID, strconv.FormatBool(verdict.Billable)).Inc()
	if verdict.Billable {
		r.stats.Record(event.TenantID, "billable")
	} else {
		r.stats.Record(event.TenantID, "non_billable")
	}

	logger.Info("signal persisted",
		zap.String("tenant", event.TenantID),
		zap.String("session", event.SessionID),
		zap.String("reason", verdict.Reason),
		zap.Float64("value", value))
	return nil
}

// eventScore 从 metadata 取 0-5 评分，越界收敛到量表内
func (r *Reconciler) eventScore(e *model.InboundEvent) int {
	f, ok := e.MetaNumber("score")
	if !ok {
		return 0
	}
	s := int(f)
	if s < 0 {
		return 0
	}
	if s > 5 {
		return 5
	}
	return s
}

// deadLetter 失败路径：原始载荷连同错误上下文写入死信表后确认消息。
// 死信都写不进去才返回错误，让 broker 在预算内重投
func (r *Reconciler) deadLetter(ctx context.Context, d Delivery, tenantID, stage string, cause error) error {
	metrics.DeadLettered.WithLabelValues(stage).Inc()
	sentry.CaptureException(fmt.Errorf("reconcile %s failed: %w", stage, cause))
	logger.Error("reconcile failed, dead-lettering",
		zap.String("stage", stage),
		zap.String("tenant", tenantID),
		zap.String("broker_message_id", d.BrokerMessageID),
		zap.Error(cause))

	entry := &model.DeadLetter{
		ReceivedAt:      time.Now().UTC(),
		TenantID:        tenantID,
		Stage:           stage,
		ErrorText:       cause.Error(),
		BrokerMessageID: d.BrokerMessageID,
		DedupEventID:    d.DedupID,
		Payload:         string(d.Body),
	}
	if err := r.dlq.Create(ctx, entry); err != nil {
		logger.Error("dead letter write failed, leaving message to broker redelivery",
			zap.Error(err))
		return fmt.Errorf("dead letter write: %w", err)
	}
	return nil
}
