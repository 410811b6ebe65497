package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/d60-Lab/attribution/internal/model"
	"github.com/d60-Lab/attribution/internal/queue"
	"github.com/d60-Lab/attribution/internal/repository"
	"github.com/d60-Lab/attribution/pkg/logger"
	"github.com/d60-Lab/attribution/pkg/metrics"
)

// ReplayOutcome 一次重放的结果：条目已更新计数，PublishErr 非空表示
// 重新发布失败（计数依然自增，错误进审计）
type ReplayOutcome struct {
	Entry      *model.DeadLetter
	PublishErr error
}

// ReplayService 死信重放：仅限管理员手工触发，不做自动重驱，
// 避免系统性故障下的重试风暴
type ReplayService struct {
	dlq         repository.DeadLetterRepository
	publisher   *queue.Publisher
	destination string // broker 回投本服务的消费地址
}

func NewReplayService(dlq repository.DeadLetterRepository, publisher *queue.Publisher, destination string) *ReplayService {
	return &ReplayService{dlq: dlq, publisher: publisher, destination: destination}
}

// Get 查询单条死信
func (s *ReplayService) Get(ctx context.Context, dlqID string) (*model.DeadLetter, error) {
	return s.dlq.GetByID(ctx, dlqID)
}

// List 分页查询死信（接收时间倒序）
func (s *ReplayService) List(ctx context.Context, tenantID string, offset, limit int) ([]*model.DeadLetter, int64, error) {
	return s.dlq.List(ctx, tenantID, offset, limit)
}

// Replay 把死信载荷重新走发布通道。无论发布成败：replay_count +1、
// 刷新 last_replay_*、写且只写一条审计行
func (s *ReplayService) Replay(ctx context.Context, dlqID, actor string) (*ReplayOutcome, error) {
	entry, err := s.dlq.GetByID(ctx, dlqID)
	if err != nil {
		return nil, err
	}

	// 原 dedup id 在 broker 窗口内会被静默吞掉，导致“成功却没投递”；
	// 带上重放序号保证每次管理员操作都真正可投递
	attempt := entry.ReplayCount + 1
	dedupID := fmt.Sprintf("%s:r%d", entry.DedupEventID, attempt)

	publishErr := s.publisher.Publish(ctx, s.destination, []byte(entry.Payload), dedupID)

	var errText *string
	if publishErr != nil {
		msg := publishErr.Error()
		errText = &msg
	}

	updated, err := s.dlq.RecordReplay(ctx, dlqID, errText)
	if err != nil {
		return nil, fmt.Errorf("record replay: %w", err)
	}

	// 审计行无条件落库：成功失败都要留痕
	audit := &model.ReplayAudit{
		DeadLetterID: dlqID,
		Actor:        actor,
		ReplayCount:  updated.ReplayCount,
		Error:        errText,
	}
	if err := s.dlq.CreateAudit(ctx, audit); err != nil {
		return nil, fmt.Errorf("replay audit write: %w", err)
	}

	outcome := "success"
	if publishErr != nil {
		outcome = "failure"
	}
	metrics.Replays.WithLabelValues(outcome).Inc()
	logger.Info("dlq replay executed",
		zap.String("dlq_id", dlqID),
		zap.String("actor", actor),
		zap.Int("replay_count", updated.ReplayCount),
		zap.String("outcome", outcome))

	return &ReplayOutcome{Entry: updated, PublishErr: publishErr}, nil
}
