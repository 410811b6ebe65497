package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/attribution/internal/model"
	"github.com/d60-Lab/attribution/internal/repository"
	"github.com/d60-Lab/attribution/pkg/logger"
	"github.com/d60-Lab/attribution/pkg/metrics"
)

// 发布端本地重试预算（broker 不可达时的快速重试，非投递重试）
const publishAttempts = 3

// Publisher 负责把归一化事件交给 HTTP broker；broker 按 deduplicationId
// 在 10 分钟窗口内吞掉重复发布。发布彻底失败时落兜底缓冲表，绝不丢事件
type Publisher struct {
	endpoint string
	token    string
	retries  int
	client   *http.Client
	fallback repository.FallbackRepository
}

func NewPublisher(endpoint, token string, retries int, timeout time.Duration, fallback repository.FallbackRepository) *Publisher {
	if retries <= 0 {
		retries = 3
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Publisher{
		endpoint: endpoint,
		token:    token,
		retries:  retries,
		client:   &http.Client{Timeout: timeout},
		fallback: fallback,
	}
}

// Publish 直接发布，失败返回错误（回灌与重放路径使用，由调用方决定善后）
func (p *Publisher) Publish(ctx context.Context, destination string, body []byte, dedupID string) error {
	msg := model.QueueMessage{
		URL:             destination,
		Body:            body,
		DeduplicationID: dedupID,
		Retries:         p.retries,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal queue message: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= publishAttempts; attempt++ {
		if err := p.post(ctx, payload); err != nil {
			lastErr = err
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("publish failed after %d attempts: %w", publishAttempts, lastErr)
}

// PublishOrBuffer 摄入路径专用：发布失败时把原始载荷写入兜底缓冲表。
// 缓冲写入失败也只记日志——摄入请求对客户端永远快速确认
func (p *Publisher) PublishOrBuffer(ctx context.Context, tenantID, destination string, body []byte, dedupID string) {
	err := p.Publish(ctx, destination, body, dedupID)
	if err == nil {
		return
	}

	metrics.PublishFailures.Inc()
	logger.Warn("broker publish failed, buffering event",
		zap.String("tenant", tenantID),
		zap.String("dedup_id", dedupID),
		zap.Error(err))
	p.Buffer(ctx, tenantID, destination, body, dedupID, err.Error())
}

// Buffer 直接写兜底缓冲（发布失败或限流延迟场景），失败只记日志
func (p *Publisher) Buffer(ctx context.Context, tenantID, destination string, body []byte, dedupID, reason string) {
	buf := &model.FallbackMessage{
		TenantID:    tenantID,
		Destination: destination,
		DedupID:     dedupID,
		Payload:     string(body),
		ErrorReason: &reason,
	}
	if err := p.fallback.Create(ctx, buf); err != nil {
		logger.Error("fallback buffer write failed, event lost to recovery sweep",
			zap.String("tenant", tenantID),
			zap.String("dedup_id", dedupID),
			zap.Error(err))
	}
}

func (p *Publisher) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.endpoint+"/v1/publish", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	// 排空响应体以复用连接
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("broker returned %d", resp.StatusCode)
	}
	return nil
}
