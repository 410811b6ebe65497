package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/attribution/internal/repository"
	"github.com/d60-Lab/attribution/pkg/logger"
)

const reportCacheTTL = 5 * time.Minute

// ErrReportTimeout 报表查询超时。底层查询未被强制取消，可能仍在后台
// 完成——调用方须把结果当作未知，而不是失败
var ErrReportTimeout = errors.New("report query timed out, outcome unknown")

// DailyReport 租户单日计费报表
type DailyReport struct {
	TenantID    string    `json:"tenant_id"`
	Day         string    `json:"day"`
	Billable    int64     `json:"billable"`
	NonBillable int64     `json:"non_billable"`
	GeneratedAt time.Time `json:"generated_at"`
}

// ReportingService 管理端报表：缓存优先，缺失时对主库做聚合，
// 聚合用显式超时竞速包住
type ReportingService struct {
	cache    *redis.Client
	sessions repository.SessionRepository
	timeout  time.Duration
}

func NewReportingService(cache *redis.Client, sessions repository.SessionRepository, timeout time.Duration) *ReportingService {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ReportingService{cache: cache, sessions: sessions, timeout: timeout}
}

// Daily 取租户某日报表。缓存未命中时聚合主库并回填缓存；聚合超过
// timeout 返回 ErrReportTimeout
func (s *ReportingService) Daily(ctx context.Context, tenantID string, day time.Time) (*DailyReport, error) {
	key := fmt.Sprintf("report:daily:%s:%s", tenantID, day.Format("20060102"))

	if data, err := s.cache.Get(ctx, key).Bytes(); err == nil {
		var cached DailyReport
		if uErr := json.Unmarshal(data, &cached); uErr == nil {
			return &cached, nil
		}
	}

	type aggResult struct {
		billable    int64
		nonBillable int64
		err         error
	}
	ch := make(chan aggResult, 1)
	go func() {
		// 不随请求取消：超时后查询照常在后台跑完，结果对调用方未知
		b, nb, err := s.sessions.DailyCounts(context.Background(), tenantID, day)
		ch <- aggResult{billable: b, nonBillable: nb, err: err}
	}()

	var res aggResult
	select {
	case <-time.After(s.timeout):
		return nil, ErrReportTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.err != nil {
		return nil, res.err
	}

	report := &DailyReport{
		TenantID:    tenantID,
		Day:         day.Format("2006-01-02"),
		Billable:    res.billable,
		NonBillable: res.nonBillable,
		GeneratedAt: time.Now().UTC(),
	}
	if payload, err := json.Marshal(report); err == nil {
		if err := s.cache.Set(ctx, key, payload, reportCacheTTL).Err(); err != nil {
			logger.Warn("report cache write failed, swallowed", zap.Error(err))
		}
	}
	return report, nil
}
