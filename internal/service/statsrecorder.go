package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/attribution/pkg/logger"
)

// 日计数器保留 40 天，覆盖常见账单周期
const statTTL = 40 * 24 * time.Hour

type statJob struct {
	tenantID string
	name     string
	day      time.Time
}

// StatsRecorder 异步的尽力而为统计执行器：计数失败只记日志，绝不影响
// 对账任务的结果。队列满直接丢弃（统计丢点可接受，阻塞流水线不可接受）
type StatsRecorder struct {
	cache *redis.Client
	ch    chan statJob
}

func NewStatsRecorder(cache *redis.Client, queueSize int) *StatsRecorder {
	if queueSize <= 0 {
		queueSize = 10000
	}
	return &StatsRecorder{cache: cache, ch: make(chan statJob, queueSize)}
}

func (r *StatsRecorder) Start(workers int) func(context.Context) error {
	if workers <= 0 {
		workers = 2
	}
	stopCh := make(chan struct{})
	for i := 0; i < workers; i++ {
		go func() {
			for {
				select {
				case job := <-r.ch:
					ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
					r.incr(ctx, job)
					cancel()
				case <-stopCh:
					return
				}
			}
		}()
	}
	return func(ctx context.Context) error {
		close(stopCh)
		// workers 已退出，残留队列由 stop 自己排空，最多两秒
		deadline := time.After(2 * time.Second)
		for {
			select {
			case job := <-r.ch:
				jobCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				r.incr(jobCtx, job)
				cancel()
			default:
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-deadline:
				logger.Warn("stats drain timed out, dropping queued counters",
					zap.Int("remaining", len(r.ch)))
				return nil
			default:
			}
		}
	}
}

// Record 入队一次计数，永不阻塞调用方
func (r *StatsRecorder) Record(tenantID, name string) {
	select {
	case r.ch <- statJob{tenantID: tenantID, name: name, day: time.Now().UTC()}:
	default:
		logger.Warn("stats queue full, drop counter",
			zap.String("tenant", tenantID), zap.String("name", name))
	}
}

func (r *StatsRecorder) incr(ctx context.Context, job statJob) {
	key := StatKey(job.tenantID, job.name, job.day)
	n, err := r.cache.Incr(ctx, key).Result()
	if err != nil {
		logger.Warn("stats incr failed, swallowed",
			zap.String("key", key), zap.Error(err))
		return
	}
	// 首次创建时设置过期，避免每次写都多一跳
	if n == 1 {
		if err := r.cache.PExpire(ctx, key, statTTL).Err(); err != nil {
			logger.Warn("stats expire failed, swallowed",
				zap.String("key", key), zap.Error(err))
		}
	}
}

// QueueLen 返回当前队列长度（采样值）
func (r *StatsRecorder) QueueLen() int { return len(r.ch) }

// StatKey 统计键：stats:<tenant>:<yyyymmdd>:<name>
func StatKey(tenantID, name string, day time.Time) string {
	return fmt.Sprintf("stats:%s:%s:%s", tenantID, day.Format("20060102"), name)
}
