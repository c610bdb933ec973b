package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/qs3c/plugin_go_server/config"
	"github.com/qs3c/plugin_go_server/internal/model"
	"github.com/qs3c/plugin_go_server/internal/pkg/logger"
	"github.com/qs3c/plugin_go_server/internal/pkg/metrics"
	"github.com/qs3c/plugin_go_server/internal/pkg/queue"
)

const (
	JobExpire  = "expire"
	JobRenew   = "renew"
	JobOverdue = "overdue"
)

// Subscriptions 定时任务用到的订阅操作
type Subscriptions interface {
	ExpireDue(ctx context.Context, now time.Time) (int, error)
	ListRenewable(now time.Time) ([]*model.PluginSubscription, error)
}

// Billings 定时任务用到的账单操作
type Billings interface {
	MarkOverdueDue(now time.Time) (int, error)
}

// Scheduler 订阅过期、续费入队、账单逾期三个周期任务
type Scheduler struct {
	subs    Subscriptions
	bills   Billings
	renewQ  *queue.Queue
	specs   config.SchedulerConfig
	log     *logrus.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	cron *cron.Cron
}

func NewScheduler(
	subs Subscriptions,
	bills Billings,
	renewQ *queue.Queue,
	specs config.SchedulerConfig,
	log *logrus.Logger,
	m *metrics.Metrics,
) *Scheduler {
	if m == nil {
		m = metrics.NewNop()
	}
	return &Scheduler{
		subs:    subs,
		bills:   bills,
		renewQ:  renewQ,
		specs:   specs,
		log:     logger.OrDefault(log),
		metrics: m,
		now:     time.Now,
		cron:    cron.New(cron.WithLocation(time.UTC)),
	}
}

// Start 注册任务并启动，表达式为空的任务不注册
func (s *Scheduler) Start() error {
	jobs := map[string]string{
		JobExpire:  s.specs.ExpireSpec,
		JobRenew:   s.specs.RenewSpec,
		JobOverdue: s.specs.OverdueSpec,
	}
	for name, spec := range jobs {
		if spec == "" {
			continue
		}
		job := name
		if _, err := s.cron.AddFunc(spec, func() {
			if _, err := s.RunOnce(context.Background(), job); err != nil {
				s.log.WithError(err).WithField("job", job).Error("scheduled job failed")
			}
		}); err != nil {
			return fmt.Errorf("invalid %s schedule %q: %w", job, spec, err)
		}
		s.log.WithFields(logrus.Fields{"job": job, "spec": spec}).Info("scheduled job registered")
	}

	s.cron.Start()
	s.log.Info("Scheduler started")
	return nil
}

// Stop 停止调度并等待运行中的任务结束
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out with jobs still running")
	}
	s.log.Info("Scheduler stopped")
}

// RunOnce 立即执行一次指定任务，返回处理条数
func (s *Scheduler) RunOnce(ctx context.Context, job string) (int, error) {
	now := s.now().UTC()
	var (
		n   int
		err error
	)
	switch job {
	case JobExpire:
		n, err = s.subs.ExpireDue(ctx, now)
	case JobRenew:
		n, err = s.enqueueRenewals(ctx, now)
	case JobOverdue:
		n, err = s.bills.MarkOverdueDue(now)
	default:
		return 0, fmt.Errorf("unknown job %q", job)
	}

	result := "ok"
	if err != nil {
		result = "error"
	}
	s.metrics.SchedulerRuns.WithLabelValues(job, result).Inc()
	s.log.WithFields(logrus.Fields{"job": job, "processed": n, "result": result}).Info("scheduled job finished")
	return n, err
}

func (s *Scheduler) enqueueRenewals(ctx context.Context, now time.Time) (int, error) {
	if s.renewQ == nil {
		return 0, fmt.Errorf("renewal queue not configured")
	}
	subs, err := s.subs.ListRenewable(now)
	if err != nil {
		return 0, err
	}

	pushed := 0
	for _, sub := range subs {
		msg := &queue.RenewalMessage{
			SubscriptionID: sub.ID,
			EnqueuedAt:     now,
			Attempt:        1,
		}
		if sub.EndDate != nil {
			msg.EndDate = *sub.EndDate
		}
		added, err := s.renewQ.Enqueue(ctx, msg)
		if err != nil {
			return pushed, fmt.Errorf("push renewal %d: %w", sub.ID, err)
		}
		if added {
			pushed++
		}
	}

	if depth, err := s.renewQ.Length(ctx); err == nil {
		s.metrics.RenewalQueueDepth.Set(float64(depth))
	}
	return pushed, nil
}
