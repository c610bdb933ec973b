package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/qs3c/plugin_go_server/internal/model"
	"github.com/qs3c/plugin_go_server/internal/pkg/apperr"
	"github.com/qs3c/plugin_go_server/internal/pkg/logger"
	"github.com/qs3c/plugin_go_server/internal/pkg/metrics"
	"github.com/qs3c/plugin_go_server/internal/pkg/queue"
)

// Renewer 续费任务用到的订阅操作
type Renewer interface {
	Get(id int64) (*model.PluginSubscription, error)
	Renew(ctx context.Context, id int64, newEndDate *time.Time) (*model.PluginSubscription, error)
	RenewalBase(sub *model.PluginSubscription) time.Time
}

// Biller 续费成功后出账
type Biller interface {
	CreateCycleBill(subscriptionID int64, periodStart *time.Time) (*model.PluginBilling, error)
}

// Processor 续费任务处理器
type Processor struct {
	subs        Renewer
	bills       Biller
	renewQ      *queue.Queue
	maxAttempts int
	log         *logrus.Logger
	metrics     *metrics.Metrics
}

// NewProcessor 创建任务处理器
func NewProcessor(subs Renewer, bills Biller, renewQ *queue.Queue, maxAttempts int, log *logrus.Logger, m *metrics.Metrics) *Processor {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Processor{
		subs:        subs,
		bills:       bills,
		renewQ:      renewQ,
		maxAttempts: maxAttempts,
		log:         logger.OrDefault(log),
		metrics:     m,
	}
}

// Process 续费一个计费周期并为新周期出账
// 订阅结束日期与消息不一致说明已被续费或修改，直接丢弃
func (p *Processor) Process(ctx context.Context, msg *queue.RenewalMessage) error {
	fields := logrus.Fields{"subscription_id": msg.SubscriptionID, "attempt": msg.Attempt}

	sub, err := p.subs.Get(msg.SubscriptionID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			p.log.WithFields(fields).Warn("renewal target no longer exists")
			return nil
		}
		return p.retry(ctx, msg, err)
	}
	if sub.EndDate == nil || !sub.EndDate.Equal(msg.EndDate) {
		p.log.WithFields(fields).Info("stale renewal message skipped")
		return nil
	}
	periodStart := p.subs.RenewalBase(sub)

	if _, err := p.subs.Renew(ctx, sub.ID, nil); err != nil {
		if errors.Is(err, apperr.ErrInvalidTransition) || errors.Is(err, apperr.ErrInvalidArgument) {
			p.log.WithFields(fields).WithError(err).Warn("subscription not renewable")
			return nil
		}
		return p.retry(ctx, msg, err)
	}

	bill, err := p.bills.CreateCycleBill(sub.ID, &periodStart)
	if err != nil {
		// 续费已生效，重新入队会因结束日期变化被丢弃，只记录
		p.log.WithFields(fields).WithError(err).Error("renewed subscription but billing failed")
		return fmt.Errorf("create cycle bill for subscription %d: %w", sub.ID, err)
	}

	p.log.WithFields(fields).WithField("billing_id", bill.ID).Info("subscription renewed")
	return nil
}

func (p *Processor) retry(ctx context.Context, msg *queue.RenewalMessage, cause error) error {
	if p.renewQ == nil {
		return cause
	}
	if msg.Attempt >= p.maxAttempts {
		if err := p.renewQ.Bury(ctx, msg, cause.Error(), time.Now()); err != nil {
			p.log.WithError(err).WithField("subscription_id", msg.SubscriptionID).Error("failed to bury renewal")
		}
		p.log.WithError(cause).WithField("subscription_id", msg.SubscriptionID).Error("renewal abandoned")
		return cause
	}
	next := *msg
	next.Attempt++
	if err := p.renewQ.Push(ctx, &next); err != nil {
		return fmt.Errorf("requeue renewal %d: %w (cause: %v)", msg.SubscriptionID, err, cause)
	}
	p.log.WithError(cause).WithFields(logrus.Fields{
		"subscription_id": msg.SubscriptionID,
		"attempt":         next.Attempt,
	}).Warn("renewal requeued")
	return cause
}

// Consume 循环从队列取任务直到 ctx 取消
func (p *Processor) Consume(ctx context.Context, workerID int, pollTimeout time.Duration) {
	for {
		select {
		case <-ctx.Done():
			p.log.WithField("worker", workerID).Info("worker shutting down")
			return
		default:
		}

		msg, err := p.renewQ.Pop(ctx, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.WithError(err).WithField("worker", workerID).Error("failed to pop renewal")
			continue
		}
		if msg == nil {
			continue // 超时，继续等待
		}

		if length, err := p.renewQ.Length(ctx); err == nil {
			p.metrics.RenewalQueueDepth.Set(float64(length))
		}
		if err := p.Process(ctx, msg); err != nil {
			p.log.WithError(err).WithFields(logrus.Fields{
				"worker":          workerID,
				"subscription_id": msg.SubscriptionID,
			}).Error("renewal failed")
		}
	}
}
