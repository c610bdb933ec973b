package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// pendingTTL 去重标记的最长保留时间，防止异常退出后标记永久残留
const pendingTTL = 24 * time.Hour

// Queue 基于 Redis list 的续费队列，附带去重标记和死信列表
type Queue struct {
	client    *redis.Client
	queueName string
}

// RenewalMessage 待续费订阅
type RenewalMessage struct {
	SubscriptionID int64     `json:"subscription_id"`
	EndDate        time.Time `json:"end_date"`
	EnqueuedAt     time.Time `json:"enqueued_at"`
	Attempt        int       `json:"attempt"`
}

// DeadLetter 重试耗尽的续费
type DeadLetter struct {
	RenewalMessage
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failed_at"`
}

func NewQueue(client *redis.Client, queueName string) *Queue {
	return &Queue{
		client:    client,
		queueName: queueName,
	}
}

func (q *Queue) pendingKey(msg *RenewalMessage) string {
	return fmt.Sprintf("%s:pending:%d:%d", q.queueName, msg.SubscriptionID, msg.EndDate.Unix())
}

func (q *Queue) deadKey() string {
	return q.queueName + ":dead"
}

// Push 直接入队，重试使用
func (q *Queue) Push(ctx context.Context, msg *RenewalMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return q.client.LPush(ctx, q.queueName, data).Err()
}

// Enqueue 同一订阅同一结束日期在出队前只入队一次，重复时返回 false
func (q *Queue) Enqueue(ctx context.Context, msg *RenewalMessage) (bool, error) {
	key := q.pendingKey(msg)
	ok, err := q.client.SetNX(ctx, key, msg.Attempt, pendingTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark pending: %w", err)
	}
	if !ok {
		return false, nil
	}
	if err := q.Push(ctx, msg); err != nil {
		q.client.Del(ctx, key)
		return false, err
	}
	return true, nil
}

// Pop 从队列获取任务（阻塞），同时清除去重标记
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (*RenewalMessage, error) {
	result, err := q.client.BRPop(ctx, timeout, q.queueName).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // 超时，无任务
		}
		return nil, fmt.Errorf("failed to pop from queue: %w", err)
	}

	if len(result) < 2 {
		return nil, nil
	}

	var msg RenewalMessage
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	if err := q.client.Del(ctx, q.pendingKey(&msg)).Err(); err != nil {
		return &msg, fmt.Errorf("failed to clear pending mark: %w", err)
	}

	return &msg, nil
}

// Length 获取队列长度
func (q *Queue) Length(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.queueName).Result()
}

// Bury 写入死信列表，等待人工处理
func (q *Queue) Bury(ctx context.Context, msg *RenewalMessage, reason string, at time.Time) error {
	data, err := json.Marshal(&DeadLetter{RenewalMessage: *msg, Reason: reason, FailedAt: at.UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}
	return q.client.LPush(ctx, q.deadKey(), data).Err()
}

// DeadLetters 最新的 limit 条死信，新的在前
func (q *Queue) DeadLetters(ctx context.Context, limit int64) ([]DeadLetter, error) {
	if limit <= 0 {
		return nil, nil
	}
	raw, err := q.client.LRange(ctx, q.deadKey(), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read dead letters: %w", err)
	}

	letters := make([]DeadLetter, 0, len(raw))
	for _, item := range raw {
		var dl DeadLetter
		if err := json.Unmarshal([]byte(item), &dl); err != nil {
			return nil, fmt.Errorf("failed to unmarshal dead letter: %w", err)
		}
		letters = append(letters, dl)
	}
	return letters, nil
}
