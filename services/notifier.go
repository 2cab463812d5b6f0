package services

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"bookmarket_go/models"

	"github.com/redis/go-redis/v9"
)

// NotificationStream 通知写入的Redis流，聊天机器人从该流消费
const NotificationStream = "bookmarket:notifications"

// 通知受众
const (
	AudienceAdmins = "admins"
	AudienceUser   = "user"
)

// Notification 发给管理员或单个用户的通知
type Notification struct {
	Signal    Signal              `json:"signal"`
	UserID    int64               `json:"user_id,omitempty"`
	ChatID    int64               `json:"chat_id,omitempty"`
	Cascade   bool                `json:"cascade,omitempty"`
	Request   *models.BookRequest `json:"request,omitempty"`
	Listing   *models.Listing     `json:"listing,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}

// Notifier 通知投递
type Notifier interface {
	NotifyAdmins(ctx context.Context, n Notification) error
	NotifyUser(ctx context.Context, n Notification) error
}

// ==================== Redis 流 ====================

// StreamNotifier 把通知追加到Redis流
type StreamNotifier struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewStreamNotifier 创建流通知器，stream 为空时使用默认流
func NewStreamNotifier(client *redis.Client, stream string) *StreamNotifier {
	if stream == "" {
		stream = NotificationStream
	}
	return &StreamNotifier{client: client, stream: stream, maxLen: 10000}
}

// NotifyAdmins 追加一条管理员通知
func (s *StreamNotifier) NotifyAdmins(ctx context.Context, n Notification) error {
	return s.add(ctx, AudienceAdmins, n)
}

// NotifyUser 追加一条用户通知
func (s *StreamNotifier) NotifyUser(ctx context.Context, n Notification) error {
	return s.add(ctx, AudienceUser, n)
}

func (s *StreamNotifier) add(ctx context.Context, audience string, n Notification) error {
	if s.client == nil {
		return nil
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"audience": audience,
			"signal":   string(n.Signal),
			"user_id":  strconv.FormatInt(n.UserID, 10),
			"chat_id":  strconv.FormatInt(n.ChatID, 10),
			"payload":  string(payload),
		},
	}).Err()
}

// ==================== 组合 ====================

// MultiNotifier 依次投递到所有通知器，单个失败不影响其余
type MultiNotifier []Notifier

// NotifyAdmins 投递管理员通知
func (m MultiNotifier) NotifyAdmins(ctx context.Context, n Notification) error {
	var errs []error
	for _, notifier := range m {
		if notifier == nil {
			continue
		}
		if err := notifier.NotifyAdmins(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NotifyUser 投递用户通知
func (m MultiNotifier) NotifyUser(ctx context.Context, n Notification) error {
	var errs []error
	for _, notifier := range m {
		if notifier == nil {
			continue
		}
		if err := notifier.NotifyUser(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NopNotifier 丢弃所有通知
type NopNotifier struct{}

func (NopNotifier) NotifyAdmins(context.Context, Notification) error { return nil }
func (NopNotifier) NotifyUser(context.Context, Notification) error   { return nil }
