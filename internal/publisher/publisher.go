// Package publisher 向 Kafka 发布交易事件
//
// 事件发布是尽力而为的：发布失败只记录日志，不影响主流程。
package publisher

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/cloudverse/broker/internal/kafka"
	"github.com/cloudverse/broker/pkg/logger"
)

// OrderPaidEvent 订单支付成功事件
type OrderPaidEvent struct {
	OrderID       string `json:"order_id"`
	OwnerType     string `json:"owner_type"`
	OwnerID       string `json:"owner_id"`
	PaymentMethod string `json:"payment_method"`
	PayAmount     string `json:"pay_amount"`
	BalanceAmount string `json:"balance_amount"`
	CouponAmount  string `json:"coupon_amount"`
	PaymentID     string `json:"payment_id"`
	PayTime       int64  `json:"pay_time"`
}

// OrderRefundedEvent 订单退款完成事件
type OrderRefundedEvent struct {
	OrderID      string `json:"order_id"`
	OwnerType    string `json:"owner_type"`
	OwnerID      string `json:"owner_id"`
	RefundID     string `json:"refund_id"`
	RefundAmount string `json:"refund_amount"`
	RealRefund   string `json:"real_refund"`
	CouponRefund string `json:"coupon_refund"`
	RefundTime   int64  `json:"refund_time"`
}

// ResourceDeliveredEvent 资源交付结果事件
type ResourceDeliveredEvent struct {
	OrderID      string `json:"order_id"`
	ResourceID   string `json:"resource_id"`
	ResourceType string `json:"resource_type"`
	InstanceID   string `json:"instance_id,omitempty"`
	Success      bool   `json:"success"`
	Reason       string `json:"reason,omitempty"`
	DeliverTime  int64  `json:"deliver_time"`
}

// EventPublisher 交易事件发布器，producer 为 nil 时所有发布都是空操作
type EventPublisher struct {
	producer *kafka.Producer
}

// NewEventPublisher 创建事件发布器
func NewEventPublisher(producer *kafka.Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOrderPaid 发布订单支付成功事件
func (p *EventPublisher) PublishOrderPaid(ctx context.Context, event *OrderPaidEvent) {
	if event.PayTime == 0 {
		event.PayTime = time.Now().UnixMilli()
	}
	p.publish(ctx, kafka.TopicOrderPaid, event.OrderID, event)
}

// PublishOrderRefunded 发布订单退款完成事件
func (p *EventPublisher) PublishOrderRefunded(ctx context.Context, event *OrderRefundedEvent) {
	if event.RefundTime == 0 {
		event.RefundTime = time.Now().UnixMilli()
	}
	p.publish(ctx, kafka.TopicOrderRefunded, event.OrderID, event)
}

// PublishResourceDelivered 发布资源交付结果事件
func (p *EventPublisher) PublishResourceDelivered(ctx context.Context, event *ResourceDeliveredEvent) {
	if event.DeliverTime == 0 {
		event.DeliverTime = time.Now().UnixMilli()
	}
	p.publish(ctx, kafka.TopicResourceDelivered, event.OrderID, event)
}

func (p *EventPublisher) publish(ctx context.Context, topic, key string, event interface{}) {
	if p == nil || p.producer == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		logger.Error("marshal event failed",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return
	}

	if err := p.producer.SendWithContext(ctx, topic, []byte(key), data); err != nil {
		logger.Error("publish event failed",
			zap.String("topic", topic),
			zap.String("key", key),
			zap.Error(err),
		)
	}
}
