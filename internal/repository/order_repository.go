package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/cloudverse/broker/internal/model"
)

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrResourceNotFound = errors.New("order resource not found")
	ErrActionConflict   = errors.New("order action conflict")
)

// OrderRepository 订单仓储接口
type OrderRepository interface {
	// Transaction 执行事务
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Create 创建订单及其资源记录
	Create(ctx context.Context, order *model.Order, resources []*model.Resource) error

	// GetByID 查询订单 (过滤软删除)
	GetByID(ctx context.Context, orderID string) (*model.Order, error)

	// GetByIDForUpdate 查询订单并加行锁 (SELECT FOR UPDATE)
	GetByIDForUpdate(ctx context.Context, orderID string) (*model.Order, error)

	// UpdatePaid 更新订单为已支付
	UpdatePaid(ctx context.Context, order *model.Order) error

	// UpdateCancelled 更新订单为作废
	UpdateCancelled(ctx context.Context, order *model.Order) error

	// UpdateStatus 更新订单支付状态
	UpdateStatus(ctx context.Context, orderID string, status model.OrderStatus) error

	// UpdateTradingStatus 更新订单交易状态
	UpdateTradingStatus(ctx context.Context, orderID string, tradingStatus model.TradingStatus) error

	// SetRefundSuccess 更新订单为退款完成状态
	SetRefundSuccess(ctx context.Context, orderID string, partRefund bool) error

	// AcquireAction 获取订单动作互斥标志 (none -> action)
	// 已被占用时返回 ErrActionConflict
	AcquireAction(ctx context.Context, orderID string, action model.OrderAction) error

	// ReleaseAction 释放订单动作互斥标志 (action -> none)
	ReleaseAction(ctx context.Context, orderID string, action model.OrderAction) error

	// ListResources 查询订单的资源记录
	ListResources(ctx context.Context, orderID string) ([]*model.Resource, error)

	// ListResourcesForUpdate 查询订单的资源记录并加行锁
	ListResourcesForUpdate(ctx context.Context, orderID string) ([]*model.Resource, error)

	// UpdateResourceDeliverOK 标记资源交付成功
	UpdateResourceDeliverOK(ctx context.Context, resourceID, instanceID string) error

	// UpdateResourceDeliverFailed 标记资源交付失败，记录截断后的失败描述
	UpdateResourceDeliverFailed(ctx context.Context, resourceID, desc string) error

	// TouchResourceDeliverTime 更新资源上次交付时间 (交付节流标记)
	TouchResourceDeliverTime(ctx context.Context, resourceID string) error
}

// orderRepository 订单仓储实现
type orderRepository struct {
	*Repository
}

// NewOrderRepository 创建订单仓储
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{Repository: NewRepository(db)}
}

// Create 创建订单及其资源记录
func (r *orderRepository) Create(ctx context.Context, order *model.Order, resources []*model.Resource) error {
	return r.Transaction(ctx, func(txCtx context.Context) error {
		if err := r.DB(txCtx).Create(order).Error; err != nil {
			return fmt.Errorf("create order failed: %w", err)
		}
		if len(resources) > 0 {
			if err := r.DB(txCtx).Create(resources).Error; err != nil {
				return fmt.Errorf("create order resources failed: %w", err)
			}
		}
		return nil
	})
}

// GetByID 查询订单
func (r *orderRepository) GetByID(ctx context.Context, orderID string) (*model.Order, error) {
	var order model.Order
	result := r.DB(ctx).Where("id = ? AND deleted = ?", orderID, false).First(&order)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order failed: %w", result.Error)
	}
	return &order, nil
}

// GetByIDForUpdate 查询订单并加行锁
func (r *orderRepository) GetByIDForUpdate(ctx context.Context, orderID string) (*model.Order, error) {
	var order model.Order
	result := r.DB(ctx).
		Clauses(forUpdate()).
		Where("id = ? AND deleted = ?", orderID, false).
		First(&order)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order for update failed: %w", result.Error)
	}
	return &order, nil
}

// UpdatePaid 更新订单为已支付
func (r *orderRepository) UpdatePaid(ctx context.Context, order *model.Order) error {
	result := r.DB(ctx).Model(&model.Order{}).
		Where("id = ? AND status = ?", order.ID, model.OrderStatusUnpaid).
		Updates(map[string]interface{}{
			"status":             order.Status,
			"payment_method":     order.PaymentMethod,
			"pay_amount":         order.PayAmount,
			"balance_amount":     order.BalanceAmount,
			"coupon_amount":      order.CouponAmount,
			"payment_time":       order.PaymentTime,
			"payment_history_id": order.PaymentHistoryID,
			"updated_at":         time.Now().UnixMilli(),
		})
	if result.Error != nil {
		return fmt.Errorf("update order paid failed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// UpdateCancelled 更新订单为作废
func (r *orderRepository) UpdateCancelled(ctx context.Context, order *model.Order) error {
	result := r.DB(ctx).Model(&model.Order{}).
		Where("id = ?", order.ID).
		Updates(map[string]interface{}{
			"status":         model.OrderStatusCancelled,
			"trading_status": model.TradingStatusClosed,
			"cancelled_time": order.CancelledTime,
			"updated_at":     time.Now().UnixMilli(),
		})
	if result.Error != nil {
		return fmt.Errorf("update order cancelled failed: %w", result.Error)
	}
	return nil
}

// UpdateStatus 更新订单支付状态
func (r *orderRepository) UpdateStatus(ctx context.Context, orderID string, status model.OrderStatus) error {
	result := r.DB(ctx).Model(&model.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now().UnixMilli(),
		})
	if result.Error != nil {
		return fmt.Errorf("update order status failed: %w", result.Error)
	}
	return nil
}

// UpdateTradingStatus 更新订单交易状态
func (r *orderRepository) UpdateTradingStatus(ctx context.Context, orderID string, tradingStatus model.TradingStatus) error {
	now := time.Now().UnixMilli()
	updates := map[string]interface{}{
		"trading_status": tradingStatus,
		"updated_at":     now,
	}
	if tradingStatus == model.TradingStatusCompleted {
		updates["completion_time"] = now
	}

	result := r.DB(ctx).Model(&model.Order{}).Where("id = ?", orderID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("update order trading status failed: %w", result.Error)
	}
	return nil
}

// SetRefundSuccess 更新订单为退款完成状态
// 全额退款关闭交易，部分退款保持原交易状态
func (r *orderRepository) SetRefundSuccess(ctx context.Context, orderID string, partRefund bool) error {
	updates := map[string]interface{}{
		"updated_at": time.Now().UnixMilli(),
	}
	if partRefund {
		updates["status"] = model.OrderStatusPartRefund
	} else {
		updates["status"] = model.OrderStatusRefund
		updates["trading_status"] = model.TradingStatusClosed
	}

	result := r.DB(ctx).Model(&model.Order{}).Where("id = ?", orderID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("set order refund success failed: %w", result.Error)
	}
	return nil
}

// AcquireAction 获取订单动作互斥标志
func (r *orderRepository) AcquireAction(ctx context.Context, orderID string, action model.OrderAction) error {
	result := r.DB(ctx).Model(&model.Order{}).
		Where("id = ? AND order_action = ?", orderID, model.OrderActionNone).
		Updates(map[string]interface{}{
			"order_action": action,
			"updated_at":   time.Now().UnixMilli(),
		})
	if result.Error != nil {
		return fmt.Errorf("acquire order action failed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrActionConflict
	}
	return nil
}

// ReleaseAction 释放订单动作互斥标志
func (r *orderRepository) ReleaseAction(ctx context.Context, orderID string, action model.OrderAction) error {
	result := r.DB(ctx).Model(&model.Order{}).
		Where("id = ? AND order_action = ?", orderID, action).
		Updates(map[string]interface{}{
			"order_action": model.OrderActionNone,
			"updated_at":   time.Now().UnixMilli(),
		})
	if result.Error != nil {
		return fmt.Errorf("release order action failed: %w", result.Error)
	}
	return nil
}

// ListResources 查询订单的资源记录
func (r *orderRepository) ListResources(ctx context.Context, orderID string) ([]*model.Resource, error) {
	var resources []*model.Resource
	result := r.DB(ctx).Where("order_id = ?", orderID).Order("created_at ASC").Find(&resources)
	if result.Error != nil {
		return nil, fmt.Errorf("list order resources failed: %w", result.Error)
	}
	return resources, nil
}

// ListResourcesForUpdate 查询订单的资源记录并加行锁
func (r *orderRepository) ListResourcesForUpdate(ctx context.Context, orderID string) ([]*model.Resource, error) {
	var resources []*model.Resource
	result := r.DB(ctx).
		Clauses(forUpdate()).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&resources)
	if result.Error != nil {
		return nil, fmt.Errorf("list order resources for update failed: %w", result.Error)
	}
	return resources, nil
}

// UpdateResourceDeliverOK 标记资源交付成功
func (r *orderRepository) UpdateResourceDeliverOK(ctx context.Context, resourceID, instanceID string) error {
	now := time.Now().UnixMilli()
	result := r.DB(ctx).Model(&model.Resource{}).
		Where("id = ?", resourceID).
		Updates(map[string]interface{}{
			"instance_status": model.InstanceStatusSuccess,
			"instance_id":     instanceID,
			"desc":            "",
			"delivered_time":  now,
			"updated_at":      now,
		})
	if result.Error != nil {
		return fmt.Errorf("update resource deliver ok failed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrResourceNotFound
	}
	return nil
}

// UpdateResourceDeliverFailed 标记资源交付失败
func (r *orderRepository) UpdateResourceDeliverFailed(ctx context.Context, resourceID, desc string) error {
	// varchar(255) 按字符计数，按字节截断会切坏多字节字符
	if runes := []rune(desc); len(runes) > 255 {
		desc = string(runes[:255])
	}
	now := time.Now().UnixMilli()
	result := r.DB(ctx).Model(&model.Resource{}).
		Where("id = ?", resourceID).
		Updates(map[string]interface{}{
			"instance_status":   model.InstanceStatusFailed,
			"desc":              desc,
			"last_deliver_time": now,
			"updated_at":        now,
		})
	if result.Error != nil {
		return fmt.Errorf("update resource deliver failed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrResourceNotFound
	}
	return nil
}

// TouchResourceDeliverTime 更新资源上次交付时间
func (r *orderRepository) TouchResourceDeliverTime(ctx context.Context, resourceID string) error {
	now := time.Now().UnixMilli()
	result := r.DB(ctx).Model(&model.Resource{}).
		Where("id = ?", resourceID).
		Updates(map[string]interface{}{
			"last_deliver_time": now,
			"updated_at":        now,
		})
	if result.Error != nil {
		return fmt.Errorf("touch resource deliver time failed: %w", result.Error)
	}
	return nil
}
