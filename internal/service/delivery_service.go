package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cloudverse/broker/internal/metrics"
	"github.com/cloudverse/broker/internal/model"
	"github.com/cloudverse/broker/internal/provider"
	"github.com/cloudverse/broker/internal/publisher"
	"github.com/cloudverse/broker/internal/quota"
	"github.com/cloudverse/broker/internal/repository"
	"github.com/cloudverse/broker/pkg/errors"
	"github.com/cloudverse/broker/pkg/lock"
	"github.com/cloudverse/broker/pkg/logger"
)

// DefaultDeliverThrottle 同一资源两次交付尝试的最小间隔
const DefaultDeliverThrottle = 60 * time.Second

// DeliveryService 订单资源交付服务接口
type DeliveryService interface {
	// DeliverOrder 交付订单的待交付资源
	// 同一订单同一时刻只允许一个交付流程，短时间内重复触发返回稍后重试
	DeliverOrder(ctx context.Context, orderID string) error
}

// deliveryService 订单资源交付服务实现
type deliveryService struct {
	orderRepo repository.OrderRepository
	registry  *provider.Registry
	quota     quota.Manager
	locker    *lock.RedisLocker // 跨实例交付互斥，nil 时只依赖数据库动作标志
	events    *publisher.EventPublisher
	throttle  time.Duration
}

// NewDeliveryService 创建交付服务
func NewDeliveryService(
	orderRepo repository.OrderRepository,
	registry *provider.Registry,
	quotaMgr quota.Manager,
	locker *lock.RedisLocker,
	events *publisher.EventPublisher,
	throttle time.Duration,
) DeliveryService {
	if throttle <= 0 {
		throttle = DefaultDeliverThrottle
	}
	return &deliveryService{
		orderRepo: orderRepo,
		registry:  registry,
		quota:     quotaMgr,
		locker:    locker,
		events:    events,
		throttle:  throttle,
	}
}

// DeliverOrder 交付订单的待交付资源
func (s *deliveryService) DeliverOrder(ctx context.Context, orderID string) error {
	if s.locker == nil {
		return s.deliverOrder(ctx, orderID)
	}

	err := s.locker.WithLock(ctx, "deliver:"+orderID, func(lockCtx context.Context) error {
		return s.deliverOrder(lockCtx, orderID)
	})
	if err == lock.ErrLockAcquireFailed {
		return errors.ErrOrderDelivering
	}
	return err
}

func (s *deliveryService) deliverOrder(ctx context.Context, orderID string) error {
	order, err := s.acquireForDeliver(ctx, orderID)
	if err != nil {
		return err
	}

	// 动作标志在任何退出路径上都要归还
	defer func() {
		releaseCtx := context.WithoutCancel(ctx)
		if err := s.orderRepo.ReleaseAction(releaseCtx, orderID, model.OrderActionDelivering); err != nil {
			logger.Error("release order action failed",
				zap.String("order_id", orderID),
				zap.Error(err),
			)
		}
	}()

	resources, err := s.orderRepo.ListResources(ctx, orderID)
	if err != nil {
		return err
	}

	pending := make([]*model.Resource, 0, len(resources))
	for _, res := range resources {
		if res.NeedDeliver() {
			pending = append(pending, res)
		}
	}
	if len(pending) == 0 {
		return s.updateTradingStatus(ctx, orderID, resources)
	}

	// 交付节流: 每个资源两次尝试之间至少间隔 throttle
	now := time.Now().UnixMilli()
	for _, res := range pending {
		if res.LastDeliverTime > 0 && now-res.LastDeliverTime < s.throttle.Milliseconds() {
			metrics.RecordDelivery("throttled", string(res.ResourceType))
			return errors.ErrTryAgainLater
		}
	}

	p, err := s.registry.Get(order.ResourceType)
	if err != nil {
		return err
	}
	if err := p.Validate(ctx, order); err != nil {
		return err
	}

	var deliverErr error
	for _, res := range pending {
		if err := s.deliverResource(ctx, order, res, p); err != nil {
			deliverErr = err
			// 配额不足影响订单的全部剩余资源，没有必要继续
			if errors.ErrQuotaShortage.Is(err) {
				break
			}
		}
	}

	// 以最新交付结果聚合订单交易状态
	resources, err = s.orderRepo.ListResources(ctx, orderID)
	if err != nil {
		return err
	}
	if err := s.updateTradingStatus(ctx, orderID, resources); err != nil {
		return err
	}

	return deliverErr
}

// acquireForDeliver 校验订单可交付并占用动作标志
func (s *deliveryService) acquireForDeliver(ctx context.Context, orderID string) (*model.Order, error) {
	var order *model.Order

	err := s.orderRepo.Transaction(ctx, func(txCtx context.Context) error {
		var err error
		order, err = s.orderRepo.GetByIDForUpdate(txCtx, orderID)
		if err != nil {
			if err == repository.ErrOrderNotFound {
				return errors.ErrOrderNotFound
			}
			return err
		}

		switch order.Status {
		case model.OrderStatusPaid:
		case model.OrderStatusUnpaid:
			return errors.ErrOrderUnpaid
		case model.OrderStatusCancelled:
			return errors.ErrOrderCancelled
		case model.OrderStatusRefunding, model.OrderStatusRefund, model.OrderStatusPartRefund:
			return errors.ErrOrderRefund
		default:
			return errors.ErrOrderStatusUnknown
		}

		switch order.TradingStatus {
		case model.TradingStatusClosed:
			return errors.ErrOrderTradingClosed
		case model.TradingStatusCompleted:
			return errors.ErrOrderTradingCompleted
		}

		if err := s.orderRepo.AcquireAction(txCtx, orderID, model.OrderActionDelivering); err != nil {
			if err == repository.ErrActionConflict {
				return errors.ErrOrderDelivering
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// deliverResource 交付单个资源: 预留配额 -> 创建实例 -> 占用配额
func (s *deliveryService) deliverResource(
	ctx context.Context, order *model.Order, res *model.Resource, p provider.Provisioner,
) error {
	start := time.Now()

	// 先标记尝试时间，失败的重试同样受节流约束
	if err := s.orderRepo.TouchResourceDeliverTime(ctx, res.ID); err != nil {
		return err
	}

	req, err := p.QuotaRequirement(order)
	if err != nil {
		if markErr := s.markDeliverFailed(ctx, order, res, err); markErr != nil {
			return markErr
		}
		return errors.Wrap(errors.ErrDeliverFailed, err)
	}

	if !req.IsZero() {
		if err := s.quota.Reserve(ctx, order.ServiceID, req); err != nil {
			if shortage, ok := err.(*quota.ShortageError); ok {
				metrics.RecordQuotaShortage(order.ServiceID)
				if markErr := s.markDeliverFailed(ctx, order, res, shortage); markErr != nil {
					return markErr
				}
				return errors.ErrQuotaShortage.WithDetail("service_id", order.ServiceID)
			}
			return err
		}
	}

	result, err := p.Provision(ctx, order, res)
	if err != nil {
		if !req.IsZero() {
			if releaseErr := s.quota.Release(ctx, order.ServiceID, req); releaseErr != nil {
				logger.Error("release quota failed",
					zap.String("order_id", order.ID),
					zap.String("service_id", order.ServiceID),
					zap.Error(releaseErr),
				)
			}
		}
		if markErr := s.markDeliverFailed(ctx, order, res, err); markErr != nil {
			return markErr
		}
		return errors.Wrap(errors.ErrDeliverFailed, err)
	}

	if !req.IsZero() {
		if err := s.quota.Commit(ctx, order.ServiceID, req); err != nil {
			logger.Error("commit quota failed",
				zap.String("order_id", order.ID),
				zap.String("service_id", order.ServiceID),
				zap.Error(err),
			)
		}
	}

	if err := s.orderRepo.UpdateResourceDeliverOK(ctx, res.ID, result.InstanceID); err != nil {
		return err
	}

	metrics.RecordDelivery("success", string(res.ResourceType))
	metrics.DeliveryLatency.WithLabelValues(string(res.ResourceType)).Observe(time.Since(start).Seconds())

	logger.Info("resource delivered",
		zap.String("order_id", order.ID),
		zap.String("resource_id", res.ID),
		zap.String("instance_id", result.InstanceID),
	)

	s.events.PublishResourceDelivered(ctx, &publisher.ResourceDeliveredEvent{
		OrderID:      order.ID,
		ResourceID:   res.ID,
		ResourceType: string(res.ResourceType),
		InstanceID:   result.InstanceID,
		Success:      true,
	})
	return nil
}

// markDeliverFailed 标记资源交付失败并发布事件
func (s *deliveryService) markDeliverFailed(
	ctx context.Context, order *model.Order, res *model.Resource, cause error,
) error {
	if err := s.orderRepo.UpdateResourceDeliverFailed(ctx, res.ID, cause.Error()); err != nil {
		return err
	}

	metrics.RecordDelivery("failed", string(res.ResourceType))

	logger.Warn("resource deliver failed",
		zap.String("order_id", order.ID),
		zap.String("resource_id", res.ID),
		zap.Error(cause),
	)

	s.events.PublishResourceDelivered(ctx, &publisher.ResourceDeliveredEvent{
		OrderID:      order.ID,
		ResourceID:   res.ID,
		ResourceType: string(res.ResourceType),
		Success:      false,
		Reason:       cause.Error(),
	})
	return nil
}

// updateTradingStatus 按资源交付结果聚合订单交易状态
func (s *deliveryService) updateTradingStatus(ctx context.Context, orderID string, resources []*model.Resource) error {
	if len(resources) == 0 {
		return nil
	}

	succeeded := 0
	waiting := 0
	for _, res := range resources {
		switch res.InstanceStatus {
		case model.InstanceStatusSuccess:
			succeeded++
		case model.InstanceStatusWait:
			waiting++
		}
	}

	// 本轮尚未尝试过的资源还在等待交付，交易状态保持 opening
	if waiting > 0 {
		return nil
	}

	var status model.TradingStatus
	switch {
	case succeeded == len(resources):
		status = model.TradingStatusCompleted
	case succeeded == 0:
		status = model.TradingStatusUndelivered
	default:
		status = model.TradingStatusPartDeliver
	}

	return s.orderRepo.UpdateTradingStatus(ctx, orderID, status)
}
