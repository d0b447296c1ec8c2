package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cloudverse/broker/internal/model"
	"github.com/cloudverse/broker/internal/repository"
	"github.com/cloudverse/broker/pkg/errors"
	"github.com/cloudverse/broker/pkg/logger"
	"github.com/cloudverse/broker/pkg/money"
)

// CreateOrderParams 创建订单参数
type CreateOrderParams struct {
	OrderType      model.OrderType
	PayType        model.PayType
	ResourceType   model.ResourceType
	ServiceID      string
	ServiceName    string
	AppServiceID   string
	InstanceConfig string // 资源规格配置 (JSON)
	Period         int    // 订购时长(月)
	Number         int    // 订购资源数量

	TotalAmount   decimal.Decimal
	PayableAmount decimal.Decimal

	OwnerType model.OwnerType
	UserID    string
	Username  string
	VoID      string
	VoName    string
}

// OrderService 订单服务接口，驱动订单支付状态与交易状态的流转
type OrderService interface {
	// CreateOrder 创建订单，按订购数量生成待交付资源记录
	CreateOrder(ctx context.Context, params CreateOrderParams) (*model.Order, error)

	// GetOrder 查询订单
	GetOrder(ctx context.Context, orderID string) (*model.Order, error)

	// CancelOrder 作废未支付订单
	CancelOrder(ctx context.Context, orderID string) (*model.Order, error)

	// PayOrder 支付订单并触发资源交付
	// 交付失败不影响支付结果，订单转入待交付状态等待重试
	PayOrder(ctx context.Context, orderID string, params PayOrderParams) (*model.Order, error)

	// CreateRefund 对已支付订单的未交付部分发起退订
	// 应退金额 = 实付金额 × 退订数量 / 订购数量
	CreateRefund(ctx context.Context, orderID, reason string) (*model.OrderRefund, error)

	// DoRefund 执行退订退款单，驱动退款并更新订单状态
	// isRefundCoupon 为 false 时券支付部分不返还
	DoRefund(ctx context.Context, refundID string, isRefundCoupon bool) (*model.OrderRefund, error)

	// CancelRefund 取消待处理的退订退款单，订单恢复已支付状态
	CancelRefund(ctx context.Context, refundID string) error
}

// orderService 订单服务实现
type orderService struct {
	orderRepo   repository.OrderRepository
	paymentRepo repository.PaymentRepository
	payments    PaymentService
	refunds     RefundService
	delivery    DeliveryService
}

// NewOrderService 创建订单服务
func NewOrderService(
	orderRepo repository.OrderRepository,
	paymentRepo repository.PaymentRepository,
	payments PaymentService,
	refunds RefundService,
	delivery DeliveryService,
) OrderService {
	return &orderService{
		orderRepo:   orderRepo,
		paymentRepo: paymentRepo,
		payments:    payments,
		refunds:     refunds,
		delivery:    delivery,
	}
}

// CreateOrder 创建订单
func (s *orderService) CreateOrder(ctx context.Context, params CreateOrderParams) (*model.Order, error) {
	if params.Number < 1 {
		return nil, errors.ErrInvalidRequest.WithMessage("订购数量必须大于 0")
	}
	if params.PayableAmount.IsNegative() {
		return nil, errors.ErrInvalidRequest.WithMessage("应付金额不能为负数")
	}

	order := &model.Order{
		ID:             model.GenerateOrderSN(),
		OrderType:      params.OrderType,
		Status:         model.OrderStatusUnpaid,
		TotalAmount:    money.Quantize(params.TotalAmount),
		PayableAmount:  money.Quantize(params.PayableAmount),
		PayAmount:      decimal.Zero,
		BalanceAmount:  decimal.Zero,
		CouponAmount:   decimal.Zero,
		ServiceID:      params.ServiceID,
		ServiceName:    params.ServiceName,
		ResourceType:   params.ResourceType,
		InstanceConfig: params.InstanceConfig,
		Period:         params.Period,
		Number:         params.Number,
		PayType:        params.PayType,
		PaymentMethod:  model.PaymentMethodUnknown,
		UserID:         params.UserID,
		Username:       params.Username,
		VoID:           params.VoID,
		VoName:         params.VoName,
		OwnerType:      params.OwnerType,
		TradingStatus:  model.TradingStatusOpening,
		OrderAction:    model.OrderActionNone,
		AppServiceID:   params.AppServiceID,
	}

	resources := make([]*model.Resource, 0, params.Number)
	for i := 0; i < params.Number; i++ {
		resources = append(resources, &model.Resource{
			ID:             uuid.NewString(),
			OrderID:        order.ID,
			ResourceType:   params.ResourceType,
			InstanceStatus: model.InstanceStatusWait,
		})
	}

	if err := s.orderRepo.Create(ctx, order, resources); err != nil {
		return nil, err
	}

	logger.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("resource_type", string(order.ResourceType)),
		zap.Int("number", order.Number),
		zap.String("payable_amount", order.PayableAmount.String()),
	)
	return order, nil
}

// GetOrder 查询订单
func (s *orderService) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		if err == repository.ErrOrderNotFound {
			return nil, errors.ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

// CancelOrder 作废未支付订单
func (s *orderService) CancelOrder(ctx context.Context, orderID string) (*model.Order, error) {
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
		case model.OrderStatusUnpaid:
		case model.OrderStatusPaid:
			return errors.ErrOrderPaid
		case model.OrderStatusCancelled:
			return errors.ErrOrderCancelled
		case model.OrderStatusRefunding, model.OrderStatusRefund, model.OrderStatusPartRefund:
			return errors.ErrOrderRefund
		default:
			return errors.ErrOrderStatusUnknown
		}

		if order.OrderAction == model.OrderActionDelivering {
			return errors.ErrOrderDelivering
		}

		order.Status = model.OrderStatusCancelled
		order.TradingStatus = model.TradingStatusClosed
		order.CancelledTime = time.Now().UnixMilli()
		return s.orderRepo.UpdateCancelled(txCtx, order)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("order cancelled", zap.String("order_id", order.ID))
	return order, nil
}

// PayOrder 支付订单并触发资源交付
func (s *orderService) PayOrder(ctx context.Context, orderID string, params PayOrderParams) (*model.Order, error) {
	order, err := s.payments.PayOrder(ctx, orderID, params)
	if err != nil {
		return nil, err
	}

	// 交付失败可通过重试继续，不影响支付结果
	if err := s.delivery.DeliverOrder(ctx, orderID); err != nil {
		logger.Warn("deliver after payment failed",
			zap.String("order_id", orderID),
			zap.Error(err),
		)
	}

	return order, nil
}

// CreateRefund 对已支付订单的未交付部分发起退订
func (s *orderService) CreateRefund(ctx context.Context, orderID, reason string) (*model.OrderRefund, error) {
	var refund *model.OrderRefund

	err := s.orderRepo.Transaction(ctx, func(txCtx context.Context) error {
		order, err := s.orderRepo.GetByIDForUpdate(txCtx, orderID)
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

		if order.OrderAction == model.OrderActionDelivering {
			return errors.ErrOrderDelivering
		}

		resources, err := s.orderRepo.ListResourcesForUpdate(txCtx, orderID)
		if err != nil {
			return err
		}
		refundResNum := 0
		for _, res := range resources {
			if res.NeedDeliver() {
				refundResNum++
			}
		}
		if refundResNum == 0 {
			// 资源全部交付成功，没有可退订的部分
			return errors.ErrOrderTradingCompleted
		}

		// 应退金额按未交付数量占比折算
		refundAmount := money.Quantize(
			order.PayAmount.Mul(decimal.NewFromInt(int64(refundResNum))).
				Div(decimal.NewFromInt(int64(order.Number))))

		refund = &model.OrderRefund{
			ID:               uuid.NewString(),
			OrderID:          order.ID,
			OrderAmount:      order.PayAmount,
			RefundAmount:     refundAmount,
			BalanceAmount:    decimal.Zero,
			CouponAmount:     decimal.Zero,
			PaymentHistoryID: order.PaymentHistoryID,
			ResourceType:     order.ResourceType,
			Number:           refundResNum,
			Reason:           reason,
			Status:           model.RefundStatusWait,
			UserID:           order.UserID,
			Username:         order.Username,
			VoID:             order.VoID,
			VoName:           order.VoName,
			OwnerType:        order.OwnerType,
		}
		if err := s.paymentRepo.CreateOrderRefund(txCtx, refund); err != nil {
			return err
		}

		return s.orderRepo.UpdateStatus(txCtx, orderID, model.OrderStatusRefunding)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("order refund created",
		zap.String("order_id", orderID),
		zap.String("refund_id", refund.ID),
		zap.Int("number", refund.Number),
		zap.String("refund_amount", refund.RefundAmount.String()),
	)
	return refund, nil
}

// DoRefund 执行退订退款单
func (s *orderService) DoRefund(ctx context.Context, refundID string, isRefundCoupon bool) (*model.OrderRefund, error) {
	var (
		refund       *model.OrderRefund
		refundFailed bool
	)

	err := s.orderRepo.Transaction(ctx, func(txCtx context.Context) error {
		var err error
		refund, err = s.paymentRepo.GetOrderRefundForUpdate(txCtx, refundID)
		if err != nil {
			if err == repository.ErrRefundNotFound {
				return errors.ErrRefundNotFound
			}
			return err
		}
		if refund.Status != model.RefundStatusWait && refund.Status != model.RefundStatusFailed {
			return errors.ErrRefundStatusConflict.WithDetail("status", string(refund.Status))
		}

		order, err := s.orderRepo.GetByIDForUpdate(txCtx, refund.OrderID)
		if err != nil {
			if err == repository.ErrOrderNotFound {
				return errors.ErrOrderNotFound
			}
			return err
		}

		// 免费订单应退金额为 0，不走钱包退款直接置为退订成功
		if !refund.RefundAmount.IsPositive() {
			refund.Status = model.RefundStatusRefunded
			refund.StatusDesc = ""
			refund.BalanceAmount = decimal.Zero
			refund.CouponAmount = decimal.Zero
			refund.RefundHistoryID = ""
			refund.RefundedTime = time.Now().UnixMilli()
			if err := s.paymentRepo.UpdateOrderRefund(txCtx, refund); err != nil {
				return err
			}
			return s.orderRepo.SetRefundSuccess(txCtx, order.ID, refund.Number < order.Number)
		}

		record, err := s.refunds.Refund(txCtx, RefundParams{
			PaymentHistoryID: refund.PaymentHistoryID,
			OutRefundID:      refund.ID, // 退款单 id 作为幂等键，重试不会重复退款
			RefundAmounts:    refund.RefundAmount,
			RefundReason:     refund.Reason,
			IsRefundCoupon:   isRefundCoupon,
		})
		if err != nil {
			// 事务整体回滚，失败状态在事务外单独落库
			refundFailed = true
			return err
		}

		refund.Status = model.RefundStatusRefunded
		refund.StatusDesc = ""
		refund.BalanceAmount = record.RealRefund
		refund.CouponAmount = record.CouponRefund
		refund.RefundHistoryID = record.ID
		refund.RefundedTime = record.RefundedTime
		if err := s.paymentRepo.UpdateOrderRefund(txCtx, refund); err != nil {
			return err
		}

		partRefund := refund.Number < order.Number
		return s.orderRepo.SetRefundSuccess(txCtx, order.ID, partRefund)
	})
	if err != nil {
		if refundFailed && refund != nil {
			refund.Status = model.RefundStatusFailed
			refund.StatusDesc = err.Error()
			if updateErr := s.paymentRepo.UpdateOrderRefund(ctx, refund); updateErr != nil {
				logger.Error("update order refund failed",
					zap.String("refund_id", refund.ID),
					zap.Error(updateErr),
				)
			}
		}
		return nil, err
	}

	logger.Info("order refund done",
		zap.String("order_id", refund.OrderID),
		zap.String("refund_id", refund.ID),
		zap.String("balance_amount", refund.BalanceAmount.String()),
		zap.String("coupon_amount", refund.CouponAmount.String()),
	)
	return refund, nil
}

// CancelRefund 取消待处理的退订退款单
func (s *orderService) CancelRefund(ctx context.Context, refundID string) error {
	return s.orderRepo.Transaction(ctx, func(txCtx context.Context) error {
		refund, err := s.paymentRepo.GetOrderRefundForUpdate(txCtx, refundID)
		if err != nil {
			if err == repository.ErrRefundNotFound {
				return errors.ErrRefundNotFound
			}
			return err
		}
		if refund.Status != model.RefundStatusWait && refund.Status != model.RefundStatusFailed {
			return errors.ErrRefundStatusConflict.WithDetail("status", string(refund.Status))
		}

		refund.Status = model.RefundStatusCancelled
		refund.StatusDesc = ""
		if err := s.paymentRepo.UpdateOrderRefund(txCtx, refund); err != nil {
			return err
		}

		return s.orderRepo.UpdateStatus(txCtx, refund.OrderID, model.OrderStatusPaid)
	})
}
