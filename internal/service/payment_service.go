// Package service 实现订单支付、退款、状态机和资源交付的业务逻辑
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cloudverse/broker/internal/metrics"
	"github.com/cloudverse/broker/internal/model"
	"github.com/cloudverse/broker/internal/publisher"
	"github.com/cloudverse/broker/internal/repository"
	"github.com/cloudverse/broker/pkg/errors"
	"github.com/cloudverse/broker/pkg/logger"
	"github.com/cloudverse/broker/pkg/money"
)

// MaxCouponIDs 一次支付最多指定的代金券数量
const MaxCouponIDs = 5

// PayOrderParams 支付订单参数
type PayOrderParams struct {
	AppID    string // 结算应用 id
	Executor string // 支付执行人
	Remark   string

	// CouponIDs 指定使用的代金券编号。
	// nil 表示自动选择可用券，空切片表示不使用券。
	CouponIDs []string

	// OnlyCoupon 仅用代金券支付，券余额不足时支付失败
	OnlyCoupon bool

	// RequiredEnoughBalance 要求余额充足，不允许欠费支付
	RequiredEnoughBalance bool
}

// PaymentService 支付服务接口
type PaymentService interface {
	// PayOrder 支付订单
	// 券余额优先抵扣，差额从余额账户扣除，全部写入在一个事务内完成
	PayOrder(ctx context.Context, orderID string, params PayOrderParams) (*model.Order, error)
}

// paymentService 支付服务实现
type paymentService struct {
	orderRepo   repository.OrderRepository
	accountRepo repository.AccountRepository
	couponRepo  repository.CouponRepository
	paymentRepo repository.PaymentRepository
	events      *publisher.EventPublisher
}

// NewPaymentService 创建支付服务
func NewPaymentService(
	orderRepo repository.OrderRepository,
	accountRepo repository.AccountRepository,
	couponRepo repository.CouponRepository,
	paymentRepo repository.PaymentRepository,
	events *publisher.EventPublisher,
) PaymentService {
	return &paymentService{
		orderRepo:   orderRepo,
		accountRepo: accountRepo,
		couponRepo:  couponRepo,
		paymentRepo: paymentRepo,
		events:      events,
	}
}

// couponDebit 单张代金券的抵扣计划
type couponDebit struct {
	coupon *model.CashCoupon
	amount decimal.Decimal // 正数
}

// PayOrder 支付订单
func (s *paymentService) PayOrder(ctx context.Context, orderID string, params PayOrderParams) (*model.Order, error) {
	if err := validateCouponIDs(params.CouponIDs); err != nil {
		return nil, err
	}

	var (
		order          *model.Order
		paymentID      string
		balancePortion decimal.Decimal
		couponTotal    decimal.Decimal
	)

	err := s.orderRepo.Transaction(ctx, func(txCtx context.Context) error {
		var err error

		// 加锁顺序: 订单 -> 代金券 -> 余额账户
		order, err = s.orderRepo.GetByIDForUpdate(txCtx, orderID)
		if err != nil {
			if err == repository.ErrOrderNotFound {
				return errors.ErrOrderNotFound
			}
			return err
		}

		if err := checkOrderPayable(order); err != nil {
			return err
		}

		now := time.Now()
		coupons, err := s.resolveCoupons(txCtx, order, params.CouponIDs, now)
		if err != nil {
			return err
		}

		// 先规划抵扣，再落库，保证全有或全无
		payable := order.PayableAmount
		debits, remaining := planCouponDebits(coupons, payable)
		couponTotal = payable.Sub(remaining)
		balancePortion = remaining

		if params.OnlyCoupon && balancePortion.IsPositive() {
			return errors.ErrCouponBalanceNotEnough.WithDetail("shortage", balancePortion.String())
		}

		account, err := s.accountRepo.GetForUpdate(txCtx, order.OwnerType, order.OwnerID())
		if err != nil {
			return err
		}
		if params.RequiredEnoughBalance && account.Balance.LessThan(balancePortion) {
			return errors.ErrBalanceNotEnough.WithDetail("balance", account.Balance.String())
		}

		paymentID = uuid.NewString()

		for _, d := range debits {
			after := d.coupon.Balance.Sub(d.amount)
			if err := s.couponRepo.UpdateBalance(txCtx, d.coupon.ID, after); err != nil {
				return err
			}
			history := &model.CashCouponPaymentHistory{
				PaymentHistoryID: paymentID,
				CashCouponID:     d.coupon.ID,
				BeforePayment:    d.coupon.Balance,
				Amounts:          d.amount.Neg(),
				AfterPayment:     after,
			}
			if err := s.couponRepo.CreateHistory(txCtx, history); err != nil {
				return err
			}
		}

		afterBalance := account.Balance.Sub(balancePortion)
		if balancePortion.IsPositive() {
			if err := s.accountRepo.UpdateBalance(txCtx, account.ID, afterBalance); err != nil {
				return err
			}
		}

		if err := order.SetPaid(payable, balancePortion, couponTotal, paymentID); err != nil {
			return err
		}
		if err := s.orderRepo.UpdatePaid(txCtx, order); err != nil {
			if err == repository.ErrOrderNotFound {
				// 行锁下状态守卫失败只可能是并发支付
				return errors.ErrOrderPaid
			}
			return err
		}

		payment := &model.PaymentHistory{
			ID:             paymentID,
			PaymentMethod:  order.PaymentMethod,
			PayableAmounts: payable,
			Amounts:        balancePortion.Neg(),
			CouponAmount:   couponTotal.Neg(),
			Executor:       params.Executor,
			PayerID:        order.OwnerID(),
			PayerName:      ownerName(order),
			PayerType:      order.OwnerType,
			AppID:          params.AppID,
			AppServiceID:   order.AppServiceID,
			OrderID:        order.ID,
			Subject:        orderSubject(order),
			Remark:         params.Remark,
			PaymentTime:    order.PaymentTime,
		}
		if err := s.paymentRepo.CreatePayment(txCtx, payment); err != nil {
			return err
		}

		bill := &model.TransactionBill{
			TradeType:    model.TradeTypePayment,
			TradeID:      paymentID,
			OwnerType:    order.OwnerType,
			OwnerID:      order.OwnerID(),
			OwnerName:    ownerName(order),
			AppServiceID: order.AppServiceID,
			AppID:        params.AppID,
			Subject:      orderSubject(order),
			Amounts:      balancePortion.Neg(),
			CouponAmount: couponTotal.Neg(),
			AfterBalance: afterBalance,
			Remark:       params.Remark,
		}
		return s.accountRepo.CreateBill(txCtx, bill)
	})
	if err != nil {
		metrics.RecordPayment("failed", string(model.PaymentMethodUnknown))
		return nil, err
	}

	metrics.RecordPayment("success", string(order.PaymentMethod))
	metrics.RecordPaymentAmount(balancePortion.InexactFloat64(), couponTotal.InexactFloat64())

	logger.Info("order paid",
		zap.String("order_id", order.ID),
		zap.String("payment_id", paymentID),
		zap.String("method", string(order.PaymentMethod)),
		zap.String("balance_amount", balancePortion.String()),
		zap.String("coupon_amount", couponTotal.String()),
	)

	s.events.PublishOrderPaid(ctx, &publisher.OrderPaidEvent{
		OrderID:       order.ID,
		OwnerType:     string(order.OwnerType),
		OwnerID:       order.OwnerID(),
		PaymentMethod: string(order.PaymentMethod),
		PayAmount:     order.PayAmount.String(),
		BalanceAmount: balancePortion.String(),
		CouponAmount:  couponTotal.String(),
		PaymentID:     paymentID,
		PayTime:       order.PaymentTime,
	})

	return order, nil
}

// validateCouponIDs 校验指定的代金券编号列表
func validateCouponIDs(couponIDs []string) error {
	if len(couponIDs) > MaxCouponIDs {
		return errors.ErrTooManyCouponIDs.WithDetail("max", fmt.Sprintf("%d", MaxCouponIDs))
	}
	seen := make(map[string]struct{}, len(couponIDs))
	for _, id := range couponIDs {
		if _, ok := seen[id]; ok {
			return errors.ErrDuplicateCouponID.WithDetail("coupon_id", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// checkOrderPayable 检查订单是否处于可支付状态
func checkOrderPayable(order *model.Order) error {
	switch order.Status {
	case model.OrderStatusUnpaid:
		return nil
	case model.OrderStatusPaid:
		return errors.ErrOrderPaid
	case model.OrderStatusCancelled:
		return errors.ErrOrderCancelled
	case model.OrderStatusRefunding, model.OrderStatusRefund, model.OrderStatusPartRefund:
		return errors.ErrOrderRefund
	default:
		return errors.ErrOrderStatusUnknown
	}
}

// resolveCoupons 解析本次支付使用的代金券并加行锁
// couponIDs 为 nil 时自动选择归属主体所有可用且适用的券
func (s *paymentService) resolveCoupons(
	ctx context.Context, order *model.Order, couponIDs []string, now time.Time,
) ([]*model.CashCoupon, error) {
	if couponIDs == nil {
		usable, err := s.couponRepo.ListUsableForUpdate(ctx, order.OwnerType, order.OwnerID(), now)
		if err != nil {
			return nil, err
		}
		coupons := make([]*model.CashCoupon, 0, len(usable))
		for _, c := range usable {
			if c.Applicable(order.AppServiceID) {
				coupons = append(coupons, c)
			}
		}
		SortCouponsForPayment(coupons)
		return coupons, nil
	}

	if len(couponIDs) == 0 {
		return nil, nil
	}

	couponMap, err := s.couponRepo.GetByIDsForUpdate(ctx, order.OwnerType, order.OwnerID(), couponIDs)
	if err != nil {
		return nil, err
	}

	// 按调用方给出的顺序消费
	coupons := make([]*model.CashCoupon, 0, len(couponIDs))
	for _, id := range couponIDs {
		c, ok := couponMap[id]
		if !ok {
			return nil, errors.ErrNoSuchCoupon.WithDetail("coupon_id", id)
		}
		if c.Status != model.CouponStatusAvailable {
			return nil, errors.ErrNoSuchCoupon.WithDetail("coupon_id", id)
		}
		if now.UnixMilli() < c.EffectiveTime {
			return nil, errors.ErrNotEffective.WithDetail("coupon_id", id)
		}
		if now.UnixMilli() >= c.ExpirationTime {
			return nil, errors.ErrExpiredCoupon.WithDetail("coupon_id", id)
		}
		if !c.Applicable(order.AppServiceID) {
			return nil, errors.ErrCouponNotApplicable.WithDetail("coupon_id", id)
		}
		if !c.Balance.IsPositive() {
			return nil, errors.ErrCouponNoBalance.WithDetail("coupon_id", id)
		}
		coupons = append(coupons, c)
	}
	return coupons, nil
}

// planCouponDebits 规划代金券抵扣
// 按给定顺序逐张抵扣 min(剩余应付, 券余额)，返回抵扣计划和余额应付部分
func planCouponDebits(coupons []*model.CashCoupon, payable decimal.Decimal) ([]couponDebit, decimal.Decimal) {
	remaining := payable
	debits := make([]couponDebit, 0, len(coupons))
	for _, c := range coupons {
		if !remaining.IsPositive() {
			break
		}
		use := money.Min(remaining, c.Balance)
		if !use.IsPositive() {
			continue
		}
		debits = append(debits, couponDebit{coupon: c, amount: use})
		remaining = remaining.Sub(use)
	}
	return debits, remaining
}

// ownerName 返回订单归属主体的名称
func ownerName(order *model.Order) string {
	if order.OwnerType == model.OwnerTypeVo {
		return order.VoName
	}
	return order.Username
}

// orderSubject 生成支付/账单主题描述
func orderSubject(order *model.Order) string {
	return fmt.Sprintf("%s %s*%d", order.ServiceName, order.ResourceType, order.Number)
}
