package service

import (
	"context"
	"sort"
	"time"

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

// RefundParams 退款参数
type RefundParams struct {
	PaymentHistoryID string          // 原支付记录 id
	OutRefundID      string          // 外部退款单号，幂等键
	RefundAmounts    decimal.Decimal // 请求退款金额
	RefundReason     string
	Remark           string
	AppID            string
	IsRefundCoupon   bool // false 时券支付部分不返还，coupon_refund 记 0
}

// RefundService 退款服务接口
type RefundService interface {
	// Refund 对一次支付执行退款
	// 退款按原支付的余额/券占比拆分: 余额部分退回余额账户，
	// 券部分按各券原扣款占比拆回各券。同一 out_refund_id 幂等。
	Refund(ctx context.Context, params RefundParams) (*model.RefundRecord, error)
}

// refundService 退款服务实现
type refundService struct {
	accountRepo repository.AccountRepository
	couponRepo  repository.CouponRepository
	paymentRepo repository.PaymentRepository
	events      *publisher.EventPublisher
}

// NewRefundService 创建退款服务
func NewRefundService(
	accountRepo repository.AccountRepository,
	couponRepo repository.CouponRepository,
	paymentRepo repository.PaymentRepository,
	events *publisher.EventPublisher,
) RefundService {
	return &refundService{
		accountRepo: accountRepo,
		couponRepo:  couponRepo,
		paymentRepo: paymentRepo,
		events:      events,
	}
}

// couponCredit 单张代金券的退款计划
type couponCredit struct {
	couponID string
	amount   decimal.Decimal // 正数
}

// Refund 对一次支付执行退款
func (s *refundService) Refund(ctx context.Context, params RefundParams) (*model.RefundRecord, error) {
	if !params.RefundAmounts.IsPositive() {
		return nil, errors.ErrInvalidRequest.WithMessage("退款金额必须大于 0")
	}

	var refund *model.RefundRecord

	err := s.paymentRepo.Transaction(ctx, func(txCtx context.Context) error {
		// 幂等: 同一外部退款单号直接返回已有记录
		existing, err := s.paymentRepo.GetRefundByOutID(txCtx, params.OutRefundID)
		if err == nil {
			refund = existing
			return nil
		}
		if err != repository.ErrRefundNotFound {
			return err
		}

		payment, err := s.paymentRepo.GetPaymentForUpdate(txCtx, params.PaymentHistoryID)
		if err != nil {
			if err == repository.ErrPaymentNotFound {
				return errors.ErrPaymentNotFound
			}
			return err
		}

		refunded, err := s.paymentRepo.SumRefundedAmounts(txCtx, payment.ID)
		if err != nil {
			return err
		}
		if refunded.Add(params.RefundAmounts).GreaterThan(payment.PayableAmounts) {
			return errors.ErrRefundAmountsExceedTotal.
				WithDetail("refunded", refunded.String()).
				WithDetail("payable", payment.PayableAmounts.String())
		}

		// 按原支付占比拆分: 余额部分四舍五入，券部分取差值保证总额精确
		balancePaid := payment.Amounts.Neg()
		realRefund := money.Quantize(params.RefundAmounts.Mul(balancePaid).Div(payment.PayableAmounts))
		couponRefund := params.RefundAmounts.Sub(realRefund)
		if !params.IsRefundCoupon {
			// 不退券策略: 券支付部分不返还给用户
			couponRefund = decimal.Zero
		}

		credits, err := s.planCouponCredits(txCtx, payment, couponRefund)
		if err != nil {
			return err
		}

		refundID := model.GenerateOrderSN()
		now := time.Now().UnixMilli()

		refund = &model.RefundRecord{
			ID:               refundID,
			PaymentHistoryID: payment.ID,
			OutRefundID:      params.OutRefundID,
			OrderID:          payment.OrderID,
			TotalAmounts:     payment.PayableAmounts,
			RefundAmounts:    params.RefundAmounts,
			RealRefund:       realRefund,
			CouponRefund:     couponRefund,
			RefundReason:     params.RefundReason,
			Remark:           params.Remark,
			Status:           model.RefundStatusRefunded,
			OwnerType:        payment.PayerType,
			OwnerID:          payment.PayerID,
			AppID:            params.AppID,
			AppServiceID:     payment.AppServiceID,
			RefundedTime:     now,
		}

		couponIDs := make([]string, 0, len(credits))
		for _, c := range credits {
			couponIDs = append(couponIDs, c.couponID)
		}
		couponMap, err := s.couponRepo.GetByIDsForUpdate(txCtx, payment.PayerType, payment.PayerID, couponIDs)
		if err != nil {
			return err
		}

		// 券已不存在时该份额改退余额账户
		for _, c := range credits {
			coupon, ok := couponMap[c.couponID]
			if !ok {
				realRefund = realRefund.Add(c.amount)
				continue
			}
			after := coupon.Balance.Add(c.amount)
			if err := s.couponRepo.UpdateBalance(txCtx, coupon.ID, after); err != nil {
				return err
			}
			history := &model.CashCouponPaymentHistory{
				PaymentHistoryID: payment.ID,
				RefundHistoryID:  refundID,
				CashCouponID:     coupon.ID,
				BeforePayment:    coupon.Balance,
				Amounts:          c.amount,
				AfterPayment:     after,
			}
			if err := s.couponRepo.CreateHistory(txCtx, history); err != nil {
				return err
			}
		}

		account, err := s.accountRepo.GetForUpdate(txCtx, payment.PayerType, payment.PayerID)
		if err != nil {
			return err
		}
		afterBalance := account.Balance.Add(realRefund)
		if realRefund.IsPositive() {
			if err := s.accountRepo.UpdateBalance(txCtx, account.ID, afterBalance); err != nil {
				return err
			}
		}

		refund.RealRefund = realRefund
		if params.IsRefundCoupon {
			// 券已不存在的份额并入余额退款，券部分取剩余差值
			refund.CouponRefund = params.RefundAmounts.Sub(realRefund)
		}
		if err := s.paymentRepo.CreateRefund(txCtx, refund); err != nil {
			return err
		}

		bill := &model.TransactionBill{
			TradeType:    model.TradeTypeRefund,
			TradeID:      refundID,
			OwnerType:    payment.PayerType,
			OwnerID:      payment.PayerID,
			OwnerName:    payment.PayerName,
			AppServiceID: payment.AppServiceID,
			AppID:        params.AppID,
			Subject:      payment.Subject,
			Amounts:      realRefund,
			CouponAmount: refund.CouponRefund,
			AfterBalance: afterBalance,
			Remark:       params.Remark,
		}
		return s.accountRepo.CreateBill(txCtx, bill)
	})
	if err != nil {
		metrics.RecordRefund("failed")
		return nil, err
	}

	metrics.RecordRefund("success")

	logger.Info("payment refunded",
		zap.String("payment_id", params.PaymentHistoryID),
		zap.String("refund_id", refund.ID),
		zap.String("refund_amounts", refund.RefundAmounts.String()),
		zap.String("real_refund", refund.RealRefund.String()),
		zap.String("coupon_refund", refund.CouponRefund.String()),
	)

	s.events.PublishOrderRefunded(ctx, &publisher.OrderRefundedEvent{
		OrderID:      refund.OrderID,
		OwnerType:    string(refund.OwnerType),
		OwnerID:      refund.OwnerID,
		RefundID:     refund.ID,
		RefundAmount: refund.RefundAmounts.String(),
		RealRefund:   refund.RealRefund.String(),
		CouponRefund: refund.CouponRefund.String(),
		RefundTime:   refund.RefundedTime,
	})

	return refund, nil
}

// planCouponCredits 按各券原扣款占比拆分券退款金额
// 扣款较小的按占比四舍五入，扣款最大的一张取差值吸收尾差
func (s *refundService) planCouponCredits(
	ctx context.Context, payment *model.PaymentHistory, couponRefund decimal.Decimal,
) ([]couponCredit, error) {
	if !couponRefund.IsPositive() {
		return nil, nil
	}

	histories, err := s.couponRepo.ListHistoriesByPayment(ctx, payment.ID)
	if err != nil {
		return nil, err
	}
	if len(histories) == 0 {
		return nil, nil
	}

	// 扣款金额为负数，升序即扣款从大到小
	sorted := make([]*model.CashCouponPaymentHistory, len(histories))
	copy(sorted, histories)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Amounts.LessThan(sorted[j].Amounts)
	})

	couponPaid := payment.CouponAmount.Neg()
	shares := make([]decimal.Decimal, len(sorted))
	allocated := decimal.Zero
	for i := 1; i < len(sorted); i++ {
		shares[i] = money.Quantize(couponRefund.Mul(sorted[i].Amounts.Neg()).Div(couponPaid))
		allocated = allocated.Add(shares[i])
	}
	shares[0] = couponRefund.Sub(allocated)

	credits := make([]couponCredit, 0, len(sorted))
	for i, h := range sorted {
		if !shares[i].IsPositive() {
			continue
		}
		credits = append(credits, couponCredit{couponID: h.CashCouponID, amount: shares[i]})
	}
	return credits, nil
}
