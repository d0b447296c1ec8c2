package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/cloudverse/broker/internal/model"
)

var (
	ErrPaymentNotFound = errors.New("payment history not found")
	ErrRefundNotFound  = errors.New("refund record not found")
)

// PaymentRepository 支付/退款记录仓储接口
type PaymentRepository interface {
	// Transaction 执行事务
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error

	// CreatePayment 创建支付记录
	CreatePayment(ctx context.Context, payment *model.PaymentHistory) error

	// GetPayment 查询支付记录
	GetPayment(ctx context.Context, paymentHistoryID string) (*model.PaymentHistory, error)

	// GetPaymentForUpdate 查询支付记录并加行锁
	GetPaymentForUpdate(ctx context.Context, paymentHistoryID string) (*model.PaymentHistory, error)

	// SumRefundedAmounts 统计一次支付已成功退款的总额
	SumRefundedAmounts(ctx context.Context, paymentHistoryID string) (decimal.Decimal, error)

	// CreateRefund 创建退款记录
	CreateRefund(ctx context.Context, refund *model.RefundRecord) error

	// GetRefundByOutID 按外部退款单号查询退款记录
	GetRefundByOutID(ctx context.Context, outRefundID string) (*model.RefundRecord, error)

	// CreateOrderRefund 创建订单退订退款单
	CreateOrderRefund(ctx context.Context, refund *model.OrderRefund) error

	// GetOrderRefundForUpdate 查询退订退款单并加行锁
	GetOrderRefundForUpdate(ctx context.Context, refundID string) (*model.OrderRefund, error)

	// UpdateOrderRefund 更新退订退款单状态
	UpdateOrderRefund(ctx context.Context, refund *model.OrderRefund) error
}

// paymentRepository 支付/退款记录仓储实现
type paymentRepository struct {
	*Repository
}

// NewPaymentRepository 创建支付记录仓储
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{Repository: NewRepository(db)}
}

// CreatePayment 创建支付记录
func (r *paymentRepository) CreatePayment(ctx context.Context, payment *model.PaymentHistory) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	if err := r.DB(ctx).Create(payment).Error; err != nil {
		return fmt.Errorf("create payment history failed: %w", err)
	}
	return nil
}

// GetPayment 查询支付记录
func (r *paymentRepository) GetPayment(ctx context.Context, paymentHistoryID string) (*model.PaymentHistory, error) {
	var payment model.PaymentHistory
	result := r.DB(ctx).Where("id = ?", paymentHistoryID).First(&payment)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("get payment history failed: %w", result.Error)
	}
	return &payment, nil
}

// GetPaymentForUpdate 查询支付记录并加行锁
func (r *paymentRepository) GetPaymentForUpdate(ctx context.Context, paymentHistoryID string) (*model.PaymentHistory, error) {
	var payment model.PaymentHistory
	result := r.DB(ctx).
		Clauses(forUpdate()).
		Where("id = ?", paymentHistoryID).
		First(&payment)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("get payment history for update failed: %w", result.Error)
	}
	return &payment, nil
}

// SumRefundedAmounts 统计一次支付已成功退款的总额
func (r *paymentRepository) SumRefundedAmounts(ctx context.Context, paymentHistoryID string) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	result := r.DB(ctx).Model(&model.RefundRecord{}).
		Select("SUM(refund_amounts)").
		Where("payment_history_id = ? AND status = ?", paymentHistoryID, model.RefundStatusRefunded).
		Scan(&sum)
	if result.Error != nil {
		return decimal.Zero, fmt.Errorf("sum refunded amounts failed: %w", result.Error)
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}

// CreateRefund 创建退款记录
func (r *paymentRepository) CreateRefund(ctx context.Context, refund *model.RefundRecord) error {
	if refund.ID == "" {
		refund.ID = uuid.NewString()
	}
	if err := r.DB(ctx).Create(refund).Error; err != nil {
		return fmt.Errorf("create refund record failed: %w", err)
	}
	return nil
}

// GetRefundByOutID 按外部退款单号查询退款记录
func (r *paymentRepository) GetRefundByOutID(ctx context.Context, outRefundID string) (*model.RefundRecord, error) {
	var refund model.RefundRecord
	result := r.DB(ctx).Where("out_refund_id = ?", outRefundID).First(&refund)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRefundNotFound
		}
		return nil, fmt.Errorf("get refund record failed: %w", result.Error)
	}
	return &refund, nil
}

// CreateOrderRefund 创建订单退订退款单
func (r *paymentRepository) CreateOrderRefund(ctx context.Context, refund *model.OrderRefund) error {
	if refund.ID == "" {
		refund.ID = uuid.NewString()
	}
	if err := r.DB(ctx).Create(refund).Error; err != nil {
		return fmt.Errorf("create order refund failed: %w", err)
	}
	return nil
}

// GetOrderRefundForUpdate 查询退订退款单并加行锁
func (r *paymentRepository) GetOrderRefundForUpdate(ctx context.Context, refundID string) (*model.OrderRefund, error) {
	var refund model.OrderRefund
	result := r.DB(ctx).
		Clauses(forUpdate()).
		Where("id = ? AND deleted = ?", refundID, false).
		First(&refund)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRefundNotFound
		}
		return nil, fmt.Errorf("get order refund for update failed: %w", result.Error)
	}
	return &refund, nil
}

// UpdateOrderRefund 更新退订退款单状态
func (r *paymentRepository) UpdateOrderRefund(ctx context.Context, refund *model.OrderRefund) error {
	result := r.DB(ctx).Model(&model.OrderRefund{}).
		Where("id = ?", refund.ID).
		Updates(map[string]interface{}{
			"status":            refund.Status,
			"status_desc":       refund.StatusDesc,
			"balance_amount":    refund.BalanceAmount,
			"coupon_amount":     refund.CouponAmount,
			"refund_history_id": refund.RefundHistoryID,
			"refunded_time":     refund.RefundedTime,
			"updated_at":        time.Now().UnixMilli(),
		})
	if result.Error != nil {
		return fmt.Errorf("update order refund failed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRefundNotFound
	}
	return nil
}
