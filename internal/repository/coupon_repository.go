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
	ErrCouponNotFound = errors.New("cash coupon not found")
)

// CouponRepository 代金券仓储接口
type CouponRepository interface {
	// Transaction 执行事务
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error

	// GetByID 查询代金券
	GetByID(ctx context.Context, couponID string) (*model.CashCoupon, error)

	// GetByIDsForUpdate 按 id 列表查询归属主体的代金券并加行锁
	// 返回 map 以便调用方按自己的顺序消费
	GetByIDsForUpdate(ctx context.Context, ownerType model.OwnerType, ownerID string, couponIDs []string) (map[string]*model.CashCoupon, error)

	// ListUsableForUpdate 查询归属主体当前可用的代金券并加行锁
	// 可用: available 状态、balance > 0、处于有效期窗口内
	ListUsableForUpdate(ctx context.Context, ownerType model.OwnerType, ownerID string, now time.Time) ([]*model.CashCoupon, error)

	// UpdateBalance 更新代金券余额
	UpdateBalance(ctx context.Context, couponID string, balance decimal.Decimal) error

	// CreateHistory 追加代金券扣款/退款历史
	CreateHistory(ctx context.Context, history *model.CashCouponPaymentHistory) error

	// ListHistoriesByPayment 查询一次支付的代金券扣款历史 (不含退款产生的行)
	ListHistoriesByPayment(ctx context.Context, paymentHistoryID string) ([]*model.CashCouponPaymentHistory, error)
}

// couponRepository 代金券仓储实现
type couponRepository struct {
	*Repository
}

// NewCouponRepository 创建代金券仓储
func NewCouponRepository(db *gorm.DB) CouponRepository {
	return &couponRepository{Repository: NewRepository(db)}
}

// GetByID 查询代金券
func (r *couponRepository) GetByID(ctx context.Context, couponID string) (*model.CashCoupon, error) {
	var coupon model.CashCoupon
	result := r.DB(ctx).Where("id = ?", couponID).First(&coupon)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrCouponNotFound
		}
		return nil, fmt.Errorf("get cash coupon failed: %w", result.Error)
	}
	return &coupon, nil
}

// GetByIDsForUpdate 按 id 列表查询归属主体的代金券并加行锁
func (r *couponRepository) GetByIDsForUpdate(
	ctx context.Context, ownerType model.OwnerType, ownerID string, couponIDs []string,
) (map[string]*model.CashCoupon, error) {
	if len(couponIDs) == 0 {
		return map[string]*model.CashCoupon{}, nil
	}

	ownerColumn := "user_id"
	if ownerType == model.OwnerTypeVo {
		ownerColumn = "vo_id"
	}

	var coupons []*model.CashCoupon
	result := r.DB(ctx).
		Clauses(forUpdate()).
		Where("id IN ? AND owner_type = ? AND "+ownerColumn+" = ?", couponIDs, ownerType, ownerID).
		Find(&coupons)
	if result.Error != nil {
		return nil, fmt.Errorf("get cash coupons for update failed: %w", result.Error)
	}

	couponMap := make(map[string]*model.CashCoupon, len(coupons))
	for _, c := range coupons {
		couponMap[c.ID] = c
	}
	return couponMap, nil
}

// ListUsableForUpdate 查询归属主体当前可用的代金券并加行锁
// 按过期时间先后排序
func (r *couponRepository) ListUsableForUpdate(
	ctx context.Context, ownerType model.OwnerType, ownerID string, now time.Time,
) ([]*model.CashCoupon, error) {
	ownerColumn := "user_id"
	if ownerType == model.OwnerTypeVo {
		ownerColumn = "vo_id"
	}

	ms := now.UnixMilli()
	var coupons []*model.CashCoupon
	result := r.DB(ctx).
		Clauses(forUpdate()).
		Where(
			"owner_type = ? AND "+ownerColumn+" = ? AND status = ? AND balance > 0 AND effective_time <= ? AND expiration_time > ?",
			ownerType, ownerID, model.CouponStatusAvailable, ms, ms,
		).
		Order("expiration_time ASC, created_at ASC, id ASC").
		Find(&coupons)
	if result.Error != nil {
		return nil, fmt.Errorf("list usable cash coupons failed: %w", result.Error)
	}
	return coupons, nil
}

// UpdateBalance 更新代金券余额
func (r *couponRepository) UpdateBalance(ctx context.Context, couponID string, balance decimal.Decimal) error {
	result := r.DB(ctx).Model(&model.CashCoupon{}).
		Where("id = ?", couponID).
		Updates(map[string]interface{}{
			"balance":    balance,
			"updated_at": time.Now().UnixMilli(),
		})
	if result.Error != nil {
		return fmt.Errorf("update cash coupon balance failed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrCouponNotFound
	}
	return nil
}

// CreateHistory 追加代金券扣款/退款历史
func (r *couponRepository) CreateHistory(ctx context.Context, history *model.CashCouponPaymentHistory) error {
	if history.ID == "" {
		history.ID = uuid.NewString()
	}
	if err := r.DB(ctx).Create(history).Error; err != nil {
		return fmt.Errorf("create cash coupon payment history failed: %w", err)
	}
	return nil
}

// ListHistoriesByPayment 查询一次支付的代金券扣款历史
func (r *couponRepository) ListHistoriesByPayment(ctx context.Context, paymentHistoryID string) ([]*model.CashCouponPaymentHistory, error) {
	var histories []*model.CashCouponPaymentHistory
	result := r.DB(ctx).
		Where("payment_history_id = ? AND refund_history_id = ?", paymentHistoryID, "").
		Order("created_at ASC").
		Find(&histories)
	if result.Error != nil {
		return nil, fmt.Errorf("list cash coupon payment histories failed: %w", result.Error)
	}
	return histories, nil
}
