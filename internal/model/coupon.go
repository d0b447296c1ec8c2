package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CouponStatus 代金券状态
type CouponStatus string

const (
	CouponStatusWait      CouponStatus = "wait"      // 待领取
	CouponStatusAvailable CouponStatus = "available" // 有效
	CouponStatusCancelled CouponStatus = "cancelled" // 作废
	CouponStatusDeleted   CouponStatus = "deleted"   // 删除
)

// CashCoupon 代金券
// 限定归属主体、结算子账户和有效期窗口的可抵扣额度
// 对应数据库表 cash_coupons
type CashCoupon struct {
	ID             string          `gorm:"type:varchar(32);primaryKey" json:"id"`
	FaceValue      decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"face_value"`               // 面额
	Balance        decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"balance"`                  // 余额, 0 <= balance <= face_value
	EffectiveTime  int64           `gorm:"type:bigint;not null" json:"effective_time"`                  // 生效时间 (毫秒)
	ExpirationTime int64           `gorm:"type:bigint;not null;index" json:"expiration_time"`           // 过期时间 (毫秒)
	AppServiceID   string          `gorm:"type:varchar(36);index" json:"app_service_id"`                // 适用的结算子账户, 空串为通用
	Status         CouponStatus    `gorm:"type:varchar(16);index;not null;default:wait" json:"status"`
	OwnerType      OwnerType       `gorm:"type:varchar(8)" json:"owner_type"`
	UserID         string          `gorm:"type:varchar(36);index" json:"user_id"`
	VoID           string          `gorm:"type:varchar(36);index" json:"vo_id"`
	GrantedTime    int64           `gorm:"type:bigint" json:"granted_time"` // 领取时间 (毫秒)
	CreatedAt      int64           `gorm:"type:bigint;not null;autoCreateTime:milli" json:"created_at"`
	UpdatedAt      int64           `gorm:"type:bigint;not null;autoUpdateTime:milli" json:"updated_at"`
}

// TableName 返回表名
func (CashCoupon) TableName() string {
	return "cash_coupons"
}

// OwnerID 返回券归属主体的 id
func (c *CashCoupon) OwnerID() string {
	if c.OwnerType == OwnerTypeVo {
		return c.VoID
	}
	return c.UserID
}

// IsEffectiveAt 判断券在给定时刻是否处于有效期窗口内
// effective_time <= now < expiration_time
func (c *CashCoupon) IsEffectiveAt(now time.Time) bool {
	ms := now.UnixMilli()
	return c.EffectiveTime <= ms && ms < c.ExpirationTime
}

// Applicable 判断券是否适用于给定结算子账户
// app_service_id 为空串的券为通用券
func (c *CashCoupon) Applicable(appServiceID string) bool {
	return c.AppServiceID == "" || c.AppServiceID == appServiceID
}

// CashCouponPaymentHistory 代金券扣款/退款历史
// 每次支付或退款触及一张券时追加一条，只增不改
// 对应数据库表 cash_coupon_payment_histories
type CashCouponPaymentHistory struct {
	ID               string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	PaymentHistoryID string          `gorm:"type:varchar(36);index;not null" json:"payment_history_id"`
	RefundHistoryID  string          `gorm:"type:varchar(36);index" json:"refund_history_id"` // 退款时回填退款记录 id
	CashCouponID     string          `gorm:"type:varchar(32);index;not null" json:"cash_coupon_id"`
	BeforePayment    decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"before_payment"` // 变动前券余额
	Amounts          decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amounts"`        // 变动金额 (扣款为负，退款为正)
	AfterPayment     decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"after_payment"`  // 变动后券余额
	CreatedAt        int64           `gorm:"type:bigint;not null;autoCreateTime:milli" json:"created_at"`
}

// TableName 返回表名
func (CashCouponPaymentHistory) TableName() string {
	return "cash_coupon_payment_histories"
}
