package model

import (
	"github.com/shopspring/decimal"
)

// PointAccount 余额账户
// 每个用户一个、每个 VO 组一个，owner 互斥
// 对应数据库表 point_accounts
type PointAccount struct {
	ID        string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	OwnerType OwnerType       `gorm:"type:varchar(8);uniqueIndex:uk_owner;not null" json:"owner_type"`
	OwnerID   string          `gorm:"type:varchar(36);uniqueIndex:uk_owner;not null" json:"owner_id"` // 用户 id 或 VO 组 id
	Balance   decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"balance"`           // 余额，允许为负(欠费)
	CreatedAt int64           `gorm:"type:bigint;not null;autoCreateTime:milli" json:"created_at"`
	UpdatedAt int64           `gorm:"type:bigint;not null;autoUpdateTime:milli" json:"updated_at"`
}

// TableName 返回表名
func (PointAccount) TableName() string {
	return "point_accounts"
}

// TradeType 账单交易类型
type TradeType string

const (
	TradeTypePayment TradeType = "payment" // 支付
	TradeTypeRefund  TradeType = "refund"  // 退款
)

// TransactionBill 交易流水账单
// 每次影响余额的事件 (支付/退款) 追加一条，只增不改
// 对应数据库表 transaction_bills
type TransactionBill struct {
	ID           string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	TradeType    TradeType       `gorm:"type:varchar(16);index;not null" json:"trade_type"`
	TradeID      string          `gorm:"type:varchar(36);index;not null" json:"trade_id"` // 支付记录或退款记录 id
	OwnerType    OwnerType       `gorm:"type:varchar(8);not null" json:"owner_type"`
	OwnerID      string          `gorm:"type:varchar(36);index;not null" json:"owner_id"`
	OwnerName    string          `gorm:"type:varchar(256)" json:"owner_name"`
	AppServiceID string          `gorm:"type:varchar(36);index" json:"app_service_id"`
	AppID        string          `gorm:"type:varchar(36)" json:"app_id"`
	Subject      string          `gorm:"type:varchar(256)" json:"subject"`
	Amounts      decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amounts"`       // 余额变动金额 (支付为负，退款为正)
	CouponAmount decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"coupon_amount"` // 券变动金额 (支付为负，退款为正)
	AfterBalance decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"after_balance"` // 变动后账户余额
	Remark       string          `gorm:"type:varchar(255)" json:"remark"`
	CreatedAt    int64           `gorm:"type:bigint;not null;autoCreateTime:milli;index" json:"created_at"`
}

// TableName 返回表名
func (TransactionBill) TableName() string {
	return "transaction_bills"
}
