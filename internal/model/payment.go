package model

import (
	"github.com/shopspring/decimal"
)

// PaymentHistory 支付记录
// 一次成功支付一条，只增不改
// 对应数据库表 payment_histories
type PaymentHistory struct {
	ID             string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	PaymentMethod  PaymentMethod   `gorm:"type:varchar(16);not null" json:"payment_method"`
	PayableAmounts decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"payable_amounts"` // 应付金额
	Amounts        decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amounts"`         // 余额扣款金额 (负数)
	CouponAmount   decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"coupon_amount"`   // 券扣款金额 (负数)
	Executor       string          `gorm:"type:varchar(64)" json:"executor"`                   // 支付执行人
	PayerID        string          `gorm:"type:varchar(36);index;not null" json:"payer_id"`
	PayerName      string          `gorm:"type:varchar(256)" json:"payer_name"`
	PayerType      OwnerType       `gorm:"type:varchar(8);not null" json:"payer_type"`
	AppID          string          `gorm:"type:varchar(36)" json:"app_id"`
	AppServiceID   string          `gorm:"type:varchar(36);index" json:"app_service_id"`
	OrderID        string          `gorm:"type:varchar(32);index;not null" json:"order_id"`
	Subject        string          `gorm:"type:varchar(256)" json:"subject"`
	Remark         string          `gorm:"type:varchar(255)" json:"remark"`
	PaymentTime    int64           `gorm:"type:bigint;not null" json:"payment_time"` // 支付时间 (毫秒)
	CreatedAt      int64           `gorm:"type:bigint;not null;autoCreateTime:milli" json:"created_at"`
}

// TableName 返回表名
func (PaymentHistory) TableName() string {
	return "payment_histories"
}

// RefundStatus 退款记录状态
type RefundStatus string

const (
	RefundStatusWait      RefundStatus = "wait"      // 待退款
	RefundStatusRefunded  RefundStatus = "refunded"  // 退款成功
	RefundStatusFailed    RefundStatus = "failed"    // 退款失败
	RefundStatusCancelled RefundStatus = "cancelled" // 取消作废
)

// RefundRecord 退款记录
// 对应数据库表 refund_records
type RefundRecord struct {
	ID               string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	PaymentHistoryID string          `gorm:"type:varchar(36);index;not null" json:"payment_history_id"`
	OutRefundID      string          `gorm:"type:varchar(36);uniqueIndex;not null" json:"out_refund_id"` // 外部退款单号
	OrderID          string          `gorm:"type:varchar(32);index" json:"order_id"`
	TotalAmounts     decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"total_amounts"`  // 原支付的应付金额
	RefundAmounts    decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"refund_amounts"` // 请求退款金额
	RealRefund       decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"real_refund"`    // 退回余额金额
	CouponRefund     decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"coupon_refund"`  // 退回代金券金额
	RefundReason     string          `gorm:"type:varchar(255)" json:"refund_reason"`
	Remark           string          `gorm:"type:varchar(255)" json:"remark"`
	Status           RefundStatus    `gorm:"type:varchar(16);index;not null;default:wait" json:"status"`
	StatusDesc       string          `gorm:"type:varchar(255)" json:"status_desc"`
	OwnerType        OwnerType       `gorm:"type:varchar(8);not null" json:"owner_type"`
	OwnerID          string          `gorm:"type:varchar(36);index;not null" json:"owner_id"`
	AppID            string          `gorm:"type:varchar(36)" json:"app_id"`
	AppServiceID     string          `gorm:"type:varchar(36)" json:"app_service_id"`
	RefundedTime     int64           `gorm:"type:bigint" json:"refunded_time"` // 退款完成时间 (毫秒)
	CreatedAt        int64           `gorm:"type:bigint;not null;autoCreateTime:milli" json:"created_at"`
	UpdatedAt        int64           `gorm:"type:bigint;not null;autoUpdateTime:milli" json:"updated_at"`
}

// TableName 返回表名
func (RefundRecord) TableName() string {
	return "refund_records"
}

// OrderRefund 订单退订退款单
// 记录一次订单退订请求的处理进度，退款由 RefundRecord 完成
// 对应数据库表 order_refunds
type OrderRefund struct {
	ID               string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	OrderID          string          `gorm:"type:varchar(32);index;not null" json:"order_id"`
	OrderAmount      decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"order_amount"`   // 订单实付金额
	RefundAmount     decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"refund_amount"`  // 应退金额
	BalanceAmount    decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"balance_amount"` // 实际退回余额
	CouponAmount     decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"coupon_amount"`  // 实际退回代金券
	PaymentHistoryID string          `gorm:"type:varchar(36);not null" json:"payment_history_id"`
	RefundHistoryID  string          `gorm:"type:varchar(36)" json:"refund_history_id"` // 退款成功后回填 RefundRecord id
	ResourceType     ResourceType    `gorm:"type:varchar(16);not null" json:"resource_type"`
	Number           int             `gorm:"type:int;not null" json:"number"` // 退订资源数量
	Reason           string          `gorm:"type:varchar(255)" json:"reason"`
	Status           RefundStatus    `gorm:"type:varchar(16);index;not null;default:wait" json:"status"`
	StatusDesc       string          `gorm:"type:varchar(255)" json:"status_desc"`
	UserID           string          `gorm:"type:varchar(36)" json:"user_id"`
	Username         string          `gorm:"type:varchar(64)" json:"username"`
	VoID             string          `gorm:"type:varchar(36)" json:"vo_id"`
	VoName           string          `gorm:"type:varchar(256)" json:"vo_name"`
	OwnerType        OwnerType       `gorm:"type:varchar(8);not null" json:"owner_type"`
	RefundedTime     int64           `gorm:"type:bigint" json:"refunded_time"`
	Deleted          bool            `gorm:"type:boolean;not null;default:false" json:"deleted"`
	CreatedAt        int64           `gorm:"type:bigint;not null;autoCreateTime:milli" json:"created_at"`
	UpdatedAt        int64           `gorm:"type:bigint;not null;autoUpdateTime:milli" json:"updated_at"`
}

// TableName 返回表名
func (OrderRefund) TableName() string {
	return "order_refunds"
}
