// Package model 定义订单交易服务的数据模型
package model

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus 订单支付状态
type OrderStatus string

const (
	OrderStatusUnpaid     OrderStatus = "unpaid"      // 未支付
	OrderStatusPaid       OrderStatus = "paid"        // 已支付
	OrderStatusCancelled  OrderStatus = "cancelled"   // 作废
	OrderStatusRefunding  OrderStatus = "refunding"   // 退款中
	OrderStatusRefund     OrderStatus = "refund"      // 全额退款
	OrderStatusPartRefund OrderStatus = "part_refund" // 部分退款
)

// IsTerminal 判断是否为终态
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCancelled || s == OrderStatusRefund
}

// TradingStatus 订单交易(交付)状态，与支付状态正交
type TradingStatus string

const (
	TradingStatusOpening     TradingStatus = "opening"      // 交易中
	TradingStatusUndelivered TradingStatus = "undelivered"  // 订单资源交付失败
	TradingStatusCompleted   TradingStatus = "completed"    // 交易成功
	TradingStatusClosed      TradingStatus = "closed"       // 交易关闭
	TradingStatusPartDeliver TradingStatus = "part_deliver" // 部分交付成功
)

// OrderAction 订单动作标记，作为并发交付的互斥标志
type OrderAction string

const (
	OrderActionNone       OrderAction = "none"       // 无
	OrderActionDelivering OrderAction = "delivering" // 交付资源中
)

// PaymentMethod 付款方式
type PaymentMethod string

const (
	PaymentMethodUnknown    PaymentMethod = "unknown"    // 未知
	PaymentMethodBalance    PaymentMethod = "balance"    // 余额
	PaymentMethodCashCoupon PaymentMethod = "cashcoupon" // 代金券
	PaymentMethodMixed      PaymentMethod = "mixed"      // 混合支付
)

// OrderType 订单类型
type OrderType string

const (
	OrderTypeNew     OrderType = "new"     // 新购
	OrderTypeRenewal OrderType = "renewal" // 续费
	OrderTypeUpgrade OrderType = "upgrade" // 升级
)

// PayType 结算方式
type PayType string

const (
	PayTypePrepaid  PayType = "prepaid"  // 包年包月预付
	PayTypePostpaid PayType = "postpaid" // 按量计费后付
)

// ResourceType 资源类型
type ResourceType string

const (
	ResourceTypeServer   ResourceType = "vm"       // 云服务器
	ResourceTypeDisk     ResourceType = "disk"     // 云硬盘
	ResourceTypeSnapshot ResourceType = "snapshot" // 云硬盘快照
	ResourceTypeBucket   ResourceType = "bucket"   // 对象存储桶
	ResourceTypeScan     ResourceType = "scan"     // 安全扫描任务
)

// OwnerType 订单/账户/券的归属类型
type OwnerType string

const (
	OwnerTypeUser OwnerType = "user" // 个人
	OwnerTypeVo   OwnerType = "vo"   // VO 组
)

// Order 订单模型
// 对应数据库表 orders
type Order struct {
	ID            string        `gorm:"type:varchar(32);primaryKey" json:"id"` // 订单编号 (SN)
	OrderType     OrderType     `gorm:"type:varchar(16);not null;default:new" json:"order_type"`
	Status        OrderStatus   `gorm:"type:varchar(16);index;not null;default:unpaid" json:"status"`
	TotalAmount   decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"total_amount"`     // 原价金额
	PayableAmount decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"payable_amount"`   // 应付金额，创建时确定，支付不改变
	PayAmount     decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"pay_amount"`       // 实付金额
	BalanceAmount decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"balance_amount"`   // 余额支付金额
	CouponAmount  decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"coupon_amount"`    // 券支付金额

	ServiceID      string       `gorm:"type:varchar(36);index" json:"service_id"` // 服务单元 id
	ServiceName    string       `gorm:"type:varchar(255)" json:"service_name"`
	ResourceType   ResourceType `gorm:"type:varchar(16);not null" json:"resource_type"`
	InstanceConfig string       `gorm:"type:text" json:"instance_config"` // 资源规格配置 (JSON)
	Period         int          `gorm:"type:int;not null;default:0" json:"period"` // 订购时长(月)
	Number         int          `gorm:"type:int;not null;default:1" json:"number"` // 订购资源数量

	PayType          PayType       `gorm:"type:varchar(16);not null" json:"pay_type"`
	PaymentMethod    PaymentMethod `gorm:"type:varchar(16);not null;default:unknown" json:"payment_method"`
	PaymentTime      int64         `gorm:"type:bigint" json:"payment_time"` // 支付时间 (毫秒, 0 未支付)
	PaymentHistoryID string        `gorm:"type:varchar(36)" json:"payment_history_id"`

	UserID    string    `gorm:"type:varchar(36);index" json:"user_id"`
	Username  string    `gorm:"type:varchar(64)" json:"username"`
	VoID      string    `gorm:"type:varchar(36);index" json:"vo_id"`
	VoName    string    `gorm:"type:varchar(256)" json:"vo_name"`
	OwnerType OwnerType `gorm:"type:varchar(8);not null" json:"owner_type"`

	TradingStatus  TradingStatus `gorm:"type:varchar(16);index;not null;default:opening" json:"trading_status"`
	OrderAction    OrderAction   `gorm:"type:varchar(16);not null;default:none" json:"order_action"` // 交付互斥标志
	AppServiceID   string        `gorm:"type:varchar(36);index" json:"app_service_id"`               // 结算子账户
	CompletionTime int64         `gorm:"type:bigint" json:"completion_time"`                         // 交易完成时间 (毫秒)
	CancelledTime  int64         `gorm:"type:bigint" json:"cancelled_time"`                          // 作废时间 (毫秒)
	Deleted        bool          `gorm:"type:boolean;not null;default:false" json:"deleted"`         // 软删除标记
	CreatedAt      int64         `gorm:"type:bigint;not null;autoCreateTime:milli" json:"created_at"`
	UpdatedAt      int64         `gorm:"type:bigint;not null;autoUpdateTime:milli" json:"updated_at"`
}

// TableName 返回表名
func (Order) TableName() string {
	return "orders"
}

// OwnerID 返回订单归属主体的 id (用户 id 或 VO 组 id)
func (o *Order) OwnerID() string {
	if o.OwnerType == OwnerTypeVo {
		return o.VoID
	}
	return o.UserID
}

// SetPaid 设置订单为已支付状态，依据余额/券金额推导付款方式
func (o *Order) SetPaid(payAmount, balanceAmount, couponAmount decimal.Decimal, paymentHistoryID string) error {
	if balanceAmount.IsNegative() || couponAmount.IsNegative() {
		return fmt.Errorf("balance_amount and coupon_amount must be non-negative")
	}

	switch {
	case balanceAmount.IsPositive() && couponAmount.IsZero():
		o.PaymentMethod = PaymentMethodBalance
	case balanceAmount.IsZero() && couponAmount.IsPositive():
		o.PaymentMethod = PaymentMethodCashCoupon
	case balanceAmount.IsPositive() && couponAmount.IsPositive():
		o.PaymentMethod = PaymentMethodMixed
	default:
		o.PaymentMethod = PaymentMethodUnknown
	}

	o.PayAmount = payAmount
	o.BalanceAmount = balanceAmount
	o.CouponAmount = couponAmount
	o.Status = OrderStatusPaid
	o.PaymentTime = time.Now().UnixMilli()
	o.PaymentHistoryID = paymentHistoryID
	return nil
}

// GenerateOrderSN 生成订单编号
// 长22位: 日期+纳秒+2位随机数
func GenerateOrderSN() string {
	t := time.Now().UTC()
	return fmt.Sprintf("%04d%02d%02d%02d%02d%02d%06d%02d",
		t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(),
		t.Nanosecond()/1000, rand.Intn(100))
}

// InstanceStatus 订单资源交付结果
type InstanceStatus string

const (
	InstanceStatusWait    InstanceStatus = "wait"    // 待交付
	InstanceStatusSuccess InstanceStatus = "success" // 交付成功
	InstanceStatusFailed  InstanceStatus = "failed"  // 交付失败
)

// Resource 订单资源 (订单行项目，每单位订购数量一条)
// 对应数据库表 order_resources
type Resource struct {
	ID             string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	OrderID        string         `gorm:"type:varchar(32);index;not null" json:"order_id"`
	ResourceType   ResourceType   `gorm:"type:varchar(16);not null" json:"resource_type"`
	InstanceID     string         `gorm:"type:varchar(36)" json:"instance_id"` // 交付成功后的资源实例 id
	InstanceStatus InstanceStatus `gorm:"type:varchar(16);index;not null;default:wait" json:"instance_status"`
	InstanceRemark string         `gorm:"type:varchar(255)" json:"instance_remark"`
	Desc           string         `gorm:"type:varchar(255)" json:"desc"`              // 交付结果描述
	LastDeliverTime int64         `gorm:"type:bigint" json:"last_deliver_time"`      // 上次交付时间 (毫秒)，交付节流标记
	DeliveredTime  int64          `gorm:"type:bigint" json:"delivered_time"`          // 交付成功时间 (毫秒)
	CreatedAt      int64          `gorm:"type:bigint;not null;autoCreateTime:milli" json:"created_at"`
	UpdatedAt      int64          `gorm:"type:bigint;not null;autoUpdateTime:milli" json:"updated_at"`
}

// TableName 返回表名
func (Resource) TableName() string {
	return "order_resources"
}

// NeedDeliver 判断资源是否还需要交付
func (r *Resource) NeedDeliver() bool {
	return r.InstanceStatus == InstanceStatusWait || r.InstanceStatus == InstanceStatusFailed
}
