package app

import (
	"gorm.io/gorm"

	"github.com/cloudverse/broker/internal/model"
)

// AutoMigrate 自动执行数据库迁移
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Order{},
		&model.Resource{},
		&model.PointAccount{},
		&model.TransactionBill{},
		&model.CashCoupon{},
		&model.CashCouponPaymentHistory{},
		&model.PaymentHistory{},
		&model.RefundRecord{},
		&model.OrderRefund{},
	)
}
