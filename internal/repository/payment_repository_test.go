package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/cloudverse/broker/internal/model"
)

func TestPaymentRepository_SumRefundedAmounts(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()

	repo := NewPaymentRepository(db)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT SUM\(refund_amounts\) FROM "refund_records" WHERE payment_history_id = \$1 AND status = \$2`).
		WithArgs("pay-1", model.RefundStatusRefunded).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow("35.50"))

	sum, err := repo.SumRefundedAmounts(ctx, "pay-1")

	assert.NoError(t, err)
	assert.True(t, sum.Equal(decimal.RequireFromString("35.50")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_SumRefundedAmounts_NoRows(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()

	repo := NewPaymentRepository(db)
	ctx := context.Background()

	// 没有成功退款时 SUM 为 NULL, 应返回 0
	mock.ExpectQuery(`SELECT SUM\(refund_amounts\) FROM "refund_records"`).
		WithArgs("pay-1", model.RefundStatusRefunded).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(nil))

	sum, err := repo.SumRefundedAmounts(ctx, "pay-1")

	assert.NoError(t, err)
	assert.True(t, sum.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_GetRefundByOutID_NotFound(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()

	repo := NewPaymentRepository(db)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT \* FROM "refund_records" WHERE out_refund_id = \$1 ORDER BY "refund_records"\."id" LIMIT \$2`).
		WithArgs("missing", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	refund, err := repo.GetRefundByOutID(ctx, "missing")

	assert.ErrorIs(t, err, ErrRefundNotFound)
	assert.Nil(t, refund)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_UpdateOrderRefund_NotFound(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()

	repo := NewPaymentRepository(db)
	ctx := context.Background()

	refund := &model.OrderRefund{
		ID:           "refund-1",
		Status:       model.RefundStatusRefunded,
		RefundedTime: time.Now().UnixMilli(),
	}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "order_refunds" SET "balance_amount"=\$1,"coupon_amount"=\$2,"refund_history_id"=\$3,"refunded_time"=\$4,"status"=\$5,"status_desc"=\$6,"updated_at"=\$7 WHERE id = \$8`).
		WithArgs(
			sqlmock.AnyArg(), sqlmock.AnyArg(), "", refund.RefundedTime,
			model.RefundStatusRefunded, "", sqlmock.AnyArg(), "refund-1",
		).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.UpdateOrderRefund(ctx, refund)

	assert.ErrorIs(t, err, ErrRefundNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
