package repository

import (
	"context"
	"database/sql/driver"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/cloudverse/broker/internal/model"
)

// setupMockDB 创建 mock 数据库连接
func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	dialector := postgres.New(postgres.Config{
		Conn:       db,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open gorm db: %v", err)
	}

	cleanup := func() {
		db.Close()
	}

	return gormDB, mock, cleanup
}

// orderColumns 返回测试用的 orders 列名
func orderColumns() []string {
	return []string{
		"id", "status", "payable_amount", "pay_amount", "resource_type", "number",
		"user_id", "username", "owner_type", "trading_status", "order_action",
		"deleted", "created_at", "updated_at",
	}
}

func orderRow(orderID string) []driver.Value {
	now := time.Now().UnixMilli()
	return []driver.Value{
		orderID, "unpaid", "100.00", "0.00", "vm", 1,
		"u1", "alice", "user", "opening", "none",
		false, now, now,
	}
}

func TestOrderRepository_GetByID_Success(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()

	repo := NewOrderRepository(db)
	ctx := context.Background()
	orderID := "2024010112000000000001"

	rows := sqlmock.NewRows(orderColumns()).AddRow(orderRow(orderID)...)
	mock.ExpectQuery(`SELECT \* FROM "orders" WHERE id = \$1 AND deleted = \$2 ORDER BY "orders"\."id" LIMIT \$3`).
		WithArgs(orderID, false, 1).
		WillReturnRows(rows)

	order, err := repo.GetByID(ctx, orderID)

	assert.NoError(t, err)
	assert.NotNil(t, order)
	assert.Equal(t, orderID, order.ID)
	assert.Equal(t, model.OrderStatusUnpaid, order.Status)
	assert.True(t, order.PayableAmount.Equal(decimal.RequireFromString("100.00")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_GetByID_NotFound(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()

	repo := NewOrderRepository(db)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT \* FROM "orders" WHERE id = \$1 AND deleted = \$2 ORDER BY "orders"\."id" LIMIT \$3`).
		WithArgs("missing", false, 1).
		WillReturnError(gorm.ErrRecordNotFound)

	order, err := repo.GetByID(ctx, "missing")

	assert.Nil(t, order)
	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_GetByIDForUpdate_Locks(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()

	repo := NewOrderRepository(db)
	ctx := context.Background()
	orderID := "2024010112000000000001"

	rows := sqlmock.NewRows(orderColumns()).AddRow(orderRow(orderID)...)
	mock.ExpectQuery(`SELECT \* FROM "orders" WHERE id = \$1 AND deleted = \$2 ORDER BY "orders"\."id" LIMIT \$3 FOR UPDATE`).
		WithArgs(orderID, false, 1).
		WillReturnRows(rows)

	order, err := repo.GetByIDForUpdate(ctx, orderID)

	assert.NoError(t, err)
	assert.Equal(t, orderID, order.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_UpdatePaid_Success(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()

	repo := NewOrderRepository(db)
	ctx := context.Background()

	order := &model.Order{
		ID:               "2024010112000000000001",
		Status:           model.OrderStatusPaid,
		PaymentMethod:    model.PaymentMethodBalance,
		PayAmount:        decimal.RequireFromString("100.00"),
		BalanceAmount:    decimal.RequireFromString("100.00"),
		CouponAmount:     decimal.Zero,
		PaymentTime:      time.Now().UnixMilli(),
		PaymentHistoryID: "pay-1",
	}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "orders" SET .+ WHERE id = \$\d+ AND status = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.UpdatePaid(ctx, order)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_UpdatePaid_StatusGuard(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()

	repo := NewOrderRepository(db)
	ctx := context.Background()

	order := &model.Order{ID: "2024010112000000000001", Status: model.OrderStatusPaid}

	// 状态守卫未命中任何行，说明订单已被并发支付
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "orders" SET .+ WHERE id = \$\d+ AND status = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.UpdatePaid(ctx, order)

	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_AcquireAction_Success(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()

	repo := NewOrderRepository(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "orders" SET "order_action"=\$1,"updated_at"=\$2 WHERE id = \$3 AND order_action = \$4`).
		WithArgs(model.OrderActionDelivering, sqlmock.AnyArg(), "order-1", model.OrderActionNone).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.AcquireAction(ctx, "order-1", model.OrderActionDelivering)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_AcquireAction_Conflict(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()

	repo := NewOrderRepository(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "orders" SET "order_action"=\$1,"updated_at"=\$2 WHERE id = \$3 AND order_action = \$4`).
		WithArgs(model.OrderActionDelivering, sqlmock.AnyArg(), "order-1", model.OrderActionNone).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.AcquireAction(ctx, "order-1", model.OrderActionDelivering)

	assert.ErrorIs(t, err, ErrActionConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_ReleaseAction(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()

	repo := NewOrderRepository(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "orders" SET "order_action"=\$1,"updated_at"=\$2 WHERE id = \$3 AND order_action = \$4`).
		WithArgs(model.OrderActionNone, sqlmock.AnyArg(), "order-1", model.OrderActionDelivering).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.ReleaseAction(ctx, "order-1", model.OrderActionDelivering)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_ListResources(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()

	repo := NewOrderRepository(db)
	ctx := context.Background()
	now := time.Now().UnixMilli()

	rows := sqlmock.NewRows([]string{"id", "order_id", "resource_type", "instance_status", "created_at", "updated_at"}).
		AddRow("r1", "order-1", "vm", "wait", now, now).
		AddRow("r2", "order-1", "vm", "success", now, now)

	mock.ExpectQuery(`SELECT \* FROM "order_resources" WHERE order_id = \$1 ORDER BY created_at ASC`).
		WithArgs("order-1").
		WillReturnRows(rows)

	resources, err := repo.ListResources(ctx, "order-1")

	assert.NoError(t, err)
	assert.Len(t, resources, 2)
	assert.True(t, resources[0].NeedDeliver())
	assert.False(t, resources[1].NeedDeliver())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_UpdateResourceDeliverFailed_TruncatesDesc(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()

	repo := NewOrderRepository(db)
	ctx := context.Background()
	longDesc := strings.Repeat("x", 300)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "order_resources" SET "desc"=\$1,"instance_status"=\$2,"last_deliver_time"=\$3,"updated_at"=\$4 WHERE id = \$5`).
		WithArgs(strings.Repeat("x", 255), model.InstanceStatusFailed, sqlmock.AnyArg(), sqlmock.AnyArg(), "r1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.UpdateResourceDeliverFailed(ctx, "r1", longDesc)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_UpdateResourceDeliverFailed_TruncatesMultiByteDesc(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()

	repo := NewOrderRepository(db)
	ctx := context.Background()
	// 中文错误描述按字符截断，不能切坏多字节字符
	longDesc := strings.Repeat("配", 300)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "order_resources" SET "desc"=\$1,"instance_status"=\$2,"last_deliver_time"=\$3,"updated_at"=\$4 WHERE id = \$5`).
		WithArgs(strings.Repeat("配", 255), model.InstanceStatusFailed, sqlmock.AnyArg(), sqlmock.AnyArg(), "r1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.UpdateResourceDeliverFailed(ctx, "r1", longDesc)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_TransactionReusesOuterTx(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()

	repo := NewOrderRepository(db)
	ctx := context.Background()

	// 嵌套 Transaction 只应产生一对 BEGIN/COMMIT
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "orders" SET "order_action"=\$1,"updated_at"=\$2 WHERE id = \$3 AND order_action = \$4`).
		WithArgs(model.OrderActionDelivering, sqlmock.AnyArg(), "order-1", model.OrderActionNone).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Transaction(ctx, func(txCtx context.Context) error {
		return repo.Transaction(txCtx, func(innerCtx context.Context) error {
			return repo.AcquireAction(innerCtx, "order-1", model.OrderActionDelivering)
		})
	})

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
