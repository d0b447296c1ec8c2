package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/cloudverse/broker/internal/model"
	"github.com/cloudverse/broker/internal/provider"
	"github.com/cloudverse/broker/internal/quota"
)

// ========== Mock OrderRepository ==========

type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (m *MockOrderRepository) Create(ctx context.Context, order *model.Order, resources []*model.Resource) error {
	args := m.Called(ctx, order, resources)
	return args.Error(0)
}

func (m *MockOrderRepository) GetByID(ctx context.Context, orderID string) (*model.Order, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderRepository) GetByIDForUpdate(ctx context.Context, orderID string) (*model.Order, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderRepository) UpdatePaid(ctx context.Context, order *model.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockOrderRepository) UpdateCancelled(ctx context.Context, order *model.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockOrderRepository) UpdateStatus(ctx context.Context, orderID string, status model.OrderStatus) error {
	args := m.Called(ctx, orderID, status)
	return args.Error(0)
}

func (m *MockOrderRepository) UpdateTradingStatus(ctx context.Context, orderID string, tradingStatus model.TradingStatus) error {
	args := m.Called(ctx, orderID, tradingStatus)
	return args.Error(0)
}

func (m *MockOrderRepository) SetRefundSuccess(ctx context.Context, orderID string, partRefund bool) error {
	args := m.Called(ctx, orderID, partRefund)
	return args.Error(0)
}

func (m *MockOrderRepository) AcquireAction(ctx context.Context, orderID string, action model.OrderAction) error {
	args := m.Called(ctx, orderID, action)
	return args.Error(0)
}

func (m *MockOrderRepository) ReleaseAction(ctx context.Context, orderID string, action model.OrderAction) error {
	args := m.Called(ctx, orderID, action)
	return args.Error(0)
}

func (m *MockOrderRepository) ListResources(ctx context.Context, orderID string) ([]*model.Resource, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Resource), args.Error(1)
}

func (m *MockOrderRepository) ListResourcesForUpdate(ctx context.Context, orderID string) ([]*model.Resource, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Resource), args.Error(1)
}

func (m *MockOrderRepository) UpdateResourceDeliverOK(ctx context.Context, resourceID, instanceID string) error {
	args := m.Called(ctx, resourceID, instanceID)
	return args.Error(0)
}

func (m *MockOrderRepository) UpdateResourceDeliverFailed(ctx context.Context, resourceID, desc string) error {
	args := m.Called(ctx, resourceID, desc)
	return args.Error(0)
}

func (m *MockOrderRepository) TouchResourceDeliverTime(ctx context.Context, resourceID string) error {
	args := m.Called(ctx, resourceID)
	return args.Error(0)
}

// ========== Mock AccountRepository ==========

type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (m *MockAccountRepository) GetOrCreate(ctx context.Context, ownerType model.OwnerType, ownerID string) (*model.PointAccount, error) {
	args := m.Called(ctx, ownerType, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PointAccount), args.Error(1)
}

func (m *MockAccountRepository) GetForUpdate(ctx context.Context, ownerType model.OwnerType, ownerID string) (*model.PointAccount, error) {
	args := m.Called(ctx, ownerType, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PointAccount), args.Error(1)
}

func (m *MockAccountRepository) UpdateBalance(ctx context.Context, accountID string, balance decimal.Decimal) error {
	args := m.Called(ctx, accountID, balance)
	return args.Error(0)
}

func (m *MockAccountRepository) CreateBill(ctx context.Context, bill *model.TransactionBill) error {
	args := m.Called(ctx, bill)
	return args.Error(0)
}

func (m *MockAccountRepository) ListBills(ctx context.Context, ownerType model.OwnerType, ownerID string, limit int) ([]*model.TransactionBill, error) {
	args := m.Called(ctx, ownerType, ownerID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.TransactionBill), args.Error(1)
}

// ========== Mock CouponRepository ==========

type MockCouponRepository struct {
	mock.Mock
}

func (m *MockCouponRepository) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (m *MockCouponRepository) GetByID(ctx context.Context, couponID string) (*model.CashCoupon, error) {
	args := m.Called(ctx, couponID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CashCoupon), args.Error(1)
}

func (m *MockCouponRepository) GetByIDsForUpdate(ctx context.Context, ownerType model.OwnerType, ownerID string, couponIDs []string) (map[string]*model.CashCoupon, error) {
	args := m.Called(ctx, ownerType, ownerID, couponIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]*model.CashCoupon), args.Error(1)
}

func (m *MockCouponRepository) ListUsableForUpdate(ctx context.Context, ownerType model.OwnerType, ownerID string, now time.Time) ([]*model.CashCoupon, error) {
	args := m.Called(ctx, ownerType, ownerID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.CashCoupon), args.Error(1)
}

func (m *MockCouponRepository) UpdateBalance(ctx context.Context, couponID string, balance decimal.Decimal) error {
	args := m.Called(ctx, couponID, balance)
	return args.Error(0)
}

func (m *MockCouponRepository) CreateHistory(ctx context.Context, history *model.CashCouponPaymentHistory) error {
	args := m.Called(ctx, history)
	return args.Error(0)
}

func (m *MockCouponRepository) ListHistoriesByPayment(ctx context.Context, paymentHistoryID string) ([]*model.CashCouponPaymentHistory, error) {
	args := m.Called(ctx, paymentHistoryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.CashCouponPaymentHistory), args.Error(1)
}

// ========== Mock PaymentRepository ==========

type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (m *MockPaymentRepository) CreatePayment(ctx context.Context, payment *model.PaymentHistory) error {
	args := m.Called(ctx, payment)
	return args.Error(0)
}

func (m *MockPaymentRepository) GetPayment(ctx context.Context, paymentHistoryID string) (*model.PaymentHistory, error) {
	args := m.Called(ctx, paymentHistoryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PaymentHistory), args.Error(1)
}

func (m *MockPaymentRepository) GetPaymentForUpdate(ctx context.Context, paymentHistoryID string) (*model.PaymentHistory, error) {
	args := m.Called(ctx, paymentHistoryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PaymentHistory), args.Error(1)
}

func (m *MockPaymentRepository) SumRefundedAmounts(ctx context.Context, paymentHistoryID string) (decimal.Decimal, error) {
	args := m.Called(ctx, paymentHistoryID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockPaymentRepository) CreateRefund(ctx context.Context, refund *model.RefundRecord) error {
	args := m.Called(ctx, refund)
	return args.Error(0)
}

func (m *MockPaymentRepository) GetRefundByOutID(ctx context.Context, outRefundID string) (*model.RefundRecord, error) {
	args := m.Called(ctx, outRefundID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RefundRecord), args.Error(1)
}

func (m *MockPaymentRepository) CreateOrderRefund(ctx context.Context, refund *model.OrderRefund) error {
	args := m.Called(ctx, refund)
	return args.Error(0)
}

func (m *MockPaymentRepository) GetOrderRefundForUpdate(ctx context.Context, refundID string) (*model.OrderRefund, error) {
	args := m.Called(ctx, refundID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.OrderRefund), args.Error(1)
}

func (m *MockPaymentRepository) UpdateOrderRefund(ctx context.Context, refund *model.OrderRefund) error {
	args := m.Called(ctx, refund)
	return args.Error(0)
}

// ========== Mock quota.Manager ==========

type MockQuotaManager struct {
	mock.Mock
}

func (m *MockQuotaManager) Reserve(ctx context.Context, serviceID string, req quota.Requirement) error {
	args := m.Called(ctx, serviceID, req)
	return args.Error(0)
}

func (m *MockQuotaManager) Release(ctx context.Context, serviceID string, req quota.Requirement) error {
	args := m.Called(ctx, serviceID, req)
	return args.Error(0)
}

func (m *MockQuotaManager) Commit(ctx context.Context, serviceID string, req quota.Requirement) error {
	args := m.Called(ctx, serviceID, req)
	return args.Error(0)
}

// ========== Mock provider.Adapter ==========

type MockAdapter struct {
	mock.Mock
}

func (m *MockAdapter) CreateInstance(ctx context.Context, serviceID string, params *provider.CreateParams) (*provider.CreateResult, error) {
	args := m.Called(ctx, serviceID, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.CreateResult), args.Error(1)
}

func (m *MockAdapter) DescribeDiskSize(ctx context.Context, serviceID, diskID string) (int, error) {
	args := m.Called(ctx, serviceID, diskID)
	return args.Int(0), args.Error(1)
}
