package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/cloudverse/broker/internal/model"
	"github.com/cloudverse/broker/pkg/errors"
)

type MockPaymentService struct {
	mock.Mock
}

func (m *MockPaymentService) PayOrder(ctx context.Context, orderID string, params PayOrderParams) (*model.Order, error) {
	args := m.Called(ctx, orderID, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

type MockRefundService struct {
	mock.Mock
}

func (m *MockRefundService) Refund(ctx context.Context, params RefundParams) (*model.RefundRecord, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RefundRecord), args.Error(1)
}

type MockDeliveryService struct {
	mock.Mock
}

func (m *MockDeliveryService) DeliverOrder(ctx context.Context, orderID string) error {
	args := m.Called(ctx, orderID)
	return args.Error(0)
}

func newOrderServiceForTest() (*orderService, *MockOrderRepository, *MockPaymentRepository, *MockPaymentService, *MockRefundService, *MockDeliveryService) {
	orderRepo := new(MockOrderRepository)
	paymentRepo := new(MockPaymentRepository)
	payments := new(MockPaymentService)
	refunds := new(MockRefundService)
	delivery := new(MockDeliveryService)
	svc := NewOrderService(orderRepo, paymentRepo, payments, refunds, delivery).(*orderService)
	return svc, orderRepo, paymentRepo, payments, refunds, delivery
}

func TestCreateOrder(t *testing.T) {
	svc, orderRepo, _, _, _, _ := newOrderServiceForTest()
	ctx := context.Background()

	var created *model.Order
	var resources []*model.Resource
	orderRepo.On("Create", mock.Anything, mock.AnythingOfType("*model.Order"), mock.Anything).
		Run(func(args mock.Arguments) {
			created = args.Get(1).(*model.Order)
			resources = args.Get(2).([]*model.Resource)
		}).Return(nil)

	order, err := svc.CreateOrder(ctx, CreateOrderParams{
		OrderType:     model.OrderTypeNew,
		PayType:       model.PayTypePrepaid,
		ResourceType:  model.ResourceTypeServer,
		ServiceID:     "svc-1",
		ServiceName:   "测试服务单元",
		Number:        3,
		Period:        12,
		TotalAmount:   decimal.RequireFromString("300"),
		PayableAmount: decimal.RequireFromString("270.5"),
		OwnerType:     model.OwnerTypeUser,
		UserID:        "u1",
		Username:      "alice",
	})
	assert.NoError(t, err)
	assert.Len(t, order.ID, 22)
	assert.Equal(t, model.OrderStatusUnpaid, order.Status)
	assert.Equal(t, model.TradingStatusOpening, order.TradingStatus)
	assert.True(t, order.PayableAmount.Equal(decimal.RequireFromString("270.50")))

	assert.Same(t, order, created)
	assert.Len(t, resources, 3)
	for _, res := range resources {
		assert.Equal(t, order.ID, res.OrderID)
		assert.Equal(t, model.ResourceTypeServer, res.ResourceType)
		assert.Equal(t, model.InstanceStatusWait, res.InstanceStatus)
	}
}

func TestCreateOrder_InvalidParams(t *testing.T) {
	svc, orderRepo, _, _, _, _ := newOrderServiceForTest()
	ctx := context.Background()

	_, err := svc.CreateOrder(ctx, CreateOrderParams{Number: 0})
	assert.ErrorIs(t, err, errors.ErrInvalidRequest)

	_, err = svc.CreateOrder(ctx, CreateOrderParams{Number: 1, PayableAmount: decimal.RequireFromString("-1")})
	assert.ErrorIs(t, err, errors.ErrInvalidRequest)

	orderRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestCancelOrder(t *testing.T) {
	svc, orderRepo, _, _, _, _ := newOrderServiceForTest()
	ctx := context.Background()

	order := newTestOrder()
	orderRepo.On("GetByIDForUpdate", mock.Anything, order.ID).Return(order, nil)
	orderRepo.On("UpdateCancelled", mock.Anything, order).Return(nil)

	cancelled, err := svc.CancelOrder(ctx, order.ID)
	assert.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, model.TradingStatusClosed, cancelled.TradingStatus)
	assert.NotZero(t, cancelled.CancelledTime)
}

func TestCancelOrder_Guards(t *testing.T) {
	t.Run("paid", func(t *testing.T) {
		svc, orderRepo, _, _, _, _ := newOrderServiceForTest()
		order := newTestOrder()
		order.Status = model.OrderStatusPaid
		orderRepo.On("GetByIDForUpdate", mock.Anything, order.ID).Return(order, nil)

		_, err := svc.CancelOrder(context.Background(), order.ID)
		assert.ErrorIs(t, err, errors.ErrOrderPaid)
	})

	t.Run("delivering", func(t *testing.T) {
		svc, orderRepo, _, _, _, _ := newOrderServiceForTest()
		order := newTestOrder()
		order.OrderAction = model.OrderActionDelivering
		orderRepo.On("GetByIDForUpdate", mock.Anything, order.ID).Return(order, nil)

		_, err := svc.CancelOrder(context.Background(), order.ID)
		assert.ErrorIs(t, err, errors.ErrOrderDelivering)
		orderRepo.AssertNotCalled(t, "UpdateCancelled", mock.Anything, mock.Anything)
	})
}

func TestPayOrder_TriggersDelivery(t *testing.T) {
	svc, _, _, payments, _, delivery := newOrderServiceForTest()
	ctx := context.Background()

	order := newTestOrder()
	order.Status = model.OrderStatusPaid
	payments.On("PayOrder", mock.Anything, order.ID, mock.Anything).Return(order, nil)
	delivery.On("DeliverOrder", mock.Anything, order.ID).Return(nil)

	paid, err := svc.PayOrder(ctx, order.ID, PayOrderParams{CouponIDs: []string{}})
	assert.NoError(t, err)
	assert.Equal(t, order, paid)
	delivery.AssertExpectations(t)
}

func TestPayOrder_DeliverFailureDoesNotFailPayment(t *testing.T) {
	svc, _, _, payments, _, delivery := newOrderServiceForTest()
	ctx := context.Background()

	order := newTestOrder()
	order.Status = model.OrderStatusPaid
	payments.On("PayOrder", mock.Anything, order.ID, mock.Anything).Return(order, nil)
	delivery.On("DeliverOrder", mock.Anything, order.ID).Return(errors.ErrTryAgainLater)

	paid, err := svc.PayOrder(ctx, order.ID, PayOrderParams{CouponIDs: []string{}})
	assert.NoError(t, err)
	assert.Equal(t, order, paid)
}

func TestCreateRefund(t *testing.T) {
	svc, orderRepo, paymentRepo, _, _, _ := newOrderServiceForTest()
	ctx := context.Background()

	// 实付 100, 订购 2 个资源, 1 个未交付 -> 应退 50
	order := newTestOrder()
	order.Status = model.OrderStatusPaid
	order.Number = 2
	order.PayAmount = decimal.RequireFromString("100.00")
	order.PaymentHistoryID = "pay-1"

	resources := []*model.Resource{
		{ID: "r1", OrderID: order.ID, InstanceStatus: model.InstanceStatusSuccess},
		{ID: "r2", OrderID: order.ID, InstanceStatus: model.InstanceStatusFailed},
	}

	orderRepo.On("GetByIDForUpdate", mock.Anything, order.ID).Return(order, nil)
	orderRepo.On("ListResourcesForUpdate", mock.Anything, order.ID).Return(resources, nil)
	paymentRepo.On("CreateOrderRefund", mock.Anything, mock.AnythingOfType("*model.OrderRefund")).Return(nil)
	orderRepo.On("UpdateStatus", mock.Anything, order.ID, model.OrderStatusRefunding).Return(nil)

	refund, err := svc.CreateRefund(ctx, order.ID, "不再需要")
	assert.NoError(t, err)
	assert.Equal(t, model.RefundStatusWait, refund.Status)
	assert.Equal(t, 1, refund.Number)
	assert.Equal(t, "pay-1", refund.PaymentHistoryID)
	assert.True(t, refund.RefundAmount.Equal(decimal.RequireFromString("50.00")))

	orderRepo.AssertExpectations(t)
	paymentRepo.AssertExpectations(t)
}

func TestCreateRefund_AllDelivered(t *testing.T) {
	svc, orderRepo, paymentRepo, _, _, _ := newOrderServiceForTest()
	ctx := context.Background()

	order := newTestOrder()
	order.Status = model.OrderStatusPaid
	resources := []*model.Resource{
		{ID: "r1", OrderID: order.ID, InstanceStatus: model.InstanceStatusSuccess},
	}
	orderRepo.On("GetByIDForUpdate", mock.Anything, order.ID).Return(order, nil)
	orderRepo.On("ListResourcesForUpdate", mock.Anything, order.ID).Return(resources, nil)

	_, err := svc.CreateRefund(ctx, order.ID, "")
	assert.ErrorIs(t, err, errors.ErrOrderTradingCompleted)
	paymentRepo.AssertNotCalled(t, "CreateOrderRefund", mock.Anything, mock.Anything)
}

func TestCreateRefund_Guards(t *testing.T) {
	t.Run("unpaid", func(t *testing.T) {
		svc, orderRepo, _, _, _, _ := newOrderServiceForTest()
		order := newTestOrder()
		orderRepo.On("GetByIDForUpdate", mock.Anything, order.ID).Return(order, nil)

		_, err := svc.CreateRefund(context.Background(), order.ID, "")
		assert.ErrorIs(t, err, errors.ErrOrderUnpaid)
	})

	t.Run("delivering", func(t *testing.T) {
		svc, orderRepo, _, _, _, _ := newOrderServiceForTest()
		order := newTestOrder()
		order.Status = model.OrderStatusPaid
		order.OrderAction = model.OrderActionDelivering
		orderRepo.On("GetByIDForUpdate", mock.Anything, order.ID).Return(order, nil)

		_, err := svc.CreateRefund(context.Background(), order.ID, "")
		assert.ErrorIs(t, err, errors.ErrOrderDelivering)
	})
}

func TestDoRefund(t *testing.T) {
	svc, orderRepo, paymentRepo, _, refunds, _ := newOrderServiceForTest()
	ctx := context.Background()

	order := newTestOrder()
	order.Status = model.OrderStatusRefunding
	order.Number = 2

	refund := &model.OrderRefund{
		ID:               "order-refund-1",
		OrderID:          order.ID,
		RefundAmount:     decimal.RequireFromString("50.00"),
		PaymentHistoryID: "pay-1",
		Number:           1,
		Status:           model.RefundStatusWait,
		Reason:           "不再需要",
	}
	record := &model.RefundRecord{
		ID:           "refund-1",
		RealRefund:   decimal.RequireFromString("30.00"),
		CouponRefund: decimal.RequireFromString("20.00"),
		RefundedTime: 1700000000000,
	}

	paymentRepo.On("GetOrderRefundForUpdate", mock.Anything, "order-refund-1").Return(refund, nil)
	orderRepo.On("GetByIDForUpdate", mock.Anything, order.ID).Return(order, nil)
	refunds.On("Refund", mock.Anything, RefundParams{
		PaymentHistoryID: "pay-1",
		OutRefundID:      "order-refund-1",
		RefundAmounts:    refund.RefundAmount,
		RefundReason:     "不再需要",
		IsRefundCoupon:   true,
	}).Return(record, nil)
	paymentRepo.On("UpdateOrderRefund", mock.Anything, refund).Return(nil)
	// 1 of 2 退订，订单转部分退款
	orderRepo.On("SetRefundSuccess", mock.Anything, order.ID, true).Return(nil)

	done, err := svc.DoRefund(ctx, "order-refund-1", true)
	assert.NoError(t, err)
	assert.Equal(t, model.RefundStatusRefunded, done.Status)
	assert.Equal(t, "refund-1", done.RefundHistoryID)
	assert.True(t, done.BalanceAmount.Equal(decimal.RequireFromString("30.00")))
	assert.True(t, done.CouponAmount.Equal(decimal.RequireFromString("20.00")))

	orderRepo.AssertExpectations(t)
	paymentRepo.AssertExpectations(t)
	refunds.AssertExpectations(t)
}

func TestDoRefund_FailureMarksRefundFailed(t *testing.T) {
	svc, orderRepo, paymentRepo, _, refunds, _ := newOrderServiceForTest()
	ctx := context.Background()

	order := newTestOrder()
	order.Status = model.OrderStatusRefunding

	refund := &model.OrderRefund{
		ID:           "order-refund-1",
		OrderID:      order.ID,
		RefundAmount: decimal.RequireFromString("50.00"),
		Status:       model.RefundStatusWait,
	}

	paymentRepo.On("GetOrderRefundForUpdate", mock.Anything, "order-refund-1").Return(refund, nil)
	orderRepo.On("GetByIDForUpdate", mock.Anything, order.ID).Return(order, nil)
	refunds.On("Refund", mock.Anything, mock.Anything).Return(nil, errors.ErrRefundAmountsExceedTotal)
	paymentRepo.On("UpdateOrderRefund", mock.Anything, refund).Return(nil)

	_, err := svc.DoRefund(ctx, "order-refund-1", true)
	assert.ErrorIs(t, err, errors.ErrRefundAmountsExceedTotal)

	// 失败状态在事务外落库
	assert.Equal(t, model.RefundStatusFailed, refund.Status)
	assert.NotEmpty(t, refund.StatusDesc)
	paymentRepo.AssertCalled(t, "UpdateOrderRefund", mock.Anything, refund)
	orderRepo.AssertNotCalled(t, "SetRefundSuccess", mock.Anything, mock.Anything, mock.Anything)
}

func TestDoRefund_StatusConflict(t *testing.T) {
	svc, _, paymentRepo, _, refunds, _ := newOrderServiceForTest()

	refund := &model.OrderRefund{ID: "order-refund-1", Status: model.RefundStatusRefunded}
	paymentRepo.On("GetOrderRefundForUpdate", mock.Anything, "order-refund-1").Return(refund, nil)

	_, err := svc.DoRefund(context.Background(), "order-refund-1", true)
	assert.ErrorIs(t, err, errors.ErrRefundStatusConflict)
	refunds.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything)
}

func TestDoRefund_ZeroAmountSucceedsWithoutWalletRefund(t *testing.T) {
	svc, orderRepo, paymentRepo, _, refunds, _ := newOrderServiceForTest()
	ctx := context.Background()

	order := newTestOrder()
	order.Status = model.OrderStatusRefunding
	order.Number = 2

	// 免费订单: 应退金额为 0
	refund := &model.OrderRefund{
		ID:           "order-refund-1",
		OrderID:      order.ID,
		RefundAmount: decimal.Zero,
		Number:       2,
		Status:       model.RefundStatusWait,
	}

	paymentRepo.On("GetOrderRefundForUpdate", mock.Anything, "order-refund-1").Return(refund, nil)
	orderRepo.On("GetByIDForUpdate", mock.Anything, order.ID).Return(order, nil)
	paymentRepo.On("UpdateOrderRefund", mock.Anything, refund).Return(nil)
	orderRepo.On("SetRefundSuccess", mock.Anything, order.ID, false).Return(nil)

	done, err := svc.DoRefund(ctx, "order-refund-1", true)
	assert.NoError(t, err)
	assert.Equal(t, model.RefundStatusRefunded, done.Status)
	assert.Empty(t, done.RefundHistoryID)
	assert.True(t, done.BalanceAmount.IsZero())
	assert.True(t, done.CouponAmount.IsZero())

	refunds.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything)
	orderRepo.AssertExpectations(t)
	paymentRepo.AssertExpectations(t)
}

func TestCancelRefund(t *testing.T) {
	svc, orderRepo, paymentRepo, _, _, _ := newOrderServiceForTest()
	ctx := context.Background()

	refund := &model.OrderRefund{ID: "order-refund-1", OrderID: "order-1", Status: model.RefundStatusFailed}
	paymentRepo.On("GetOrderRefundForUpdate", mock.Anything, "order-refund-1").Return(refund, nil)
	paymentRepo.On("UpdateOrderRefund", mock.Anything, refund).Return(nil)
	orderRepo.On("UpdateStatus", mock.Anything, "order-1", model.OrderStatusPaid).Return(nil)

	err := svc.CancelRefund(ctx, "order-refund-1")
	assert.NoError(t, err)
	assert.Equal(t, model.RefundStatusCancelled, refund.Status)
	orderRepo.AssertExpectations(t)
}
