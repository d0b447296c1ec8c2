// Package errors 定义业务错误类型和错误码
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error 业务错误
type Error struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	HTTPStatus int               `json:"-"`
	GRPCCode   codes.Code        `json:"-"`
	Cause      error             `json:"-"`
	Details    map[string]string `json:"details,omitempty"`
	Stack      string            `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is 实现 errors.Is 接口，按错误码匹配
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetails 添加详情
func (e *Error) WithDetails(details map[string]string) *Error {
	newErr := e.Copy()
	if newErr.Details == nil {
		newErr.Details = make(map[string]string)
	}
	for k, v := range details {
		newErr.Details[k] = v
	}
	return newErr
}

// WithDetail 添加单个详情
func (e *Error) WithDetail(key, value string) *Error {
	return e.WithDetails(map[string]string{key: value})
}

// WithMessage 替换错误消息
func (e *Error) WithMessage(message string) *Error {
	newErr := e.Copy()
	newErr.Message = message
	return newErr
}

// WithMessagef 格式化替换错误消息
func (e *Error) WithMessagef(format string, args ...interface{}) *Error {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

// Copy 复制错误
func (e *Error) Copy() *Error {
	newErr := &Error{
		Code:       e.Code,
		Message:    e.Message,
		HTTPStatus: e.HTTPStatus,
		GRPCCode:   e.GRPCCode,
		Cause:      e.Cause,
		Stack:      e.Stack,
	}
	if e.Details != nil {
		newErr.Details = make(map[string]string)
		for k, v := range e.Details {
			newErr.Details[k] = v
		}
	}
	return newErr
}

// JSON 返回 JSON 格式
func (e *Error) JSON() string {
	data, _ := json.Marshal(e)
	return string(data)
}

// New 创建新错误
func New(code, message string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		GRPCCode:   codes.Internal,
	}
}

// NewWithStatus 创建带状态码的错误
func NewWithStatus(code, message string, httpStatus int, grpcCode codes.Code) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		GRPCCode:   grpcCode,
	}
}

// Wrap 包装错误
func Wrap(err *Error, cause error) *Error {
	newErr := err.Copy()
	newErr.Cause = cause
	newErr.Stack = getStack()
	return newErr
}

// Wrapf 包装错误并添加信息
func Wrapf(err *Error, format string, args ...interface{}) *Error {
	newErr := err.Copy()
	newErr.Message = fmt.Sprintf("%s: %s", err.Message, fmt.Sprintf(format, args...))
	newErr.Stack = getStack()
	return newErr
}

// getStack 获取调用栈
func getStack() string {
	var pcs [32]uintptr
	n := runtime.Callers(3, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var builder strings.Builder
	for {
		frame, more := frames.Next()
		builder.WriteString(fmt.Sprintf("%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line))
		if !more {
			break
		}
	}
	return builder.String()
}

// FromError 从标准错误转换
func FromError(err error) *Error {
	if err == nil {
		return nil
	}

	var bizErr *Error
	if errors.As(err, &bizErr) {
		return bizErr
	}

	return Wrap(ErrInternal, err)
}

// 通用错误码
var (
	ErrInternal           = NewWithStatus("INTERNAL_ERROR", "内部错误", http.StatusInternalServerError, codes.Internal)
	ErrInvalidRequest     = NewWithStatus("INVALID_REQUEST", "请求参数无效", http.StatusBadRequest, codes.InvalidArgument)
	ErrNotFound           = NewWithStatus("NOT_FOUND", "资源不存在", http.StatusNotFound, codes.NotFound)
	ErrConflict           = NewWithStatus("CONFLICT", "资源冲突", http.StatusConflict, codes.AlreadyExists)
	ErrTimeout            = NewWithStatus("TIMEOUT", "请求超时", http.StatusGatewayTimeout, codes.DeadlineExceeded)
	ErrPreconditionFailed = NewWithStatus("PRECONDITION_FAILED", "前置条件失败", http.StatusPreconditionFailed, codes.FailedPrecondition)
)

// 订单状态相关错误码
var (
	ErrOrderNotFound        = NewWithStatus("OrderNotFound", "订单不存在", http.StatusNotFound, codes.NotFound)
	ErrOrderPaid            = NewWithStatus("OrderPaid", "订单已支付", http.StatusConflict, codes.FailedPrecondition)
	ErrOrderUnpaid          = NewWithStatus("OrderUnpaid", "订单未支付", http.StatusConflict, codes.FailedPrecondition)
	ErrOrderCancelled       = NewWithStatus("OrderCancelled", "订单已作废", http.StatusConflict, codes.FailedPrecondition)
	ErrOrderRefund          = NewWithStatus("OrderRefund", "订单已退款", http.StatusConflict, codes.FailedPrecondition)
	ErrOrderTradingClosed   = NewWithStatus("OrderTradingClosed", "订单交易已关闭", http.StatusConflict, codes.FailedPrecondition)
	ErrOrderTradingCompleted = NewWithStatus("OrderTradingCompleted", "订单交易已完成", http.StatusConflict, codes.FailedPrecondition)
	ErrOrderDelivering      = NewWithStatus("OrderDelivering", "订单资源正在交付中", http.StatusConflict, codes.Aborted)
	ErrOrderStatusUnknown   = NewWithStatus("OrderStatusUnknown", "订单状态未知", http.StatusConflict, codes.FailedPrecondition)
	ErrTryAgainLater        = NewWithStatus("TryAgainLater", "请稍后重试", http.StatusConflict, codes.Aborted)
)

// 支付相关错误码
var (
	ErrBalanceNotEnough       = NewWithStatus("BalanceNotEnough", "余额不足", http.StatusConflict, codes.FailedPrecondition)
	ErrCouponBalanceNotEnough = NewWithStatus("CouponBalanceNotEnough", "代金券余额不足", http.StatusConflict, codes.FailedPrecondition)
	ErrNoSuchCoupon           = NewWithStatus("NoSuchCoupon", "代金券不存在", http.StatusNotFound, codes.NotFound)
	ErrNotEffective           = NewWithStatus("NotEffective", "代金券未到生效时间", http.StatusConflict, codes.FailedPrecondition)
	ErrExpiredCoupon          = NewWithStatus("ExpiredCoupon", "代金券已过期", http.StatusConflict, codes.FailedPrecondition)
	ErrCouponNotApplicable    = NewWithStatus("CouponNotApplicable", "代金券不适用于此订单", http.StatusConflict, codes.FailedPrecondition)
	ErrCouponNoBalance        = NewWithStatus("CouponNoBalance", "代金券没有可用余额", http.StatusConflict, codes.FailedPrecondition)
	ErrDuplicateCouponID      = NewWithStatus("DuplicateCouponIDExist", "存在重复的代金券编号", http.StatusBadRequest, codes.InvalidArgument)
	ErrTooManyCouponIDs       = NewWithStatus("TooManyCouponIDs", "代金券数量超出上限", http.StatusBadRequest, codes.InvalidArgument)
)

// 退款相关错误码
var (
	ErrRefundAmountsExceedTotal = NewWithStatus("RefundAmountsExceedTotal", "退款金额超出支付金额", http.StatusConflict, codes.FailedPrecondition)
	ErrRefundNotFound           = NewWithStatus("RefundNotFound", "退订退款单不存在", http.StatusNotFound, codes.NotFound)
	ErrRefundStatusConflict     = NewWithStatus("RefundStatusConflict", "退订退款单状态冲突", http.StatusConflict, codes.FailedPrecondition)
	ErrPaymentNotFound          = NewWithStatus("PaymentNotFound", "支付记录不存在", http.StatusNotFound, codes.NotFound)
)

// 交付相关错误码
var (
	ErrQuotaShortage      = NewWithStatus("QuotaShortageError", "服务单元配额不足", http.StatusConflict, codes.ResourceExhausted)
	ErrDeliverFailed      = NewWithStatus("DeliverFailed", "订单资源交付失败", http.StatusInternalServerError, codes.Internal)
	ErrConfigMismatch     = NewWithStatus("ConfigMismatch", "资源配置与现有实例不一致", http.StatusConflict, codes.FailedPrecondition)
	ErrServiceNotFound    = NewWithStatus("ServiceNotFound", "资源提供者服务不存在", http.StatusNotFound, codes.NotFound)
	ErrAccountNotFound    = NewWithStatus("AccountNotFound", "余额账户不存在", http.StatusNotFound, codes.NotFound)
)

// ToGRPCError 转换为 gRPC 错误
func ToGRPCError(err error) error {
	if err == nil {
		return nil
	}

	var bizErr *Error
	if errors.As(err, &bizErr) {
		return status.Error(bizErr.GRPCCode, bizErr.Error())
	}

	return status.Error(codes.Internal, err.Error())
}

// ToHTTPStatus 获取 HTTP 状态码
func ToHTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var bizErr *Error
	if errors.As(err, &bizErr) {
		if bizErr.HTTPStatus != 0 {
			return bizErr.HTTPStatus
		}
	}

	return http.StatusInternalServerError
}
