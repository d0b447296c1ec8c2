// Package metrics 定义服务监控指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PaymentsTotal 支付总数 (按结果、付款方式分组)
	PaymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cloudverse",
			Subsystem: "broker",
			Name:      "payments_total",
			Help:      "订单支付总数，按结果(success/failed)、付款方式分组",
		},
		[]string{"result", "method"},
	)

	// PaymentAmount 支付金额
	PaymentAmount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cloudverse",
			Subsystem: "broker",
			Name:      "payment_amount_total",
			Help:      "支付总金额，按来源(balance/coupon)分组",
		},
		[]string{"source"},
	)

	// RefundsTotal 退款总数
	RefundsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cloudverse",
			Subsystem: "broker",
			Name:      "refunds_total",
			Help:      "退款总数，按结果(success/failed)分组",
		},
		[]string{"result"},
	)

	// DeliveriesTotal 资源交付总数
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cloudverse",
			Subsystem: "broker",
			Name:      "deliveries_total",
			Help:      "订单资源交付尝试总数，按结果(success/failed/throttled)、资源类型分组",
		},
		[]string{"result", "resource_type"},
	)

	// DeliveryLatency 交付耗时
	DeliveryLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cloudverse",
			Subsystem: "broker",
			Name:      "delivery_latency_seconds",
			Help:      "单个资源交付耗时(秒)，按资源类型分组",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to 40s
		},
		[]string{"resource_type"},
	)

	// QuotaShortagesTotal 配额不足次数
	QuotaShortagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cloudverse",
			Subsystem: "broker",
			Name:      "quota_shortages_total",
			Help:      "交付时服务单元配额不足的次数，按服务单元分组",
		},
		[]string{"service_id"},
	)
)

// RecordPayment 记录一次支付结果
func RecordPayment(result, method string) {
	PaymentsTotal.WithLabelValues(result, method).Inc()
}

// RecordPaymentAmount 记录支付金额
func RecordPaymentAmount(balancePart, couponPart float64) {
	if balancePart > 0 {
		PaymentAmount.WithLabelValues("balance").Add(balancePart)
	}
	if couponPart > 0 {
		PaymentAmount.WithLabelValues("coupon").Add(couponPart)
	}
}

// RecordRefund 记录一次退款结果
func RecordRefund(result string) {
	RefundsTotal.WithLabelValues(result).Inc()
}

// RecordDelivery 记录一次资源交付结果
func RecordDelivery(result, resourceType string) {
	DeliveriesTotal.WithLabelValues(result, resourceType).Inc()
}

// RecordQuotaShortage 记录一次配额不足
func RecordQuotaShortage(serviceID string) {
	QuotaShortagesTotal.WithLabelValues(serviceID).Inc()
}
