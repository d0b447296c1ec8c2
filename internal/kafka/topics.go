// Package kafka 提供 Kafka 异步生产者
package kafka

// Kafka topic 名称
const (
	// 支付相关
	TopicOrderPaid = "order-paid" // 订单支付成功

	// 退款相关
	TopicOrderRefunded = "order-refunded" // 订单退款完成

	// 交付相关
	TopicResourceDelivered = "resource-delivered" // 资源交付结果
)
