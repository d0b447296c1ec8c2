package service

import (
	"sort"

	"github.com/cloudverse/broker/internal/model"
)

// SortCouponsForPayment 未指定券列表时的自动选券顺序策略
//
// 顺序: 先到期的券先消费 (expiration_time 升序)，过期时间相同时按
// 创建时间、券编号排序保证顺序确定。
// 这是一个命名策略函数，调整选券顺序只改这里。
func SortCouponsForPayment(coupons []*model.CashCoupon) {
	sort.SliceStable(coupons, func(i, j int) bool {
		a, b := coupons[i], coupons[j]
		if a.ExpirationTime != b.ExpirationTime {
			return a.ExpirationTime < b.ExpirationTime
		}
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt < b.CreatedAt
		}
		return a.ID < b.ID
	})
}
