// Package quota 定义服务单元容量管理器的调用契约
package quota

import (
	"context"
	"fmt"
)

// Requirement 一次交付需要的配额
// 不同资源类型只使用其中相关的维度
type Requirement struct {
	CPU      int // vCPU 数
	RamGiB   int // 内存 GiB
	PublicIP int // 公网 IP 数
	DiskGiB  int // 磁盘容量 GiB (新建/扩容增量)
}

// IsZero 判断是否为空配额
func (r Requirement) IsZero() bool {
	return r.CPU == 0 && r.RamGiB == 0 && r.PublicIP == 0 && r.DiskGiB == 0
}

func (r Requirement) String() string {
	return fmt.Sprintf("cpu=%d ram=%dGiB ip=%d disk=%dGiB", r.CPU, r.RamGiB, r.PublicIP, r.DiskGiB)
}

// ShortageError 配额不足错误
// 容量管理器在可用容量不足时返回
type ShortageError struct {
	ServiceID string
	Require   Requirement
}

func (e *ShortageError) Error() string {
	return fmt.Sprintf("quota shortage in service %s: require %s", e.ServiceID, e.Require)
}

// Manager 容量管理器调用契约
// 预留的配额只有在 Commit 后才被持久占用，Provider 调用失败时必须 Release
type Manager interface {
	// Reserve 预留配额，容量不足时返回 *ShortageError
	Reserve(ctx context.Context, serviceID string, req Requirement) error

	// Release 释放预留的配额
	Release(ctx context.Context, serviceID string, req Requirement) error

	// Commit 持久占用预留的配额 (Provider 确认成功后)
	Commit(ctx context.Context, serviceID string, req Requirement) error
}
