package quota

import (
	"context"
	"sync"
)

// MemoryManager 进程内容量管理器
// 按服务单元维护总容量和已用量，适合单实例部署和测试
type MemoryManager struct {
	mu       sync.Mutex
	capacity map[string]Requirement // 服务单元总容量
	used     map[string]Requirement // 已预留 + 已占用
}

// NewMemoryManager 创建进程内容量管理器
// 未配置容量的服务单元视为容量不设限
func NewMemoryManager(capacity map[string]Requirement) *MemoryManager {
	cp := make(map[string]Requirement, len(capacity))
	for id, c := range capacity {
		cp[id] = c
	}
	return &MemoryManager{
		capacity: cp,
		used:     make(map[string]Requirement),
	}
}

// Reserve 预留配额，容量不足时返回 *ShortageError
func (m *MemoryManager) Reserve(_ context.Context, serviceID string, req Requirement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	limit, limited := m.capacity[serviceID]
	used := m.used[serviceID]

	if limited {
		if used.CPU+req.CPU > limit.CPU ||
			used.RamGiB+req.RamGiB > limit.RamGiB ||
			used.PublicIP+req.PublicIP > limit.PublicIP ||
			used.DiskGiB+req.DiskGiB > limit.DiskGiB {
			return &ShortageError{ServiceID: serviceID, Require: req}
		}
	}

	used.CPU += req.CPU
	used.RamGiB += req.RamGiB
	used.PublicIP += req.PublicIP
	used.DiskGiB += req.DiskGiB
	m.used[serviceID] = used
	return nil
}

// Release 释放预留的配额
func (m *MemoryManager) Release(_ context.Context, serviceID string, req Requirement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	used := m.used[serviceID]
	used.CPU -= req.CPU
	used.RamGiB -= req.RamGiB
	used.PublicIP -= req.PublicIP
	used.DiskGiB -= req.DiskGiB
	if used.CPU < 0 {
		used.CPU = 0
	}
	if used.RamGiB < 0 {
		used.RamGiB = 0
	}
	if used.PublicIP < 0 {
		used.PublicIP = 0
	}
	if used.DiskGiB < 0 {
		used.DiskGiB = 0
	}
	m.used[serviceID] = used
	return nil
}

// Commit 持久占用预留的配额
// 进程内实现中预留即占用，Commit 无额外动作
func (m *MemoryManager) Commit(_ context.Context, _ string, _ Requirement) error {
	return nil
}

// Used 返回服务单元的已用量
func (m *MemoryManager) Used(serviceID string) Requirement {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used[serviceID]
}
