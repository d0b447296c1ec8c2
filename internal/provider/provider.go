// Package provider 资源提供者适配与按资源类型的交付驱动
package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudverse/broker/internal/model"
	"github.com/cloudverse/broker/internal/quota"
)

// CreateResult 资源创建结果
type CreateResult struct {
	InstanceID string            // 提供者侧实例 id
	Extra      map[string]string // 默认用户名/密码等附加信息
}

// CreateParams 资源创建请求参数
type CreateParams struct {
	ResourceType model.ResourceType
	Remark       string
	Config       map[string]interface{} // 解析后的规格配置
}

// Adapter 资源提供者适配器调用契约 (外部系统)
// 只关心成功/失败语义，协议本身不在本服务范围内
type Adapter interface {
	// CreateInstance 在服务单元中创建一个资源实例
	CreateInstance(ctx context.Context, serviceID string, params *CreateParams) (*CreateResult, error)

	// DescribeDiskSize 查询现有云硬盘的当前容量 (GiB)
	// 快照/续费类交付的配置一致性检查使用
	DescribeDiskSize(ctx context.Context, serviceID, diskID string) (int, error)
}

// Provisioner 单一资源类型的交付驱动
// 新增资源类型时增加一个实现并注册，不扩散类型分支判断
type Provisioner interface {
	// ResourceType 返回驱动负责的资源类型
	ResourceType() model.ResourceType

	// Validate 交付前校验订单配置 (含与现有实例的一致性检查)
	Validate(ctx context.Context, order *model.Order) error

	// QuotaRequirement 计算单个资源实例需要的配额
	QuotaRequirement(order *model.Order) (quota.Requirement, error)

	// Provision 调用提供者创建一个资源实例
	Provision(ctx context.Context, order *model.Order, resource *model.Resource) (*CreateResult, error)
}

// Registry 交付驱动注册表
type Registry struct {
	provisioners map[model.ResourceType]Provisioner
}

// NewRegistry 创建注册表，内置全部资源类型的驱动
func NewRegistry(adapter Adapter) *Registry {
	r := &Registry{provisioners: make(map[model.ResourceType]Provisioner)}
	r.Register(&serverProvisioner{adapter: adapter})
	r.Register(&diskProvisioner{adapter: adapter})
	r.Register(&snapshotProvisioner{adapter: adapter})
	r.Register(&scanProvisioner{adapter: adapter})
	r.Register(&bucketProvisioner{adapter: adapter})
	return r
}

// Register 注册一个交付驱动
func (r *Registry) Register(p Provisioner) {
	r.provisioners[p.ResourceType()] = p
}

// Get 按资源类型返回交付驱动
func (r *Registry) Get(resourceType model.ResourceType) (Provisioner, error) {
	p, ok := r.provisioners[resourceType]
	if !ok {
		return nil, fmt.Errorf("no provisioner for resource type %q", resourceType)
	}
	return p, nil
}

// ServerConfig 云服务器规格配置
type ServerConfig struct {
	CPU       int    `json:"vm_cpu"`
	RamGiB    int    `json:"vm_ram"`
	PublicIP  bool   `json:"vm_public_ip"`
	ImageID   string `json:"vm_image_id"`
	NetworkID string `json:"vm_network_id"`
	AzoneID   string `json:"vm_azone_id"`
	SysDiskGiB int   `json:"vm_sys_disk_gib"`
}

// DiskConfig 云硬盘规格配置
type DiskConfig struct {
	SizeGiB int    `json:"disk_size"`
	AzoneID string `json:"disk_azone_id"`
}

// SnapshotConfig 云硬盘快照规格配置
type SnapshotConfig struct {
	DiskID  string `json:"snapshot_disk_id"`
	SizeGiB int    `json:"snapshot_disk_size"` // 创建时刻的盘容量，交付前须与现存盘一致
}

// ScanConfig 安全扫描任务配置
type ScanConfig struct {
	ScanType  string `json:"scan_type"` // web / host
	TargetURL string `json:"target_url"`
	TargetIP  string `json:"target_ip"`
}

// BucketConfig 对象存储桶配置
type BucketConfig struct {
	BucketName string `json:"bucket_name"`
}

func unmarshalConfig(order *model.Order, v interface{}) error {
	if order.InstanceConfig == "" {
		return fmt.Errorf("order %s has empty instance config", order.ID)
	}
	if err := json.Unmarshal([]byte(order.InstanceConfig), v); err != nil {
		return fmt.Errorf("invalid instance config of order %s: %w", order.ID, err)
	}
	return nil
}
