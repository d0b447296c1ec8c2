package provider

import (
	"context"
	"fmt"

	"github.com/cloudverse/broker/internal/model"
	"github.com/cloudverse/broker/internal/quota"
	"github.com/cloudverse/broker/pkg/errors"
)

// serverProvisioner 云服务器交付驱动
type serverProvisioner struct {
	adapter Adapter
}

func (p *serverProvisioner) ResourceType() model.ResourceType {
	return model.ResourceTypeServer
}

func (p *serverProvisioner) Validate(_ context.Context, order *model.Order) error {
	var cfg ServerConfig
	if err := unmarshalConfig(order, &cfg); err != nil {
		return err
	}
	if cfg.CPU <= 0 || cfg.RamGiB <= 0 {
		return fmt.Errorf("server config of order %s requires positive cpu and ram", order.ID)
	}
	if cfg.ImageID == "" {
		return fmt.Errorf("server config of order %s requires an image id", order.ID)
	}
	return nil
}

func (p *serverProvisioner) QuotaRequirement(order *model.Order) (quota.Requirement, error) {
	var cfg ServerConfig
	if err := unmarshalConfig(order, &cfg); err != nil {
		return quota.Requirement{}, err
	}
	req := quota.Requirement{CPU: cfg.CPU, RamGiB: cfg.RamGiB, DiskGiB: cfg.SysDiskGiB}
	if cfg.PublicIP {
		req.PublicIP = 1
	}
	return req, nil
}

func (p *serverProvisioner) Provision(ctx context.Context, order *model.Order, resource *model.Resource) (*CreateResult, error) {
	var cfg ServerConfig
	if err := unmarshalConfig(order, &cfg); err != nil {
		return nil, err
	}
	return p.adapter.CreateInstance(ctx, order.ServiceID, &CreateParams{
		ResourceType: model.ResourceTypeServer,
		Remark:       resource.InstanceRemark,
		Config: map[string]interface{}{
			"cpu":        cfg.CPU,
			"ram_gib":    cfg.RamGiB,
			"public_ip":  cfg.PublicIP,
			"image_id":   cfg.ImageID,
			"network_id": cfg.NetworkID,
			"azone_id":   cfg.AzoneID,
		},
	})
}

// diskProvisioner 云硬盘交付驱动
type diskProvisioner struct {
	adapter Adapter
}

func (p *diskProvisioner) ResourceType() model.ResourceType {
	return model.ResourceTypeDisk
}

func (p *diskProvisioner) Validate(_ context.Context, order *model.Order) error {
	var cfg DiskConfig
	if err := unmarshalConfig(order, &cfg); err != nil {
		return err
	}
	if cfg.SizeGiB <= 0 {
		return fmt.Errorf("disk config of order %s requires positive size", order.ID)
	}
	return nil
}

func (p *diskProvisioner) QuotaRequirement(order *model.Order) (quota.Requirement, error) {
	var cfg DiskConfig
	if err := unmarshalConfig(order, &cfg); err != nil {
		return quota.Requirement{}, err
	}
	return quota.Requirement{DiskGiB: cfg.SizeGiB}, nil
}

func (p *diskProvisioner) Provision(ctx context.Context, order *model.Order, resource *model.Resource) (*CreateResult, error) {
	var cfg DiskConfig
	if err := unmarshalConfig(order, &cfg); err != nil {
		return nil, err
	}
	return p.adapter.CreateInstance(ctx, order.ServiceID, &CreateParams{
		ResourceType: model.ResourceTypeDisk,
		Remark:       resource.InstanceRemark,
		Config: map[string]interface{}{
			"size_gib": cfg.SizeGiB,
			"azone_id": cfg.AzoneID,
		},
	})
}

// snapshotProvisioner 云硬盘快照交付驱动
// 交付前检查订购时记录的盘容量与现存盘一致，避免按过期配置计费交付
type snapshotProvisioner struct {
	adapter Adapter
}

func (p *snapshotProvisioner) ResourceType() model.ResourceType {
	return model.ResourceTypeSnapshot
}

func (p *snapshotProvisioner) Validate(ctx context.Context, order *model.Order) error {
	var cfg SnapshotConfig
	if err := unmarshalConfig(order, &cfg); err != nil {
		return err
	}
	if cfg.DiskID == "" {
		return fmt.Errorf("snapshot config of order %s requires a disk id", order.ID)
	}

	liveSize, err := p.adapter.DescribeDiskSize(ctx, order.ServiceID, cfg.DiskID)
	if err != nil {
		return fmt.Errorf("describe disk %s failed: %w", cfg.DiskID, err)
	}
	if liveSize != cfg.SizeGiB {
		return errors.ErrConfigMismatch.WithMessagef(
			"disk %s size is %dGiB, order expects %dGiB", cfg.DiskID, liveSize, cfg.SizeGiB)
	}
	return nil
}

func (p *snapshotProvisioner) QuotaRequirement(order *model.Order) (quota.Requirement, error) {
	var cfg SnapshotConfig
	if err := unmarshalConfig(order, &cfg); err != nil {
		return quota.Requirement{}, err
	}
	return quota.Requirement{DiskGiB: cfg.SizeGiB}, nil
}

func (p *snapshotProvisioner) Provision(ctx context.Context, order *model.Order, resource *model.Resource) (*CreateResult, error) {
	var cfg SnapshotConfig
	if err := unmarshalConfig(order, &cfg); err != nil {
		return nil, err
	}
	return p.adapter.CreateInstance(ctx, order.ServiceID, &CreateParams{
		ResourceType: model.ResourceTypeSnapshot,
		Remark:       resource.InstanceRemark,
		Config: map[string]interface{}{
			"disk_id":  cfg.DiskID,
			"size_gib": cfg.SizeGiB,
		},
	})
}

// scanProvisioner 安全扫描任务交付驱动
// 扫描任务不占用服务单元配额
type scanProvisioner struct {
	adapter Adapter
}

func (p *scanProvisioner) ResourceType() model.ResourceType {
	return model.ResourceTypeScan
}

func (p *scanProvisioner) Validate(_ context.Context, order *model.Order) error {
	var cfg ScanConfig
	if err := unmarshalConfig(order, &cfg); err != nil {
		return err
	}
	if cfg.TargetURL == "" && cfg.TargetIP == "" {
		return fmt.Errorf("scan config of order %s requires a target", order.ID)
	}
	return nil
}

func (p *scanProvisioner) QuotaRequirement(_ *model.Order) (quota.Requirement, error) {
	return quota.Requirement{}, nil
}

func (p *scanProvisioner) Provision(ctx context.Context, order *model.Order, resource *model.Resource) (*CreateResult, error) {
	var cfg ScanConfig
	if err := unmarshalConfig(order, &cfg); err != nil {
		return nil, err
	}
	return p.adapter.CreateInstance(ctx, order.ServiceID, &CreateParams{
		ResourceType: model.ResourceTypeScan,
		Remark:       resource.InstanceRemark,
		Config: map[string]interface{}{
			"scan_type":  cfg.ScanType,
			"target_url": cfg.TargetURL,
			"target_ip":  cfg.TargetIP,
		},
	})
}

// bucketProvisioner 对象存储桶交付驱动
type bucketProvisioner struct {
	adapter Adapter
}

func (p *bucketProvisioner) ResourceType() model.ResourceType {
	return model.ResourceTypeBucket
}

func (p *bucketProvisioner) Validate(_ context.Context, order *model.Order) error {
	var cfg BucketConfig
	if err := unmarshalConfig(order, &cfg); err != nil {
		return err
	}
	if cfg.BucketName == "" {
		return fmt.Errorf("bucket config of order %s requires a bucket name", order.ID)
	}
	return nil
}

func (p *bucketProvisioner) QuotaRequirement(_ *model.Order) (quota.Requirement, error) {
	return quota.Requirement{}, nil
}

func (p *bucketProvisioner) Provision(ctx context.Context, order *model.Order, resource *model.Resource) (*CreateResult, error) {
	var cfg BucketConfig
	if err := unmarshalConfig(order, &cfg); err != nil {
		return nil, err
	}
	return p.adapter.CreateInstance(ctx, order.ServiceID, &CreateParams{
		ResourceType: model.ResourceTypeBucket,
		Remark:       resource.InstanceRemark,
		Config: map[string]interface{}{
			"bucket_name": cfg.BucketName,
		},
	})
}
