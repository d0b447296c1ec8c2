package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/cloudverse/broker/internal/model"
	"github.com/cloudverse/broker/internal/quota"
	"github.com/cloudverse/broker/pkg/errors"
)

type MockAdapter struct {
	mock.Mock
}

func (m *MockAdapter) CreateInstance(ctx context.Context, serviceID string, params *CreateParams) (*CreateResult, error) {
	args := m.Called(ctx, serviceID, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*CreateResult), args.Error(1)
}

func (m *MockAdapter) DescribeDiskSize(ctx context.Context, serviceID, diskID string) (int, error) {
	args := m.Called(ctx, serviceID, diskID)
	return args.Int(0), args.Error(1)
}

func newOrder(resourceType model.ResourceType, config string) *model.Order {
	return &model.Order{
		ID:             "order-1",
		ServiceID:      "svc-1",
		ResourceType:   resourceType,
		InstanceConfig: config,
	}
}

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry(new(MockAdapter))

	for _, rt := range []model.ResourceType{
		model.ResourceTypeServer, model.ResourceTypeDisk, model.ResourceTypeSnapshot,
		model.ResourceTypeScan, model.ResourceTypeBucket,
	} {
		p, err := r.Get(rt)
		assert.NoError(t, err)
		assert.Equal(t, rt, p.ResourceType())
	}

	_, err := r.Get(model.ResourceType("unknown"))
	assert.Error(t, err)
}

func TestServerProvisioner(t *testing.T) {
	adapter := new(MockAdapter)
	p := &serverProvisioner{adapter: adapter}
	ctx := context.Background()

	order := newOrder(model.ResourceTypeServer,
		`{"vm_cpu":4,"vm_ram":8,"vm_public_ip":true,"vm_image_id":"img-1","vm_sys_disk_gib":100}`)
	assert.NoError(t, p.Validate(ctx, order))

	req, err := p.QuotaRequirement(order)
	assert.NoError(t, err)
	assert.Equal(t, quota.Requirement{CPU: 4, RamGiB: 8, PublicIP: 1, DiskGiB: 100}, req)

	// 无公网 IP 时不计 IP 配额
	noIP := newOrder(model.ResourceTypeServer, `{"vm_cpu":4,"vm_ram":8,"vm_image_id":"img-1"}`)
	req, err = p.QuotaRequirement(noIP)
	assert.NoError(t, err)
	assert.Zero(t, req.PublicIP)

	adapter.On("CreateInstance", mock.Anything, "svc-1", mock.AnythingOfType("*provider.CreateParams")).
		Return(&CreateResult{InstanceID: "inst-1"}, nil)
	result, err := p.Provision(ctx, order, &model.Resource{ID: "r1"})
	assert.NoError(t, err)
	assert.Equal(t, "inst-1", result.InstanceID)
}

func TestServerProvisioner_InvalidConfig(t *testing.T) {
	p := &serverProvisioner{}
	ctx := context.Background()

	assert.Error(t, p.Validate(ctx, newOrder(model.ResourceTypeServer, "")))
	assert.Error(t, p.Validate(ctx, newOrder(model.ResourceTypeServer, `{"vm_cpu":0,"vm_ram":8,"vm_image_id":"img-1"}`)))
	assert.Error(t, p.Validate(ctx, newOrder(model.ResourceTypeServer, `{"vm_cpu":4,"vm_ram":8}`)))
	assert.Error(t, p.Validate(ctx, newOrder(model.ResourceTypeServer, "not json")))
}

func TestDiskProvisioner(t *testing.T) {
	p := &diskProvisioner{}
	ctx := context.Background()

	order := newOrder(model.ResourceTypeDisk, `{"disk_size":200,"disk_azone_id":"az-1"}`)
	assert.NoError(t, p.Validate(ctx, order))

	req, err := p.QuotaRequirement(order)
	assert.NoError(t, err)
	assert.Equal(t, quota.Requirement{DiskGiB: 200}, req)

	assert.Error(t, p.Validate(ctx, newOrder(model.ResourceTypeDisk, `{"disk_size":0}`)))
}

func TestSnapshotProvisioner_Validate(t *testing.T) {
	ctx := context.Background()
	config := `{"snapshot_disk_id":"disk-1","snapshot_disk_size":100}`

	t.Run("size_matches", func(t *testing.T) {
		adapter := new(MockAdapter)
		adapter.On("DescribeDiskSize", mock.Anything, "svc-1", "disk-1").Return(100, nil)
		p := &snapshotProvisioner{adapter: adapter}

		assert.NoError(t, p.Validate(ctx, newOrder(model.ResourceTypeSnapshot, config)))
	})

	t.Run("size_mismatch", func(t *testing.T) {
		// 盘在订购后被扩容，按旧配置交付会错误计费
		adapter := new(MockAdapter)
		adapter.On("DescribeDiskSize", mock.Anything, "svc-1", "disk-1").Return(200, nil)
		p := &snapshotProvisioner{adapter: adapter}

		err := p.Validate(ctx, newOrder(model.ResourceTypeSnapshot, config))
		assert.ErrorIs(t, err, errors.ErrConfigMismatch)
	})

	t.Run("missing_disk_id", func(t *testing.T) {
		p := &snapshotProvisioner{adapter: new(MockAdapter)}
		err := p.Validate(ctx, newOrder(model.ResourceTypeSnapshot, `{"snapshot_disk_size":100}`))
		assert.Error(t, err)
	})
}

func TestScanAndBucketProvisioners_ZeroQuota(t *testing.T) {
	scan := &scanProvisioner{}
	scanOrder := newOrder(model.ResourceTypeScan, `{"scan_type":"web","target_url":"https://example.com"}`)
	assert.NoError(t, scan.Validate(context.Background(), scanOrder))
	req, err := scan.QuotaRequirement(scanOrder)
	assert.NoError(t, err)
	assert.True(t, req.IsZero())

	noTarget := newOrder(model.ResourceTypeScan, `{"scan_type":"web"}`)
	assert.Error(t, scan.Validate(context.Background(), noTarget))

	bucket := &bucketProvisioner{}
	bucketOrder := newOrder(model.ResourceTypeBucket, `{"bucket_name":"my-bucket"}`)
	assert.NoError(t, bucket.Validate(context.Background(), bucketOrder))
	req, err = bucket.QuotaRequirement(bucketOrder)
	assert.NoError(t, err)
	assert.True(t, req.IsZero())
}
