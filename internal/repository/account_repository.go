package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cloudverse/broker/internal/model"
)

var (
	ErrAccountNotFound = errors.New("point account not found")
)

// AccountRepository 余额账户仓储接口
type AccountRepository interface {
	// Transaction 执行事务
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error

	// GetOrCreate 获取或创建账户
	GetOrCreate(ctx context.Context, ownerType model.OwnerType, ownerID string) (*model.PointAccount, error)

	// GetForUpdate 获取账户并加行锁，不存在时先创建
	GetForUpdate(ctx context.Context, ownerType model.OwnerType, ownerID string) (*model.PointAccount, error)

	// UpdateBalance 更新账户余额
	UpdateBalance(ctx context.Context, accountID string, balance decimal.Decimal) error

	// CreateBill 追加交易流水账单
	CreateBill(ctx context.Context, bill *model.TransactionBill) error

	// ListBills 查询归属主体的交易流水
	ListBills(ctx context.Context, ownerType model.OwnerType, ownerID string, limit int) ([]*model.TransactionBill, error)
}

// accountRepository 余额账户仓储实现
type accountRepository struct {
	*Repository
}

// NewAccountRepository 创建余额账户仓储
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{Repository: NewRepository(db)}
}

// GetOrCreate 获取或创建账户
func (r *accountRepository) GetOrCreate(ctx context.Context, ownerType model.OwnerType, ownerID string) (*model.PointAccount, error) {
	var account model.PointAccount

	result := r.DB(ctx).Where("owner_type = ? AND owner_id = ?", ownerType, ownerID).First(&account)
	if result.Error == nil {
		return &account, nil
	}
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("get point account failed: %w", result.Error)
	}

	account = model.PointAccount{
		ID:        uuid.NewString(),
		OwnerType: ownerType,
		OwnerID:   ownerID,
		Balance:   decimal.Zero,
	}

	// 使用 ON CONFLICT 处理并发创建
	result = r.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner_type"}, {Name: "owner_id"}},
		DoNothing: true,
	}).Create(&account)
	if result.Error != nil {
		return nil, fmt.Errorf("create point account failed: %w", result.Error)
	}

	// 并发创建冲突时重新查询
	if result.RowsAffected == 0 {
		result = r.DB(ctx).Where("owner_type = ? AND owner_id = ?", ownerType, ownerID).First(&account)
		if result.Error != nil {
			return nil, fmt.Errorf("get point account after conflict failed: %w", result.Error)
		}
	}

	return &account, nil
}

// GetForUpdate 获取账户并加行锁
func (r *accountRepository) GetForUpdate(ctx context.Context, ownerType model.OwnerType, ownerID string) (*model.PointAccount, error) {
	var account model.PointAccount
	result := r.DB(ctx).
		Clauses(forUpdate()).
		Where("owner_type = ? AND owner_id = ?", ownerType, ownerID).
		First(&account)
	if result.Error == nil {
		return &account, nil
	}
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("get point account for update failed: %w", result.Error)
	}

	// 不存在则先创建再加锁
	if _, err := r.GetOrCreate(ctx, ownerType, ownerID); err != nil {
		return nil, err
	}

	result = r.DB(ctx).
		Clauses(forUpdate()).
		Where("owner_type = ? AND owner_id = ?", ownerType, ownerID).
		First(&account)
	if result.Error != nil {
		return nil, fmt.Errorf("get point account for update failed: %w", result.Error)
	}
	return &account, nil
}

// UpdateBalance 更新账户余额
func (r *accountRepository) UpdateBalance(ctx context.Context, accountID string, balance decimal.Decimal) error {
	result := r.DB(ctx).Model(&model.PointAccount{}).
		Where("id = ?", accountID).
		Updates(map[string]interface{}{
			"balance":    balance,
			"updated_at": time.Now().UnixMilli(),
		})
	if result.Error != nil {
		return fmt.Errorf("update point account balance failed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// CreateBill 追加交易流水账单
func (r *accountRepository) CreateBill(ctx context.Context, bill *model.TransactionBill) error {
	if bill.ID == "" {
		bill.ID = uuid.NewString()
	}
	if err := r.DB(ctx).Create(bill).Error; err != nil {
		return fmt.Errorf("create transaction bill failed: %w", err)
	}
	return nil
}

// ListBills 查询归属主体的交易流水
func (r *accountRepository) ListBills(ctx context.Context, ownerType model.OwnerType, ownerID string, limit int) ([]*model.TransactionBill, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var bills []*model.TransactionBill
	result := r.DB(ctx).
		Where("owner_type = ? AND owner_id = ?", ownerType, ownerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&bills)
	if result.Error != nil {
		return nil, fmt.Errorf("list transaction bills failed: %w", result.Error)
	}
	return bills, nil
}
