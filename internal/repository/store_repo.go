package repository

import (
	"context"

	"gorm.io/gorm"

	"clock-in-system/backend/internal/model"
)

// StoreRepository 门店数据访问接口
type StoreRepository interface {
	Create(ctx context.Context, store *model.Store) error
	GetByID(ctx context.Context, id string) (*model.Store, error)
	List(ctx context.Context, activeOnly bool) ([]model.Store, error)
	Update(ctx context.Context, store *model.Store) error
}

type storeRepo struct {
	db *gorm.DB
}

// NewStoreRepo 创建 StoreRepository 实例
func NewStoreRepo(db *gorm.DB) StoreRepository {
	return &storeRepo{db: db}
}

func (r *storeRepo) Create(ctx context.Context, store *model.Store) error {
	return r.db.WithContext(ctx).Create(store).Error
}

func (r *storeRepo) GetByID(ctx context.Context, id string) (*model.Store, error) {
	var store model.Store
	err := r.db.WithContext(ctx).Where("store_id = ?", id).First(&store).Error
	if err != nil {
		return nil, err
	}
	return &store, nil
}

func (r *storeRepo) List(ctx context.Context, activeOnly bool) ([]model.Store, error) {
	var stores []model.Store
	query := r.db.WithContext(ctx).Model(&model.Store{})
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	err := query.Order("name ASC").Find(&stores).Error
	return stores, err
}

func (r *storeRepo) Update(ctx context.Context, store *model.Store) error {
	return r.db.WithContext(ctx).Save(store).Error
}
