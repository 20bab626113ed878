package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"clock-in-system/backend/internal/model"
	pkgerrors "clock-in-system/backend/pkg/errors"
)

// ActivityRepository 出勤记录数据访问接口
type ActivityRepository interface {
	Create(ctx context.Context, activity *model.Activity) error
	GetByID(ctx context.Context, id string) (*model.Activity, error)
	GetByIDForUpdate(ctx context.Context, id string) (*model.Activity, error)
	// GetOpen 行锁读取 (employee, store) 下未签退的记录
	GetOpen(ctx context.Context, employeeID, storeID string) (*model.Activity, error)
	// GetLastClosed 员工在任意门店最近一次签退的记录
	GetLastClosed(ctx context.Context, employeeID string) (*model.Activity, error)
	// ListByEmployeeStore 员工在门店 [from, to) 内签到的记录
	ListByEmployeeStore(ctx context.Context, employeeID, storeID string, from, to time.Time) ([]model.Activity, error)
	// ListClosedByStore 门店 [from, to) 内签到且已签退的记录
	ListClosedByStore(ctx context.Context, storeID string, from, to time.Time) ([]model.Activity, error)
	ListOpenByStore(ctx context.Context, storeID string) ([]model.Activity, error)
	Update(ctx context.Context, activity *model.Activity) error
	Delete(ctx context.Context, id string) error
}

type activityRepo struct {
	db *gorm.DB
}

// NewActivityRepo 创建 ActivityRepository 实例
func NewActivityRepo(db *gorm.DB) ActivityRepository {
	return &activityRepo{db: db}
}

// Create 违反 uk_activities_open 时返回 ErrDuplicateKey
func (r *activityRepo) Create(ctx context.Context, activity *model.Activity) error {
	return pkgerrors.TranslateDuplicate(r.db.WithContext(ctx).Create(activity).Error)
}

func (r *activityRepo) GetByID(ctx context.Context, id string) (*model.Activity, error) {
	var activity model.Activity
	err := r.db.WithContext(ctx).Where("activity_id = ?", id).First(&activity).Error
	if err != nil {
		return nil, err
	}
	return &activity, nil
}

func (r *activityRepo) GetByIDForUpdate(ctx context.Context, id string) (*model.Activity, error) {
	var activity model.Activity
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("activity_id = ?", id).
		First(&activity).Error
	if err != nil {
		return nil, err
	}
	return &activity, nil
}

func (r *activityRepo) GetOpen(ctx context.Context, employeeID, storeID string) (*model.Activity, error) {
	var activity model.Activity
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("employee_id = ? AND store_id = ? AND logout_time IS NULL", employeeID, storeID).
		First(&activity).Error
	if err != nil {
		return nil, err
	}
	return &activity, nil
}

func (r *activityRepo) GetLastClosed(ctx context.Context, employeeID string) (*model.Activity, error) {
	var activity model.Activity
	err := r.db.WithContext(ctx).
		Where("employee_id = ? AND logout_timestamp IS NOT NULL", employeeID).
		Order("logout_timestamp DESC").
		First(&activity).Error
	if err != nil {
		return nil, err
	}
	return &activity, nil
}

func (r *activityRepo) ListByEmployeeStore(ctx context.Context, employeeID, storeID string, from, to time.Time) ([]model.Activity, error) {
	var list []model.Activity
	err := r.db.WithContext(ctx).
		Where("employee_id = ? AND store_id = ? AND login_time >= ? AND login_time < ?", employeeID, storeID, from, to).
		Order("login_time ASC").
		Find(&list).Error
	return list, err
}

func (r *activityRepo) ListClosedByStore(ctx context.Context, storeID string, from, to time.Time) ([]model.Activity, error) {
	var list []model.Activity
	err := r.db.WithContext(ctx).
		Where("store_id = ? AND logout_time IS NOT NULL AND login_time >= ? AND login_time < ?", storeID, from, to).
		Order("login_time ASC").
		Find(&list).Error
	return list, err
}

func (r *activityRepo) ListOpenByStore(ctx context.Context, storeID string) ([]model.Activity, error) {
	var list []model.Activity
	err := r.db.WithContext(ctx).
		Where("store_id = ? AND logout_time IS NULL", storeID).
		Order("login_time ASC").
		Find(&list).Error
	return list, err
}

func (r *activityRepo) Update(ctx context.Context, activity *model.Activity) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(activity).Error
}

func (r *activityRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Where("activity_id = ?", id).
		Delete(&model.Activity{}).Error
}
