package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"clock-in-system/backend/internal/model"
	pkgerrors "clock-in-system/backend/pkg/errors"
)

// ShiftRepository 排班数据访问接口
// 日期参数统一为 "2006-01-02" 格式
type ShiftRepository interface {
	Create(ctx context.Context, shift *model.Shift) error
	GetByID(ctx context.Context, id string) (*model.Shift, error)
	GetByIDForUpdate(ctx context.Context, id string) (*model.Shift, error)
	// ListByEmployeeStoreDate 员工在门店某日未删除的排班
	ListByEmployeeStoreDate(ctx context.Context, employeeID, storeID, date string) ([]model.Shift, error)
	// ListByStoreRange 门店 [from, to] 日期范围内未删除的排班
	ListByStoreRange(ctx context.Context, storeID, from, to string) ([]model.Shift, error)
	Update(ctx context.Context, shift *model.Shift) error
	SoftDelete(ctx context.Context, shift *model.Shift) error
}

type shiftRepo struct {
	db *gorm.DB
}

// NewShiftRepo 创建 ShiftRepository 实例
func NewShiftRepo(db *gorm.DB) ShiftRepository {
	return &shiftRepo{db: db}
}

func (r *shiftRepo) Create(ctx context.Context, shift *model.Shift) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(shift).Error
}

func (r *shiftRepo) GetByID(ctx context.Context, id string) (*model.Shift, error) {
	var shift model.Shift
	err := r.db.WithContext(ctx).
		Preload("Employee").
		Where("shift_id = ?", id).
		First(&shift).Error
	if err != nil {
		return nil, err
	}
	return &shift, nil
}

func (r *shiftRepo) GetByIDForUpdate(ctx context.Context, id string) (*model.Shift, error) {
	var shift model.Shift
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("shift_id = ?", id).
		First(&shift).Error
	if err != nil {
		return nil, err
	}
	return &shift, nil
}

func (r *shiftRepo) ListByEmployeeStoreDate(ctx context.Context, employeeID, storeID, date string) ([]model.Shift, error) {
	var list []model.Shift
	err := r.db.WithContext(ctx).
		Where("employee_id = ? AND store_id = ? AND date = ? AND is_deleted = ?", employeeID, storeID, date, false).
		Order("start_time ASC, shift_id ASC").
		Find(&list).Error
	return list, err
}

func (r *shiftRepo) ListByStoreRange(ctx context.Context, storeID, from, to string) ([]model.Shift, error) {
	var list []model.Shift
	err := r.db.WithContext(ctx).
		Preload("Employee").
		Where("store_id = ? AND date >= ? AND date <= ? AND is_deleted = ?", storeID, from, to, false).
		Order("date ASC, start_time ASC, shift_id ASC").
		Find(&list).Error
	return list, err
}

// Update 乐观锁更新，版本不一致时返回 ErrOptimisticLock
func (r *shiftRepo) Update(ctx context.Context, shift *model.Shift) error {
	oldVersion := shift.Version
	result := r.db.WithContext(ctx).
		Model(&model.Shift{}).
		Where("shift_id = ? AND version = ?", shift.ShiftID, oldVersion).
		Updates(map[string]interface{}{
			"employee_id":    shift.EmployeeID,
			"role":           shift.Role,
			"date":           shift.Date,
			"start_time":     shift.StartTime,
			"end_time":       shift.EndTime,
			"comment":        shift.Comment,
			"is_unscheduled": shift.IsUnscheduled,
			"updated_by":     shift.UpdatedBy,
			"updated_at":     gorm.Expr("CURRENT_TIMESTAMP"),
			"version":        oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	shift.Version = oldVersion + 1
	return nil
}

// SoftDelete 标记删除，保留行供异常记录审计
func (r *shiftRepo) SoftDelete(ctx context.Context, shift *model.Shift) error {
	oldVersion := shift.Version
	result := r.db.WithContext(ctx).
		Model(&model.Shift{}).
		Where("shift_id = ? AND version = ?", shift.ShiftID, oldVersion).
		Updates(map[string]interface{}{
			"is_deleted": true,
			"updated_by": shift.UpdatedBy,
			"updated_at": gorm.Expr("CURRENT_TIMESTAMP"),
			"version":    oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	shift.IsDeleted = true
	shift.Version = oldVersion + 1
	return nil
}
