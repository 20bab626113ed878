package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"clock-in-system/backend/internal/model"
	pkgerrors "clock-in-system/backend/pkg/errors"
)

// ShiftRequestRepository 代班/换班申请数据访问接口
type ShiftRequestRepository interface {
	Create(ctx context.Context, req *model.ShiftRequest) error
	GetByID(ctx context.Context, id string) (*model.ShiftRequest, error)
	GetByIDForUpdate(ctx context.Context, id string) (*model.ShiftRequest, error)
	// GetActiveByShift 排班当前进行中（pending / accepted）的申请
	GetActiveByShift(ctx context.Context, shiftID string) (*model.ShiftRequest, error)
	// ListActiveBefore 排班日期早于 date 的进行中申请
	ListActiveBefore(ctx context.Context, date string) ([]model.ShiftRequest, error)
	ListByStore(ctx context.Context, storeID string, status model.ShiftRequestStatus) ([]model.ShiftRequest, error)
	Update(ctx context.Context, req *model.ShiftRequest) error
}

type shiftRequestRepo struct {
	db *gorm.DB
}

// NewShiftRequestRepo 创建 ShiftRequestRepository 实例
func NewShiftRequestRepo(db *gorm.DB) ShiftRequestRepository {
	return &shiftRequestRepo{db: db}
}

// Create 违反 uk_shift_requests_active 时返回 ErrDuplicateKey
func (r *shiftRequestRepo) Create(ctx context.Context, req *model.ShiftRequest) error {
	return pkgerrors.TranslateDuplicate(r.db.WithContext(ctx).Omit(clause.Associations).Create(req).Error)
}

func (r *shiftRequestRepo) GetByID(ctx context.Context, id string) (*model.ShiftRequest, error) {
	var req model.ShiftRequest
	err := r.db.WithContext(ctx).
		Preload("Shift").
		Where("shift_request_id = ?", id).
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *shiftRequestRepo) GetByIDForUpdate(ctx context.Context, id string) (*model.ShiftRequest, error) {
	var req model.ShiftRequest
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("shift_request_id = ?", id).
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *shiftRequestRepo) GetActiveByShift(ctx context.Context, shiftID string) (*model.ShiftRequest, error) {
	var req model.ShiftRequest
	err := r.db.WithContext(ctx).
		Where("shift_id = ? AND status IN ?", shiftID, model.ActiveRequestStatuses).
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *shiftRequestRepo) ListActiveBefore(ctx context.Context, date string) ([]model.ShiftRequest, error) {
	var list []model.ShiftRequest
	err := r.db.WithContext(ctx).
		Where("status IN ? AND shift_date < ?", model.ActiveRequestStatuses, date).
		Order("shift_date ASC").
		Find(&list).Error
	return list, err
}

func (r *shiftRequestRepo) ListByStore(ctx context.Context, storeID string, status model.ShiftRequestStatus) ([]model.ShiftRequest, error) {
	var list []model.ShiftRequest
	query := r.db.WithContext(ctx).
		Preload("Shift").
		Where("store_id = ?", storeID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	err := query.Order("created_at DESC").Find(&list).Error
	return list, err
}

// Update 乐观锁更新状态流转字段
func (r *shiftRequestRepo) Update(ctx context.Context, req *model.ShiftRequest) error {
	oldVersion := req.Version
	result := r.db.WithContext(ctx).
		Model(&model.ShiftRequest{}).
		Where("shift_request_id = ? AND version = ?", req.ShiftRequestID, oldVersion).
		Updates(map[string]interface{}{
			"status":       req.Status,
			"target_id":    req.TargetID,
			"responded_at": req.RespondedAt,
			"decided_at":   req.DecidedAt,
			"decided_by":   req.DecidedBy,
			"updated_by":   req.UpdatedBy,
			"updated_at":   gorm.Expr("CURRENT_TIMESTAMP"),
			"version":      oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	req.Version = oldVersion + 1
	return nil
}
