package repository

import (
	"context"

	"gorm.io/gorm"

	"clock-in-system/backend/internal/model"
)

// NotificationRepository 站内通知数据访问接口
type NotificationRepository interface {
	BatchCreate(ctx context.Context, list []model.Notification) error
	ListByEmployee(ctx context.Context, employeeID string, unreadOnly bool, limit int) ([]model.Notification, error)
	MarkRead(ctx context.Context, employeeID, notificationID string) error
}

type notificationRepo struct {
	db *gorm.DB
}

// NewNotificationRepo 创建 NotificationRepository 实例
func NewNotificationRepo(db *gorm.DB) NotificationRepository {
	return &notificationRepo{db: db}
}

func (r *notificationRepo) BatchCreate(ctx context.Context, list []model.Notification) error {
	if len(list) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&list).Error
}

func (r *notificationRepo) ListByEmployee(ctx context.Context, employeeID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	var list []model.Notification
	query := r.db.WithContext(ctx).Where("employee_id = ?", employeeID)
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}
	err := query.Order("created_at DESC").Limit(limit).Find(&list).Error
	return list, err
}

func (r *notificationRepo) MarkRead(ctx context.Context, employeeID, notificationID string) error {
	result := r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("notification_id = ? AND employee_id = ?", notificationID, employeeID).
		Update("is_read", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
