package service

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"clock-in-system/backend/internal/model"
	"clock-in-system/backend/internal/repository"
)

var ErrNotificationNotFound = errors.New("通知不存在")

// NotificationService 站内信查询
type NotificationService interface {
	List(ctx context.Context, employeeID string, unreadOnly bool, limit int) ([]model.Notification, error)
	MarkRead(ctx context.Context, employeeID, notificationID string) error
}

type notificationService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewNotificationService 创建 NotificationService 实例
func NewNotificationService(repo *repository.Repository, logger *zap.Logger) NotificationService {
	return &notificationService{repo: repo, logger: logger}
}

func (s *notificationService) List(ctx context.Context, employeeID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	list, err := s.repo.Notification.ListByEmployee(ctx, employeeID, unreadOnly, limit)
	if err != nil {
		s.logger.Error("查询通知失败", zap.String("employee_id", employeeID), zap.Error(err))
		return nil, err
	}
	return list, nil
}

func (s *notificationService) MarkRead(ctx context.Context, employeeID, notificationID string) error {
	if err := s.repo.Notification.MarkRead(ctx, employeeID, notificationID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotificationNotFound
		}
		s.logger.Error("标记通知已读失败", zap.Error(err))
		return err
	}
	return nil
}
