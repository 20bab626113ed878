package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"clock-in-system/backend/internal/repository"
	pkgerrors "clock-in-system/backend/pkg/errors"
)

// Service 所有 Service 的聚合入口
type Service struct {
	Clock          ClockService
	Exception      ExceptionService
	Shift          ShiftService
	ShiftRequest   ShiftRequestService
	RepeatingShift RepeatingShiftService
	Sweep          SweepService
	Notification   NotificationService
}

// NewService 创建 Service 聚合
func NewService(
	rules *Rules,
	repo *repository.Repository,
	holidays HolidayCalendar,
	notifier Notifier,
	logger *zap.Logger,
) *Service {
	auth := NewMembershipAuthority(repo.Membership)

	clock := NewClockService(repo, rules, auth, holidays, notifier, logger)
	exception := NewExceptionService(repo, rules, auth, notifier, logger)
	requests := NewShiftRequestService(repo, rules, auth, notifier, logger)
	repeating := NewRepeatingShiftService(repo, rules, auth, notifier, logger)

	return &Service{
		Clock:          clock,
		Exception:      exception,
		Shift:          NewShiftService(repo, rules, auth, notifier, logger),
		ShiftRequest:   requests,
		RepeatingShift: repeating,
		Sweep:          NewSweepService(repo, clock, exception, repeating, requests, logger),
		Notification:   NewNotificationService(repo, logger),
	}
}

// businessErrors 调用方可见的业务错误，不记录为内部故障
var businessErrors = []error{
	// 打卡
	ErrEmployeeNotFound, ErrStoreNotFound, ErrActivityNotFound,
	ErrInactiveEmployee, ErrInactiveStore, ErrNotAssociatedWithStore, ErrNotStoreManager,
	ErrAlreadyClockedIn, ErrAlreadyClockedOut, ErrMissingLocation, ErrOutOfRange,
	ErrStartingTooSoon, ErrClockingOutTooSoon, ErrInvalidTimeRange, ErrMultiDayActivity,
	ErrFutureActivity, ErrShiftTooShort, ErrDeleteWindowExpired, ErrInvalidDeliveries,
	ErrConflictingInterval,
	// 异常审核
	ErrExceptionNotFound, ErrAlreadyApproved, ErrIncompleteActivity,
	// 排班
	ErrShiftNotFound, ErrSchedulingDisabled, ErrInvalidDate, ErrInvalidWeek,
	ErrRepeatingShiftNotFound, ErrInvalidWeekday, ErrInvalidActiveWeeks,
	// 代班/换班
	ErrShiftRequestNotFound, ErrNotShiftOwner, ErrShiftNotInFuture, ErrActiveRequestExists,
	ErrInvalidSwapTarget, ErrSwapWithSelf, ErrCannotActOnOwnRequest, ErrNotRequestTarget,
	ErrInvalidRequestTransition, ErrNotAuthorizedForRequest, ErrIneligibleEmployee,
	// 通知
	ErrNotificationNotFound,
	// 并发
	pkgerrors.ErrOptimisticLock,
}

// IsBusinessError 是否为预期内的业务错误
func IsBusinessError(err error) bool {
	for _, target := range businessErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// logInternal 业务错误原样返回，其余错误记录日志后返回
func logInternal(logger *zap.Logger, err error, msg string, fields ...zap.Field) error {
	if !IsBusinessError(err) {
		logger.Error(msg, append(fields, zap.Error(err))...)
	}
	return err
}

// requireManager 校验操作人是否为该门店经理
func requireManager(ctx context.Context, auth Authority, managerID, storeID string) error {
	ok, err := auth.IsManager(ctx, managerID, storeID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotStoreManager
	}
	return nil
}
