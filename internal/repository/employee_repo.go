package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"clock-in-system/backend/internal/model"
)

// EmployeeRepository 员工数据访问接口
type EmployeeRepository interface {
	Create(ctx context.Context, employee *model.Employee) error
	GetByID(ctx context.Context, id string) (*model.Employee, error)
	// GetByIDForUpdate 行锁读取，用于串行化同一员工的打卡
	GetByIDForUpdate(ctx context.Context, id string) (*model.Employee, error)
}

// MembershipRepository 员工-门店关联数据访问接口
type MembershipRepository interface {
	Create(ctx context.Context, m *model.StoreMembership) error
	Get(ctx context.Context, employeeID, storeID string) (*model.StoreMembership, error)
	ListManagers(ctx context.Context, storeID string) ([]model.StoreMembership, error)
}

// ── Employee Repository 实现 ──

type employeeRepo struct {
	db *gorm.DB
}

// NewEmployeeRepo 创建 EmployeeRepository 实例
func NewEmployeeRepo(db *gorm.DB) EmployeeRepository {
	return &employeeRepo{db: db}
}

func (r *employeeRepo) Create(ctx context.Context, employee *model.Employee) error {
	return r.db.WithContext(ctx).Create(employee).Error
}

func (r *employeeRepo) GetByID(ctx context.Context, id string) (*model.Employee, error) {
	var employee model.Employee
	err := r.db.WithContext(ctx).Where("employee_id = ?", id).First(&employee).Error
	if err != nil {
		return nil, err
	}
	return &employee, nil
}

func (r *employeeRepo) GetByIDForUpdate(ctx context.Context, id string) (*model.Employee, error) {
	var employee model.Employee
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("employee_id = ?", id).
		First(&employee).Error
	if err != nil {
		return nil, err
	}
	return &employee, nil
}

// ── Membership Repository 实现 ──

type membershipRepo struct {
	db *gorm.DB
}

// NewMembershipRepo 创建 MembershipRepository 实例
func NewMembershipRepo(db *gorm.DB) MembershipRepository {
	return &membershipRepo{db: db}
}

func (r *membershipRepo) Create(ctx context.Context, m *model.StoreMembership) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *membershipRepo) Get(ctx context.Context, employeeID, storeID string) (*model.StoreMembership, error) {
	var m model.StoreMembership
	err := r.db.WithContext(ctx).
		Where("employee_id = ? AND store_id = ?", employeeID, storeID).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *membershipRepo) ListManagers(ctx context.Context, storeID string) ([]model.StoreMembership, error) {
	var list []model.StoreMembership
	err := r.db.WithContext(ctx).
		Joins("JOIN employees ON employees.employee_id = store_memberships.employee_id").
		Where("store_memberships.store_id = ? AND store_memberships.is_manager = ? AND employees.is_active = ?", storeID, true, true).
		Find(&list).Error
	return list, err
}
