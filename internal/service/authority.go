package service

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"clock-in-system/backend/internal/repository"
)

// Authority 门店关联与经理权限判定
// 同一员工在不同门店身份不同，按 (employee, store) 查询
type Authority interface {
	IsAssociated(ctx context.Context, employeeID, storeID string) (bool, error)
	IsManager(ctx context.Context, employeeID, storeID string) (bool, error)
}

type membershipAuthority struct {
	memberships repository.MembershipRepository
}

// NewMembershipAuthority 基于 store_memberships 的权限判定
func NewMembershipAuthority(memberships repository.MembershipRepository) Authority {
	return &membershipAuthority{memberships: memberships}
}

func (a *membershipAuthority) IsAssociated(ctx context.Context, employeeID, storeID string) (bool, error) {
	_, err := a.memberships.Get(ctx, employeeID, storeID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (a *membershipAuthority) IsManager(ctx context.Context, employeeID, storeID string) (bool, error) {
	m, err := a.memberships.Get(ctx, employeeID, storeID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return m.IsManager, nil
}
