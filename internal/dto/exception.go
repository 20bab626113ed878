package dto

import (
	"time"

	"clock-in-system/backend/internal/model"
)

// ── 异常审核 DTO ──

// ApproveWithCorrectionRequest 更正时间并批准
type ApproveWithCorrectionRequest struct {
	LoginTime  string  `json:"login_time"  binding:"required"` // HH:MM
	LogoutTime string  `json:"logout_time" binding:"required"` // HH:MM，允许 24:00
	Role       *string `json:"role"        binding:"omitempty,max=50"`
	Comment    *string `json:"comment"     binding:"omitempty,max=500"`
}

// ExceptionListRequest 待审核异常查询
type ExceptionListRequest struct {
	StoreID string `form:"store_id" binding:"required,uuid"`
}

// ReconcileRequest 手动触发门店某日核对
type ReconcileRequest struct {
	StoreID string `json:"store_id" binding:"required,uuid"`
	Date    string `json:"date"     binding:"required,datetime=2006-01-02"`
}

// ExceptionResponse 异常记录响应
type ExceptionResponse struct {
	ID                 string            `json:"id"`
	StoreID            string            `json:"store_id"`
	Reason             string            `json:"reason"`
	IsApproved         bool              `json:"is_approved"`
	ApprovedBy         *string           `json:"approved_by,omitempty"`
	ApprovedAt         *string           `json:"approved_at,omitempty"`
	OriginalLoginTime  *string           `json:"original_login_time,omitempty"`
	OriginalLogoutTime *string           `json:"original_logout_time,omitempty"`
	Shift              *ShiftResponse    `json:"shift,omitempty"`
	Activity           *ActivityResponse `json:"activity,omitempty"`
	ShiftID            *string           `json:"shift_id,omitempty"`
	ActivityID         *string           `json:"activity_id,omitempty"`
}

// NewExceptionResponse 转换异常记录
func NewExceptionResponse(e *model.ShiftException, loc *time.Location) *ExceptionResponse {
	if e == nil {
		return nil
	}
	return &ExceptionResponse{
		ID:                 e.ExceptionID,
		StoreID:            e.StoreID,
		Reason:             e.Reason,
		IsApproved:         e.IsApproved,
		ApprovedBy:         e.ApprovedBy,
		ApprovedAt:         formatTimePtr(e.ApprovedAt, loc),
		OriginalLoginTime:  formatTimePtr(e.OriginalLoginTime, loc),
		OriginalLogoutTime: formatTimePtr(e.OriginalLogoutTime, loc),
		Shift:              NewShiftResponse(e.Shift),
		Activity:           NewActivityResponse(e.Activity, loc),
		ShiftID:            e.ShiftID,
		ActivityID:         e.ActivityID,
	}
}

// SweepResultResponse 门店单日核对结果
type SweepResultResponse struct {
	Activities int `json:"activities"`
	Shifts     int `json:"shifts"`
}
