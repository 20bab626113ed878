package dto

import (
	"time"

	"clock-in-system/backend/internal/model"
)

// ── 代班/换班 DTO ──

// CreateShiftRequestRequest 发起代班/换班
type CreateShiftRequestRequest struct {
	ShiftID  string  `json:"shift_id"  binding:"required,uuid"`
	Type     string  `json:"type"      binding:"required,oneof=cover swap"`
	TargetID *string `json:"target_id" binding:"required_if=Type swap"`
	Reason   string  `json:"reason"    binding:"omitempty,max=500"`
}

// ShiftRequestListRequest 门店申请列表查询
type ShiftRequestListRequest struct {
	StoreID string `form:"store_id" binding:"required,uuid"`
	Status  string `form:"status"   binding:"omitempty,oneof=pending accepted approved rejected cancelled"`
}

// ShiftRequestResponse 申请响应
type ShiftRequestResponse struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Status      string         `json:"status"`
	ShiftID     string         `json:"shift_id"`
	StoreID     string         `json:"store_id"`
	ShiftDate   string         `json:"shift_date"`
	RequesterID string         `json:"requester_id"`
	TargetID    *string        `json:"target_id,omitempty"`
	Reason      string         `json:"reason,omitempty"`
	RespondedAt *string        `json:"responded_at,omitempty"`
	DecidedAt   *string        `json:"decided_at,omitempty"`
	DecidedBy   *string        `json:"decided_by,omitempty"`
	Shift       *ShiftResponse `json:"shift,omitempty"`
}

// NewShiftRequestResponse 转换申请
func NewShiftRequestResponse(r *model.ShiftRequest, loc *time.Location) *ShiftRequestResponse {
	if r == nil {
		return nil
	}
	return &ShiftRequestResponse{
		ID:          r.ShiftRequestID,
		Type:        r.Type,
		Status:      string(r.Status),
		ShiftID:     r.ShiftID,
		StoreID:     r.StoreID,
		ShiftDate:   r.ShiftDate.Format("2006-01-02"),
		RequesterID: r.RequesterID,
		TargetID:    r.TargetID,
		Reason:      r.Reason,
		RespondedAt: formatTimePtr(r.RespondedAt, loc),
		DecidedAt:   formatTimePtr(r.DecidedAt, loc),
		DecidedBy:   r.DecidedBy,
		Shift:       NewShiftResponse(r.Shift),
	}
}
