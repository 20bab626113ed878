package dto

import "clock-in-system/backend/internal/model"

// ── 循环排班 DTO ──

// CreateRepeatingShiftRequest 创建循环排班模板
type CreateRepeatingShiftRequest struct {
	EmployeeID   string  `json:"employee_id"   binding:"required,uuid"`
	StoreID      string  `json:"store_id"      binding:"required,uuid"`
	Role         *string `json:"role"          binding:"omitempty,max=50"`
	StartWeekday int     `json:"start_weekday" binding:"required,min=1,max=7"`
	EndWeekday   int     `json:"end_weekday"   binding:"required,min=1,max=7"`
	StartTime    string  `json:"start_time"    binding:"required"`
	EndTime      string  `json:"end_time"      binding:"required"`
	Comment      string  `json:"comment"       binding:"omitempty,max=500"`
	ActiveWeeks  []int   `json:"active_weeks"  binding:"required,min=1,dive,min=1"`
}

// MaterializeRequest 按模板生成某周排班
type MaterializeRequest struct {
	StoreID   string `json:"store_id"   binding:"required,uuid"`
	WeekStart string `json:"week_start" binding:"required,datetime=2006-01-02"`
}

// RepeatingShiftResponse 模板响应
type RepeatingShiftResponse struct {
	ID           string  `json:"id"`
	EmployeeID   string  `json:"employee_id"`
	StoreID      string  `json:"store_id"`
	Role         *string `json:"role,omitempty"`
	StartWeekday int     `json:"start_weekday"`
	EndWeekday   int     `json:"end_weekday"`
	StartTime    string  `json:"start_time"`
	EndTime      string  `json:"end_time"`
	Comment      string  `json:"comment,omitempty"`
	ActiveWeeks  []int   `json:"active_weeks"`
}

// NewRepeatingShiftResponse 转换模板
func NewRepeatingShiftResponse(rs *model.RepeatingShift) *RepeatingShiftResponse {
	if rs == nil {
		return nil
	}
	return &RepeatingShiftResponse{
		ID:           rs.RepeatingShiftID,
		EmployeeID:   rs.EmployeeID,
		StoreID:      rs.StoreID,
		Role:         rs.Role,
		StartWeekday: rs.StartWeekday,
		EndWeekday:   rs.EndWeekday,
		StartTime:    clock(rs.StartTime),
		EndTime:      clock(rs.EndTime),
		Comment:      rs.Comment,
		ActiveWeeks:  []int(rs.ActiveWeeks),
	}
}
