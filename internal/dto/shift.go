package dto

import (
	"clock-in-system/backend/internal/model"
	"clock-in-system/backend/pkg/timeutil"
)

// ── 排班模块 DTO ──

// CreateShiftRequest 创建排班请求
type CreateShiftRequest struct {
	EmployeeID string  `json:"employee_id" binding:"required,uuid"`
	StoreID    string  `json:"store_id"    binding:"required,uuid"`
	Date       string  `json:"date"        binding:"required,datetime=2006-01-02"`
	StartTime  string  `json:"start_time"  binding:"required"`
	EndTime    string  `json:"end_time"    binding:"required"`
	Role       *string `json:"role"        binding:"omitempty,max=50"`
	Comment    string  `json:"comment"     binding:"omitempty,max=500"`
}

// UpdateShiftRequest 修改排班请求
type UpdateShiftRequest struct {
	Date      *string `json:"date"       binding:"omitempty,datetime=2006-01-02"`
	StartTime *string `json:"start_time"`
	EndTime   *string `json:"end_time"`
	Role      *string `json:"role"       binding:"omitempty,max=50"`
	Comment   *string `json:"comment"    binding:"omitempty,max=500"`
}

// ShiftWeekRequest 按周查询排班
type ShiftWeekRequest struct {
	StoreID   string `form:"store_id"   binding:"required,uuid"`
	WeekStart string `form:"week_start" binding:"required,datetime=2006-01-02"`
}

// CopyWeekRequest 整周复制请求
type CopyWeekRequest struct {
	StoreID  string `json:"store_id"  binding:"required,uuid"`
	FromWeek string `json:"from_week" binding:"required,datetime=2006-01-02"`
	ToWeek   string `json:"to_week"   binding:"required,datetime=2006-01-02"`
	Override bool   `json:"override"`
}

// SkipDetail 批量生成中被跳过的条目
type SkipDetail struct {
	SourceID   string `json:"source_id"`
	EmployeeID string `json:"employee_id"`
	Date       string `json:"date"`
	Reason     string `json:"reason"` // inactive | not_associated | conflict | invalid
}

// BatchResult 批量生成排班的结果
type BatchResult struct {
	Created int          `json:"created"`
	Updated int          `json:"updated"`
	Skipped int          `json:"skipped"`
	Skips   []SkipDetail `json:"skips,omitempty"`
}

// Skip 记录一条跳过
func (r *BatchResult) Skip(d SkipDetail) {
	r.Skipped++
	r.Skips = append(r.Skips, d)
}

// ShiftResponse 排班响应
type ShiftResponse struct {
	ID            string  `json:"id"`
	EmployeeID    string  `json:"employee_id"`
	EmployeeName  string  `json:"employee_name,omitempty"`
	StoreID       string  `json:"store_id"`
	Role          *string `json:"role,omitempty"`
	Date          string  `json:"date"`
	StartTime     string  `json:"start_time"`
	EndTime       string  `json:"end_time"`
	Comment       string  `json:"comment,omitempty"`
	IsUnscheduled bool    `json:"is_unscheduled"`
	Version       int     `json:"version"`
}

// NewShiftResponse 转换排班
func NewShiftResponse(s *model.Shift) *ShiftResponse {
	if s == nil {
		return nil
	}
	resp := &ShiftResponse{
		ID:            s.ShiftID,
		EmployeeID:    s.EmployeeID,
		StoreID:       s.StoreID,
		Role:          s.Role,
		Date:          s.Date.Format("2006-01-02"),
		StartTime:     clock(s.StartTime),
		EndTime:       clock(s.EndTime),
		Comment:       s.Comment,
		IsUnscheduled: s.IsUnscheduled,
		Version:       s.Version,
	}
	if s.Employee != nil {
		resp.EmployeeName = s.Employee.Name
	}
	return resp
}

// NewShiftListResponse 批量转换排班
func NewShiftListResponse(list []model.Shift) []ShiftResponse {
	result := make([]ShiftResponse, 0, len(list))
	for i := range list {
		result = append(result, *NewShiftResponse(&list[i]))
	}
	return result
}

// clock 统一输出 "HH:MM"，无法解析时原样返回
func clock(s string) string {
	if v, err := timeutil.NormalizeClock(s); err == nil {
		return v
	}
	return s
}
