package dto

import (
	"time"

	"clock-in-system/backend/internal/model"
	"clock-in-system/backend/pkg/geo"
)

// ── 打卡模块 DTO ──

// ClockRequest 签到/签退请求
type ClockRequest struct {
	StoreID    string   `json:"store_id"   binding:"required,uuid"`
	Latitude   *float64 `json:"latitude"   binding:"omitempty,min=-90,max=90"`
	Longitude  *float64 `json:"longitude"  binding:"omitempty,min=-180,max=180"`
	Deliveries int      `json:"deliveries" binding:"omitempty,min=0"` // 仅签退使用
}

// Coordinate 提交的位置，经纬度任一缺失时返回 nil
func (r *ClockRequest) Coordinate() *geo.Coordinate {
	if r.Latitude == nil || r.Longitude == nil {
		return nil
	}
	return &geo.Coordinate{Latitude: *r.Latitude, Longitude: *r.Longitude}
}

// EditActivityRequest 经理修改出勤记录请求
type EditActivityRequest struct {
	LoginTime  time.Time  `json:"login_time"  binding:"required"`
	LogoutTime *time.Time `json:"logout_time"`
	Deliveries *int       `json:"deliveries"  binding:"omitempty,min=0"`
}

// ClockStatusResponse 当前打卡状态
type ClockStatusResponse struct {
	State    model.ActivityState `json:"state"`
	Activity *ActivityResponse   `json:"activity,omitempty"`
}

// ActivityResponse 出勤记录响应
type ActivityResponse struct {
	ID              string  `json:"id"`
	EmployeeID      string  `json:"employee_id"`
	StoreID         string  `json:"store_id"`
	LoginTime       string  `json:"login_time"`
	LoginTimestamp  string  `json:"login_timestamp"`
	LogoutTime      *string `json:"logout_time,omitempty"`
	LogoutTimestamp *string `json:"logout_timestamp,omitempty"`
	Deliveries      int     `json:"deliveries"`
	IsPublicHoliday bool    `json:"is_public_holiday"`
	ShiftLengthMins int     `json:"shift_length_mins"`
	LastModified    string  `json:"last_modified"`
}

// NewActivityResponse 转换出勤记录，时间按 loc 输出
func NewActivityResponse(a *model.Activity, loc *time.Location) *ActivityResponse {
	if a == nil {
		return nil
	}
	return &ActivityResponse{
		ID:              a.ActivityID,
		EmployeeID:      a.EmployeeID,
		StoreID:         a.StoreID,
		LoginTime:       formatTime(a.LoginTime, loc),
		LoginTimestamp:  formatTime(a.LoginTimestamp, loc),
		LogoutTime:      formatTimePtr(a.LogoutTime, loc),
		LogoutTimestamp: formatTimePtr(a.LogoutTimestamp, loc),
		Deliveries:      a.Deliveries,
		IsPublicHoliday: a.IsPublicHoliday,
		ShiftLengthMins: a.ShiftLengthMins,
		LastModified:    formatTime(a.LastModified, loc),
	}
}

func formatTime(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(time.RFC3339)
}

func formatTimePtr(t *time.Time, loc *time.Location) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t, loc)
	return &s
}
