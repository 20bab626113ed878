package handler

import (
	"time"

	"clock-in-system/backend/internal/service"
)

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Clock          *ClockHandler
	Shift          *ShiftHandler
	Exception      *ExceptionHandler
	ShiftRequest   *ShiftRequestHandler
	RepeatingShift *RepeatingShiftHandler
	Notification   *NotificationHandler
	Sweep          *SweepHandler
}

// NewHandler 创建 Handler 聚合；loc 为打卡时区，用于解析日期与输出时间
func NewHandler(svc *service.Service, loc *time.Location) *Handler {
	return &Handler{
		Clock:          NewClockHandler(svc.Clock, loc),
		Shift:          NewShiftHandler(svc.Shift, loc),
		Exception:      NewExceptionHandler(svc.Exception, loc),
		ShiftRequest:   NewShiftRequestHandler(svc.ShiftRequest, loc),
		RepeatingShift: NewRepeatingShiftHandler(svc.RepeatingShift, loc),
		Notification:   NewNotificationHandler(svc.Notification, loc),
		Sweep:          NewSweepHandler(svc.Sweep, svc.Exception, loc),
	}
}
