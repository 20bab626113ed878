package handler

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"clock-in-system/backend/internal/dto"
	"clock-in-system/backend/internal/service"
	"clock-in-system/backend/pkg/response"
)

// ClockHandler 打卡与出勤记录 HTTP 处理器
type ClockHandler struct {
	clockSvc service.ClockService
	loc      *time.Location
}

// NewClockHandler 创建 ClockHandler
func NewClockHandler(clockSvc service.ClockService, loc *time.Location) *ClockHandler {
	return &ClockHandler{clockSvc: clockSvc, loc: loc}
}

// ClockIn 签到
// POST /api/v1/clock/in
func (h *ClockHandler) ClockIn(c *gin.Context) {
	employeeID, ok := MustGetEmployeeID(c)
	if !ok {
		return
	}
	var req dto.ClockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	a, err := h.clockSvc.ClockIn(c.Request.Context(), employeeID, req.StoreID, req.Coordinate())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Created(c, dto.NewActivityResponse(a, h.loc))
}

// ClockOut 签退
// POST /api/v1/clock/out
func (h *ClockHandler) ClockOut(c *gin.Context) {
	employeeID, ok := MustGetEmployeeID(c)
	if !ok {
		return
	}
	var req dto.ClockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	a, err := h.clockSvc.ClockOut(c.Request.Context(), employeeID, req.StoreID, req.Coordinate(), req.Deliveries)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.OK(c, dto.NewActivityResponse(a, h.loc))
}

// Status 当前打卡状态
// GET /api/v1/clock/status?store_id=
func (h *ClockHandler) Status(c *gin.Context) {
	employeeID, ok := MustGetEmployeeID(c)
	if !ok {
		return
	}
	storeID := c.Query("store_id")
	if storeID == "" {
		badRequest(c, errors.New("store_id不能为空"))
		return
	}

	status, err := h.clockSvc.Status(c.Request.Context(), employeeID, storeID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.OK(c, status)
}

// EditActivity 经理修改出勤记录
// PUT /api/v1/activities/:id
func (h *ClockHandler) EditActivity(c *gin.Context) {
	managerID, ok := MustGetEmployeeID(c)
	if !ok {
		return
	}
	var req dto.EditActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	a, err := h.clockSvc.EditActivity(c.Request.Context(), c.Param("id"), &req, managerID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.OK(c, dto.NewActivityResponse(a, h.loc))
}

// DeleteActivity 经理删除出勤记录
// DELETE /api/v1/activities/:id
func (h *ClockHandler) DeleteActivity(c *gin.Context) {
	managerID, ok := MustGetEmployeeID(c)
	if !ok {
		return
	}
	if err := h.clockSvc.DeleteActivity(c.Request.Context(), c.Param("id"), managerID); err != nil {
		handleServiceError(c, err)
		return
	}
	response.OK(c, nil)
}
