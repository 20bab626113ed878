package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"clock-in-system/backend/internal/dto"
	"clock-in-system/backend/internal/service"
	"clock-in-system/backend/pkg/response"
)

// ShiftHandler 排班 HTTP 处理器
type ShiftHandler struct {
	shiftSvc service.ShiftService
	loc      *time.Location
}

// NewShiftHandler 创建 ShiftHandler
func NewShiftHandler(shiftSvc service.ShiftService, loc *time.Location) *ShiftHandler {
	return &ShiftHandler{shiftSvc: shiftSvc, loc: loc}
}

// Create 创建排班
// POST /api/v1/shifts
func (h *ShiftHandler) Create(c *gin.Context) {
	managerID, ok := MustGetEmployeeID(c)
	if !ok {
		return
	}
	var req dto.CreateShiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	shift, err := h.shiftSvc.Create(c.Request.Context(), &req, managerID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Created(c, dto.NewShiftResponse(shift))
}

// Update 修改排班
// PUT /api/v1/shifts/:id
func (h *ShiftHandler) Update(c *gin.Context) {
	managerID, ok := MustGetEmployeeID(c)
	if !ok {
		return
	}
	var req dto.UpdateShiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	shift, err := h.shiftSvc.Update(c.Request.Context(), c.Param("id"), &req, managerID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.OK(c, dto.NewShiftResponse(shift))
}

// Delete 删除排班
// DELETE /api/v1/shifts/:id
func (h *ShiftHandler) Delete(c *gin.Context) {
	managerID, ok := MustGetEmployeeID(c)
	if !ok {
		return
	}
	if err := h.shiftSvc.Delete(c.Request.Context(), c.Param("id"), managerID); err != nil {
		handleServiceError(c, err)
		return
	}
	response.OK(c, nil)
}

// Get 获取单条排班
// GET /api/v1/shifts/:id
func (h *ShiftHandler) Get(c *gin.Context) {
	shift, err := h.shiftSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.OK(c, dto.NewShiftResponse(shift))
}

// ListWeek 门店某周排班
// GET /api/v1/shifts?store_id=&week_start=
func (h *ShiftHandler) ListWeek(c *gin.Context) {
	var req dto.ShiftWeekRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, err)
		return
	}
	week, err := time.ParseInLocation("2006-01-02", req.WeekStart, h.loc)
	if err != nil {
		badRequest(c, err)
		return
	}

	list, err := h.shiftSvc.ListWeek(c.Request.Context(), req.StoreID, week)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.OK(c, gin.H{"list": dto.NewShiftListResponse(list)})
}

// CopyWeek 整周复制
// POST /api/v1/shifts/copy-week
func (h *ShiftHandler) CopyWeek(c *gin.Context) {
	managerID, ok := MustGetEmployeeID(c)
	if !ok {
		return
	}
	var req dto.CopyWeekRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.shiftSvc.CopyWeek(c.Request.Context(), &req, managerID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.OK(c, result)
}
