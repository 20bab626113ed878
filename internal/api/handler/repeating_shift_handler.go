package handler

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"clock-in-system/backend/internal/dto"
	"clock-in-system/backend/internal/service"
	"clock-in-system/backend/pkg/response"
)

// RepeatingShiftHandler 循环排班模板 HTTP 处理器
type RepeatingShiftHandler struct {
	repeatingSvc service.RepeatingShiftService
	loc          *time.Location
}

// NewRepeatingShiftHandler 创建 RepeatingShiftHandler
func NewRepeatingShiftHandler(repeatingSvc service.RepeatingShiftService, loc *time.Location) *RepeatingShiftHandler {
	return &RepeatingShiftHandler{repeatingSvc: repeatingSvc, loc: loc}
}

// Create 创建模板
// POST /api/v1/repeating-shifts
func (h *RepeatingShiftHandler) Create(c *gin.Context) {
	managerID, ok := MustGetEmployeeID(c)
	if !ok {
		return
	}
	var req dto.CreateRepeatingShiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	rs, err := h.repeatingSvc.Create(c.Request.Context(), &req, managerID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Created(c, dto.NewRepeatingShiftResponse(rs))
}

// List 门店模板列表
// GET /api/v1/repeating-shifts?store_id=
func (h *RepeatingShiftHandler) List(c *gin.Context) {
	managerID, ok := MustGetEmployeeID(c)
	if !ok {
		return
	}
	storeID := c.Query("store_id")
	if storeID == "" {
		badRequest(c, errors.New("store_id不能为空"))
		return
	}

	list, err := h.repeatingSvc.List(c.Request.Context(), storeID, managerID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	items := make([]*dto.RepeatingShiftResponse, 0, len(list))
	for i := range list {
		items = append(items, dto.NewRepeatingShiftResponse(&list[i]))
	}
	response.OK(c, gin.H{"list": items})
}

// Delete 删除模板（已生成的排班保留）
// DELETE /api/v1/repeating-shifts/:id
func (h *RepeatingShiftHandler) Delete(c *gin.Context) {
	managerID, ok := MustGetEmployeeID(c)
	if !ok {
		return
	}
	if err := h.repeatingSvc.Delete(c.Request.Context(), c.Param("id"), managerID); err != nil {
		handleServiceError(c, err)
		return
	}
	response.OK(c, nil)
}

// Generate 经理手动按模板生成某周排班
// POST /api/v1/repeating-shifts/generate
func (h *RepeatingShiftHandler) Generate(c *gin.Context) {
	managerID, ok := MustGetEmployeeID(c)
	if !ok {
		return
	}
	var req dto.MaterializeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	week, err := time.ParseInLocation("2006-01-02", req.WeekStart, h.loc)
	if err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.repeatingSvc.Generate(c.Request.Context(), req.StoreID, week, managerID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.OK(c, result)
}
