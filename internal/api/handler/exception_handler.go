package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"clock-in-system/backend/internal/dto"
	"clock-in-system/backend/internal/service"
	"clock-in-system/backend/pkg/response"
)

// ExceptionHandler 考勤异常审核 HTTP 处理器
type ExceptionHandler struct {
	exceptionSvc service.ExceptionService
	loc          *time.Location
}

// NewExceptionHandler 创建 ExceptionHandler
func NewExceptionHandler(exceptionSvc service.ExceptionService, loc *time.Location) *ExceptionHandler {
	return &ExceptionHandler{exceptionSvc: exceptionSvc, loc: loc}
}

// ListPending 门店待审核异常
// GET /api/v1/exceptions?store_id=
func (h *ExceptionHandler) ListPending(c *gin.Context) {
	managerID, ok := MustGetEmployeeID(c)
	if !ok {
		return
	}
	var req dto.ExceptionListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, err)
		return
	}

	list, err := h.exceptionSvc.ListPending(c.Request.Context(), req.StoreID, managerID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	items := make([]*dto.ExceptionResponse, 0, len(list))
	for i := range list {
		items = append(items, dto.NewExceptionResponse(&list[i], h.loc))
	}
	response.OK(c, gin.H{"list": items})
}

// Approve 批准异常
// POST /api/v1/exceptions/:id/approve
func (h *ExceptionHandler) Approve(c *gin.Context) {
	managerID, ok := MustGetEmployeeID(c)
	if !ok {
		return
	}

	ex, err := h.exceptionSvc.Approve(c.Request.Context(), c.Param("id"), managerID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.OK(c, dto.NewExceptionResponse(ex, h.loc))
}

// ApproveWithCorrection 更正出勤时间并批准
// POST /api/v1/exceptions/:id/correct
func (h *ExceptionHandler) ApproveWithCorrection(c *gin.Context) {
	managerID, ok := MustGetEmployeeID(c)
	if !ok {
		return
	}
	var req dto.ApproveWithCorrectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	ex, err := h.exceptionSvc.ApproveWithCorrection(c.Request.Context(), c.Param("id"), &req, managerID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.OK(c, dto.NewExceptionResponse(ex, h.loc))
}
