package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"clock-in-system/backend/internal/dto"
	"clock-in-system/backend/internal/model"
	"clock-in-system/backend/internal/service"
	"clock-in-system/backend/pkg/response"
)

// ShiftRequestHandler 代班/换班申请 HTTP 处理器
type ShiftRequestHandler struct {
	requestSvc service.ShiftRequestService
	loc        *time.Location
}

// NewShiftRequestHandler 创建 ShiftRequestHandler
func NewShiftRequestHandler(requestSvc service.ShiftRequestService, loc *time.Location) *ShiftRequestHandler {
	return &ShiftRequestHandler{requestSvc: requestSvc, loc: loc}
}

// Create 发起代班或换班
// POST /api/v1/shift-requests
func (h *ShiftRequestHandler) Create(c *gin.Context) {
	requesterID, ok := MustGetEmployeeID(c)
	if !ok {
		return
	}
	var req dto.CreateShiftRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	var (
		r   *model.ShiftRequest
		err error
	)
	if req.Type == model.ShiftRequestSwap {
		r, err = h.requestSvc.RequestSwap(c.Request.Context(), requesterID, req.ShiftID, *req.TargetID, req.Reason)
	} else {
		r, err = h.requestSvc.RequestCover(c.Request.Context(), requesterID, req.ShiftID, req.Reason)
	}
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Created(c, dto.NewShiftRequestResponse(r, h.loc))
}

// Get 获取申请详情
// GET /api/v1/shift-requests/:id
func (h *ShiftRequestHandler) Get(c *gin.Context) {
	r, err := h.requestSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.OK(c, dto.NewShiftRequestResponse(r, h.loc))
}

// List 门店申请列表（经理）
// GET /api/v1/shift-requests?store_id=&status=
func (h *ShiftRequestHandler) List(c *gin.Context) {
	managerID, ok := MustGetEmployeeID(c)
	if !ok {
		return
	}
	var req dto.ShiftRequestListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, err)
		return
	}

	list, err := h.requestSvc.ListByStore(c.Request.Context(), req.StoreID, model.ShiftRequestStatus(req.Status), managerID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	items := make([]*dto.ShiftRequestResponse, 0, len(list))
	for i := range list {
		items = append(items, dto.NewShiftRequestResponse(&list[i], h.loc))
	}
	response.OK(c, gin.H{"list": items})
}

// Accept 同事接受
// POST /api/v1/shift-requests/:id/accept
func (h *ShiftRequestHandler) Accept(c *gin.Context) {
	h.transition(c, h.requestSvc.Accept)
}

// Approve 经理批准
// POST /api/v1/shift-requests/:id/approve
func (h *ShiftRequestHandler) Approve(c *gin.Context) {
	h.transition(c, h.requestSvc.Approve)
}

// Reject 经理或指定同事拒绝
// POST /api/v1/shift-requests/:id/reject
func (h *ShiftRequestHandler) Reject(c *gin.Context) {
	h.transition(c, h.requestSvc.Reject)
}

// Cancel 发起人撤回
// POST /api/v1/shift-requests/:id/cancel
func (h *ShiftRequestHandler) Cancel(c *gin.Context) {
	h.transition(c, h.requestSvc.Cancel)
}

type requestTransition func(ctx context.Context, requestID, actorID string) (*model.ShiftRequest, error)

func (h *ShiftRequestHandler) transition(c *gin.Context, fn requestTransition) {
	actorID, ok := MustGetEmployeeID(c)
	if !ok {
		return
	}
	r, err := fn(c.Request.Context(), c.Param("id"), actorID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.OK(c, dto.NewShiftRequestResponse(r, h.loc))
}
