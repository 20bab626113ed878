package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"clock-in-system/backend/internal/dto"
	"clock-in-system/backend/internal/service"
	"clock-in-system/backend/pkg/response"
)

// NotificationHandler 站内通知 HTTP 处理器
type NotificationHandler struct {
	notificationSvc service.NotificationService
	loc             *time.Location
}

// NewNotificationHandler 创建 NotificationHandler
func NewNotificationHandler(notificationSvc service.NotificationService, loc *time.Location) *NotificationHandler {
	return &NotificationHandler{notificationSvc: notificationSvc, loc: loc}
}

// List 当前员工的通知
// GET /api/v1/notifications?unread_only=&limit=
func (h *NotificationHandler) List(c *gin.Context) {
	employeeID, ok := MustGetEmployeeID(c)
	if !ok {
		return
	}
	var req dto.NotificationListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, err)
		return
	}

	list, err := h.notificationSvc.List(c.Request.Context(), employeeID, req.UnreadOnly, req.GetLimit())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.OK(c, gin.H{"list": dto.NewNotificationListResponse(list, h.loc)})
}

// MarkRead 标记已读
// PUT /api/v1/notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	employeeID, ok := MustGetEmployeeID(c)
	if !ok {
		return
	}
	if err := h.notificationSvc.MarkRead(c.Request.Context(), employeeID, c.Param("id")); err != nil {
		handleServiceError(c, err)
		return
	}
	response.OK(c, nil)
}
