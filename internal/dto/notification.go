package dto

import (
	"time"

	"clock-in-system/backend/internal/model"
)

// NotificationListRequest 通知列表查询
type NotificationListRequest struct {
	UnreadOnly bool `form:"unread_only"`
	Limit      int  `form:"limit" binding:"omitempty,min=1,max=100"`
}

// GetLimit 每次返回条数（含默认值）
func (r *NotificationListRequest) GetLimit() int {
	if r.Limit <= 0 {
		return 20
	}
	return r.Limit
}

// NotificationResponse 通知响应
type NotificationResponse struct {
	ID          string  `json:"id"`
	Type        string  `json:"type"`
	Title       string  `json:"title"`
	Content     string  `json:"content"`
	IsRead      bool    `json:"is_read"`
	RelatedType *string `json:"related_type,omitempty"`
	RelatedID   *string `json:"related_id,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

// NewNotificationListResponse 批量转换通知
func NewNotificationListResponse(list []model.Notification, loc *time.Location) []NotificationResponse {
	result := make([]NotificationResponse, 0, len(list))
	for _, n := range list {
		result = append(result, NotificationResponse{
			ID:          n.NotificationID,
			Type:        n.Type,
			Title:       n.Title,
			Content:     n.Content,
			IsRead:      n.IsRead,
			RelatedType: n.RelatedType,
			RelatedID:   n.RelatedID,
			CreatedAt:   formatTime(n.CreatedAt, loc),
		})
	}
	return result
}
