package service

import (
	"context"

	"go.uber.org/zap"

	"clock-in-system/backend/internal/model"
	"clock-in-system/backend/internal/repository"
)

// 通知类型
const (
	NoticeForcedClockOut   = "forced_clock_out"
	NoticeExceptionCreated = "exception_created"
	NoticeExceptionDecided = "exception_approved"
	NoticeRequestChanged   = "shift_request_changed"
	NoticeShiftsGenerated  = "shifts_materialized"
)

// Notice 通知载荷；ManagersOf 非空时额外投递给该门店全部经理
type Notice struct {
	Recipients  []string
	ManagersOf  string
	Type        string
	Title       string
	Content     string
	RelatedType string
	RelatedID   string
}

// Notifier 通知分发器，调用方不关心投递结果
type Notifier interface {
	Notify(ctx context.Context, notice Notice)
}

// outbox 事务内收集的通知，提交后统一发送
type outbox []Notice

func (o *outbox) add(n Notice) { *o = append(*o, n) }

func (o outbox) flush(ctx context.Context, n Notifier) {
	if n == nil {
		return
	}
	for _, notice := range o {
		n.Notify(ctx, notice)
	}
}

// ── 站内信分发 ──

type inboxNotifier struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewInboxNotifier 创建写入 notifications 表的分发器
func NewInboxNotifier(repo *repository.Repository, logger *zap.Logger) Notifier {
	return &inboxNotifier{repo: repo, logger: logger}
}

func (n *inboxNotifier) Notify(ctx context.Context, notice Notice) {
	recipients := make(map[string]struct{}, len(notice.Recipients))
	for _, id := range notice.Recipients {
		if id != "" {
			recipients[id] = struct{}{}
		}
	}
	if notice.ManagersOf != "" {
		managers, err := n.repo.Membership.ListManagers(ctx, notice.ManagersOf)
		if err != nil {
			n.logger.Error("查询门店经理失败", zap.String("store_id", notice.ManagersOf), zap.Error(err))
		}
		for _, m := range managers {
			recipients[m.EmployeeID] = struct{}{}
		}
	}
	if len(recipients) == 0 {
		return
	}

	var relatedType, relatedID *string
	if notice.RelatedType != "" {
		relatedType = &notice.RelatedType
	}
	if notice.RelatedID != "" {
		relatedID = &notice.RelatedID
	}

	list := make([]model.Notification, 0, len(recipients))
	for id := range recipients {
		list = append(list, model.Notification{
			EmployeeID:  id,
			Type:        notice.Type,
			Title:       notice.Title,
			Content:     notice.Content,
			RelatedType: relatedType,
			RelatedID:   relatedID,
		})
	}
	if err := n.repo.Notification.BatchCreate(ctx, list); err != nil {
		n.logger.Error("写入通知失败",
			zap.String("type", notice.Type),
			zap.Int("recipients", len(list)),
			zap.Error(err),
		)
	}
}
