package model

import "time"

// 请求类型
const (
	ShiftRequestCover = "cover" // 转给任意合格同事
	ShiftRequestSwap  = "swap"  // 转给指定同事
)

// ShiftRequest 代班/换班申请表 — 对应 shift_requests
type ShiftRequest struct {
	ShiftRequestID string             `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"shift_request_id"`
	Type           string             `gorm:"type:varchar(10);not null"                      json:"type"`
	Status         ShiftRequestStatus `gorm:"type:varchar(20);not null;default:'pending'"    json:"status"`
	ShiftID        string             `gorm:"type:uuid;not null"                             json:"shift_id"`
	StoreID        string             `gorm:"type:uuid;not null"                             json:"store_id"`   // 冗余快照
	ShiftDate      time.Time          `gorm:"type:date;not null"                             json:"shift_date"` // 冗余快照
	RequesterID    string             `gorm:"type:uuid;not null"                             json:"requester_id"`
	TargetID       *string            `gorm:"type:uuid"                                      json:"target_id,omitempty"`
	Reason         string             `gorm:"type:varchar(500)"                              json:"reason,omitempty"`
	RespondedAt    *time.Time         `json:"responded_at,omitempty"`
	DecidedAt      *time.Time         `json:"decided_at,omitempty"`
	DecidedBy      *string            `gorm:"type:uuid"                                      json:"decided_by,omitempty"`
	VersionedModel

	// 关联
	Shift *Shift `gorm:"foreignKey:ShiftID;references:ShiftID" json:"shift,omitempty"`
}

// TableName 指定表名
func (ShiftRequest) TableName() string { return "shift_requests" }
