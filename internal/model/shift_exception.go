package model

import "time"

// 异常原因
const (
	ReasonIncorrectlyClocked = "incorrectly_clocked"
	ReasonMissedShift        = "missed_shift"
	ReasonUnscheduledShift   = "unscheduled_shift"
	ReasonResolved           = "resolved"
)

// ShiftException 排班-出勤异常表 — 对应 shift_exceptions
// 排班与出勤记录之间的连接实体：两侧外键均可为空但不能同时为空，且各自唯一
type ShiftException struct {
	ExceptionID        string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"exception_id"`
	ShiftID            *string    `gorm:"type:uuid"                                      json:"shift_id,omitempty"`
	ActivityID         *string    `gorm:"type:uuid"                                      json:"activity_id,omitempty"`
	StoreID            string     `gorm:"type:uuid;not null"                             json:"store_id"` // 冗余快照
	Reason             string     `gorm:"type:varchar(30);not null"                      json:"reason"`
	IsApproved         bool       `gorm:"not null;default:false"                         json:"is_approved"`
	ApprovedBy         *string    `gorm:"type:uuid"                                      json:"approved_by,omitempty"`
	ApprovedAt         *time.Time `json:"approved_at,omitempty"`
	OriginalLoginTime  *time.Time `json:"original_login_time,omitempty"` // 更正前快照
	OriginalLogoutTime *time.Time `json:"original_logout_time,omitempty"`
	BaseModel

	// 关联
	Shift    *Shift    `gorm:"foreignKey:ShiftID;references:ShiftID"       json:"shift,omitempty"`
	Activity *Activity `gorm:"foreignKey:ActivityID;references:ActivityID" json:"activity,omitempty"`
}

// TableName 指定表名
func (ShiftException) TableName() string { return "shift_exceptions" }

// LinksShift 是否关联指定排班
func (e *ShiftException) LinksShift(shiftID string) bool {
	return e.ShiftID != nil && *e.ShiftID == shiftID
}

// LinksActivity 是否关联指定出勤记录
func (e *ShiftException) LinksActivity(activityID string) bool {
	return e.ActivityID != nil && *e.ActivityID == activityID
}
