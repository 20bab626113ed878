package model

import "time"

// Shift 排班表 — 对应 shifts
// 软删除使用显式 is_deleted 标记，存在异常记录引用时不做物理删除
type Shift struct {
	ShiftID       string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"shift_id"`
	EmployeeID    string    `gorm:"type:uuid;not null"                             json:"employee_id"`
	StoreID       string    `gorm:"type:uuid;not null"                             json:"store_id"`
	Role          *string   `gorm:"type:varchar(50)"                               json:"role,omitempty"`
	Date          time.Time `gorm:"type:date;not null"                             json:"date"`
	StartTime     string    `gorm:"type:time;not null"                             json:"start_time"`
	EndTime       string    `gorm:"type:time;not null"                             json:"end_time"` // 允许 24:00
	Comment       string    `gorm:"type:varchar(500)"                              json:"comment,omitempty"`
	IsDeleted     bool      `gorm:"not null;default:false"                         json:"is_deleted"`
	IsUnscheduled bool      `gorm:"not null;default:false"                         json:"is_unscheduled"`
	VersionedModel

	// 关联
	Employee *Employee `gorm:"foreignKey:EmployeeID;references:EmployeeID" json:"employee,omitempty"`
}

// TableName 指定表名
func (Shift) TableName() string { return "shifts" }

// RepeatingShift 循环排班模板表 — 对应 repeating_shifts
// 仅为模板，不代表任何已排或已出勤时间
type RepeatingShift struct {
	RepeatingShiftID string   `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"repeating_shift_id"`
	EmployeeID       string   `gorm:"type:uuid;not null"                             json:"employee_id"`
	StoreID          string   `gorm:"type:uuid;not null"                             json:"store_id"`
	Role             *string  `gorm:"type:varchar(50)"                               json:"role,omitempty"`
	StartWeekday     int      `gorm:"type:smallint;not null"                         json:"start_weekday"` // 1=周一 … 7=周日
	EndWeekday       int      `gorm:"type:smallint;not null"                         json:"end_weekday"`
	StartTime        string   `gorm:"type:time;not null"                             json:"start_time"`
	EndTime          string   `gorm:"type:time;not null"                             json:"end_time"`
	Comment          string   `gorm:"type:varchar(500)"                              json:"comment,omitempty"`
	ActiveWeeks      IntArray `gorm:"type:int[];not null"                            json:"active_weeks"` // 轮换周期中生效的周次（1-based）
	BaseModel
}

// TableName 指定表名
func (RepeatingShift) TableName() string { return "repeating_shifts" }
