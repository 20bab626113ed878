package model

import "time"

// Activity 实际出勤记录表 — 对应 activities
// *_time 为按打卡间隔取整后的时间，*_timestamp 为实际打卡瞬间
type Activity struct {
	ActivityID      string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"activity_id"`
	EmployeeID      string     `gorm:"type:uuid;not null"                             json:"employee_id"`
	StoreID         string     `gorm:"type:uuid;not null"                             json:"store_id"`
	LoginTime       time.Time  `gorm:"not null"                                       json:"login_time"`
	LoginTimestamp  time.Time  `gorm:"not null"                                       json:"login_timestamp"`
	LogoutTime      *time.Time `json:"logout_time,omitempty"`
	LogoutTimestamp *time.Time `json:"logout_timestamp,omitempty"`
	Deliveries      int        `gorm:"not null;default:0"                             json:"deliveries"`
	IsPublicHoliday bool       `gorm:"not null;default:false"                         json:"is_public_holiday"`
	ShiftLengthMins int        `gorm:"not null;default:0"                             json:"shift_length_mins"` // 冗余派生，未签退时为 0
	LastModified    time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"last_modified"`
	BaseModel

	// 关联
	Employee *Employee `gorm:"foreignKey:EmployeeID;references:EmployeeID" json:"employee,omitempty"`
}

// TableName 指定表名
func (Activity) TableName() string { return "activities" }

// IsOpen 未签退的记录
func (a *Activity) IsOpen() bool {
	return a.LogoutTime == nil
}

// State 当前打卡状态
func (a *Activity) State() ActivityState {
	if a == nil || !a.IsOpen() {
		return ActivityNotClockedIn
	}
	return ActivityClockedIn
}

// EditedAfterClocking 判断记录是否在打卡之后被人工修改过。
// 比较 last_modified 与最后一次实际打卡瞬间，tolerance 吸收写库延迟。
func (a *Activity) EditedAfterClocking(tolerance time.Duration) bool {
	latest := a.LoginTimestamp
	if a.LogoutTimestamp != nil && a.LogoutTimestamp.After(latest) {
		latest = *a.LogoutTimestamp
	}
	return a.LastModified.Sub(latest) > tolerance
}
