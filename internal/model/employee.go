package model

// Employee 员工表 — 对应 employees
type Employee struct {
	EmployeeID string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"employee_id"`
	Name       string `gorm:"type:varchar(100);not null"                     json:"name"`
	Email      string `gorm:"type:varchar(255);not null"                     json:"email"`
	IsActive   bool   `gorm:"not null;default:true"                          json:"is_active"`
	IsHidden   bool   `gorm:"not null;default:false"                         json:"is_hidden"` // 系统账号
	BaseModel
}

// TableName 指定表名
func (Employee) TableName() string { return "employees" }

// StoreMembership 员工-门店关联表 — 对应 store_memberships
// 同一员工在不同门店可以拥有不同身份，经理权限按 (employee, store) 查询
type StoreMembership struct {
	MembershipID string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"membership_id"`
	EmployeeID   string `gorm:"type:uuid;not null"                             json:"employee_id"`
	StoreID      string `gorm:"type:uuid;not null"                             json:"store_id"`
	IsManager    bool   `gorm:"not null;default:false"                         json:"is_manager"`
	BaseModel

	// 关联
	Employee *Employee `gorm:"foreignKey:EmployeeID;references:EmployeeID" json:"employee,omitempty"`
}

// TableName 指定表名
func (StoreMembership) TableName() string { return "store_memberships" }
