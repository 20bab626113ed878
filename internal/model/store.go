package model

// Store 门店表 — 对应 stores
type Store struct {
	StoreID           string   `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"store_id"`
	Name              string   `gorm:"type:varchar(100);not null"                     json:"name"`
	Address           string   `gorm:"type:varchar(200)"                              json:"address,omitempty"`
	Latitude          *float64 `json:"latitude,omitempty"`
	Longitude         *float64 `json:"longitude,omitempty"`
	ClockingRadiusM   int      `gorm:"column:clocking_radius_m;not null;default:100"  json:"clocking_radius_m"`
	IsActive          bool     `gorm:"not null;default:true"                          json:"is_active"`
	SchedulingEnabled bool     `gorm:"not null;default:true"                          json:"scheduling_enabled"`
	BaseModel
}

// TableName 指定表名
func (Store) TableName() string { return "stores" }

// HasLocation 门店是否登记了坐标
func (s *Store) HasLocation() bool {
	return s.Latitude != nil && s.Longitude != nil
}
