// Package geo 提供打卡地理围栏校验
package geo

import "math"

// EarthRadiusMeters 地球平均半径（米）
const EarthRadiusMeters = 6371000.0

// Coordinate 经纬度坐标（角度制）
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Distance 使用 Haversine 公式计算两点间球面距离（米）
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	φ1 := toRadians(lat1)
	φ2 := toRadians(lat2)
	dφ := toRadians(lat2 - lat1)
	dλ := toRadians(lon2 - lon1)

	a := math.Sin(dφ/2)*math.Sin(dφ/2) +
		math.Cos(φ1)*math.Cos(φ2)*math.Sin(dλ/2)*math.Sin(dλ/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// WithinRange 判断用户坐标是否在门店允许半径内。
// 任一坐标缺失时返回 false；调用方需先区分「未提供位置」与「超出范围」。
func WithinRange(user, store *Coordinate, radiusMeters int) bool {
	if user == nil || store == nil {
		return false
	}
	d := Distance(user.Latitude, user.Longitude, store.Latitude, store.Longitude)
	return math.Floor(d) <= float64(radiusMeters)
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
