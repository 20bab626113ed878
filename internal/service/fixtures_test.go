package service

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"clock-in-system/backend/internal/model"
	"clock-in-system/backend/pkg/geo"
)

// ── 测试辅助 ──

// 珀斯无夏令时，固定时区即可
var testLoc = time.FixedZone("AWST", 8*3600)

const (
	testStoreID = "store-1"
	testEmpA    = "emp-a"
	testEmpB    = "emp-b"
	testManager = "mgr-1"
)

var (
	storeLat = -31.9505
	storeLng = 115.8605
	atStore  = &geo.Coordinate{Latitude: storeLat, Longitude: storeLng}
	// 约 100km 外
	farAway = &geo.Coordinate{Latitude: storeLat - 0.9, Longitude: storeLng}
)

func testRules() *Rules {
	return &Rules{
		Location:            testLoc,
		RoundingInterval:    15,
		MinGapBetweenShifts: 30 * time.Minute,
		MinClockOutGap:      15 * time.Minute,
		MinShiftLengthMins:  15,
		ConflictGap:         30 * time.Minute,
		EditTolerance:       15 * time.Second,
		DeleteWindow:        168 * time.Hour,
		RotationEpoch:       time.Date(2024, 1, 1, 0, 0, 0, 0, testLoc),
		RotationWeeks:       4,
	}
}

// at 2024-03-04（周一）起第 day 天的 hh:mm:ss
func at(day, hh, mm, ss int) time.Time {
	return time.Date(2024, 3, 4+day, hh, mm, ss, 0, testLoc)
}

func ptr[T any](v T) *T { return &v }

// seedBasicData 种子数据：1个门店 + 2名员工 + 1名经理
func seedBasicData(env *testEnv) {
	ctx := context.Background()
	_ = env.store.Create(ctx, &model.Store{
		StoreID:           testStoreID,
		Name:              "Perth CBD",
		Latitude:          &storeLat,
		Longitude:         &storeLng,
		ClockingRadiusM:   100,
		IsActive:          true,
		SchedulingEnabled: true,
	})
	for _, id := range []string{testEmpA, testEmpB, testManager} {
		_ = env.employee.Create(ctx, &model.Employee{EmployeeID: id, Name: id, IsActive: true})
		_ = env.membership.Create(ctx, &model.StoreMembership{
			EmployeeID: id,
			StoreID:    testStoreID,
			IsManager:  id == testManager,
		})
	}
}

func newEnv(t *testing.T, now time.Time) *testEnv {
	t.Helper()
	env := newTestEnv(testRules(), now)
	seedBasicData(env)
	return env
}

func (e *testEnv) clockService(holidays HolidayCalendar) *clockService {
	return newClockService(e.repository(), e.rules, e.auth, holidays, e.notifier, zap.NewNop(), e.clock.Now)
}

func (e *testEnv) exceptionService() *exceptionService {
	return newExceptionService(e.repository(), e.rules, e.auth, e.notifier, zap.NewNop(), e.clock.Now)
}

func (e *testEnv) shiftService() *shiftService {
	return newShiftService(e.repository(), e.rules, e.auth, e.notifier, zap.NewNop(), e.clock.Now)
}

func (e *testEnv) shiftRequestService() *shiftRequestService {
	return newShiftRequestService(e.repository(), e.rules, e.auth, e.notifier, zap.NewNop(), e.clock.Now)
}

func (e *testEnv) repeatingShiftService() RepeatingShiftService {
	return NewRepeatingShiftService(e.repository(), e.rules, e.auth, e.notifier, zap.NewNop())
}

// seedShift 直接写入一条排班
func (e *testEnv) seedShift(t *testing.T, employeeID string, day int, start, end string) *model.Shift {
	t.Helper()
	shift := &model.Shift{
		EmployeeID: employeeID,
		StoreID:    testStoreID,
		Date:       at(day, 0, 0, 0),
		StartTime:  start,
		EndTime:    end,
	}
	if err := e.shift.Create(context.Background(), shift); err != nil {
		t.Fatalf("写入排班失败: %v", err)
	}
	return shift
}

// seedActivity 直接写入一条已签退的出勤记录（时间已取整）
func (e *testEnv) seedActivity(t *testing.T, employeeID string, login, logout time.Time) *model.Activity {
	t.Helper()
	a := &model.Activity{
		EmployeeID:      employeeID,
		StoreID:         testStoreID,
		LoginTime:       login,
		LoginTimestamp:  login,
		LogoutTime:      &logout,
		LogoutTimestamp: &logout,
		ShiftLengthMins: int(logout.Sub(login).Minutes()),
		LastModified:    logout,
	}
	if err := e.activity.Create(context.Background(), a); err != nil {
		t.Fatalf("写入出勤记录失败: %v", err)
	}
	return a
}
