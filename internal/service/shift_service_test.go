package service

import (
	"context"
	"errors"
	"testing"

	"clock-in-system/backend/internal/dto"
	"clock-in-system/backend/internal/model"
)

func createReq(employeeID, date, start, end string) *dto.CreateShiftRequest {
	return &dto.CreateShiftRequest{
		EmployeeID: employeeID,
		StoreID:    testStoreID,
		Date:       date,
		StartTime:  start,
		EndTime:    end,
	}
}

// ── Create ──

func TestShiftService_Create(t *testing.T) {
	env := newEnv(t, at(0, 8, 0, 0))
	svc := env.shiftService()
	ctx := context.Background()

	shift, err := svc.Create(ctx, createReq(testEmpA, "2024-03-05", "09:00", "17:00"), testManager)
	if err != nil {
		t.Fatalf("Create 应成功: %v", err)
	}
	if shift.Date.Format("2006-01-02") != "2024-03-05" || shift.StartTime != "09:00" {
		t.Errorf("排班内容不符: %s %s", shift.Date.Format("2006-01-02"), shift.StartTime)
	}
	if shift.CreatedBy == nil || *shift.CreatedBy != testManager {
		t.Error("应记录创建人")
	}
}

func TestShiftService_Create_Validation(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name    string
		setup   func(env *testEnv)
		req     *dto.CreateShiftRequest
		manager string
		want    error
	}{
		{"非经理", nil, createReq(testEmpA, "2024-03-05", "09:00", "17:00"), testEmpB, ErrNotStoreManager},
		{"结束不晚于开始", nil, createReq(testEmpA, "2024-03-05", "17:00", "09:00"), testManager, ErrInvalidTimeRange},
		{"时间格式错误", nil, createReq(testEmpA, "2024-03-05", "9am", "17:00"), testManager, ErrInvalidTimeRange},
		{"日期格式错误", nil, createReq(testEmpA, "05/03/2024", "09:00", "17:00"), testManager, ErrInvalidDate},
		{"门店未启用排班", func(env *testEnv) {
			env.store.stores[testStoreID].SchedulingEnabled = false
		}, createReq(testEmpA, "2024-03-05", "09:00", "17:00"), testManager, ErrSchedulingDisabled},
		{"员工停用", func(env *testEnv) {
			env.employee.employees[testEmpA].IsActive = false
		}, createReq(testEmpA, "2024-03-05", "09:00", "17:00"), testManager, ErrInactiveEmployee},
		{"员工不属于门店", func(env *testEnv) {
			delete(env.membership.members, testEmpA+"|"+testStoreID)
		}, createReq(testEmpA, "2024-03-05", "09:00", "17:00"), testManager, ErrNotAssociatedWithStore},
		{"与已有排班间隔不足", func(env *testEnv) {
			env.seedShift(t, testEmpA, 1, "06:00", "08:45")
		}, createReq(testEmpA, "2024-03-05", "09:00", "17:00"), testManager, ErrConflictingInterval},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			env := newEnv(t, at(0, 8, 0, 0))
			if c.setup != nil {
				c.setup(env)
			}
			_, err := env.shiftService().Create(ctx, c.req, c.manager)
			if !errors.Is(err, c.want) {
				t.Errorf("期望 %v，实际 %v", c.want, err)
			}
		})
	}
}

func TestShiftService_Create_EndOfDay(t *testing.T) {
	env := newEnv(t, at(0, 8, 0, 0))
	svc := env.shiftService()
	ctx := context.Background()

	if _, err := svc.Create(ctx, createReq(testEmpA, "2024-03-05", "18:00", "24:00"), testManager); err != nil {
		t.Fatalf("24:00 结束的排班应允许: %v", err)
	}
	// 次日 00:00 开始的排班与之相邻但属于不同日期
	if _, err := svc.Create(ctx, createReq(testEmpA, "2024-03-06", "00:00", "06:00"), testManager); err != nil {
		t.Fatalf("跨午夜相邻的排班应允许: %v", err)
	}
}

func TestShiftService_Create_PastShiftRetiresException(t *testing.T) {
	env := newEnv(t, at(1, 9, 0, 0))
	a := env.seedActivity(t, testEmpA, at(0, 9, 0, 0), at(0, 17, 0, 0))
	ctx := context.Background()

	if err := env.exceptionService().ReconcileActivity(ctx, a.ActivityID); err != nil {
		t.Fatalf("ReconcileActivity 应成功: %v", err)
	}

	// 补录与出勤完全一致的排班
	shift, err := env.shiftService().Create(ctx, createReq(testEmpA, "2024-03-04", "09:00", "17:00"), testManager)
	if err != nil {
		t.Fatalf("Create 应成功: %v", err)
	}
	ex, err := env.exception.GetByActivity(ctx, a.ActivityID)
	if err != nil {
		t.Fatalf("异常应保留为已消除状态: %v", err)
	}
	if ex.Reason != model.ReasonResolved || !ex.IsApproved || !ex.LinksShift(shift.ShiftID) {
		t.Errorf("期望 resolved 且关联新排班，实际 %s approved=%v", ex.Reason, ex.IsApproved)
	}
}

// ── Update ──

func TestShiftService_Update(t *testing.T) {
	env := newEnv(t, at(1, 9, 0, 0))
	shift := env.seedShift(t, testEmpA, 0, "10:00", "18:00")
	a := env.seedActivity(t, testEmpA, at(0, 9, 0, 0), at(0, 17, 0, 0))
	ctx := context.Background()

	if err := env.exceptionService().ReconcileActivity(ctx, a.ActivityID); err != nil {
		t.Fatalf("ReconcileActivity 应成功: %v", err)
	}

	start, end := "09:00", "17:00"
	got, err := env.shiftService().Update(ctx, shift.ShiftID, &dto.UpdateShiftRequest{StartTime: &start, EndTime: &end}, testManager)
	if err != nil {
		t.Fatalf("Update 应成功: %v", err)
	}
	if got.Version != 2 {
		t.Errorf("期望版本号 2，实际 %d", got.Version)
	}
	ex, _ := env.exception.GetByActivity(ctx, a.ActivityID)
	if ex == nil || ex.Reason != model.ReasonResolved {
		t.Error("修改后完全匹配，异常应被消除")
	}
}

func TestShiftService_Update_BumpsVersion(t *testing.T) {
	env := newEnv(t, at(0, 8, 0, 0))
	shift := env.seedShift(t, testEmpA, 1, "10:00", "18:00")
	env.shift.shifts[shift.ShiftID].Version = 5
	ctx := context.Background()

	// 锁定读取得到最新版本
	comment := "opening"
	if _, err := env.shiftService().Update(ctx, shift.ShiftID, &dto.UpdateShiftRequest{Comment: &comment}, testManager); err != nil {
		t.Fatalf("Update 应成功: %v", err)
	}
	if v := env.shift.shifts[shift.ShiftID].Version; v != 6 {
		t.Errorf("期望版本号 6，实际 %d", v)
	}
}

// ── Delete ──

func TestShiftService_Delete_ReclassifiesActivity(t *testing.T) {
	env := newEnv(t, at(1, 9, 0, 0))
	shift := env.seedShift(t, testEmpA, 0, "10:00", "18:00")
	a := env.seedActivity(t, testEmpA, at(0, 9, 0, 0), at(0, 17, 0, 0))
	ctx := context.Background()

	if err := env.exceptionService().ReconcileActivity(ctx, a.ActivityID); err != nil {
		t.Fatalf("ReconcileActivity 应成功: %v", err)
	}
	if err := env.shiftService().Delete(ctx, shift.ShiftID, testManager); err != nil {
		t.Fatalf("Delete 应成功: %v", err)
	}

	if !env.shift.shifts[shift.ShiftID].IsDeleted {
		t.Error("排班应被软删除")
	}
	ex, err := env.exception.GetByActivity(ctx, a.ActivityID)
	if err != nil {
		t.Fatalf("出勤记录应保留异常: %v", err)
	}
	if ex.Reason != model.ReasonUnscheduledShift || ex.ShiftID != nil {
		t.Errorf("期望转为 unscheduled_shift 且不再关联排班，实际 %s", ex.Reason)
	}
	if _, err := env.shiftService().GetByID(ctx, shift.ShiftID); !errors.Is(err, ErrShiftNotFound) {
		t.Errorf("已删除的排班期望 ErrShiftNotFound，实际 %v", err)
	}
}

func TestShiftService_Delete_RemovesMissedException(t *testing.T) {
	env := newEnv(t, at(1, 9, 0, 0))
	shift := env.seedShift(t, testEmpA, 0, "10:00", "18:00")
	ctx := context.Background()

	if _, err := env.exceptionService().SweepStore(ctx, testStoreID, at(0, 0, 0, 0)); err != nil {
		t.Fatalf("SweepStore 应成功: %v", err)
	}
	if err := env.shiftService().Delete(ctx, shift.ShiftID, testManager); err != nil {
		t.Fatalf("Delete 应成功: %v", err)
	}
	if n := len(env.exception.exceptions); n != 0 {
		t.Errorf("仅关联排班的异常应随之删除，实际 %d 条", n)
	}
}

func TestShiftService_Delete_CancelsActiveRequest(t *testing.T) {
	env := newEnv(t, at(0, 8, 0, 0))
	shift := env.seedShift(t, testEmpA, 2, "10:00", "18:00")
	ctx := context.Background()

	req, err := env.shiftRequestService().RequestCover(ctx, testEmpA, shift.ShiftID, "")
	if err != nil {
		t.Fatalf("RequestCover 应成功: %v", err)
	}
	if err := env.shiftService().Delete(ctx, shift.ShiftID, testManager); err != nil {
		t.Fatalf("Delete 应成功: %v", err)
	}
	if st := env.request.requests[req.ShiftRequestID].Status; st != model.RequestCancelled {
		t.Errorf("期望申请被取消，实际 %s", st)
	}
}

// ── CopyWeek ──

func TestShiftService_CopyWeek(t *testing.T) {
	env := newEnv(t, at(0, 8, 0, 0))
	env.seedShift(t, testEmpA, 0, "09:00", "17:00")
	env.seedShift(t, testEmpB, 2, "12:00", "20:00")
	injected := env.seedShift(t, testEmpA, 3, "09:00", "12:00")
	env.shift.shifts[injected.ShiftID].IsUnscheduled = true
	// 目标周已有冲突排班
	blocking := env.seedShift(t, testEmpB, 9, "13:00", "18:00")
	svc := env.shiftService()
	ctx := context.Background()

	req := &dto.CopyWeekRequest{StoreID: testStoreID, FromWeek: "2024-03-06", ToWeek: "2024-03-11"}
	res, err := svc.CopyWeek(ctx, req, testManager)
	if err != nil {
		t.Fatalf("CopyWeek 应成功: %v", err)
	}
	if res.Created != 1 || res.Skipped != 1 || res.Updated != 0 {
		t.Errorf("期望 created=1 skipped=1 updated=0，实际 %+v", res)
	}
	if len(res.Skips) != 1 || res.Skips[0].Reason != SkipConflict || res.Skips[0].Date != "2024-03-13" {
		t.Errorf("跳过明细不符: %+v", res.Skips)
	}

	copied, _ := env.shift.ListByEmployeeStoreDate(ctx, testEmpA, testStoreID, "2024-03-11")
	if len(copied) != 1 || copied[0].StartTime != "09:00" {
		t.Errorf("周一排班应复制到 2024-03-11")
	}
	if list, _ := env.shift.ListByEmployeeStoreDate(ctx, testEmpA, testStoreID, "2024-03-14"); len(list) != 0 {
		t.Error("补登生成的排班不应被复制")
	}

	req.Override = true
	res, err = svc.CopyWeek(ctx, req, testManager)
	if err != nil {
		t.Fatalf("覆盖模式 CopyWeek 应成功: %v", err)
	}
	// 周一已复制过，会与自身冲突并被替换
	if res.Updated != 2 || res.Skipped != 0 {
		t.Errorf("期望 updated=2 skipped=0，实际 %+v", res)
	}
	if !env.shift.shifts[blocking.ShiftID].IsDeleted {
		t.Error("覆盖模式下冲突排班应被删除")
	}
}

func TestShiftService_CopyWeek_SameWeek(t *testing.T) {
	env := newEnv(t, at(0, 8, 0, 0))
	_, err := env.shiftService().CopyWeek(context.Background(), &dto.CopyWeekRequest{
		StoreID: testStoreID, FromWeek: "2024-03-04", ToWeek: "2024-03-10",
	}, testManager)
	if !errors.Is(err, ErrInvalidWeek) {
		t.Fatalf("期望 ErrInvalidWeek，实际 %v", err)
	}
}

// ── 员工行锁 ──

func TestLockEmployees_SortedAndDeduplicated(t *testing.T) {
	env := newEnv(t, at(0, 8, 0, 0))
	if err := lockEmployees(context.Background(), env.repository(), testEmpB, "", testEmpA, testEmpB, "emp-missing"); err != nil {
		t.Fatalf("lockEmployees 应成功: %v", err)
	}
	want := []string{testEmpA, testEmpB, "emp-missing"}
	if len(env.employee.locked) != len(want) {
		t.Fatalf("期望加锁 %v，实际 %v", want, env.employee.locked)
	}
	for i := range want {
		if env.employee.locked[i] != want[i] {
			t.Errorf("加锁顺序应为 %v，实际 %v", want, env.employee.locked)
			break
		}
	}
}

// 冲突检测前须锁定被排班员工的行
func TestConflictChecks_LockEmployeeRow(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name     string
		run      func(t *testing.T, env *testEnv) error
		employee string
	}{
		{"创建排班", func(t *testing.T, env *testEnv) error {
			_, err := env.shiftService().Create(ctx, createReq(testEmpA, "2024-03-05", "09:00", "17:00"), testManager)
			return err
		}, testEmpA},
		{"修改排班", func(t *testing.T, env *testEnv) error {
			shift := env.seedShift(t, testEmpA, 1, "09:00", "17:00")
			end := "18:00"
			_, err := env.shiftService().Update(ctx, shift.ShiftID, &dto.UpdateShiftRequest{EndTime: &end}, testManager)
			return err
		}, testEmpA},
		{"复制整周", func(t *testing.T, env *testEnv) error {
			env.seedShift(t, testEmpB, 1, "09:00", "17:00")
			_, err := env.shiftService().CopyWeek(ctx, &dto.CopyWeekRequest{
				StoreID: testStoreID, FromWeek: "2024-03-04", ToWeek: "2024-03-11",
			}, testManager)
			return err
		}, testEmpB},
		{"接受代班", func(t *testing.T, env *testEnv) error {
			shift := env.seedShift(t, testEmpA, 2, "09:00", "17:00")
			svc := env.shiftRequestService()
			cover, err := svc.RequestCover(ctx, testEmpA, shift.ShiftID, "")
			if err != nil {
				return err
			}
			env.employee.locked = nil
			_, err = svc.Accept(ctx, cover.ShiftRequestID, testEmpB)
			return err
		}, testEmpB},
		{"生成循环排班", func(t *testing.T, env *testEnv) error {
			seedTemplate(t, env, testEmpB, 3, "09:00", "17:00", 2)
			_, err := env.repeatingShiftService().Materialize(ctx, testStoreID, at(0, 0, 0, 0))
			return err
		}, testEmpB},
		{"修改出勤记录", func(t *testing.T, env *testEnv) error {
			a := env.seedActivity(t, testEmpA, at(0, 9, 0, 0), at(0, 17, 0, 0))
			env.clock.now = at(1, 9, 0, 0)
			logout := at(0, 16, 0, 0)
			_, err := env.clockService(nil).EditActivity(ctx, a.ActivityID, &dto.EditActivityRequest{
				LoginTime: at(0, 9, 0, 0), LogoutTime: &logout,
			}, testManager)
			return err
		}, testEmpA},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newEnv(t, at(0, 8, 0, 0))
			if err := tc.run(t, env); err != nil {
				t.Fatalf("操作应成功: %v", err)
			}
			if !env.employee.wasLocked(tc.employee) {
				t.Errorf("应锁定员工 %s，实际 %v", tc.employee, env.employee.locked)
			}
		})
	}
}
