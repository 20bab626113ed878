package service

import (
	"context"
	"errors"
	"testing"

	"clock-in-system/backend/internal/model"
)

const testEmpC = "emp-c"

func seedEmpC(env *testEnv) {
	ctx := context.Background()
	_ = env.employee.Create(ctx, &model.Employee{EmployeeID: testEmpC, Name: testEmpC, IsActive: true})
	_ = env.membership.Create(ctx, &model.StoreMembership{EmployeeID: testEmpC, StoreID: testStoreID})
}

// ── 发起 ──

func TestShiftRequest_RequestCover(t *testing.T) {
	env := newEnv(t, at(0, 8, 0, 0))
	shift := env.seedShift(t, testEmpA, 2, "09:00", "17:00")
	ctx := context.Background()

	req, err := env.shiftRequestService().RequestCover(ctx, testEmpA, shift.ShiftID, "看病")
	if err != nil {
		t.Fatalf("RequestCover 应成功: %v", err)
	}
	if req.Status != model.RequestPending || req.TargetID != nil || req.Type != model.ShiftRequestCover {
		t.Errorf("申请初始状态不符: %+v", req)
	}
	if len(env.notifier.notices) != 1 || env.notifier.notices[0].ManagersOf != testStoreID {
		t.Error("未指定对象的代班申请应通知门店经理")
	}
}

func TestShiftRequest_Create_Validation(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name   string
		setup  func(env *testEnv, shiftID string)
		actor  string
		target string
		day    int
		want   error
	}{
		{"非排班本人", nil, testEmpB, "", 2, ErrNotShiftOwner},
		{"排班已过", nil, testEmpA, "", -1, ErrShiftNotInFuture},
		{"已有进行中的申请", func(env *testEnv, shiftID string) {
			if _, err := env.shiftRequestService().RequestCover(ctx, testEmpA, shiftID, ""); err != nil {
				t.Fatalf("首次申请应成功: %v", err)
			}
		}, testEmpA, "", 2, ErrActiveRequestExists},
		{"与自己换班", nil, testEmpA, testEmpA, 2, ErrSwapWithSelf},
		{"换班对象不存在", nil, testEmpA, "emp-x", 2, ErrInvalidSwapTarget},
		{"换班对象已停用", func(env *testEnv, _ string) {
			env.employee.employees[testEmpB].IsActive = false
		}, testEmpA, testEmpB, 2, ErrInvalidSwapTarget},
		{"换班对象为隐藏账号", func(env *testEnv, _ string) {
			env.employee.employees[testEmpB].IsHidden = true
		}, testEmpA, testEmpB, 2, ErrInvalidSwapTarget},
		{"换班对象不属于门店", func(env *testEnv, _ string) {
			delete(env.membership.members, testEmpB+"|"+testStoreID)
		}, testEmpA, testEmpB, 2, ErrInvalidSwapTarget},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			env := newEnv(t, at(0, 8, 0, 0))
			shift := env.seedShift(t, testEmpA, c.day, "09:00", "17:00")
			if c.setup != nil {
				c.setup(env, shift.ShiftID)
			}
			svc := env.shiftRequestService()
			var err error
			if c.target == "" {
				_, err = svc.RequestCover(ctx, c.actor, shift.ShiftID, "")
			} else {
				_, err = svc.RequestSwap(ctx, c.actor, shift.ShiftID, c.target, "")
			}
			if !errors.Is(err, c.want) {
				t.Errorf("期望 %v，实际 %v", c.want, err)
			}
		})
	}
}

func TestShiftRequest_SameDayIsFuture(t *testing.T) {
	env := newEnv(t, at(0, 20, 0, 0))
	shift := env.seedShift(t, testEmpA, 0, "09:00", "17:00")

	if _, err := env.shiftRequestService().RequestCover(context.Background(), testEmpA, shift.ShiftID, ""); err != nil {
		t.Fatalf("当天的排班仍可发起申请: %v", err)
	}
}

// ── Accept ──

func TestShiftRequest_Accept(t *testing.T) {
	env := newEnv(t, at(0, 8, 0, 0))
	seedEmpC(env)
	shift := env.seedShift(t, testEmpA, 2, "09:00", "17:00")
	svc := env.shiftRequestService()
	ctx := context.Background()

	cover, err := svc.RequestCover(ctx, testEmpA, shift.ShiftID, "")
	if err != nil {
		t.Fatalf("RequestCover 应成功: %v", err)
	}

	if _, err := svc.Accept(ctx, cover.ShiftRequestID, testEmpA); !errors.Is(err, ErrCannotActOnOwnRequest) {
		t.Errorf("发起人接受期望 ErrCannotActOnOwnRequest，实际 %v", err)
	}

	got, err := svc.Accept(ctx, cover.ShiftRequestID, testEmpB)
	if err != nil {
		t.Fatalf("Accept 应成功: %v", err)
	}
	if got.Status != model.RequestAccepted || got.TargetID == nil || *got.TargetID != testEmpB || got.RespondedAt == nil {
		t.Errorf("接受后状态不符: %+v", got)
	}

	if _, err := svc.Accept(ctx, cover.ShiftRequestID, testEmpC); !errors.Is(err, ErrInvalidRequestTransition) {
		t.Errorf("重复接受期望 ErrInvalidRequestTransition，实际 %v", err)
	}
}

func TestShiftRequest_Accept_SwapTargetOnly(t *testing.T) {
	env := newEnv(t, at(0, 8, 0, 0))
	seedEmpC(env)
	shift := env.seedShift(t, testEmpA, 2, "09:00", "17:00")
	svc := env.shiftRequestService()
	ctx := context.Background()

	swap, err := svc.RequestSwap(ctx, testEmpA, shift.ShiftID, testEmpB, "")
	if err != nil {
		t.Fatalf("RequestSwap 应成功: %v", err)
	}
	if _, err := svc.Accept(ctx, swap.ShiftRequestID, testEmpC); !errors.Is(err, ErrNotRequestTarget) {
		t.Errorf("非指定对象接受期望 ErrNotRequestTarget，实际 %v", err)
	}
	if _, err := svc.Accept(ctx, swap.ShiftRequestID, testEmpB); err != nil {
		t.Errorf("指定对象接受应成功: %v", err)
	}
}

func TestShiftRequest_Accept_Conflict(t *testing.T) {
	env := newEnv(t, at(0, 8, 0, 0))
	shift := env.seedShift(t, testEmpA, 2, "09:00", "17:00")
	env.seedShift(t, testEmpB, 2, "16:00", "20:00")
	svc := env.shiftRequestService()
	ctx := context.Background()

	cover, _ := svc.RequestCover(ctx, testEmpA, shift.ShiftID, "")
	if _, err := svc.Accept(ctx, cover.ShiftRequestID, testEmpB); !errors.Is(err, ErrConflictingInterval) {
		t.Errorf("接班人时段冲突期望 ErrConflictingInterval，实际 %v", err)
	}
}

// ── Approve ──

func TestShiftRequest_Approve(t *testing.T) {
	env := newEnv(t, at(0, 8, 0, 0))
	shift := env.seedShift(t, testEmpA, 2, "09:00", "17:00")
	svc := env.shiftRequestService()
	ctx := context.Background()

	cover, _ := svc.RequestCover(ctx, testEmpA, shift.ShiftID, "")
	if _, err := svc.Approve(ctx, cover.ShiftRequestID, testManager); !errors.Is(err, ErrInvalidRequestTransition) {
		t.Errorf("未接受的申请期望 ErrInvalidRequestTransition，实际 %v", err)
	}
	if _, err := svc.Accept(ctx, cover.ShiftRequestID, testEmpB); err != nil {
		t.Fatalf("Accept 应成功: %v", err)
	}
	if _, err := svc.Approve(ctx, cover.ShiftRequestID, testEmpB); !errors.Is(err, ErrNotStoreManager) {
		t.Errorf("非经理批准期望 ErrNotStoreManager，实际 %v", err)
	}

	got, err := svc.Approve(ctx, cover.ShiftRequestID, testManager)
	if err != nil {
		t.Fatalf("Approve 应成功: %v", err)
	}
	if got.Status != model.RequestApproved || got.DecidedAt == nil || got.DecidedBy == nil || *got.DecidedBy != testManager {
		t.Errorf("批准后状态不符: %+v", got)
	}
	if emp := env.shift.shifts[shift.ShiftID].EmployeeID; emp != testEmpB {
		t.Errorf("排班应转给 %s，实际 %s", testEmpB, emp)
	}
}

// Scenario E：排班当天已结束后批准换班
func TestShiftRequest_Approve_ElapsedShiftReconciles(t *testing.T) {
	env := newEnv(t, at(0, 8, 0, 0))
	shift := env.seedShift(t, testEmpA, 0, "09:00", "17:00")
	svc := env.shiftRequestService()
	ctx := context.Background()

	swap, err := svc.RequestSwap(ctx, testEmpA, shift.ShiftID, testEmpB, "")
	if err != nil {
		t.Fatalf("RequestSwap 应成功: %v", err)
	}
	if _, err := svc.Accept(ctx, swap.ShiftRequestID, testEmpB); err != nil {
		t.Fatalf("Accept 应成功: %v", err)
	}

	// B 实际出勤，A 缺勤，批准前核对已产生两条异常
	a := env.seedActivity(t, testEmpB, at(0, 9, 0, 0), at(0, 17, 0, 0))
	env.clock.now = at(0, 20, 0, 0)
	if _, err := env.exceptionService().SweepStore(ctx, testStoreID, at(0, 0, 0, 0)); err != nil {
		t.Fatalf("SweepStore 应成功: %v", err)
	}
	missed, err := env.exception.GetByShift(ctx, shift.ShiftID)
	if err != nil || missed.Reason != model.ReasonMissedShift {
		t.Fatalf("批准前排班应为 missed_shift: %v", err)
	}

	if _, err := svc.Approve(ctx, swap.ShiftRequestID, testManager); err != nil {
		t.Fatalf("Approve 应成功: %v", err)
	}

	if _, err := env.exception.GetByID(ctx, missed.ExceptionID); err == nil {
		t.Error("原缺勤异常应被删除")
	}
	ex, err := env.exception.GetByActivity(ctx, a.ActivityID)
	if err != nil {
		t.Fatalf("出勤记录异常应保留: %v", err)
	}
	if ex.Reason != model.ReasonResolved || !ex.LinksShift(shift.ShiftID) {
		t.Errorf("转移后应立即完全匹配，实际 %s", ex.Reason)
	}
	if n := len(env.exception.exceptions); n != 1 {
		t.Errorf("期望 1 条异常，实际 %d", n)
	}
}

// 原持有人已完全匹配的出勤记录在转移后须重新核对为补登
func TestShiftRequest_Approve_PreviousOwnerActivityReconciled(t *testing.T) {
	env := newEnv(t, at(0, 8, 0, 0))
	shift := env.seedShift(t, testEmpA, 0, "09:00", "17:00")
	a := env.seedActivity(t, testEmpA, at(0, 9, 0, 0), at(0, 17, 0, 0))
	svc := env.shiftRequestService()
	ctx := context.Background()

	swap, err := svc.RequestSwap(ctx, testEmpA, shift.ShiftID, testEmpB, "")
	if err != nil {
		t.Fatalf("RequestSwap 应成功: %v", err)
	}
	if _, err := svc.Accept(ctx, swap.ShiftRequestID, testEmpB); err != nil {
		t.Fatalf("Accept 应成功: %v", err)
	}

	env.clock.now = at(0, 18, 0, 0)
	if _, err := env.exceptionService().SweepStore(ctx, testStoreID, at(0, 0, 0, 0)); err != nil {
		t.Fatalf("SweepStore 应成功: %v", err)
	}
	if n := len(env.exception.exceptions); n != 0 {
		t.Fatalf("批准前完全匹配，不应有异常，实际 %d 条", n)
	}

	if _, err := svc.Approve(ctx, swap.ShiftRequestID, testManager); err != nil {
		t.Fatalf("Approve 应成功: %v", err)
	}
	if !env.employee.wasLocked(testEmpA) || !env.employee.wasLocked(testEmpB) {
		t.Errorf("批准时应锁定原持有人与接班人，实际 %v", env.employee.locked)
	}

	ex, err := env.exception.GetByActivity(ctx, a.ActivityID)
	if err != nil {
		t.Fatalf("原持有人的出勤记录应产生异常: %v", err)
	}
	if ex.Reason != model.ReasonUnscheduledShift {
		t.Errorf("期望 unscheduled_shift，实际 %s", ex.Reason)
	}
	missed, err := env.exception.GetByShift(ctx, shift.ShiftID)
	if err != nil || missed.Reason != model.ReasonMissedShift {
		t.Fatalf("接班人未出勤，排班应为 missed_shift: %v", err)
	}

	// 再次核对结果不变
	before := len(env.exception.exceptions)
	if _, err := env.exceptionService().SweepStore(ctx, testStoreID, at(0, 0, 0, 0)); err != nil {
		t.Fatalf("SweepStore 应成功: %v", err)
	}
	if after := len(env.exception.exceptions); after != before {
		t.Errorf("批准后核对应为不动点，异常数 %d -> %d", before, after)
	}
	again, _ := env.exception.GetByActivity(ctx, a.ActivityID)
	if again == nil || again.ExceptionID != ex.ExceptionID || again.Reason != model.ReasonUnscheduledShift {
		t.Errorf("再次核对不应改变出勤异常: %+v", again)
	}
}

// ── Reject / Cancel ──

func TestShiftRequest_RejectAndCancel(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T, accept bool) (*testEnv, *shiftRequestService, string) {
		env := newEnv(t, at(0, 8, 0, 0))
		shift := env.seedShift(t, testEmpA, 2, "09:00", "17:00")
		svc := env.shiftRequestService()
		req, err := svc.RequestSwap(ctx, testEmpA, shift.ShiftID, testEmpB, "")
		if err != nil {
			t.Fatalf("RequestSwap 应成功: %v", err)
		}
		if accept {
			if _, err := svc.Accept(ctx, req.ShiftRequestID, testEmpB); err != nil {
				t.Fatalf("Accept 应成功: %v", err)
			}
		}
		return env, svc, req.ShiftRequestID
	}

	t.Run("对象拒绝", func(t *testing.T) {
		_, svc, id := setup(t, true)
		got, err := svc.Reject(ctx, id, testEmpB)
		if err != nil || got.Status != model.RequestRejected {
			t.Errorf("期望 rejected，实际 %v", err)
		}
	})
	t.Run("发起人不能拒绝", func(t *testing.T) {
		_, svc, id := setup(t, true)
		if _, err := svc.Reject(ctx, id, testEmpA); !errors.Is(err, ErrNotAuthorizedForRequest) {
			t.Errorf("期望 ErrNotAuthorizedForRequest，实际 %v", err)
		}
	})
	t.Run("经理拒绝", func(t *testing.T) {
		_, svc, id := setup(t, true)
		if _, err := svc.Reject(ctx, id, testManager); err != nil {
			t.Errorf("经理拒绝应成功: %v", err)
		}
	})
	t.Run("待接受的申请不能拒绝", func(t *testing.T) {
		_, svc, id := setup(t, false)
		if _, err := svc.Reject(ctx, id, testEmpB); !errors.Is(err, ErrInvalidRequestTransition) {
			t.Errorf("期望 ErrInvalidRequestTransition，实际 %v", err)
		}
	})
	t.Run("发起人撤销", func(t *testing.T) {
		env, svc, id := setup(t, false)
		got, err := svc.Cancel(ctx, id, testEmpA)
		if err != nil || got.Status != model.RequestCancelled {
			t.Fatalf("期望 cancelled，实际 %v", err)
		}
		if got.DecidedBy == nil || *got.DecidedBy != testEmpA {
			t.Error("应记录决定人")
		}
		// 撤销后可重新发起
		if _, err := svc.RequestCover(ctx, testEmpA, env.request.requests[id].ShiftID, ""); err != nil {
			t.Errorf("撤销后重新发起应成功: %v", err)
		}
	})
	t.Run("对象不能撤销", func(t *testing.T) {
		_, svc, id := setup(t, false)
		if _, err := svc.Cancel(ctx, id, testEmpB); !errors.Is(err, ErrNotAuthorizedForRequest) {
			t.Errorf("期望 ErrNotAuthorizedForRequest，实际 %v", err)
		}
	})
}

func TestShiftRequest_TerminalIsSink(t *testing.T) {
	env := newEnv(t, at(0, 8, 0, 0))
	shift := env.seedShift(t, testEmpA, 2, "09:00", "17:00")
	svc := env.shiftRequestService()
	ctx := context.Background()

	req, _ := svc.RequestCover(ctx, testEmpA, shift.ShiftID, "")
	if _, err := svc.Accept(ctx, req.ShiftRequestID, testEmpB); err != nil {
		t.Fatalf("Accept 应成功: %v", err)
	}
	if _, err := svc.Approve(ctx, req.ShiftRequestID, testManager); err != nil {
		t.Fatalf("Approve 应成功: %v", err)
	}

	actions := map[string]func() error{
		"accept":  func() error { _, err := svc.Accept(ctx, req.ShiftRequestID, testEmpA); return err },
		"approve": func() error { _, err := svc.Approve(ctx, req.ShiftRequestID, testManager); return err },
		"reject":  func() error { _, err := svc.Reject(ctx, req.ShiftRequestID, testManager); return err },
		"cancel":  func() error { _, err := svc.Cancel(ctx, req.ShiftRequestID, testManager); return err },
	}
	for name, fn := range actions {
		if err := fn(); !errors.Is(err, ErrInvalidRequestTransition) {
			t.Errorf("%s: 终态期望 ErrInvalidRequestTransition，实际 %v", name, err)
		}
	}
	if st := env.request.requests[req.ShiftRequestID].Status; st != model.RequestApproved {
		t.Errorf("终态不应改变，实际 %s", st)
	}
}

// ── ExpireStale ──

func TestShiftRequest_ExpireStale(t *testing.T) {
	env := newEnv(t, at(0, 8, 0, 0))
	past := env.seedShift(t, testEmpA, 1, "09:00", "17:00")
	later := env.seedShift(t, testEmpA, 5, "09:00", "17:00")
	decided := env.seedShift(t, testEmpA, 1, "18:00", "22:00")
	svc := env.shiftRequestService()
	ctx := context.Background()

	stale, _ := svc.RequestCover(ctx, testEmpA, past.ShiftID, "")
	fresh, _ := svc.RequestCover(ctx, testEmpA, later.ShiftID, "")
	done, _ := svc.RequestCover(ctx, testEmpA, decided.ShiftID, "")
	if _, err := svc.Cancel(ctx, done.ShiftRequestID, testEmpA); err != nil {
		t.Fatalf("Cancel 应成功: %v", err)
	}

	env.clock.now = at(2, 0, 5, 0)
	n, err := svc.ExpireStale(ctx, env.clock.now)
	if err != nil {
		t.Fatalf("ExpireStale 应成功: %v", err)
	}
	if n != 1 {
		t.Errorf("期望过期 1 条，实际 %d", n)
	}
	if st := env.request.requests[stale.ShiftRequestID].Status; st != model.RequestCancelled {
		t.Errorf("过期申请期望 cancelled，实际 %s", st)
	}
	if st := env.request.requests[fresh.ShiftRequestID].Status; st != model.RequestPending {
		t.Errorf("未过期申请期望 pending，实际 %s", st)
	}
	if env.request.requests[stale.ShiftRequestID].DecidedBy != nil {
		t.Error("系统过期不应记录决定人")
	}

	// 重复执行无副作用
	if n, _ := svc.ExpireStale(ctx, env.clock.now); n != 0 {
		t.Errorf("重复执行期望 0，实际 %d", n)
	}
}
