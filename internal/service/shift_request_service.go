package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"clock-in-system/backend/internal/model"
	"clock-in-system/backend/internal/repository"
	pkgerrors "clock-in-system/backend/pkg/errors"
	"clock-in-system/backend/pkg/timeutil"
)

// ── 代班/换班模块业务错误 ──

var (
	ErrShiftRequestNotFound     = errors.New("代班申请不存在")
	ErrNotShiftOwner            = errors.New("只能为自己的排班发起申请")
	ErrShiftNotInFuture         = errors.New("排班日期已过")
	ErrActiveRequestExists      = errors.New("该排班已有进行中的申请")
	ErrInvalidSwapTarget        = errors.New("换班对象不可用")
	ErrSwapWithSelf             = errors.New("不能与自己换班")
	ErrCannotActOnOwnRequest    = errors.New("不能处理自己发起的申请")
	ErrNotRequestTarget         = errors.New("不是该申请的指定对象")
	ErrInvalidRequestTransition = errors.New("申请当前状态不允许该操作")
	ErrNotAuthorizedForRequest  = errors.New("无权处理该申请")
	ErrIneligibleEmployee       = errors.New("员工不具备接班资格")
)

// ShiftRequestService 代班/换班业务接口
type ShiftRequestService interface {
	// 发起代班（不指定对象）
	RequestCover(ctx context.Context, requesterID, shiftID, reason string) (*model.ShiftRequest, error)
	// 发起换班（指定对象）
	RequestSwap(ctx context.Context, requesterID, shiftID, targetID, reason string) (*model.ShiftRequest, error)
	// 接受申请
	Accept(ctx context.Context, requestID, actorID string) (*model.ShiftRequest, error)
	// 经理批准并转移排班
	Approve(ctx context.Context, requestID, managerID string) (*model.ShiftRequest, error)
	// 拒绝（对象或经理）
	Reject(ctx context.Context, requestID, actorID string) (*model.ShiftRequest, error)
	// 撤销（发起人或经理）
	Cancel(ctx context.Context, requestID, actorID string) (*model.ShiftRequest, error)
	// 过期清理：排班日期早于 today 的进行中申请一律取消
	ExpireStale(ctx context.Context, today time.Time) (int, error)
	// 查询
	GetByID(ctx context.Context, requestID string) (*model.ShiftRequest, error)
	ListByStore(ctx context.Context, storeID string, status model.ShiftRequestStatus, managerID string) ([]model.ShiftRequest, error)
}

type shiftRequestService struct {
	repo      *repository.Repository
	rules     *Rules
	auth      Authority
	notifier  Notifier
	reconcile *reconciler
	logger    *zap.Logger
	now       func() time.Time
}

// NewShiftRequestService 创建 ShiftRequestService 实例
func NewShiftRequestService(repo *repository.Repository, rules *Rules, auth Authority, notifier Notifier, logger *zap.Logger) ShiftRequestService {
	return newShiftRequestService(repo, rules, auth, notifier, logger, time.Now)
}

func newShiftRequestService(repo *repository.Repository, rules *Rules, auth Authority, notifier Notifier, logger *zap.Logger, now func() time.Time) *shiftRequestService {
	return &shiftRequestService{
		repo:      repo,
		rules:     rules,
		auth:      auth,
		notifier:  notifier,
		reconcile: newReconciler(rules, logger, now),
		logger:    logger,
		now:       now,
	}
}

// ════════════════════════════════════════════════════════════
// 发起
// ════════════════════════════════════════════════════════════

func (s *shiftRequestService) RequestCover(ctx context.Context, requesterID, shiftID, reason string) (*model.ShiftRequest, error) {
	return s.create(ctx, requesterID, shiftID, model.ShiftRequestCover, nil, reason)
}

func (s *shiftRequestService) RequestSwap(ctx context.Context, requesterID, shiftID, targetID, reason string) (*model.ShiftRequest, error) {
	if targetID == requesterID {
		return nil, ErrSwapWithSelf
	}
	return s.create(ctx, requesterID, shiftID, model.ShiftRequestSwap, &targetID, reason)
}

func (s *shiftRequestService) create(ctx context.Context, requesterID, shiftID, reqType string, targetID *string, reason string) (*model.ShiftRequest, error) {
	var req *model.ShiftRequest
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		shift, err := s.lockShift(ctx, tx, shiftID)
		if err != nil {
			return err
		}
		if shift.EmployeeID != requesterID {
			return ErrNotShiftOwner
		}
		if !s.inFuture(shift) {
			return ErrShiftNotInFuture
		}
		active, err := tx.ShiftRequest.GetActiveByShift(ctx, shiftID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if active != nil {
			return ErrActiveRequestExists
		}
		if targetID != nil {
			if err := s.checkEligible(ctx, tx, *targetID, shift.StoreID); err != nil {
				if errors.Is(err, ErrIneligibleEmployee) || errors.Is(err, ErrEmployeeNotFound) {
					return ErrInvalidSwapTarget
				}
				return err
			}
		}

		req = &model.ShiftRequest{
			Type:        reqType,
			Status:      model.RequestPending,
			ShiftID:     shift.ShiftID,
			StoreID:     shift.StoreID,
			ShiftDate:   shift.Date,
			RequesterID: requesterID,
			TargetID:    targetID,
			Reason:      reason,
		}
		req.CreatedBy = &requesterID
		if err := tx.ShiftRequest.Create(ctx, req); err != nil {
			if errors.Is(err, pkgerrors.ErrDuplicateKey) {
				return ErrActiveRequestExists
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, logInternal(s.logger, err, "发起代班申请失败", zap.String("shift_id", shiftID))
	}

	notice := requestNotice(req, "收到新的代班申请")
	if req.TargetID == nil {
		notice.ManagersOf = req.StoreID
	}
	s.notify(ctx, notice)
	return req, nil
}

// ════════════════════════════════════════════════════════════
// Accept
// ════════════════════════════════════════════════════════════

func (s *shiftRequestService) Accept(ctx context.Context, requestID, actorID string) (*model.ShiftRequest, error) {
	var req *model.ShiftRequest
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		var err error
		req, err = s.lockRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if _, ok := model.NextRequestStatus(req.Status, model.RequestActionAccept); !ok {
			return ErrInvalidRequestTransition
		}
		if req.RequesterID == actorID {
			return ErrCannotActOnOwnRequest
		}
		if req.Type == model.ShiftRequestSwap && (req.TargetID == nil || *req.TargetID != actorID) {
			return ErrNotRequestTarget
		}

		shift, err := s.lockShift(ctx, tx, req.ShiftID)
		if err != nil {
			return err
		}
		if !s.inFuture(shift) {
			return ErrShiftNotInFuture
		}
		if err := s.checkEligible(ctx, tx, actorID, shift.StoreID); err != nil {
			return err
		}
		if err := s.checkFree(ctx, tx, actorID, shift); err != nil {
			return err
		}

		req.TargetID = &actorID
		now := s.now()
		req.RespondedAt = &now
		if err := transition(req, model.RequestActionAccept, actorID, now); err != nil {
			return err
		}
		return tx.ShiftRequest.Update(ctx, req)
	})
	if err != nil {
		return nil, logInternal(s.logger, err, "接受代班申请失败", zap.String("request_id", requestID))
	}

	notice := requestNotice(req, "代班申请已被接受，等待经理审批")
	notice.ManagersOf = req.StoreID
	s.notify(ctx, notice)
	return req, nil
}

// ════════════════════════════════════════════════════════════
// Approve 转移排班并清理过期异常
// ════════════════════════════════════════════════════════════

func (s *shiftRequestService) Approve(ctx context.Context, requestID, managerID string) (*model.ShiftRequest, error) {
	var req *model.ShiftRequest
	var box outbox
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		var err error
		req, err = s.lockRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if _, ok := model.NextRequestStatus(req.Status, model.RequestActionApprove); !ok {
			return ErrInvalidRequestTransition
		}
		shift, err := s.lockShift(ctx, tx, req.ShiftID)
		if err != nil {
			return err
		}
		if err := requireManager(ctx, s.auth, managerID, shift.StoreID); err != nil {
			return err
		}
		if !s.inFuture(shift) {
			return ErrShiftNotInFuture
		}
		if req.TargetID == nil {
			return ErrInvalidRequestTransition
		}
		target := *req.TargetID
		previous := shift.EmployeeID
		if err := lockEmployees(ctx, tx, previous, target); err != nil {
			return err
		}
		// 接受后时间已过去，重新检查冲突
		if err := s.checkFree(ctx, tx, target, shift); err != nil {
			return err
		}

		// 原持有人当日的出勤记录可能与该排班完全匹配（无异常行），转移后须重新核对
		dayStart, dayEnd := s.rules.dayBounds(timeutil.CivilDate(shift.Date, s.rules.Location))
		orphaned, err := tx.Activity.ListByEmployeeStore(ctx, previous, shift.StoreID, dayStart, dayEnd)
		if err != nil {
			return err
		}

		shift.EmployeeID = target
		shift.UpdatedBy = &managerID
		if err := tx.Shift.Update(ctx, shift); err != nil {
			return err
		}
		if err := s.dropShiftException(ctx, tx, shift, &box); err != nil {
			return err
		}
		for i := range orphaned {
			if err := s.reconcile.reconcileActivity(ctx, tx, &orphaned[i], &box); err != nil {
				return err
			}
		}

		if err := transition(req, model.RequestActionApprove, managerID, s.now()); err != nil {
			return err
		}
		if err := tx.ShiftRequest.Update(ctx, req); err != nil {
			return err
		}

		elapsed, err := s.reconcile.shiftElapsed(shift)
		if err != nil {
			return err
		}
		if elapsed {
			return s.reconcile.reconcileShift(ctx, tx, shift, &box)
		}
		return nil
	})
	if err != nil {
		return nil, logInternal(s.logger, err, "批准代班申请失败", zap.String("request_id", requestID))
	}
	box.flush(ctx, s.notifier)
	s.notify(ctx, requestNotice(req, "代班申请已批准，排班已转移"))

	s.logger.Info("代班申请已批准",
		zap.String("request_id", req.ShiftRequestID),
		zap.String("shift_id", req.ShiftID),
		zap.String("manager_id", managerID),
	)
	return req, nil
}

// dropShiftException 删除排班上已有的异常；原关联的出勤记录重新核对
func (s *shiftRequestService) dropShiftException(ctx context.Context, tx *repository.Repository, shift *model.Shift, box *outbox) error {
	ex, err := exceptionByShift(ctx, tx, shift.ShiftID)
	if err != nil || ex == nil {
		return err
	}
	if err := tx.Exception.Delete(ctx, ex.ExceptionID); err != nil {
		return err
	}
	if ex.ActivityID == nil {
		return nil
	}
	a, err := tx.Activity.GetByID(ctx, *ex.ActivityID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	return s.reconcile.reconcileActivity(ctx, tx, a, box)
}

// ════════════════════════════════════════════════════════════
// Reject / Cancel
// ════════════════════════════════════════════════════════════

func (s *shiftRequestService) Reject(ctx context.Context, requestID, actorID string) (*model.ShiftRequest, error) {
	return s.close(ctx, requestID, actorID, model.RequestActionReject, func(req *model.ShiftRequest) bool {
		return req.TargetID != nil && *req.TargetID == actorID
	}, "代班申请已被拒绝")
}

func (s *shiftRequestService) Cancel(ctx context.Context, requestID, actorID string) (*model.ShiftRequest, error) {
	return s.close(ctx, requestID, actorID, model.RequestActionCancel, func(req *model.ShiftRequest) bool {
		return req.RequesterID == actorID
	}, "代班申请已撤销")
}

// close 当事人或门店经理将申请转入终态
func (s *shiftRequestService) close(
	ctx context.Context,
	requestID, actorID string,
	action model.RequestAction,
	isParty func(*model.ShiftRequest) bool,
	content string,
) (*model.ShiftRequest, error) {
	var req *model.ShiftRequest
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		var err error
		req, err = s.lockRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if _, ok := model.NextRequestStatus(req.Status, action); !ok {
			return ErrInvalidRequestTransition
		}
		if !isParty(req) {
			isManager, err := s.auth.IsManager(ctx, actorID, req.StoreID)
			if err != nil {
				return err
			}
			if !isManager {
				return ErrNotAuthorizedForRequest
			}
		}
		if err := transition(req, action, actorID, s.now()); err != nil {
			return err
		}
		return tx.ShiftRequest.Update(ctx, req)
	})
	if err != nil {
		return nil, logInternal(s.logger, err, "更新代班申请失败",
			zap.String("request_id", requestID), zap.String("action", string(action)))
	}
	s.notify(ctx, requestNotice(req, content))
	return req, nil
}

// ════════════════════════════════════════════════════════════
// ExpireStale
// ════════════════════════════════════════════════════════════

func (s *shiftRequestService) ExpireStale(ctx context.Context, today time.Time) (int, error) {
	list, err := s.repo.ShiftRequest.ListActiveBefore(ctx, s.rules.dateKey(today))
	if err != nil {
		s.logger.Error("查询过期申请失败", zap.Error(err))
		return 0, err
	}

	var errs []error
	expired := 0
	for _, item := range list {
		var req *model.ShiftRequest
		err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
			var err error
			req, err = s.lockRequest(ctx, tx, item.ShiftRequestID)
			if err != nil {
				return err
			}
			// 加锁前已被其他操作处理
			if req.Status.IsTerminal() {
				req = nil
				return nil
			}
			if err := transition(req, model.RequestActionExpire, "", s.now()); err != nil {
				return err
			}
			return tx.ShiftRequest.Update(ctx, req)
		})
		if err != nil {
			s.logger.Error("申请过期处理失败", zap.String("request_id", item.ShiftRequestID), zap.Error(err))
			errs = append(errs, fmt.Errorf("request %s: %w", item.ShiftRequestID, err))
			continue
		}
		if req != nil {
			expired++
			s.notify(ctx, requestNotice(req, "排班日期已过，申请已自动取消"))
		}
	}
	return expired, errors.Join(errs...)
}

// ════════════════════════════════════════════════════════════
// 查询
// ════════════════════════════════════════════════════════════

func (s *shiftRequestService) GetByID(ctx context.Context, requestID string) (*model.ShiftRequest, error) {
	req, err := s.repo.ShiftRequest.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrShiftRequestNotFound
		}
		s.logger.Error("查询代班申请失败", zap.Error(err))
		return nil, err
	}
	return req, nil
}

func (s *shiftRequestService) ListByStore(ctx context.Context, storeID string, status model.ShiftRequestStatus, managerID string) ([]model.ShiftRequest, error) {
	if err := requireManager(ctx, s.auth, managerID, storeID); err != nil {
		return nil, logInternal(s.logger, err, "校验经理权限失败")
	}
	list, err := s.repo.ShiftRequest.ListByStore(ctx, storeID, status)
	if err != nil {
		s.logger.Error("查询代班申请列表失败", zap.Error(err))
		return nil, err
	}
	return list, nil
}

// ── 辅助函数 ──

func (s *shiftRequestService) lockRequest(ctx context.Context, tx *repository.Repository, requestID string) (*model.ShiftRequest, error) {
	req, err := tx.ShiftRequest.GetByIDForUpdate(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrShiftRequestNotFound
		}
		return nil, err
	}
	return req, nil
}

func (s *shiftRequestService) lockShift(ctx context.Context, tx *repository.Repository, shiftID string) (*model.Shift, error) {
	shift, err := tx.Shift.GetByIDForUpdate(ctx, shiftID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrShiftNotFound
		}
		return nil, err
	}
	if shift.IsDeleted {
		return nil, ErrShiftNotFound
	}
	return shift, nil
}

// inFuture 排班日期不早于今天
func (s *shiftRequestService) inFuture(shift *model.Shift) bool {
	loc := s.rules.Location
	today := timeutil.DateOf(s.now(), loc)
	return !timeutil.CivilDate(shift.Date, loc).Before(today)
}

// checkEligible 接班人须在职、未隐藏且关联该门店
func (s *shiftRequestService) checkEligible(ctx context.Context, tx *repository.Repository, employeeID, storeID string) error {
	emp, err := tx.Employee.GetByID(ctx, employeeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrEmployeeNotFound
		}
		return err
	}
	if !emp.IsActive || emp.IsHidden {
		return ErrIneligibleEmployee
	}
	ok, err := s.auth.IsAssociated(ctx, employeeID, storeID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrIneligibleEmployee
	}
	return nil
}

// checkFree 接班人在该排班时段没有冲突排班
func (s *shiftRequestService) checkFree(ctx context.Context, tx *repository.Repository, employeeID string, shift *model.Shift) error {
	candidate := *shift
	candidate.EmployeeID = employeeID
	return checkShiftConflict(ctx, tx, s.rules, &candidate, shift.ShiftID)
}

func (s *shiftRequestService) notify(ctx context.Context, n Notice) {
	if s.notifier != nil {
		s.notifier.Notify(ctx, n)
	}
}

// transition 按状态表推进申请状态，记录决定人与时间
func transition(req *model.ShiftRequest, action model.RequestAction, actorID string, at time.Time) error {
	next, ok := model.NextRequestStatus(req.Status, action)
	if !ok {
		return ErrInvalidRequestTransition
	}
	req.Status = next
	if next.IsTerminal() {
		req.DecidedAt = &at
		if actorID != "" {
			req.DecidedBy = &actorID
		}
	}
	if actorID != "" {
		req.UpdatedBy = &actorID
	}
	return nil
}

func requestNotice(req *model.ShiftRequest, content string) Notice {
	recipients := []string{req.RequesterID}
	if req.TargetID != nil {
		recipients = append(recipients, *req.TargetID)
	}
	return Notice{
		Recipients:  recipients,
		Type:        NoticeRequestChanged,
		Title:       "代班申请状态变更",
		Content:     fmt.Sprintf("%s（%s）", content, req.ShiftDate.Format("2006-01-02")),
		RelatedType: "shift_request",
		RelatedID:   req.ShiftRequestID,
	}
}
