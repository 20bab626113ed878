package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"clock-in-system/backend/internal/service"
	pkgerrors "clock-in-system/backend/pkg/errors"
	"clock-in-system/backend/pkg/response"
)

// 通用错误码
const (
	codeUnauthenticated = 10002
	codeInvalidParams   = 20001

	codeSweepPartialFailure = 27101
)

// errorMapping 业务错误 → HTTP 状态码与错误码
type errorMapping struct {
	err    error
	status int
	code   int
}

// 业务错误码按模块分段：211xx 打卡，221xx 异常审核，231xx 排班，241xx 代班，251xx 循环排班，261xx 通知
var errorMappings = []errorMapping{
	// 打卡
	{service.ErrEmployeeNotFound, http.StatusNotFound, 21101},
	{service.ErrStoreNotFound, http.StatusNotFound, 21102},
	{service.ErrActivityNotFound, http.StatusNotFound, 21103},
	{service.ErrInactiveEmployee, http.StatusForbidden, 21104},
	{service.ErrInactiveStore, http.StatusForbidden, 21105},
	{service.ErrNotAssociatedWithStore, http.StatusForbidden, 21106},
	{service.ErrNotStoreManager, http.StatusForbidden, 21107},
	{service.ErrAlreadyClockedIn, http.StatusConflict, 21108},
	{service.ErrAlreadyClockedOut, http.StatusConflict, 21109},
	{service.ErrMissingLocation, http.StatusBadRequest, 21110},
	{service.ErrOutOfRange, http.StatusForbidden, 21111},
	{service.ErrStartingTooSoon, http.StatusBadRequest, 21112},
	{service.ErrClockingOutTooSoon, http.StatusBadRequest, 21113},
	{service.ErrInvalidTimeRange, http.StatusBadRequest, 21114},
	{service.ErrMultiDayActivity, http.StatusBadRequest, 21115},
	{service.ErrFutureActivity, http.StatusBadRequest, 21116},
	{service.ErrShiftTooShort, http.StatusBadRequest, 21117},
	{service.ErrDeleteWindowExpired, http.StatusBadRequest, 21118},
	{service.ErrInvalidDeliveries, http.StatusBadRequest, 21119},
	{service.ErrConflictingInterval, http.StatusConflict, 21120},
	{pkgerrors.ErrOptimisticLock, http.StatusConflict, 21121},
	// 异常审核
	{service.ErrExceptionNotFound, http.StatusNotFound, 22101},
	{service.ErrAlreadyApproved, http.StatusConflict, 22102},
	{service.ErrIncompleteActivity, http.StatusBadRequest, 22103},
	// 排班
	{service.ErrShiftNotFound, http.StatusNotFound, 23101},
	{service.ErrSchedulingDisabled, http.StatusForbidden, 23102},
	{service.ErrInvalidDate, http.StatusBadRequest, 23103},
	{service.ErrInvalidWeek, http.StatusBadRequest, 23104},
	// 代班/换班
	{service.ErrShiftRequestNotFound, http.StatusNotFound, 24101},
	{service.ErrNotShiftOwner, http.StatusForbidden, 24102},
	{service.ErrShiftNotInFuture, http.StatusBadRequest, 24103},
	{service.ErrActiveRequestExists, http.StatusConflict, 24104},
	{service.ErrInvalidSwapTarget, http.StatusBadRequest, 24105},
	{service.ErrSwapWithSelf, http.StatusBadRequest, 24106},
	{service.ErrCannotActOnOwnRequest, http.StatusForbidden, 24107},
	{service.ErrNotRequestTarget, http.StatusForbidden, 24108},
	{service.ErrInvalidRequestTransition, http.StatusConflict, 24109},
	{service.ErrNotAuthorizedForRequest, http.StatusForbidden, 24110},
	{service.ErrIneligibleEmployee, http.StatusForbidden, 24111},
	// 循环排班
	{service.ErrRepeatingShiftNotFound, http.StatusNotFound, 25101},
	{service.ErrInvalidWeekday, http.StatusBadRequest, 25102},
	{service.ErrInvalidActiveWeeks, http.StatusBadRequest, 25103},
	// 通知
	{service.ErrNotificationNotFound, http.StatusNotFound, 26101},
}

// handleServiceError 统一处理业务错误，未识别的错误按 500 返回
func handleServiceError(c *gin.Context, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			response.Error(c, m.status, m.code, m.err.Error())
			return
		}
	}
	response.InternalError(c)
}

// badRequest 请求参数校验失败
func badRequest(c *gin.Context, err error) {
	response.ErrorWithDetails(c, http.StatusBadRequest, codeInvalidParams, "参数校验失败", err.Error())
}
