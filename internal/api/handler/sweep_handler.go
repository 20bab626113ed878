package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"clock-in-system/backend/internal/dto"
	"clock-in-system/backend/internal/service"
	"clock-in-system/backend/pkg/response"
	"clock-in-system/backend/pkg/timeutil"
)

// SweepHandler 外部调度器触发的批处理接口
type SweepHandler struct {
	sweepSvc     service.SweepService
	exceptionSvc service.ExceptionService
	loc          *time.Location
	now          func() time.Time
}

// NewSweepHandler 创建 SweepHandler
func NewSweepHandler(sweepSvc service.SweepService, exceptionSvc service.ExceptionService, loc *time.Location) *SweepHandler {
	return &SweepHandler{sweepSvc: sweepSvc, exceptionSvc: exceptionSvc, loc: loc, now: time.Now}
}

// sweepDateRequest 可选的业务日期，缺省时由各任务自行推算
type sweepDateRequest struct {
	Date string `json:"date" binding:"omitempty,datetime=2006-01-02"`
}

// ForceClockOut 强制签退所有仍在岗的员工
// POST /internal/sweeps/force-clockout
func (h *SweepHandler) ForceClockOut(c *gin.Context) {
	h.writeReport(c, h.sweepSvc.ForceClockOutAll(c.Request.Context()))
}

// Reconcile 核对所有门店某日（缺省为昨天）
// POST /internal/sweeps/reconcile
func (h *SweepHandler) Reconcile(c *gin.Context) {
	day, ok := h.bindDate(c, timeutil.DateOf(h.now(), h.loc).AddDate(0, 0, -1))
	if !ok {
		return
	}
	h.writeReport(c, h.sweepSvc.ReconcileAll(c.Request.Context(), day))
}

// ReconcileStore 核对单个门店某日
// POST /internal/sweeps/reconcile-store
func (h *SweepHandler) ReconcileStore(c *gin.Context) {
	var req dto.ReconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	day, err := time.ParseInLocation("2006-01-02", req.Date, h.loc)
	if err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.exceptionSvc.SweepStore(c.Request.Context(), req.StoreID, day)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.OK(c, result)
}

// Materialize 按模板生成某周排班（缺省为下周）
// POST /internal/sweeps/materialize
func (h *SweepHandler) Materialize(c *gin.Context) {
	nextWeek := timeutil.WeekStart(h.now(), h.loc).AddDate(0, 0, 7)
	week, ok := h.bindDate(c, nextWeek)
	if !ok {
		return
	}
	h.writeReport(c, h.sweepSvc.MaterializeAll(c.Request.Context(), week))
}

// ExpireRequests 过期未决的代班/换班申请
// POST /internal/sweeps/expire-requests
func (h *SweepHandler) ExpireRequests(c *gin.Context) {
	h.writeReport(c, h.sweepSvc.ExpireRequests(c.Request.Context()))
}

// bindDate 解析可选的 date 字段；请求体为空时返回 fallback
func (h *SweepHandler) bindDate(c *gin.Context, fallback time.Time) (time.Time, bool) {
	if c.Request.ContentLength == 0 {
		return fallback, true
	}
	var req sweepDateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return time.Time{}, false
	}
	if req.Date == "" {
		return fallback, true
	}
	day, err := time.ParseInLocation("2006-01-02", req.Date, h.loc)
	if err != nil {
		badRequest(c, err)
		return time.Time{}, false
	}
	return day, true
}

// writeReport 部分失败时返回 207，调度器据此重试
func (h *SweepHandler) writeReport(c *gin.Context, report *service.SweepReport) {
	if report.OK() {
		response.OK(c, report)
		return
	}
	c.JSON(http.StatusMultiStatus, response.Response{
		Code:    codeSweepPartialFailure,
		Message: "部分处理单元失败",
		Data:    report,
	})
}
