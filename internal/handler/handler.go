package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"campuspay/internal/service"
	"campuspay/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	svc    *service.Services
	logger *slog.Logger
}

// NewHandler 创建处理器实例
func NewHandler(svc *service.Services, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

var errorStatus = map[service.Kind]struct {
	status int
	code   int
}{
	service.KindNotFound:                   {http.StatusNotFound, response.CodeNotFound},
	service.KindInvalidAmount:              {http.StatusBadRequest, response.CodeInvalidAmount},
	service.KindInsufficientBalance:        {http.StatusUnprocessableEntity, response.CodeInsufficientBalance},
	service.KindDailyLimitExceeded:         {http.StatusUnprocessableEntity, response.CodeDailyLimitExceeded},
	service.KindSettlementExceedsAvailable: {http.StatusUnprocessableEntity, response.CodeSettlementExceedsAvailable},
	service.KindPaymentExceedsPending:      {http.StatusUnprocessableEntity, response.CodePaymentExceedsPending},
	service.KindSettlementAlreadyCompleted: {http.StatusConflict, response.CodeSettlementAlreadyCompleted},
	service.KindDuplicate:                  {http.StatusConflict, response.CodeDuplicate},
	service.KindUnauthorized:               {http.StatusForbidden, response.CodeForbidden},
	service.KindStorageFailure:             {http.StatusServiceUnavailable, response.CodeUnavailable},
}

// fail 把业务错误翻译成 HTTP 响应，存储失败另外记录原始错误
func (h *Handler) fail(c *gin.Context, err error) {
	var e *service.Error
	if !errors.As(err, &e) {
		h.logger.Error("unexpected error", "path", c.Request.URL.Path, "error", err)
		response.Error(c, http.StatusServiceUnavailable, response.CodeUnavailable, "The operation could not be completed, please retry", nil)
		return
	}
	m, ok := errorStatus[e.Kind]
	if !ok {
		m = errorStatus[service.KindStorageFailure]
	}
	if e.Kind == service.KindStorageFailure {
		h.logger.Error("storage failure", "path", c.Request.URL.Path, "error", err)
	}
	var details interface{}
	if len(e.Details) > 0 {
		details = e.Details
	}
	response.Error(c, m.status, m.code, e.Message, details)
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, name+" 参数错误")
		return 0, false
	}
	return id, true
}

// authorizeStore 商户只能操作自己的数据，管理员不受限
func authorizeStore(c *gin.Context, storeID int64) error {
	p, ok := principal(c)
	if !ok {
		return service.Unauthorized("Authentication required")
	}
	if p.Role == RoleStore && p.StoreID != storeID {
		return service.Unauthorized("Not authorized for this store")
	}
	return nil
}

func actorID(c *gin.Context) int64 {
	if p, ok := principal(c); ok {
		return p.UserID
	}
	return 0
}

// ============================================================
// 商户端接口
// ============================================================

// ChargeRequest 扣款请求，金额可以是字符串或数字
type ChargeRequest struct {
	StudentID int64           `json:"student_id" binding:"required"`
	StoreID   int64           `json:"store_id" binding:"required"`
	Amount    decimal.Decimal `json:"amount"`
}

// Charge 扫码扣款
// POST /api/v1/store/transaction
func (h *Handler) Charge(c *gin.Context) {
	var req ChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	if err := authorizeStore(c, req.StoreID); err != nil {
		h.fail(c, err)
		return
	}

	result, err := h.svc.Charge.Charge(c.Request.Context(), &service.ChargeRequest{
		StudentID: req.StudentID,
		StoreID:   req.StoreID,
		Amount:    req.Amount,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, result)
}

// GetTransaction 按流水号查询消费记录，商户只能查自己的流水
// GET /api/v1/store/transactions/:no
func (h *Handler) GetTransaction(c *gin.Context) {
	no := c.Param("no")
	if no == "" {
		response.ParamError(c, "no 参数不能为空")
		return
	}
	var storeID int64
	if p, ok := principal(c); ok && p.Role == RoleStore {
		storeID = p.StoreID
	}
	trans, err := h.svc.Charge.GetTransaction(c.Request.Context(), no, storeID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, trans)
}

// ScanStudent 扫码后查看学生余额与当日剩余额度
// GET /api/v1/store/student/:id
func (h *Handler) ScanStudent(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	view, err := h.svc.Student.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, view)
}

// GetAvailableSettlement 商户可申请结算的额度
// GET /api/v1/store/stores/:storeId/settlement
//
// total_settled 包含未完成结算单上已付的部分，total_requested 包含 pending 状态单的未付部分，
// 两者之和始终等于未完成单的总额，部分付款后 pending_available 不会回升。
func (h *Handler) GetAvailableSettlement(c *gin.Context) {
	storeID, ok := pathID(c, "storeId")
	if !ok {
		return
	}
	if err := authorizeStore(c, storeID); err != nil {
		h.fail(c, err)
		return
	}
	amounts, err := h.svc.Settlement.Available(c.Request.Context(), storeID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, amounts)
}

type AmountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// RequestSettlement 申请结算
// POST /api/v1/store/stores/:storeId/settlements
func (h *Handler) RequestSettlement(c *gin.Context) {
	storeID, ok := pathID(c, "storeId")
	if !ok {
		return
	}
	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	if err := authorizeStore(c, storeID); err != nil {
		h.fail(c, err)
		return
	}

	result, err := h.svc.Settlement.Request(c.Request.Context(), storeID, req.Amount, actorID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, result)
}

// ============================================================
// 管理端接口
// ============================================================

type RegisterStudentRequest struct {
	Name         string           `json:"name" binding:"required"`
	Class        string           `json:"class" binding:"required"`
	GuardianName string           `json:"guardian_name"`
	PhotoURL     string           `json:"photo_url"`
	DailyLimit   *decimal.Decimal `json:"daily_limit"`
}

// RegisterStudent 学生登记
// POST /api/v1/admin/students
func (h *Handler) RegisterStudent(c *gin.Context) {
	var req RegisterStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	student, err := h.svc.Student.Register(c.Request.Context(), &service.RegisterStudentRequest{
		Name:         req.Name,
		Class:        req.Class,
		GuardianName: req.GuardianName,
		PhotoURL:     req.PhotoURL,
		DailyLimit:   req.DailyLimit,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, student)
}

type DailyLimitRequest struct {
	DailyLimit decimal.Decimal `json:"daily_limit"`
}

// SetDailyLimit 修改日限额，0 表示不限
// POST /api/v1/admin/students/:id/daily-limit
func (h *Handler) SetDailyLimit(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req DailyLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	student, err := h.svc.Student.SetDailyLimit(c.Request.Context(), id, req.DailyLimit, actorID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, student)
}

// ReconcileStudent 单个学生余额对账
// GET /api/v1/admin/students/:id/reconciliation
func (h *Handler) ReconcileStudent(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	rec, err := h.svc.Recharge.Reconcile(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, rec)
}

type RechargeRequest struct {
	StudentID int64           `json:"student_id" binding:"required"`
	Amount    decimal.Decimal `json:"amount"`
	Type      string          `json:"type"`
	Notes     string          `json:"notes"`
}

// Recharge 充值
// POST /api/v1/admin/recharge
func (h *Handler) Recharge(c *gin.Context) {
	var req RechargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	result, err := h.svc.Recharge.Recharge(c.Request.Context(), &service.RechargeRequest{
		StudentID: req.StudentID,
		Amount:    req.Amount,
		Type:      req.Type,
		Notes:     req.Notes,
		ActorID:   actorID(c),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, result)
}

type RegisterStoreRequest struct {
	Name         string `json:"name" binding:"required"`
	Type         string `json:"type" binding:"required"`
	OwnerName    string `json:"owner_name"`
	MobileNumber string `json:"mobile_number" binding:"required"`
	Email        string `json:"email" binding:"required,email"`
}

// RegisterStore 商户登记
// POST /api/v1/admin/stores
func (h *Handler) RegisterStore(c *gin.Context) {
	var req RegisterStoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	store, err := h.svc.Store.Register(c.Request.Context(), &service.RegisterStoreRequest{
		Name:         req.Name,
		Type:         req.Type,
		OwnerName:    req.OwnerName,
		MobileNumber: req.MobileNumber,
		Email:        req.Email,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, store)
}

// RefreshStoreSummary 用聚合结果重写商户待结算镜像
// POST /api/v1/admin/stores/:storeId/summary/refresh
func (h *Handler) RefreshStoreSummary(c *gin.Context) {
	storeID, ok := pathID(c, "storeId")
	if !ok {
		return
	}
	row, err := h.svc.Store.RefreshSummary(c.Request.Context(), storeID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, row)
}

// GetSettlement 结算单详情
// GET /api/v1/admin/settlements/:id
func (h *Handler) GetSettlement(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	settlement, err := h.svc.Settlement.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, settlement)
}

// PaySettlement 登记一笔结算付款，可以分多次付清
// POST /api/v1/admin/settlements/:id/pay
func (h *Handler) PaySettlement(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	result, err := h.svc.Settlement.ApplyPayment(c.Request.Context(), id, req.Amount, actorID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, result)
}

// ResetDailySpent 手动清零当日消费，默认强制清零全部学生
// POST /api/v1/admin/reset-daily-spent?force=false
func (h *Handler) ResetDailySpent(c *gin.Context) {
	force := true
	if v := c.Query("force"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			response.ParamError(c, "force 参数错误")
			return
		}
		force = b
	}
	rows, err := h.svc.Student.ResetDailySpent(c.Request.Context(), force)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"rows":  rows,
		"force": force,
	})
}

// ListFailedEvents 超过重试上限的事件
// GET /api/v1/admin/outbox/failed?limit=100
func (h *Handler) ListFailedEvents(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	messages, err := h.svc.Outbox.Failed(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"list": messages,
	})
}

// RequeueEvent 把失败事件放回队列
// POST /api/v1/admin/outbox/:id/requeue
func (h *Handler) RequeueEvent(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Outbox.Requeue(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"message": "已重新入队",
	})
}

// Reconcile 全量余额对账，返回不一致的学生
// POST /api/v1/admin/reconcile
func (h *Handler) Reconcile(c *gin.Context) {
	diverged, err := h.svc.Recharge.ReconcileAll(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if diverged == nil {
		diverged = []*service.Reconciliation{}
	}
	response.Success(c, gin.H{
		"diverged": diverged,
	})
}
