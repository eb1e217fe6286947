package aucerrors

import "errors"

// AppError 业务错误
//
// Code 是稳定的机器可读业务码，客户端据此区分竞价结果与硬错误；
// Status 是对应的HTTP状态码。
type AppError struct {
	Code    int
	Status  int
	Message string
}

func (e *AppError) Error() string {
	return e.Message
}

// New 创建业务错误
func New(code, status int, message string) *AppError {
	return &AppError{Code: code, Status: status, Message: message}
}

// ==================== 通用错误 ====================

var (
	ErrProductNotFound  = New(40401, 404, "找不到该商品")
	ErrUserNotFound     = New(40402, 404, "找不到该用户")
	ErrCategoryNotFound = New(40403, 404, "找不到所选分类")
	ErrForbidden        = New(40301, 403, "你没有权限操作该商品")
	// ErrBusy 事务冲突重试耗尽后对外暴露的可重试错误
	ErrBusy = New(42900, 429, "系统繁忙，请稍后重试")
)

// ==================== 资格错误（出价评估前拒绝，无状态变更） ====================

var (
	ErrSelfBidForbidden   = New(42201, 422, "不能竞拍自己发布的商品")
	ErrTrustTooLow        = New(42202, 422, "信誉分过低（低于80），无法参与竞拍")
	ErrNotWhitelisted     = New(42203, 422, "暂无评价记录，需向卖家申请竞拍资格")
	ErrBlacklisted        = New(42204, 422, "已被卖家拒绝，无法参与竞拍")
	ErrAlreadyRequested   = New(42205, 422, "你已经申请过竞拍资格")
	ErrAlreadyWhitelisted = New(42206, 422, "你已获得竞拍资格，无需再次申请")
	ErrAlreadyDenied      = New(42207, 422, "该用户已被拒绝过")
)

// ==================== 出价错误与竞价结果 ====================

// ErrOutbidByHigherPrice / ErrInsufficientIncrement 不是失败意义上的异常，
// 而是竞价算法的预期结果：调用方据此刷新展示价并重试。
var (
	ErrAuctionClosed         = New(42210, 422, "该商品的拍卖已结束")
	ErrBelowStartingPrice    = New(42211, 422, "出价不能低于起拍价")
	ErrOutbidByHigherPrice   = New(42212, 422, "竞价失败，已有人出了更高的价格")
	ErrInsufficientIncrement = New(42213, 422, "竞价失败，你的出价不足以超过当前领先者")
)

// ==================== 评价错误 ====================

var (
	ErrAuctionNotEnded = New(42220, 400, "拍卖尚未结束，无法评价")
	ErrNoWinner        = New(42221, 400, "该商品无人购买，无法评价")
	ErrNotParticipant  = New(42222, 400, "你不能参与该商品的评价")
	ErrAlreadyRated    = New(42223, 422, "你已经评价过了")
)

// ==================== 账户错误 ====================

var (
	ErrEmailTaken         = New(42230, 422, "该邮箱已被注册")
	ErrInvalidCredentials = New(40110, 401, "邮箱或密码错误")
	ErrNotActivated       = New(40111, 401, "账号尚未激活，请先查收激活邮件")
	ErrInvalidCode        = New(42231, 422, "激活码无效")
)

// ErrVersionConflict 乐观锁冲突（内部哨兵，重试后不对外暴露）
var ErrVersionConflict = errors.New("aucerrors: version conflict")

// AsAppError 提取业务错误
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
