package services

import "time"

// 实时事件（与前端约定的事件名）
const (
	EventProductRefresh = "products:view:refresh"
	EventProductRemove  = "products:view:remove"
	EventNotification   = "notification:products"
)

// Notification 用户通知载荷
type Notification struct {
	Content   string    `json:"content"`
	ProductID uint      `json:"product,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Notifier 实时通知端口
//
// 竞拍核心只依赖该接口，不关心具体传输方式（WebSocket/Redis等）。
// 投递是尽力而为的at-most-once：失败不回滚业务事务，也不向出价者报错。
type Notifier interface {
	// PublishProduct 向某商品详情页的所有观看者广播
	PublishProduct(productID uint, event string, data interface{})
	// PublishUser 向某用户的所有连接推送定向消息
	PublishUser(userID uint, event string, data interface{})
}

// NopNotifier 空实现（测试或未启用WebSocket时使用）
type NopNotifier struct{}

func (NopNotifier) PublishProduct(productID uint, event string, data interface{}) {}
func (NopNotifier) PublishUser(userID uint, event string, data interface{})       {}
