package models

import (
	"time"
)

// 出价状态
const (
	BidStatusAccepted = "accepted"
	BidStatusDenied   = "denied"
)

// Bid 出价记录模型
//
// 出价一旦入库即不可变，唯一的例外是拍卖结束时由定时任务把最终成交价
// 回填到获胜出价上（展示用途，不参与重新评估）。
type Bid struct {
	ID        uint      `gorm:"primaryKey;autoIncrement;comment:出价ID" json:"id"`
	ProductID uint      `gorm:"index;not null;comment:商品ID" json:"product_id"`
	BidderID  uint      `gorm:"index;not null;comment:出价者ID" json:"bidder_id"`
	Price     int64     `gorm:"not null;comment:出价金额" json:"price,omitempty"`
	Status    string    `gorm:"type:varchar(10);index;default:accepted;comment:accepted,denied" json:"status"`
	CreatedAt time.Time `json:"created_at"`

	// 关联关系
	Bidder  User    `gorm:"foreignKey:BidderID" json:"bidder,omitempty"`
	Product Product `gorm:"foreignKey:ProductID" json:"-"`
}

// TableName 指定表名
func (Bid) TableName() string {
	return "bids"
}
