package models

import (
	"time"
)

// 竞拍资格状态
//
// 每个 (商品, 用户) 至多一条记录，状态互斥：
// requested 表示已申请待卖家审批，whitelisted 表示允许出价，
// blacklisted 表示被卖家拒绝（黑名单优先于白名单）。
const (
	MemberStatusRequested   = "requested"
	MemberStatusWhitelisted = "whitelisted"
	MemberStatusBlacklisted = "blacklisted"
)

// AuctionMember 竞拍资格模型
type AuctionMember struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID uint      `gorm:"uniqueIndex:uniq_member_product_user;not null;comment:商品ID" json:"product_id"`
	UserID    uint      `gorm:"uniqueIndex:uniq_member_product_user;not null;comment:用户ID" json:"user_id"`
	Status    string    `gorm:"type:varchar(12);not null;comment:requested,whitelisted,blacklisted" json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 关联关系
	User    User    `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Product Product `gorm:"foreignKey:ProductID" json:"-"`
}

// TableName 指定表名
func (AuctionMember) TableName() string {
	return "auction_members"
}
