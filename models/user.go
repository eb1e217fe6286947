package models

import (
	"time"

	"gorm.io/gorm"
)

// 账户类型
const (
	AccountTypeBidder = "bidder"
	AccountTypeSeller = "seller"
)

// 用户角色
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User 用户模型
type User struct {
	ID             uint           `gorm:"primaryKey;autoIncrement;comment:用户ID" json:"id"`
	Email          string         `gorm:"type:varchar(100);uniqueIndex;not null;comment:邮箱" json:"-"`
	FullName       string         `gorm:"type:varchar(100);not null;comment:姓名" json:"full_name"`
	Address        string         `gorm:"type:varchar(255);comment:地址" json:"-"`
	Birthdate      *time.Time     `gorm:"comment:出生日期" json:"-"`
	Password       string         `gorm:"type:varchar(255);not null;comment:密码" json:"-"` // 不返回给前端
	Role           string         `gorm:"type:varchar(10);default:user;comment:角色: user, admin" json:"role"`
	AccountType    string         `gorm:"type:varchar(10);default:bidder;comment:账户类型: bidder, seller" json:"account_type"`
	Point          int            `gorm:"default:10;comment:信誉分(0-100)" json:"point"`
	RatingCount    int            `gorm:"default:0;comment:被评价次数" json:"rating_count"`
	Activated      bool           `gorm:"default:false;comment:邮箱是否已激活" json:"activated"`
	ActivationCode string         `gorm:"type:varchar(64);comment:激活码" json:"-"`
	RecoveryCode   string         `gorm:"type:varchar(64);comment:找回密码码" json:"-"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"` // 软删除

	// 关联关系
	Products []Product `gorm:"foreignKey:SellerID" json:"products,omitempty"`
	Bids     []Bid     `gorm:"foreignKey:BidderID" json:"bids,omitempty"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}

// HasRating 是否已有评价记录
func (u *User) HasRating() bool {
	return u.RatingCount > 0
}
