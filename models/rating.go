package models

import (
	"time"
)

// 评价类型
const (
	RatingTypePositive = "positive"
	RatingTypeNegative = "negative"
)

// Rating 评价模型
//
// 仅在拍卖结束且有获胜者后创建，每个 (商品, 评价人) 至多一条。
type Rating struct {
	ID         uint      `gorm:"primaryKey;autoIncrement;comment:评价ID" json:"id"`
	ProductID  uint      `gorm:"uniqueIndex:uniq_rating_product_reviewer;not null;comment:商品ID" json:"product_id"`
	ReviewerID uint      `gorm:"uniqueIndex:uniq_rating_product_reviewer;not null;comment:评价人ID" json:"reviewer_id"`
	TargetID   uint      `gorm:"index;not null;comment:被评价人ID" json:"target_id"`
	Type       string    `gorm:"type:varchar(10);not null;comment:positive,negative" json:"type"`
	Comment    string    `gorm:"type:text;not null;comment:评价内容" json:"comment"`
	CreatedAt  time.Time `json:"created_at"`

	// 关联关系
	Reviewer User    `gorm:"foreignKey:ReviewerID" json:"reviewer,omitempty"`
	Target   User    `gorm:"foreignKey:TargetID" json:"target,omitempty"`
	Product  Product `gorm:"foreignKey:ProductID" json:"product,omitempty"`
}

// TableName 指定表名
func (Rating) TableName() string {
	return "ratings"
}
