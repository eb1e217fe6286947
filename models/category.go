package models

import (
	"time"

	"gorm.io/gorm"
)

// Category 商品分类模型
type Category struct {
	ID        uint           `gorm:"primaryKey;autoIncrement;comment:分类ID" json:"id"`
	Name      string         `gorm:"type:varchar(100);not null;comment:分类名" json:"name"`
	SubName   string         `gorm:"type:varchar(100);comment:子分类名" json:"sub_name,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// 关联关系
	Products []Product `gorm:"foreignKey:CategoryID" json:"products,omitempty"`
}

// TableName 指定表名
func (Category) TableName() string {
	return "categories"
}
