package models

import (
	"time"

	"gorm.io/gorm"
)

// Product 拍卖商品模型
//
// CurrentPrice 是真实的最高出价（内部价），在拍卖结束前不对外展示；
// DisplayPrice 是展示给竞拍者的价格。除第一次出价外，展示价始终落后内部价。
// Version 用于乐观并发控制：所有改变拍卖状态的写入都必须带版本条件更新。
type Product struct {
	ID            uint           `gorm:"primaryKey;autoIncrement;comment:商品ID" json:"id"`
	Name          string         `gorm:"type:varchar(200);not null;comment:商品名" json:"name"`
	Slug          string         `gorm:"type:varchar(220);index;comment:URL别名" json:"slug"`
	Description   string         `gorm:"type:text;comment:商品描述" json:"description"`
	CategoryID    uint           `gorm:"index;not null;comment:分类ID" json:"category_id"`
	Images        string         `gorm:"type:text;comment:图片列表(JSON)" json:"images"`
	StartingPrice int64          `gorm:"not null;comment:起拍价" json:"starting_price"`
	PriceStep     int64          `gorm:"not null;comment:加价步长" json:"price_step"`
	BuyPrice      *int64         `gorm:"comment:一口价(可选)" json:"buy_price,omitempty"`
	AutoRenew     bool           `gorm:"default:false;comment:是否自动延时" json:"auto_renew"`
	SellerID      uint           `gorm:"index;not null;comment:卖家ID" json:"seller_id"`
	WinnerID      *uint          `gorm:"index;comment:当前领先者ID" json:"winner_id,omitempty"`
	CurrentPrice  int64          `gorm:"not null;comment:内部价(最高有效出价)" json:"-"`
	DisplayPrice  int64          `gorm:"not null;comment:展示价" json:"display_price"`
	BidCount      int            `gorm:"default:0;comment:有效出价次数" json:"bid_count"`
	Ended         bool           `gorm:"index;default:false;comment:拍卖是否已结束" json:"ended"`
	Expiry        time.Time      `gorm:"index;not null;comment:截止时间" json:"expiry"`
	Version       int64          `gorm:"default:0;comment:乐观锁版本号" json:"-"`
	SellerRatingID *uint         `gorm:"comment:卖家收到的评价ID" json:"seller_rating_id,omitempty"`
	WinnerRatingID *uint         `gorm:"comment:买家收到的评价ID" json:"winner_rating_id,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`

	// 关联关系
	Category  Category        `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	Seller    User            `gorm:"foreignKey:SellerID" json:"seller,omitempty"`
	Winner    *User           `gorm:"foreignKey:WinnerID" json:"winner,omitempty"`
	Bids      []Bid           `gorm:"foreignKey:ProductID" json:"bids,omitempty"`
	Members   []AuctionMember `gorm:"foreignKey:ProductID" json:"members,omitempty"`
	Favorites []Favorite      `gorm:"foreignKey:ProductID" json:"favorites,omitempty"`
}

// Favorite 收藏模型
type Favorite struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint      `gorm:"uniqueIndex:uniq_fav_user_product;not null;comment:用户ID" json:"user_id"`
	ProductID uint      `gorm:"uniqueIndex:uniq_fav_user_product;not null;comment:商品ID" json:"product_id"`
	CreatedAt time.Time `json:"created_at"`

	// 关联关系
	User    User    `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Product Product `gorm:"foreignKey:ProductID" json:"product,omitempty"`
}

// TableName 指定表名
func (Product) TableName() string {
	return "products"
}

func (Favorite) TableName() string {
	return "favorites"
}

// BeforeCreate 创建前钩子：初始化拍卖状态
func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.CurrentPrice == 0 {
		p.CurrentPrice = p.StartingPrice
	}
	if p.DisplayPrice == 0 {
		p.DisplayPrice = p.StartingPrice
	}
	return nil
}

// HasWinner 是否已有领先者
func (p *Product) HasWinner() bool {
	return p.WinnerID != nil
}

// BuyPriceReached 出价是否达到一口价
func (p *Product) BuyPriceReached(price int64) bool {
	return p.BuyPrice != nil && price >= *p.BuyPrice
}

// NextMinimumPrice 下一次有效出价的最低价格（展示价 + 步长）
func (p *Product) NextMinimumPrice() int64 {
	return p.DisplayPrice + p.PriceStep
}
