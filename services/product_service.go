package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"aucmart_go/aucerrors"
	"aucmart_go/config"
	"aucmart_go/middleware"
	"aucmart_go/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var redisCtx = context.Background()

// ProductService 拍卖商品服务
//
// 所有改变拍卖状态的操作（出价、拒绝、资格审批、到期结算）都在单个
// 数据库事务内完成读取-评估-写入，并以商品的版本号做乐观并发控制：
// 条件更新影响0行即视为冲突，整个事务重试，重试耗尽返回繁忙错误。
// 同一商品上的并发出价因此串行化，后到者会读到先提交的状态。
type ProductService struct {
	cfg      *config.AuctionConfig
	notifier Notifier
	mailer   Mailer
}

// NewProductService 创建拍卖商品服务实例
func NewProductService(notifier Notifier, mailer Mailer) *ProductService {
	return &ProductService{
		cfg:      config.GetAuctionConfig(),
		notifier: notifier,
		mailer:   mailer,
	}
}

// ==================== CRUD操作 ====================

// CreateProductRequest 创建商品请求
type CreateProductRequest struct {
	Name          string    `json:"name" binding:"required,max=200"`
	Description   string    `json:"description" binding:"required,min=10,max=10000"`
	CategoryID    uint      `json:"category_id" binding:"required"`
	Images        []string  `json:"images" binding:"required,min=3"`
	StartingPrice int64     `json:"starting_price" binding:"required,gt=0"`
	PriceStep     int64     `json:"price_step" binding:"required,gt=0"`
	BuyPrice      *int64    `json:"buy_price" binding:"omitempty,gt=0"`
	AutoRenew     bool      `json:"auto_renew"`
	Expiry        time.Time `json:"expiry" binding:"required,futuretime"`
}

// CreateProduct 创建商品
// 商品创建与分类校验在同一事务内完成
func (ps *ProductService) CreateProduct(sellerID uint, req *CreateProductRequest) (*models.Product, error) {
	imagesJSON, _ := json.Marshal(req.Images)

	product := models.Product{
		Name:          req.Name,
		Slug:          models.GenerateSlug(req.Name),
		Description:   req.Description,
		CategoryID:    req.CategoryID,
		Images:        string(imagesJSON),
		StartingPrice: req.StartingPrice,
		PriceStep:     req.PriceStep,
		BuyPrice:      req.BuyPrice,
		AutoRenew:     req.AutoRenew,
		SellerID:      sellerID,
		Expiry:        req.Expiry,
	}

	err := config.DB.Transaction(func(tx *gorm.DB) error {
		var category models.Category
		if err := tx.First(&category, req.CategoryID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return aucerrors.ErrCategoryNotFound
			}
			return err
		}
		if err := tx.Create(&product).Error; err != nil {
			return fmt.Errorf("failed to create product: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &product, nil
}

// UpdateProduct 更新商品描述（只允许追加，保护已出价者看到的信息）
func (ps *ProductService) UpdateProduct(productID, sellerID uint, description string) error {
	var product models.Product
	if err := config.DB.First(&product, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return aucerrors.ErrProductNotFound
		}
		return err
	}
	if product.SellerID != sellerID {
		return aucerrors.ErrForbidden
	}

	newDescription := product.Description + "\n" + description
	if err := config.DB.Model(&product).Update("description", newDescription).Error; err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}

	ps.clearProductCache(productID)
	ps.notifier.PublishProduct(productID, EventProductRefresh, nil)
	return nil
}

// RemoveProduct 管理员下架商品（商品、出价、评价在同一事务内删除）
func (ps *ProductService) RemoveProduct(productID uint) error {
	var product models.Product
	err := config.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&product, productID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return aucerrors.ErrProductNotFound
			}
			return err
		}
		if err := tx.Delete(&product).Error; err != nil {
			return err
		}
		if err := tx.Where("product_id = ?", productID).Delete(&models.Bid{}).Error; err != nil {
			return err
		}
		if err := tx.Where("product_id = ?", productID).Delete(&models.Rating{}).Error; err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	ps.clearProductCache(productID)
	ps.notifier.PublishProduct(productID, EventProductRemove, nil)
	ps.notifier.PublishUser(product.SellerID, EventNotification, &Notification{
		Content:   fmt.Sprintf("商品 %s 已被管理员下架", product.Name),
		ProductID: productID,
		CreatedAt: time.Now(),
	})
	return nil
}

// ==================== 查询方法 ====================

// PaginateProductQuery 商品列表查询参数
type PaginateProductQuery struct {
	Page       int    `form:"page,default=1" binding:"min=1"`
	Limit      int    `form:"limit,default=20" binding:"min=1,max=100"`
	Sort       string `form:"sort,default=created_at"`
	Search     string `form:"search"`
	Category   uint   `form:"category"`
	Ended      *bool  `form:"ended"`
	SaleFilter int    `form:"sale_filter"` // 1=我发布的 2=已售出 3=未售出
	Bidded     bool   `form:"bidded"`
	Won        bool   `form:"won"`
	Favorited  bool   `form:"favorited"`
	Except     uint   `form:"except"`
}

// 允许排序的字段
var productSortFields = map[string]bool{
	"id": true, "name": true, "starting_price": true, "display_price": true,
	"bid_count": true, "expiry": true, "created_at": true, "updated_at": true,
}

// GetProducts 获取商品列表
func (ps *ProductService) GetProducts(q *PaginateProductQuery, viewerID uint) ([]models.Product, int64, error) {
	query := config.DB.Model(&models.Product{})

	if q.Category != 0 {
		query = query.Where("category_id = ?", q.Category)
	}
	if q.Ended != nil {
		query = query.Where("ended = ?", *q.Ended)
	}
	if q.Except != 0 {
		query = query.Where("products.id != ?", q.Except)
	}
	if q.Search != "" {
		pattern := "%" + q.Search + "%"
		query = query.Where("name LIKE ? OR description LIKE ?", pattern, pattern)
	}
	if viewerID != 0 {
		switch q.SaleFilter {
		case 1:
			query = query.Where("seller_id = ?", viewerID)
		case 2:
			query = query.Where("seller_id = ? AND winner_id IS NOT NULL", viewerID)
		case 3:
			query = query.Where("seller_id = ? AND winner_id IS NULL", viewerID)
		}
		if q.Bidded {
			query = query.Where("products.id IN (?)",
				config.DB.Model(&models.Bid{}).Select("product_id").
					Where("bidder_id = ? AND status = ?", viewerID, models.BidStatusAccepted))
		}
		if q.Won {
			query = query.Where("winner_id = ?", viewerID)
		}
		if q.Favorited {
			query = query.Where("products.id IN (?)",
				config.DB.Model(&models.Favorite{}).Select("product_id").Where("user_id = ?", viewerID))
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	sort := q.Sort
	if !productSortFields[sort] {
		sort = "created_at"
	}

	var products []models.Product
	if err := query.
		Preload("Category").
		Preload("Seller").
		Preload("Winner").
		Order(sort + " DESC").
		Limit(q.Limit).
		Offset((q.Page - 1) * q.Limit).
		Find(&products).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to get products: %w", err)
	}

	// 非卖家视角：隐藏领先者姓名
	for i := range products {
		if products[i].Winner != nil && products[i].SellerID != viewerID {
			products[i].Winner.FullName = maskFullName(products[i].Winner.FullName)
		}
	}

	return products, total, nil
}

// ProductDetail 商品详情视图（附带观看者自己的资格状态）
type ProductDetail struct {
	*models.Product
	Blacklisted bool `json:"blacklisted"`
	Whitelisted bool `json:"whitelisted"`
	Requested   bool `json:"requested"`
	Favorited   bool `json:"favorited"`
}

// GetProduct 获取商品详情
//
// 出价金额在拍卖结束前对所有人隐藏；资格名单只有卖家可见，
// 其他登录用户只能看到自己的资格状态。
func (ps *ProductService) GetProduct(productID, viewerID uint) (*ProductDetail, error) {
	product, err := ps.loadProductDetail(productID)
	if err != nil {
		return nil, err
	}

	detail := &ProductDetail{Product: product}

	if viewerID != product.SellerID {
		if viewerID != 0 {
			for i := range product.Members {
				if product.Members[i].UserID == viewerID {
					switch product.Members[i].Status {
					case models.MemberStatusBlacklisted:
						detail.Blacklisted = true
					case models.MemberStatusWhitelisted:
						detail.Whitelisted = true
					case models.MemberStatusRequested:
						detail.Requested = true
					}
				}
			}
			for i := range product.Favorites {
				if product.Favorites[i].UserID == viewerID {
					detail.Favorited = true
				}
			}
		}
		product.Members = nil
		product.Favorites = nil
		if product.Winner != nil {
			product.Winner.FullName = maskFullName(product.Winner.FullName)
		}
	}

	for i := range product.Bids {
		if !product.Ended {
			// 结束前隐藏出价金额
			product.Bids[i].Price = 0
		} else {
			product.Bids[i].Bidder.FullName = maskFullName(product.Bids[i].Bidder.FullName)
		}
	}

	return detail, nil
}

// loadProductDetail 读取商品详情（带缓存）
func (ps *ProductService) loadProductDetail(productID uint) (*models.Product, error) {
	cacheKey := fmt.Sprintf("product:%d", productID)
	if config.RedisClient != nil {
		cached, err := config.RedisClient.Get(redisCtx, cacheKey).Result()
		if err == nil {
			var product models.Product
			if json.Unmarshal([]byte(cached), &product) == nil {
				return &product, nil
			}
		}
	}

	var product models.Product
	if err := config.DB.
		Preload("Category").
		Preload("Seller").
		Preload("Winner").
		Preload("Members").
		Preload("Members.User").
		Preload("Favorites").
		Preload("Bids", func(db *gorm.DB) *gorm.DB {
			return db.Order("price DESC")
		}).
		Preload("Bids.Bidder").
		First(&product, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, aucerrors.ErrProductNotFound
		}
		return nil, err
	}

	// 异步缓存到Redis
	go func() {
		if config.RedisClient != nil {
			data, _ := json.Marshal(product)
			config.RedisClient.Set(redisCtx, cacheKey, data, 5*time.Minute)
		}
	}()

	return &product, nil
}

// BidHint 出价提示：下一次有效出价的最低价格（展示价 + 步长）
func (ps *ProductService) BidHint(productID uint) (int64, error) {
	var product models.Product
	if err := config.DB.First(&product, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, aucerrors.ErrProductNotFound
		}
		return 0, err
	}
	return product.NextMinimumPrice(), nil
}

// ==================== 竞拍资格 ====================

// memberStatus 查询 (商品, 用户) 的资格状态，无记录返回空串
func memberStatus(tx *gorm.DB, productID, userID uint) (string, error) {
	var member models.AuctionMember
	err := tx.Where("product_id = ? AND user_id = ?", productID, userID).First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return member.Status, nil
}

// checkBidEligibility 出价资格检查（按顺序评估，第一条不通过即返回）
//
// 1. 卖家不能竞拍自己的商品
// 2. 有评价记录且信誉分低于阈值的用户被拒绝
// 3. 无评价记录的用户必须在白名单内
// 4. 黑名单无条件拒绝（黑名单优先于白名单）
func (ps *ProductService) checkBidEligibility(product *models.Product, user *models.User, status string) error {
	if user.ID == product.SellerID {
		return aucerrors.ErrSelfBidForbidden
	}
	if user.HasRating() && user.Point < ps.cfg.TrustThreshold {
		return aucerrors.ErrTrustTooLow
	}
	if !user.HasRating() && status != models.MemberStatusWhitelisted {
		return aucerrors.ErrNotWhitelisted
	}
	if status == models.MemberStatusBlacklisted {
		return aucerrors.ErrBlacklisted
	}
	return nil
}

// RequestBid 申请竞拍资格（无评价记录的用户向卖家申请白名单）
func (ps *ProductService) RequestBid(productID, userID uint) error {
	var product models.Product
	err := ps.withConflictRetry(func(tx *gorm.DB) error {
		if err := tx.First(&product, productID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return aucerrors.ErrProductNotFound
			}
			return err
		}
		if product.Ended {
			return aucerrors.ErrAuctionClosed
		}
		var user models.User
		if err := tx.First(&user, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return aucerrors.ErrUserNotFound
			}
			return err
		}
		if user.ID == product.SellerID {
			return aucerrors.ErrSelfBidForbidden
		}
		if user.HasRating() && user.Point < ps.cfg.TrustThreshold {
			return aucerrors.ErrTrustTooLow
		}
		status, err := memberStatus(tx, productID, userID)
		if err != nil {
			return err
		}
		switch status {
		case models.MemberStatusBlacklisted:
			return aucerrors.ErrBlacklisted
		case models.MemberStatusWhitelisted:
			return aucerrors.ErrAlreadyWhitelisted
		case models.MemberStatusRequested:
			return aucerrors.ErrAlreadyRequested
		}
		if err := tx.Create(&models.AuctionMember{
			ProductID: productID,
			UserID:    userID,
			Status:    models.MemberStatusRequested,
		}).Error; err != nil {
			return err
		}
		// 资格变更与出价路径争用同一版本号，保证与并发出价串行化
		return ps.bumpProduct(tx, &product, map[string]interface{}{})
	})
	if err != nil {
		return err
	}

	ps.clearProductCache(productID)
	ps.notifier.PublishProduct(productID, EventProductRefresh, nil)
	ps.notifier.PublishUser(product.SellerID, EventNotification, &Notification{
		Content:   fmt.Sprintf("有用户正在申请竞拍商品 %s", product.Name),
		ProductID: productID,
		CreatedAt: time.Now(),
	})
	return nil
}

// ApproveBid 卖家审批竞拍申请
// accept为true时把用户从申请列表移入白名单，否则移出申请列表（可再次申请）。
// 对不在申请列表中的用户是幂等的无操作。
func (ps *ProductService) ApproveBid(productID, sellerID, targetID uint, accept bool) error {
	var product models.Product
	acted := false
	err := ps.withConflictRetry(func(tx *gorm.DB) error {
		acted = false
		if err := tx.First(&product, productID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return aucerrors.ErrProductNotFound
			}
			return err
		}
		if product.Ended {
			return aucerrors.ErrAuctionClosed
		}
		if product.SellerID != sellerID {
			return aucerrors.ErrForbidden
		}
		var member models.AuctionMember
		err := tx.Where("product_id = ? AND user_id = ? AND status = ?",
			productID, targetID, models.MemberStatusRequested).First(&member).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil // 不在申请列表，无操作
		}
		if err != nil {
			return err
		}
		if accept {
			if err := tx.Model(&member).Update("status", models.MemberStatusWhitelisted).Error; err != nil {
				return err
			}
		} else {
			if err := tx.Delete(&member).Error; err != nil {
				return err
			}
		}
		acted = true
		return ps.bumpProduct(tx, &product, map[string]interface{}{})
	})
	if err != nil {
		return err
	}
	if !acted {
		return nil
	}

	ps.clearProductCache(productID)
	ps.notifier.PublishProduct(productID, EventProductRefresh, nil)
	verdict := "已被允许"
	if !accept {
		verdict = "被拒绝"
	}
	ps.notifier.PublishUser(targetID, EventNotification, &Notification{
		Content:   fmt.Sprintf("你%s参与商品 %s 的竞拍", verdict, product.Name),
		ProductID: productID,
		CreatedAt: time.Now(),
	})
	return nil
}

// DenyBid 卖家拒绝某出价者
//
// 把该用户拉入黑名单、作废其全部出价记录；若该用户是当前领先者，
// 在同一事务内从剩余有效出价中重新计算领先者，避免出现黑名单用户
// 仍显示为领先者的窗口。
func (ps *ProductService) DenyBid(productID, sellerID, targetID uint) error {
	var product models.Product
	err := ps.withConflictRetry(func(tx *gorm.DB) error {
		if err := tx.First(&product, productID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return aucerrors.ErrProductNotFound
			}
			return err
		}
		if product.Ended {
			return aucerrors.ErrAuctionClosed
		}
		if product.SellerID != sellerID {
			return aucerrors.ErrForbidden
		}
		var user models.User
		if err := tx.First(&user, targetID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return aucerrors.ErrUserNotFound
			}
			return err
		}

		status, err := memberStatus(tx, productID, targetID)
		if err != nil {
			return err
		}
		if status == models.MemberStatusBlacklisted {
			return aucerrors.ErrAlreadyDenied
		}
		if status == "" {
			if err := tx.Create(&models.AuctionMember{
				ProductID: productID,
				UserID:    targetID,
				Status:    models.MemberStatusBlacklisted,
			}).Error; err != nil {
				return err
			}
		} else {
			if err := tx.Model(&models.AuctionMember{}).
				Where("product_id = ? AND user_id = ?", productID, targetID).
				Update("status", models.MemberStatusBlacklisted).Error; err != nil {
				return err
			}
		}

		if err := tx.Model(&models.Bid{}).
			Where("product_id = ? AND bidder_id = ?", productID, targetID).
			Update("status", models.BidStatusDenied).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{}
		if product.WinnerID != nil && *product.WinnerID == targetID {
			// 重新计算领先者：剩余有效出价中的最高价，没有则回到起拍状态
			var best models.Bid
			err := tx.Where("product_id = ? AND status = ?", productID, models.BidStatusAccepted).
				Order("price DESC").First(&best).Error
			if err == nil {
				updates["winner_id"] = best.BidderID
				updates["current_price"] = best.Price
				updates["display_price"] = best.Price
			} else if errors.Is(err, gorm.ErrRecordNotFound) {
				updates["winner_id"] = nil
				updates["current_price"] = product.StartingPrice
				updates["display_price"] = product.StartingPrice
			} else {
				return err
			}
		}
		return ps.bumpProduct(tx, &product, updates)
	})
	if err != nil {
		return err
	}

	ps.clearProductCache(productID)
	ps.notifier.PublishProduct(productID, EventProductRefresh, nil)
	ps.notifier.PublishUser(targetID, EventNotification, &Notification{
		Content:   fmt.Sprintf("你对商品 %s 的出价已被卖家拒绝", product.Name),
		ProductID: productID,
		CreatedAt: time.Now(),
	})
	go func() {
		var target models.User
		if err := config.DB.First(&target, targetID).Error; err == nil {
			ps.mailer.SendTemplate(target.Email, target.FullName, TemplateNoBid, map[string]interface{}{
				"recipient_name": target.FullName,
				"product_name":   product.Name,
				"button_url":     fmt.Sprintf("%s/home/products/%d", config.WebsiteURL(), productID),
			})
		}
	}()
	return nil
}

// ==================== 出价评估与提交（核心算法） ====================

// PlaceBid 出价
//
// 返回的错误中，ErrOutbidByHigherPrice 与 ErrInsufficientIncrement 是
// 竞价的预期结果而非失败：此时展示价的调整已随事务提交并广播刷新，
// 只是本次出价没有产生出价记录。
func (ps *ProductService) PlaceBid(productID, bidderID uint, price int64) (*models.Product, error) {
	var (
		outcome        error
		prevWinnerID   *uint
		buyPriceBidded bool
		snapshot       models.Product
	)

	err := ps.withConflictRetry(func(tx *gorm.DB) error {
		outcome = nil
		prevWinnerID = nil
		buyPriceBidded = false

		var product models.Product
		if err := tx.First(&product, productID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return aucerrors.ErrProductNotFound
			}
			return err
		}
		if product.Ended {
			return aucerrors.ErrAuctionClosed
		}
		var user models.User
		if err := tx.First(&user, bidderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return aucerrors.ErrUserNotFound
			}
			return err
		}
		status, err := memberStatus(tx, productID, bidderID)
		if err != nil {
			return err
		}
		if err := ps.checkBidEligibility(&product, &user, status); err != nil {
			return err
		}
		if price < product.StartingPrice {
			return aucerrors.ErrBelowStartingPrice
		}

		buyPriceBidded = product.BuyPriceReached(price)

		if product.HasWinner() && !buyPriceBidded {
			if price < product.CurrentPrice {
				// 落败：展示价调整为落败者的出价，向观看者透露差距有多小。
				// 调整与本次评估同属一个事务（提交后才广播）。
				outcome = aucerrors.ErrOutbidByHigherPrice
				if err := ps.bumpProduct(tx, &product, map[string]interface{}{
					"display_price": price,
				}); err != nil {
					return err
				}
				product.DisplayPrice = price
				snapshot = product
				return nil
			}
			if price < product.CurrentPrice+product.PriceStep {
				// 加价不足：展示价完全揭示到内部价
				outcome = aucerrors.ErrInsufficientIncrement
				if err := ps.bumpProduct(tx, &product, map[string]interface{}{
					"display_price": product.CurrentPrice,
				}); err != nil {
					return err
				}
				product.DisplayPrice = product.CurrentPrice
				snapshot = product
				return nil
			}
		}

		// 接受路径：一口价触发时按一口价成交
		committedPrice := price
		if buyPriceBidded {
			committedPrice = *product.BuyPrice
		}

		bid := models.Bid{
			ProductID: productID,
			BidderID:  bidderID,
			Price:     committedPrice,
			Status:    models.BidStatusAccepted,
		}
		if err := tx.Create(&bid).Error; err != nil {
			return fmt.Errorf("failed to create bid: %w", err)
		}

		prevWinnerID = product.WinnerID
		updates := map[string]interface{}{
			"bid_count":     product.BidCount + 1,
			"winner_id":     bidderID,
			"current_price": committedPrice,
		}
		switch {
		case buyPriceBidded:
			// 一口价：立即结束拍卖
			updates["display_price"] = committedPrice
			updates["ended"] = true
		case product.HasWinner():
			// 展示价 = 前领先者的内部价 + 步长
			updates["display_price"] = product.CurrentPrice + product.PriceStep
		default:
			// 首次出价完全按原价揭示，确立递增基线
			updates["display_price"] = price
		}
		// 防狙击：临近截止的有效出价延长截止时间（可反复触发）
		if product.AutoRenew && time.Until(product.Expiry) < ps.cfg.AutoRenewWindow {
			updates["expiry"] = product.Expiry.Add(ps.cfg.AutoRenewExtend)
		}
		if err := ps.bumpProduct(tx, &product, updates); err != nil {
			return err
		}
		product.BidCount++
		winner := bidderID
		product.WinnerID = &winner
		product.CurrentPrice = committedPrice
		product.DisplayPrice = updates["display_price"].(int64)
		if buyPriceBidded {
			product.Ended = true
		}
		if expiry, ok := updates["expiry"].(time.Time); ok {
			product.Expiry = expiry
		}
		snapshot = product
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 以下副作用都在事务提交之后执行，失败不影响已提交的出价
	ps.clearProductCache(productID)
	ps.notifier.PublishProduct(productID, EventProductRefresh, nil)

	// 出价已随事务提交：补充读取失败只记日志，返回事务内的快照，
	// 绝不把已提交的出价当作失败上报
	var product models.Product
	if err := config.DB.Preload("Seller").Preload("Winner").First(&product, productID).Error; err != nil {
		middleware.ErrorLogger("failed to reload product after bid",
			zap.Uint("product_id", productID), zap.Error(err))
		return &snapshot, outcome
	}

	if outcome != nil {
		return &product, outcome
	}

	ps.notifyBidAccepted(&product, prevWinnerID, buyPriceBidded)
	return &product, nil
}

// notifyBidAccepted 出价成功后的通知与邮件（尽力而为）
func (ps *ProductService) notifyBidAccepted(product *models.Product, prevWinnerID *uint, buyPriceBidded bool) {
	priceString := FormatPrice(product.DisplayPrice)
	buttonURL := fmt.Sprintf("%s/home/products/%d", config.WebsiteURL(), product.ID)

	notification := &Notification{
		Content:   fmt.Sprintf("有人为商品 %s 出价 %s", product.Name, priceString),
		ProductID: product.ID,
		CreatedAt: time.Now(),
	}
	ps.notifier.PublishUser(product.SellerID, EventNotification, notification)

	// 被超越的前领先者收到定向通知和邮件
	if prevWinnerID != nil && product.WinnerID != nil && *prevWinnerID != *product.WinnerID {
		ps.notifier.PublishUser(*prevWinnerID, EventNotification, notification)
		go func(id uint) {
			var prev models.User
			if err := config.DB.First(&prev, id).Error; err != nil {
				return
			}
			ps.mailer.SendTemplate(prev.Email, prev.FullName, TemplateNewBid, map[string]interface{}{
				"recipient_name": prev.FullName,
				"product_name":   product.Name,
				"current_price":  priceString,
				"bidder_name":    "另一位用户",
				"button_url":     buttonURL,
			})
		}(*prevWinnerID)
	}

	go func() {
		ps.mailer.SendTemplate(product.Seller.Email, product.Seller.FullName, TemplateNewBid, map[string]interface{}{
			"recipient_name": product.Seller.FullName,
			"product_name":   product.Name,
			"current_price":  priceString,
			"bidder_name":    product.Winner.FullName,
			"button_url":     buttonURL,
		})
		ps.mailer.SendTemplate(product.Winner.Email, product.Winner.FullName, TemplateNewBid, map[string]interface{}{
			"recipient_name": product.Winner.FullName,
			"product_name":   product.Name,
			"current_price":  priceString,
			"bidder_name":    "你",
			"button_url":     buttonURL,
		})
	}()

	if buyPriceBidded {
		ps.notifier.PublishUser(product.SellerID, EventNotification, &Notification{
			Content:   fmt.Sprintf("商品 %s 的拍卖已结束", product.Name),
			ProductID: product.ID,
			CreatedAt: time.Now(),
		})
		ps.notifier.PublishUser(*product.WinnerID, EventNotification, &Notification{
			Content:   fmt.Sprintf("你在商品 %s 的拍卖中获胜", product.Name),
			ProductID: product.ID,
			CreatedAt: time.Now(),
		})
		go func() {
			ps.mailer.SendTemplate(product.Seller.Email, product.Seller.FullName, TemplateAuctionEnd, map[string]interface{}{
				"recipient_name": product.Seller.FullName,
				"product_name":   product.Name,
				"bidder_name":    product.Winner.FullName,
				"button_url":     buttonURL,
			})
			ps.mailer.SendTemplate(product.Winner.Email, product.Winner.FullName, TemplateAuctionEnd, map[string]interface{}{
				"recipient_name": product.Winner.FullName,
				"product_name":   product.Name,
				"bidder_name":    "你",
				"button_url":     buttonURL,
			})
		}()
	}
}

// ==================== 到期结算 ====================

// SweepExpiredAuctions 结算所有已过期的拍卖，返回本次结算的数量
//
// 每个商品独立结算：单个商品失败只记日志，不影响其余商品。
// ended 的翻转是原子门（条件更新），清扫任务重叠运行或与一口价并发
// 时同一商品只会被结算一次。
func (ps *ProductService) SweepExpiredAuctions() (int, error) {
	var expired []models.Product
	if err := config.DB.Where("ended = ? AND expiry <= ?", false, time.Now()).
		Find(&expired).Error; err != nil {
		return 0, fmt.Errorf("failed to query expired products: %w", err)
	}

	finalized := 0
	for i := range expired {
		if err := ps.finalizeAuction(&expired[i]); err != nil {
			if errors.Is(err, aucerrors.ErrVersionConflict) {
				// 已被并发的清扫或一口价出价结算
				continue
			}
			middleware.ErrorLogger("failed to finalize auction",
				zap.Uint("product_id", expired[i].ID), zap.Error(err))
			continue
		}
		finalized++
	}
	return finalized, nil
}

// finalizeAuction 结算单个商品
//
// 版本冲突只说明有并发写入（出价、资格变更）抢先提交，不代表已结算：
// 重新读取后重试，只有 ended 已翻转（被一口价或并发清扫结算）才跳过。
func (ps *ProductService) finalizeAuction(p *models.Product) error {
	for attempt := 0; attempt < ps.cfg.BidMaxRetries; attempt++ {
		err := ps.finalizeOnce(p)
		if !errors.Is(err, aucerrors.ErrVersionConflict) {
			return err
		}
		var fresh models.Product
		if err := config.DB.First(&fresh, p.ID).Error; err != nil {
			return err
		}
		if fresh.Ended {
			return aucerrors.ErrVersionConflict
		}
		*p = fresh
	}
	return aucerrors.ErrBusy
}

// finalizeOnce 单次结算尝试，ended 的翻转是原子门
func (ps *ProductService) finalizeOnce(p *models.Product) error {
	err := config.DB.Transaction(func(tx *gorm.DB) error {
		// ended 翻转 + 最终成交价揭示（内部价收敛到展示价）
		res := tx.Model(&models.Product{}).
			Where("id = ? AND ended = ? AND version = ?", p.ID, false, p.Version).
			Updates(map[string]interface{}{
				"ended":         true,
				"current_price": p.DisplayPrice,
				"version":       p.Version + 1,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return aucerrors.ErrVersionConflict
		}
		if p.WinnerID != nil {
			// 把最终成交价回填到获胜出价记录上（展示修正，不重新评估）
			var best models.Bid
			err := tx.Where("product_id = ? AND bidder_id = ? AND status = ?",
				p.ID, *p.WinnerID, models.BidStatusAccepted).
				Order("price DESC").First(&best).Error
			if err != nil {
				return err
			}
			return tx.Model(&best).Update("price", p.DisplayPrice).Error
		}
		return nil
	})
	if err != nil {
		return err
	}

	ps.clearProductCache(p.ID)
	ps.notifier.PublishProduct(p.ID, EventProductRefresh, nil)

	var seller models.User
	if err := config.DB.First(&seller, p.SellerID).Error; err != nil {
		return nil
	}
	buttonURL := fmt.Sprintf("%s/home/products/%d", config.WebsiteURL(), p.ID)

	if p.WinnerID == nil {
		// 流拍
		ps.notifier.PublishUser(p.SellerID, EventNotification, &Notification{
			Content:   fmt.Sprintf("商品 %s 的拍卖已结束，无人出价", p.Name),
			ProductID: p.ID,
			CreatedAt: time.Now(),
		})
		go ps.mailer.SendTemplate(seller.Email, seller.FullName, TemplateNoBid, map[string]interface{}{
			"recipient_name": seller.FullName,
			"product_name":   p.Name,
			"button_url":     buttonURL,
		})
		return nil
	}

	var winner models.User
	if err := config.DB.First(&winner, *p.WinnerID).Error; err != nil {
		return nil
	}
	ps.notifier.PublishUser(p.SellerID, EventNotification, &Notification{
		Content:   fmt.Sprintf("商品 %s 的拍卖已结束", p.Name),
		ProductID: p.ID,
		CreatedAt: time.Now(),
	})
	ps.notifier.PublishUser(winner.ID, EventNotification, &Notification{
		Content:   fmt.Sprintf("你在商品 %s 的拍卖中获胜", p.Name),
		ProductID: p.ID,
		CreatedAt: time.Now(),
	})
	go func() {
		ps.mailer.SendTemplate(seller.Email, seller.FullName, TemplateAuctionEnd, map[string]interface{}{
			"recipient_name": seller.FullName,
			"product_name":   p.Name,
			"bidder_name":    winner.FullName,
			"button_url":     buttonURL,
		})
		ps.mailer.SendTemplate(winner.Email, winner.FullName, TemplateAuctionEnd, map[string]interface{}{
			"recipient_name": winner.FullName,
			"product_name":   p.Name,
			"bidder_name":    "你",
			"button_url":     buttonURL,
		})
	}()
	return nil
}

// ==================== 评价 ====================

// CreateRatingRequest 创建评价请求
type CreateRatingRequest struct {
	Type    string `json:"type" binding:"required,oneof=positive negative"`
	Comment string `json:"comment" binding:"required,max=2000"`
}

// CreateRating 拍卖结束后买卖双方互评
// 评价写入、商品评价引用与被评价人信誉分的重算在同一事务内完成。
func (ps *ProductService) CreateRating(productID, reviewerID uint, req *CreateRatingRequest) (*models.Rating, error) {
	var rating models.Rating
	var targetID uint
	err := ps.withConflictRetry(func(tx *gorm.DB) error {
		var product models.Product
		if err := tx.First(&product, productID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return aucerrors.ErrProductNotFound
			}
			return err
		}
		if !product.Ended {
			return aucerrors.ErrAuctionNotEnded
		}
		if product.WinnerID == nil {
			return aucerrors.ErrNoWinner
		}
		if reviewerID != product.SellerID && reviewerID != *product.WinnerID {
			return aucerrors.ErrNotParticipant
		}
		var existing models.Rating
		err := tx.Where("product_id = ? AND reviewer_id = ?", productID, reviewerID).First(&existing).Error
		if err == nil {
			return aucerrors.ErrAlreadyRated
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if reviewerID == *product.WinnerID {
			targetID = product.SellerID
		} else {
			targetID = *product.WinnerID
		}

		rating = models.Rating{
			ProductID:  productID,
			ReviewerID: reviewerID,
			TargetID:   targetID,
			Type:       req.Type,
			Comment:    req.Comment,
		}
		if err := tx.Create(&rating).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{}
		if reviewerID == *product.WinnerID {
			updates["seller_rating_id"] = rating.ID
		} else {
			updates["winner_rating_id"] = rating.ID
		}
		if err := ps.bumpProduct(tx, &product, updates); err != nil {
			return err
		}

		// 重算被评价人的信誉分：好评占比 × 100
		var positive, negative int64
		if err := tx.Model(&models.Rating{}).
			Where("target_id = ? AND type = ?", targetID, models.RatingTypePositive).
			Count(&positive).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Rating{}).
			Where("target_id = ? AND type = ?", targetID, models.RatingTypeNegative).
			Count(&negative).Error; err != nil {
			return err
		}
		point := int(math.Round(float64(positive) / float64(positive+negative) * 100))
		return tx.Model(&models.User{}).Where("id = ?", targetID).
			Updates(map[string]interface{}{
				"point":        point,
				"rating_count": gorm.Expr("rating_count + 1"),
			}).Error
	})
	if err != nil {
		return nil, err
	}

	ps.clearProductCache(productID)
	ps.notifier.PublishProduct(productID, EventProductRefresh, nil)
	ps.notifier.PublishUser(targetID, EventNotification, &Notification{
		Content:   "你收到了一条新的交易评价",
		ProductID: productID,
		CreatedAt: time.Now(),
	})
	return &rating, nil
}

// GetProductRatings 获取商品的评价
func (ps *ProductService) GetProductRatings(productID uint) ([]models.Rating, error) {
	var ratings []models.Rating
	if err := config.DB.
		Preload("Reviewer").
		Preload("Target").
		Where("product_id = ?", productID).
		Find(&ratings).Error; err != nil {
		return nil, err
	}
	return ratings, nil
}

// ==================== 收藏 ====================

// AddFavorite 收藏商品（重复收藏是无操作）
func (ps *ProductService) AddFavorite(productID, userID uint) error {
	var product models.Product
	if err := config.DB.First(&product, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return aucerrors.ErrProductNotFound
		}
		return err
	}
	favorite := models.Favorite{UserID: userID, ProductID: productID}
	if err := config.DB.
		Where("user_id = ? AND product_id = ?", userID, productID).
		FirstOrCreate(&favorite).Error; err != nil {
		return err
	}
	ps.clearProductCache(productID)
	return nil
}

// RemoveFavorite 取消收藏（未收藏是无操作）
func (ps *ProductService) RemoveFavorite(productID, userID uint) error {
	if err := config.DB.
		Where("user_id = ? AND product_id = ?", userID, productID).
		Delete(&models.Favorite{}).Error; err != nil {
		return err
	}
	ps.clearProductCache(productID)
	return nil
}

// ==================== 辅助方法 ====================

// withConflictRetry 带乐观锁冲突重试的事务执行
// 冲突说明有并发写入抢先提交，整个读取-评估-写入重新来过；
// 重试耗尽返回繁忙错误（可重试，无任何部分状态残留）。
func (ps *ProductService) withConflictRetry(fn func(tx *gorm.DB) error) error {
	for attempt := 0; attempt < ps.cfg.BidMaxRetries; attempt++ {
		err := config.DB.Transaction(fn)
		if errors.Is(err, aucerrors.ErrVersionConflict) {
			continue
		}
		return err
	}
	return aucerrors.ErrBusy
}

// bumpProduct 带版本条件的商品更新
// 影响0行说明读取后有其他事务已提交写入，返回冲突让调用方重试。
func (ps *ProductService) bumpProduct(tx *gorm.DB, p *models.Product, updates map[string]interface{}) error {
	updates["version"] = p.Version + 1
	res := tx.Model(&models.Product{}).
		Where("id = ? AND version = ?", p.ID, p.Version).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return aucerrors.ErrVersionConflict
	}
	p.Version++
	return nil
}

// clearProductCache 清除商品缓存
func (ps *ProductService) clearProductCache(productID uint) {
	if config.RedisClient == nil {
		return
	}
	go func() {
		config.RedisClient.Del(redisCtx, fmt.Sprintf("product:%d", productID))
	}()
}

// maskFullName 隐藏姓名（只保留首字符）
func maskFullName(name string) string {
	runes := []rune(strings.TrimSpace(name))
	if len(runes) <= 1 {
		return "***"
	}
	return string(runes[0]) + "***"
}
