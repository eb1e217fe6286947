package controllers

import (
	"strconv"

	"aucmart_go/models"
	"aucmart_go/services"
	"aucmart_go/utils"

	"github.com/gin-gonic/gin"
)

// ProductController 商品控制器
type ProductController struct {
	productService *services.ProductService
}

// NewProductController 创建商品控制器实例
func NewProductController(productService *services.ProductService) *ProductController {
	return &ProductController{productService: productService}
}

// parseIDParam 解析路径中的商品ID
func parseIDParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		utils.Error(c, utils.CodeNotFound, "")
		return 0, false
	}
	return uint(id), true
}

// CreateProduct 创建商品
// @route POST /api/products
func (pc *ProductController) CreateProduct(c *gin.Context) {
	if c.GetString("account_type") != models.AccountTypeSeller {
		utils.Forbidden(c, "只有卖家可以发布商品")
		return
	}

	var req services.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ValidationError(c, err)
		return
	}

	product, err := pc.productService.CreateProduct(c.GetUint("user_id"), &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.Success(c, product)
}

// GetProducts 获取商品列表
// @route GET /api/products
func (pc *ProductController) GetProducts(c *gin.Context) {
	var query services.PaginateProductQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		utils.ValidationError(c, err)
		return
	}

	products, total, err := pc.productService.GetProducts(&query, c.GetUint("user_id"))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.SuccessPage(c, products, total, query.Page, query.Limit)
}

// GetProduct 获取商品详情
// @route GET /api/products/:id
func (pc *ProductController) GetProduct(c *gin.Context) {
	productID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	detail, err := pc.productService.GetProduct(productID, c.GetUint("user_id"))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.Success(c, detail)
}

// UpdateProduct 追加商品描述
// @route PATCH /api/products/:id
func (pc *ProductController) UpdateProduct(c *gin.Context) {
	productID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req struct {
		Description string `json:"description" binding:"required,max=10000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ValidationError(c, err)
		return
	}

	if err := pc.productService.UpdateProduct(productID, c.GetUint("user_id"), req.Description); err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.Success(c, nil)
}

// RemoveProduct 管理员下架商品
// @route DELETE /api/products/:id
func (pc *ProductController) RemoveProduct(c *gin.Context) {
	productID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := pc.productService.RemoveProduct(productID); err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.Success(c, nil)
}

// BidHint 下一次有效出价的最低价格
// @route GET /api/products/:id/bid-hint
func (pc *ProductController) BidHint(c *gin.Context) {
	productID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	hint, err := pc.productService.BidHint(productID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.Success(c, gin.H{"next_minimum_price": hint})
}

// PlaceBid 出价
// @route POST /api/products/:id/bid
func (pc *ProductController) PlaceBid(c *gin.Context) {
	productID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req struct {
		Price int64 `json:"price" binding:"required,gt=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ValidationError(c, err)
		return
	}

	product, err := pc.productService.PlaceBid(productID, c.GetUint("user_id"), req.Price)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.Success(c, product)
}

// RequestBid 申请竞拍资格
// @route POST /api/products/:id/request-bid
func (pc *ProductController) RequestBid(c *gin.Context) {
	productID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := pc.productService.RequestBid(productID, c.GetUint("user_id")); err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.Success(c, nil)
}

// ApproveBid 卖家审批竞拍申请
// @route POST /api/products/:id/approve-bid
func (pc *ProductController) ApproveBid(c *gin.Context) {
	productID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req struct {
		UserID uint  `json:"user_id" binding:"required"`
		Accept *bool `json:"accept" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ValidationError(c, err)
		return
	}

	if err := pc.productService.ApproveBid(productID, c.GetUint("user_id"), req.UserID, *req.Accept); err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.Success(c, nil)
}

// DenyBid 卖家拒绝某出价者
// @route POST /api/products/:id/deny-bid
func (pc *ProductController) DenyBid(c *gin.Context) {
	productID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req struct {
		UserID uint `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ValidationError(c, err)
		return
	}

	if err := pc.productService.DenyBid(productID, c.GetUint("user_id"), req.UserID); err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.Success(c, nil)
}

// CreateRating 拍卖结束后的互评
// @route POST /api/products/:id/rating
func (pc *ProductController) CreateRating(c *gin.Context) {
	productID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req services.CreateRatingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ValidationError(c, err)
		return
	}

	rating, err := pc.productService.CreateRating(productID, c.GetUint("user_id"), &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.Success(c, rating)
}

// GetRatings 获取商品的评价
// @route GET /api/products/:id/ratings
func (pc *ProductController) GetRatings(c *gin.Context) {
	productID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	ratings, err := pc.productService.GetProductRatings(productID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.Success(c, ratings)
}

// AddFavorite 收藏商品
// @route POST /api/products/:id/favorite
func (pc *ProductController) AddFavorite(c *gin.Context) {
	productID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := pc.productService.AddFavorite(productID, c.GetUint("user_id")); err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.Success(c, nil)
}

// RemoveFavorite 取消收藏
// @route DELETE /api/products/:id/favorite
func (pc *ProductController) RemoveFavorite(c *gin.Context) {
	productID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := pc.productService.RemoveFavorite(productID, c.GetUint("user_id")); err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.Success(c, nil)
}
