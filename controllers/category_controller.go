package controllers

import (
	"aucmart_go/services"
	"aucmart_go/utils"

	"github.com/gin-gonic/gin"
)

// CategoryController 分类控制器
type CategoryController struct {
	categoryService *services.CategoryService
}

// NewCategoryController 创建分类控制器实例
func NewCategoryController(categoryService *services.CategoryService) *CategoryController {
	return &CategoryController{categoryService: categoryService}
}

// GetCategories 获取全部分类
// @route GET /api/categories
func (cc *CategoryController) GetCategories(c *gin.Context) {
	categories, err := cc.categoryService.GetCategories()
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.Success(c, categories)
}

// CreateCategory 创建分类（管理员）
// @route POST /api/categories
func (cc *CategoryController) CreateCategory(c *gin.Context) {
	var req services.CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ValidationError(c, err)
		return
	}

	category, err := cc.categoryService.CreateCategory(&req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.Success(c, category)
}

// UpdateCategory 更新分类（管理员）
// @route PUT /api/categories/:id
func (cc *CategoryController) UpdateCategory(c *gin.Context) {
	categoryID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req services.CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ValidationError(c, err)
		return
	}

	category, err := cc.categoryService.UpdateCategory(categoryID, &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.Success(c, category)
}

// DeleteCategory 删除分类（管理员）
// @route DELETE /api/categories/:id
func (cc *CategoryController) DeleteCategory(c *gin.Context) {
	categoryID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := cc.categoryService.DeleteCategory(categoryID); err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.Success(c, nil)
}
