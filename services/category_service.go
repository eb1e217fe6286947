package services

import (
	"errors"
	"fmt"

	"aucmart_go/aucerrors"
	"aucmart_go/config"
	"aucmart_go/models"

	"gorm.io/gorm"
)

// CategoryService 分类服务
type CategoryService struct{}

// NewCategoryService 创建分类服务实例
func NewCategoryService() *CategoryService {
	return &CategoryService{}
}

// GetCategories 获取全部分类
func (cs *CategoryService) GetCategories() ([]models.Category, error) {
	var categories []models.Category
	if err := config.DB.Order("name ASC").Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("failed to get categories: %w", err)
	}
	return categories, nil
}

// CategoryRequest 创建/更新分类请求
type CategoryRequest struct {
	Name    string `json:"name" binding:"required,max=100"`
	SubName string `json:"sub_name" binding:"max=100"`
}

// CreateCategory 创建分类（管理员）
func (cs *CategoryService) CreateCategory(req *CategoryRequest) (*models.Category, error) {
	category := models.Category{Name: req.Name, SubName: req.SubName}
	if err := config.DB.Create(&category).Error; err != nil {
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	return &category, nil
}

// UpdateCategory 更新分类（管理员）
func (cs *CategoryService) UpdateCategory(categoryID uint, req *CategoryRequest) (*models.Category, error) {
	var category models.Category
	if err := config.DB.First(&category, categoryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, aucerrors.ErrCategoryNotFound
		}
		return nil, err
	}
	if err := config.DB.Model(&category).Updates(map[string]interface{}{
		"name":     req.Name,
		"sub_name": req.SubName,
	}).Error; err != nil {
		return nil, err
	}
	return &category, nil
}

// DeleteCategory 删除分类（管理员，仍有商品时拒绝）
func (cs *CategoryService) DeleteCategory(categoryID uint) error {
	return config.DB.Transaction(func(tx *gorm.DB) error {
		var category models.Category
		if err := tx.First(&category, categoryID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return aucerrors.ErrCategoryNotFound
			}
			return err
		}
		var count int64
		if err := tx.Model(&models.Product{}).Where("category_id = ?", categoryID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return aucerrors.ErrForbidden
		}
		return tx.Delete(&category).Error
	})
}
