package controllers

import (
	"aucmart_go/services"
	"aucmart_go/utils"

	"github.com/gin-gonic/gin"
)

// UserController 用户控制器
type UserController struct {
	userService *services.UserService
}

// NewUserController 创建用户控制器实例
func NewUserController(userService *services.UserService) *UserController {
	return &UserController{userService: userService}
}

// GetProfile 获取个人资料
// @route GET /api/users/me
func (uc *UserController) GetProfile(c *gin.Context) {
	user, ratings, err := uc.userService.GetProfile(c.GetUint("user_id"))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.Success(c, gin.H{"user": user, "ratings": ratings})
}

// UpdateProfile 更新个人资料
// @route PATCH /api/users/me
func (uc *UserController) UpdateProfile(c *gin.Context) {
	var req services.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ValidationError(c, err)
		return
	}

	user, err := uc.userService.UpdateProfile(c.GetUint("user_id"), &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.Success(c, user)
}

// UpgradeToSeller 管理员升级用户为卖家
// @route POST /api/users/:id/upgrade
func (uc *UserController) UpgradeToSeller(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := uc.userService.UpgradeToSeller(userID); err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.Success(c, nil)
}
