package controllers

import (
	"strings"

	"aucmart_go/services"
	"aucmart_go/utils"

	"github.com/gin-gonic/gin"
)

// AuthController 认证控制器
type AuthController struct {
	authService *services.AuthService
}

// NewAuthController 创建认证控制器实例
func NewAuthController(authService *services.AuthService) *AuthController {
	return &AuthController{authService: authService}
}

// Register 用户注册
// @route POST /api/auth/register
func (ac *AuthController) Register(c *gin.Context) {
	var req services.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ValidationError(c, err)
		return
	}

	user, err := ac.authService.Register(&req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.SuccessWithMessage(c, "注册成功，请查收激活邮件", user)
}

// Activate 激活账号
// @route POST /api/auth/activate
func (ac *AuthController) Activate(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
		Code  string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ValidationError(c, err)
		return
	}

	if err := ac.authService.Activate(req.Email, req.Code); err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.SuccessWithMessage(c, "激活成功", nil)
}

// Login 用户登录
// @route POST /api/auth/login
func (ac *AuthController) Login(c *gin.Context) {
	var req services.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ValidationError(c, err)
		return
	}

	resp, err := ac.authService.Login(&req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.Success(c, resp)
}

// RefreshToken 刷新token
// @route POST /api/auth/refresh
func (ac *AuthController) RefreshToken(c *gin.Context) {
	authHeader := c.GetHeader("Authorization")
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == "" || tokenString == authHeader {
		utils.Unauthorized(c, "")
		return
	}

	token, err := ac.authService.RefreshToken(tokenString)
	if err != nil {
		utils.Unauthorized(c, "token刷新失败")
		return
	}
	utils.Success(c, gin.H{"token": token})
}
