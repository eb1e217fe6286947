package services

import (
	"errors"
	"fmt"

	"aucmart_go/aucerrors"
	"aucmart_go/config"
	"aucmart_go/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// AuthService 认证服务
type AuthService struct {
	cfg    *config.AuctionConfig
	mailer Mailer
}

// NewAuthService 创建认证服务实例
func NewAuthService(mailer Mailer) *AuthService {
	return &AuthService{
		cfg:    config.GetAuctionConfig(),
		mailer: mailer,
	}
}

// RegisterRequest 注册请求
type RegisterRequest struct {
	Email       string `json:"email" binding:"required,email,max=100"`
	FullName    string `json:"full_name" binding:"required,max=100"`
	Address     string `json:"address" binding:"max=255"`
	Password    string `json:"password" binding:"required,min=8,max=72"`
	AccountType string `json:"account_type" binding:"omitempty,oneof=bidder seller"`
}

// Register 用户注册
// 未指定账户类型时默认为竞拍者，信誉分取初始值，需邮件激活后才能登录
func (as *AuthService) Register(req *RegisterRequest) (*models.User, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	accountType := req.AccountType
	if accountType == "" {
		accountType = models.AccountTypeBidder
	}

	user := models.User{
		Email:          req.Email,
		FullName:       req.FullName,
		Address:        req.Address,
		Password:       string(hashed),
		Role:           models.RoleUser,
		AccountType:    accountType,
		Point:          as.cfg.DefaultPoint,
		ActivationCode: models.GenerateRandomCode(32),
	}

	err = config.DB.Transaction(func(tx *gorm.DB) error {
		var existing models.User
		err := tx.Where("email = ?", req.Email).First(&existing).Error
		if err == nil {
			return aucerrors.ErrEmailTaken
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.Create(&user).Error
	})
	if err != nil {
		return nil, err
	}

	go as.mailer.SendTemplate(user.Email, user.FullName, TemplateActivation, map[string]interface{}{
		"recipient_name": user.FullName,
		"button_url": fmt.Sprintf("%s/auth/activate?email=%s&code=%s",
			config.WebsiteURL(), user.Email, user.ActivationCode),
	})

	return &user, nil
}

// Activate 激活账号
func (as *AuthService) Activate(email, code string) error {
	var user models.User
	if err := config.DB.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return aucerrors.ErrUserNotFound
		}
		return err
	}
	if user.Activated {
		return nil
	}
	if code == "" || user.ActivationCode != code {
		return aucerrors.ErrInvalidCode
	}
	return config.DB.Model(&user).Updates(map[string]interface{}{
		"activated":       true,
		"activation_code": "",
	}).Error
}

// LoginRequest 登录请求
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse 登录响应
type LoginResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Login 用户登录
func (as *AuthService) Login(req *LoginRequest) (*LoginResponse, error) {
	var user models.User
	if err := config.DB.Where("email = ?", req.Email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, aucerrors.ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, aucerrors.ErrInvalidCredentials
	}
	if !user.Activated {
		return nil, aucerrors.ErrNotActivated
	}

	token, err := config.GetJWTService().GenerateToken(user.ID, user.FullName, user.Role, user.AccountType)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &LoginResponse{Token: token, User: &user}, nil
}

// RefreshToken 刷新即将过期的token
func (as *AuthService) RefreshToken(tokenString string) (string, error) {
	return config.GetJWTService().RefreshToken(tokenString)
}
