package services

import (
	"errors"
	"fmt"
	"time"

	"aucmart_go/aucerrors"
	"aucmart_go/config"
	"aucmart_go/middleware"
	"aucmart_go/models"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// UserService 用户服务
type UserService struct {
	cfg      *config.AuctionConfig
	notifier Notifier
}

// NewUserService 创建用户服务实例
func NewUserService(notifier Notifier) *UserService {
	return &UserService{
		cfg:      config.GetAuctionConfig(),
		notifier: notifier,
	}
}

// GetProfile 获取个人资料（附带收到的评价）
func (us *UserService) GetProfile(userID uint) (*models.User, []models.Rating, error) {
	var user models.User
	if err := config.DB.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, aucerrors.ErrUserNotFound
		}
		return nil, nil, err
	}

	var ratings []models.Rating
	if err := config.DB.
		Preload("Reviewer").
		Preload("Product").
		Where("target_id = ?", userID).
		Order("created_at DESC").
		Find(&ratings).Error; err != nil {
		return nil, nil, err
	}
	return &user, ratings, nil
}

// UpdateProfileRequest 更新个人资料请求
type UpdateProfileRequest struct {
	FullName  string     `json:"full_name" binding:"omitempty,max=100"`
	Address   string     `json:"address" binding:"omitempty,max=255"`
	Birthdate *time.Time `json:"birthdate"`
	Password  string     `json:"password" binding:"omitempty,min=8,max=72"`
}

// UpdateProfile 更新个人资料
func (us *UserService) UpdateProfile(userID uint, req *UpdateProfileRequest) (*models.User, error) {
	var user models.User
	if err := config.DB.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, aucerrors.ErrUserNotFound
		}
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.FullName != "" {
		updates["full_name"] = req.FullName
	}
	if req.Address != "" {
		updates["address"] = req.Address
	}
	if req.Birthdate != nil {
		updates["birthdate"] = req.Birthdate
	}
	if req.Password != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		updates["password"] = string(hashed)
	}
	if len(updates) == 0 {
		return &user, nil
	}
	if err := config.DB.Model(&user).Updates(updates).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// UpgradeToSeller 管理员把竞拍者升级为卖家
func (us *UserService) UpgradeToSeller(userID uint) error {
	var user models.User
	if err := config.DB.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return aucerrors.ErrUserNotFound
		}
		return err
	}
	if user.AccountType == models.AccountTypeSeller {
		return nil
	}
	if err := config.DB.Model(&user).Update("account_type", models.AccountTypeSeller).Error; err != nil {
		return err
	}
	us.notifier.PublishUser(userID, EventNotification, &Notification{
		Content:   "你的账户已升级为卖家，现在可以发布拍卖商品",
		CreatedAt: time.Now(),
	})
	return nil
}

// DowngradeSellers 降级信誉不达标的卖家（每日任务）
// 有评价记录且信誉分低于阈值的卖家被降回竞拍者，返回降级人数。
func (us *UserService) DowngradeSellers() (int, error) {
	var sellers []models.User
	if err := config.DB.
		Where("account_type = ? AND rating_count > 0 AND point < ?",
			models.AccountTypeSeller, us.cfg.TrustThreshold).
		Find(&sellers).Error; err != nil {
		return 0, fmt.Errorf("failed to query sellers: %w", err)
	}

	downgraded := 0
	for i := range sellers {
		if err := config.DB.Model(&sellers[i]).
			Update("account_type", models.AccountTypeBidder).Error; err != nil {
			middleware.ErrorLogger("failed to downgrade seller",
				zap.Uint("user_id", sellers[i].ID), zap.Error(err))
			continue
		}
		us.notifier.PublishUser(sellers[i].ID, EventNotification, &Notification{
			Content:   "由于信誉分过低，你的卖家资格已被取消",
			CreatedAt: time.Now(),
		})
		downgraded++
	}
	return downgraded, nil
}
