package config

import (
	"os"
	"strconv"
	"time"
)

// GetEnv 获取环境变量，如果不存在则返回默认值
func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// GetEnvInt 获取环境变量（整型）
func GetEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// GetEnvBool 获取环境变量（布尔型）
func GetEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// ==================== 拍卖参数 ====================

// AuctionConfig 拍卖引擎参数
type AuctionConfig struct {
	// TrustThreshold 信誉分准入阈值：有评价记录且低于该分数的用户不能出价
	TrustThreshold int
	// DefaultPoint 新用户初始信誉分
	DefaultPoint int
	// AutoRenewWindow 截止前多长时间内的有效出价会触发自动延时
	AutoRenewWindow time.Duration
	// AutoRenewExtend 每次自动延时的时长
	AutoRenewExtend time.Duration
	// BidMaxRetries 事务冲突的最大重试次数，超过后返回繁忙错误
	BidMaxRetries int
}

// GetAuctionConfig 获取拍卖引擎参数
func GetAuctionConfig() *AuctionConfig {
	return &AuctionConfig{
		TrustThreshold:  GetEnvInt("AUCTION_TRUST_THRESHOLD", 80),
		DefaultPoint:    GetEnvInt("AUCTION_DEFAULT_POINT", 10),
		AutoRenewWindow: time.Duration(GetEnvInt("AUCTION_RENEW_WINDOW_SEC", 300)) * time.Second,
		AutoRenewExtend: time.Duration(GetEnvInt("AUCTION_RENEW_EXTEND_SEC", 600)) * time.Second,
		BidMaxRetries:   GetEnvInt("AUCTION_BID_MAX_RETRIES", 3),
	}
}

// WebsiteURL 前端地址（邮件里的跳转链接）
func WebsiteURL() string {
	return GetEnv("WEBSITE_URL", "http://localhost:3000")
}
