package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"aucmart_go/config"
	"aucmart_go/middleware"

	"go.uber.org/zap"
)

// 邮件模板ID（对应邮件服务商后台配置的模板）
const (
	TemplateNewBid     = 1 // 有新出价
	TemplateAuctionEnd = 2 // 拍卖结束
	TemplateNoBid      = 3 // 流拍/被拒绝
	TemplateActivation = 4 // 账号激活
)

// Mailer 邮件端口
//
// 发送失败只记录日志，绝不传播给竞拍调用方。
type Mailer interface {
	SendTemplate(email, name string, templateID int, params map[string]interface{})
}

// EmailService 邮件服务（Sendinblue兼容的模板邮件API）
type EmailService struct {
	apiURL     string
	apiKey     string
	httpClient *http.Client
}

// NewEmailService 创建邮件服务实例
func NewEmailService() *EmailService {
	return &EmailService{
		apiURL: config.GetEnv("EMAIL_API_URL", "https://api.sendinblue.com/v3/smtp/email"),
		apiKey: config.GetEnv("EMAIL_API_KEY", ""),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// sendRequest 模板邮件请求体
type sendRequest struct {
	TemplateID int                    `json:"templateId"`
	Params     map[string]interface{} `json:"params"`
	To         []recipient            `json:"to"`
}

type recipient struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// SendTemplate 发送模板邮件（尽力而为，失败只记日志）
func (es *EmailService) SendTemplate(email, name string, templateID int, params map[string]interface{}) {
	if es.apiKey == "" {
		middleware.DebugLogger("email api key not configured, skipping email",
			zap.String("recipient", email), zap.Int("template_id", templateID))
		return
	}

	body, err := json.Marshal(sendRequest{
		TemplateID: templateID,
		Params:     params,
		To:         []recipient{{Email: email, Name: name}},
	})
	if err != nil {
		middleware.ErrorLogger("failed to marshal email request", zap.Error(err))
		return
	}

	req, err := http.NewRequest(http.MethodPost, es.apiURL, bytes.NewReader(body))
	if err != nil {
		middleware.ErrorLogger("failed to build email request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", es.apiKey)

	resp, err := es.httpClient.Do(req)
	if err != nil {
		middleware.ErrorLogger("failed to send email", zap.String("recipient", email), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		middleware.ErrorLogger("email api returned error",
			zap.String("recipient", email),
			zap.Int("template_id", templateID),
			zap.Int("status_code", resp.StatusCode))
	}
}

// NopMailer 空实现（测试用）
type NopMailer struct{}

func (NopMailer) SendTemplate(email, name string, templateID int, params map[string]interface{}) {}

// FormatPrice 金额格式化（千分位）
func FormatPrice(price int64) string {
	s := fmt.Sprintf("%d", price)
	if len(s) <= 3 {
		return s + " ₫"
	}
	var out []byte
	pre := len(s) % 3
	if pre > 0 {
		out = append(out, s[:pre]...)
	}
	for i := pre; i < len(s); i += 3 {
		if len(out) > 0 {
			out = append(out, ',')
		}
		out = append(out, s[i:i+3]...)
	}
	return string(out) + " ₫"
}
