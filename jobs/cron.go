package jobs

import (
	"aucmart_go/middleware"
	"aucmart_go/services"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler 定时任务调度器
//
// 每分钟结算到期的拍卖，每日检查卖家信誉。任务执行是幂等的：
// 清扫与并发的一口价出价竞争同一个结束门，同一商品只会结算一次。
type Scheduler struct {
	cron           *cron.Cron
	productService *services.ProductService
	userService    *services.UserService
}

// NewScheduler 创建调度器实例
func NewScheduler(productService *services.ProductService, userService *services.UserService) *Scheduler {
	return &Scheduler{
		cron:           cron.New(),
		productService: productService,
		userService:    userService,
	}
}

// Start 注册并启动定时任务
func (s *Scheduler) Start() error {
	// 每分钟结算到期拍卖
	if _, err := s.cron.AddFunc("* * * * *", s.sweepExpired); err != nil {
		return err
	}
	// 每日降级信誉不达标的卖家
	if _, err := s.cron.AddFunc("@daily", s.downgradeSellers); err != nil {
		return err
	}

	s.cron.Start()
	middleware.InfoLogger("✅ Cron scheduler started")
	return nil
}

// Stop 停止调度器，等待运行中的任务结束
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) sweepExpired() {
	finalized, err := s.productService.SweepExpiredAuctions()
	if err != nil {
		middleware.ErrorLogger("auction sweep failed", zap.Error(err))
		return
	}
	if finalized > 0 {
		middleware.InfoLogger("auction sweep finished", zap.Int("finalized", finalized))
	}
}

func (s *Scheduler) downgradeSellers() {
	downgraded, err := s.userService.DowngradeSellers()
	if err != nil {
		middleware.ErrorLogger("seller downgrade failed", zap.Error(err))
		return
	}
	if downgraded > 0 {
		middleware.InfoLogger("seller downgrade finished", zap.Int("downgraded", downgraded))
	}
}
