package main

import (
	"log"

	"aucmart_go/config"
	"aucmart_go/jobs"
	"aucmart_go/middleware"
	"aucmart_go/models"
	"aucmart_go/routes"
	"aucmart_go/services"
	"aucmart_go/utils"
	"aucmart_go/websocket"

	"github.com/joho/godotenv"
)

func main() {
	// 加载环境变量
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, using system environment variables")
	}

	// 初始化日志系统
	if err := middleware.InitLogger(config.GetEnv("GIN_MODE", "debug")); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer middleware.FlushLogger()

	// 初始化数据库
	if err := config.InitDatabase(); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer config.CloseDatabase()

	// 数据库迁移
	if err := config.DB.AutoMigrate(
		&models.User{},
		&models.Category{},
		&models.Product{},
		&models.Bid{},
		&models.AuctionMember{},
		&models.Rating{},
		&models.Favorite{},
	); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	log.Println("✅ Database migrated successfully")

	// 初始化Redis（缓存、跨实例广播、访问日志流）
	if config.GetServerConfig().RedisEnabled {
		if err := config.InitializeRedis(); err != nil {
			log.Printf("⚠️  Redis unavailable, running without cache: %v", err)
		} else {
			defer config.CloseRedis()
		}
	}

	// 注册自定义验证器
	if err := utils.RegisterCustomValidators(); err != nil {
		log.Fatalf("Failed to register validators: %v", err)
	}

	// WebSocket连接中心（同时充当实时通知端口）
	hub := websocket.NewHub()
	hub.Start()
	defer hub.Close()

	// 服务层
	mailer := services.NewEmailService()
	productService := services.NewProductService(hub, mailer)
	authService := services.NewAuthService(mailer)
	userService := services.NewUserService(hub)
	categoryService := services.NewCategoryService()

	// 定时任务：每分钟结算到期拍卖，每日检查卖家信誉
	scheduler := jobs.NewScheduler(productService, userService)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	defer scheduler.Stop()

	// 路由
	r := config.SetupRouter()
	routes.SetupRoutes(r, hub, productService, authService, userService, categoryService)

	// 启动服务器
	if err := config.StartServer(r); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
