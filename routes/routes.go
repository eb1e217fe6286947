package routes

import (
	"aucmart_go/controllers"
	"aucmart_go/middleware"
	"aucmart_go/services"
	"aucmart_go/websocket"

	"github.com/gin-gonic/gin"
)

// SetupRoutes 注册所有路由
func SetupRoutes(r *gin.Engine, hub *websocket.Hub,
	productService *services.ProductService,
	authService *services.AuthService,
	userService *services.UserService,
	categoryService *services.CategoryService,
) {
	// 访问日志中间件
	r.Use(middleware.Logger())

	// 控制器
	productController := controllers.NewProductController(productService)
	authController := controllers.NewAuthController(authService)
	userController := controllers.NewUserController(userService)
	categoryController := controllers.NewCategoryController(categoryService)

	// WebSocket连接（游客可连，token可选）
	r.GET("/ws", hub.HandleConnection)

	api := r.Group("/api")
	{
		// ==================== 认证 ====================
		auth := api.Group("/auth")
		{
			auth.POST("/register", authController.Register)
			auth.POST("/activate", authController.Activate)
			auth.POST("/login", authController.Login)
			auth.POST("/refresh", authController.RefreshToken)
		}

		// ==================== 分类 ====================
		categories := api.Group("/categories")
		{
			categories.GET("", categoryController.GetCategories)

			adminCategories := categories.Group("")
			adminCategories.Use(middleware.AuthMiddleware(), middleware.AdminMiddleware())
			{
				adminCategories.POST("", categoryController.CreateCategory)
				adminCategories.PUT("/:id", categoryController.UpdateCategory)
				adminCategories.DELETE("/:id", categoryController.DeleteCategory)
			}
		}

		// ==================== 商品与竞拍 ====================
		products := api.Group("/products")
		{
			// 公开接口（登录用户会得到自己的资格视图）
			public := products.Group("")
			public.Use(middleware.OptionalAuthMiddleware())
			{
				public.GET("", productController.GetProducts)
				public.GET("/:id", productController.GetProduct)
				public.GET("/:id/bid-hint", productController.BidHint)
				public.GET("/:id/ratings", productController.GetRatings)
			}

			// 需要登录的接口
			authed := products.Group("")
			authed.Use(middleware.AuthMiddleware())
			{
				authed.POST("", productController.CreateProduct)
				authed.PATCH("/:id", productController.UpdateProduct)
				authed.POST("/:id/bid", productController.PlaceBid)
				authed.POST("/:id/request-bid", productController.RequestBid)
				authed.POST("/:id/approve-bid", productController.ApproveBid)
				authed.POST("/:id/deny-bid", productController.DenyBid)
				authed.POST("/:id/rating", productController.CreateRating)
				authed.POST("/:id/favorite", productController.AddFavorite)
				authed.DELETE("/:id/favorite", productController.RemoveFavorite)
			}

			// 管理员接口
			admin := products.Group("")
			admin.Use(middleware.AuthMiddleware(), middleware.AdminMiddleware())
			{
				admin.DELETE("/:id", productController.RemoveProduct)
			}
		}

		// ==================== 用户 ====================
		users := api.Group("/users")
		users.Use(middleware.AuthMiddleware())
		{
			users.GET("/me", userController.GetProfile)
			users.PATCH("/me", userController.UpdateProfile)
			users.POST("/:id/upgrade", middleware.AdminMiddleware(), userController.UpgradeToSeller)
		}
	}
}
