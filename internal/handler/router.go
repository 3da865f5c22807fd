package handler

import (
	"tokensale/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *gin.Engine {
	// 设置 gin 为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	// 创建处理器
	h := NewHandler(db, rdb, cfg)

	// API 路由组
	api := r.Group("/api/v1")
	{
		// 代币相关
		token := api.Group("/token")
		{
			token.GET("/info", h.GetTokenInfo)
			token.GET("/balance", h.GetTokenBalance)
			token.GET("/allowance", h.GetAllowance)
			token.GET("/entries", h.ListLedgerEntries)
			token.POST("/transfer", h.Transfer)
			token.POST("/transfer-from", h.TransferFrom)
			token.POST("/approve", h.Approve)
			token.POST("/increase-approval", h.IncreaseApproval)
			token.POST("/decrease-approval", h.DecreaseApproval)
			token.POST("/burn", h.Burn)
			token.POST("/set-sale", h.SetSale)
			token.POST("/enable-transfers", h.EnableTransfers)
			token.POST("/transfer-ownership", h.TransferTokenOwnership)
		}

		// 销售相关
		sale := api.Group("/sale")
		{
			sale.GET("/info", h.GetSaleInfo)
			sale.GET("/whitelist/check", h.CheckWhitelist)
			sale.GET("/contribution", h.GetContribution)
			sale.GET("/purchases", h.ListPurchases)
			sale.POST("/open", h.OpenSale)
			sale.POST("/close", h.CloseSale)
			sale.POST("/start-refunding", h.StartRefunding)
			sale.POST("/buy", h.Buy)
			sale.POST("/refund", h.WithdrawRefund)
			sale.POST("/rate", h.UpdateRate)
			sale.POST("/pause", h.PauseSale)
			sale.POST("/unpause", h.UnpauseSale)
			sale.POST("/whitelist/add", h.AddToWhitelist)
			sale.POST("/withdraw", h.OwnerWithdraw)
			sale.POST("/transfer-ownership", h.TransferSaleOwnership)
		}

		// 价值账户相关
		funds := api.Group("/funds")
		{
			funds.GET("/balance", h.GetFundsBalance)
			funds.POST("/deposit", h.Deposit)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
