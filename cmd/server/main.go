package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"im-server/config"
	"im-server/internal/admin"
	"im-server/internal/delivery"
	"im-server/internal/fanout"
	"im-server/internal/file"
	"im-server/internal/handler"
	"im-server/internal/model"
	"im-server/internal/offline"
	"im-server/internal/presence"
	"im-server/internal/relation"
	"im-server/internal/repository"
	"im-server/internal/session"
	"im-server/internal/user"
	"im-server/internal/ws"
	dbPkg "im-server/pkg/db"
	"im-server/pkg/eventbus"
	"im-server/pkg/jwt"
	"im-server/pkg/kv"
	"im-server/pkg/logger"
	"im-server/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	flagConfig   string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "im-server",
	Short: "IM服务：会话、投递与事件分发",
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVar(&flagConfig, "config", "config/config.yaml", "配置文件路径")
	rootCmd.Flags().StringVar(&flagLogLevel, "log-level", "", "日志级别(trace|debug|info|warn|error|critical|off)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	// 1. 加载配置，命令行日志级别优先于配置文件
	cfg := config.LoadConfig(flagConfig)
	if flagLogLevel != "" {
		cfg.Log.Level = flagLogLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	holder := config.NewHolder(cfg)

	// 2. 初始化日志系统
	log := logger.InitLogger(cfg.Log)
	defer log.Sync()

	log.Info("=== IM服务启动 ===")
	log.Info("服务器配置信息",
		zap.String("port", cfg.Server.Port),
		zap.String("database_host", cfg.Database.Host),
		zap.String("redis_host", cfg.Redis.Host),
		zap.Strings("kafka_brokers", cfg.Kafka.Brokers),
		zap.Duration("jwt_expire_time", cfg.JWT.ExpireTime),
		zap.String("log_level", cfg.Log.Level),
	)

	// 3. 初始化数据库连接
	if _, err := dbPkg.InitDB(cfg.Database); err != nil {
		log.Fatal("数据库连接失败", zap.Error(err))
	}
	defer func() {
		if err := dbPkg.CloseDB(); err != nil {
			log.Error("关闭数据库连接失败", zap.Error(err))
		}
	}()
	log.Info("数据库连接成功")

	// 3.1 自动迁移表结构
	if err := dbPkg.AutoMigrate(
		&model.User{}, &model.UserSettings{}, &model.LoginLog{}, &model.ApprovalLog{},
		&model.Message{}, &model.Notification{}, &model.SystemAnnouncement{},
		&model.FriendRelation{}, &model.FriendRequest{}, &model.Group{}, &model.GroupMember{},
		&model.File{}, &model.FileTransferRequest{},
	); err != nil {
		log.Fatal("自动迁移失败", zap.Error(err))
	}
	log.Info("自动迁移完成")

	// 4. 初始化Redis
	if err := kv.InitKV(cfg.Redis); err != nil {
		log.Fatal("Redis连接失败", zap.Error(err))
	}
	defer kv.Close()
	log.Info("Redis连接成功")

	// 5. 初始化事件总线生产者
	producer := eventbus.NewProducer(cfg.Kafka, log)
	defer producer.Close()

	// 6. 装配组件
	db := dbPkg.GetDB()
	userRepo := repository.NewUserRepository(db)
	msgRepo := repository.NewMessageRepository(db)
	relationRepo := repository.NewRelationRepository(db)
	fileRepo := repository.NewFileRepository(db)
	notifRepo := repository.NewNotificationRepository(db)

	jwtSvc := jwt.NewJWTService(cfg.JWT)
	presenceSvc := presence.NewService(nil, producer, userRepo, cfg.Presence, log)
	registry := session.NewRegistry(cfg.WebSocket, presenceSvc, log)
	presenceSvc.BindLive(registry)

	offlineStore := offline.NewStore(cfg.Offline, log)
	relationSvc := relation.NewService(relationRepo, userRepo, producer, log)
	engine := delivery.NewEngine(msgRepo, userRepo, relationSvc, registry, offlineStore, producer, cfg.Message, log)
	router := fanout.NewRouter(registry, relationSvc, offlineStore, notifRepo, log)
	userSvc := user.NewService(userRepo, jwtSvc, log)
	fileSvc := file.NewService(fileRepo, userRepo, producer, log)
	adminSvc := admin.NewService(registry)

	wsHandler := ws.NewHandler(registry, engine, presenceSvc, offlineStore, userRepo, jwtSvc, producer, cfg.WebSocket, log)

	// 7. 后台循环：会话清扫与事件消费，支持管理接口重启
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	sweeper := newRestartable(bgCtx, func(ctx context.Context) {
		registry.Run(ctx)
	})
	adminSvc.RegisterRestart("sweeper", sweeper.restart)

	consumerLoop := newRestartable(bgCtx, func(ctx context.Context) {
		consumer := eventbus.NewConsumer(cfg.Kafka, cfg.Kafka.GroupID, router.Topics(), log)
		defer consumer.Close()
		consumer.Run(ctx, router.Handle)
	})
	adminSvc.RegisterRestart("consumer", consumerLoop.restart)

	// 8. 路由
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	engineGin := gin.New()
	engineGin.Use(logger.LoggerMiddleware())
	engineGin.Use(logger.ErrorLoggerMiddleware())

	setupRoutes(engineGin, holder, jwtSvc, wsHandler,
		handler.NewUserHandler(userSvc),
		handler.NewMessageHandler(engine, offlineStore),
		handler.NewRelationHandler(relationSvc),
		handler.NewFileHandler(fileSvc),
		handler.NewNotificationHandler(registry, notifRepo),
		handler.NewAdminHandler(adminSvc),
	)

	// 9. 启动HTTP服务器
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engineGin,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP服务器启动", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP服务器启动失败", zap.Error(err))
		}
	}()

	// 10. 优雅关闭：停止接入→排空在途请求→关闭会话与后台循环
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("正在关闭服务器...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP服务器关闭失败", zap.Error(err))
	}

	bgCancel()
	registry.Shutdown()

	log.Info("服务器已安全关闭")
	return nil
}

// setupRoutes 注册全部路由
func setupRoutes(
	r *gin.Engine,
	holder *config.Holder,
	jwtSvc *jwt.JWTService,
	wsHandler *ws.Handler,
	userHandler *handler.UserHandler,
	messageHandler *handler.MessageHandler,
	relationHandler *handler.RelationHandler,
	fileHandler *handler.FileHandler,
	notificationHandler *handler.NotificationHandler,
	adminHandler *handler.AdminHandler,
) {
	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		status := "ok"
		if err := dbPkg.HealthCheck(); err != nil {
			status = "db-down"
		} else if err := kv.HealthCheck(); err != nil {
			status = "redis-down"
		}
		response.Success(c, gin.H{
			"status": status,
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// 配置信息（系统状态监控）
	r.GET("/config", func(c *gin.Context) {
		cfg := holder.Load()
		response.Success(c, gin.H{
			"server": gin.H{
				"port": cfg.Server.Port,
			},
			"database": gin.H{
				"host":     cfg.Database.Host,
				"port":     cfg.Database.Port,
				"database": cfg.Database.Database,
				"driver":   cfg.Database.Driver,
			},
			"kafka": gin.H{
				"brokers":  cfg.Kafka.Brokers,
				"group_id": cfg.Kafka.GroupID,
			},
			"websocket": gin.H{
				"sweepInterval": cfg.WebSocket.SweepInterval.String(),
				"zombieAfter":   cfg.WebSocket.ZombieAfter.String(),
				"expireAfter":   cfg.WebSocket.ExpireAfter.String(),
			},
			"log": gin.H{
				"level":    cfg.Log.Level,
				"filename": cfg.Log.Filename,
			},
		})
	})

	// WebSocket入口
	r.GET("/ws", wsHandler.Serve)

	v1 := r.Group("/api/v1")
	{
		users := v1.Group("/users")
		{
			// 公开接口（无需认证）
			users.POST("/register", userHandler.Register)
			users.POST("/login", userHandler.Login)
			users.POST("/verification-code", userHandler.SendVerificationCode)
			users.POST("/verify", userHandler.VerifyCode)

			// 需要认证的接口
			authUsers := users.Group("")
			authUsers.Use(jwtSvc.AuthMiddleware())
			{
				authUsers.GET("/profile", userHandler.GetProfile)
				authUsers.PUT("/profile", userHandler.UpdateProfile)
				authUsers.GET("/settings", userHandler.GetSettings)
				authUsers.PUT("/settings", userHandler.UpdateSettings)
			}
		}

		// 消息路由（需要认证）
		messages := v1.Group("/messages")
		messages.Use(jwtSvc.AuthMiddleware())
		{
			messages.POST("/send", messageHandler.Send)
			messages.GET("/offline", messageHandler.GetOffline)
			messages.PUT("/:message_id/read", messageHandler.MarkAsRead)
		}

		// 会话历史（需要认证）
		conversations := v1.Group("/conversations")
		conversations.Use(jwtSvc.AuthMiddleware())
		{
			conversations.GET("/:user_id/messages", messageHandler.GetPrivateHistory)
		}
		groups := v1.Group("/groups")
		groups.Use(jwtSvc.AuthMiddleware())
		{
			groups.GET("/:group_id/messages", messageHandler.GetGroupHistory)
		}

		// 好友关系路由（需要认证）
		friends := v1.Group("/friends")
		friends.Use(jwtSvc.AuthMiddleware())
		{
			friends.POST("/requests", relationHandler.AddFriend)
			friends.PUT("/requests/:request_id", relationHandler.HandleRequest)
			friends.GET("/requests/pending", relationHandler.ListPending)
			friends.GET("", relationHandler.ListFriends)
			friends.DELETE("/:friend_id", relationHandler.DeleteFriend)
		}

		// 文件路由（需要认证）
		files := v1.Group("/files")
		files.Use(jwtSvc.AuthMiddleware())
		{
			files.POST("/uploads", fileHandler.InitUpload)
			files.POST("/uploads/:file_id/chunks", fileHandler.UploadChunk)
			files.GET("/:file_id/download", fileHandler.InitDownload)
			files.POST("/transfers", fileHandler.SendTransferRequest)
			files.PUT("/transfers/:request_id", fileHandler.HandleTransferRequest)
		}

		// 通知路由（需要认证）
		notifications := v1.Group("/notifications")
		notifications.Use(jwtSvc.AuthMiddleware())
		{
			notifications.GET("/subscribe", notificationHandler.Subscribe)
			notifications.GET("", notificationHandler.List)
			notifications.PUT("/:notification_id/read", notificationHandler.MarkRead)
		}

		// 管理路由（需要管理员角色）
		adminGroup := v1.Group("/admin")
		adminGroup.Use(jwtSvc.AuthMiddleware(), jwtSvc.AdminMiddleware())
		{
			adminGroup.GET("/status", adminHandler.Status)
			adminGroup.GET("/subservices", adminHandler.Subservices)
			adminGroup.POST("/subservices/:name/restart", adminHandler.Restart)
			adminGroup.POST("/users/:user_id/approve", userHandler.Approve)
		}
	}
}

// restartable 可重启的后台循环
// 重启即取消当前循环的ctx并以父ctx派生新的ctx重新拉起
type restartable struct {
	parent context.Context
	loop   func(ctx context.Context)

	mu     sync.Mutex
	cancel context.CancelFunc
}

func newRestartable(parent context.Context, loop func(ctx context.Context)) *restartable {
	r := &restartable{parent: parent, loop: loop}
	r.start()
	return r
}

func (r *restartable) start() {
	ctx, cancel := context.WithCancel(r.parent)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	go r.loop(ctx)
}

func (r *restartable) restart() error {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	cancel()
	r.start()
	return nil
}
