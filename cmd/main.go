package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ChipClash/config"
	"ChipClash/internal/advisor"
	"ChipClash/internal/auth"
	"ChipClash/internal/events"
	"ChipClash/internal/game/engine"
	"ChipClash/internal/game/manager"
	"ChipClash/internal/matchmaker"
	"ChipClash/internal/middleware"
	"ChipClash/internal/storage"
	"ChipClash/internal/utils"
	"ChipClash/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := config.Load("config/config.yaml"); err != nil {
		utils.Print.Fatal("config load failed", "err", err)
	}
	utils.Init(os.Stderr, config.C.Server.LogLevel)
	logger := utils.Named("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//-------------------------------------------------------
	// 1. 初始化存储
	//-------------------------------------------------------
	store, rdb := openStore(ctx)

	//-------------------------------------------------------
	// 2. 事件流与 AI 顾问
	//-------------------------------------------------------
	var pub events.Publisher = events.LogPublisher{}
	if config.C.NATS.URL != "" {
		cfg := events.DefaultJetStreamConfig()
		cfg.URL = config.C.NATS.URL
		cfg.StreamName = config.C.NATS.Stream
		cfg.SubjectPrefix = config.C.NATS.SubjectPrefix
		js, err := events.NewJetStreamPublisher(ctx, cfg)
		if err != nil {
			logger.Fatal("JetStream init failed", "err", err)
		}
		pub = js
	}
	defer pub.Close()

	var adv advisor.Advisor = advisor.Static{}
	if config.C.OpenAI.APIKey != "" {
		adv = advisor.NewOpenAI(advisor.OpenAIConfig{
			APIKey:     config.C.OpenAI.APIKey,
			Model:      config.C.OpenAI.Model,
			ImageModel: config.C.OpenAI.ImageModel,
		})
	}

	//-------------------------------------------------------
	// 3. 初始化 Hub（必须最先启动）
	//-------------------------------------------------------
	hub := websocket.NewHub()
	go hub.Run()
	defer hub.Close()

	//-------------------------------------------------------
	// 4. 初始化 GameManager（用来启动 Engine）
	//-------------------------------------------------------
	gameMgr := manager.NewGameManager(store, hub, engine.Options{
		EvaluateDelay: config.C.Game.EvaluateDelay,
		MaxRetries:    config.C.Game.MaxRetries,
		MaxAdvice:     config.C.Game.MaxAdvice,
		Publisher:     pub,
		Advisor:       adv,
	})
	defer gameMgr.Close()
	hub.OnIncoming = gameMgr.HandleTeamMessage

	if n, err := gameMgr.Resume(ctx); err != nil {
		logger.Error("resume rooms failed", "err", err)
	} else if n > 0 {
		logger.Info("rooms resumed", "count", n)
	}
	if err := gameMgr.Watch(ctx); err != nil {
		logger.Fatal("watch store failed", "err", err)
	}

	//-------------------------------------------------------
	// 5. 初始化匹配系统 Matchmaker
	//-------------------------------------------------------
	issuer := auth.NewIssuer(config.C.JWT.Secret, config.C.JWT.TTL)

	repo := matchmaker.NewMemoryRepo()
	if rdb != nil {
		repo = matchmaker.NewRedisRepo(rdb)
	}
	svc := matchmaker.NewService(repo, config.C.Matchmaker.TTLSeconds, store, issuer, config.C.Game.StartingWinnings)
	// 成桌回调：让 GameManager 接手并启动 Engine
	svc.OnRoomReady = gameMgr.OnRoomReady

	//-------------------------------------------------------
	// 6. 初始化 Gin + CORS
	//-------------------------------------------------------
	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", matchmaker.SecretHeader},
		AllowCredentials: true,
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	ah := auth.NewHandler(issuer, config.C.Admin.Secret)
	r.POST("/auth/admin", ah.Admin)

	// 队伍在成桌前还没有 token
	mh := matchmaker.NewHandler(svc)
	r.POST("/match/join", mh.Join)
	r.GET("/match/status/:team", mh.Status)
	r.POST("/match/cancel", mh.Cancel)

	authed := r.Group("/", middleware.JwtAuthMiddleware(issuer))
	{
		authed.POST("/auth/refresh", ah.Refresh)
		authed.GET("/ws", websocket.ServeWS(hub))
		manager.NewHandler(gameMgr).Register(authed)
	}

	//-------------------------------------------------------
	// 7. 启动服务器
	//-------------------------------------------------------
	srv := &http.Server{Addr: config.C.Server.Port, Handler: r}
	go func() {
		logger.Info("Server running", "addr", config.C.Server.Port, "store", config.C.Store.Backend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", "err", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "err", err)
	}
}

// openStore picks the room store backend. The Redis client is returned too
// so the matchmaker can share it.
func openStore(ctx context.Context) (storage.RoomStore, *redis.Client) {
	logger := utils.Named("main")
	switch config.C.Store.Backend {
	case "redis":
		rdb, err := storage.InitRedis(ctx, config.C.Redis.Addr, config.C.Redis.Password, config.C.Redis.DB)
		if err != nil {
			logger.Fatal("Redis init failed", "err", err)
		}
		return storage.NewRedisRoomStore(rdb), rdb
	case "postgres":
		db, err := storage.InitPostgres(ctx, config.C.Database.DSN)
		if err != nil {
			logger.Fatal("Postgres init failed", "err", err)
		}
		store, err := storage.NewPostgresRoomStore(ctx, db, config.C.Database.DSN)
		if err != nil {
			logger.Fatal("Postgres store failed", "err", err)
		}
		return store, nil
	case "sqlite":
		db, err := storage.OpenSQLite(config.C.SQLite.Path)
		if err != nil {
			logger.Fatal("SQLite open failed", "err", err)
		}
		store, err := storage.NewSQLRoomStore(ctx, db, storage.SQLite)
		if err != nil {
			logger.Fatal("SQLite store failed", "err", err)
		}
		return store, nil
	default:
		return storage.NewMemoryRoomStore(), nil
	}
}
