package main

import (
	"context"
	"fmt"
	"log"
	"os"

	apirest "github.com/cygirat-cmd/kiki-server/api/rest"
	"github.com/cygirat-cmd/kiki-server/audit"
	"github.com/cygirat-cmd/kiki-server/cache"
	"github.com/cygirat-cmd/kiki-server/catalog"
	"github.com/cygirat-cmd/kiki-server/config"
	dbadapter "github.com/cygirat-cmd/kiki-server/db"
	"github.com/cygirat-cmd/kiki-server/equipsync"
	"github.com/cygirat-cmd/kiki-server/identity"
	mw "github.com/cygirat-cmd/kiki-server/middleware"
	"github.com/cygirat-cmd/kiki-server/migration"
	"github.com/cygirat-cmd/kiki-server/model"
	"github.com/cygirat-cmd/kiki-server/profile"
	"github.com/cygirat-cmd/kiki-server/scheduler"
	"github.com/cygirat-cmd/kiki-server/session"
	"github.com/cygirat-cmd/kiki-server/store"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	if cfg.Security.JWTSecret == "" || cfg.Security.ReceiptSecret == "" {
		log.Fatal("security.jwt_secret and security.receipt_secret must be set")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized")

	// ---- Audit ----
	auditSvc := audit.New(db, logger)
	defer auditSvc.Stop(context.Background())

	// ---- Cache / PubSub ----
	cacheConfig := cache.Config{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
	}
	c, err := cache.New(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized")

	// ---- Item Catalog ----
	cat := catalog.NewCatalog(cfg.Catalog.Path)
	if err := cat.Load(); err != nil {
		logger.Warn("catalog load warning", zap.Error(err))
	} else {
		logger.Info("catalog loaded", zap.Int("items", cat.Count()))
	}

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()

	// ---- Stores / Services ----
	svc := store.New(db, logger)
	guests := session.NewGuestStore(c, logger)
	account := session.NewAccountStore(svc, cat, logger)
	profiles := profile.NewSyncer(c, svc, logger)
	coord := migration.New(guests, account, svc, profiles, cfg.Security.ReceiptSecret, logger)
	syncAdapter := equipsync.New(guests, account)

	checker := identity.NewCacheChecker(c, cfg.Security.JWTSecret)
	idProvider := identity.NewProvider(checker, cfg.Session.BootstrapTimeout, logger)

	// ---- Migration Watcher ----
	watcher := migration.NewWatcher(coord, pubsub, logger)
	if err := watcher.Start(context.Background()); err != nil {
		log.Fatalf("migration watcher: %v", err)
	}
	defer watcher.Stop()

	// ---- Periodic Scheduler Tasks ----
	sched.AddTicker("receipt_prune", cfg.Session.PruneInterval, func(ctx context.Context) {
		removed, err := guests.PruneReceipts(ctx, cfg.Session.ReceiptMaxAge)
		if err != nil {
			logger.Warn("receipt prune failed", zap.Error(err))
			return
		}
		if removed > 0 {
			logger.Info("pruned stale guest receipts", zap.Int("removed", removed))
		}
	})

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	// Health check
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	// ---- REST API routes ----
	authH := apirest.NewAuthHandler(db, c, pubsub, account, cfg.Security, logger)
	bootH := apirest.NewBootstrapHandler(idProvider, guests, logger)
	guestH := apirest.NewGuestHandler(guests, logger)
	gearH := apirest.NewGearHandler(account, syncAdapter, logger)
	shopH := apirest.NewShopHandler(account, cat, auditSvc, logger)
	outfitH := apirest.NewOutfitHandler(account, logger)
	rewardsH := apirest.NewRewardsHandler(svc, account, cat, auditSvc, cfg.Security, logger)
	migH := apirest.NewMigrationHandler(coord, auditSvc, logger)
	profileH := apirest.NewProfileHandler(profiles, logger)

	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/register", mw.Device(), authH.Register)
		authG.POST("/login", mw.Device(), authH.Login)
		authG.POST("/logout", mw.Auth(cfg.Security, c), authH.Logout)
		authG.POST("/refresh", mw.Auth(cfg.Security, c), authH.Refresh)

		api.POST("/session/bootstrap", mw.Device(), bootH.Bootstrap)

		guestG := api.Group("/guest")
		guestG.Use(mw.Device())
		guestG.POST("/init", guestH.Init)
		guestG.GET("/state", guestH.State)
		guestG.POST("/items", guestH.AddItem)
		guestG.DELETE("/items/:id", guestH.RemoveItem)
		guestG.POST("/favorites", guestH.ToggleFavorite)
		guestG.PUT("/equipment", guestH.Equip)
		guestG.POST("/cart", guestH.AddToCart)
		guestG.DELETE("/cart/:id", guestH.RemoveFromCart)
		guestG.POST("/receipts", guestH.QueueReceipt)
		guestG.GET("/receipts", guestH.Receipts)

		gearG := api.Group("/gear")
		gearG.Use(mw.Auth(cfg.Security, c))
		gearG.GET("", gearH.Collection)
		gearG.POST("/favorites", gearH.ToggleFavorite)
		gearG.PUT("/equipment", gearH.Equip)

		// The frame endpoint serves both modes; a valid token selects
		// the account projection, everyone else gets the guest one.
		api.GET("/gear/frame", mw.Device(), mw.OptionalAuth(cfg.Security, c), gearH.Frame)

		shopG := api.Group("/shop")
		shopG.GET("/items/:id", shopH.Item)
		shopG.POST("/purchase", mw.Auth(cfg.Security, c), shopH.Purchase)

		outfitG := api.Group("/outfits")
		outfitG.Use(mw.Auth(cfg.Security, c))
		outfitG.GET("", outfitH.List)
		outfitG.POST("", outfitH.Save)
		outfitG.POST("/:id/apply", outfitH.Load)
		outfitG.DELETE("/:id", outfitH.Delete)

		rewardsG := api.Group("/rewards")
		rewardsG.POST("/issue", mw.Device(), rewardsH.Issue)
		rewardsG.POST("/redeem", mw.Auth(cfg.Security, c), rewardsH.Redeem)

		migG := api.Group("/migration")
		migG.Use(mw.Device())
		migG.GET("/status", migH.Status)
		migG.POST("/run", mw.Auth(cfg.Security, c), migH.Run)

		profileG := api.Group("/profile")
		profileG.PUT("/local", mw.Device(), profileH.SaveLocal)
		profileG.POST("/sync", mw.Device(), mw.Auth(cfg.Security, c), profileH.Sync)
		profileG.GET("", mw.Auth(cfg.Security, c), profileH.Fetch)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Server listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
