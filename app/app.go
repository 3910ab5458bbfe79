package app

import (
	"context"
	"fmt"
	"time"

	"Gin_postgres_redis_library/cache"
	"Gin_postgres_redis_library/circulation"
	"Gin_postgres_redis_library/config"
	"Gin_postgres_redis_library/db"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 简化别名，便于 handlers 调用
type Ctx = gin.Context
type H = gin.H

// App 聚合各依赖
type App struct {
	Router *gin.Engine
	DB     *gorm.DB
	RDB    *redis.Client // nil 表示未启用缓存
	Config config.Config
	Log    *zap.Logger

	Engine *circulation.Engine
	Repo   *db.Repo
}

// New 组装依赖；rdb 可为 nil
func New(cfg config.Config, dbConn *gorm.DB, rdb *redis.Client, log *zap.Logger) *App {
	var bc cache.BookCache = cache.NopCache{}
	if rdb != nil {
		bc = cache.NewRedisBookCache(rdb, cfg.CacheTTL)
	}

	engine := circulation.New(dbConn, log.Named("circulation"),
		circulation.WithLoanDays(cfg.LoanDays),
		circulation.WithReservationDays(cfg.ReservationDays),
		circulation.WithCache(bc),
	)

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(RequestLogger(log.Named("http")), gin.Recovery())
	useCORS(r, cfg.WebOrigins)

	return &App{
		Router: r,
		DB:     dbConn,
		RDB:    rdb,
		Config: cfg,
		Log:    log,
		Engine: engine,
		Repo:   db.NewRepo(dbConn, bc, log.Named("repo")),
	}
}

// Open 连接数据库和（可选的）Redis
func Open(cfg config.Config, log *zap.Logger) (*gorm.DB, *redis.Client, error) {
	dbConn, err := db.ConnectDB(cfg, log)
	if err != nil {
		return nil, nil, err
	}

	if cfg.RedisAddr == "" {
		log.Info("REDIS_ADDR not set, book cache disabled")
		return dbConn, nil, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPwd, DB: 0})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	return dbConn, rdb, nil
}

func MustNew(cfg config.Config, log *zap.Logger) *App {
	dbConn, rdb, err := Open(cfg, log)
	if err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}
	return New(cfg, dbConn, rdb, log)
}

func (a *App) Close() {
	if a.RDB != nil {
		_ = a.RDB.Close()
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = a.Log.Sync()
}
