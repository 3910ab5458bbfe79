package app

import (
	"Gin_postgres_redis_library/config"

	"go.uber.org/zap"
)

// NewLogger 生产环境输出 JSON，开发环境输出彩色文本
func NewLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.Production() {
		return zap.NewProduction()
	}
	zc := zap.NewDevelopmentConfig()
	zc.DisableStacktrace = true
	return zc.Build()
}
