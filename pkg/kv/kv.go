package kv

import (
	"context"
	"fmt"
	"time"

	"im-server/config"

	"github.com/redis/go-redis/v9"
)

var client *redis.Client

// InitKV 初始化Redis连接
func InitKV(cfg config.RedisConfig) error {
	client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		// 连接池配置
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	// 测试连接
	if _, err := client.Ping(context.Background()).Result(); err != nil {
		return fmt.Errorf("redis连接失败: %w", err)
	}

	return nil
}

// Client 获取Redis客户端
func Client() *redis.Client {
	return client
}

// Close 关闭Redis连接
func Close() error {
	if client != nil {
		return client.Close()
	}
	return nil
}

// HealthCheck 检查Redis健康状态
func HealthCheck() error {
	if client == nil {
		return fmt.Errorf("redis客户端未初始化")
	}

	if _, err := client.Ping(context.Background()).Result(); err != nil {
		return fmt.Errorf("redis连接异常: %w", err)
	}

	return nil
}
