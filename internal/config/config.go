// Package config 加载服务配置
package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config 服务配置
type Config struct {
	Service  ServiceConfig  `yaml:"service" json:"service"`
	Database DatabaseConfig `yaml:"database" json:"database"`
	Redis    RedisConfig    `yaml:"redis" json:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka" json:"kafka"`
	Log      LogConfig      `yaml:"log" json:"log"`
	Payment  PaymentConfig  `yaml:"payment" json:"payment"`
	Delivery DeliveryConfig `yaml:"delivery" json:"delivery"`
	Provider ProviderConfig `yaml:"provider" json:"provider"`
	Quota    []QuotaConfig  `yaml:"quota" json:"quota"`
}

// ProviderConfig 资源提供者配置
type ProviderConfig struct {
	Endpoint   string `yaml:"endpoint" json:"endpoint"`
	TimeoutSec int    `yaml:"timeout_sec" json:"timeout_sec"`
}

// QuotaConfig 服务单元容量配置
type QuotaConfig struct {
	ServiceID string `yaml:"service_id" json:"service_id"`
	CPU       int    `yaml:"cpu" json:"cpu"`
	RamGiB    int    `yaml:"ram_gib" json:"ram_gib"`
	PublicIP  int    `yaml:"public_ip" json:"public_ip"`
	DiskGiB   int    `yaml:"disk_gib" json:"disk_gib"`
}

// ServiceConfig 服务配置
type ServiceConfig struct {
	Name     string `yaml:"name" json:"name"`
	HTTPPort int    `yaml:"http_port" json:"http_port"`
	Env      string `yaml:"env" json:"env"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host                   string `yaml:"host" json:"host"`
	Port                   int    `yaml:"port" json:"port"`
	User                   string `yaml:"user" json:"user"`
	Password               string `yaml:"password" json:"password"`
	Database               string `yaml:"database" json:"database"`
	MaxIdleConns           int    `yaml:"max_idle_conns" json:"max_idle_conns"`
	MaxOpenConns           int    `yaml:"max_open_conns" json:"max_open_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes" json:"conn_max_lifetime_minutes"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	PoolSize int    `yaml:"pool_size" json:"pool_size"`
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled" json:"enabled"`
	Brokers []string `yaml:"brokers" json:"brokers"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// PaymentConfig 支付配置
type PaymentConfig struct {
	// MaxCouponIDs 一次支付最多指定的代金券数量
	MaxCouponIDs int `yaml:"max_coupon_ids" json:"max_coupon_ids"`
}

// DeliveryConfig 资源交付配置
type DeliveryConfig struct {
	// ThrottleSec 同一资源两次交付尝试的最小间隔 (秒)
	ThrottleSec int `yaml:"throttle_sec" json:"throttle_sec"`

	// LockExpirationSec 跨实例交付互斥锁的过期时间 (秒)
	LockExpirationSec int `yaml:"lock_expiration_sec" json:"lock_expiration_sec"`
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := defaultConfig()

	// 尝试从配置文件加载
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	// 从环境变量覆盖
	loadFromEnv(cfg)

	return cfg, nil
}

// defaultConfig 返回默认配置
func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:     "broker",
			HTTPPort: 8080,
			Env:      "dev",
		},
		Database: DatabaseConfig{
			Host:                   "localhost",
			Port:                   5432,
			User:                   "postgres",
			Password:               "postgres",
			Database:               "broker",
			MaxIdleConns:           10,
			MaxOpenConns:           100,
			ConnMaxLifetimeMinutes: 30,
		},
		Redis: RedisConfig{
			Enabled:  false, // 默认不启用，单实例部署不需要分布式锁
			Host:     "localhost",
			Port:     6379,
			Password: "",
			DB:       0,
			PoolSize: 100,
		},
		Kafka: KafkaConfig{
			Enabled: false, // 默认不启用 Kafka
			Brokers: []string{"localhost:9092"},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Payment: PaymentConfig{
			MaxCouponIDs: 5,
		},
		Delivery: DeliveryConfig{
			ThrottleSec:       60,
			LockExpirationSec: 300,
		},
		Provider: ProviderConfig{
			Endpoint:   "http://localhost:8800",
			TimeoutSec: 30,
		},
	}
}

// loadFromEnv 从环境变量加载配置
func loadFromEnv(cfg *Config) {
	// 数据库配置
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Database.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Database.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.Database.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.Database.Password = password
	}
	if database := os.Getenv("DB_DATABASE"); database != "" {
		cfg.Database.Database = database
	}

	// Redis 配置
	if enabled := os.Getenv("REDIS_ENABLED"); enabled == "true" {
		cfg.Redis.Enabled = true
	}
	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.Redis.Host = host
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}

	// Kafka 配置
	if enabled := os.Getenv("KAFKA_ENABLED"); enabled == "true" {
		cfg.Kafka.Enabled = true
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = []string{brokers}
	}

	// 日志配置
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
}
