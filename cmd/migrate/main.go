// Package main 提供数据库迁移命令行工具
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/cloudverse/broker/internal/app"
	"github.com/cloudverse/broker/internal/config"
	"github.com/cloudverse/broker/pkg/logger"
)

func main() {
	var dsn string
	flag.StringVar(&dsn, "dsn", "", "Database DSN (overrides config)")
	flag.Parse()

	if err := logger.Init(&logger.Config{
		Level:       "info",
		Format:      "console",
		ServiceName: "migrate",
	}); err != nil {
		fmt.Printf("init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if dsn == "" {
		cfg, err := config.Load()
		if err != nil {
			logger.Fatal("load config failed", zap.Error(err))
		}
		dsn = fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			cfg.Database.Host,
			cfg.Database.Port,
			cfg.Database.User,
			cfg.Database.Password,
			cfg.Database.Database,
		)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		logger.Fatal("connect database failed", zap.Error(err))
	}

	if err := app.AutoMigrate(db); err != nil {
		logger.Fatal("auto migrate failed", zap.Error(err))
	}

	logger.Info("database migrated")
}
