package main

import (
	"time"

	"go.uber.org/zap"

	"github.com/cloudverse/broker/internal/app"
	"github.com/cloudverse/broker/internal/config"
	"github.com/cloudverse/broker/internal/provider"
	"github.com/cloudverse/broker/internal/quota"
	"github.com/cloudverse/broker/pkg/logger"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	// 初始化日志
	if err := logger.Init(&logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: cfg.Service.Name,
	}); err != nil {
		panic(err)
	}
	defer logger.Sync()

	adapter := provider.NewHTTPAdapter(cfg.Provider.Endpoint,
		time.Duration(cfg.Provider.TimeoutSec)*time.Second)

	capacity := make(map[string]quota.Requirement, len(cfg.Quota))
	for _, q := range cfg.Quota {
		capacity[q.ServiceID] = quota.Requirement{
			CPU:      q.CPU,
			RamGiB:   q.RamGiB,
			PublicIP: q.PublicIP,
			DiskGiB:  q.DiskGiB,
		}
	}
	quotaMgr := quota.NewMemoryManager(capacity)

	// 启动应用
	if err := app.New(cfg, adapter, quotaMgr).Run(); err != nil {
		logger.Fatal("application error", zap.Error(err))
	}
}
