package main

import (
	"context"
	"flag"
	"time"

	"github.com/AureaDrive/AureaDrive/internal/availability"
	"github.com/AureaDrive/AureaDrive/internal/block"
	"github.com/AureaDrive/AureaDrive/internal/booking"
	"github.com/AureaDrive/AureaDrive/internal/common/auth"
	"github.com/AureaDrive/AureaDrive/internal/common/config"
	"github.com/AureaDrive/AureaDrive/internal/common/db"
	"github.com/AureaDrive/AureaDrive/internal/common/logger"
	"github.com/AureaDrive/AureaDrive/internal/common/middleware"
	"github.com/AureaDrive/AureaDrive/internal/common/server"
	"github.com/AureaDrive/AureaDrive/internal/common/tracing"
	"github.com/AureaDrive/AureaDrive/internal/reservation"
	"github.com/AureaDrive/AureaDrive/internal/vehicle"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

func main() {
	var (
		configPath = flag.String("config", "configs/booking-service.json", "config file path")
		consulKey  = flag.String("consul-config-key", "", "load config from Consul KV instead of file")
	)
	flag.Parse()

	cfg, err := loadConfig(*configPath, *consulKey)
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.Path)
	if err != nil {
		logrus.Fatalf("init logger: %v", err)
	}

	_, closer, err := tracing.InitTracer(cfg.Server.Name, cfg.Jaeger.Endpoint, cfg.Jaeger.Sampler)
	if err != nil {
		log.Warnf("init tracer: %v", err)
	} else {
		defer closer.Close()
	}

	gdb, err := db.NewMySQL(
		cfg.Database.Host, cfg.Database.Port,
		cfg.Database.User, cfg.Database.Password, cfg.Database.Database,
		cfg.Database.MaxIdle, cfg.Database.MaxOpen,
	)
	if err != nil {
		log.Fatalf("connect mysql: %v", err)
	}
	if err := gdb.AutoMigrate(&vehicle.Vehicle{}, &block.ManualBlock{}, &reservation.Reservation{}); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}

	// Redis 仅用于幂等键快路径，连不上时降级到数据库唯一索引
	var idem booking.IdempotencyCache
	if rdb, err := db.NewRedis(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize); err != nil {
		log.Warnf("redis unavailable, idempotency cache disabled: %v", err)
	} else {
		idem = booking.NewRedisIdempotencyCache(rdb)
		defer rdb.Close()
	}

	vehicleRepo := vehicle.NewRepo(gdb)
	blockRepo := block.NewRepo(gdb)
	reservationRepo := reservation.NewRepo(gdb)

	resolver := availability.NewResolver(vehicleRepo, blockRepo, reservationRepo)
	svc := booking.NewService(vehicleRepo, resolver, reservationRepo, idem, log, booking.Options{
		MaxRangeDays:      cfg.Booking.MaxRangeDays,
		ProvisionalTTL:    time.Duration(cfg.Booking.ProvisionalTTLMinutes) * time.Minute,
		QuoteEpsilonCents: cfg.Booking.QuoteEpsilonCents,
	})

	bookingHandler := booking.NewHandler(svc, vehicleRepo, resolver, log)
	vehicleHandler := vehicle.NewHandler(vehicleRepo, log)
	blockHandler := block.NewHandler(blockRepo, log)
	authHandler := auth.NewHandler(cfg.Auth, log)

	// provisional 超时兜底清理
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go runExpirySweep(sweepCtx, svc, log, time.Duration(cfg.Booking.SweepIntervalSeconds)*time.Second)

	createLimiter := middleware.NewTokenBucket(cfg.Booking.RateLimitBurst, cfg.Booking.RateLimitPerSecond)

	err = server.RunHTTPServer(cfg, log, func(r chi.Router) error {
		r.Route("/api/v1", func(r chi.Router) {
			vehicleHandler.RegisterPublic(r)

			// 预订提交单独限流
			r.Group(func(r chi.Router) {
				r.Use(server.RateLimit(createLimiter))
				bookingHandler.RegisterPublic(r)
			})

			// 支付方回调与预订生命周期：仅要求合法 token
			r.Group(func(r chi.Router) {
				r.Use(server.JWTAuth(cfg.Auth, log))
				bookingHandler.RegisterBackOffice(r)
			})

			r.Route("/admin", func(r chi.Router) {
				authHandler.Register(r)

				r.Group(func(r chi.Router) {
					r.Use(server.JWTAuth(cfg.Auth, log))
					r.Use(server.RequireRole(cfg.Auth, "admin"))
					vehicleHandler.RegisterAdmin(r)
					blockHandler.RegisterAdmin(r)
				})
			})
		})
		return nil
	})
	if err != nil {
		log.Fatalf("http server: %v", err)
	}
}

func loadConfig(path, consulKey string) (*config.Config, error) {
	if consulKey != "" {
		// KV 里的 consul 地址未知，先用默认配置里的地址
		seed := config.GetConfig()
		return config.LoadConfigFromConsulKV(seed.Consul.Host, seed.Consul.Port, consulKey)
	}
	return config.LoadConfig(path)
}

func runExpirySweep(ctx context.Context, svc *booking.Service, log logger.Logger, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := svc.ExpireStale(ctx); err != nil {
				log.Warnf("expiry sweep: %v", err)
			}
		}
	}
}
