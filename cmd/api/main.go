package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"urlshortener.local/internal/app/account"
	"urlshortener.local/internal/app/shortlink"
	slcache "urlshortener.local/internal/app/shortlink/cache"
	shortlinkhttpapi "urlshortener.local/internal/app/shortlink/httpapi"
	"urlshortener.local/internal/app/shortlink/stats"
	"urlshortener.local/internal/platform/auth"
	platformcache "urlshortener.local/internal/platform/cache"
	"urlshortener.local/internal/platform/config"
	"urlshortener.local/internal/platform/httpmiddleware"
	"urlshortener.local/internal/platform/httpserver"
	"urlshortener.local/internal/platform/metrics"
	"urlshortener.local/internal/platform/ratelimit"
	"urlshortener.local/internal/platform/trace"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func newLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func main() {
	cfg := config.Load()
	slog.SetDefault(newLogger(cfg))
	if err := run(cfg); err != nil {
		slog.Error("service exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	metrics.Init()

	// 存储
	dbCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	store, err := openStorage(dbCtx, cfg)
	cancel()
	if err != nil {
		return err
	}
	defer store.close()

	// Redis 是可选的：连不上就不用 L2 缓存和限流
	var redisClient *redis.Client
	if cfg.RedisEnabled {
		redisClient, err = platformcache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			slog.Error("redis unavailable, running without L2 cache and rate limit", "err", err)
		} else {
			defer redisClient.Close()
		}
	}

	// 限流器
	var limiter *ratelimit.Limiter
	switch {
	case !cfg.RateLimitEnabled:
		slog.Warn("RateLimit disabled by config", "RATELIMIT_ENABLED", false)
	case redisClient == nil:
		slog.Warn("RateLimit needs redis, disabled")
	default:
		limiter = ratelimit.NewLimiter(redisClient)
	}

	// 短链缓存
	var linkRepo shortlink.Repository = store.links
	if cfg.CacheEnabled {
		localCache, errLocal := slcache.NewLocalCache(100_000)
		if errLocal != nil {
			return errLocal
		}
		linkCache := slcache.NewLinkCache(store.links, redisClient, localCache)
		defer linkCache.Close()
		linkRepo = linkCache
	}
	// 布隆过滤器只挡随机生成时的已知短码
	codeFilter := slcache.NewCodeFilter(cfg.BloomExpectedItems, cfg.BloomFPRate)

	gen, err := shortlink.NewGenerator(cfg.ShortCodeLength, cfg.ShortCodeMaxAttempts)
	if err != nil {
		return err
	}
	links, err := shortlink.NewService(linkRepo, shortlink.Options{
		DefaultExpiry: cfg.LinkDefaultExpiry,
		Generator:     gen,
		Filter:        codeFilter,
		Clicks:        store.links,
	})
	if err != nil {
		return err
	}

	hasher, err := account.NewBcryptHasher(cfg.BcryptCost)
	if err != nil {
		return err
	}
	accounts, err := account.NewService(store.accounts, hasher)
	if err != nil {
		return err
	}

	// JWT
	ts, err := auth.NewHS256Service(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	if err != nil {
		return err
	}

	// 点击明细收集器（根据配置选择 Channel 或 Kafka）
	var collector stats.Collector
	var kafkaConsumer *stats.KafkaConsumer
	var channelConsumer *stats.Consumer
	if cfg.KafkaEnabled {
		slog.Info("使用 Kafka 收集点击明细", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
		collector = stats.NewKafkaCollector(cfg.KafkaBrokers, cfg.KafkaTopic)
		kafkaConsumer = stats.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, store.links)
	} else {
		slog.Info("使用 Channel 收集点击明细")
		channelCollector := stats.NewChannelCollector(10000)
		collector = channelCollector
		channelConsumer = stats.NewConsumer(store.links, channelCollector)
	}

	if cfg.TracingEnabled {
		shutdown, err := trace.InitTrace(cfg.OtlpGrpcEndpoint, cfg.ServiceName, version)
		if err != nil {
			slog.Error("Trace init failed", "err", err)
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					slog.Error("trace shutdown failed", "err", err)
				}
			}()
		}
	} else {
		slog.Warn("Tracing disabled by config", "TRACING_ENABLED", false)
	}

	// 对外业务
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	if err := httpmiddleware.TrustProxies(r, cfg.TrustedProxies, cfg.TrustedPlatform); err != nil {
		return err
	}
	r.Use(httpmiddleware.Recovery(), httpmiddleware.RequestID(), httpmiddleware.AccessLog(), httpmiddleware.Metrics(), httpmiddleware.TraceName())
	if mw := httpmiddleware.CORS(cfg.CORSOrigins); mw != nil {
		r.Use(mw)
	}

	shortlinkhttpapi.RegisterRoutes(r, shortlinkhttpapi.Deps{
		Links:         links,
		Accounts:      accounts,
		Tokens:        ts,
		Collector:     collector,
		Limiter:       limiter,
		PublicBaseURL: cfg.PublicBaseURL,
	})

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	publicHandler := http.Handler(r)
	if cfg.TracingEnabled {
		publicHandler = otelhttp.NewHandler(r, "http")
	}
	publicSrv := httpserver.New(cfg, publicHandler)

	// 仅本机/内网
	adminSrv := httpserver.NewAdmin(cfg, httpserver.AdminHandler(httpserver.BuildInfo{
		ServiceName: cfg.ServiceName,
		Version:     version,
		Commit:      commit,
		BuildTime:   buildTime,
	}, store.ping, cfg.PprofEnabled))

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 启动 Kafka consumer（如果启用）
	if kafkaConsumer != nil {
		go kafkaConsumer.Run(stopCtx)
		defer kafkaConsumer.Close()
	}
	// Channel consumer 不跟随 stopCtx：collector 关闭后排空 channel 才退出，
	// 要在 store 关闭之前等它写完
	consumerDone := make(chan struct{})
	if channelConsumer != nil {
		go func() {
			defer close(consumerDone)
			channelConsumer.Run(context.Background())
		}()
	} else {
		close(consumerDone)
	}
	defer func() {
		collector.Close()
		select {
		case <-consumerDone:
		case <-time.After(cfg.ShutdownTimeout):
			slog.Warn("click consumer did not finish before shutdown timeout")
		}
	}()

	gauges := stats.NewGaugeRefresher(store.links, cfg.StatsRefreshSpec)
	if err := gauges.Start(stopCtx); err != nil {
		slog.Error("link status gauge refresher not started", "spec", cfg.StatsRefreshSpec, "err", err)
	}

	errch := make(chan error, 2)
	go func() {
		errch <- httpserver.Serve(stopCtx, publicSrv, cfg.ShutdownTimeout)
	}()
	go func() {
		errch <- httpserver.Serve(stopCtx, adminSrv, cfg.ShutdownTimeout)
	}()
	slog.Info("服务已启动", "addr", cfg.Addr, "admin_addr", cfg.AdminAddr, "db_driver", cfg.DBDriver, "version", version)

	err = <-errch
	if err != nil {
		stop()
		select {
		case <-errch:
		case <-time.After(cfg.ShutdownTimeout + time.Second):
		}
		return err
	}

	stop()
	<-errch
	slog.Info("服务已退出")
	return nil
}
