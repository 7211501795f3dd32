package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"studymesh/internal/core/ports"
	"studymesh/internal/core/services"
	httphandlers "studymesh/internal/handlers/http"
	"studymesh/internal/infrastructure/media"
	"studymesh/internal/infrastructure/middleware"
	"studymesh/internal/infrastructure/monitoring"
	"studymesh/internal/infrastructure/realtime"
	"studymesh/internal/infrastructure/reliability"
	"studymesh/internal/infrastructure/repositories"
	redisrepo "studymesh/internal/infrastructure/repositories/redis"
	signaling "studymesh/internal/infrastructure/signal"
	storeadapter "studymesh/internal/infrastructure/storage"
	mesh "studymesh/internal/infrastructure/webrtc"
	"studymesh/pkg/circuitbreaker"
	"studymesh/pkg/config"
	"studymesh/pkg/logger"
	"studymesh/pkg/retry"
	"studymesh/pkg/tracing"

	"github.com/gin-gonic/gin"
	pionwebrtc "github.com/pion/webrtc/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error
	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if cfg == nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	zlog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zlog.Sync()
	slog := zlog.Sugar()

	if cfg.Tracing.Enabled {
		tp, err := tracing.Init(tracing.Config{
			Enabled:     true,
			ServiceName: "studymesh",
			JaegerURL:   cfg.Tracing.JaegerURL,
			Environment: cfg.Tracing.Environment,
			SampleRate:  cfg.Tracing.SampleRate,
		})
		if err != nil {
			slog.Warnw("tracing init failed", "error", err)
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				tp.Shutdown(ctx)
				cancel()
			}()
		}
	}

	factory, err := repositories.NewRepositoryFactory(cfg, slog)
	if err != nil {
		slog.Fatalw("repository factory init failed", "error", err)
	}
	defer factory.Close()

	var collector *monitoring.Collector
	if cfg.Monitoring.PrometheusEnabled {
		collector = monitoring.NewCollector(prometheus.DefaultRegisterer)
	}

	retryCfg := retry.DefaultConfig()
	memberships := reliability.NewMembershipRepositoryWrapper(
		factory.CreateMembershipRepository(),
		retryCfg,
		circuitbreaker.DefaultConfig(),
		slog,
	)
	profiles := reliability.NewProfileRepositoryWrapper(factory.CreateProfileRepository(), retryCfg)
	rooms := factory.CreateRoomRepository()

	auth := services.NewAuthProvider(cfg.Auth.BaseURL, cfg.Auth.JWTSecret, slog)
	normalizer := services.NewIdentityNormalizer(factory.CreateIdentityMapRepository())
	objects := storeadapter.NewHTTPObjectStore(cfg.Storage.UploadURL, cfg.Storage.PublicURL, slog)

	profileService := services.NewProfileService(
		profiles,
		factory.CreateFollowerRepository(),
		factory.CreatePostRepository(),
		objects,
		normalizer,
		slog,
	)
	roomService := services.NewRoomService(rooms, memberships, slog)

	// The realtime platform rides on Redis even when records are in memory.
	redisClient := factory.RedisClient()
	if redisClient == nil {
		redisClient, err = redisrepo.NewRedisClient(
			cfg.Backend.Redis.Address,
			cfg.Backend.Redis.Password,
			cfg.Backend.Redis.DB,
			cfg.Backend.Redis.PoolSize,
			slog,
		)
		if err != nil {
			slog.Fatalw("realtime platform requires Redis", "error", err)
		}
		defer redisClient.Close()
	}

	presence := realtime.NewPresenceChannel(redisClient, slog)
	chat := realtime.NewChatChannel(redisClient, slog)

	provider := media.NewRTPDeviceProvider(media.RTPDeviceConfig{
		AudioPort:  cfg.Media.AudioRTPPort,
		VideoPort:  cfg.Media.VideoRTPPort,
		ScreenPort: cfg.Media.ScreenRTPPort,
	})
	acquirer := media.NewAcquirer(provider, slog)

	transport := signaling.NewClient(signaling.Config{
		URL:          cfg.Signal.URL,
		PingInterval: cfg.Signal.PingInterval,
		PongTimeout:  cfg.Signal.PongTimeout,
		WriteTimeout: cfg.Signal.WriteTimeout,
	}, slog)

	iceServers := make([]pionwebrtc.ICEServer, 0, len(cfg.WebRTC.ICEServers))
	for _, s := range cfg.WebRTC.ICEServers {
		iceServers = append(iceServers, pionwebrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	connector := mesh.NewLinkManager(mesh.Config{
		ICEServers:  iceServers,
		DialTimeout: cfg.WebRTC.DialTimeout,
	}, transport, collector, slog)

	// The local participant this process coordinates for.
	user, err := auth.Current(context.Background(), os.Getenv("STUDYMESH_TOKEN"))
	if err != nil {
		slog.Fatalw("failed to resolve local identity", "error", err)
	}
	slog.Infow("local identity resolved", "user_id", user.ID, "guest", user.Guest)

	coordinator := services.NewRoomCoordinator(
		user,
		acquirer,
		presence,
		chat,
		connector,
		rooms,
		memberships,
		profiles,
		collector,
		services.CoordinatorConfig{
			ChatMessagesPerSecond: cfg.Chat.MessagesPerSecond,
			ChatBurst:             cfg.Chat.Burst,
		},
		slog,
	)

	health := monitoring.NewHealthChecker()
	health.AddCheck("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	}, 3*time.Second)

	router := buildRouter(cfg, slog, auth, coordinator, roomService, profileService, health)

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		slog.Infow("starting control API", "address", cfg.Server.Address)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := coordinator.LeaveRoom(ctx); err != nil {
		slog.Warnw("session teardown failed", "error", err)
	}
	if err := server.Shutdown(ctx); err != nil {
		slog.Warnw("server shutdown failed", "error", err)
	}
}

func buildRouter(
	cfg *config.Config,
	slog *zap.SugaredLogger,
	auth ports.AuthProvider,
	coordinator ports.RoomCoordinator,
	roomService *services.RoomService,
	profileService *services.ProfileService,
	health *monitoring.HealthChecker,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RecoveryMiddleware(slog))
	router.Use(middleware.ErrorHandlerMiddleware(slog))
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))

	router.GET("/health", func(c *gin.Context) {
		status := health.CheckAll(c.Request.Context())
		code := http.StatusOK
		if status.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	})
	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	authed := middleware.OptionalAuthMiddleware(auth)

	httphandlers.NewAuthHandler(auth).SetupRoutes(router)
	httphandlers.NewRoomHandler(coordinator, roomService).SetupRoutes(router, authed)
	httphandlers.NewProfileHandler(profileService).SetupRoutes(router, authed)

	return router
}
