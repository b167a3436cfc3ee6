package main

import (
	"DayPilot/backend/go/internal/adaptation"
	"DayPilot/backend/go/internal/config"
	"DayPilot/backend/go/internal/database/kafka"
	"DayPilot/backend/go/internal/database/mongo"
	"DayPilot/backend/go/internal/database/redis"
	"DayPilot/backend/go/internal/executor"
	"DayPilot/backend/go/internal/gateway"
	"DayPilot/backend/go/internal/llm"
	"DayPilot/backend/go/internal/models"
	"DayPilot/backend/go/internal/oracle"
	"DayPilot/backend/go/internal/orchestrator"
	"DayPilot/backend/go/internal/orchestrator/api"
	"DayPilot/backend/go/internal/planning"
	"DayPilot/backend/go/internal/store"
	"DayPilot/backend/go/pkg/circuitbreaker"
	pkghttp "DayPilot/backend/go/pkg/http"
	"DayPilot/backend/go/pkg/logger"
	"DayPilot/backend/go/pkg/ratelimiter"
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "backend/go/internal/config/config.yaml", "配置文件路径")
	flag.Parse()

	// 加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 初始化日志
	logLevel, err := logrus.ParseLevel(cfg.Logger.Level)
	if err != nil {
		log.Fatalf("Invalid logger level: %v", err)
	}
	logger.Init(logLevel)
	serviceLogger := logger.New("PlannerService", "")
	fatal := func(err error, msg string) {
		serviceLogger.WithError(models.NewErrorInfo(err)).Fatal(msg)
	}

	loc, err := cfg.App.Location()
	if err != nil {
		fatal(err, "时区配置无效")
	}
	sched := cfg.Scheduler
	tick, err := config.ParseDuration(sched.Tick, time.Second)
	if err != nil {
		fatal(err, "调度间隔无效")
	}
	snapshotFreshness, err := config.ParseDuration(sched.SnapshotFreshness, 20*time.Minute)
	if err != nil {
		fatal(err, "快照新鲜度无效")
	}
	planFreshness, err := config.ParseDuration(sched.PlanFreshness, 120*time.Minute)
	if err != nil {
		fatal(err, "计划新鲜度无效")
	}

	ctx := context.Background()

	// 连接存储
	redisClient, err := redis.GetClient(ctx, &cfg.Databases.Redis)
	if err != nil {
		fatal(err, "Failed to connect to Redis")
	}
	mongoClient, err := mongo.GetClient(&cfg.Databases.MongoDB)
	if err != nil {
		fatal(err, "Failed to connect to MongoDB")
	}
	mongoCfg := cfg.Databases.MongoDB
	db := mongoClient.Database(mongoCfg.Database)
	if err := mongo.EnsureIndexes(ctx, db, mongoCfg.ExecutionCollection, mongoCfg.ResolutionCollection); err != nil {
		serviceLogger.WithError(models.NewErrorInfo(err)).Warn("无法创建日志索引")
	}
	kafkaClient, err := kafka.GetClient(&cfg.Databases.Kafka)
	if err != nil {
		fatal(err, "Failed to connect to Kafka")
	}

	runPublisher := kafka.NewRunPublisher(kafkaClient)
	learningStore := store.New(
		store.NewRedisKV(redisClient, cfg.Databases.Redis.KeyPrefix),
		store.NewMongoJournal(db, mongoCfg.ExecutionCollection, mongoCfg.ResolutionCollection),
		store.WithPublisher(runPublisher),
		store.WithLogger(serviceLogger.Named("store", "")),
	)

	// AI 规划
	model, err := llm.NewClient(ctx, cfg.LLM)
	if err != nil {
		fatal(err, "Failed to create LLM client")
	}
	oracleOpts := []oracle.Option{
		oracle.WithLogger(serviceLogger.Named("oracle", "")),
		oracle.WithMaxEntry(cfg.Policy.MaxEntry()),
	}
	if cfg.LLM.Limiter.Rate > 0 {
		oracleOpts = append(oracleOpts, oracle.WithLimiter(ratelimiter.NewTokenBucket(cfg.LLM.Limiter.Rate, cfg.LLM.Limiter.Capacity)))
	}
	if cb := cfg.CircuitBreaker; cb.Enabled {
		timeout, err := config.ParseDuration(cb.Timeout, 60*time.Second)
		if err != nil {
			fatal(err, "熔断超时无效")
		}
		oracleOpts = append(oracleOpts, oracle.WithBreaker(circuitbreaker.New(cb.FailureThreshold, cb.SuccessThreshold, timeout)))
	}
	planOracle := oracle.NewLLMOracle(model, oracleOpts...)

	// 数据源
	sourceTimeout, err := config.ParseDuration(cfg.Sources.Timeout, 15*time.Second)
	if err != nil {
		fatal(err, "数据源超时无效")
	}
	httpClient, err := pkghttp.NewClient(cfg.CircuitBreaker, sourceTimeout)
	if err != nil {
		fatal(err, "Failed to create HTTP client")
	}
	source := gateway.NewHTTPSource(httpClient, cfg.Sources)
	gw := gateway.New(source, source, source, learningStore, serviceLogger.Named("gateway", ""))

	// 组装调度器
	orch := orchestrator.New(learningStore,
		orchestrator.WithTick(tick),
		orchestrator.WithLogger(serviceLogger),
		orchestrator.WithHealthCheck("redis", redis.HealthCheck),
		orchestrator.WithHealthCheck("mongodb", mongo.HealthCheck),
		orchestrator.WithHealthCheck("kafka", kafkaClient.HealthCheck),
	)
	planExecutor := executor.NewKafkaExecutor(kafkaClient, serviceLogger.Named("executor", ""))
	err = orchestrator.RegisterPipeline(orch, sched, &orchestrator.Pipeline{
		Collector: gw,
		Store:     learningStore,
		Planner: planning.NewEngine(planOracle, snapshotFreshness,
			planning.WithLocation(loc),
			planning.WithEngineLogger(serviceLogger.Named("planner", ""))),
		Resolver:      planning.NewResolver(planOracle, learningStore, cfg.Policy.ConflictConfidenceThreshold, loc, serviceLogger.Named("resolver", "")),
		Optimizer:     planning.NewOptimizer(cfg.Policy),
		Executor:      planExecutor,
		Adapter:       adaptation.NewEngine(learningStore, cfg.Policy, serviceLogger.Named("adaptation", "")),
		Oracle:        planOracle,
		PlanFreshness: planFreshness,
		Location:      loc,
		Log:           serviceLogger,
	})
	if err != nil {
		fatal(err, "Failed to register phases")
	}
	if err := orch.Start(ctx); err != nil {
		fatal(err, "Failed to start scheduler")
	}

	// 控制 API
	gin.SetMode(gin.ReleaseMode)
	router := api.SetupRouter(api.NewHandler(orch, serviceLogger), serviceLogger.Named("api", ""), ratelimiter.NewTokenBucket(1, 5))
	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: router,
	}
	go func() {
		serviceLogger.Info("Starting HTTP server on " + srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(err, "HTTP server failed to start")
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	serviceLogger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		serviceLogger.WithError(models.NewErrorInfo(err)).Error("Server forced to shutdown")
	}
	if err := orch.Stop(shutdownCtx); err != nil {
		serviceLogger.WithError(models.NewErrorInfo(err)).Error("调度器未能在超时前停止")
	}
	if err := planExecutor.Close(); err != nil {
		serviceLogger.WithError(models.NewErrorInfo(err)).Error("Error closing plan writer")
	}
	if err := runPublisher.Close(); err != nil {
		serviceLogger.WithError(models.NewErrorInfo(err)).Error("Error closing run publisher")
	}
	if err := kafkaClient.Close(); err != nil {
		serviceLogger.WithError(models.NewErrorInfo(err)).Error("Error closing Kafka connection")
	}
	if err := mongo.Close(context.Background()); err != nil {
		serviceLogger.WithError(models.NewErrorInfo(err)).Error("Error disconnecting from MongoDB")
	}
	if err := redis.Close(); err != nil {
		serviceLogger.WithError(models.NewErrorInfo(err)).Error("Error closing Redis")
	}

	serviceLogger.Info("Planner service stopped")
}
