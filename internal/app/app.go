package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/groupman/internal/bookmark"
	"github.com/hitoshi/groupman/internal/config"
	"github.com/hitoshi/groupman/internal/database"
	"github.com/hitoshi/groupman/internal/event"
	"github.com/hitoshi/groupman/internal/group"
	"github.com/hitoshi/groupman/internal/handler"
	"github.com/hitoshi/groupman/internal/logger"
	"github.com/hitoshi/groupman/internal/membership"
	"github.com/hitoshi/groupman/internal/metrics"
	"github.com/hitoshi/groupman/internal/middleware"
	"github.com/hitoshi/groupman/internal/repository"
	"github.com/hitoshi/groupman/internal/worker/cleanup"
	"golang.org/x/time/rate"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// newPublisher はNATS_URLの有無に応じてイベントパブリッシャーを生成する。
// 未設定の場合はイベント発行を無効化し、Nop実装を返す。
func newPublisher(cfg *config.Config) event.Publisher {
	if cfg.NATSURL == "" {
		slog.Info("NATS_URL is not set, event publishing disabled")
		return event.NopPublisher{}
	}

	pub, err := event.NewNATSPublisher(cfg.NATSURL, cfg.NATSName)
	if err != nil {
		// イベント発行はベストエフォートのため、接続失敗で起動は止めない
		slog.Error("failed to connect to NATS, event publishing disabled",
			slog.String("error", err.Error()),
		)
		return event.NopPublisher{}
	}

	slog.Info("NATS connection established", slog.String("url", cfg.NATSURL))
	return pub
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	sessionRepo := repository.NewPostgresSessionRepo(db)
	spaceMemberRepo := repository.NewPostgresSpaceMemberRepo(db)
	groupRepo := repository.NewPostgresGroupRepo(db)
	groupUserRepo := repository.NewPostgresGroupUserRepo(db)
	bookmarkRepo := repository.NewPostgresBookmarkRepo(db)

	// 3. イベントパブリッシャーとメトリクスの初期化
	publisher := newPublisher(cfg)
	if closer, ok := publisher.(*event.NATSPublisher); ok {
		defer closer.Close()
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. ドメインサービスの初期化
	membershipService := membership.NewService(groupUserRepo)
	bookmarkService := bookmark.NewService(db, bookmarkRepo, groupRepo, publisher, collector)
	groupService := group.NewService(db, groupRepo, membershipService, bookmarkService, publisher, collector)

	// 5. レートリミッターの構築
	// configのレートはreq/min単位なのでreq/secに変換する
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.MutationRate = rate.Limit(float64(cfg.RateLimitMutation) / 60.0)
	rateLimiterCfg.MutationBurst = cfg.RateLimitMutation
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	// 6. ルーターの構築
	deps := &handler.RouterDeps{
		SessionFinder:     sessionRepo,
		SpaceMemberFinder: spaceMemberRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),

		GroupService:      groupService,
		BookmarkService:   bookmarkService,
		MembershipService: membershipService,
		LoaderObserver:    collector,

		HealthChecker:  db,
		HTTPMetrics:    collector,
		MetricsHandler: metrics.Handler(registry),
	}

	router := handler.NewRouter(deps)

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、孤児メンバーシップのクリーンアップジョブを定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. クリーンアップジョブの初期化
	groupUserRepo := repository.NewPostgresGroupUserRepo(db)
	cleanupJob := cleanup.NewCleanupJob(groupUserRepo, slog.Default())

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
	)

	// クリーンアップジョブをメインgoroutineで実行（ブロッキング）
	cleanupJob.Start(ctx, cfg.CleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /healthz エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/healthz", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
