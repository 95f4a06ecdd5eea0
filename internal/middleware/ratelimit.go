package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hitoshi/groupman/internal/model"
	"golang.org/x/time/rate"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // API全般のレート（req/sec）。120/60 = 2 req/sec
	GeneralBurst    int           // API全般のバーストサイズ
	MutationRate    rate.Limit    // 書き込み系API（作成・ブックマーク）のレート（req/sec）
	MutationBurst   int           // 書き込み系APIのバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// API全般 120 req/min/actor、書き込み系 30 req/min/actor。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(120.0 / 60.0),
		GeneralBurst:    120,
		MutationRate:    rate.Limit(30.0 / 60.0),
		MutationBurst:   30,
		CleanupInterval: 5 * time.Minute,
	}
}

// limiterEntry はアクターごとのレートリミッターとアクセス時刻を保持する。
type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterPool は名前付きのアクター別リミッター集合。
type limiterPool struct {
	name  string
	rate  rate.Limit
	burst int

	mu      sync.RWMutex
	entries map[string]*limiterEntry
}

func newLimiterPool(name string, r rate.Limit, burst int) *limiterPool {
	return &limiterPool{
		name:    name,
		rate:    r,
		burst:   burst,
		entries: make(map[string]*limiterEntry),
	}
}

// getOrCreate はアクターのリミッターを取得または作成する。
func (p *limiterPool) getOrCreate(key string) *rate.Limiter {
	p.mu.RLock()
	entry, exists := p.entries[key]
	p.mu.RUnlock()

	if exists {
		p.mu.Lock()
		entry.lastAccess = time.Now()
		p.mu.Unlock()
		return entry.limiter
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// ダブルチェック
	if entry, exists := p.entries[key]; exists {
		entry.lastAccess = time.Now()
		return entry.limiter
	}

	limiter := rate.NewLimiter(p.rate, p.burst)
	p.entries[key] = &limiterEntry{
		limiter:    limiter,
		lastAccess: time.Now(),
	}
	return limiter
}

// cleanup は指定時刻より前にアクセスされたエントリを削除する。
func (p *limiterPool) cleanup(before time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, entry := range p.entries {
		if entry.lastAccess.Before(before) {
			delete(p.entries, key)
		}
	}
}

// count は現在管理されているエントリ数を返す。テストおよびメトリクス用。
func (p *limiterPool) count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// RateLimiter はアクターごとのレート制限を管理する。
// API全般のレート制限と書き込み系APIのレート制限の2種類を提供する。
type RateLimiter struct {
	config   RateLimiterConfig
	general  *limiterPool
	mutation *limiterPool
	stopCh   chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:   config,
		general:  newLimiterPool("general", config.GeneralRate, config.GeneralBurst),
		mutation: newLimiterPool("mutation", config.MutationRate, config.MutationBurst),
		stopCh:   make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// cleanupLoop は一定間隔でアイドルなリミッターエントリを破棄する。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			before := time.Now().Add(-rl.config.CleanupInterval)
			rl.general.cleanup(before)
			rl.mutation.cleanup(before)
		}
	}
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
// リクエストコンテキストにアクターが含まれている必要がある（アクターミドルウェアの後に配置）。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(rl.general)
}

// MutationMiddleware は書き込み系API専用のレート制限ミドルウェアを返す。
// API全般のレート制限とは独立に動作する。
func (rl *RateLimiter) MutationMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(rl.mutation)
}

// GeneralLimiterCount は現在管理されているAPI全般リミッターのエントリ数を返す。
func (rl *RateLimiter) GeneralLimiterCount() int {
	return rl.general.count()
}

// MutationLimiterCount は現在管理されている書き込み系リミッターのエントリ数を返す。
func (rl *RateLimiter) MutationLimiterCount() int {
	return rl.mutation.count()
}

func (rl *RateLimiter) middleware(pool *limiterPool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			a := ActorFromContext(r.Context())
			if a == nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			limiter := pool.getOrCreate(a.CacheKey())

			if !limiter.Allow() {
				writeRateLimitResponse(w, pool.rate)
				slog.Warn("レート制限を超過しました",
					slog.String("actor", a.CacheKey()),
					slog.String("limit_type", pool.name),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeRateLimitResponse はRetry-Afterヘッダ付きの429レスポンスを書き込む。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	retryAfter := 1
	if r > 0 {
		retryAfter = int(math.Ceil(1.0 / float64(r)))
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	WriteErrorResponse(w, http.StatusTooManyRequests, &model.APIError{
		Code:     "RATE_LIMITED",
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}
