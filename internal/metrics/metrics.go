// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// group、bookmark、middlewareの各パッケージが定義する記録インターフェースを満たす。
type Collector struct {
	groupsCreated     prometheus.Counter
	groupCreateFail   *prometheus.CounterVec
	bookmarkEvents    *prometheus.CounterVec
	bookmarkConflicts prometheus.Counter
	visibilityQuery   prometheus.Histogram
	httpStatus        *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		groupsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "groupman_groups_created_total",
			Help: "グループ作成成功の合計数",
		}),
		groupCreateFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "groupman_group_create_fail_total",
			Help: "グループ作成ワークフローのステップ別失敗数",
		}, []string{"step"}),
		bookmarkEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "groupman_bookmark_events_total",
			Help: "発行されたブックマークイベントのアクション別合計数",
		}, []string{"action"}),
		bookmarkConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "groupman_bookmark_conflicts_total",
			Help: "ユニーク制約により冪等成功へ分類されたブックマーク挿入数",
		}),
		visibilityQuery: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "groupman_visibility_query_seconds",
			Help:    "可視グループクエリのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "groupman_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.groupsCreated,
		c.groupCreateFail,
		c.bookmarkEvents,
		c.bookmarkConflicts,
		c.visibilityQuery,
		c.httpStatus,
	)

	return c
}

// RecordGroupCreated はグループ作成の成功を記録する。
func (c *Collector) RecordGroupCreated() {
	c.groupsCreated.Inc()
}

// RecordGroupCreateFail はグループ作成の失敗をステップ名付きで記録する。
func (c *Collector) RecordGroupCreateFail(step string) {
	c.groupCreateFail.WithLabelValues(step).Inc()
}

// RecordBookmarkEvent はブックマークイベントの発行を記録する。
func (c *Collector) RecordBookmarkEvent(action string) {
	c.bookmarkEvents.WithLabelValues(action).Inc()
}

// RecordBookmarkConflict は冪等成功へ分類されたブックマーク挿入を記録する。
func (c *Collector) RecordBookmarkConflict() {
	c.bookmarkConflicts.Inc()
}

// RecordVisibilityQuery は可視グループクエリのレイテンシを記録する。
func (c *Collector) RecordVisibilityQuery(duration time.Duration) {
	c.visibilityQuery.Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
