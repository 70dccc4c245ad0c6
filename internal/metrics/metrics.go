// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector は認証イベントのPrometheusメトリクスを収集する実装。
// auth.Recorderとセッション掃除ジョブの記録先を兼ねる。
type Collector struct {
	loginAttempts   *prometheus.CounterVec
	sessionsCreated prometheus.Counter
	sessionsRevoked prometheus.Counter
	pendingRejected prometheus.Counter
	orphansRepaired prometheus.Counter
	sessionsSwept   prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "glide_login_attempts_total",
			Help: "ログイン方式と結果別のログイン試行数",
		}, []string{"method", "outcome"}),
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "glide_sessions_created_total",
			Help: "発行したセッションの合計数",
		}),
		sessionsRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "glide_sessions_revoked_total",
			Help: "ログアウトで破棄したセッションの合計数",
		}),
		pendingRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "glide_pending_login_rejections_total",
			Help: "未登録・再利用・期限切れのstateで拒否したコールバック数",
		}),
		orphansRepaired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "glide_orphan_links_repaired_total",
			Help: "所有ユーザーが存在しないため削除したプロバイダー連携数",
		}),
		sessionsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "glide_sessions_swept_total",
			Help: "期限切れとして削除したセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.loginAttempts,
		c.sessionsCreated,
		c.sessionsRevoked,
		c.pendingRejected,
		c.orphansRepaired,
		c.sessionsSwept,
	)

	return c
}

// RecordLogin はログイン試行を方式と結果のラベル付きで記録する。
func (c *Collector) RecordLogin(method, outcome string) {
	c.loginAttempts.WithLabelValues(method, outcome).Inc()
}

// RecordSessionCreated はセッション発行を記録する。
func (c *Collector) RecordSessionCreated() {
	c.sessionsCreated.Inc()
}

// RecordSessionRevoked はセッション破棄を記録する。
func (c *Collector) RecordSessionRevoked() {
	c.sessionsRevoked.Inc()
}

// RecordPendingRejected はstate検証による拒否を記録する。
func (c *Collector) RecordPendingRejected() {
	c.pendingRejected.Inc()
}

// RecordOrphanRepaired は孤立した連携の修復を記録する。
func (c *Collector) RecordOrphanRepaired() {
	c.orphansRepaired.Inc()
}

// RecordSessionsSwept は期限切れセッションの削除件数を記録する。
func (c *Collector) RecordSessionsSwept(count int64) {
	c.sessionsSwept.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
