// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 認証結果のラベル値
const (
	ResultSuccess            = "success"
	ResultInvalidCredentials = "invalid_credentials"
	ResultDuplicateEmail     = "duplicate_email"
	ResultInvalidInput       = "invalid_input"
	ResultLocked             = "locked"
	ResultInvalid            = "invalid"
	ResultError              = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証サービス、ミドルウェア、ワーカーから利用する。
type MetricsCollector interface {
	RecordSignIn(result string)
	RecordSignUp(result string)
	RecordSessionVerify(result string)
	RecordSignOut()
	RecordHTTPStatus(statusCode int)
	RecordHashLatency(duration time.Duration)
	RecordSessionsPurged(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	signIn         *prometheus.CounterVec
	signUp         *prometheus.CounterVec
	sessionVerify  *prometheus.CounterVec
	signOut        prometheus.Counter
	httpStatus     *prometheus.CounterVec
	hashLatency    prometheus.Histogram
	sessionsPurged prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		signIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_auth_signin_total",
			Help: "サインイン試行の結果別件数",
		}, []string{"result"}),
		signUp: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_auth_signup_total",
			Help: "サインアップ試行の結果別件数",
		}, []string{"result"}),
		sessionVerify: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_auth_session_verify_total",
			Help: "セッション検証の結果別件数",
		}, []string{"result"}),
		signOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_auth_signout_total",
			Help: "サインアウトの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		hashLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "storefront_password_hash_seconds",
			Help:    "パスワードハッシュ計算・検証のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		sessionsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_sessions_purged_total",
			Help: "削除された期限切れセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.signIn,
		c.signUp,
		c.sessionVerify,
		c.signOut,
		c.httpStatus,
		c.hashLatency,
		c.sessionsPurged,
	)

	return c
}

// RecordSignIn はサインインの結果を記録する。
func (c *Collector) RecordSignIn(result string) {
	c.signIn.WithLabelValues(result).Inc()
}

// RecordSignUp はサインアップの結果を記録する。
func (c *Collector) RecordSignUp(result string) {
	c.signUp.WithLabelValues(result).Inc()
}

// RecordSessionVerify はセッション検証の結果を記録する。
func (c *Collector) RecordSessionVerify(result string) {
	c.sessionVerify.WithLabelValues(result).Inc()
}

// RecordSignOut はサインアウトを記録する。
func (c *Collector) RecordSignOut() {
	c.signOut.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordHashLatency はパスワードハッシュ処理のレイテンシを記録する。
func (c *Collector) RecordHashLatency(duration time.Duration) {
	c.hashLatency.Observe(duration.Seconds())
}

// RecordSessionsPurged は削除された期限切れセッション数を記録する。
func (c *Collector) RecordSessionsPurged(count int64) {
	c.sessionsPurged.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

// nopCollector は何も記録しないMetricsCollector。
type nopCollector struct{}

// Nop は何も記録しないMetricsCollectorを返す。テストやメトリクス無効時に使用する。
func Nop() MetricsCollector { return nopCollector{} }

func (nopCollector) RecordSignIn(string)             {}
func (nopCollector) RecordSignUp(string)             {}
func (nopCollector) RecordSessionVerify(string)      {}
func (nopCollector) RecordSignOut()                  {}
func (nopCollector) RecordHTTPStatus(int)            {}
func (nopCollector) RecordHashLatency(time.Duration) {}
func (nopCollector) RecordSessionsPurged(int64)      {}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
