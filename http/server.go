// Package http 提供HTTP服务器功能
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"churnboard/auth"
	"churnboard/customer"
	"churnboard/dataset"
	"churnboard/history"
	"churnboard/ml"
	"churnboard/monitoring"
	"churnboard/pipeline"
)

// Predictor 运行一次预测
type Predictor interface {
	Predict(ctx context.Context, rec customer.Record, model ml.ModelID) (pipeline.Result, error)
}

// HistoryReader 读取预测历史
type HistoryReader interface {
	List() ([]history.Entry, error)
}

// DatasetReader 读取客户数据集
type DatasetReader interface {
	Preview(ctx context.Context) (dataset.Table, error)
	Summary(ctx context.Context) (dataset.Summary, error)
}

// ModelStatus 报告模型加载状态
type ModelStatus interface {
	Loaded() (version string, fetchedAt time.Time, ok bool)
}

// Deps 处理器依赖; Auth 为 nil 时不需要登录
type Deps struct {
	Predictor Predictor
	History   HistoryReader
	Dataset   DatasetReader
	Models    ModelStatus
	Auth      *auth.Manager
	Stream    http.Handler
	Metrics   *monitoring.Metrics
	Logger    *zap.Logger
}

// Server HTTP服务器
type Server struct {
	server  *http.Server
	config  ServerConfig
	deps    Deps
	logger  *zap.Logger
	pages   *pageSet
	handler http.Handler
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port           int
	Timeout        time.Duration
	AllowedOrigins []string
	MetricsPath    string
	MaxBodyBytes   int64
}

// DefaultServerConfig 默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:           8501,
		Timeout:        30 * time.Second,
		AllowedOrigins: []string{"*"},
		MetricsPath:    "/metrics",
		MaxBodyBytes:   1 << 20,
	}
}

// NewServer 创建HTTP服务器
func NewServer(config ServerConfig, deps Deps) (*Server, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	pages, err := loadPages()
	if err != nil {
		return nil, err
	}

	s := &Server{config: config, deps: deps, logger: deps.Logger, pages: pages}

	mux := http.NewServeMux()
	// 注册所有处理器
	s.registerAPI(mux)
	s.registerPages(mux)

	// 创建中间件链
	chain := Chain(
		RecoveryMiddleware(s.logger),          // 1. 恢复中间件（最先执行，捕获panic）
		LoggerMiddleware(s.logger),            // 2. 日志中间件
		SecurityHeadersMiddleware,             // 3. 安全头中间件
		CORSMiddleware(config.AllowedOrigins), // 4. CORS中间件
		TimeoutMiddleware(config.Timeout),     // 5. 超时中间件
		RequestSizeMiddleware(config.MaxBodyBytes),
	)

	// 包装处理器
	s.handler = chain(mux)
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Port),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

// handle 注册路由并按路由模式记录指标; protected 路由需要登录
func (s *Server) handle(mux *http.ServeMux, pattern string, protected bool, h http.HandlerFunc) {
	var handler http.Handler = h
	if protected && s.deps.Auth != nil {
		handler = s.deps.Auth.Require("/login")(handler)
	}
	if m := s.deps.Metrics; m != nil {
		route := pattern[strings.IndexByte(pattern, ' ')+1:]
		inner := handler
		handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := GetStartTime(r.Context())
			if start.IsZero() {
				start = time.Now()
			}
			rw := wrap(w)
			inner.ServeHTTP(rw, r)
			m.ObserveRequest(r.Method, route, rw.statusCode, time.Since(start))
		})
	}
	mux.Handle(pattern, handler)
}

// Handler 返回带中间件的处理器, 测试使用
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start 启动服务器
func (s *Server) Start() error {
	s.logger.Info("starting http server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop 停止服务器
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down http server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// Addr 返回服务器地址
func (s *Server) Addr() string {
	return s.server.Addr
}
