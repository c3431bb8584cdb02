package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"shashin/internal/auth"
	"shashin/internal/config"
	"shashin/internal/generated"
	"shashin/internal/metrics"
	"shashin/internal/renderer"
	"shashin/internal/session"
)

// Dependencies はサーバーが操作するコンポーネント
type Dependencies struct {
	Session     *session.Session
	Renderer    *renderer.FrameRenderer
	Environment *ClientEnvironment
	Metrics     *metrics.Metrics
	Issuer      *auth.Issuer
	Logger      *logrus.Entry
}

// Server はHTTPサーバーを管理する構造体
type Server struct {
	config     *config.Config
	httpServer *http.Server
	router     *gin.Engine
	session    *session.Session
	metrics    *metrics.Metrics
	logger     *logrus.Entry
}

// New は新しいServerインスタンスを作成する
func New(cfg *config.Config, deps Dependencies) (*Server, error) {
	logger := deps.Logger
	if logger == nil {
		logger = logrus.WithField("component", "server")
	}

	doc, err := generated.GetSwagger()
	if err != nil {
		return nil, err
	}
	validator, err := newRequestValidator(doc)
	if err != nil {
		return nil, fmt.Errorf("リクエスト検証の初期化に失敗: %w", err)
	}

	handler := &ShashinHandler{
		config:   cfg,
		session:  deps.Session,
		renderer: deps.Renderer,
		env:      deps.Environment,
		metrics:  deps.Metrics,
		issuer:   deps.Issuer,
		logger:   logger,
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger), validator)

	options := generated.GinServerOptions{
		ErrorHandler: handler.handleParamError,
	}
	if cfg.Auth.Required {
		options.Middlewares = append(options.Middlewares, requireToken(deps.Issuer))
	}
	generated.RegisterHandlersWithOptions(router, handler, options)
	router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	router.GET("/", handler.serveIndex)
	router.StaticFS("/assets", GetAssetsFS())

	return &Server{
		config:  cfg,
		router:  router,
		session: deps.Session,
		metrics: deps.Metrics,
		logger:  logger,
		httpServer: &http.Server{
			Addr:         cfg.ServerAddress(),
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}, nil
}

// Handler はルーティング済みのハンドラーを返す
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start はサーバーを起動する
func (s *Server) Start(ctx context.Context) error {
	// セッション状態をメトリクスに反映する
	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	go s.metrics.Watch(watchCtx, s.session)

	// シャットダウン用のチャンネル
	shutdownCh := make(chan error, 1)

	// サーバーを別ゴルーチンで起動
	go func() {
		s.logger.WithField("address", s.config.ServerAddress()).Info("HTTPサーバーを起動しています")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			shutdownCh <- fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
	}()

	// シグナルハンドリング
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// コンテキストかシグナルを待つ
	select {
	case <-ctx.Done():
		s.logger.Info("コンテキストがキャンセルされました")
	case sig := <-sigCh:
		s.logger.WithField("signal", sig.String()).Info("シグナルを受信しました")
	case err := <-shutdownCh:
		s.session.Close()
		return err
	}

	// グレースフルシャットダウン
	return s.Shutdown()
}

// Shutdown はサーバーをグレースフルにシャットダウンし、カメラを解放する
func (s *Server) Shutdown() error {
	s.logger.Info("サーバーをシャットダウンしています...")

	// 開いたままのデバイスを必ず停止する
	defer s.session.Close()

	timeout := s.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}

	s.logger.Info("サーバーが正常にシャットダウンされました")
	return nil
}

// requestLogger はリクエストをログに出力するミドルウェア
func requestLogger(logger *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("リクエストの処理に失敗しました")
			return
		}
		entry.Debug("リクエストを処理しました")
	}
}
