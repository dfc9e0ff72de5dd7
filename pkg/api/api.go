package api

import (
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/embedops/flashgate/pkg/config"
	"github.com/embedops/flashgate/pkg/metrics"
)

// APIController is one mountable group of routes under /api.
type APIController interface {
	BasePath() string
	Register(rg *gin.RouterGroup) error
	Handlers() []gin.HandlerFunc
}

type Server struct {
	gin    *gin.Engine
	config config.Config
}

// NewServer builds the gin engine with logging, recovery and the ambient
// routes. Panics anywhere in a handler still produce a well-formed JSON 500
// via the recovery middleware rather than a dropped connection.
func NewServer(log *zap.Logger, cfg config.Config, debug bool) *Server {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(
		ginzap.Ginzap(log, time.RFC3339, true),
		ginzap.RecoveryWithZap(log, true),
	)
	if len(cfg.Server.TrustedProxies) > 0 {
		_ = engine.SetTrustedProxies(cfg.Server.TrustedProxies)
	}

	engine.NoRoute(ServeSPA("/", cfg.Server.FrontendDir))
	engine.GET("/metrics", gin.WrapH(metrics.MetricsHandler()))

	if debug {
		engine.Use(
			cors.New(cors.Config{
				AllowOrigins: []string{"http://localhost:5173", "127.0.0.1:8080"},
				AllowMethods: []string{"GET", "PUT", "PATCH", "POST", "OPTIONS"},
				AllowHeaders: []string{"Origin", "Authorization", "Content-Type"},
				MaxAge:       12 * time.Hour,
			}),
		)
	}

	return &Server{
		gin:    engine,
		config: cfg,
	}
}

func (s *Server) RegisterAll(controllers []APIController) error {
	r := s.gin.Group("api")
	for _, c := range controllers {
		if err := c.Register(r.Group(c.BasePath(), c.Handlers()...)); err != nil {
			return err
		}
	}
	return nil
}

// Engine exposes the underlying gin engine for tests.
func (s *Server) Engine() *gin.Engine {
	return s.gin
}

func (s *Server) Listen() error {
	if s.config.Server.TLSCertFile != "" && s.config.Server.TLSKeyFile != "" {
		return s.gin.RunTLS(s.config.Server.ListenAddress, s.config.Server.TLSCertFile, s.config.Server.TLSKeyFile)
	}
	return s.gin.Run(s.config.Server.ListenAddress)
}
