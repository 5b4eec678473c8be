package http

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/liunix61/uptane-server/internal/config"
	"github.com/liunix61/uptane-server/internal/domain"
	"github.com/liunix61/uptane-server/internal/logging"
	"github.com/liunix61/uptane-server/internal/usecase"
)

type NamespaceService interface {
	Create(ctx context.Context) (domain.Namespace, error)
	List(ctx context.Context) ([]domain.Namespace, error)
	Delete(ctx context.Context, namespaceID string) error
	RootMetadata(ctx context.Context, namespaceID string, repo domain.RepoKind) (*domain.Metadata, error)
}

type ObjectService interface {
	Upload(ctx context.Context, namespaceID, objectID string, body io.Reader, declaredSize string) error
	Exists(ctx context.Context, namespaceID, objectID string) (bool, error)
	Download(ctx context.Context, namespaceID, objectID string) (*usecase.ObjectContent, error)
}

type CredentialIssuer interface {
	Issue(ctx context.Context, namespaceID string) ([]byte, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	cfg config.Config
	r   *gin.Engine

	namespaces   NamespaceService
	objects      ObjectService
	provisioning CredentialIssuer
	store        Pinger
	storeMode    string

	adminAPIKey string

	rateLimiter         domain.RateLimiter
	rateLimitRequests   int
	rateLimitWindow     time.Duration
	rateLimitFailClosed bool
}

type ServerDeps struct {
	Namespaces   NamespaceService
	Objects      ObjectService
	Provisioning CredentialIssuer
	Store        Pinger
	StoreMode    string
	RateLimiter  domain.RateLimiter
	Logger       zerolog.Logger
}

func NewServer(cfg config.Config, deps ServerDeps) *Server {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logging.Middleware(deps.Logger))

	s := &Server{
		cfg:          cfg,
		r:            r,
		namespaces:   deps.Namespaces,
		objects:      deps.Objects,
		provisioning: deps.Provisioning,
		store:        deps.Store,
		storeMode:    deps.StoreMode,
		adminAPIKey:  cfg.AdminAPIKey,
	}
	s.initRateLimit(deps.RateLimiter)
	s.routes()
	return s
}

func (s *Server) initRateLimit(limiter domain.RateLimiter) {
	s.rateLimiter = limiter
	s.rateLimitRequests = s.cfg.RateLimitRequests
	s.rateLimitWindow = s.cfg.RateLimitWindow()
	s.rateLimitFailClosed = s.cfg.RateLimitFailClosed
}

func (s *Server) routes() {
	s.r.GET("/healthz", s.handleHealth)

	repo := s.r.Group("/repo/:namespace_id")
	{
		repo.POST("/objects/:prefix/:suffix", s.rateLimit(routeObjectsWrite), s.handleUpload)
		repo.HEAD("/objects/:prefix/:suffix", s.rateLimit(routeObjectsRead), s.handleExists)
		repo.GET("/objects/:prefix/:suffix", s.rateLimit(routeObjectsRead), s.handleDownload)
		repo.POST("/summary", s.rateLimit(routeObjectsWrite), s.handleUpload)
		repo.HEAD("/summary", s.rateLimit(routeObjectsRead), s.handleExists)
		repo.GET("/summary", s.rateLimit(routeObjectsRead), s.handleDownload)
	}

	s.r.GET("/objects/:prefix/:suffix", s.rateLimit(routeObjectsRead), s.handleDownload)
	s.r.GET("/summary", s.rateLimit(routeObjectsRead), s.handleDownload)

	ns := s.r.Group("/namespaces", s.requireAdmin)
	{
		ns.POST("", s.rateLimit(routeNamespacesWrite), s.handleCreateNamespace)
		ns.GET("", s.rateLimit(routeNamespacesRead), s.handleListNamespaces)
		ns.DELETE("/:namespace_id", s.rateLimit(routeNamespacesWrite), s.handleDeleteNamespace)
		ns.GET("/:namespace_id/provisioning-credentials", s.rateLimit(routeCredentials), s.handleProvisioningCredentials)
		ns.GET("/:namespace_id/:repo/root.json", s.rateLimit(routeNamespacesRead), s.handleRootMetadata)
	}

	s.r.NoRoute(func(c *gin.Context) {
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
}

func (s *Server) Handler() http.Handler {
	return s.r
}

func (s *Server) handleHealth(c *gin.Context) {
	status := "ok"
	if s.store != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			status = "degraded"
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "mode": s.storeMode})
}
