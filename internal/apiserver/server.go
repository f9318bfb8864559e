package apiserver

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/danshapiro/skillproto/internal/discovery"
	"github.com/danshapiro/skillproto/internal/orchestrator"
	"github.com/danshapiro/skillproto/internal/registry"
	"github.com/danshapiro/skillproto/internal/scheduler"
)

// Config holds HTTP server configuration (spec.md §6.2).
type Config struct {
	Addr         string // host:port to listen on
	APIPrefix    string // default "/api/v1"
	AuthRequired bool
	AuthHeader   string // default "X-API-Key"
	APIKeys      map[string]bool
}

func (c *Config) applyDefaults() {
	if c.APIPrefix == "" {
		c.APIPrefix = "/api/v1"
	}
	if c.AuthHeader == "" {
		c.AuthHeader = "X-API-Key"
	}
}

// Server is the skill protocol server's HTTP API (spec.md §6.1).
type Server struct {
	config Config
	reg    *registry.Registry
	sched  *scheduler.Scheduler
	orch   *orchestrator.Orchestrator
	disc   *discovery.Index
	broad  *broadcastRegistry

	baseCtx context.Context
	cancel  context.CancelFunc
	httpSrv *http.Server
	logger  *log.Logger
}

// New builds a Server wired to its component collaborators. The
// mux-construction/signal-handling/graceful-shutdown shape is adapted from
// the teacher's internal/server/server.go.
func New(cfg Config, reg *registry.Registry, sched *scheduler.Scheduler, orch *orchestrator.Orchestrator, disc *discovery.Index, logger *log.Logger) *Server {
	cfg.applyDefaults()
	if logger == nil {
		logger = log.New(os.Stderr, "[skillproto] ", log.LstdFlags)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:  cfg,
		reg:     reg,
		sched:   sched,
		orch:    orch,
		disc:    disc,
		broad:   newBroadcastRegistry(),
		baseCtx: ctx,
		cancel:  cancel,
		logger:  logger,
	}

	mux := http.NewServeMux()
	p := cfg.APIPrefix
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST "+p+"/skill/register", s.withAuth(s.handleRegister))
	mux.HandleFunc("POST "+p+"/skill/invoke", s.withAuth(s.handleInvoke))
	mux.HandleFunc("GET "+p+"/skill/status/{execution_id}", s.withAuth(s.handleStatus))
	mux.HandleFunc("GET "+p+"/skill/discovery", s.withAuth(s.handleDiscovery))
	mux.HandleFunc("GET "+p+"/skill/{skill_id}", s.withAuth(s.handleGetSkill))
	mux.HandleFunc("DELETE "+p+"/skill/{skill_id}", s.withAuth(s.handleDeleteSkill))
	mux.HandleFunc("POST "+p+"/skill/orchestrate", s.withAuth(s.handleOrchestrate))
	// Supplemented endpoints (SPEC_FULL.md §12): dry-run validation and
	// live execution streaming, neither named by spec.md's table but both
	// natural extensions of the orchestrator and scheduler already built.
	mux.HandleFunc("POST "+p+"/skill/orchestrate/validate", s.withAuth(s.handleValidateWorkflow))
	mux.HandleFunc("GET "+p+"/skill/stream/{execution_id}", s.withAuth(s.handleStream))

	s.httpSrv = &http.Server{
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE requires no write timeout
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	return s
}

// ListenAndServe starts the server and blocks until Shutdown is called
// (typically by the caller's own signal handler, as in
// cmd/skillproto-server/main.go's signalCancelContext).
func (s *Server) ListenAndServe() error {
	s.logger.Printf("listening on %s", s.config.Addr)
	s.httpSrv.Addr = s.config.Addr
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully drains in-flight HTTP connections and cancels the
// server's base context.
func (s *Server) Shutdown() {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	_ = s.httpSrv.Shutdown(shutdownCtx)
	s.cancel()
}

// withAuth enforces the X-API-Key header when AuthRequired is set (spec.md
// §6.1: "authentication via X-API-Key header").
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.config.AuthRequired {
			next(w, r)
			return
		}
		key := r.Header.Get(s.config.AuthHeader)
		if key == "" || !s.config.APIKeys[key] {
			writeError(w, 401, "UNAUTHORIZED", "missing or invalid API key", nil)
			return
		}
		next(w, r)
	}
}
