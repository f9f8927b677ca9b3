package app

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/louisbranch/famledger/internal/platform/id"
	"github.com/louisbranch/famledger/internal/platform/timeouts"
	graphqlapi "github.com/louisbranch/famledger/internal/services/ledger/api/graphql"
	"github.com/louisbranch/famledger/internal/services/ledger/engine"
	"github.com/louisbranch/famledger/internal/services/ledger/schedule"
	"github.com/louisbranch/famledger/internal/services/ledger/storage/sqlite"
)

// HealthService is the gRPC health service name the ledger reports under.
const HealthService = "famledger.ledger"

//go:embed voyager.html
var voyagerPage []byte

// Config selects where the server listens and what it runs against.
type Config struct {
	Addr             string
	DBPath           string
	LockTimeout      time.Duration
	ScheduleInterval time.Duration
}

// Server hosts the ledger HTTP and gRPC endpoints and owns their storage.
type Server struct {
	listener   net.Listener
	httpServer *http.Server
	grpcServer *grpc.Server
	health     *health.Server
	store      *sqlite.Store
	ledger     *engine.Ledger
	scheduler  *schedule.Scheduler
}

// New opens storage, replays the ledger and binds the listener.
func New(ctx context.Context, cfg Config) (*Server, error) {
	store, err := openStore(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	lockTimeout := cfg.LockTimeout
	if lockTimeout <= 0 {
		lockTimeout = timeouts.AccountLock
	}
	l, err := engine.Open(ctx, engine.Options{
		Journal:     store,
		IDs:         id.NewID,
		LockTimeout: lockTimeout,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	scheduler := schedule.New(l, schedule.WithInterval(cfg.ScheduleInterval))

	graphqlHandler, err := graphqlapi.NewHandler(graphqlapi.Service{Ledger: l, Index: store, Scheduler: scheduler})
	if err != nil {
		l.Close()
		_ = store.Close()
		return nil, err
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		l.Close()
		_ = store.Close()
		return nil, fmt.Errorf("listen on %s: %w", cfg.Addr, err)
	}

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(HealthService, grpc_health_v1.HealthCheckResponse_SERVING)

	mux := http.NewServeMux()
	mux.Handle("/graphql", http.TimeoutHandler(graphqlHandler, timeouts.Query, `{"errors":[{"message":"request timed out"}]}`))
	mux.HandleFunc("/voyager", serveVoyager)

	return &Server{
		listener: listener,
		httpServer: &http.Server{
			Handler:           h2c.NewHandler(route(grpcServer, mux), &http2.Server{}),
			ReadHeaderTimeout: timeouts.ReadHeader,
		},
		grpcServer: grpcServer,
		health:     healthServer,
		store:      store,
		ledger:     l,
		scheduler:  scheduler,
	}, nil
}

// route sends gRPC traffic to the gRPC server and everything else to mux.
func route(grpcServer *grpc.Server, mux http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ProtoMajor == 2 && strings.HasPrefix(r.Header.Get("Content-Type"), "application/grpc") {
			grpcServer.ServeHTTP(w, r)
			return
		}
		mux.ServeHTTP(w, r)
	})
}

func serveVoyager(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(voyagerPage)
}

// Addr returns the listener address for the server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run creates and serves a ledger server until context cancellation.
func Run(ctx context.Context, cfg Config) error {
	server, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve runs the listener and the rule scheduler until ctx is canceled or
// either fails.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	defer s.Close()

	log.Printf("ledger server listening at %v", s.listener.Addr())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := s.httpServer.Serve(s.listener)
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	})
	g.Go(func() error {
		return s.scheduler.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		s.health.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("ledger server shutdown: %v", err)
		}
		s.grpcServer.Stop()
		return nil
	})
	return g.Wait()
}

// Close releases server resources. It is safe to call more than once.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.health != nil {
		s.health.Shutdown()
	}
	if s.grpcServer != nil {
		s.grpcServer.Stop()
	}
	if s.httpServer != nil {
		_ = s.httpServer.Close()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	if s.ledger != nil {
		s.ledger.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close ledger store: %v", err)
		}
		s.store = nil
	}
}

func openStore(ctx context.Context, path string) (*sqlite.Store, error) {
	if strings.TrimSpace(path) == "" {
		path = filepath.Join("data", "ledger.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := sqlite.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open ledger sqlite store: %w", err)
	}
	return store, nil
}
