// Package pod implements a reference pod: an HTTP server storing objects
// in SQLite and speaking the wire protocol the remote client expects.
//
// Routes:
//
//	PUT    /{actor}/{name}   body = value; Channels, Allowed, Schema headers
//	GET    /{actor}/{name}   200 live, 410 tombstone
//	PATCH  /{actor}/{name}   body = {"value":[ops],"channels":[ops],"allowed":[ops]}
//	DELETE /{actor}/{name}
//	GET    /discover?channels=a,b&schema=<json>&ifModifiedSince=<ms>
//	GET    /list-channels?ifModifiedSince=<ms>
//	GET    /list-orphans?ifModifiedSince=<ms>
//
// Writes answer with the replaced state, 201 when the location was empty.
// Streams answer 204 when there is nothing to send. Requests carry an
// optional bearer token; writes and listings require one.
package pod

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/graffiti-garden/implementation-federated/internal/auth"
	"github.com/graffiti-garden/implementation-federated/internal/graffiti"
	"github.com/graffiti-garden/implementation-federated/internal/objstore"
)

// storageSource tags the locations this pod stores. Pods never echo it;
// clients know which pod they asked.
const storageSource = "pod"

// maxBody bounds request bodies.
const maxBody = 16 << 20

// Server is the pod's HTTP handler.
type Server struct {
	db       *objstore.Store
	compiler graffiti.SchemaCompiler
	verifier *auth.Verifier
	logger   *slog.Logger
	router   *mux.Router
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a pod serving db. verifier authenticates bearer tokens.
func New(db *objstore.Store, compiler graffiti.SchemaCompiler, verifier *auth.Verifier, opts ...Option) *Server {
	s := &Server{
		db:       db,
		compiler: compiler,
		verifier: verifier,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter().UseEncodedPath()
	r.Use(s.logRequests)

	r.Methods(http.MethodGet).Path("/discover").HandlerFunc(s.discover)
	r.Methods(http.MethodGet).Path("/list-channels").HandlerFunc(s.listChannels)
	r.Methods(http.MethodGet).Path("/list-orphans").HandlerFunc(s.listOrphans)

	r.Methods(http.MethodPut).Path("/{actor}/{name}").HandlerFunc(s.putObject)
	r.Methods(http.MethodGet).Path("/{actor}/{name}").HandlerFunc(s.getObject)
	r.Methods(http.MethodPatch).Path("/{actor}/{name}").HandlerFunc(s.patchObject)
	r.Methods(http.MethodDelete).Path("/{actor}/{name}").HandlerFunc(s.deleteObject)
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	s.logger.Info("pod listening", "addr", addr)

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		s.logger.Info("pod stopped")
		return nil
	}
}

// logRequests tags each request with an id and logs it once handled.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-Id", id)
		m := httpsnoop.CaptureMetrics(next, w, r)
		s.logger.Info("handled",
			"request", id,
			"method", r.Method,
			"url", r.URL,
			"status", m.Code,
			"duration", m.Duration)
	})
}
