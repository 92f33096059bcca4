package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/courierlabs/messaging-test-harness/isolation"
	"github.com/courierlabs/messaging-test-harness/service"
)

const (
	listenerReadyTimeout = 10 * time.Second
	shutdownTimeout      = 5 * time.Second
)

// ServerState is the lifecycle state of the test listener.
type ServerState int

const (
	StateStopped ServerState = iota
	StateStarting
	StateRunning
	StateStopping
	// StateFailed is terminal: it is reached from Starting when the bind
	// fails, and the suite must treat it as fatal rather than retry.
	StateFailed
)

func (s ServerState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// ServerLifecycle owns the ephemeral listener that routes inbound test
// traffic into the system under test's real entry point. The port is fixed
// and reserved for the suite.
//
// Routes: POST /send submits inbound traffic, GET /state/{id} and
// GET /history/{id} are read-only probes, DELETE /user/{id} is a targeted
// reset. HEAD requests answer 200 and are used for readiness probing.
type ServerLifecycle struct {
	port   int
	svc    service.Service
	iso    *isolation.Manager
	logger zerolog.Logger

	lock     sync.Mutex
	state    ServerState
	listener net.Listener
	server   *http.Server
}

func NewServerLifecycle(port int, svc service.Service, iso *isolation.Manager, logger zerolog.Logger) *ServerLifecycle {
	return &ServerLifecycle{
		port:   port,
		svc:    svc,
		iso:    iso,
		logger: logger.With().Str("component", "test-server").Logger(),
	}
}

// State returns the current lifecycle state.
func (s *ServerLifecycle) State() ServerState {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.state
}

// BaseURL returns the address test clients should use.
func (s *ServerLifecycle) BaseURL() string {
	return fmt.Sprintf("http://localhost:%d", s.port)
}

// Start binds the listener and returns only once it is verifiably accepting
// connections. A bind failure moves the lifecycle to the terminal Failed
// state and returns ErrBindFailed.
func (s *ServerLifecycle) Start(ctx context.Context) error {
	s.lock.Lock()
	if s.state != StateStopped {
		state := s.state
		s.lock.Unlock()
		return fmt.Errorf("%w: cannot start from %s", ErrServerState, state)
	}
	s.state = StateStarting
	s.lock.Unlock()

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		s.lock.Lock()
		s.state = StateFailed
		s.lock.Unlock()
		return fmt.Errorf("%w: port %d: %v", ErrBindFailed, s.port, err)
	}

	server := &http.Server{Handler: http.HandlerFunc(s.serveHTTP)}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("listener terminated unexpectedly")
		}
	}()

	s.lock.Lock()
	s.listener = ln
	s.server = server
	s.lock.Unlock()

	// Wait until the listener is definitely accepting requests before any
	// test traffic is sent through it.
	if err := s.awaitReady(ctx); err != nil {
		_ = server.Close()
		s.lock.Lock()
		s.state = StateFailed
		s.listener = nil
		s.server = nil
		s.lock.Unlock()
		return err
	}

	s.lock.Lock()
	s.state = StateRunning
	s.lock.Unlock()
	s.logger.Info().Int("port", s.port).Msg("test server accepting connections")
	return nil
}

func (s *ServerLifecycle) awaitReady(ctx context.Context) error {
	outcome := Await(ctx, AwaitOptions{Timeout: listenerReadyTimeout, PollInterval: 10 * time.Millisecond},
		func() (bool, error) {
			resp, err := http.DefaultClient.Head(s.BaseURL())
			if err != nil {
				return false, nil
			}
			resp.Body.Close()
			return resp.StatusCode == http.StatusOK, nil
		})
	if !outcome.Satisfied {
		return fmt.Errorf("%w: could not detect own listener on port %d", ErrBindFailed, s.port)
	}
	return nil
}

// Stop closes the listener and releases the port. Safe to call without a
// prior successful Start, and safe to call twice; both leave the port
// unbound without error.
func (s *ServerLifecycle) Stop(ctx context.Context) error {
	s.lock.Lock()
	switch s.state {
	case StateStopped, StateStopping:
		s.lock.Unlock()
		return nil
	case StateFailed:
		// A partial start never leaks the port: any listener that got as far
		// as binding was already closed on the failure path.
		s.lock.Unlock()
		return nil
	}
	s.state = StateStopping
	server := s.server
	s.server = nil
	s.listener = nil
	s.lock.Unlock()

	var err error
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
		if err = server.Shutdown(shutdownCtx); err != nil {
			err = server.Close()
		}
	}

	s.lock.Lock()
	s.state = StateStopped
	s.lock.Unlock()
	s.logger.Info().Msg("test server stopped")
	return err
}

func (s *ServerLifecycle) serveHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK) // readiness probe
		return
	}

	switch {
	case req.URL.Path == "/send" && req.Method == http.MethodPost:
		s.handleSend(w, req)
	case strings.HasPrefix(req.URL.Path, "/state/") && req.Method == http.MethodGet:
		s.handleState(w, req, strings.TrimPrefix(req.URL.Path, "/state/"), false)
	case strings.HasPrefix(req.URL.Path, "/history/") && req.Method == http.MethodGet:
		s.handleState(w, req, strings.TrimPrefix(req.URL.Path, "/history/"), true)
	case strings.HasPrefix(req.URL.Path, "/user/") && req.Method == http.MethodDelete:
		s.handleResetUser(w, req, strings.TrimPrefix(req.URL.Path, "/user/"))
	default:
		s.logger.Debug().Str("path", req.URL.Path).Str("method", req.Method).
			Msg("request for unrecognized route")
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *ServerLifecycle) handleSend(w http.ResponseWriter, req *http.Request) {
	var msg service.Inbound
	if err := json.NewDecoder(req.Body).Decode(&msg); err != nil {
		http.Error(w, fmt.Sprintf("malformed inbound message: %s", err), http.StatusBadRequest)
		return
	}
	if msg.Subject == "" {
		http.Error(w, "inbound message requires a subject", http.StatusBadRequest)
		return
	}
	if err := s.svc.HandleInbound(req.Context(), msg); err != nil {
		s.logger.Error().Err(err).Str("subject", msg.Subject).Msg("inbound handling failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	// Processing is asynchronous; acceptance is all that can be acknowledged.
	w.WriteHeader(http.StatusAccepted)
}

func (s *ServerLifecycle) handleState(w http.ResponseWriter, req *http.Request, subject string, historyOnly bool) {
	snapshot, err := s.svc.QueryState(req.Context(), subject)
	if err != nil {
		if errors.Is(err, service.ErrUnknownSubject) {
			http.Error(w, fmt.Sprintf("no state for subject %q", subject), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	var body interface{} = snapshot
	if historyOnly {
		body = snapshot.History
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error().Err(err).Msg("could not encode probe response")
	}
}

func (s *ServerLifecycle) handleResetUser(w http.ResponseWriter, req *http.Request, subject string) {
	if err := s.iso.ResetSubject(req.Context(), subject); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
