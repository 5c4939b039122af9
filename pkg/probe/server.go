package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"

	"storefront/pkg/contextx"
	"storefront/pkg/logx"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary //nolint:gochecknoglobals // skip

const (
	httpServerReadHeaderTimeout = 5 * time.Second
	checkTimeout                = 2 * time.Second
)

var logger = contextx.LoggerFromContextOrDefault //nolint:gochecknoglobals

// Check reports the health of one dependency. Optional checks are reported
// but never fail readiness.
type Check struct {
	Name     string
	Optional bool
	Probe    func(context.Context) error
}

type Server struct {
	listenAddress string
	options       Options
	checks        []Check
}

type Options struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type readyState struct {
	Options
	Checks map[string]string `json:"checks,omitempty"`
}

func NewServer(
	listenAddress string,
	options Options,
	checks ...Check,
) Server {
	return Server{
		listenAddress: listenAddress,
		options:       options,
		checks:        checks,
	}
}

func (s Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handlerHealthz)
	mux.HandleFunc("/ready", s.handlerReady)

	return mux
}

func (s Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		//nolint:exhaustruct
		Addr:              s.listenAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: httpServerReadHeaderTimeout,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		<-ctx.Done()

		if err := httpServer.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger(ctx).Error("httpServer.Shutdown", logx.Error(err))
		}
	}()

	logger(ctx).Info("probe server started", slog.String("address", s.listenAddress))

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("httpServer.ListenAndServe: %w", err)
	}

	logger(ctx).Info("probe server stopped")

	return nil
}

func (s Server) handlerHealthz(w http.ResponseWriter, r *http.Request) {
	s.write(r.Context(), w, http.StatusOK, readyState{Options: s.options})
}

func (s Server) handlerReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	state := readyState{Options: s.options, Checks: make(map[string]string, len(s.checks))}
	status := http.StatusOK

	for _, check := range s.checks {
		if err := check.Probe(ctx); err != nil {
			if check.Optional {
				state.Checks[check.Name] = "degraded"

				continue
			}

			state.Checks[check.Name] = "down"
			status = http.StatusServiceUnavailable

			continue
		}

		state.Checks[check.Name] = "ok"
	}

	s.write(ctx, w, status, state)
}

func (s Server) write(ctx context.Context, w http.ResponseWriter, status int, state readyState) {
	body, err := json.Marshal(state)
	if err != nil {
		logger(ctx).Error("json.Marshal", logx.Error(err))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body) //nolint:errcheck
}
