// Package dstg builds a dynamic state-transition graph of an Android app from
// the snapshots and interactions observed while exploring it.
//
// A Session owns one exploration: the static window model, the fingerprint
// collaborators, the state manager and the session's metrics.
package dstg

import (
	"fmt"
	"io"
	"sync"

	"dstg/avm"
	"dstg/checking"
	"dstg/config"
	"dstg/ewtg"
	"dstg/gui"
	"dstg/logging"
	"dstg/metrics"
	"dstg/pathCache"
	"dstg/reducer"
	"dstg/state"
	"dstg/stateManager"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type Option interface{}

type configOption struct{ cfg *config.Config }

// Use the provided configuration instead of config.Default.
func WithConfig(cfg *config.Config) Option {
	return configOption{cfg: cfg}
}

type loggerOption struct{ log *zap.Logger }

// Use the provided logger instead of one built from the configuration.
func WithLogger(log *zap.Logger) Option {
	return loggerOption{log: log}
}

type reducerOption struct{ r avm.Reducer }

// Fingerprint snapshots with the provided reducer.
//
// If no abstraction function is configured and the reducer also implements
// avm.AbstractionFunction it is used for both.
func WithReducer(r avm.Reducer) Option {
	return reducerOption{r: r}
}

type abstractionOption struct{ af avm.AbstractionFunction }

// Refine the fingerprint with the provided abstraction function.
func WithAbstractionFunction(af avm.AbstractionFunction) Option {
	return abstractionOption{af: af}
}

type pathCacheOption struct{ c *pathCache.Cache }

// Share a path cache with the session. It is purged whenever states are removed.
func WithPathCache(c *pathCache.Cache) Option {
	return pathCacheOption{c: c}
}

type registryOption struct{ reg *prometheus.Registry }

// Register the session's collectors on the provided registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return registryOption{reg: reg}
}

// Session is safe for concurrent use. Recording calls are serialized.
type Session struct {
	sync.Mutex

	cfg     *config.Config
	log     *zap.Logger
	metrics *metrics.Metrics
	static  *ewtg.Graph
	mgr     *stateManager.Manager
}

// Create a session over the static model and initialize its virtual states.
func NewSession(static *ewtg.Graph, opts ...Option) (*Session, error) {
	if static == nil {
		return nil, fmt.Errorf("dstg: a static model is required")
	}
	var (
		cfg         = config.Default()
		log         *zap.Logger
		red         avm.Reducer
		abstraction avm.AbstractionFunction
		cache       *pathCache.Cache
		reg         *prometheus.Registry
	)
	for _, opt := range opts {
		switch t := opt.(type) {
		case configOption:
			cfg = t.cfg
		case loggerOption:
			log = t.log
		case reducerOption:
			red = t.r
		case abstractionOption:
			abstraction = t.af
		case pathCacheOption:
			cache = t.c
		case registryOption:
			reg = t.reg
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if log == nil {
		var err error
		log, err = logging.New(logging.Config{Level: cfg.LogLevel, Development: cfg.LogDevelopment})
		if err != nil {
			return nil, fmt.Errorf("dstg: building logger: %w", err)
		}
	}
	if abstraction == nil {
		if af, ok := red.(avm.AbstractionFunction); ok {
			abstraction = af
		}
	}
	if red == nil || abstraction == nil {
		def, err := reducer.New(cfg.MaxPrecision, cfg.ReducerCacheSize)
		if err != nil {
			return nil, err
		}
		if red == nil {
			red = def
		}
		if abstraction == nil {
			abstraction = def
		}
	}
	if cache == nil {
		var err error
		if cache, err = pathCache.New(cfg.PathCacheSize); err != nil {
			return nil, err
		}
	}
	m := metrics.New()
	if reg != nil {
		m = metrics.NewWithRegistry(reg)
	}

	mgrOpts := []stateManager.Option{
		stateManager.RefinementCeiling(cfg.RefinementCeiling),
		stateManager.WithPathCache(cache),
	}
	if cfg.CheckInvariants {
		mgrOpts = append(mgrOpts, stateManager.CheckInvariants())
	}
	mgr, err := stateManager.New(static, red, abstraction, log.Named("stateManager"), m, mgrOpts...)
	if err != nil {
		return nil, err
	}
	if err := mgr.Init(); err != nil {
		return nil, err
	}
	return &Session{
		cfg:     cfg,
		log:     log,
		metrics: m,
		static:  static,
		mgr:     mgr,
	}, nil
}

func (s *Session) RecordSnapshot(snap *gui.State, env gui.Environment, hint *ewtg.Window) (*state.AbstractState, error) {
	s.Lock()
	defer s.Unlock()
	return s.mgr.RecordSnapshot(snap, env, hint)
}

func (s *Session) RecordInteraction(in *gui.Interaction, coverage *state.Coverage) (*state.AbstractTransition, error) {
	s.Lock()
	defer s.Unlock()
	return s.mgr.RecordInteraction(in, coverage)
}

func (s *Session) RecordTrace(traceID, step, interactionID int) error {
	s.Lock()
	defer s.Unlock()
	return s.mgr.RecordTrace(traceID, step, interactionID)
}

func (s *Session) RecordHandlers(interactionID int, handlers map[string]bool) error {
	s.Lock()
	defer s.Unlock()
	return s.mgr.RecordHandlers(interactionID, handlers)
}

func (s *Session) LoadHistory(h *stateManager.History) (int, error) {
	s.Lock()
	defer s.Unlock()
	return s.mgr.LoadHistory(h)
}

func (s *Session) ExportHistory() *stateManager.History {
	s.Lock()
	defer s.Unlock()
	return s.mgr.ExportHistory()
}

// Rebuild every abstract state of the window's activity.
func (s *Session) RebuildWindow(w *ewtg.Window) error {
	s.Lock()
	defer s.Unlock()
	return s.mgr.RebuildWindow(w)
}

// Calls f with exclusive access to the state manager.
//
// The states and transitions reachable from the manager must not be retained after f returns.
func (s *Session) View(f func(m *stateManager.Manager) error) error {
	s.Lock()
	defer s.Unlock()
	return f(s.mgr)
}

// Returns the ambiguities accepted as unavoidable.
func (s *Session) Abandoned() []stateManager.Ambiguity {
	s.Lock()
	defer s.Unlock()
	return s.mgr.Abandoned()
}

func (s *Session) Check() checking.Response {
	s.Lock()
	defer s.Unlock()
	return s.mgr.Check()
}

// Write the state list and the per state detail files into dir.
// An empty dir uses the configured report directory.
func (s *Session) WriteReport(dir string) error {
	if dir == "" {
		dir = s.cfg.ReportDir
	}
	s.Lock()
	defer s.Unlock()
	if err := s.mgr.WriteReport(dir); err != nil {
		return fmt.Errorf("dstg: writing report: %w", err)
	}
	s.log.Info("wrote report", zap.String("dir", dir), zap.Int("states", len(s.mgr.States(false))))
	return nil
}

func (s *Session) WriteDOT(w io.Writer) error {
	s.Lock()
	defer s.Unlock()
	return s.mgr.WriteDOT(w)
}

func (s *Session) Static() *ewtg.Graph {
	return s.static
}

func (s *Session) Config() *config.Config {
	return s.cfg
}

func (s *Session) Logger() *zap.Logger {
	return s.log
}

func (s *Session) Metrics() *metrics.Metrics {
	return s.metrics
}

// Flush the session's logger.
func (s *Session) Close() error {
	// Sync on stderr returns EINVAL on some platforms
	_ = s.log.Sync()
	return nil
}
