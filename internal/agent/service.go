package agent

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"slices"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/danmuck/capbridge/internal/bridge"
	"github.com/danmuck/capbridge/internal/config"
	"github.com/danmuck/capbridge/internal/host"
	"github.com/danmuck/capbridge/internal/registry"
	"github.com/rs/zerolog/log"
)

var ErrNoHosts = errors.New("agent: no host objects")

// ServiceConfig configures the agent runtime.
type ServiceConfig struct {
	Config config.Config
	// ConfigPath is watched for changes when set.
	ConfigPath string
	Heartbeat  time.Duration
	// Dialer overrides the websocket dialer.
	Dialer bridge.Dialer
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Config:    config.Default(),
		Heartbeat: 30 * time.Second,
	}
}

// Service composes the main loop, registry, bridge, supervisor and admin
// server for one process.
type Service struct {
	cfg    ServiceConfig
	loop   *registry.MainLoop
	reg    *registry.Registry
	bridge *bridge.Bridge
	sup    *Supervisor
	admin  *Admin

	mu        sync.Mutex
	hosts     []*host.Object
	adminAddr net.Addr
	started   chan struct{}
}

func NewService(cfg ServiceConfig) *Service {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = DefaultServiceConfig().Heartbeat
	}
	loop := registry.NewMainLoop()
	reg := registry.New(cfg.Config.Registry(), loop)
	b := bridge.New(cfg.Config.Bridge(), reg, cfg.Dialer)
	reg.SetPublisher(b)
	sup := NewSupervisor(b, cfg.Config.Session().Backoff)
	b.OnStatus(sup.Notify)

	return &Service{
		cfg:     cfg,
		loop:    loop,
		reg:     reg,
		bridge:  b,
		sup:     sup,
		admin:   NewAdmin(cfg.Config.ServiceID, reg, loop, b, cfg.Config.CORSOrigins),
		started: make(chan struct{}),
	}
}

func (s *Service) Registry() *registry.Registry { return s.reg }
func (s *Service) Bridge() *bridge.Bridge       { return s.bridge }
func (s *Service) Admin() *Admin                { return s.admin }
func (s *Service) MainLoop() *registry.MainLoop { return s.loop }

// Started is closed once hosts are registered and listeners are up.
func (s *Service) Started() <-chan struct{} { return s.started }

// AdminAddr is the bound admin address, nil until Started.
func (s *Service) AdminAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adminAddr
}

// Host adds objects to register when the service starts.
func (s *Service) Host(objs ...*host.Object) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hosts = append(s.hosts, objs...)
}

// Run blocks until SIGINT or SIGTERM.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Serve(ctx)
}

func (s *Service) Serve(ctx context.Context) error {
	s.mu.Lock()
	hosts := slices.Clone(s.hosts)
	s.mu.Unlock()
	if len(hosts) == 0 {
		return ErrNoHosts
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	loopDone := make(chan error, 1)
	go func() { loopDone <- s.loop.Run(ctx) }()

	var registered int
	if err := s.loop.Call(ctx, func(context.Context) {
		for _, h := range hosts {
			if s.reg.Register(h) {
				registered++
			}
		}
	}); err != nil {
		return err
	}
	log.Info().
		Str("service_id", s.cfg.Config.ServiceID).
		Int("hosts", len(hosts)).
		Int("targets", registered).
		Msg("agent.Service.Serve registered")

	if holder := s.watchConfig(); holder != nil {
		defer holder.Stop()
	}

	adminErr := make(chan error, 1)
	srv, err := s.listenAdmin(adminErr)
	if err != nil {
		return err
	}

	supDone := make(chan error, 1)
	go func() { supDone <- s.sup.Run(ctx) }()
	close(s.started)

	ticker := time.NewTicker(s.cfg.Heartbeat)
	defer ticker.Stop()

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("agent.Service.Serve shutdown")
			break loop
		case err := <-adminErr:
			runErr = err
			break loop
		case <-ticker.C:
			log.Info().
				Str("bridge", s.bridge.Status().String()).
				Int("targets", s.reg.Len()).
				Int("pending", s.bridge.Pending()).
				Int64("redials", s.sup.Attempts()).
				Msg("agent.Service.heartbeat")
		}
	}

	cancel()
	_ = s.bridge.Close()
	<-supDone
	if srv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		done()
	}
	<-loopDone
	for _, h := range hosts {
		h.Release()
	}
	return runErr
}

func (s *Service) listenAdmin(errs chan<- error) (*http.Server, error) {
	addr := strings.TrimSpace(s.cfg.Config.AdminAddr)
	if addr == "" {
		return nil, nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.adminAddr = ln.Addr()
	s.mu.Unlock()

	srv := &http.Server{Handler: s.admin.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("agent.Service admin listening")
	return srv, nil
}

func (s *Service) watchConfig() *config.Holder {
	if strings.TrimSpace(s.cfg.ConfigPath) == "" {
		return nil
	}
	holder, err := config.NewHolder(s.cfg.ConfigPath)
	if err != nil {
		log.Warn().Str("path", s.cfg.ConfigPath).Err(err).Msg("agent.Service config watch disabled")
		return nil
	}
	holder.OnChange(s.applyConfig)
	if err := holder.Watch(); err != nil {
		log.Warn().Str("path", s.cfg.ConfigPath).Err(err).Msg("agent.Service config watch disabled")
		return nil
	}
	return holder
}

// applyConfig picks up a new coordinator url; other changes need a restart.
func (s *Service) applyConfig(old, cur config.Config) {
	if old.CoordinatorURL != cur.CoordinatorURL {
		s.bridge.SetURL(cur.CoordinatorURL)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), cur.DialTimeout)
			defer cancel()
			if err := s.bridge.Reconnect(ctx); err != nil && !errors.Is(err, bridge.ErrClosed) {
				log.Warn().Str("url", cur.CoordinatorURL).Err(err).Msg("agent.Service reconnect after config change")
			}
		}()
	}
	old.CoordinatorURL = cur.CoordinatorURL
	if !configEqual(old, cur) {
		log.Warn().Str("path", s.cfg.ConfigPath).Msg("agent.Service config changed; restart to apply")
	}
}

func configEqual(a, b config.Config) bool {
	return a.ServiceID == b.ServiceID &&
		a.Color == b.Color &&
		a.Prefix == b.Prefix &&
		slices.Equal(a.Whitelist, b.Whitelist) &&
		slices.Equal(a.Lamps, b.Lamps) &&
		a.AdminAddr == b.AdminAddr &&
		a.SecurityMode == b.SecurityMode
}
