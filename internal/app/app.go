// Package app wires configuration into a running storefront: logger,
// provider, hooks, store and HTTP client.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unkn0wn-root/querycache"
	"github.com/unkn0wn-root/querycache/codec"
	asynchook "github.com/unkn0wn-root/querycache/hooks/async"
	"github.com/unkn0wn-root/querycache/internal/config"
	"github.com/unkn0wn-root/querycache/internal/logging"
	"github.com/unkn0wn-root/querycache/promhooks"
	"github.com/unkn0wn-root/querycache/provider"
	bcprov "github.com/unkn0wn-root/querycache/provider/bigcache"
	"github.com/unkn0wn-root/querycache/provider/local"
	rprov "github.com/unkn0wn-root/querycache/provider/ristretto"
	"github.com/unkn0wn-root/querycache/sloghooks"
	"github.com/unkn0wn-root/querycache/storefront"
)

// App owns everything built from a Config. Close releases it in reverse.
type App struct {
	Log        logging.Logger
	Store      *querycache.Store
	Storefront *storefront.Storefront
	Registry   *prometheus.Registry

	hooks   *asynchook.Hooks
	metrics *http.Server
}

type Option func(*options)

type options struct {
	clientOpts []storefront.ClientOption
	logger     *logging.Logger
}

// WithClientOptions adds options to the backend client.
func WithClientOptions(opts ...storefront.ClientOption) Option {
	return func(o *options) { o.clientOpts = append(o.clientOpts, opts...) }
}

// WithLogger replaces the logger selected by LOG_BACKEND.
func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.logger = &l }
}

func New(cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	a := &App{Registry: prometheus.NewRegistry()}
	if o.logger != nil {
		a.Log = *o.logger
	} else {
		l, err := logging.New(cfg.App.LogBackend, cfg.App.Debug)
		if err != nil {
			return nil, err
		}
		a.Log = l
	}

	prov, err := NewProvider(cfg.Cache)
	if err != nil {
		return nil, err
	}

	a.Registry.MustRegister(collectors.NewGoCollector())
	var inner querycache.Hooks = promhooks.New(a.Registry, "storefront")
	if a.Log.Slog != nil && cfg.App.Debug {
		inner = multiHooks{inner, sloghooks.New(a.Log.Slog, sloghooks.Options{DedupEvery: 10})}
	}
	a.hooks = asynchook.New(inner, 1, 1024)

	store, err := querycache.New(querycache.Options{
		Namespace:     cfg.Cache.Namespace,
		Provider:      prov,
		Codec:         codec.Kind(strings.ToLower(cfg.Cache.Codec)),
		MaxDecode:     cfg.Cache.MaxDecode,
		StaleTime:     cfg.Cache.StaleTime,
		GCTime:        cfg.Cache.GCTime,
		SweepInterval: cfg.Cache.SweepInterval,
		Logger:        a.Log,
		Hooks:         a.hooks,
	})
	if err != nil {
		a.hooks.Close()
		_ = prov.Close(context.Background())
		return nil, err
	}
	a.Store = store

	clientOpts := append([]storefront.ClientOption{
		storefront.WithTimeout(cfg.Storefront.Timeout),
		storefront.WithClientLogger(a.Log),
	}, o.clientOpts...)
	a.Storefront, err = storefront.New(storefront.Options{
		Store:         store,
		API:           storefront.NewClient(cfg.Storefront.BaseURL, clientOpts...),
		PrefetchDelay: cfg.UI.PrefetchDelay,
		DebounceQuiet: cfg.UI.DebounceQuiet,
		Logger:        a.Log,
	})
	if err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}

	if cfg.App.MetricsAddr != "" {
		a.serveMetrics(cfg.App.MetricsAddr)
	}
	return a, nil
}

// NewProvider builds the byte store named by cfg.Provider.
func NewProvider(cfg config.CacheConfig) (provider.Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "local":
		return local.New(), nil
	case "ristretto":
		maxCost := max(cfg.MaxBytes, 1<<20)
		return rprov.New(rprov.Config{
			NumCounters: max(maxCost/100, 1000),
			MaxCost:     maxCost,
			BufferItems: 64,
		})
	case "bigcache":
		// entries outlive the sweep, which owns eviction
		life := max(2*cfg.GCTime, time.Hour)
		return bcprov.New(bcprov.Config{
			LifeWindow:         life,
			CleanWindow:        max(cfg.SweepInterval, time.Minute),
			HardMaxCacheSizeMB: int(max(cfg.MaxBytes>>20, 1)),
		})
	default:
		return nil, fmt.Errorf("app: unknown provider %q", cfg.Provider)
	}
}

func (a *App) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}))
	a.metrics = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Error("metrics server failed", querycache.Fields{"addr": addr, "err": err})
		}
	}()
	a.Log.Info("metrics listening", querycache.Fields{"addr": addr})
}

func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.metrics != nil {
		errs = append(errs, a.metrics.Shutdown(ctx))
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close(ctx))
	}
	if a.hooks != nil {
		a.hooks.Close()
	}
	_ = a.Log.Sync()
	return errors.Join(errs...)
}

// multiHooks fans every event out to each of its hooks in order.
type multiHooks []querycache.Hooks

func (m multiHooks) ReadDeduplicated(k string) {
	for _, h := range m {
		h.ReadDeduplicated(k)
	}
}

func (m multiHooks) StaleResponseDiscarded(k, reason string) {
	for _, h := range m {
		h.StaleResponseDiscarded(k, reason)
	}
}

func (m multiHooks) SelfHeal(k, reason string) {
	for _, h := range m {
		h.SelfHeal(k, reason)
	}
}

func (m multiHooks) ProviderSetRejected(k string) {
	for _, h := range m {
		h.ProviderSetRejected(k)
	}
}

func (m multiHooks) GenStoreError(op string, err error) {
	for _, h := range m {
		h.GenStoreError(op, err)
	}
}

func (m multiHooks) RollbackApplied(mutation string, restored int) {
	for _, h := range m {
		h.RollbackApplied(mutation, restored)
	}
}

func (m multiHooks) SnapshotMissing(mutation, k string) {
	for _, h := range m {
		h.SnapshotMissing(mutation, k)
	}
}

func (m multiHooks) EntriesEvicted(n int) {
	for _, h := range m {
		h.EntriesEvicted(n)
	}
}
