package app

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/querycache/codec"
	"github.com/unkn0wn-root/querycache/internal/config"
	"github.com/unkn0wn-root/querycache/internal/mockserver"
	"github.com/unkn0wn-root/querycache/provider/local"
	"github.com/unkn0wn-root/querycache/storefront"
)

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		App:        config.AppConfig{LogBackend: "slog", Debug: true},
		Storefront: config.StorefrontConfig{BaseURL: baseURL, Timeout: 5 * time.Second},
		Cache: config.CacheConfig{
			Namespace:     "test",
			StaleTime:     time.Minute,
			GCTime:        time.Minute,
			SweepInterval: -1,
			Provider:      "local",
			Codec:         "cbor",
			MaxBytes:      8 << 20,
		},
		UI: config.UIConfig{PrefetchDelay: 10 * time.Millisecond, DebounceQuiet: 10 * time.Millisecond},
	}
}

func TestNewProvider(t *testing.T) {
	ctx := context.Background()
	for _, name := range []string{"local", "ristretto", "bigcache"} {
		t.Run(name, func(t *testing.T) {
			p, err := NewProvider(config.CacheConfig{Provider: name, MaxBytes: 8 << 20, GCTime: time.Minute})
			require.NoError(t, err)
			defer p.Close(ctx)

			ok, err := p.Set(ctx, "k", []byte("v"), 1, 0)
			require.NoError(t, err)
			require.True(t, ok)
			got, ok, err := p.Get(ctx, "k")
			require.NoError(t, err)
			require.True(t, ok)
			assert.True(t, bytes.Equal([]byte("v"), got))
		})
	}

	_, err := NewProvider(config.CacheConfig{Provider: "memcached"})
	assert.Error(t, err)

	p, err := NewProvider(config.CacheConfig{})
	require.NoError(t, err)
	assert.IsType(t, &local.Provider{}, p)
}

func TestAppEndToEnd(t *testing.T) {
	ts := httptest.NewServer(mockserver.New(mockserver.Options{Count: 30, Seed: 7}))
	defer ts.Close()

	a, err := New(testConfig(ts.URL + "/api"))
	require.NoError(t, err)
	ctx := context.Background()

	p := a.Storefront.Books(storefront.ListParams{})
	_, err = p.Load(ctx, false)
	require.NoError(t, err)
	assert.Len(t, p.Items(), 20)
	p.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = a.Storefront.BookDetail(ctx, "1")
	}()
	_, err = a.Storefront.BookDetail(ctx, "1")
	require.NoError(t, err)
	<-done

	require.NoError(t, a.Close(ctx))
	mfs, err := a.Registry.Gather()
	require.NoError(t, err)
	var names []string
	for _, mf := range mfs {
		names = append(names, mf.GetName())
	}
	assert.Contains(t, names, "storefront_querycache_reads_deduplicated_total")
}

func TestAppRejectsBadCodec(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1/api")
	cfg.Cache.Codec = "xml"
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestAppAppliesMaxDecode(t *testing.T) {
	ts := httptest.NewServer(mockserver.New(mockserver.Options{Count: 3, Seed: 7}))
	defer ts.Close()

	cfg := testConfig(ts.URL + "/api")
	cfg.Cache.MaxDecode = 16
	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Close(context.Background())

	_, err = a.Storefront.BookDetail(context.Background(), "1")
	assert.ErrorIs(t, err, codec.ErrTooLarge)
}
