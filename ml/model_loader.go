package ml

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const defaultMaxBundleBytes = 64 << 20

// LoaderConfig controls how the remote bundle is fetched.
type LoaderConfig struct {
	URL string
	// Timeout bounds each attempt.
	Timeout      time.Duration
	RetryBackoff time.Duration
	// RefreshInterval of zero keeps the first bundle for the process lifetime.
	RefreshInterval time.Duration
	MaxBytes        int64
}

// FetchObserver is notified after every fetch attempt.
type FetchObserver interface {
	ObserveBundleFetch(err error, elapsed time.Duration)
}

type loadedBundle struct {
	bundle    *Bundle
	fetchedAt time.Time
}

// Loader fetches the bundle at most once per freshness window and shares it
// between requests. Concurrent callers wait on a single fetch.
type Loader struct {
	cfg      LoaderConfig
	client   *http.Client
	logger   *zap.Logger
	observer FetchObserver

	group   singleflight.Group
	current atomic.Pointer[loadedBundle]
	now     func() time.Time
}

func NewLoader(cfg LoaderConfig, client *http.Client, logger *zap.Logger) *Loader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBundleBytes
	}
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{cfg: cfg, client: client, logger: logger, now: time.Now}
}

func (l *Loader) SetObserver(o FetchObserver) {
	l.observer = o
}

// Bundle returns the cached bundle, fetching it when absent or stale. When a
// refresh fails the previous bundle keeps being served.
func (l *Loader) Bundle(ctx context.Context) (*Bundle, error) {
	cur := l.current.Load()
	if cur != nil && !l.stale(cur) {
		return cur.bundle, nil
	}

	// the shared fetch is detached from the caller; only cfg.Timeout bounds
	// each attempt
	fetchCtx := context.WithoutCancel(ctx)
	ch := l.group.DoChan("bundle", func() (interface{}, error) {
		if latest := l.current.Load(); latest != nil && latest != cur && !l.stale(latest) {
			return latest.bundle, nil
		}
		return l.refresh(fetchCtx)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		res = singleflight.Result{Err: &ArtifactFetchError{URL: l.cfg.URL, Err: ctx.Err()}}
	}
	if res.Err != nil {
		if cur != nil {
			l.logger.Warn("model bundle refresh failed, serving cached bundle",
				zap.String("version", cur.bundle.Version()),
				zap.Time("fetched_at", cur.fetchedAt),
				zap.Error(res.Err))
			return cur.bundle, nil
		}
		return nil, res.Err
	}
	return res.Val.(*Bundle), nil
}

// Loaded reports whether a bundle is cached and when it was fetched.
func (l *Loader) Loaded() (string, time.Time, bool) {
	cur := l.current.Load()
	if cur == nil {
		return "", time.Time{}, false
	}
	return cur.bundle.Version(), cur.fetchedAt, true
}

func (l *Loader) stale(b *loadedBundle) bool {
	return l.cfg.RefreshInterval > 0 && l.now().Sub(b.fetchedAt) >= l.cfg.RefreshInterval
}

// refresh makes one attempt and a single retry after the backoff.
func (l *Loader) refresh(ctx context.Context) (*Bundle, error) {
	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		start := l.now()
		bundle, err := l.fetch(ctx)
		if l.observer != nil {
			l.observer.ObserveBundleFetch(err, l.now().Sub(start))
		}
		if err == nil {
			l.current.Store(&loadedBundle{bundle: bundle, fetchedAt: l.now()})
			l.logger.Info("model bundle loaded",
				zap.String("url", l.cfg.URL),
				zap.String("version", bundle.Version()),
				zap.Int("attempt", attempt))
			return bundle, nil
		}
		lastErr = err
		l.logger.Warn("model bundle fetch failed",
			zap.String("url", l.cfg.URL),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if attempt == 1 {
			select {
			case <-ctx.Done():
				return nil, &ArtifactFetchError{URL: l.cfg.URL, Err: ctx.Err()}
			case <-time.After(l.cfg.RetryBackoff):
			}
		}
	}
	return nil, lastErr
}

func (l *Loader) fetch(ctx context.Context) (*Bundle, error) {
	u, err := url.Parse(l.cfg.URL)
	if err != nil || l.cfg.URL == "" {
		return nil, &ArtifactFetchError{URL: l.cfg.URL, Err: errors.New("invalid bundle url")}
	}
	if u.Scheme == "file" {
		return l.readFile(u.Path)
	}

	ctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.cfg.URL, nil)
	if err != nil {
		return nil, &ArtifactFetchError{URL: l.cfg.URL, Err: err}
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, &ArtifactFetchError{URL: l.cfg.URL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ArtifactFetchError{URL: l.cfg.URL, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	return l.decode(resp.Body)
}

func (l *Loader) readFile(path string) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ArtifactFetchError{URL: l.cfg.URL, Err: err}
	}
	defer f.Close()
	return l.decode(f)
}

func (l *Loader) decode(r io.Reader) (*Bundle, error) {
	body, err := io.ReadAll(io.LimitReader(r, l.cfg.MaxBytes+1))
	if err != nil {
		return nil, &ArtifactFetchError{URL: l.cfg.URL, Err: err}
	}
	if int64(len(body)) > l.cfg.MaxBytes {
		return nil, &ArtifactFetchError{URL: l.cfg.URL, Err: fmt.Errorf("bundle exceeds %d bytes", l.cfg.MaxBytes)}
	}
	bundle, err := DecodeBundle(bytes.NewReader(body))
	if err != nil {
		return nil, &ArtifactFetchError{URL: l.cfg.URL, Err: err}
	}
	return bundle, nil
}
