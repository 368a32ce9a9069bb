// Package secrets resolves secret:// references against Google Secret
// Manager. The API keeps two secrets there: the HMAC key the public booking
// form signs with, and the service-account credentials for the calendar
// mirror. A .secrets.local file stands in for Secret Manager during local
// development.
package secrets

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultEnvironment  = "local"
	defaultFallbackPath = ".secrets.local"
	metricNamespace     = "github.com/servihogar/api/internal/platform/secrets"
)

var secretManagerClientFactory = func(ctx context.Context, opts ...option.ClientOption) (*secretmanager.Client, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type accessClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves secret:// references, caching values per version so the
// booking endpoint does not hit Secret Manager on every signed request.
type Fetcher struct {
	client     accessClient
	clientOpts []option.ClientOption
	ownsClient bool

	logger *zap.Logger

	env         string
	project     string
	projectMap  map[string]string
	versionPins map[string]string

	fallbackPath string
	fallbackOnce sync.Once
	fallbackVals map[string]string
	fallbackErr  error

	mu    sync.RWMutex
	cache map[string]cachedValue

	metrics fetchMetrics
}

type cachedValue struct {
	value     string
	source    string
	fetchedAt time.Time
}

// Option customises Fetcher construction.
type Option func(*Fetcher)

// WithLogger sets the logger used for diagnostic output.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithEnvironment selects the environment key used to resolve per-environment project IDs.
func WithEnvironment(env string) Option {
	return func(f *Fetcher) {
		if env = strings.ToLower(strings.TrimSpace(env)); env != "" {
			f.env = env
		}
	}
}

// WithDefaultProject configures the project ID used when no environment mapping matches.
func WithDefaultProject(projectID string) Option {
	return func(f *Fetcher) {
		f.project = strings.TrimSpace(projectID)
	}
}

// WithProjectMap supplies environment-specific project IDs.
func WithProjectMap(m map[string]string) Option {
	return func(f *Fetcher) {
		f.projectMap = cloneMap(m)
	}
}

// WithFallbackFile overrides the path to the local fallback secrets file.
func WithFallbackFile(path string) Option {
	return func(f *Fetcher) {
		f.fallbackPath = strings.TrimSpace(path)
	}
}

// WithSecretManagerClient injects a preconfigured Secret Manager client (primarily for tests).
func WithSecretManagerClient(client accessClient) Option {
	return func(f *Fetcher) {
		f.client = client
	}
}

// WithClientOptions forwards Cloud client options when constructing the Secret Manager client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(f *Fetcher) {
		f.clientOpts = append(f.clientOpts, opts...)
	}
}

// WithVersionPins sets explicit version overrides keyed by canonical secret
// reference. Pinning lets the owner roll back a bad HMAC key rotation without
// a redeploy.
func WithVersionPins(pins map[string]string) Option {
	return func(f *Fetcher) {
		f.versionPins = cloneMap(pins)
	}
}

// NewFetcher builds a Fetcher. When no Secret Manager client can be
// constructed the fetcher still works off the fallback file, which keeps
// local runs free of cloud credentials.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	f := &Fetcher{
		logger:       zap.NewNop(),
		env:          defaultEnvironment,
		projectMap:   map[string]string{},
		versionPins:  map[string]string{},
		fallbackPath: defaultFallbackPath,
		cache:        make(map[string]cachedValue),
	}
	if env := strings.ToLower(strings.TrimSpace(os.Getenv("API_SECURITY_ENVIRONMENT"))); env != "" {
		f.env = env
	}

	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}

	f.metrics = newFetchMetrics(f.logger)

	if f.client == nil {
		client, err := secretManagerClientFactory(ctx, f.clientOpts...)
		if err != nil {
			f.logger.Warn("secrets: secret manager client unavailable; operating in fallback mode", zap.Error(err))
		} else {
			f.client = client
			f.ownsClient = true
		}
	}

	return f, nil
}

// Close releases the underlying Secret Manager client when the fetcher owns it.
func (f *Fetcher) Close() error {
	if f.ownsClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// Resolve returns the value for a secret:// reference. Cache first, then
// Secret Manager, then the fallback file when the remote call fails for a
// reason that local values can paper over.
func (f *Fetcher) Resolve(ctx context.Context, raw string) (string, error) {
	start := time.Now()
	ref, err := parseRef(raw)
	if err != nil {
		return "", err
	}

	version := f.pinnedVersion(ref)
	key := versionKey(ref.canonical, version)

	f.mu.RLock()
	entry, cached := f.cache[key]
	f.mu.RUnlock()
	if cached {
		f.metrics.cacheHit(ctx, ref.canonical)
		f.metrics.observe(ctx, time.Since(start), "cache", nil)
		return entry.value, nil
	}

	project := f.resolveProject(ref)
	remoteUsable := project != "" && f.client != nil

	if remoteUsable {
		value, fetchErr := f.access(ctx, project, ref.name, version)
		switch {
		case fetchErr == nil:
			f.remember(key, value, "remote")
			f.metrics.observe(ctx, time.Since(start), "remote", nil)
			return value, nil
		case !shouldFallBack(fetchErr):
			// NotFound stays an error: a missing secret is a deployment bug
			// and a local value would mask it.
			f.metrics.observe(ctx, time.Since(start), "error", fetchErr)
			return "", fmt.Errorf("secrets: fetch failed for %s: %w", ref.canonical, fetchErr)
		}
		f.logger.Debug("secrets: falling back to local secrets", zap.String("ref", ref.canonical))
	}

	value, ok := f.localValue(ref, version)
	if !ok {
		err := fmt.Errorf("secrets: fallback value not found for %s", ref.canonical)
		f.metrics.observe(ctx, time.Since(start), "error", err)
		return "", err
	}

	f.remember(key, value, "fallback")
	f.metrics.observe(ctx, time.Since(start), "fallback", nil)
	return value, nil
}

func (f *Fetcher) remember(key, value, source string) {
	f.mu.Lock()
	f.cache[key] = cachedValue{value: value, source: source, fetchedAt: time.Now()}
	f.mu.Unlock()
}

func (f *Fetcher) access(ctx context.Context, project, name, version string) (string, error) {
	resource := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, name, version)
	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: resource})
	if err != nil {
		return "", err
	}
	if resp == nil || resp.Payload == nil {
		return "", fmt.Errorf("secret manager returned empty payload for %s", resource)
	}
	return string(resp.Payload.GetData()), nil
}

func (f *Fetcher) resolveProject(ref secretRef) string {
	if ref.project != "" {
		return ref.project
	}
	if id := strings.TrimSpace(f.projectMap[f.env]); id != "" {
		return id
	}
	return f.project
}

func (f *Fetcher) pinnedVersion(ref secretRef) string {
	if ref.version != "" {
		return ref.version
	}
	if pin := strings.TrimSpace(f.versionPins[ref.canonical]); pin != "" {
		return pin
	}
	return "latest"
}

func (f *Fetcher) localValue(ref secretRef, version string) (string, bool) {
	f.fallbackOnce.Do(func() {
		f.fallbackVals, f.fallbackErr = readFallbackFile(f.fallbackPath)
	})

	if f.fallbackErr != nil {
		f.logger.Debug("secrets: fallback load error", zap.Error(f.fallbackErr))
		return "", false
	}

	if val, ok := f.fallbackVals[versionKey(ref.canonical, version)]; ok {
		return val, true
	}
	val, ok := f.fallbackVals[ref.canonical]
	return val, ok
}

// readFallbackFile parses the KEY=value fallback file. Keys are secret://
// references; lines starting with # are comments. A missing file is an empty
// set, not an error.
func readFallbackFile(path string) (map[string]string, error) {
	values := make(map[string]string)

	path = strings.TrimSpace(path)
	if path == "" {
		return values, nil
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return values, nil
		}
		return values, fmt.Errorf("secrets: unable to open fallback file %s: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" {
			continue
		}

		ref, err := parseRef(key)
		if err != nil {
			values[key] = value
			continue
		}
		version := ref.version
		if version == "" {
			version = "latest"
		}
		values[ref.canonical] = value
		values[versionKey(ref.canonical, version)] = value
	}
	if err := scanner.Err(); err != nil {
		return values, fmt.Errorf("secrets: failed reading %s: %w", path, err)
	}
	return values, nil
}

type fetchMetrics struct {
	latency     metric.Float64Histogram
	hasLatency  bool
	cacheHits   metric.Int64Counter
	hasCacheHit bool
}

func newFetchMetrics(logger *zap.Logger) fetchMetrics {
	meter := otel.GetMeterProvider().Meter(metricNamespace)

	var m fetchMetrics
	var err error

	m.latency, err = meter.Float64Histogram(
		"secrets.fetch.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency in milliseconds for secret fetch attempts"),
	)
	m.hasLatency = err == nil
	if err != nil {
		logger.Warn("secrets: unable to register latency metric", zap.Error(err))
	}

	m.cacheHits, err = meter.Int64Counter(
		"secrets.fetch.cache_hits",
		metric.WithDescription("Count of cache hits when resolving secrets"),
	)
	m.hasCacheHit = err == nil
	if err != nil {
		logger.Warn("secrets: unable to register cache hit metric", zap.Error(err))
	}

	return m
}

func (m fetchMetrics) observe(ctx context.Context, d time.Duration, source string, err error) {
	if !m.hasLatency {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("source", source)}
	if err != nil {
		attrs = append(attrs, attribute.String("error", err.Error()))
	}
	m.latency.Record(ctx, float64(d)/float64(time.Millisecond), metric.WithAttributes(attrs...))
}

func (m fetchMetrics) cacheHit(ctx context.Context, canonical string) {
	if !m.hasCacheHit {
		return
	}
	// The label is hashed to keep secret names out of the metrics backend.
	digest := sha256.Sum256([]byte(canonical))
	label := hex.EncodeToString(digest[:8])
	m.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("secret", label)))
}

type secretRef struct {
	canonical string
	name      string
	version   string
	project   string
}

// parseRef splits secret://name?version=N&project=P. The query selects a
// version or project; the canonical form strips it so cache keys and pins
// line up.
func parseRef(raw string) (secretRef, error) {
	if strings.TrimSpace(raw) == "" {
		return secretRef{}, errors.New("secrets: empty reference")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return secretRef{}, fmt.Errorf("secrets: invalid reference %q: %w", raw, err)
	}
	if u.Scheme != "secret" {
		return secretRef{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	name := strings.Trim(strings.TrimPrefix(u.Host+u.Path, "/"), "/")
	if name == "" {
		return secretRef{}, fmt.Errorf("secrets: missing secret name in %q", raw)
	}

	canonical := *u
	canonical.RawQuery = ""
	canonical.Fragment = ""
	query := u.Query()

	return secretRef{
		canonical: canonical.String(),
		name:      name,
		version:   strings.TrimSpace(query.Get("version")),
		project:   strings.TrimSpace(query.Get("project")),
	}, nil
}

func versionKey(canonical, version string) string {
	return canonical + "#" + version
}

func cloneMap(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for key, value := range src {
		dst[key] = value
	}
	return dst
}

func shouldFallBack(err error) bool {
	if err == nil {
		return false
	}
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}
