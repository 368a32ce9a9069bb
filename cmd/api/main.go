package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/servihogar/api/internal/di"
	"github.com/servihogar/api/internal/handlers"
	"github.com/servihogar/api/internal/platform/auth"
	"github.com/servihogar/api/internal/platform/config"
	pfirestore "github.com/servihogar/api/internal/platform/firestore"
	"github.com/servihogar/api/internal/platform/gcal"
	"github.com/servihogar/api/internal/platform/idempotency"
	"github.com/servihogar/api/internal/platform/jobs"
	"github.com/servihogar/api/internal/platform/observability"
	"github.com/servihogar/api/internal/platform/secrets"
	platformstorage "github.com/servihogar/api/internal/platform/storage"
	"github.com/servihogar/api/internal/repositories"
	firestoreRepo "github.com/servihogar/api/internal/repositories/firestore"
	"github.com/servihogar/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	requiredSecrets := requiredSecretNames(envValues)
	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecrets...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	timezone, err := loadBusinessTimezone(cfg.Business)
	if err != nil {
		logger.Fatal("failed to load business timezone", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}

	healthRepo, err := newHealthRepository(firestoreClient, fetcher)
	if err != nil {
		logger.Fatal("failed to initialise health checks", zap.Error(err))
	}

	registry, err := firestoreRepo.NewRegistry(firestoreProvider, healthRepo)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := registry.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	var proofs services.ProofStore
	if bucket := strings.TrimSpace(cfg.Storage.ProofsBucket); bucket != "" {
		storageClient, err := cloudstorage.NewClient(ctx)
		if err != nil {
			logger.Fatal("failed to initialise storage client", zap.Error(err))
		}
		defer func() {
			if err := storageClient.Close(); err != nil {
				logger.Warn("storage close error", zap.Error(err))
			}
		}()
		store, err := platformstorage.NewProofStore(storageClient, bucket)
		if err != nil {
			logger.Fatal("failed to initialise proof store", zap.Error(err))
		}
		proofs = store
	} else {
		logger.Warn("proofs bucket not configured; completion photos will be rejected")
	}

	var notifier services.NotificationPublisher
	if cfg.Notifications.ProjectID != "" && cfg.Notifications.NewOrderTopic != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.Notifications.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		publisher, err := jobs.NewPubSubNotificationPublisher(pubsubClient.Topic(cfg.Notifications.NewOrderTopic))
		if err != nil {
			logger.Fatal("failed to initialise notification publisher", zap.Error(err))
		}
		notifier = publisher
	}

	var gateway services.CalendarGateway
	gcalClient, err := gcal.NewClient(ctx, cfg.Calendar, timezone)
	switch {
	case errors.Is(err, gcal.ErrSyncDisabled):
		logger.Info("google calendar sync disabled; outbox will be left unconfigured")
	case err != nil:
		logger.Fatal("failed to initialise calendar client", zap.Error(err))
	default:
		gateway = gcalClient
	}

	container, err := di.NewContainer(ctx, cfg, registry, di.Externals{
		Proofs:   proofs,
		Notifier: notifier,
		Gateway:  gateway,
		Logger:   logger.Named("services"),
		Build:    buildInfo,
	})
	if err != nil {
		logger.Fatal("failed to assemble services", zap.Error(err))
	}

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier, auth.WithUserGetter(firebaseVerifier))

	idempotencyStore := idempotency.NewFirestoreStore(firestoreClient)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	oidcMiddleware := buildOIDCMiddleware(logger.Named("auth"), cfg)
	hmacMiddleware := buildHMACMiddleware(logger.Named("auth"), cfg)

	orderHandlers := handlers.NewOrderHandlers(authenticator, container.Services.Orders)
	availabilityHandlers := handlers.NewAvailabilityHandlers(authenticator, container.Services.Availability)
	customerHandlers := handlers.NewCustomerHandlers(authenticator, container.Services.Customers)
	calendarHandlers := handlers.NewCalendarHandlers(authenticator, container.Services.Calendars)
	staffHandlers := handlers.NewStaffHandlers(authenticator, container.Services.Staff)
	maintenanceHandlers := handlers.NewMaintenanceHandlers(authenticator, container.Services.Maintenance)
	internalHandlers := handlers.NewInternalHandlers(
		container.Services.Maintenance,
		container.Services.Sync,
		container.Services.Orders,
	)
	publicHandlers := handlers.NewPublicBookingHandlers(container.Services.Orders)
	healthHandlers := handlers.NewHealthHandlers(container.Services.System)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
	}

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithAvailabilityRoutes(availabilityHandlers.Routes),
		handlers.WithCustomerRoutes(customerHandlers.Routes),
		handlers.WithCalendarRoutes(calendarHandlers.Routes),
		handlers.WithStaffRoutes(staffHandlers.Routes),
		handlers.WithMaintenanceRoutes(maintenanceHandlers.Routes),
		handlers.WithInternalRoutes(internalHandlers.Routes),
		handlers.WithPublicRoutes(publicHandlers.Routes),
	}
	publicMiddlewares := []func(http.Handler) http.Handler{idempotencyMiddleware}
	if hmacMiddleware != nil {
		publicMiddlewares = append([]func(http.Handler) http.Handler{hmacMiddleware}, publicMiddlewares...)
	}
	opts = append(opts, handlers.WithPublicMiddlewares(publicMiddlewares...))
	if oidcMiddleware != nil {
		opts = append(opts, handlers.WithInternalMiddlewares(oidcMiddleware))
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())
	var backgroundWG sync.WaitGroup
	startBackgroundLoops(backgroundCtx, &backgroundWG, logger, cfg, container, idempotencyStore)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("servihogar api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	backgroundCancel()
	backgroundWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// startBackgroundLoops launches the maintenance ticker, the outbox drainer, the
// cancelled-order purge, and the idempotency cleanup. Each loop is also
// reachable through /internal for Cloud Scheduler deployments.
func startBackgroundLoops(ctx context.Context, wg *sync.WaitGroup, logger *zap.Logger, cfg config.Config, container *di.Container, store *idempotency.FirestoreStore) {
	if cfg.Maintenance.TickInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tickLogger := logger.Named("maintenance")
			if cfg.Maintenance.RunOnStartup {
				runMaintenanceTick(ctx, tickLogger, container)
			}
			ticker := time.NewTicker(cfg.Maintenance.TickInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					runMaintenanceTick(ctx, tickLogger, container)
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	if cfg.Outbox.DrainInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			drainLogger := logger.Named("sync")
			ticker := time.NewTicker(cfg.Outbox.DrainInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					runCtx, cancel := context.WithTimeout(ctx, time.Minute)
					result, err := container.Services.Sync.Drain(runCtx, time.Now().UTC())
					cancel()
					switch {
					case errors.Is(err, services.ErrSyncGatewayUnset):
						// Sync disabled; nothing to drain, ever.
						return
					case err != nil:
						drainLogger.Error("outbox drain error", zap.Error(err))
					case result.Processed > 0:
						drainLogger.Info("outbox drained",
							zap.Int("processed", result.Processed),
							zap.Int("succeeded", result.Succeeded),
							zap.Int("failed", result.Failed),
						)
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	if cfg.Purge.Interval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			purgeLogger := logger.Named("purge")
			ticker := time.NewTicker(cfg.Purge.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					runCtx, cancel := context.WithTimeout(ctx, time.Minute)
					purged, err := container.Services.Orders.PurgeCancelled(runCtx, services.PurgeCommand{
						Actor: services.SystemActor(),
						Now:   time.Now().UTC(),
					})
					cancel()
					if err != nil {
						purgeLogger.Error("purge error", zap.Error(err))
						continue
					}
					if purged > 0 {
						purgeLogger.Info("purged cancelled orders", zap.Int("count", purged))
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	if store != nil && cfg.Idempotency.CleanupInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cleanupLogger := logger.Named("idempotency")
			ticker := time.NewTicker(cfg.Idempotency.CleanupInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					runCtx, cancel := context.WithTimeout(ctx, time.Minute)
					removed, err := store.CleanupExpired(runCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
					cancel()
					if err != nil {
						cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
						continue
					}
					if removed > 0 {
						cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}
}

func runMaintenanceTick(ctx context.Context, logger *zap.Logger, container *di.Container) {
	runCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	result, err := container.Services.Maintenance.Tick(runCtx, time.Now().UTC())
	if err != nil {
		logger.Error("maintenance tick error", zap.Error(err))
		return
	}
	if len(result.Fired) > 0 || result.Skipped > 0 {
		logger.Info("maintenance tick completed",
			zap.Int("evaluated", result.Evaluated),
			zap.Strings("fired", result.Fired),
			zap.Int("skipped", result.Skipped),
		)
	}
}

func loadBusinessTimezone(cfg config.BusinessConfig) (*time.Location, error) {
	name := cfg.Timezone
	if name == "" {
		name = "America/Mexico_City"
	}
	return time.LoadLocation(name)
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func newHealthRepository(client *firestore.Client, fetcher *secrets.Fetcher) (repositories.HealthRepository, error) {
	checks := make([]repositories.DependencyCheck, 0, 2)
	if client != nil {
		c := client
		checks = append(checks, repositories.DependencyCheck{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				iter := c.Collections(ctx)
				_, err := iter.Next()
				if errors.Is(err, iterator.Done) {
					return nil
				}
				return err
			},
		})
	}
	if fetcher != nil {
		const secretHealthReference = "secret://system/healthz?version=latest"
		checks = append(checks, repositories.DependencyCheck{
			Name:    "secretManager",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := fetcher.Resolve(ctx, secretHealthReference)
				if err == nil {
					return nil
				}
				if st, ok := status.FromError(err); ok {
					switch st.Code() {
					case codes.NotFound:
						return nil
					}
				}
				return err
			},
		})
	}
	if len(checks) == 0 {
		return nil, errors.New("health: no dependency checks configured")
	}
	return repositories.NewDependencyHealthRepository(checks)
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.Security.OIDC.JWKSURL) == "" {
		return nil
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	adapter := observability.NewPrintfAdapter(logger)
	cache := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL, auth.WithJWKSLogger(adapter))
	validator := auth.NewOIDCValidator(cache, auth.WithOIDCLogger(adapter))

	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	issuers := cfg.Security.OIDC.Issuers
	if len(issuers) == 0 {
		logger.Warn("auth: OIDC issuers not configured; internal routes will reject requests")
	}

	return validator.RequireOIDC(audience, issuers)
}

func buildHMACMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	hmacSecrets := make(map[string]string)
	for key, value := range cfg.Security.HMAC.Secrets {
		if strings.TrimSpace(value) == "" {
			continue
		}
		hmacSecrets[strings.ToLower(key)] = value
	}
	if len(hmacSecrets) == 0 {
		return nil
	}

	provider := staticSecretProvider{secrets: hmacSecrets}
	nonces := auth.NewInMemoryNonceStore()
	adapter := observability.NewPrintfAdapter(logger)
	validator := auth.NewHMACValidator(provider, nonces,
		auth.WithHMACLogger(adapter),
		auth.WithHMACHeaders(cfg.Security.HMAC.SignatureHeader, cfg.Security.HMAC.TimestampHeader, cfg.Security.HMAC.NonceHeader),
		auth.WithHMACClockSkew(cfg.Security.HMAC.ClockSkew),
		auth.WithHMACNonceTTL(cfg.Security.HMAC.NonceTTL),
	)

	secretName := "public_form"
	if _, ok := hmacSecrets[secretName]; !ok {
		secretName = "default"
	}
	return validator.RequireHMAC(secretName)
}

type staticSecretProvider struct {
	secrets map[string]string
}

func (p staticSecretProvider) GetSecret(_ context.Context, name string) (string, error) {
	if len(p.secrets) == 0 {
		return "", errors.New("auth: hmac secrets not configured")
	}
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return "", errors.New("auth: secret name required")
	}
	if secret, ok := p.secrets[key]; ok && secret != "" {
		return secret, nil
	}
	return "", errors.New("auth: secret not found")
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		if value, ok := env[key]; ok {
			return strings.TrimSpace(value)
		}
		return ""
	}

	envLabel := strings.ToLower(lookup("API_SECURITY_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	projectMap := secretProjectMapFromEnv(env)
	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}
	versionPins := secretVersionPinsFromEnv(env)
	credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE")

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if len(projectMap) > 0 {
		opts = append(opts, secrets.WithProjectMap(projectMap))
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if len(versionPins) > 0 {
		opts = append(opts, secrets.WithVersionPins(versionPins))
	}
	if credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

func requiredSecretNames(env map[string]string) []string {
	var required []string

	hmacRaw := ""
	if env != nil {
		hmacRaw = strings.TrimSpace(env["API_SECURITY_HMAC_SECRETS"])
	}
	for _, key := range parseHMACSecretKeys(hmacRaw) {
		required = append(required, fmt.Sprintf("Security.HMAC.Secrets[%s]", key))
	}

	return uniqueStrings(required)
}

func secretProjectMapFromEnv(env map[string]string) map[string]string {
	raw := ""
	if env != nil {
		raw = env["API_SECRET_PROJECT_IDS"]
	}
	raw = strings.TrimSpace(raw)
	projects := make(map[string]string)
	if raw == "" {
		return projects
	}
	entries := strings.Split(raw, ",")
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		envLabel := strings.ToLower(strings.TrimSpace(parts[0]))
		project := strings.TrimSpace(parts[1])
		if envLabel == "" || project == "" {
			continue
		}
		projects[envLabel] = project
	}
	return projects
}

func secretVersionPinsFromEnv(env map[string]string) map[string]string {
	raw := ""
	if env != nil {
		raw = env["API_SECRET_VERSION_PINS"]
	}
	raw = strings.TrimSpace(raw)
	pins := make(map[string]string)
	if raw == "" {
		return pins
	}
	entries := strings.Split(raw, ",")
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		ref := strings.TrimSpace(parts[0])
		version := strings.TrimSpace(parts[1])
		if ref == "" || version == "" {
			continue
		}
		var prefix string
		if idx := strings.Index(ref, ":"); idx > 0 {
			schemeSplit := strings.Index(ref, "://")
			if schemeSplit == -1 || idx < schemeSplit {
				prefix = strings.ToLower(strings.TrimSpace(ref[:idx])) + ":"
				ref = strings.TrimSpace(ref[idx+1:])
			}
		}
		if strings.HasPrefix(ref, "sm://") {
			ref = "secret://" + strings.TrimPrefix(ref, "sm://")
		} else if !strings.HasPrefix(ref, "secret://") {
			ref = "secret://" + ref
		}
		ref = prefix + ref
		pins[ref] = version
	}
	return pins
}

func parseHMACSecretKeys(raw string) []string {
	values := parseKeyValueList(raw)
	if len(values) == 0 {
		return nil
	}
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, strings.ToLower(key))
	}
	sort.Strings(keys)
	return keys
}

func parseKeyValueList(raw string) map[string]string {
	result := make(map[string]string)
	if strings.TrimSpace(raw) == "" {
		return result
	}
	entries := strings.Split(raw, ",")
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" || value == "" {
			continue
		}
		result[key] = value
	}
	return result
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	sort.Strings(out)
	return out
}
