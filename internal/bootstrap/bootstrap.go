package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/records-archive/internal/config"
	"github.com/kirillkom/records-archive/internal/core/domain"
	"github.com/kirillkom/records-archive/internal/core/ports"
	"github.com/kirillkom/records-archive/internal/core/usecase"
	"github.com/kirillkom/records-archive/internal/infrastructure/cache"
	"github.com/kirillkom/records-archive/internal/infrastructure/extractor/content"
	"github.com/kirillkom/records-archive/internal/infrastructure/extractor/ocr/tesseract"
	kvlocalfs "github.com/kirillkom/records-archive/internal/infrastructure/kv/localfs"
	"github.com/kirillkom/records-archive/internal/infrastructure/llm/ollama"
	openaillm "github.com/kirillkom/records-archive/internal/infrastructure/llm/openai"
	"github.com/kirillkom/records-archive/internal/infrastructure/queue/nats"
	"github.com/kirillkom/records-archive/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/records-archive/internal/infrastructure/repository/sqlite"
	"github.com/kirillkom/records-archive/internal/infrastructure/resilience"
	snaplocalfs "github.com/kirillkom/records-archive/internal/infrastructure/snapshot/localfs"
	snaps3 "github.com/kirillkom/records-archive/internal/infrastructure/snapshot/s3"
	blobfs "github.com/kirillkom/records-archive/internal/infrastructure/storage/localfs"
	blobs3 "github.com/kirillkom/records-archive/internal/infrastructure/storage/s3"
	"github.com/kirillkom/records-archive/internal/infrastructure/telegram"
	"github.com/kirillkom/records-archive/internal/observability/metrics"
)

// App owns every long-lived component of a process. The archive store, audit
// log and policy service are loaded from the durable store before New returns.
type App struct {
	Config config.Config
	Logger *slog.Logger

	Store    *usecase.ArchiveStore
	Audit    *usecase.AuditLog
	Policies *usecase.PolicyService
	Pipeline *usecase.SyncPipeline
	Editor   *usecase.RecordEditor
	Chat     *usecase.ChatUseCase
	Relay    *usecase.RelayMailbox
	Blobs    ports.ObjectStorage

	// Queue is nil unless NATS is enabled.
	Queue *nats.Queue

	HTTPMetrics *metrics.HTTPServerMetrics
	Registry    *prometheus.Registry

	roots    snaplocalfs.Roots
	outbound *metrics.OutboundMetrics
	s3Client *minio.Client
	closers  []func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger}
	if err := app.init(ctx); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config

	if cfg.SnapshotSource == "" || cfg.SnapshotSource == "localfs" {
		roots, err := snaplocalfs.NewRoots(cfg.ArchiveRoot, cfg.ArchiveRoots, cfg.IncludeHidden)
		if err != nil {
			return err
		}
		a.roots = roots
	}

	kv, closeKV, err := OpenKeyValueStore(ctx, cfg)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, closeKV)

	if needsS3(cfg) {
		client, err := blobs3.NewClient(blobs3.Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			return err
		}
		a.s3Client = client
	}

	blobs, err := a.openBlobStorage(ctx)
	if err != nil {
		return err
	}
	a.Blobs = blobs

	a.HTTPMetrics = metrics.NewHTTPServerMetrics("api")
	a.Registry = a.HTTPMetrics.Registry()
	pipelineMetrics := metrics.NewPipelineMetrics("archive", a.Registry)
	a.outbound = metrics.NewOutboundMetrics(a.Registry)

	a.Store = usecase.NewArchiveStore(kv)
	a.Audit = usecase.NewAuditLog(kv, cfg.ActingUser, cfg.AuditCap)
	a.Policies = usecase.NewPolicyService(kv, a.Audit)

	if err := a.Store.Load(ctx); err != nil {
		return fmt.Errorf("load archive: %w", err)
	}
	if err := a.Audit.Load(ctx); err != nil {
		return fmt.Errorf("load audit log: %w", err)
	}
	seed, err := config.LoadRetentionPolicies(cfg.RetentionPolicyFile)
	if err != nil {
		return fmt.Errorf("load retention policies: %w", err)
	}
	if err := a.Policies.Load(ctx, seed); err != nil {
		return fmt.Errorf("load policies: %w", err)
	}

	var ocr ports.OCREngine
	if cfg.OCREnabled {
		ocr = tesseract.New(cfg.OCRLanguages)
	}
	extractor := content.New(ocr, content.Options{
		TextLimit:       cfg.ExtractTextLimit,
		PreviewMaxBytes: cfg.PreviewMaxBytes,
		MaxReadBytes:    cfg.ExtractMaxBytes,
		Logger:          a.Logger,
	})

	classifier, generator, err := a.buildLLM()
	if err != nil {
		return err
	}
	classificationCache := cache.NewClassificationCache(cfg.ClassificationCacheSize, cfg.ClassificationCacheTTL, a.Registry)
	gateway := usecase.NewClassificationGateway(classifier, classificationCache)

	var events ports.EventPublisher
	if cfg.NATSEnabled {
		queue, err := nats.NewWithOptions(cfg.NATSURL, nats.Options{
			SyncSubject:        cfg.NATSSyncSubject,
			EventsSubject:      cfg.NATSEventsSubject,
			ResilienceExecutor: a.executor(resilience.TransportConfig("nats")),
			Logger:             a.Logger,
		})
		if err != nil {
			return fmt.Errorf("init nats: %w", err)
		}
		a.Queue = queue
		a.closers = append(a.closers, queue.Close)
		events = queue
	}

	a.Pipeline = usecase.NewSyncPipeline(a.Store, a.Audit, a.Policies, extractor, gateway, usecase.SyncPipelineOptions{
		Blobs:     a.Blobs,
		Observer:  pipelineMetrics,
		Events:    events,
		Logger:    a.Logger,
		IdleReset: cfg.SyncIdleReset,
	})
	a.Editor = usecase.NewRecordEditor(a.Store, a.Policies, a.Audit)
	a.Chat = usecase.NewChatUseCase(a.Store, generator)

	var sender ports.MessageSender
	if cfg.TelegramBotToken != "" {
		sender = telegram.New(cfg.TelegramBotToken, cfg.TelegramBaseURL, 0, a.executor(resilience.TransportConfig("relay")))
	}
	a.Relay = usecase.NewRelayMailbox(cfg.RelayCapacity, sender)

	a.Logger.Info("app_initialized",
		"kv_backend", cfg.KVBackend,
		"storage_backend", cfg.StorageBackend,
		"snapshot_source", cfg.SnapshotSource,
		"classifier", cfg.ClassifierProvider,
		"ocr_enabled", cfg.OCREnabled,
		"nats_enabled", cfg.NATSEnabled,
		"records", a.Store.Len(),
	)
	return nil
}

// OpenKeyValueStore opens the configured durable backend and ensures its schema.
func OpenKeyValueStore(ctx context.Context, cfg config.Config) (ports.KeyValueStore, func(), error) {
	switch cfg.KVBackend {
	case "", "localfs":
		store, err := kvlocalfs.New(cfg.KVPath)
		if err != nil {
			return nil, nil, fmt.Errorf("init localfs state: %w", err)
		}
		return store, func() {}, nil
	case "sqlite":
		db, err := sqlite.OpenDB(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		store := sqlite.NewKVStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("ensure sqlite schema: %w", err)
		}
		return store, func() { _ = db.Close() }, nil
	case "postgres":
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		store := postgres.NewKVStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("ensure postgres schema: %w", err)
		}
		return store, func() { _ = db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown KV_BACKEND %q", cfg.KVBackend)
	}
}

// LoadArchive opens the durable store and loads the record index only.
// Read-only processes use it instead of New.
func LoadArchive(ctx context.Context, cfg config.Config) (*usecase.ArchiveStore, func(), error) {
	kv, closeKV, err := OpenKeyValueStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	store := usecase.NewArchiveStore(kv)
	if err := store.Load(ctx); err != nil {
		closeKV()
		return nil, nil, fmt.Errorf("load archive: %w", err)
	}
	return store, closeKV, nil
}

func needsS3(cfg config.Config) bool {
	return cfg.StorageBackend == "s3" || cfg.SnapshotSource == "s3"
}

func (a *App) openBlobStorage(ctx context.Context) (ports.ObjectStorage, error) {
	cfg := a.Config
	switch cfg.StorageBackend {
	case "", "localfs":
		store, err := blobfs.New(cfg.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("init preview storage: %w", err)
		}
		return store, nil
	case "s3":
		if err := blobs3.EnsureBucket(ctx, a.s3Client, cfg.S3BlobBucket, cfg.S3Region); err != nil {
			return nil, err
		}
		return blobs3.New(a.s3Client, cfg.S3BlobBucket), nil
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}
}

func (a *App) buildLLM() (ports.MetadataClassifier, ports.AnswerGenerator, error) {
	cfg := a.Config
	executor := a.executor(resilience.ClassifierConfig(cfg.ClassifierRetryAttempts, cfg.ClassifierRatePerSecond, cfg.ClassifierBurst))

	switch cfg.ClassifierProvider {
	case "", "ollama":
		client := ollama.New(cfg.OllamaURL, cfg.OllamaModel, cfg.OllamaTimeout, executor)
		return ollama.NewClassifier(client), ollama.NewGenerator(client), nil
	case "openai":
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return nil, nil, errors.New("OPENAI_API_KEY is required for CLASSIFIER_PROVIDER=openai")
		}
		client := openaillm.New(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, executor)
		return openaillm.NewClassifier(client), openaillm.NewGenerator(client), nil
	default:
		return nil, nil, fmt.Errorf("unknown CLASSIFIER_PROVIDER %q", cfg.ClassifierProvider)
	}
}

func (a *App) executor(rc resilience.Config) *resilience.Executor {
	rc.Logger = a.Logger
	if a.outbound != nil {
		rc.Observer = a.outbound
	}
	return resilience.NewExecutor(rc)
}

// Source resolves a sync root to a snapshotter. An empty root selects the
// configured root. For the filesystem source any other value must lie under
// ARCHIVE_ROOT or ARCHIVE_ROOTS; for S3 it is "bucket[/prefix]" on the
// configured bucket or a bucket listed in ARCHIVE_ROOTS.
func (a *App) Source(root string) (ports.Snapshotter, error) {
	root = strings.TrimSpace(root)
	switch a.Config.SnapshotSource {
	case "", "localfs":
		s, err := a.roots.Resolve(root)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "s3":
		if a.s3Client == nil {
			return nil, domain.WrapError(domain.ErrUnsupportedCapability, "resolve source", errors.New("s3 client not configured"))
		}
		if root == "" {
			return snaps3.New(a.s3Client, a.Config.S3Bucket, a.Config.S3Prefix), nil
		}
		bucket, prefix, _ := strings.Cut(strings.Trim(root, "/"), "/")
		if bucket == "" {
			return nil, domain.WrapError(domain.ErrInvalidInput, "resolve source", fmt.Errorf("invalid s3 root %q", root))
		}
		if bucket != a.Config.S3Bucket && !slices.Contains(a.Config.ArchiveRoots, bucket) {
			return nil, domain.WrapError(domain.ErrInvalidInput, "resolve source", fmt.Errorf("bucket %q is not connected", bucket))
		}
		return snaps3.New(a.s3Client, bucket, prefix), nil
	default:
		return nil, domain.WrapError(domain.ErrUnsupportedCapability, "resolve source",
			fmt.Errorf("unknown SNAPSHOT_SOURCE %q", a.Config.SnapshotSource))
	}
}

// SyncRoot runs a batch against the resolved root.
func (a *App) SyncRoot(ctx context.Context, root string) (*domain.BatchReport, error) {
	source, err := a.Source(root)
	if err != nil {
		return nil, err
	}
	return a.Pipeline.SyncSource(ctx, source)
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
