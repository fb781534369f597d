package internal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/2beens/fitplan/internal/config"
	"github.com/2beens/fitplan/internal/exercisecatalog"
	"github.com/2beens/fitplan/internal/generator"
	"github.com/2beens/fitplan/internal/injuries"
	"github.com/2beens/fitplan/internal/plans"
	"github.com/2beens/fitplan/internal/telemetry/metrics"
	"github.com/2beens/fitplan/internal/templates"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

const defaultCacheTTL = 10 * time.Minute

var ErrNoDatabase = errors.New("no database configured")

// Services holds the plan generation components shared by the ops server
// and the CLI commands.
type Services struct {
	Catalog   *templates.Catalog
	Injuries  *injuries.Holder
	Lookup    exercisecatalog.Lookup
	Store     plans.Store
	Generator *generator.Generator
	Metrics   *metrics.Manager

	// ReloadLimiter is set when redis is available and reloads are limited.
	ReloadLimiter   *redis_rate.Limiter
	ReloadPerMinute int

	closers []func(ctx context.Context) error
}

type ServicesParams struct {
	Config *config.Config
	// DBPool is optional; without it plans are kept in memory.
	DBPool *pgxpool.Pool
	// Redis is optional; with it exercise lookups are shared across replicas.
	Redis   *redis.Client
	Metrics *metrics.Manager
	// TemplateLoader overrides the loader picked from the config.
	TemplateLoader templates.Loader
}

func NewServices(ctx context.Context, params ServicesParams) (*Services, error) {
	cfg := params.Config
	metricsManager := params.Metrics
	if metricsManager == nil {
		metricsManager = metrics.NewTestManager()
	}

	loader := params.TemplateLoader
	if loader == nil {
		var err error
		if loader, err = TemplateLoader(ctx, cfg); err != nil {
			return nil, err
		}
	}

	s := &Services{
		Catalog:  templates.NewCatalog(loader),
		Injuries: injuries.NewHolder(cfg.InjuryPaths...),
		Metrics:  metricsManager,
	}

	if len(cfg.InjuryPaths) > 0 {
		if err := s.Injuries.Reload(); err != nil {
			return nil, fmt.Errorf("load injury mappings: %w", err)
		}
	} else {
		log.Warnln("no injury mapping paths configured, injury screening is disabled")
	}

	lookup, err := s.exerciseLookup(ctx, cfg, params.DBPool, params.Redis)
	if err != nil {
		s.Close(ctx)
		return nil, err
	}
	s.Lookup = lookup

	if params.Redis != nil && cfg.ReloadPerMinute > 0 {
		s.ReloadLimiter = redis_rate.NewLimiter(params.Redis)
		s.ReloadPerMinute = cfg.ReloadPerMinute
	}

	if params.DBPool != nil {
		s.Store = plans.NewPsqlStore(params.DBPool)
	} else {
		log.Warnln("no database pool, plans are kept in memory")
		s.Store = plans.NewMemStore()
	}

	s.Generator = generator.New(generator.Params{
		Catalog:  s.Catalog,
		Injuries: s.Injuries,
		Lookup:   s.Lookup,
		Store:    s.Store,
		Metrics:  metricsManager,
	})

	if _, err := s.ReloadCatalog(ctx); err != nil {
		s.Close(ctx)
		return nil, err
	}

	return s, nil
}

// TemplateLoader picks the dir or s3 loader from the config.
func TemplateLoader(ctx context.Context, cfg *config.Config) (templates.Loader, error) {
	switch cfg.TemplatesSource {
	case config.TemplatesSourceS3:
		loader, err := templates.NewS3LoaderFromParams(ctx, templates.S3Params{
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
		})
		if err != nil {
			return nil, fmt.Errorf("new s3 template loader: %w", err)
		}
		return loader, nil
	default:
		return templates.NewDirLoader(cfg.TemplatesDir), nil
	}
}

// exerciseLookup builds source <- redis <- in-process cache, front to back.
func (s *Services) exerciseLookup(
	ctx context.Context,
	cfg *config.Config,
	dbPool *pgxpool.Pool,
	rdb *redis.Client,
) (exercisecatalog.Lookup, error) {
	var source exercisecatalog.Lookup
	switch cfg.ExerciseCatalog {
	case config.ExerciseCatalogFile:
		fileCatalog, err := exercisecatalog.LoadFileCatalogPath(cfg.ExerciseCatalogPath)
		if err != nil {
			return nil, fmt.Errorf("load exercise catalog: %w", err)
		}
		log.Infof("exercise catalog: %d exercises from [%s]", fileCatalog.Len(), cfg.ExerciseCatalogPath)
		source = fileCatalog
	case config.ExerciseCatalogPostgres:
		if dbPool == nil {
			return nil, fmt.Errorf("exercise catalog [%s]: %w", cfg.ExerciseCatalog, ErrNoDatabase)
		}
		source = exercisecatalog.NewPsqlRepo(dbPool)
	case config.ExerciseCatalogMongo:
		client, err := exercisecatalog.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, client.Disconnect)
		source = exercisecatalog.NewMongoRepo(client.Database(cfg.MongoDBName))
	default:
		log.Debugln("no exercise catalog, template exercise libraries only")
		return exercisecatalog.Nop{}, nil
	}

	ttl := defaultCacheTTL
	if cfg.CacheTTLSeconds > 0 {
		ttl = time.Duration(cfg.CacheTTLSeconds) * time.Second
	}
	if rdb != nil {
		source = exercisecatalog.NewRedisLookup(source, rdb, ttl)
	}
	if cfg.CacheSizeBytes > 0 {
		source = exercisecatalog.NewCachedLookup(source, cfg.CacheSizeBytes, ttl)
	}
	return source, nil
}

// ReloadCatalog reloads templates and records the outcome. A failed reload
// keeps the previous catalog.
func (s *Services) ReloadCatalog(ctx context.Context) (templates.LoadReport, error) {
	report, err := s.Catalog.Reload(ctx)
	if err != nil {
		s.Metrics.CounterCatalogReloads.WithLabelValues("failure").Inc()
		return report, fmt.Errorf("reload template catalog: %w", err)
	}
	s.Metrics.CounterCatalogReloads.WithLabelValues("success").Inc()
	s.Metrics.CounterTemplatesLoaded.Add(float64(report.Loaded))
	s.Metrics.CounterTemplatesRejected.Add(float64(len(report.Rejected)))
	s.Metrics.GaugeCatalogTemplates.Set(float64(s.Catalog.Len()))

	for _, r := range report.Rejected {
		log.Warnf("template [%s] from [%s] rejected: %s", r.TemplateID, r.Source, r.Reason)
	}
	return report, nil
}

func (s *Services) Close(ctx context.Context) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			log.Errorf("close services: %s", err)
		}
	}
	s.closers = nil
}
