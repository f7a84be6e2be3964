// Package main provides the flagship evaluation engine's runtime host.
//
// Application Startup Flow:
//
//  1. Load configuration from environment variables (config.Load)
//  2. Initialize Prometheus metrics registry (telemetry.Init)
//  3. Build the concrete DataStore (memory, Postgres, or Redis-cached
//     Postgres) named by STORE_BACKEND
//  4. Wire the broadcaster, data-source sink, and status FSM (C8/C9/C12)
//  5. Convert the legacy flat-flag store into the evaluator's rule-tree
//     model (internal/legacyflag) and push the initial snapshot through
//     the sink
//  6. Start the poller that re-reads the legacy store on an interval and
//     republishes snapshots (stands in for a real streaming/polling
//     DataSource, which is out of scope — see internal/interfaces'
//     DataSource doc comment)
//  7. Serve Prometheus metrics on METRICS_ADDR
//  8. Wait for SIGINT/SIGTERM for graceful shutdown
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/TimurManjosov/goflagship/internal/broadcast"
	"github.com/TimurManjosov/goflagship/internal/config"
	"github.com/TimurManjosov/goflagship/internal/datasource"
	"github.com/TimurManjosov/goflagship/internal/datastore"
	"github.com/TimurManjosov/goflagship/internal/evaluator"
	"github.com/TimurManjosov/goflagship/internal/flagtracker"
	"github.com/TimurManjosov/goflagship/internal/interfaces"
	"github.com/TimurManjosov/goflagship/internal/ldcontext"
	"github.com/TimurManjosov/goflagship/internal/ldmodel"
	"github.com/TimurManjosov/goflagship/internal/legacyflag"
	"github.com/TimurManjosov/goflagship/internal/logging"
	"github.com/TimurManjosov/goflagship/internal/rules"
	"github.com/TimurManjosov/goflagship/internal/segments"
	"github.com/TimurManjosov/goflagship/internal/storeadapter/postgresstore"
	"github.com/TimurManjosov/goflagship/internal/storeadapter/rediscache"
	"github.com/TimurManjosov/goflagship/internal/telemetry"
)

const outageLoggingTimeout = time.Minute

func main() {
	log := logging.For("server")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	telemetry.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dataStore, err := buildDataStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize data store")
	}
	defer dataStore.Close()

	poolExecutor := broadcast.NewPoolExecutor(cfg.ExecutorPoolSize, 0)
	defer poolExecutor.Close()

	changes := broadcast.New[datasource.FlagChangeEvent](poolExecutor, "datasource.changes")
	defer changes.Close()

	statusFSM := datasource.NewStatusFSM()
	outage := datasource.NewOutageTracker(outageLoggingTimeout)
	sink := datasource.NewSink(dataStore, changes, statusFSM, outage)

	flagLookup := func(key string) (*ldmodel.FeatureFlag, bool) {
		return lookupFlag(ctx, dataStore, key)
	}
	segmentLookup := func(key string) (*ldmodel.Segment, bool) {
		return lookupSegment(ctx, dataStore, key)
	}
	// No BigSegmentStore backend is wired: interfaces.BigSegmentStore has
	// no in-tree production implementation (internal/bigsegments/teststore
	// is test-only), so unbounded segments degrade to BigSegmentsNotConfigured
	// until an operator plugs one in.
	matcher := &segments.Matcher{Segments: segmentLookup}
	eval := evaluator.New(flagLookup, matcher)

	tracker := flagtracker.New(changes, func(ctx context.Context, flagKey string, c ldcontext.Context, defaultValue any) any {
		return eval.Evaluate(ctx, flagKey, c, defaultValue).Value
	})
	_ = tracker

	legacyStore := legacyflag.NewMemorySource(seedLegacyRecords(cfg.Env)...)
	defer legacyStore.Close()

	if err := refreshFromLegacyStore(ctx, legacyStore, sink, cfg.Env); err != nil {
		log.Warn().Err(err).Msg("initial legacy flag load failed")
	}
	statusFSM.Transition(interfaces.DataSourceValid, nil)

	stopPoll := make(chan struct{})
	go runLegacyPoller(ctx, legacyStore, sink, cfg, stopPoll)

	metricsSrv := &http.Server{
		Addr:         cfg.MetricsAddr,
		Handler:      promhttp.Handler(),
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server listening")
		if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("metrics server failed")
		}
	}()

	shutdownSignal := make(chan os.Signal, 1)
	signal.Notify(shutdownSignal, syscall.SIGINT, syscall.SIGTERM)
	<-shutdownSignal

	log.Info().Msg("shutdown signal received, stopping")
	close(stopPoll)
	statusFSM.Transition(interfaces.DataSourceOff, nil)
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("error during metrics server shutdown")
	}
	log.Info().Msg("server stopped")
}

// buildDataStore wires the concrete interfaces.DataStore named by
// cfg.StoreBackend, wrapping a Postgres store in a Redis read-through
// cache when both are configured.
func buildDataStore(ctx context.Context, cfg *config.Config) (interfaces.DataStore, error) {
	var backing interfaces.DataStore

	switch cfg.StoreBackend {
	case config.StoreBackendMemory:
		backing = datastore.NewMemory()
	case config.StoreBackendPostgres:
		pool, err := postgresstore.NewPool(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		pgStore, err := postgresstore.New(ctx, pool)
		if err != nil {
			return nil, err
		}
		backing = pgStore
	case config.StoreBackendRedis:
		pool, err := postgresstore.NewPool(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		pgStore, err := postgresstore.New(ctx, pool)
		if err != nil {
			return nil, err
		}
		backing = pgStore
	default:
		backing = datastore.NewMemory()
	}

	if cfg.StoreBackend == config.StoreBackendRedis {
		return rediscache.New(rediscache.Config{
			Addr:   cfg.RedisAddr,
			Prefix: cfg.RedisPrefix,
			TTL:    cfg.RedisTTL,
		}, backing)
	}
	return backing, nil
}

func lookupFlag(ctx context.Context, ds interfaces.DataStore, key string) (*ldmodel.FeatureFlag, bool) {
	desc, ok, err := ds.Get(ctx, ldmodel.Features, key)
	if err != nil || !ok || desc.IsDeleted() {
		return nil, false
	}
	flag, ok := desc.Item.(*ldmodel.FeatureFlag)
	return flag, ok
}

func lookupSegment(ctx context.Context, ds interfaces.DataStore, key string) (*ldmodel.Segment, bool) {
	desc, ok, err := ds.Get(ctx, ldmodel.Segments, key)
	if err != nil || !ok || desc.IsDeleted() {
		return nil, false
	}
	segment, ok := desc.Item.(*ldmodel.Segment)
	return segment, ok
}

// refreshFromLegacyStore converts every record in the legacy flat-flag
// source into the rule-tree model (internal/legacyflag) and pushes the
// full snapshot through sink.Init, the seam that keeps internal/rules's
// percent-Distribution semantics reachable from real evaluation (spec's
// backward-compatibility requirement).
func refreshFromLegacyStore(ctx context.Context, legacyStore legacyflag.Source, sink *datasource.Sink, env string) error {
	flags, err := legacyStore.GetAll(ctx, env)
	if err != nil {
		return err
	}

	features := make(map[string]ldmodel.ItemDescriptor, len(flags))
	for i, flag := range flags {
		built, err := legacyflag.Convert(flag, i+1)
		if err != nil {
			logging.For("server").Warn().Err(err).Str("flag", flag.Key).Msg("skipping unconvertible legacy flag")
			continue
		}
		features[flag.Key] = ldmodel.ItemDescriptor{Version: built.Version, Item: built}
	}

	snapshot := map[ldmodel.DataKind]map[string]ldmodel.ItemDescriptor{
		ldmodel.Features: features,
		ldmodel.Segments: {},
	}
	if ok := sink.Init(ctx, snapshot); !ok {
		return errors.New("sink rejected initial snapshot")
	}
	return nil
}

// runLegacyPoller stands in for a real DataSource (spec names the
// interface but leaves wire transport out of scope): it periodically
// re-converts the legacy store and republishes, so operators authoring
// flags in the older flat shape still see updates flow through C8/C9/C12
// without a streaming backend.
func runLegacyPoller(ctx context.Context, legacyStore legacyflag.Source, sink *datasource.Sink, cfg *config.Config, stop <-chan struct{}) {
	interval := cfg.DataSourcePollWait
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log := logging.For("server.poller")
	log.Info().Str("mode", string(cfg.DataSourceMode)).Dur("interval", interval).Msg("legacy flag poller started")

	for {
		select {
		case <-ticker.C:
			if err := refreshFromLegacyStore(ctx, legacyStore, sink, cfg.Env); err != nil {
				log.Warn().Err(err).Msg("legacy flag refresh failed")
			}
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// seedLegacyRecords stands in for whatever authored the flat-shape flags
// this environment ran before adopting the rule-tree model. A real
// deployment would point legacyflag.Source at its own backing store;
// there is no admin surface left in this tree to author these at
// runtime, so a fixed seed is all refreshFromLegacyStore has to convert.
func seedLegacyRecords(env string) []legacyflag.Record {
	return []legacyflag.Record{
		{
			Key:     "new-dashboard",
			Enabled: true,
			Rollout: 25,
			Env:     env,
		},
		{
			Key:     "checkout-v2",
			Enabled: true,
			Variants: []legacyflag.Variant{
				{Name: "control", Weight: 50},
				{Name: "treatment", Weight: 50},
			},
			TargetingRules: []rules.Rule{
				{
					ID: "beta-customers",
					Conditions: []rules.Condition{
						{Property: "plan", Operator: rules.OpEq, Value: "enterprise"},
					},
					Distribution: map[string]int{"control": 20, "treatment": 80},
				},
			},
			Env: env,
		},
	}
}
