package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"trialsnap/internal"
	"trialsnap/internal/config"
	"trialsnap/internal/kpi"
	"trialsnap/internal/loader"
	"trialsnap/internal/metrics"
	"trialsnap/internal/reconcile"
	"trialsnap/internal/schema"
	"trialsnap/internal/storage"
	"trialsnap/internal/temporal"
	"trialsnap/internal/util"
)

const snapshotCacheSize = 16

// Snapshot is the threshold-independent part of a run: typed records and the
// reconciled table with delays. It is shared between runs and must not be
// modified.
type Snapshot struct {
	Identity  string
	Schedule  []internal.ScheduleRecord
	Assets    []internal.AssetRecord
	Forms     []internal.FormRecord
	Records   []internal.ReconciledRecord
	Mappings  []schema.Mapping
	Coercions []temporal.Coercion
	HasStatus bool
}

func (s *Snapshot) Counts() map[string]int {
	missing := 0
	for _, c := range s.Coercions {
		missing += c.FailedTotal()
	}
	return map[string]int{
		schema.TableSchedule: len(s.Schedule),
		schema.TableAssets:   len(s.Assets),
		schema.TableForms:    len(s.Forms),
		"reconciled":         len(s.Records),
		"missing_dates":      missing,
	}
}

type Result struct {
	RunID    string
	Identity string
	CacheHit bool
	Snapshot *Snapshot
	Report   kpi.Report
	Timings  map[string]float64
}

type Deps struct {
	DB      *storage.DB
	Logger  *zap.Logger
	Metrics *metrics.Recorder
}

type Service struct {
	loaderOpts    loader.Options
	reconcileOpts reconcile.Options
	db            *storage.DB
	logger        *zap.Logger
	metrics       *metrics.Recorder

	mu    sync.Mutex
	cache map[string]*Snapshot
	order []string
}

func NewService(cfg config.Config, deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New(nil)
	}
	return &Service{
		loaderOpts:    cfg.LoaderOptions(),
		reconcileOpts: cfg.ReconcileOptions(),
		db:            deps.DB,
		logger:        deps.Logger,
		metrics:       deps.Metrics,
		cache:         map[string]*Snapshot{},
	}
}

// Identity is the cache key of a set of inputs under this service's options.
func (s *Service) Identity(in Inputs) string {
	markers, _ := json.Marshal(s.loaderOpts)
	return util.ContentChecksum(
		in.Schedule.Data,
		in.Assets.Data,
		in.Forms.Data,
		[]byte(s.reconcileOpts.Key()),
		markers,
	)
}

// Run loads, validates and reconciles the three reports, then derives KPIs
// with cfg. Identical inputs reuse the cached snapshot; KPIs are always
// recomputed.
func (s *Service) Run(ctx context.Context, in Inputs, cfg kpi.Config) (*Result, error) {
	start := time.Now()
	result := &Result{
		RunID:    uuid.NewString(),
		Identity: s.Identity(in),
		Timings:  map[string]float64{},
	}
	logger := s.logger.With(zap.String("run_id", result.RunID), zap.String("identity", result.Identity))

	snap, hit := s.lookup(result.Identity)
	s.metrics.RecordCache(hit)
	if !hit {
		var err error
		snap, err = s.build(ctx, in, result.Identity, result.Timings, logger)
		if err != nil {
			s.finish(logger, in, result, nil, err)
			return nil, err
		}
		s.remember(snap)
	}
	result.CacheHit = hit
	result.Snapshot = snap

	t := time.Now()
	result.Report = kpi.Evaluate(kpi.Input{Records: snap.Records, Assets: snap.Assets, HasStatus: snap.HasStatus}, cfg)
	s.stage(result.Timings, "kpi", t)
	result.Timings["total"] = time.Since(start).Seconds()

	s.finish(logger, in, result, snap, nil)
	return result, nil
}

type loadedTable struct {
	table    *loader.Table
	mapping  schema.Mapping
	coercion temporal.Coercion
}

func (s *Service) build(ctx context.Context, in Inputs, identity string, timings map[string]float64, logger *zap.Logger) (*Snapshot, error) {
	sources := []struct {
		table  string
		source Source
	}{
		{schema.TableSchedule, in.Schedule},
		{schema.TableAssets, in.Assets},
		{schema.TableForms, in.Forms},
	}

	t := time.Now()
	loaded := make([]loadedTable, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			table, err := loader.Load(src.table, src.source.Data, s.loaderOpts)
			if err != nil {
				return err
			}
			mapping := schema.ResolveTable(table, schema.FieldsFor(src.table))
			loaded[i] = loadedTable{
				table:    table,
				mapping:  mapping,
				coercion: temporal.Coerce(table, mapping.DateColumns()),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	s.stage(timings, "load", t)

	mappings := make([]schema.Mapping, len(loaded))
	coercions := make([]temporal.Coercion, len(loaded))
	for i, l := range loaded {
		mappings[i] = l.mapping
		coercions[i] = l.coercion
		s.metrics.RecordTable(l.table.Name, l.table.Len(), l.coercion.FailedTotal())
		logger.Debug("table loaded",
			zap.String("table", l.table.Name),
			zap.String("source", sources[i].source.Name),
			zap.Int("rows", l.table.Len()),
			zap.Strings("columns", l.table.Columns),
		)
		for column, n := range l.coercion.Failed {
			logger.Warn("unparseable dates treated as missing",
				zap.String("table", l.table.Name),
				zap.String("column", column),
				zap.Int("cells", n),
			)
		}
	}

	if err := schema.Validate(mappings...); err != nil {
		return nil, err
	}

	t = time.Now()
	sched, assets, forms := loaded[0], loaded[1], loaded[2]
	snap := &Snapshot{
		Identity:  identity,
		Schedule:  reconcile.BuildSchedule(sched.table, sched.mapping, sched.coercion.Columns),
		Assets:    reconcile.BuildAssets(assets.table, assets.mapping, assets.coercion.Columns),
		Forms:     reconcile.BuildForms(forms.table, forms.mapping, forms.coercion.Columns),
		Mappings:  mappings,
		Coercions: coercions,
		HasStatus: sched.mapping.Resolution(schema.FieldStatus).IsResolved(),
	}
	snap.Records = kpi.WithDelays(reconcile.Reconcile(snap.Schedule, snap.Assets, snap.Forms, s.reconcileOpts))
	s.stage(timings, "reconcile", t)
	return snap, nil
}

func (s *Service) stage(timings map[string]float64, name string, since time.Time) {
	d := time.Since(since)
	timings[name] = d.Seconds()
	s.metrics.RecordStage(name, d)
}

func (s *Service) lookup(identity string) (*Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.cache[identity]
	return snap, ok
}

func (s *Service) remember(snap *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cache[snap.Identity]; ok {
		return
	}
	s.cache[snap.Identity] = snap
	s.order = append(s.order, snap.Identity)
	if len(s.order) > snapshotCacheSize {
		delete(s.cache, s.order[0])
		s.order = s.order[1:]
	}
}

// RunStatus classifies a run error.
func RunStatus(err error) internal.RunStatus {
	var formatErr *loader.FormatError
	var schemaErr *schema.SchemaError
	switch {
	case err == nil:
		return internal.RunOK
	case errors.As(err, &formatErr):
		return internal.RunFormatError
	case errors.As(err, &schemaErr):
		return internal.RunSchemaError
	default:
		return internal.RunFailed
	}
}

func (s *Service) finish(logger *zap.Logger, in Inputs, result *Result, snap *Snapshot, runErr error) {
	status := RunStatus(runErr)
	s.metrics.RecordRun(string(status))

	row := internal.RunRow{
		ID:       result.RunID,
		Identity: result.Identity,
		Source:   in.Origin,
		Status:   status,
		CacheHit: result.CacheHit,
		Counts:   map[string]int{},
		Timings:  result.Timings,
	}
	var schemaErr *schema.SchemaError
	switch {
	case runErr == nil:
		row.Counts = snap.Counts()
		if data, err := json.Marshal(result.Report.Summary); err == nil {
			row.Report = string(data)
		}
		logger.Info("run complete",
			zap.Bool("cache_hit", result.CacheHit),
			zap.Int("records", len(snap.Records)),
			zap.Int("sites", len(result.Report.Sites)),
		)
	case errors.As(runErr, &schemaErr):
		if data, err := json.Marshal(schemaErr); err == nil {
			row.Report = string(data)
		}
		logger.Warn("schema validation failed", zap.Error(runErr))
	default:
		row.Report = runErr.Error()
		logger.Error("run failed", zap.String("status", string(status)), zap.Error(runErr))
	}

	if s.db == nil {
		return
	}
	if err := s.db.InsertRun(row, in.EmailID); err != nil {
		logger.Error("record run", zap.Error(err))
		return
	}
	if runErr == nil {
		if err := s.db.SetMetadata("last_identity", result.Identity); err != nil {
			logger.Error("record identity", zap.Error(err))
		}
	}
}
