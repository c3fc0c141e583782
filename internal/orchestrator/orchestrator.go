// Package orchestrator drives reporting sessions: project creation,
// the initial dataset analysis, user slide edits, and deck
// regeneration. All state lives in the store; events are published
// only after the writes they describe have committed.
package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/expertsure/expertsure/internal/dataset"
	"github.com/expertsure/expertsure/internal/deck"
	"github.com/expertsure/expertsure/internal/engine"
	reperr "github.com/expertsure/expertsure/internal/errors"
	"github.com/expertsure/expertsure/internal/events"
	"github.com/expertsure/expertsure/internal/observability"
	"github.com/expertsure/expertsure/internal/planner"
	"github.com/expertsure/expertsure/internal/slidespec"
	"github.com/expertsure/expertsure/internal/storage"
	"github.com/expertsure/expertsure/internal/store"
)

// Progress checkpoints. Values only ever increase within a run.
const (
	progressAnalysisStart = 0
	progressPlanReady     = 80
	progressAutoDeck      = 90
	progressEditApplied   = 50
	progressDeckBuilt     = 70
	progressDone          = 100
)

// slideBuildConcurrency caps parallel table builds during analysis and
// regeneration.
const slideBuildConcurrency = 4

// Orchestrator coordinates one node's reporting sessions.
type Orchestrator struct {
	store   store.Store
	objects storage.ObjectStorage
	cache   *dataset.Cache
	planner planner.SlidePlanner
	decks   *deck.Writer
	events  events.Broadcaster
	logger  *zap.Logger
	metrics *observability.Metrics
	fields  *observability.FieldStats

	mu    sync.Mutex
	locks map[string]*sync.Mutex // per-project serialization
}

// New wires an orchestrator.
func New(st store.Store, objects storage.ObjectStorage, cache *dataset.Cache,
	pl planner.SlidePlanner, decks *deck.Writer, bus events.Broadcaster,
	logger *zap.Logger, metrics *observability.Metrics) *Orchestrator {
	return &Orchestrator{
		store:   st,
		objects: objects,
		cache:   cache,
		planner: pl,
		decks:   decks,
		events:  bus,
		logger:  logger,
		metrics: metrics,
		fields:  observability.NewFieldStats(24 * time.Hour),
		locks:   make(map[string]*sync.Mutex),
	}
}

// FieldStats exposes which dataset fields user edits touch.
func (o *Orchestrator) FieldStats() *observability.FieldStats {
	return o.fields
}

// projectLock returns the mutex serializing one project's mutations.
func (o *Orchestrator) projectLock(projectID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.locks[projectID]
	if !ok {
		l = &sync.Mutex{}
		o.locks[projectID] = l
	}
	return l
}

// CreateProjectInput carries an upload.
type CreateProjectInput struct {
	Name         string
	Mode         store.Mode
	DatasetName  string
	Dataset      io.Reader
	SchemaName   string
	Schema       io.Reader
	TemplateName string
	Template     io.Reader // optional
}

// CreateProject stores the uploaded dataset and registers the project.
// The dataset lands in object storage (durable copy) and the local
// cache (working copy) before the project row is written.
func (o *Orchestrator) CreateProject(ctx context.Context, in CreateProjectInput) (*store.ProjectRecord, error) {
	projectID := uuid.NewString()
	mode := in.Mode
	if mode == "" {
		mode = store.ModeInteractive
	}

	if in.Schema == nil {
		return nil, reperr.NewValidationError(reperr.CodeInvalidSchema,
			"schema file is required")
	}
	rawSchema, err := io.ReadAll(in.Schema)
	if err != nil {
		return nil, reperr.NewValidationError(reperr.CodeInvalidSchema,
			fmt.Sprintf("read schema: %v", err))
	}
	if _, err := dataset.ParseSchema(rawSchema); err != nil {
		return nil, reperr.NewValidationError(reperr.CodeInvalidSchema,
			fmt.Sprintf("parse schema: %v", err))
	}

	datasetKey := storage.DatasetKey(projectID, in.DatasetName)
	cachePath, err := o.cache.Put(projectID, in.Dataset)
	if err != nil {
		return nil, reperr.NewValidationError(reperr.CodeInvalidDataset,
			fmt.Sprintf("stage dataset: %v", err))
	}

	// Parse eagerly so malformed uploads are rejected at the boundary.
	if _, err := o.cache.Open(projectID); err != nil {
		o.cache.Remove(projectID)
		return nil, reperr.NewValidationError(reperr.CodeInvalidDataset,
			fmt.Sprintf("parse dataset: %v", err))
	}

	src, err := o.cache.OpenRaw(projectID)
	if err != nil {
		return nil, reperr.NewInternalError("reopen staged dataset", err)
	}
	defer src.Close()
	if err := o.objects.Put(ctx, datasetKey, src); err != nil {
		o.cache.Remove(projectID)
		return nil, reperr.Wrap(reperr.ErrCategoryStorage, reperr.CodeUploadFailed,
			"store dataset", err)
	}

	schemaKey := storage.SchemaKey(projectID, in.SchemaName)
	if err := o.objects.Put(ctx, schemaKey, bytes.NewReader(rawSchema)); err != nil {
		o.cache.Remove(projectID)
		return nil, reperr.Wrap(reperr.ErrCategoryStorage, reperr.CodeUploadFailed,
			"store schema", err)
	}

	var templateKey string
	if in.Template != nil {
		templateKey = storage.TemplateKey(projectID, in.TemplateName)
		if err := o.objects.Put(ctx, templateKey, in.Template); err != nil {
			return nil, reperr.Wrap(reperr.ErrCategoryStorage, reperr.CodeUploadFailed,
				"store template", err)
		}
	}

	now := time.Now().UTC()
	project := &store.ProjectRecord{
		ProjectID:   projectID,
		Name:        in.Name,
		Status:      store.ProjectInitialized,
		Mode:        mode,
		DatasetKey:  datasetKey,
		SchemaKey:   schemaKey,
		TemplateKey: templateKey,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := store.WithRetry(ctx, func() error {
		return o.store.CreateProject(ctx, project)
	}); err != nil {
		return nil, err
	}

	o.metrics.ProjectsCreated.Inc()
	o.logger.Info("project created",
		zap.String("project_id", projectID),
		zap.String("dataset", in.DatasetName),
		zap.String("mode", string(mode)),
		zap.String("cache_path", cachePath))
	return project, nil
}

// RunInitialAnalysis plans the slide deck for a project and leaves the
// session waiting for the user (or, in auto mode, renders the deck and
// completes). Safe to call once per project; concurrent calls for the
// same project serialize.
func (o *Orchestrator) RunInitialAnalysis(ctx context.Context, projectID string) error {
	lock := o.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	started := time.Now()
	err := o.runInitialAnalysis(ctx, projectID)
	o.metrics.AnalysisDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		o.metrics.AnalysisRuns.WithLabelValues("failure").Inc()
		o.fail(ctx, projectID, err)
		return err
	}
	o.metrics.AnalysisRuns.WithLabelValues("success").Inc()
	return nil
}

func (o *Orchestrator) runInitialAnalysis(ctx context.Context, projectID string) error {
	project, err := o.store.GetProject(ctx, projectID)
	if err != nil {
		return err
	}

	if err := o.transition(ctx, projectID, store.ProjectAnalyzing, progressAnalysisStart, "analyzing dataset"); err != nil {
		return err
	}

	ds, err := o.loadDataset(ctx, project)
	if err != nil {
		return err
	}
	schema, err := o.loadSchema(ctx, project)
	if err != nil {
		return err
	}
	ds.DescribeFields(schema)

	plan, err := o.planner.Plan(ctx, ds, schema)
	if err != nil {
		return reperr.Wrap(reperr.ErrCategoryInternal, reperr.CodeUnexpected,
			"plan slides", err)
	}

	// Build every proposed table before anything is persisted so a bad
	// proposal never reaches the store.
	tables := make([]*engine.TableStructure, len(plan))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(slideBuildConcurrency)
	for i := range plan {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			table, err := engine.Build(&plan[i], ds)
			if err != nil {
				return err
			}
			tables[i] = table
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		o.metrics.SlideBuildErrors.Inc()
		return err
	}

	slides := make([]*store.SlideRecord, len(plan))
	for i := range plan {
		slides[i] = &store.SlideRecord{
			ProjectID:   projectID,
			SlideNumber: plan[i].SlideNumber,
			Title:       plan[i].SlideTitle,
			Status:      store.SlideAnalyzed,
			PlannerRows: plan[i].Rows,
			Rationale:   plan[i].Rationale,
		}
	}
	if err := store.WithRetry(ctx, func() error {
		return o.store.ReplaceSlides(ctx, projectID, slides)
	}); err != nil {
		return err
	}

	preview := ds.Preview(10)
	fields := ds.Columns()
	for i := range plan {
		rows, err := slidespec.EncodeRows(plan[i].Rows)
		if err != nil {
			return reperr.NewInternalError("encode planned rows", err)
		}
		o.publish(ctx, events.TypeSlideAnalysis, projectID, events.SlideAnalysis{
			SlideNumber: plan[i].SlideNumber,
			SlideTitle:  plan[i].SlideTitle,
			Rows:        rows,
			Rationale:   plan[i].Rationale,
			Fields:      fields,
			DataPreview: preview,
		})
	}

	if project.Mode == store.ModeAuto {
		if err := o.transition(ctx, projectID, store.ProjectSlideProcess, progressPlanReady, "rendering deck"); err != nil {
			return err
		}
		if err := o.regenerateDeck(ctx, projectID, ds, progressAutoDeck); err != nil {
			return err
		}
		return o.transition(ctx, projectID, store.ProjectCompleted, progressDone, "deck ready")
	}

	if err := o.transition(ctx, projectID, store.ProjectAnalyzing, progressPlanReady, "plan ready"); err != nil {
		return err
	}
	// The full deck is generated up front so the session starts with a
	// downloadable artifact; edits then regenerate it.
	if err := o.regenerateDeck(ctx, projectID, ds, progressAutoDeck); err != nil {
		return err
	}
	o.logger.Info("analysis complete",
		zap.String("project_id", projectID),
		zap.Int("slides", len(plan)))
	return o.transition(ctx, projectID, store.ProjectWaitingForUser, progressDone, "awaiting slide review")
}

// ApplySlideEdit validates and stores a user's row edit, then rebuilds
// the whole deck. The full regeneration keeps aggregate rows, shared
// columns, and commentary consistent across slides.
func (o *Orchestrator) ApplySlideEdit(ctx context.Context, projectID string, slideNumber int, rows []slidespec.RowSpecification) error {
	lock := o.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	err := o.applySlideEdit(ctx, projectID, slideNumber, rows)
	if err != nil {
		o.metrics.SlideEdits.WithLabelValues("failure").Inc()
		// Specification and validation failures leave the session
		// waiting for a corrected edit; they are not session failures.
		if reperr.IsSpecification(err) || reperr.IsValidation(err) {
			o.publishError(ctx, projectID, err)
			return err
		}
		o.fail(ctx, projectID, err)
		return err
	}
	o.metrics.SlideEdits.WithLabelValues("success").Inc()
	return nil
}

func (o *Orchestrator) applySlideEdit(ctx context.Context, projectID string, slideNumber int, rows []slidespec.RowSpecification) error {
	project, err := o.store.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	slide, err := o.store.GetSlide(ctx, projectID, slideNumber)
	if err != nil {
		return err
	}

	if err := slidespec.ValidateRows(slideNumber, rows); err != nil {
		return err
	}

	ds, err := o.loadDataset(ctx, project)
	if err != nil {
		return err
	}

	// Dry-run the edited slide before anything is written.
	trial := &slidespec.SlideSpecification{
		SlideNumber: slideNumber,
		SlideTitle:  slide.Title,
		Rows:        rows,
	}
	if _, err := engine.Build(trial, ds); err != nil {
		o.metrics.SlideBuildErrors.Inc()
		return err
	}

	for _, row := range rows {
		for _, f := range row.Filters {
			o.fields.RecordFilter(f.Field, string(f.Operator))
		}
		for _, m := range row.MetricFields {
			o.fields.RecordMetric(m)
		}
	}

	slide.UserRows = rows
	slide.Status = store.SlideProcessing
	if err := store.WithRetry(ctx, func() error {
		return o.store.UpdateSlide(ctx, slide)
	}); err != nil {
		return err
	}
	if err := o.transition(ctx, projectID, store.ProjectSlideProcess, progressEditApplied, "applying slide update"); err != nil {
		return err
	}

	encoded, err := slidespec.EncodeRows(rows)
	if err != nil {
		return reperr.NewInternalError("encode edited rows", err)
	}
	o.publish(ctx, events.TypeSlideUpdateComplete, projectID, events.SlideUpdateComplete{
		SlideNumber: slideNumber,
		Rows:        encoded,
		DataPreview: ds.Preview(10),
	})

	if err := o.regenerateDeck(ctx, projectID, ds, progressDeckBuilt); err != nil {
		return err
	}
	if err := o.transition(ctx, projectID, store.ProjectWaitingForUser, progressDone, "slide update complete"); err != nil {
		return err
	}

	o.logger.Info("slide edit applied",
		zap.String("project_id", projectID),
		zap.Int("slide", slideNumber))
	return nil
}

// regenerateDeck rebuilds every slide from its effective rows, writes
// the artifact, and records it on the project. Unchanged decks skip
// the upload via the content fingerprint.
func (o *Orchestrator) regenerateDeck(ctx context.Context, projectID string, ds *dataset.Dataset, checkpoint int) error {
	project, err := o.store.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	slides, err := o.store.GetSlides(ctx, projectID)
	if err != nil {
		return err
	}

	tables := make([]*engine.TableStructure, len(slides))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(slideBuildConcurrency)
	for i, sl := range slides {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			spec := &slidespec.SlideSpecification{
				SlideNumber: sl.SlideNumber,
				SlideTitle:  sl.Title,
				Rows:        sl.EffectiveRows(),
			}
			table, err := engine.Build(spec, ds)
			if err != nil {
				return err
			}
			tables[i] = table
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		o.metrics.SlideBuildErrors.Inc()
		return err
	}

	doc := &deck.Document{
		ProjectID:   projectID,
		ProjectName: project.Name,
		GeneratedAt: time.Now().UTC(),
		Slides:      make([]deck.SlideDoc, len(slides)),
	}
	for i, sl := range slides {
		commentary := deck.Commentary(tables[i])
		doc.Slides[i] = deck.NewSlide(sl.SlideNumber, tables[i], commentary)

		sl.FinalRows = sl.EffectiveRows()
		sl.Status = store.SlideCompleted
		sl.Commentary = commentary
		if err := store.WithRetry(ctx, func() error {
			return o.store.UpdateSlide(ctx, sl)
		}); err != nil {
			return err
		}
	}

	if err := o.transition(ctx, projectID, store.ProjectSlideProcess, checkpoint, "uploading deck"); err != nil {
		return err
	}

	result, err := o.decks.Write(ctx, doc, project.ArtifactFingerprint)
	if err != nil {
		return err
	}
	writeResult := "written"
	if result.Skipped {
		writeResult = "skipped"
	}
	o.metrics.DeckWrites.WithLabelValues(writeResult).Inc()

	if err := store.WithRetry(ctx, func() error {
		return o.store.SetProjectArtifact(ctx, projectID, result.Key, result.Fingerprint)
	}); err != nil {
		return err
	}

	for i, sl := range slides {
		o.publish(ctx, events.TypeSlideCompleted, projectID, events.SlideCompleted{
			SlideNumber: sl.SlideNumber,
			SlideTitle:  sl.Title,
			Commentary:  doc.Slides[i].Commentary,
			DownloadRef: result.Key,
		})
	}
	return nil
}

// DeleteProject removes a project: every object stored under its
// prefixes, its cached dataset, and finally the project row itself.
func (o *Orchestrator) DeleteProject(ctx context.Context, projectID string) error {
	lock := o.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := o.store.GetProject(ctx, projectID); err != nil {
		return err
	}

	for _, prefix := range storage.ProjectPrefixes(projectID) {
		keys, err := o.objects.List(ctx, prefix)
		if err != nil {
			return reperr.Wrap(reperr.ErrCategoryStorage, reperr.CodeDeleteFailed,
				"list project objects", err)
		}
		for _, key := range keys {
			if err := o.objects.Delete(ctx, key); err != nil {
				return reperr.Wrap(reperr.ErrCategoryStorage, reperr.CodeDeleteFailed,
					fmt.Sprintf("delete object %s", key), err)
			}
		}
	}
	o.cache.Remove(projectID)

	if err := store.WithRetry(ctx, func() error {
		return o.store.DeleteProject(ctx, projectID)
	}); err != nil {
		return err
	}

	o.mu.Lock()
	delete(o.locks, projectID)
	o.mu.Unlock()

	o.logger.Info("project deleted", zap.String("project_id", projectID))
	return nil
}

// transition commits a status change and then announces it.
func (o *Orchestrator) transition(ctx context.Context, projectID string, status store.ProjectStatus, progress int, message string) error {
	if err := store.WithRetry(ctx, func() error {
		return o.store.UpdateProjectState(ctx, projectID, status, progress, "")
	}); err != nil {
		return err
	}
	o.publish(ctx, events.TypeStatusUpdate, projectID, events.StatusUpdate{
		Status:   string(status),
		Progress: progress,
		Message:  message,
	})
	return nil
}

// fail marks the session failed. Best effort: a session that cannot
// even record its failure is logged and abandoned.
func (o *Orchestrator) fail(ctx context.Context, projectID string, cause error) {
	if err := o.store.UpdateProjectState(ctx, projectID, store.ProjectFailed, 0, cause.Error()); err != nil {
		o.logger.Error("failed to record session failure",
			zap.String("project_id", projectID),
			zap.NamedError("cause", cause),
			zap.Error(err))
		return
	}
	o.publishError(ctx, projectID, cause)
}

func (o *Orchestrator) publishError(ctx context.Context, projectID string, cause error) {
	o.publish(ctx, events.TypeError, projectID, events.ErrorEvent{
		Category: string(reperr.GetCategory(cause)),
		Code:     reperr.GetCode(cause),
		Message:  cause.Error(),
	})
}

// publish sends an event, logging delivery failures rather than
// failing the operation that produced them.
func (o *Orchestrator) publish(ctx context.Context, t events.Type, projectID string, payload interface{}) {
	ev, err := events.New(t, projectID, payload)
	if err != nil {
		o.logger.Error("failed to build event", zap.String("type", string(t)), zap.Error(err))
		return
	}
	if err := o.events.Publish(ctx, ev); err != nil {
		o.logger.Warn("failed to publish event",
			zap.String("type", string(t)),
			zap.String("project_id", projectID),
			zap.Error(err))
		return
	}
	o.metrics.EventsPublished.WithLabelValues(string(t)).Inc()
}

// loadDataset opens the cached dataset, repopulating the cache from
// object storage after a restart.
func (o *Orchestrator) loadDataset(ctx context.Context, project *store.ProjectRecord) (*dataset.Dataset, error) {
	ds, err := o.cache.Open(project.ProjectID)
	if err == nil {
		return ds, nil
	}

	src, err := o.objects.Get(ctx, project.DatasetKey)
	if err != nil {
		return nil, reperr.Wrap(reperr.ErrCategoryStorage, reperr.CodeDownloadFailed,
			"fetch dataset", err)
	}
	defer src.Close()
	if _, err := o.cache.Put(project.ProjectID, src); err != nil {
		return nil, reperr.NewInternalError("repopulate dataset cache", err)
	}
	return o.cache.Open(project.ProjectID)
}

// loadSchema fetches and parses the project's uploaded field schema.
func (o *Orchestrator) loadSchema(ctx context.Context, project *store.ProjectRecord) (dataset.Schema, error) {
	src, err := o.objects.Get(ctx, project.SchemaKey)
	if err != nil {
		return nil, reperr.Wrap(reperr.ErrCategoryStorage, reperr.CodeDownloadFailed,
			"fetch schema", err)
	}
	defer src.Close()

	raw, err := io.ReadAll(src)
	if err != nil {
		return nil, reperr.Wrap(reperr.ErrCategoryStorage, reperr.CodeDownloadFailed,
			"read schema", err)
	}
	schema, err := dataset.ParseSchema(raw)
	if err != nil {
		return nil, reperr.NewValidationError(reperr.CodeInvalidSchema,
			fmt.Sprintf("parse schema: %v", err))
	}
	return schema, nil
}
