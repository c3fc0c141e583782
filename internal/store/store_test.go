package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	reperr "github.com/expertsure/expertsure/internal/errors"
	"github.com/expertsure/expertsure/internal/slidespec"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "projects.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newProject() *ProjectRecord {
	now := time.Now().UTC().Truncate(time.Second)
	return &ProjectRecord{
		ProjectID:  uuid.NewString(),
		Name:       "Q2 Reserve Review",
		Status:     ProjectInitialized,
		Mode:       ModeInteractive,
		DatasetKey: "datasets/q2.csv",
		SchemaKey:  "schemas/q2.json",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func sampleRows() []slidespec.RowSpecification {
	return []slidespec.RowSpecification{
		{
			RowLabel:     "Auto",
			MetricFields: []string{"NominalReserves"},
			Filters: []slidespec.FilterPredicate{
				{Field: "LoB_masked", Operator: slidespec.OpEq, Value: "Auto"},
			},
			Aggregation: slidespec.AggSum,
		},
	}
}

func TestProjectLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := newProject()
	if err := s.CreateProject(ctx, p); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	got, err := s.GetProject(ctx, p.ProjectID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if got.Name != p.Name || got.Status != ProjectInitialized || got.Mode != ModeInteractive {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.SchemaKey != p.SchemaKey {
		t.Errorf("schema key = %q, want %q", got.SchemaKey, p.SchemaKey)
	}
	if got.TemplateKey != "" || got.Error != "" {
		t.Errorf("empty fields should stay empty: %+v", got)
	}

	if err := s.UpdateProjectState(ctx, p.ProjectID, ProjectAnalyzing, 10, ""); err != nil {
		t.Fatalf("UpdateProjectState: %v", err)
	}
	got, err = s.GetProject(ctx, p.ProjectID)
	if err != nil {
		t.Fatalf("GetProject after update: %v", err)
	}
	if got.Status != ProjectAnalyzing || got.Progress != 10 {
		t.Errorf("state not updated: %+v", got)
	}

	if err := s.SetProjectArtifact(ctx, p.ProjectID, "decks/out.pptx", "ab12"); err != nil {
		t.Fatalf("SetProjectArtifact: %v", err)
	}
	got, _ = s.GetProject(ctx, p.ProjectID)
	if got.ArtifactKey != "decks/out.pptx" || got.ArtifactFingerprint != "ab12" {
		t.Errorf("artifact not recorded: %+v", got)
	}
}

func TestDeleteProjectCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := newProject()
	if err := s.CreateProject(ctx, p); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	slides := []*SlideRecord{
		{SlideNumber: 1, Title: "Summary", Status: SlideAnalyzed, PlannerRows: sampleRows()},
	}
	if err := s.ReplaceSlides(ctx, p.ProjectID, slides); err != nil {
		t.Fatalf("ReplaceSlides: %v", err)
	}

	if err := s.DeleteProject(ctx, p.ProjectID); err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}

	_, err := s.GetProject(ctx, p.ProjectID)
	if reperr.GetCode(err) != reperr.CodeProjectNotFound {
		t.Errorf("GetProject code = %q, want %q", reperr.GetCode(err), reperr.CodeProjectNotFound)
	}
	remaining, err := s.GetSlides(ctx, p.ProjectID)
	if err != nil {
		t.Fatalf("GetSlides: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("slides survived project deletion: %+v", remaining)
	}

	err = s.DeleteProject(ctx, p.ProjectID)
	if reperr.GetCode(err) != reperr.CodeProjectNotFound {
		t.Errorf("second delete code = %q, want %q", reperr.GetCode(err), reperr.CodeProjectNotFound)
	}
}

func TestProjectNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetProject(ctx, "missing")
	if reperr.GetCode(err) != reperr.CodeProjectNotFound {
		t.Errorf("GetProject code = %q, want %q", reperr.GetCode(err), reperr.CodeProjectNotFound)
	}

	err = s.UpdateProjectState(ctx, "missing", ProjectFailed, 0, "boom")
	if reperr.GetCode(err) != reperr.CodeProjectNotFound {
		t.Errorf("UpdateProjectState code = %q, want %q", reperr.GetCode(err), reperr.CodeProjectNotFound)
	}
}

func TestListProjectsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	older := newProject()
	older.CreatedAt = older.CreatedAt.Add(-time.Hour)
	newer := newProject()
	for _, p := range []*ProjectRecord{older, newer} {
		if err := s.CreateProject(ctx, p); err != nil {
			t.Fatalf("CreateProject: %v", err)
		}
	}

	list, err := s.ListProjects(ctx)
	if err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("list length = %d, want 2", len(list))
	}
	if list[0].ProjectID != newer.ProjectID {
		t.Errorf("newest project should come first")
	}
}

func TestReplaceSlidesAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := newProject()
	if err := s.CreateProject(ctx, p); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	first := []*SlideRecord{
		{SlideNumber: 1, Title: "Summary", Status: SlideAnalyzed, PlannerRows: sampleRows()},
		{SlideNumber: 2, Title: "Breakdown", Status: SlideAnalyzed, PlannerRows: sampleRows()},
	}
	if err := s.ReplaceSlides(ctx, p.ProjectID, first); err != nil {
		t.Fatalf("ReplaceSlides: %v", err)
	}

	replacement := []*SlideRecord{
		{SlideNumber: 1, Title: "Summary v2", Status: SlideAnalyzed, PlannerRows: sampleRows()},
	}
	if err := s.ReplaceSlides(ctx, p.ProjectID, replacement); err != nil {
		t.Fatalf("ReplaceSlides again: %v", err)
	}

	slides, err := s.GetSlides(ctx, p.ProjectID)
	if err != nil {
		t.Fatalf("GetSlides: %v", err)
	}
	if len(slides) != 1 || slides[0].Title != "Summary v2" {
		t.Errorf("replacement not atomic: %+v", slides)
	}
	if len(slides[0].PlannerRows) != 1 || slides[0].PlannerRows[0].RowLabel != "Auto" {
		t.Errorf("planner rows did not round trip: %+v", slides[0].PlannerRows)
	}
}

func TestSlideUpdateAndEffectiveRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := newProject()
	if err := s.CreateProject(ctx, p); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if err := s.ReplaceSlides(ctx, p.ProjectID, []*SlideRecord{
		{SlideNumber: 1, Title: "Summary", Status: SlideAnalyzed, PlannerRows: sampleRows()},
	}); err != nil {
		t.Fatalf("ReplaceSlides: %v", err)
	}

	sl, err := s.GetSlide(ctx, p.ProjectID, 1)
	if err != nil {
		t.Fatalf("GetSlide: %v", err)
	}
	if len(sl.UserRows) != 0 {
		t.Fatalf("fresh slide has user rows: %+v", sl.UserRows)
	}
	if got := sl.EffectiveRows(); len(got) != 1 || got[0].RowLabel != "Auto" {
		t.Errorf("effective rows should fall back to planner rows")
	}

	edited := sampleRows()
	edited[0].RowLabel = "Auto (edited)"
	sl.UserRows = edited
	sl.FinalRows = edited
	sl.Status = SlideCompleted
	sl.Commentary = "Auto drives the quarter."
	if err := s.UpdateSlide(ctx, sl); err != nil {
		t.Fatalf("UpdateSlide: %v", err)
	}

	got, err := s.GetSlide(ctx, p.ProjectID, 1)
	if err != nil {
		t.Fatalf("GetSlide after update: %v", err)
	}
	if got.Status != SlideCompleted || got.Commentary == "" {
		t.Errorf("slide update lost fields: %+v", got)
	}
	if rows := got.EffectiveRows(); rows[0].RowLabel != "Auto (edited)" {
		t.Errorf("effective rows should prefer user rows, got %q", rows[0].RowLabel)
	}
}

func TestSlideNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := newProject()
	if err := s.CreateProject(ctx, p); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	_, err := s.GetSlide(ctx, p.ProjectID, 9)
	if reperr.GetCode(err) != reperr.CodeSlideNotFound {
		t.Errorf("GetSlide code = %q, want %q", reperr.GetCode(err), reperr.CodeSlideNotFound)
	}

	err = s.UpdateSlideStatus(ctx, p.ProjectID, 9, SlideProcessing)
	if reperr.GetCode(err) != reperr.CodeSlideNotFound {
		t.Errorf("UpdateSlideStatus code = %q, want %q", reperr.GetCode(err), reperr.CodeSlideNotFound)
	}
}

func TestWithRetryTransient(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return reperr.NewStoreError(reperr.CodeWriteConflict, "database is locked", nil)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithRetry: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestWithRetryPermanent(t *testing.T) {
	permanent := errors.New("constraint violation")
	calls := 0
	err := WithRetry(context.Background(), func() error {
		calls++
		return reperr.NewStoreError(reperr.CodeUnexpected, "bad write", permanent)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("permanent errors must not retry, calls = %d", calls)
	}
	if !errors.Is(err, permanent) {
		t.Errorf("cause lost through retry wrapper")
	}
}
