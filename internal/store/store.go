package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	reperr "github.com/expertsure/expertsure/internal/errors"
	"github.com/expertsure/expertsure/internal/slidespec"
)

// ProjectStatus is the session lifecycle state of a project.
type ProjectStatus string

const (
	ProjectInitialized    ProjectStatus = "initialized"
	ProjectAnalyzing      ProjectStatus = "analyzing"
	ProjectWaitingForUser ProjectStatus = "waiting_for_user"
	ProjectSlideProcess   ProjectStatus = "slide_processing"
	ProjectCompleted      ProjectStatus = "completed"
	ProjectFailed         ProjectStatus = "failed"
)

// SlideStatus is the per-slide processing state.
type SlideStatus string

const (
	SlidePending    SlideStatus = "pending"
	SlideAnalyzed   SlideStatus = "analyzed"
	SlideProcessing SlideStatus = "processing"
	SlideCompleted  SlideStatus = "completed"
	SlideError      SlideStatus = "error"
)

// Mode selects how a session proceeds after the initial analysis.
type Mode string

const (
	ModeInteractive Mode = "interactive"
	ModeAuto        Mode = "auto"
)

// ProjectRecord is one project row.
type ProjectRecord struct {
	ProjectID           string
	Name                string
	Status              ProjectStatus
	Mode                Mode
	Progress            int
	DatasetKey          string
	SchemaKey           string
	TemplateKey         string
	ArtifactKey         string
	ArtifactFingerprint string
	Error               string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// SlideRecord is one slide row. The three row-specification layers are
// kept separately so an edit never destroys the planner's proposal and
// the rendered deck always reflects FinalRows.
type SlideRecord struct {
	ProjectID   string
	SlideNumber int
	Title       string
	Status      SlideStatus
	PlannerRows []slidespec.RowSpecification
	UserRows    []slidespec.RowSpecification
	FinalRows   []slidespec.RowSpecification
	Rationale   string
	Commentary  string
	UpdatedAt   time.Time
}

// EffectiveRows returns the rows a rebuild should evaluate: the user's
// latest edit when present, otherwise the planner proposal.
func (s *SlideRecord) EffectiveRows() []slidespec.RowSpecification {
	if len(s.UserRows) > 0 {
		return s.UserRows
	}
	return s.PlannerRows
}

// Store is the persistence boundary used by the orchestrator and API.
type Store interface {
	CreateProject(ctx context.Context, p *ProjectRecord) error
	GetProject(ctx context.Context, projectID string) (*ProjectRecord, error)
	ListProjects(ctx context.Context) ([]*ProjectRecord, error)
	UpdateProjectState(ctx context.Context, projectID string, status ProjectStatus, progress int, errMsg string) error
	SetProjectArtifact(ctx context.Context, projectID, artifactKey, fingerprint string) error
	DeleteProject(ctx context.Context, projectID string) error

	ReplaceSlides(ctx context.Context, projectID string, slides []*SlideRecord) error
	GetSlides(ctx context.Context, projectID string) ([]*SlideRecord, error)
	GetSlide(ctx context.Context, projectID string, slideNumber int) (*SlideRecord, error)
	UpdateSlide(ctx context.Context, s *SlideRecord) error
	UpdateSlideStatus(ctx context.Context, projectID string, slideNumber int, status SlideStatus) error

	Close() error
}

// SQLiteStore implements Store using SQLite with a single write
// connection and a read-only connection pool.
type SQLiteStore struct {
	db     *sql.DB // write connection (single writer)
	readDB *sql.DB // read connection pool
	dbPath string
	mu     sync.Mutex // serializes writes

	insertProjectStmt *sql.Stmt
}

// NewSQLiteStore opens (or creates) the project database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	readDB, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&mode=ro")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: failed to open read database: %w", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(4)
	readDB.SetConnMaxLifetime(5 * time.Minute)

	s := &SQLiteStore{db: db, readDB: readDB, dbPath: dbPath}

	if err := s.initSchema(); err != nil {
		readDB.Close()
		db.Close()
		return nil, fmt.Errorf("store: failed to initialize schema: %w", err)
	}

	insertStmt, err := db.Prepare(`
		INSERT INTO projects (
			project_id, name, status, mode, progress,
			dataset_key, schema_key, template_key, artifact_key, artifact_fingerprint,
			error, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		readDB.Close()
		db.Close()
		return nil, fmt.Errorf("store: failed to prepare insert statement: %w", err)
	}
	s.insertProjectStmt = insertStmt

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, stmt := range AllSchemaSQL() {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// CreateProject inserts a new project row.
func (s *SQLiteStore) CreateProject(ctx context.Context, p *ProjectRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.insertProjectStmt.ExecContext(ctx,
		p.ProjectID, p.Name, string(p.Status), string(p.Mode), p.Progress,
		p.DatasetKey, p.SchemaKey, nullable(p.TemplateKey), nullable(p.ArtifactKey), nullable(p.ArtifactFingerprint),
		nullable(p.Error), p.CreatedAt.Unix(), p.UpdatedAt.Unix(),
	)
	if err != nil {
		return writeErr("failed to insert project", err)
	}
	return nil
}

const projectColumns = `project_id, name, status, mode, progress,
	dataset_key, schema_key, template_key, artifact_key, artifact_fingerprint,
	error, created_at, updated_at`

// GetProject retrieves one project by ID.
func (s *SQLiteStore) GetProject(ctx context.Context, projectID string) (*ProjectRecord, error) {
	row := s.readDB.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE project_id = ?`, projectID)
	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, reperr.NewStoreError(reperr.CodeProjectNotFound,
			fmt.Sprintf("project %s not found", projectID), nil)
	}
	if err != nil {
		return nil, reperr.NewStoreError(reperr.CodeUnexpected, "failed to read project", err)
	}
	return p, nil
}

// ListProjects returns all projects, newest first.
func (s *SQLiteStore) ListProjects(ctx context.Context) ([]*ProjectRecord, error) {
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC, project_id`)
	if err != nil {
		return nil, reperr.NewStoreError(reperr.CodeUnexpected, "failed to list projects", err)
	}
	defer rows.Close()

	var out []*ProjectRecord
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, reperr.NewStoreError(reperr.CodeUnexpected, "failed to scan project", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, reperr.NewStoreError(reperr.CodeUnexpected, "failed to iterate projects", err)
	}
	return out, nil
}

// UpdateProjectState transitions a project's status, progress, and
// error detail in one write.
func (s *SQLiteStore) UpdateProjectState(ctx context.Context, projectID string, status ProjectStatus, progress int, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET status = ?, progress = ?, error = ?, updated_at = ? WHERE project_id = ?`,
		string(status), progress, nullable(errMsg), time.Now().Unix(), projectID)
	if err != nil {
		return writeErr("failed to update project state", err)
	}
	return requireRow(res, reperr.CodeProjectNotFound, fmt.Sprintf("project %s not found", projectID))
}

// SetProjectArtifact records the rendered deck's object key and
// content fingerprint.
func (s *SQLiteStore) SetProjectArtifact(ctx context.Context, projectID, artifactKey, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET artifact_key = ?, artifact_fingerprint = ?, updated_at = ? WHERE project_id = ?`,
		artifactKey, fingerprint, time.Now().Unix(), projectID)
	if err != nil {
		return writeErr("failed to set project artifact", err)
	}
	return requireRow(res, reperr.CodeProjectNotFound, fmt.Sprintf("project %s not found", projectID))
}

// DeleteProject removes a project row. The slides foreign key cascades
// so the project's slides go with it.
func (s *SQLiteStore) DeleteProject(ctx context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM projects WHERE project_id = ?`, projectID)
	if err != nil {
		return writeErr("failed to delete project", err)
	}
	return requireRow(res, reperr.CodeProjectNotFound, fmt.Sprintf("project %s not found", projectID))
}

// ReplaceSlides atomically replaces every slide of a project. The
// delete and the inserts commit together so a reader never observes a
// half-written plan.
func (s *SQLiteStore) ReplaceSlides(ctx context.Context, projectID string, slides []*SlideRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return writeErr("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM slides WHERE project_id = ?`, projectID); err != nil {
		return writeErr("failed to clear slides", err)
	}

	for _, sl := range slides {
		if err := insertSlideTx(ctx, tx, projectID, sl); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return writeErr("failed to commit slides", err)
	}
	return nil
}

func insertSlideTx(ctx context.Context, tx *sql.Tx, projectID string, sl *SlideRecord) error {
	planner, err := slidespec.EncodeRows(sl.PlannerRows)
	if err != nil {
		return reperr.NewStoreError(reperr.CodeUnexpected, "failed to encode planner rows", err)
	}
	user, err := slidespec.EncodeRows(sl.UserRows)
	if err != nil {
		return reperr.NewStoreError(reperr.CodeUnexpected, "failed to encode user rows", err)
	}
	final, err := slidespec.EncodeRows(sl.FinalRows)
	if err != nil {
		return reperr.NewStoreError(reperr.CodeUnexpected, "failed to encode final rows", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO slides (
			project_id, slide_number, title, status,
			planner_rows, user_rows, final_rows,
			rationale, commentary, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		projectID, sl.SlideNumber, sl.Title, string(sl.Status),
		string(planner), string(user), string(final),
		nullable(sl.Rationale), nullable(sl.Commentary), time.Now().Unix(),
	)
	if err != nil {
		return writeErr("failed to insert slide", err)
	}
	return nil
}

const slideColumns = `project_id, slide_number, title, status,
	planner_rows, user_rows, final_rows, rationale, commentary, updated_at`

// GetSlides returns a project's slides in slide-number order.
func (s *SQLiteStore) GetSlides(ctx context.Context, projectID string) ([]*SlideRecord, error) {
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT `+slideColumns+` FROM slides WHERE project_id = ? ORDER BY slide_number`, projectID)
	if err != nil {
		return nil, reperr.NewStoreError(reperr.CodeUnexpected, "failed to list slides", err)
	}
	defer rows.Close()

	var out []*SlideRecord
	for rows.Next() {
		sl, err := scanSlide(rows)
		if err != nil {
			return nil, reperr.NewStoreError(reperr.CodeUnexpected, "failed to scan slide", err)
		}
		out = append(out, sl)
	}
	if err := rows.Err(); err != nil {
		return nil, reperr.NewStoreError(reperr.CodeUnexpected, "failed to iterate slides", err)
	}
	return out, nil
}

// GetSlide retrieves a single slide.
func (s *SQLiteStore) GetSlide(ctx context.Context, projectID string, slideNumber int) (*SlideRecord, error) {
	row := s.readDB.QueryRowContext(ctx,
		`SELECT `+slideColumns+` FROM slides WHERE project_id = ? AND slide_number = ?`,
		projectID, slideNumber)
	sl, err := scanSlide(row)
	if err == sql.ErrNoRows {
		return nil, reperr.NewStoreError(reperr.CodeSlideNotFound,
			fmt.Sprintf("slide %d of project %s not found", slideNumber, projectID), nil)
	}
	if err != nil {
		return nil, reperr.NewStoreError(reperr.CodeUnexpected, "failed to read slide", err)
	}
	return sl, nil
}

// UpdateSlide rewrites a slide's mutable fields: status, row layers,
// rationale, and commentary.
func (s *SQLiteStore) UpdateSlide(ctx context.Context, sl *SlideRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := slidespec.EncodeRows(sl.UserRows)
	if err != nil {
		return reperr.NewStoreError(reperr.CodeUnexpected, "failed to encode user rows", err)
	}
	final, err := slidespec.EncodeRows(sl.FinalRows)
	if err != nil {
		return reperr.NewStoreError(reperr.CodeUnexpected, "failed to encode final rows", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE slides SET title = ?, status = ?, user_rows = ?, final_rows = ?,
			rationale = ?, commentary = ?, updated_at = ?
		WHERE project_id = ? AND slide_number = ?`,
		sl.Title, string(sl.Status), string(user), string(final),
		nullable(sl.Rationale), nullable(sl.Commentary), time.Now().Unix(),
		sl.ProjectID, sl.SlideNumber)
	if err != nil {
		return writeErr("failed to update slide", err)
	}
	return requireRow(res, reperr.CodeSlideNotFound,
		fmt.Sprintf("slide %d of project %s not found", sl.SlideNumber, sl.ProjectID))
}

// UpdateSlideStatus transitions one slide's processing state.
func (s *SQLiteStore) UpdateSlideStatus(ctx context.Context, projectID string, slideNumber int, status SlideStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE slides SET status = ?, updated_at = ? WHERE project_id = ? AND slide_number = ?`,
		string(status), time.Now().Unix(), projectID, slideNumber)
	if err != nil {
		return writeErr("failed to update slide status", err)
	}
	return requireRow(res, reperr.CodeSlideNotFound,
		fmt.Sprintf("slide %d of project %s not found", slideNumber, projectID))
}

// Close closes both database handles.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.insertProjectStmt != nil {
		s.insertProjectStmt.Close()
	}
	var firstErr error
	if err := s.readDB.Close(); err != nil {
		firstErr = err
	}
	if err := s.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProject(r rowScanner) (*ProjectRecord, error) {
	var p ProjectRecord
	var status, mode string
	var templateKey, artifactKey, fingerprint, errMsg sql.NullString
	var createdAt, updatedAt int64

	if err := r.Scan(&p.ProjectID, &p.Name, &status, &mode, &p.Progress,
		&p.DatasetKey, &p.SchemaKey, &templateKey, &artifactKey, &fingerprint,
		&errMsg, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	p.Status = ProjectStatus(status)
	p.Mode = Mode(mode)
	p.TemplateKey = templateKey.String
	p.ArtifactKey = artifactKey.String
	p.ArtifactFingerprint = fingerprint.String
	p.Error = errMsg.String
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	p.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &p, nil
}

func scanSlide(r rowScanner) (*SlideRecord, error) {
	var sl SlideRecord
	var status string
	var planner, user, final, rationale, commentary sql.NullString
	var updatedAt int64

	if err := r.Scan(&sl.ProjectID, &sl.SlideNumber, &sl.Title, &status,
		&planner, &user, &final, &rationale, &commentary, &updatedAt); err != nil {
		return nil, err
	}

	sl.Status = SlideStatus(status)
	sl.Rationale = rationale.String
	sl.Commentary = commentary.String
	sl.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	var err error
	if sl.PlannerRows, err = slidespec.DecodeRows([]byte(planner.String)); err != nil {
		return nil, err
	}
	if sl.UserRows, err = slidespec.DecodeRows([]byte(user.String)); err != nil {
		return nil, err
	}
	if sl.FinalRows, err = slidespec.DecodeRows([]byte(final.String)); err != nil {
		return nil, err
	}
	return &sl, nil
}

// nullable maps empty strings to SQL NULL.
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// requireRow turns a zero-row UPDATE into a not-found error.
func requireRow(res sql.Result, code, msg string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return reperr.NewStoreError(reperr.CodeUnexpected, "failed to inspect update result", err)
	}
	if n == 0 {
		return reperr.NewStoreError(code, msg, nil)
	}
	return nil
}

// writeErr classifies a write failure. Busy and locked failures map to
// the retryable write-conflict code so callers can back off and retry.
func writeErr(msg string, err error) error {
	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "busy") || strings.Contains(lower, "locked") {
		return reperr.NewStoreError(reperr.CodeWriteConflict, msg, err)
	}
	return reperr.NewStoreError(reperr.CodeUnexpected, msg, err)
}
