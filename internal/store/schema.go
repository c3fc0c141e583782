// Package store persists projects and slide specifications in a
// SQLite database. It is the source of truth for session state; events
// are only published after a store write has committed.
package store

// CreateProjectsTableSQL creates the projects table. A project is one
// uploaded dataset plus its reporting session: lifecycle status,
// progress, artifact pointers, and failure detail.
const CreateProjectsTableSQL = `
CREATE TABLE IF NOT EXISTS projects (
    project_id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    status TEXT NOT NULL,
    mode TEXT NOT NULL DEFAULT 'interactive',
    progress INTEGER NOT NULL DEFAULT 0,
    dataset_key TEXT NOT NULL,
    schema_key TEXT NOT NULL DEFAULT '',
    template_key TEXT,
    artifact_key TEXT,
    artifact_fingerprint TEXT,
    error TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
)`

// CreateSlidesTableSQL creates the slides table. Row specifications
// are stored as JSON in three layers: the planner's proposal, the
// user's latest edit, and the rows last rendered into the deck.
const CreateSlidesTableSQL = `
CREATE TABLE IF NOT EXISTS slides (
    project_id TEXT NOT NULL,
    slide_number INTEGER NOT NULL,
    title TEXT NOT NULL,
    status TEXT NOT NULL,
    planner_rows TEXT,
    user_rows TEXT,
    final_rows TEXT,
    rationale TEXT,
    commentary TEXT,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (project_id, slide_number),
    FOREIGN KEY (project_id) REFERENCES projects(project_id) ON DELETE CASCADE
)`

// CreateIndexesSQL creates secondary indexes.
var CreateIndexesSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_projects_status ON projects(status)`,
	`CREATE INDEX IF NOT EXISTS idx_projects_created ON projects(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_slides_project ON slides(project_id)`,
}

// AllSchemaSQL returns every schema statement in execution order.
func AllSchemaSQL() []string {
	stmts := []string{CreateProjectsTableSQL, CreateSlidesTableSQL}
	stmts = append(stmts, CreateIndexesSQL...)
	return stmts
}
