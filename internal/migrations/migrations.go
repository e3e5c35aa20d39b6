// Package migrations applies the session table schema as tracked,
// versioned migrations through golang-migrate. The SQL files are templates
// rendered with the configured schema and table names, which callers must
// have validated as identifiers beforehand.
package migrations

import (
	"bytes"
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing/fstest"
	"text/template"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"
)

//go:embed sql/*.sql.tmpl
var templates embed.FS

// Target names the schema and table the migrations manage.
type Target struct {
	Schema string
	Table  string
}

// MigrationsTable is the golang-migrate history table for a session table.
func (t Target) MigrationsTable() string {
	return t.Table + "_schema_migrations"
}

// IndexName is the name of the expiry index on the session table.
func (t Target) IndexName() string {
	return t.Table + "_expiry_idx"
}

type templateData struct {
	Schema         string
	Table          string
	Index          string
	QualifiedIndex string
}

// Render returns the migration files for t, ready for golang-migrate's iofs
// source driver.
func Render(t Target) (fs.FS, error) {
	schema := pq.QuoteIdentifier(t.Schema)
	data := templateData{
		Schema:         schema,
		Table:          schema + "." + pq.QuoteIdentifier(t.Table),
		Index:          pq.QuoteIdentifier(t.IndexName()),
		QualifiedIndex: schema + "." + pq.QuoteIdentifier(t.IndexName()),
	}

	entries, err := fs.ReadDir(templates, "sql")
	if err != nil {
		return nil, fmt.Errorf("migrations: read templates: %w", err)
	}

	out := fstest.MapFS{}
	for _, e := range entries {
		raw, err := fs.ReadFile(templates, "sql/"+e.Name())
		if err != nil {
			return nil, fmt.Errorf("migrations: read %s: %w", e.Name(), err)
		}
		tmpl, err := template.New(e.Name()).Option("missingkey=error").Parse(string(raw))
		if err != nil {
			return nil, fmt.Errorf("migrations: parse %s: %w", e.Name(), err)
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return nil, fmt.Errorf("migrations: render %s: %w", e.Name(), err)
		}
		out[strings.TrimSuffix(e.Name(), ".tmpl")] = &fstest.MapFile{Data: buf.Bytes()}
	}
	return out, nil
}

// Up applies all pending migrations for t over conn. The schema must exist.
// conn is closed when Up returns.
func Up(ctx context.Context, conn *sql.Conn, t Target) error {
	files, err := Render(t)
	if err != nil {
		return err
	}

	src, err := iofs.New(files, ".")
	if err != nil {
		return fmt.Errorf("migrations: source: %w", err)
	}

	driver, err := postgres.WithConnection(ctx, conn, &postgres.Config{
		SchemaName:      t.Schema,
		MigrationsTable: t.MigrationsTable(),
	})
	if err != nil {
		src.Close()
		return fmt.Errorf("migrations: database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		src.Close()
		driver.Close()
		return fmt.Errorf("migrations: init: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrations: up: %w", err)
	}
	return nil
}
