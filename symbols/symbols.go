// Package symbols writes a debug symbol database for a compiled module. It
// lets debuggers map the class and dispatch indices found in a module back
// to the names of the program they came from.
package symbols

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/tessera/compiler"
	"github.com/chazu/tessera/model"
)

var log = commonlog.GetLogger("tessera.symbols")

// ErrNotFound indicates no symbol is recorded under the requested index.
var ErrNotFound = errors.New("symbol not found")

const schema = `
CREATE TABLE classes (
	idx        INTEGER PRIMARY KEY,
	package    TEXT NOT NULL,
	name       TEXT NOT NULL UNIQUE,
	size       INTEGER NOT NULL,
	superclass INTEGER NOT NULL
);
CREATE TABLE callables (
	owner    TEXT NOT NULL,
	name     TEXT NOT NULL,
	kind     TEXT NOT NULL,
	domain   TEXT NOT NULL,
	dispatch INTEGER NOT NULL,
	used     INTEGER NOT NULL,
	native   INTEGER NOT NULL
);
CREATE INDEX callables_by_index ON callables (domain, dispatch);
CREATE TABLE protocols (
	idx  INTEGER PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);
CREATE TABLE session (
	id      TEXT NOT NULL,
	source  TEXT NOT NULL
);
`

// Callable is one row of the callables table.
type Callable struct {
	Owner    string
	Name     string
	Kind     string
	Domain   string
	Dispatch int
	Used     bool
	Native   int
}

// DB is an open symbol database.
type DB struct {
	db   *sql.DB
	path string
}

// Create creates a fresh database at path, replacing any existing file.
func Create(path string) (*DB, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("removing old database: %w", err)
	}
	d, err := Open(path)
	if err != nil {
		return nil, err
	}
	if _, err := d.db.Exec(schema); err != nil {
		d.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}
	return d, nil
}

// Open opens an existing database.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	return &DB{db: db, path: path}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// Write records the symbols of a compiled session in a new database at path.
func Write(path string, s *compiler.Session) error {
	d, err := Create(path)
	if err != nil {
		return err
	}
	if err := d.Record(s); err != nil {
		d.Close()
		return err
	}
	return d.Close()
}

// Record inserts the classes, callables and protocols of s in one
// transaction. Callables that never received a dispatch index are skipped.
func (d *DB) Record(s *compiler.Session) (err error) {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.Exec("INSERT INTO session (id, source) VALUES (?, ?)", s.ID.String(), s.Program.Source); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}

	for _, pkg := range s.Program.Packages {
		for _, c := range pkg.Classes {
			super := c.Index
			if c.Super != nil {
				super = c.Super.Index
			}
			if _, err = tx.Exec(
				"INSERT INTO classes (idx, package, name, size, superclass) VALUES (?, ?, ?, ?, ?)",
				c.Index, pkg.Name, c.Name, c.Size, super,
			); err != nil {
				return fmt.Errorf("saving class %s: %w", c.Name, err)
			}
		}
		for _, p := range pkg.Protocols {
			if _, err = tx.Exec("INSERT INTO protocols (idx, name) VALUES (?, ?)", p.Index, p.Name); err != nil {
				return fmt.Errorf("saving protocol %s: %w", p.Name, err)
			}
		}
	}

	n := 0
	for _, c := range s.Program.Callables() {
		i, ok := s.Dispatch.Lookup(c)
		if !ok {
			continue
		}
		if _, err = tx.Exec(
			"INSERT INTO callables (owner, name, kind, domain, dispatch, used, native) VALUES (?, ?, ?, ?, ?, ?, ?)",
			owner(c), c.Name, string(c.Kind), s.Dispatch.DomainOf(c).Name(), i, s.Dispatch.Used(c), int(c.Native),
		); err != nil {
			return fmt.Errorf("saving %s: %w", c.QualifiedName(), err)
		}
		n++
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing symbols: %w", err)
	}
	log.Infof("wrote %d callables to %s", n, d.path)
	return nil
}

func owner(c *model.Callable) string {
	if c.Owner == nil {
		if c.Package != nil {
			return c.Package.Name
		}
		return ""
	}
	return c.Owner.TypeName()
}

// ClassName returns the name of the class with the given module index.
func (d *DB) ClassName(index int) (string, error) {
	var name string
	err := d.db.QueryRow("SELECT name FROM classes WHERE idx = ?", index).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	} else if err != nil {
		return "", fmt.Errorf("querying class: %w", err)
	}
	return name, nil
}

// Callables returns every callable recorded under a dispatch index of a
// domain. Overriding methods share their index, so there may be several.
func (d *DB) Callables(domain string, index int) ([]Callable, error) {
	rows, err := d.db.Query(
		"SELECT owner, name, kind, domain, dispatch, used, native FROM callables WHERE domain = ? AND dispatch = ? ORDER BY rowid",
		domain, index,
	)
	if err != nil {
		return nil, fmt.Errorf("querying callables: %w", err)
	}
	defer rows.Close()

	var found []Callable
	for rows.Next() {
		var c Callable
		if err := rows.Scan(&c.Owner, &c.Name, &c.Kind, &c.Domain, &c.Dispatch, &c.Used, &c.Native); err != nil {
			return nil, fmt.Errorf("reading callable: %w", err)
		}
		found = append(found, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, ErrNotFound
	}
	return found, nil
}
