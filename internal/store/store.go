// Package store persists crates, their traits, and implementor fragment
// metadata in DuckDB. Fragment HTML itself lives in the CAS; rows here hold
// content hashes plus the tag-stripped header text used for search.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/marcboeker/go-duckdb"
)

type DB struct {
	conn *sql.DB
}

func New(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	conn, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) initSchema() error {
	queries := []string{
		`CREATE SEQUENCE IF NOT EXISTS seq_crate_id START 1;`,
		`CREATE SEQUENCE IF NOT EXISTS seq_trait_id START 1;`,
		`CREATE SEQUENCE IF NOT EXISTS seq_fragment_id START 1;`,

		`CREATE TABLE IF NOT EXISTS crates (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			version TEXT NOT NULL,
			fetched_at TIMESTAMP,
			processed_at TIMESTAMP,
			last_used_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(name, version)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_crates_name ON crates (name)`,

		`CREATE TABLE IF NOT EXISTS traits (
			id INTEGER PRIMARY KEY,
			crate_id INTEGER NOT NULL REFERENCES crates(id),
			path TEXT NOT NULL,
			name TEXT NOT NULL,
			docs_hash TEXT,
			UNIQUE(crate_id, path)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_traits_crate ON traits (crate_id)`,
		`CREATE INDEX IF NOT EXISTS idx_traits_path ON traits (path)`,

		`CREATE TABLE IF NOT EXISTS impl_fragments (
			id INTEGER PRIMARY KEY,
			trait_id INTEGER NOT NULL REFERENCES traits(id),
			source_crate TEXT NOT NULL,
			group_pos INTEGER NOT NULL,
			position INTEGER NOT NULL,
			content_hash TEXT NOT NULL,
			header_text TEXT NOT NULL,
			UNIQUE(trait_id, source_crate, position)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fragments_trait ON impl_fragments (trait_id)`,
		`CREATE INDEX IF NOT EXISTS idx_fragments_hash ON impl_fragments (content_hash)`,
	}

	for _, q := range queries {
		if _, err := db.conn.Exec(q); err != nil {
			return fmt.Errorf("executing %q: %w", q, err)
		}
	}
	return nil
}

// --- Crate operations ---

type Crate struct {
	ID          int
	Name        string
	Version     string
	FetchedAt   *time.Time
	ProcessedAt *time.Time
	LastUsedAt  time.Time
	Traits      int
}

func (db *DB) UpsertCrate(name, version string) (*Crate, error) {
	var c Crate
	err := db.conn.QueryRow(
		`SELECT id, name, version, fetched_at, processed_at, last_used_at FROM crates WHERE name = ? AND version = ?`,
		name, version,
	).Scan(&c.ID, &c.Name, &c.Version, &c.FetchedAt, &c.ProcessedAt, &c.LastUsedAt)

	if err == nil {
		if _, err := db.conn.Exec(`UPDATE crates SET last_used_at = CURRENT_TIMESTAMP WHERE id = ?`, c.ID); err != nil {
			return nil, fmt.Errorf("touching crate: %w", err)
		}
		return &c, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("checking crate: %w", err)
	}

	err = db.conn.QueryRow(
		`INSERT INTO crates (id, name, version) VALUES (nextval('seq_crate_id'), ?, ?) RETURNING id`,
		name, version,
	).Scan(&c.ID)
	if err != nil {
		return nil, fmt.Errorf("inserting crate: %w", err)
	}

	c.Name = name
	c.Version = version
	c.LastUsedAt = time.Now()
	return &c, nil
}

func (db *DB) MarkCrateFetched(crateID int) error {
	if _, err := db.conn.Exec(`UPDATE crates SET fetched_at = CURRENT_TIMESTAMP WHERE id = ?`, crateID); err != nil {
		return fmt.Errorf("marking crate fetched: %w", err)
	}
	return nil
}

func (db *DB) MarkCrateProcessed(crateID int) error {
	if _, err := db.conn.Exec(`UPDATE crates SET processed_at = CURRENT_TIMESTAMP WHERE id = ?`, crateID); err != nil {
		return fmt.Errorf("marking crate processed: %w", err)
	}
	return nil
}

func (db *DB) FindCrate(name, version string) (*Crate, error) {
	var c Crate
	err := db.conn.QueryRow(
		`SELECT id, name, version, fetched_at, processed_at, last_used_at FROM crates WHERE name = ? AND version = ?`,
		name, version,
	).Scan(&c.ID, &c.Name, &c.Version, &c.FetchedAt, &c.ProcessedAt, &c.LastUsedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding crate: %w", err)
	}
	return &c, nil
}

func (db *DB) ListCrates() ([]Crate, error) {
	rows, err := db.conn.Query(
		`SELECT c.id, c.name, c.version, c.fetched_at, c.processed_at, c.last_used_at,
		        (SELECT COUNT(*) FROM traits t WHERE t.crate_id = c.id)
		 FROM crates c ORDER BY c.name, c.version`)
	if err != nil {
		return nil, fmt.Errorf("listing crates: %w", err)
	}
	defer rows.Close()

	var crates []Crate
	for rows.Next() {
		var c Crate
		if err := rows.Scan(&c.ID, &c.Name, &c.Version, &c.FetchedAt, &c.ProcessedAt, &c.LastUsedAt, &c.Traits); err != nil {
			return nil, fmt.Errorf("scanning crate: %w", err)
		}
		crates = append(crates, c)
	}
	return crates, rows.Err()
}

// --- Trait and fragment operations ---

type Trait struct {
	ID           int
	CrateID      int
	Path         string
	Name         string
	DocsHash     string
	Implementors int
}

// SetTraitDocs attaches rendered trait documentation (by CAS hash) to an
// already-stored trait.
func (db *DB) SetTraitDocs(crateID int, traitPath, docsHash string) error {
	if _, err := db.conn.Exec(
		`UPDATE traits SET docs_hash = ? WHERE crate_id = ? AND path = ?`, docsHash, crateID, traitPath); err != nil {
		return fmt.Errorf("setting trait docs: %w", err)
	}
	return nil
}

// StoredFragment is one implementor fragment's metadata. GroupPos orders the
// crate keys of the original mapping; Position orders fragments within a key.
type StoredFragment struct {
	SourceCrate string
	GroupPos    int
	Position    int
	ContentHash string
	HeaderText  string
}

// ReplaceTraitImplementors overwrites the stored implementor set for one
// trait. The whole replacement happens in a single transaction so readers
// never observe a partial set.
func (db *DB) ReplaceTraitImplementors(crateID int, traitPath, traitName, docsHash string, fragments []StoredFragment) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var traitID int
	err = tx.QueryRow(`SELECT id FROM traits WHERE crate_id = ? AND path = ?`, crateID, traitPath).Scan(&traitID)
	if err == sql.ErrNoRows {
		err = tx.QueryRow(
			`INSERT INTO traits (id, crate_id, path, name, docs_hash) VALUES (nextval('seq_trait_id'), ?, ?, ?, ?) RETURNING id`,
			crateID, traitPath, traitName, docsHash,
		).Scan(&traitID)
		if err != nil {
			return fmt.Errorf("inserting trait: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("checking trait: %w", err)
	} else {
		// Re-publishes from the site watcher carry no docs; keep what we have.
		if docsHash != "" {
			_, err = tx.Exec(`UPDATE traits SET name = ?, docs_hash = ? WHERE id = ?`, traitName, docsHash, traitID)
		} else {
			_, err = tx.Exec(`UPDATE traits SET name = ? WHERE id = ?`, traitName, traitID)
		}
		if err != nil {
			return fmt.Errorf("updating trait: %w", err)
		}
	}

	if _, err := tx.Exec(`DELETE FROM impl_fragments WHERE trait_id = ?`, traitID); err != nil {
		return fmt.Errorf("clearing old fragments: %w", err)
	}

	for _, f := range fragments {
		_, err := tx.Exec(
			`INSERT INTO impl_fragments (id, trait_id, source_crate, group_pos, position, content_hash, header_text)
			 VALUES (nextval('seq_fragment_id'), ?, ?, ?, ?, ?, ?)`,
			traitID, f.SourceCrate, f.GroupPos, f.Position, f.ContentHash, f.HeaderText,
		)
		if err != nil {
			return fmt.Errorf("inserting fragment %s[%d]: %w", f.SourceCrate, f.Position, err)
		}
	}

	return tx.Commit()
}

func (db *DB) ListTraits(crateID int) ([]Trait, error) {
	rows, err := db.conn.Query(
		`SELECT t.id, t.crate_id, t.path, t.name, COALESCE(t.docs_hash, ''),
		        (SELECT COUNT(*) FROM impl_fragments f WHERE f.trait_id = t.id)
		 FROM traits t WHERE t.crate_id = ? ORDER BY t.path`, crateID)
	if err != nil {
		return nil, fmt.Errorf("listing traits: %w", err)
	}
	defer rows.Close()

	var traits []Trait
	for rows.Next() {
		var t Trait
		if err := rows.Scan(&t.ID, &t.CrateID, &t.Path, &t.Name, &t.DocsHash, &t.Implementors); err != nil {
			return nil, fmt.Errorf("scanning trait: %w", err)
		}
		traits = append(traits, t)
	}
	return traits, rows.Err()
}

func (db *DB) FindTrait(crateID int, traitPath string) (*Trait, error) {
	var t Trait
	err := db.conn.QueryRow(
		`SELECT t.id, t.crate_id, t.path, t.name, COALESCE(t.docs_hash, ''),
		        (SELECT COUNT(*) FROM impl_fragments f WHERE f.trait_id = t.id)
		 FROM traits t WHERE t.crate_id = ? AND t.path = ?`,
		crateID, traitPath,
	).Scan(&t.ID, &t.CrateID, &t.Path, &t.Name, &t.DocsHash, &t.Implementors)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding trait: %w", err)
	}
	return &t, nil
}

// TraitFragments returns a trait's fragments in mapping order: crate groups
// in their original key order, fragments in position order within a group.
func (db *DB) TraitFragments(traitID int) ([]StoredFragment, error) {
	rows, err := db.conn.Query(
		`SELECT source_crate, group_pos, position, content_hash, header_text
		 FROM impl_fragments WHERE trait_id = ? ORDER BY group_pos, position`, traitID)
	if err != nil {
		return nil, fmt.Errorf("loading fragments: %w", err)
	}
	defer rows.Close()

	var fragments []StoredFragment
	for rows.Next() {
		var f StoredFragment
		if err := rows.Scan(&f.SourceCrate, &f.GroupPos, &f.Position, &f.ContentHash, &f.HeaderText); err != nil {
			return nil, fmt.Errorf("scanning fragment: %w", err)
		}
		fragments = append(fragments, f)
	}
	return fragments, rows.Err()
}

// SearchHit is one implementor matched by a header-text search.
type SearchHit struct {
	CrateName    string
	CrateVersion string
	TraitPath    string
	SourceCrate  string
	HeaderText   string
}

// SearchImplementors finds implementor fragments whose header text contains
// the query, case-insensitively.
func (db *DB) SearchImplementors(query string, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := db.conn.Query(
		`SELECT c.name, c.version, t.path, f.source_crate, f.header_text
		 FROM impl_fragments f
		 JOIN traits t ON t.id = f.trait_id
		 JOIN crates c ON c.id = t.crate_id
		 WHERE f.header_text ILIKE '%' || ? || '%'
		 ORDER BY t.path, f.group_pos, f.position
		 LIMIT ?`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("searching implementors: %w", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var h SearchHit
		if err := rows.Scan(&h.CrateName, &h.CrateVersion, &h.TraitPath, &h.SourceCrate, &h.HeaderText); err != nil {
			return nil, fmt.Errorf("scanning search hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// ClearAll drops every stored crate, trait, and fragment row.
func (db *DB) ClearAll() error {
	for _, q := range []string{
		`DELETE FROM impl_fragments`,
		`DELETE FROM traits`,
		`DELETE FROM crates`,
	} {
		if _, err := db.conn.Exec(q); err != nil {
			return fmt.Errorf("executing %q: %w", q, err)
		}
	}
	return nil
}
