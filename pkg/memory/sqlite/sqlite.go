// Package sqlite provides a SQLite-backed memory storage driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/paperquant/recall/pkg/memory"
)

// Driver implements memory.Driver using SQLite via database/sql.
type Driver struct {
	db     *sql.DB
	logger *zap.Logger
}

// Config holds configuration for the SQLite driver.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string
}

// NewDriver opens (or creates) the database at the configured path and runs
// the schema migration.
func NewDriver(c Config, logger *zap.Logger) (*Driver, error) {
	if c.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single connection serializes statement execution and keeps
	// ":memory:" databases from splitting across pool connections.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	d := &Driver{db: db, logger: logger}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	logger.Info("sqlite memory driver initialized",
		zap.String("db_path", c.DBPath),
	)

	return d, nil
}

// migrate creates the necessary tables if they don't exist.
func (d *Driver) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id TEXT PRIMARY KEY,
		namespace TEXT NOT NULL,
		kind TEXT NOT NULL,
		content TEXT NOT NULL,
		embedding BLOB,
		event_date TEXT NOT NULL,
		importance REAL NOT NULL,
		metadata TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_memories_namespace ON memories(namespace);
	CREATE INDEX IF NOT EXISTS idx_memories_event_date ON memories(namespace, event_date);
	CREATE INDEX IF NOT EXISTS idx_memories_kind ON memories(namespace, kind);

	CREATE TABLE IF NOT EXISTS patterns (
		id TEXT PRIMARY KEY,
		namespace TEXT NOT NULL,
		description TEXT NOT NULL,
		occurrence_count INTEGER NOT NULL,
		success_rate REAL NOT NULL,
		last_observed TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(namespace, description)
	);
	`

	_, err := d.db.Exec(schema)
	return err
}

// serializeFloat32 converts a float32 slice to a little-endian byte slice.
func serializeFloat32(v []float32) []byte {
	if v == nil {
		return nil
	}
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// deserializeFloat32 converts a little-endian byte slice back to a float32 slice.
func deserializeFloat32(b []byte) ([]float32, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d: must be divisible by 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

func storageErr(op, namespace string, err error) error {
	return &memory.StorageError{Op: op, Namespace: namespace, Err: err}
}

// Insert persists a new memory row.
func (d *Driver) Insert(ctx context.Context, m *memory.Memory) error {
	metadataJSON, err := json.Marshal(m.Metadata)
	if err != nil {
		return storageErr("insert", m.Namespace, fmt.Errorf("marshaling metadata: %w", err))
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO memories (id, namespace, kind, content, embedding, event_date, importance, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		m.ID, m.Namespace, string(m.Kind), m.Content,
		serializeFloat32(m.Embedding),
		m.EventDate.UTC().Format(time.RFC3339Nano),
		m.Importance,
		string(metadataJSON),
		m.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return storageErr("insert", m.Namespace, err)
	}

	d.logger.Debug("inserted memory",
		zap.String("id", m.ID),
		zap.String("namespace", m.Namespace),
		zap.String("kind", string(m.Kind)),
	)

	return nil
}

const memoryColumns = `id, namespace, kind, content, embedding, event_date, importance, metadata, created_at`

// scanMemory scans one memories row.
func scanMemory(scan func(dest ...any) error) (*memory.Memory, error) {
	var m memory.Memory
	var kind, eventDate, createdAt string
	var embBlob []byte
	var metadataJSON sql.NullString

	if err := scan(&m.ID, &m.Namespace, &kind, &m.Content, &embBlob, &eventDate, &m.Importance, &metadataJSON, &createdAt); err != nil {
		return nil, err
	}

	m.Kind = memory.Kind(kind)

	var err error
	if m.Embedding, err = deserializeFloat32(embBlob); err != nil {
		return nil, err
	}
	if m.EventDate, err = time.Parse(time.RFC3339Nano, eventDate); err != nil {
		return nil, fmt.Errorf("parsing event_date: %w", err)
	}
	if m.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &m.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling metadata: %w", err)
		}
	}

	return &m, nil
}

// GetByID retrieves one memory by ID.
func (d *Driver) GetByID(ctx context.Context, namespace, id string) (*memory.Memory, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE namespace = ? AND id = ?`,
		namespace, id,
	)

	m, err := scanMemory(row.Scan)
	if err == sql.ErrNoRows {
		return nil, &memory.NotFoundError{Namespace: namespace, ID: id}
	}
	if err != nil {
		return nil, storageErr("get", namespace, err)
	}

	return m, nil
}

// GetMany retrieves memories by ID, skipping misses.
func (d *Driver) GetMany(ctx context.Context, namespace string, ids []string) ([]*memory.Memory, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, namespace)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}

	query := fmt.Sprintf(
		`SELECT `+memoryColumns+` FROM memories WHERE namespace = ? AND id IN (%s)`,
		strings.Join(placeholders, ","),
	)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("get_many", namespace, err)
	}
	defer rows.Close()

	var memories []*memory.Memory
	for rows.Next() {
		m, err := scanMemory(rows.Scan)
		if err != nil {
			return nil, storageErr("get_many", namespace, err)
		}
		memories = append(memories, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("get_many", namespace, err)
	}

	return memories, nil
}

// List returns all memories in the namespace matching the filters, ordered
// by event date descending then ID ascending.
func (d *Driver) List(ctx context.Context, namespace string, f memory.Filters) ([]*memory.Memory, error) {
	var where []string
	var args []any

	where = append(where, "namespace = ?")
	args = append(args, namespace)

	if len(f.Kinds) > 0 {
		placeholders := make([]string, len(f.Kinds))
		for i, k := range f.Kinds {
			placeholders[i] = "?"
			args = append(args, string(k))
		}
		where = append(where, fmt.Sprintf("kind IN (%s)", strings.Join(placeholders, ",")))
	}
	if !f.DateFrom.IsZero() {
		where = append(where, "event_date >= ?")
		args = append(args, f.DateFrom.UTC().Format(time.RFC3339Nano))
	}
	if !f.DateTo.IsZero() {
		where = append(where, "event_date <= ?")
		args = append(args, f.DateTo.UTC().Format(time.RFC3339Nano))
	}
	if f.MinImportance > 0 {
		where = append(where, "importance >= ?")
		args = append(args, f.MinImportance)
	}
	if f.Keyword != "" {
		// instr avoids LIKE wildcard escaping.
		where = append(where, "instr(lower(content), lower(?)) > 0")
		args = append(args, f.Keyword)
	}

	query := fmt.Sprintf(
		`SELECT `+memoryColumns+` FROM memories WHERE %s ORDER BY event_date DESC, id ASC`,
		strings.Join(where, " AND "),
	)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list", namespace, err)
	}
	defer rows.Close()

	var memories []*memory.Memory
	for rows.Next() {
		m, err := scanMemory(rows.Scan)
		if err != nil {
			return nil, storageErr("list", namespace, err)
		}
		// Metadata equality stays in Go; everything else was pushed into SQL.
		if f.Match(m) {
			memories = append(memories, m)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list", namespace, err)
	}

	return memories, nil
}

// UpdateImportance overwrites a memory's importance.
func (d *Driver) UpdateImportance(ctx context.Context, namespace, id string, importance float64) error {
	res, err := d.db.ExecContext(ctx,
		`UPDATE memories SET importance = ? WHERE namespace = ? AND id = ?`,
		importance, namespace, id,
	)
	if err != nil {
		return storageErr("update_importance", namespace, err)
	}
	return checkAffected(res, namespace, id)
}

// UpdateMetadata replaces a memory's metadata map.
func (d *Driver) UpdateMetadata(ctx context.Context, namespace, id string, metadata map[string]any) error {
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return storageErr("update_metadata", namespace, fmt.Errorf("marshaling metadata: %w", err))
	}

	res, err := d.db.ExecContext(ctx,
		`UPDATE memories SET metadata = ? WHERE namespace = ? AND id = ?`,
		string(metadataJSON), namespace, id,
	)
	if err != nil {
		return storageErr("update_metadata", namespace, err)
	}
	return checkAffected(res, namespace, id)
}

func checkAffected(res sql.Result, namespace, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("update", namespace, err)
	}
	if n == 0 {
		return &memory.NotFoundError{Namespace: namespace, ID: id}
	}
	return nil
}

// Delete removes a single memory row.
func (d *Driver) Delete(ctx context.Context, namespace, id string) error {
	_, err := d.db.ExecContext(ctx,
		`DELETE FROM memories WHERE namespace = ? AND id = ?`,
		namespace, id,
	)
	if err != nil {
		return storageErr("delete", namespace, err)
	}
	return nil
}

// DeleteOlderThan removes old, unpinned memories and returns their IDs.
func (d *Driver) DeleteOlderThan(ctx context.Context, namespace string, cutoff time.Time, pinThreshold float64) ([]string, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("sweep", namespace, err)
	}
	defer tx.Rollback()

	cutoffStr := cutoff.UTC().Format(time.RFC3339Nano)

	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM memories WHERE namespace = ? AND event_date < ? AND importance < ?`,
		namespace, cutoffStr, pinThreshold,
	)
	if err != nil {
		return nil, storageErr("sweep", namespace, err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, storageErr("sweep", namespace, err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, storageErr("sweep", namespace, err)
	}

	if len(ids) == 0 {
		return nil, tx.Commit()
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM memories WHERE namespace = ? AND event_date < ? AND importance < ?`,
		namespace, cutoffStr, pinThreshold,
	)
	if err != nil {
		return nil, storageErr("sweep", namespace, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, storageErr("sweep", namespace, err)
	}

	d.logger.Info("swept old memories",
		zap.String("namespace", namespace),
		zap.Int("deleted", len(ids)),
	)

	return ids, nil
}

// Embeddings returns the stored vectors for index replay.
func (d *Driver) Embeddings(ctx context.Context, namespace string) ([]memory.StoredEmbedding, error) {
	query := `SELECT id, namespace, event_date, embedding FROM memories WHERE embedding IS NOT NULL AND length(embedding) > 0`
	var args []any
	if namespace != "" {
		query += ` AND namespace = ?`
		args = append(args, namespace)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("embeddings", namespace, err)
	}
	defer rows.Close()

	var out []memory.StoredEmbedding
	for rows.Next() {
		var se memory.StoredEmbedding
		var eventDate string
		var embBlob []byte
		if err := rows.Scan(&se.ID, &se.Namespace, &eventDate, &embBlob); err != nil {
			return nil, storageErr("embeddings", namespace, err)
		}
		if se.EventDate, err = time.Parse(time.RFC3339Nano, eventDate); err != nil {
			return nil, storageErr("embeddings", namespace, err)
		}
		if se.Embedding, err = deserializeFloat32(embBlob); err != nil {
			return nil, storageErr("embeddings", namespace, err)
		}
		out = append(out, se)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("embeddings", namespace, err)
	}

	return out, nil
}

const patternColumns = `id, namespace, description, occurrence_count, success_rate, last_observed, created_at, updated_at`

func scanPattern(scan func(dest ...any) error) (*memory.MarketPattern, error) {
	var p memory.MarketPattern
	var lastObserved, createdAt, updatedAt string

	if err := scan(&p.ID, &p.Namespace, &p.Description, &p.OccurrenceCount, &p.SuccessRate, &lastObserved, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if p.LastObserved, err = time.Parse(time.RFC3339Nano, lastObserved); err != nil {
		return nil, fmt.Errorf("parsing last_observed: %w", err)
	}
	if p.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if p.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &p, nil
}

// GetPatternByDescription looks up a pattern by exact description.
func (d *Driver) GetPatternByDescription(ctx context.Context, namespace, description string) (*memory.MarketPattern, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+patternColumns+` FROM patterns WHERE namespace = ? AND description = ?`,
		namespace, description,
	)

	p, err := scanPattern(row.Scan)
	if err == sql.ErrNoRows {
		return nil, &memory.NotFoundError{Namespace: namespace, ID: description}
	}
	if err != nil {
		return nil, storageErr("get_pattern", namespace, err)
	}

	return p, nil
}

// PutPattern inserts or fully replaces a pattern row keyed by ID.
func (d *Driver) PutPattern(ctx context.Context, p *memory.MarketPattern) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO patterns (id, namespace, description, occurrence_count, success_rate, last_observed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			occurrence_count = excluded.occurrence_count,
			success_rate = excluded.success_rate,
			last_observed = excluded.last_observed,
			updated_at = excluded.updated_at
	`,
		p.ID, p.Namespace, p.Description,
		p.OccurrenceCount, p.SuccessRate,
		p.LastObserved.UTC().Format(time.RFC3339Nano),
		p.CreatedAt.UTC().Format(time.RFC3339Nano),
		p.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return storageErr("put_pattern", p.Namespace, err)
	}
	return nil
}

// ListPatterns returns all patterns in the namespace.
func (d *Driver) ListPatterns(ctx context.Context, namespace string) ([]*memory.MarketPattern, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+patternColumns+` FROM patterns WHERE namespace = ? ORDER BY occurrence_count DESC, description ASC`,
		namespace,
	)
	if err != nil {
		return nil, storageErr("list_patterns", namespace, err)
	}
	defer rows.Close()

	var patterns []*memory.MarketPattern
	for rows.Next() {
		p, err := scanPattern(rows.Scan)
		if err != nil {
			return nil, storageErr("list_patterns", namespace, err)
		}
		patterns = append(patterns, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list_patterns", namespace, err)
	}

	return patterns, nil
}

// Stats derives namespace statistics from the stored state.
func (d *Driver) Stats(ctx context.Context, namespace string) (*memory.Stats, error) {
	stats := &memory.Stats{CountsByKind: make(map[memory.Kind]int64)}

	rows, err := d.db.QueryContext(ctx,
		`SELECT kind, COUNT(*) FROM memories WHERE namespace = ? GROUP BY kind`,
		namespace,
	)
	if err != nil {
		return nil, storageErr("stats", namespace, err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind string
		var count int64
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, storageErr("stats", namespace, err)
		}
		stats.CountsByKind[memory.Kind(kind)] = count
		stats.TotalMemories += count
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("stats", namespace, err)
	}

	stats.TotalDecisions = stats.CountsByKind[memory.KindDecision]

	row := d.db.QueryRowContext(ctx,
		`SELECT COALESCE(AVG(importance), 0) FROM memories WHERE namespace = ?`,
		namespace,
	)
	if err := row.Scan(&stats.AvgImportance); err != nil {
		return nil, storageErr("stats", namespace, err)
	}

	row = d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM patterns WHERE namespace = ?`,
		namespace,
	)
	if err := row.Scan(&stats.TotalPatterns); err != nil {
		return nil, storageErr("stats", namespace, err)
	}

	return stats, nil
}

// Close releases the database handle.
func (d *Driver) Close() error {
	return d.db.Close()
}

// Ensure Driver implements memory.Driver.
var _ memory.Driver = (*Driver)(nil)
