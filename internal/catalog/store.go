// Package catalog implements the two searchable catalogs backing budget
// resolution: the labor price book and the material catalog. Both live in a
// single SQLite database with per-row embeddings; similarity search runs
// against sqlite-vec when the extension is available and falls back to
// in-process cosine ranking otherwise.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"presupuestor/internal/embedding"
	"presupuestor/internal/logging"
	"presupuestor/internal/types"

	_ "github.com/mattn/go-sqlite3"
)

const embedBatchSize = 32

// Store is the SQLite-backed catalog database.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string

	engine    embedding.Engine // optional; keyword search without it
	vectorExt bool             // sqlite-vec vec0 available
}

// NewStore initializes the catalog database at the given path.
func NewStore(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryCatalog, "NewStore")
	defer timer.Stop()

	logging.Catalog("Opening catalog store at %s", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.CatalogDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.CatalogDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}

	s := &Store{db: db, dbPath: path}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	s.detectVecExtension()
	if s.vectorExt {
		if err := s.initVecTables(); err != nil {
			logging.Get(logging.CategoryCatalog).Warn("vec0 tables unavailable, falling back to in-process ranking: %v", err)
			s.vectorExt = false
		}
	}
	logging.Catalog("Catalog store ready (vec0=%t)", s.vectorExt)

	return s, nil
}

// SetEmbeddingEngine configures the engine used for imports and semantic
// search. Without one the store degrades to keyword search.
func (s *Store) SetEmbeddingEngine(engine embedding.Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine = engine
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS labor_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT NOT NULL,
		description TEXT NOT NULL,
		unit TEXT NOT NULL,
		price_total REAL NOT NULL DEFAULT 0,
		price_labor REAL NOT NULL DEFAULT 0,
		price_material REAL NOT NULL DEFAULT 0,
		breakdown TEXT,
		year INTEGER NOT NULL DEFAULT 0,
		embedding TEXT,
		UNIQUE(code, year)
	);
	CREATE TABLE IF NOT EXISTS material_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sku TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		description TEXT NOT NULL,
		price REAL NOT NULL DEFAULT 0,
		unit TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		merchant TEXT NOT NULL DEFAULT '',
		embedding TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_labor_year ON labor_items(year);
	CREATE INDEX IF NOT EXISTS idx_material_category ON material_items(category);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// detectVecExtension attempts to create a vec0 virtual table to see if
// sqlite-vec is available.
func (s *Store) detectVecExtension() {
	if _, err := s.db.Exec("CREATE VIRTUAL TABLE IF NOT EXISTS vec_probe USING vec0(embedding float[4])"); err == nil {
		s.db.Exec("DROP TABLE IF EXISTS vec_probe")
		s.vectorExt = true
		return
	}
	s.vectorExt = false
}

func (s *Store) initVecTables() error {
	stmts := []string{
		fmt.Sprintf("CREATE VIRTUAL TABLE IF NOT EXISTS vec_labor USING vec0(embedding float[%d], item_id INTEGER)", embedding.DefaultDimensions),
		fmt.Sprintf("CREATE VIRTUAL TABLE IF NOT EXISTS vec_materials USING vec0(embedding float[%d], item_id INTEGER)", embedding.DefaultDimensions),
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// IMPORT
// =============================================================================

// laborDocText builds the text that represents a price-book row in vector
// space.
func laborDocText(it types.LaborCandidate) string {
	return strings.TrimSpace(it.Code + " " + it.Description + " " + it.Unit)
}

// materialDocText builds the text that represents a material row in vector
// space.
func materialDocText(it types.MaterialCandidate) string {
	return strings.TrimSpace(it.Name + " " + it.Description + " " + it.Category)
}

// ImportLabor loads price-book rows, embedding them in batches. Rows with a
// duplicate (code, year) are replaced.
func (s *Store) ImportLabor(ctx context.Context, items []types.LaborCandidate, year int) error {
	timer := logging.StartTimer(logging.CategoryCatalog, "ImportLabor")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	logging.Catalog("Importing %d labor items (year=%d)", len(items), year)

	for start := 0; start < len(items); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(items) {
			end = len(items)
		}
		batch := items[start:end]

		vecs, err := s.embedBatch(ctx, laborBatchTexts(batch))
		if err != nil {
			return err
		}

		for i, it := range batch {
			breakdownJSON, _ := json.Marshal(it.Breakdown)
			embJSON := marshalVec(vecs, i)

			if s.vectorExt {
				s.clearVecRow(ctx, "vec_labor", "SELECT id FROM labor_items WHERE code = ? AND year = ?", it.Code, year)
			}
			res, err := s.db.ExecContext(ctx, `
				INSERT OR REPLACE INTO labor_items
				(code, description, unit, price_total, price_labor, price_material, breakdown, year, embedding)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				it.Code, it.Description, it.Unit, it.PriceTotal, it.PriceLabor, it.PriceMaterial,
				string(breakdownJSON), year, embJSON,
			)
			if err != nil {
				return fmt.Errorf("failed to insert labor item %s: %w", it.Code, err)
			}
			if s.vectorExt && len(vecs) > i && len(vecs[i]) > 0 {
				id, _ := res.LastInsertId()
				s.insertVecRow(ctx, "vec_labor", id, vecs[i])
			}
		}
	}

	return nil
}

// ImportMaterials loads material-catalog rows, embedding them in batches.
// Rows with a duplicate SKU are replaced.
func (s *Store) ImportMaterials(ctx context.Context, items []types.MaterialCandidate) error {
	timer := logging.StartTimer(logging.CategoryCatalog, "ImportMaterials")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	logging.Catalog("Importing %d material items", len(items))

	for start := 0; start < len(items); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(items) {
			end = len(items)
		}
		batch := items[start:end]

		texts := make([]string, len(batch))
		for i, it := range batch {
			texts[i] = materialDocText(it)
		}
		vecs, err := s.embedBatch(ctx, texts)
		if err != nil {
			return err
		}

		for i, it := range batch {
			embJSON := marshalVec(vecs, i)

			if s.vectorExt {
				s.clearVecRow(ctx, "vec_materials", "SELECT id FROM material_items WHERE sku = ?", it.SKU)
			}
			res, err := s.db.ExecContext(ctx, `
				INSERT OR REPLACE INTO material_items
				(sku, name, description, price, unit, category, merchant, embedding)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				it.SKU, it.Name, it.Description, it.Price, it.Unit, it.Category, it.Merchant, embJSON,
			)
			if err != nil {
				return fmt.Errorf("failed to insert material item %s: %w", it.SKU, err)
			}
			if s.vectorExt && len(vecs) > i && len(vecs[i]) > 0 {
				id, _ := res.LastInsertId()
				s.insertVecRow(ctx, "vec_materials", id, vecs[i])
			}
		}
	}

	return nil
}

// embedBatch embeds the document texts for a batch, or returns nil vectors
// when no engine is configured (keyword-only mode).
func (s *Store) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if s.engine == nil {
		return nil, nil
	}
	vecs, err := s.engine.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed catalog batch: %w", err)
	}
	return vecs, nil
}

func laborBatchTexts(batch []types.LaborCandidate) []string {
	texts := make([]string, len(batch))
	for i, it := range batch {
		texts[i] = laborDocText(it)
	}
	return texts
}

// marshalVec serializes vector i of vecs as JSON, or returns nil (stored as
// NULL) when the batch was imported without embeddings.
func marshalVec(vecs [][]float32, i int) interface{} {
	if len(vecs) <= i || len(vecs[i]) == 0 {
		return nil
	}
	data, err := json.Marshal(vecs[i])
	if err != nil {
		return nil
	}
	return string(data)
}

// clearVecRow removes the vec0 mirror of the row a lookup query resolves to.
// INSERT OR REPLACE assigns the replacement a fresh rowid, so without this
// the old mirror would keep pointing at a dead item_id.
func (s *Store) clearVecRow(ctx context.Context, table, lookup string, args ...interface{}) {
	var prev int64
	if err := s.db.QueryRowContext(ctx, lookup, args...).Scan(&prev); err != nil {
		return
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE item_id = ?", table)
	if _, err := s.db.ExecContext(ctx, query, prev); err != nil {
		logging.CatalogDebug("stale vec row cleanup failed for %s id=%d: %v", table, prev, err)
	}
}

// insertVecRow mirrors an embedding into a vec0 table. Best effort: ANN is
// an acceleration, the JSON column remains the source of truth.
func (s *Store) insertVecRow(ctx context.Context, table string, id int64, vec []float32) {
	blob, err := serializeVector(vec)
	if err != nil {
		logging.CatalogDebug("vec row skipped for %s id=%d: %v", table, id, err)
		return
	}
	query := fmt.Sprintf("INSERT INTO %s (embedding, item_id) VALUES (?, ?)", table)
	if _, err := s.db.ExecContext(ctx, query, blob, id); err != nil {
		logging.CatalogDebug("vec row insert failed for %s id=%d: %v", table, id, err)
	}
}

// Counts returns the number of rows in each catalog, for diagnostics.
func (s *Store) Counts() (labor, materials int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.db.QueryRow("SELECT COUNT(*) FROM labor_items").Scan(&labor)
	s.db.QueryRow("SELECT COUNT(*) FROM material_items").Scan(&materials)
	return labor, materials
}
