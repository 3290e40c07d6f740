package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"presupuestor/internal/embedding"
	"presupuestor/internal/logging"
	"presupuestor/internal/types"
)

// Filters narrows or biases a catalog search. Year restricts the labor price
// book to one edition; Context (typically the chapter name) biases relevance
// by extending the query text before embedding.
type Filters struct {
	Year    int
	Context string
}

// SearchLabor returns the top candidates from the price book for a query,
// ordered by descending similarity. Failures degrade to an empty result:
// retrieval is never fatal to budget generation.
func (s *Store) SearchLabor(ctx context.Context, query string, limit int, f Filters) []types.LaborCandidate {
	timer := logging.StartTimer(logging.CategoryCatalog, "SearchLabor")
	defer timer.Stop()

	if strings.TrimSpace(query) == "" {
		return nil
	}
	if limit <= 0 {
		limit = 5
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, err := s.rankIDs(ctx, "labor", query, limit, f)
	if err != nil {
		logging.Get(logging.CategoryCatalog).Warn("labor search degraded to empty: %v", err)
		return nil
	}

	items := make([]types.LaborCandidate, 0, len(ids))
	for _, id := range ids {
		it, err := s.loadLabor(ctx, id)
		if err != nil {
			continue
		}
		items = append(items, it)
	}
	logging.CatalogDebug("SearchLabor %q returned %d candidates", query, len(items))
	return items
}

// SearchMaterials returns the top candidates from the material catalog for a
// query, ordered by descending similarity. Failures degrade to empty.
func (s *Store) SearchMaterials(ctx context.Context, query string, limit int, f Filters) []types.MaterialCandidate {
	timer := logging.StartTimer(logging.CategoryCatalog, "SearchMaterials")
	defer timer.Stop()

	if strings.TrimSpace(query) == "" {
		return nil
	}
	if limit <= 0 {
		limit = 5
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, err := s.rankIDs(ctx, "material", query, limit, f)
	if err != nil {
		logging.Get(logging.CategoryCatalog).Warn("material search degraded to empty: %v", err)
		return nil
	}

	items := make([]types.MaterialCandidate, 0, len(ids))
	for _, id := range ids {
		it, err := s.loadMaterial(ctx, id)
		if err != nil {
			continue
		}
		items = append(items, it)
	}
	logging.CatalogDebug("SearchMaterials %q returned %d candidates", query, len(items))
	return items
}

// rankIDs returns row ids for the top matches of a query in one catalog.
// Three strategies, in order of preference: vec0 ANN, in-process cosine over
// the JSON embeddings, keyword LIKE matching when no engine is configured.
func (s *Store) rankIDs(ctx context.Context, kind, query string, limit int, f Filters) ([]int64, error) {
	if s.engine == nil {
		return s.keywordIDs(ctx, kind, query, limit, f)
	}

	// Context biases relevance by extending the embedded text.
	embedText := query
	if f.Context != "" {
		embedText = query + " " + f.Context
	}

	queryVec, err := s.engine.EmbedQuery(ctx, embedText)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	if s.vectorExt && f.Year == 0 {
		ids, err := s.vecIDs(ctx, kind, queryVec, limit)
		if err == nil {
			return ids, nil
		}
		logging.CatalogDebug("vec0 search failed, falling back to cosine ranking: %v", err)
	}

	return s.cosineIDs(ctx, kind, queryVec, limit, f)
}

// cosineIDs loads stored embeddings and ranks them in-process.
func (s *Store) cosineIDs(ctx context.Context, kind string, queryVec []float32, limit int, f Filters) ([]int64, error) {
	var rows *sql.Rows
	var err error
	if kind == "labor" && f.Year > 0 {
		rows, err = s.db.QueryContext(ctx,
			"SELECT id, embedding FROM labor_items WHERE embedding IS NOT NULL AND year = ?", f.Year)
	} else if kind == "labor" {
		rows, err = s.db.QueryContext(ctx,
			"SELECT id, embedding FROM labor_items WHERE embedding IS NOT NULL")
	} else {
		rows, err = s.db.QueryContext(ctx,
			"SELECT id, embedding FROM material_items WHERE embedding IS NOT NULL")
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	var corpus [][]float32
	for rows.Next() {
		var id int64
		var embJSON string
		if err := rows.Scan(&id, &embJSON); err != nil {
			continue
		}
		var vec []float32
		if err := json.Unmarshal([]byte(embJSON), &vec); err != nil {
			continue
		}
		ids = append(ids, id)
		corpus = append(corpus, vec)
	}

	ranked := embedding.RankBySimilarity(queryVec, corpus, limit)
	out := make([]int64, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, ids[r.Index])
	}
	return out, nil
}

// vecIDs queries the sqlite-vec virtual table for nearest neighbors.
func (s *Store) vecIDs(ctx context.Context, kind string, queryVec []float32, limit int) ([]int64, error) {
	table := "vec_labor"
	if kind != "labor" {
		table = "vec_materials"
	}

	blob, err := serializeVector(queryVec)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(
		"SELECT item_id FROM %s WHERE embedding MATCH ? ORDER BY distance LIMIT ?", table)
	rows, err := s.db.QueryContext(ctx, query, blob, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// keywordIDs is the fallback when no embedding engine is configured: match
// every query keyword with LIKE, most recent rows first.
func (s *Store) keywordIDs(ctx context.Context, kind, query string, limit int, f Filters) ([]int64, error) {
	keywords := strings.Fields(strings.ToLower(query))
	if len(keywords) == 0 {
		return nil, nil
	}

	var conditions []string
	var args []interface{}
	textCol := "description"
	table := "labor_items"
	if kind != "labor" {
		table = "material_items"
		textCol = "name || ' ' || description || ' ' || category"
	}
	for _, kw := range keywords {
		conditions = append(conditions, fmt.Sprintf("LOWER(%s) LIKE ?", textCol))
		args = append(args, "%"+kw+"%")
	}

	where := strings.Join(conditions, " OR ")
	if kind == "labor" && f.Year > 0 {
		where = "(" + where + ") AND year = ?"
		args = append(args, f.Year)
	}

	sqlQuery := fmt.Sprintf("SELECT id FROM %s WHERE %s ORDER BY id DESC LIMIT ?", table, where)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Store) loadLabor(ctx context.Context, id int64) (types.LaborCandidate, error) {
	var it types.LaborCandidate
	var breakdownJSON sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT code, description, unit, price_total, price_labor, price_material, breakdown
		FROM labor_items WHERE id = ?`, id).
		Scan(&it.Code, &it.Description, &it.Unit, &it.PriceTotal, &it.PriceLabor, &it.PriceMaterial, &breakdownJSON)
	if err != nil {
		return it, err
	}
	if breakdownJSON.Valid && breakdownJSON.String != "" {
		json.Unmarshal([]byte(breakdownJSON.String), &it.Breakdown)
	}
	return it, nil
}

func (s *Store) loadMaterial(ctx context.Context, id int64) (types.MaterialCandidate, error) {
	var it types.MaterialCandidate
	err := s.db.QueryRowContext(ctx, `
		SELECT sku, name, description, price, unit, category, merchant
		FROM material_items WHERE id = ?`, id).
		Scan(&it.SKU, &it.Name, &it.Description, &it.Price, &it.Unit, &it.Category, &it.Merchant)
	return it, err
}
