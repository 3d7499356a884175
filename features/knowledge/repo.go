package knowledge

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// UpsertChunks inserts the document's chunk rows in one transaction. Callers
// delete the old rows first; a document's chunk set is replaced, never merged.
func (r *PostgresRepo) UpsertChunks(ctx context.Context, documentID string, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	query := `INSERT INTO document_chunks
		(id, document_id, document_title, category, section_title, chunk_index, content, token_count, vector_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	for _, c := range chunks {
		sectionTitle := sql.NullString{String: c.SectionTitle, Valid: c.SectionTitle != ""}
		if _, err := tx.ExecContext(ctx, query,
			c.ID, documentID, c.DocumentTitle, c.Category, sectionTitle,
			c.ChunkIndex, c.Content, c.TokenCount, c.VectorID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *PostgresRepo) DeleteByDocument(ctx context.Context, documentID string) error {
	query := `DELETE FROM document_chunks WHERE document_id = $1`
	_, err := r.db.ExecContext(ctx, query, documentID)
	return err
}

// GetByIDs returns only the chunks that exist; missing IDs are silently
// omitted. Callers hydrate against a vector index that is not transactionally
// coupled to this store and must tolerate partial results.
func (r *PostgresRepo) GetByIDs(ctx context.Context, chunkIDs []string) ([]Chunk, error) {
	if len(chunkIDs) == 0 {
		return nil, nil
	}

	query := `SELECT id, document_id, document_title, category, section_title, chunk_index, content, token_count, vector_id
		FROM document_chunks WHERE id = ANY($1)`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(chunkIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		var sectionTitle sql.NullString
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.DocumentTitle, &c.Category,
			&sectionTitle, &c.ChunkIndex, &c.Content, &c.TokenCount, &c.VectorID); err != nil {
			return nil, err
		}
		c.SectionTitle = sectionTitle.String
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (r *PostgresRepo) VectorIDsByDocument(ctx context.Context, documentID string) ([]string, error) {
	query := `SELECT vector_id FROM document_chunks WHERE document_id = $1 AND vector_id <> ''`
	rows, err := r.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PostgresRepo) TotalChunks(ctx context.Context) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM document_chunks`
	err := r.db.QueryRowContext(ctx, query).Scan(&count)
	return count, err
}

func (r *PostgresRepo) TotalDocuments(ctx context.Context) (int, error) {
	var count int
	query := `SELECT COUNT(DISTINCT document_id) FROM document_chunks`
	err := r.db.QueryRowContext(ctx, query).Scan(&count)
	return count, err
}

func (r *PostgresRepo) ChunksByCategory(ctx context.Context) (map[string]int, error) {
	query := `SELECT category, COUNT(*) FROM document_chunks GROUP BY category`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, err
		}
		counts[category] = count
	}
	return counts, rows.Err()
}
