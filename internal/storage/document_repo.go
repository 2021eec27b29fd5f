package storage

import (
	"context"
	"fmt"

	"assessflow/internal/models"
)

type DocumentRepo struct {
	db *DB
}

func NewDocumentRepo(db *DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

func (r *DocumentRepo) Insert(ctx context.Context, d models.SourceDocument) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO source_documents (document_id, report_id, project_id, filename, file_ref, method, extraction_status)
VALUES ($1, NULLIF($2,''), $3, $4, $5, NULLIF($6,''), $7)`,
		d.DocumentID, d.ReportID, d.ProjectID, d.Filename, d.FileRef, d.Method, d.ExtractionStatus)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// BindToReport attaches the project's unbound documents to a report so the
// run works off a fixed set even if more uploads arrive later.
func (r *DocumentRepo) BindToReport(ctx context.Context, projectID, reportID string, documentIDs []string) error {
	if len(documentIDs) == 0 {
		return nil
	}
	_, err := r.db.Pool.Exec(ctx, `
UPDATE source_documents SET report_id=$2
WHERE project_id=$1 AND document_id = ANY($3) AND report_id IS NULL`,
		projectID, reportID, documentIDs)
	if err != nil {
		return fmt.Errorf("bind documents: %w", err)
	}
	return nil
}

const documentColumns = `
document_id, COALESCE(report_id::text,''), project_id::text, filename, file_ref,
COALESCE(method,''), extraction_status, created_at`

func (r *DocumentRepo) ListByReport(ctx context.Context, reportID string) ([]models.SourceDocument, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT `+documentColumns+` FROM source_documents WHERE report_id=$1 ORDER BY created_at`, reportID)
	if err != nil {
		return nil, fmt.Errorf("list report documents: %w", err)
	}
	defer rows.Close()

	out := make([]models.SourceDocument, 0)
	for rows.Next() {
		var d models.SourceDocument
		if err := rows.Scan(&d.DocumentID, &d.ReportID, &d.ProjectID, &d.Filename, &d.FileRef, &d.Method, &d.ExtractionStatus, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func (r *DocumentRepo) ListUnbound(ctx context.Context, projectID string) ([]models.SourceDocument, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT `+documentColumns+` FROM source_documents WHERE project_id=$1 AND report_id IS NULL ORDER BY created_at`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list unbound documents: %w", err)
	}
	defer rows.Close()

	out := make([]models.SourceDocument, 0)
	for rows.Next() {
		var d models.SourceDocument
		if err := rows.Scan(&d.DocumentID, &d.ReportID, &d.ProjectID, &d.Filename, &d.FileRef, &d.Method, &d.ExtractionStatus, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *DocumentRepo) Get(ctx context.Context, documentID string) (models.SourceDocument, error) {
	var d models.SourceDocument
	err := r.db.Pool.QueryRow(ctx, `
SELECT `+documentColumns+` FROM source_documents WHERE document_id=$1`, documentID).
		Scan(&d.DocumentID, &d.ReportID, &d.ProjectID, &d.Filename, &d.FileRef, &d.Method, &d.ExtractionStatus, &d.CreatedAt)
	if err != nil {
		return models.SourceDocument{}, fmt.Errorf("get document: %w", err)
	}
	return d, nil
}

// UpdateExtraction records the outcome of text extraction. Extracted text is
// kept on the row so re-runs never re-parse the original file.
func (r *DocumentRepo) UpdateExtraction(ctx context.Context, documentID string, status models.ExtractionStatus, method, text string) error {
	_, err := r.db.Pool.Exec(ctx, `
UPDATE source_documents
SET extraction_status=$2, method=NULLIF($3,''), extracted_text=NULLIF($4,'')
WHERE document_id=$1`, documentID, status, method, text)
	if err != nil {
		return fmt.Errorf("update extraction: %w", err)
	}
	return nil
}

func (r *DocumentRepo) GetExtractedText(ctx context.Context, documentID string) (string, error) {
	var text string
	err := r.db.Pool.QueryRow(ctx, `
SELECT COALESCE(extracted_text,'') FROM source_documents WHERE document_id=$1`, documentID).Scan(&text)
	if err != nil {
		return "", fmt.Errorf("get extracted text: %w", err)
	}
	return text, nil
}
