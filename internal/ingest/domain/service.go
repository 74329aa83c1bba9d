package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	canonicaldomain "github.com/smallbiznis/quicksearch/internal/canonical/domain"
	"github.com/smallbiznis/quicksearch/pkg/db/pagination"
	"gorm.io/gorm"
)

var (
	// ErrSkippedRow marks a row without a name or a positive price.
	ErrSkippedRow        = errors.New("skipped_row")
	ErrUnsupportedFormat = errors.New("unsupported_file_format")
	ErrNoFiles           = errors.New("no_files")
	ErrInvalidUploadID   = errors.New("invalid_upload_id")
	ErrInvalidPageToken  = errors.New("invalid_page_token")
)

// Row is one price list line.
type Row struct {
	Name     string
	Price    decimal.Decimal
	Currency string
	SKU      string
	Provider string
}

// File is an uploaded price list held in memory.
type File struct {
	Name string
	Data []byte
}

type Service interface {
	// Upsert stores row within db, creating the product and the offer when
	// they do not exist.
	Upsert(ctx context.Context, db *gorm.DB, uploadID *int64, row Row) error
	ImportFiles(ctx context.Context, files []File) (*ImportResult, error)
	ListUploads(ctx context.Context, page pagination.Pagination) (*ListUploadsResponse, error)
	DeleteUpload(ctx context.Context, id string) error
}

type ImportResult struct {
	Upload    Upload                  `json:"upload"`
	Normalize *canonicaldomain.Report `json:"normalize,omitempty"`
}

type Upload struct {
	ID            string         `json:"id"`
	Filename      string         `json:"filename"`
	UploadedAt    time.Time      `json:"uploaded_at"`
	SheetCount    int            `json:"sheet_count"`
	ProcessedRows int            `json:"processed_rows"`
	SkippedRows   int            `json:"skipped_rows"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

type ListUploadsResponse struct {
	Uploads  []Upload            `json:"uploads"`
	PageInfo pagination.PageInfo `json:"page_info"`
}
