package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	canonicaldomain "github.com/smallbiznis/quicksearch/internal/canonical/domain"
	catalogdomain "github.com/smallbiznis/quicksearch/internal/catalog/domain"
	"github.com/smallbiznis/quicksearch/internal/clock"
	"github.com/smallbiznis/quicksearch/internal/ingest/domain"
	"github.com/smallbiznis/quicksearch/internal/ingest/reader"
	"github.com/smallbiznis/quicksearch/internal/observability/metrics"
	searchdomain "github.com/smallbiznis/quicksearch/internal/search/domain"
	"github.com/smallbiznis/quicksearch/internal/textnorm"
	"github.com/smallbiznis/quicksearch/pkg/db"
	"github.com/smallbiznis/quicksearch/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	outcomeProcessed = "processed"
	outcomeSkipped   = "skipped"
	outcomeFailed    = "failed"
)

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	Clock          clock.Clock
	GenID          *snowflake.Node
	Repo           catalogdomain.Repository
	Normalizer     canonicaldomain.Service
	Cache          searchdomain.SuggestionCache `optional:"true"`
	Metrics        *metrics.Metrics             `optional:"true"`
	CatalogMetrics *metrics.CatalogMetrics      `optional:"true"`
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	clock          clock.Clock
	genID          *snowflake.Node
	repo           catalogdomain.Repository
	normalizer     canonicaldomain.Service
	cache          searchdomain.SuggestionCache
	metrics        *metrics.Metrics
	catalogMetrics *metrics.CatalogMetrics
}

func New(p Params) domain.Service {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("ingest.service"),
		clock:          p.Clock,
		genID:          p.GenID,
		repo:           p.Repo,
		normalizer:     p.Normalizer,
		cache:          p.Cache,
		metrics:        p.Metrics,
		catalogMetrics: p.CatalogMetrics,
	}
}

func (s *Service) Upsert(ctx context.Context, tx *gorm.DB, uploadID *int64, row domain.Row) error {
	name := strings.TrimSpace(row.Name)
	normalized := textnorm.Normalize(name)
	if normalized == "" || !row.Price.IsPositive() {
		return domain.ErrSkippedRow
	}
	provider := strings.TrimSpace(row.Provider)
	if provider == "" {
		return domain.ErrSkippedRow
	}
	currency := strings.ToUpper(strings.TrimSpace(row.Currency))
	if currency == "" {
		currency = catalogdomain.DefaultCurrency
	}
	sku := nonEmpty(row.SKU)
	now := s.clock.Now()

	product, err := s.repo.FindProductByNormalizedName(ctx, tx, normalized)
	if err != nil {
		return err
	}
	if product == nil {
		product = &catalogdomain.Product{
			ID:        s.genID.Generate().Int64(),
			SKU:       sku,
			Name:      name,
			Keywords:  keywords(name),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.repo.CreateProduct(ctx, tx, product); err != nil {
			return err
		}
	} else {
		changed := false
		if product.SKU == nil && sku != nil {
			product.SKU = sku
			changed = true
		}
		if kw := keywords(product.Name); stringValue(kw) != stringValue(product.Keywords) {
			product.Keywords = kw
			changed = true
		}
		if changed {
			product.UpdatedAt = now
			if err := s.repo.UpdateProduct(ctx, tx, product); err != nil {
				return err
			}
		}
	}

	price, err := s.repo.FindPrice(ctx, tx, product.ID, provider)
	if err != nil {
		return err
	}
	if price == nil {
		return s.repo.CreatePrice(ctx, tx, &catalogdomain.ProductPrice{
			ID:                  s.genID.Generate().Int64(),
			ProductID:           product.ID,
			ProviderName:        provider,
			ProviderProductName: &name,
			ProviderSKU:         sku,
			UnitPrice:           row.Price.Round(2),
			Currency:            currency,
			CanonicalKey:        product.CanonicalKey,
			UploadID:            uploadID,
			LastSeenAt:          now,
			CreatedAt:           now,
			UpdatedAt:           now,
		})
	}

	price.ProviderProductName = &name
	if sku != nil {
		price.ProviderSKU = sku
	}
	price.UnitPrice = row.Price.Round(2)
	price.Currency = currency
	price.UploadID = uploadID
	price.LastSeenAt = now
	price.UpdatedAt = now
	return s.repo.UpdatePrice(ctx, tx, price)
}

type fileStats struct {
	sheets    int
	processed int
	skipped   int
	failed    int
}

func (s *Service) ImportFiles(ctx context.Context, files []domain.File) (*domain.ImportResult, error) {
	if len(files) == 0 {
		return nil, domain.ErrNoFiles
	}
	formats := make([]reader.Format, len(files))
	names := make([]string, len(files))
	for i, f := range files {
		format, err := reader.DetectFormat(f.Name)
		if err != nil {
			return nil, err
		}
		formats[i] = format
		names[i] = f.Name
	}

	upload := &catalogdomain.Upload{
		ID:         s.genID.Generate().Int64(),
		Filename:   strings.Join(names, ", "),
		UploadedAt: s.clock.Now(),
		Metadata:   datatypes.JSONMap{"files": names},
	}
	if err := s.repo.CreateUpload(ctx, s.db, upload); err != nil {
		return nil, fmt.Errorf("create upload: %w", err)
	}

	fileErrors := map[string]any{}
	var total fileStats
	for i, f := range files {
		stats, err := s.importFile(ctx, upload.ID, f, formats[i])
		if err != nil {
			s.log.Warn("import file failed", zap.String("file", f.Name), zap.Error(err))
			fileErrors[f.Name] = err.Error()
		}
		total.sheets += stats.sheets
		total.processed += stats.processed
		total.skipped += stats.skipped
		total.failed += stats.failed

		s.catalogMetrics.IncUpload(string(formats[i]))
		provider := reader.ProviderFromFilename(f.Name)
		s.metrics.RecordIngestRows(ctx, provider, outcomeProcessed, stats.processed)
		s.metrics.RecordIngestRows(ctx, provider, outcomeSkipped, stats.skipped)
		s.metrics.RecordIngestRows(ctx, provider, outcomeFailed, stats.failed)
	}
	s.catalogMetrics.AddUploadRows(outcomeProcessed, total.processed)
	s.catalogMetrics.AddUploadRows(outcomeSkipped, total.skipped+total.failed)

	upload.SheetCount = total.sheets
	upload.ProcessedRows = total.processed
	upload.SkippedRows = total.skipped + total.failed
	if len(fileErrors) > 0 {
		upload.Metadata["errors"] = fileErrors
	}
	if total.failed > 0 {
		upload.Metadata["failed_rows"] = total.failed
	}
	if err := s.repo.UpdateUpload(ctx, s.db, upload); err != nil {
		return nil, fmt.Errorf("update upload: %w", err)
	}

	s.log.Info("upload imported",
		zap.Int64("upload_id", upload.ID),
		zap.Strings("files", names),
		zap.Int("sheets", total.sheets),
		zap.Int("processed_rows", total.processed),
		zap.Int("skipped_rows", upload.SkippedRows),
	)

	result := &domain.ImportResult{Upload: toUpload(*upload)}
	report, err := s.normalizer.NormalizeCatalog(ctx)
	switch {
	case errors.Is(err, metrics.ErrNormalizeLocked):
		s.log.Info("catalog normalization already running elsewhere")
	case err != nil:
		s.log.Error("catalog normalization after import failed", zap.Error(err))
	default:
		result.Normalize = report
	}
	s.clearCache(ctx)
	return result, nil
}

func (s *Service) importFile(ctx context.Context, uploadID int64, f domain.File, format reader.Format) (fileStats, error) {
	var stats fileStats
	sheets, err := reader.Read(format, f.Data)
	if err != nil {
		return stats, err
	}
	provider := reader.ProviderFromFilename(f.Name)

	for _, sheet := range sheets {
		stats.sheets++
		rows, skipped := reader.Rows(sheet, provider)
		stats.skipped += skipped
		if len(rows) == 0 {
			continue
		}
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for _, row := range rows {
				switch err := s.upsertRow(ctx, tx, uploadID, row); {
				case err == nil:
					stats.processed++
				case errors.Is(err, domain.ErrSkippedRow):
					stats.skipped++
				default:
					stats.failed++
					s.log.Warn("upsert row failed",
						zap.String("file", f.Name),
						zap.String("sheet", sheet.Name),
						zap.String("name", row.Name),
						zap.Error(err),
					)
				}
			}
			return nil
		})
		if err != nil {
			return stats, fmt.Errorf("sheet %s: %w", sheet.Name, err)
		}
	}
	return stats, nil
}

// upsertRow isolates row in a savepoint. A unique violation means a
// concurrent writer created the same product or offer, so it retries once.
func (s *Service) upsertRow(ctx context.Context, tx *gorm.DB, uploadID int64, row domain.Row) error {
	attempt := func() error {
		return tx.Transaction(func(sp *gorm.DB) error {
			return s.Upsert(ctx, sp, &uploadID, row)
		})
	}
	err := attempt()
	if db.IsDuplicateKeyErr(err) {
		err = attempt()
	}
	return err
}

func (s *Service) ListUploads(ctx context.Context, page pagination.Pagination) (*domain.ListUploadsResponse, error) {
	var after *catalogdomain.UploadCursor
	cursor, err := pagination.DecodeCursor(page.PageToken)
	if err != nil {
		return nil, domain.ErrInvalidPageToken
	}
	if cursor != nil {
		id, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, domain.ErrInvalidPageToken
		}
		ts, err := time.Parse(time.RFC3339Nano, cursor.Timestamp)
		if err != nil {
			return nil, domain.ErrInvalidPageToken
		}
		after = &catalogdomain.UploadCursor{ID: id.Int64(), UploadedAt: ts}
	}

	limit := page.Size()
	items, err := s.repo.ListUploads(ctx, s.db, limit+1, after)
	if err != nil {
		return nil, err
	}
	items, info, err := pagination.Page(items, limit, func(u catalogdomain.Upload) pagination.Cursor {
		return pagination.Cursor{
			ID:        snowflake.ID(u.ID).String(),
			Timestamp: u.UploadedAt.UTC().Format(time.RFC3339Nano),
		}
	})
	if err != nil {
		return nil, err
	}

	resp := &domain.ListUploadsResponse{Uploads: make([]domain.Upload, 0, len(items)), PageInfo: info}
	for _, u := range items {
		resp.Uploads = append(resp.Uploads, toUpload(u))
	}
	return resp, nil
}

func (s *Service) DeleteUpload(ctx context.Context, id string) error {
	uploadID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return domain.ErrInvalidUploadID
	}

	var prices, orphans int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := s.repo.DeleteUpload(ctx, tx, uploadID.Int64())
		if err != nil {
			return err
		}
		prices = n
		orphans, err = s.repo.DeleteOrphanProducts(ctx, tx)
		return err
	})
	if err != nil {
		return err
	}

	s.log.Info("upload deleted",
		zap.Int64("upload_id", uploadID.Int64()),
		zap.Int64("prices_deleted", prices),
		zap.Int64("orphans_deleted", orphans),
	)
	s.clearCache(ctx)
	return nil
}

func (s *Service) clearCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Clear(ctx); err != nil {
		s.log.Warn("clear suggestion cache", zap.Error(err))
	}
}

func toUpload(u catalogdomain.Upload) domain.Upload {
	return domain.Upload{
		ID:            snowflake.ID(u.ID).String(),
		Filename:      u.Filename,
		UploadedAt:    u.UploadedAt,
		SheetCount:    u.SheetCount,
		ProcessedRows: u.ProcessedRows,
		SkippedRows:   u.SkippedRows,
		Metadata:      map[string]any(u.Metadata),
	}
}

func nonEmpty(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func stringValue(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
