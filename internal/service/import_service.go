package service

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/GTDGit/catalog_api/internal/catalog"
	"github.com/GTDGit/catalog_api/internal/importer"
	"github.com/GTDGit/catalog_api/internal/models"
)

var priceCleaner = strings.NewReplacer(",", "", " ", "", "₹", "", "$", "", "Rs.", "", "Rs", "")

// ImportService turns spreadsheet rows into products. It is the store behind
// the import coordinator.
type ImportService struct {
	productRepo ProductStore
	catalog     CatalogCache
	uploader    *importer.BatchUploader
}

// NewImportService constructs an ImportService. uploader stores pictures
// embedded in XLSX workbooks.
func NewImportService(productRepo ProductStore, catalog CatalogCache, uploader *importer.BatchUploader) *ImportService {
	return &ImportService{productRepo: productRepo, catalog: catalog, uploader: uploader}
}

// SubmitImport creates one product per spreadsheet row. A row that fails
// conversion, validation or insertion is reported and the remaining rows are
// still attempted.
func (s *ImportService) SubmitImport(ctx context.Context, req *importer.SubmitRequest) (*importer.SubmitResult, error) {
	if req.Spreadsheet == nil {
		return nil, fmt.Errorf("no spreadsheet submitted")
	}
	parsed, err := importer.Parse(req.Spreadsheet.Data, req.Spreadsheet.Format)
	if err != nil {
		return nil, err
	}

	res := &importer.SubmitResult{RowsAttempted: len(parsed.Rows)}

	var embedded map[int][]string
	if req.Method == models.ImportMethodAuto && req.Spreadsheet.Format == importer.FormatXLSX {
		pics, err := s.extractEmbedded(ctx, req.Spreadsheet.Data)
		if pics != nil {
			found := pics.found
			res.EmbeddedImagesFound = &found
			res.EmbeddedImagesUploaded = pics.uploaded
			res.EmbeddedFailedImages = pics.failed
			embedded = pics.byRow
		}
		if err != nil {
			return res, err
		}
	}

	rowImages := make(map[int][]string, len(req.RowImages))
	for _, ri := range req.RowImages {
		rowImages[ri.Row] = append(rowImages[ri.Row], ri.URL)
	}

	for _, row := range parsed.Rows {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		var urls []string
		switch req.Method {
		case models.ImportMethodAuto:
			urls = embedded[row.Line]
		case models.ImportMethodRowOrder:
			urls = rowImages[row.Index]
		default:
			urls = resolveImages(row.Images, req.ImageMap, req.CaseSensitive)
		}
		urls = append(urls, importer.ReferencedURLs(row.Field(importer.ImagesColumn))...)

		p, rowErr := rowToProduct(row, urls)
		if rowErr == nil {
			if err := ValidateProduct(p); err != nil {
				rowErr = &models.RowError{Row: row.Line, Message: err.Error()}
			}
		}
		if rowErr == nil {
			if err := s.productRepo.Create(ctx, p); err != nil {
				rowErr = &models.RowError{Row: row.Line, Message: mapStoreError(err).Error()}
			}
		}

		if rowErr != nil {
			log.Warn().Int("row", rowErr.Row).Str("field", rowErr.Field).Str("reason", rowErr.Message).Msg("Import row rejected")
			res.Failed++
			res.Errors = append(res.Errors, *rowErr)
			continue
		}
		res.Created++
	}

	log.Info().
		Int("rows", res.RowsAttempted).
		Int("created", res.Created).
		Int("failed", res.Failed).
		Str("method", string(req.Method)).
		Msg("Import rows submitted")
	return res, nil
}

// AttachImages appends uploaded image URLs to existing products. A product that
// only exists in the baseline is copied into the remote store with the images.
func (s *ImportService) AttachImages(ctx context.Context, images map[string][]string) (int, error) {
	ids := make([]string, 0, len(images))
	for id := range images {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	updated := 0
	for _, id := range ids {
		urls := images[id]
		ok, err := s.productRepo.AppendImages(ctx, id, urls)
		if err != nil {
			return updated, fmt.Errorf("attach images to %s: %w", id, err)
		}
		if ok {
			updated++
			continue
		}

		base, found := catalog.FindByID(s.catalog.Baseline(), id)
		if !found {
			log.Warn().Str("product_id", id).Int("images", len(urls)).Msg("Product vanished before images were attached")
			continue
		}
		if base.Image == "" {
			base.Image, urls = urls[0], urls[1:]
		}
		base.Gallery = append(append(models.StringList(nil), base.Gallery...), urls...)
		if err := s.productRepo.Create(ctx, &base); err != nil {
			return updated, fmt.Errorf("override baseline product %s: %w", id, mapStoreError(err))
		}
		updated++
	}
	return updated, nil
}

// embeddedPictures is the outcome of uploading the pictures of a workbook.
type embeddedPictures struct {
	byRow    map[int][]string
	found    int
	uploaded int
	failed   []string
}

// extractEmbedded uploads every picture anchored in the first sheet and returns
// the URLs keyed by sheet row number. On cancellation the pictures settled so
// far are returned with the error.
func (s *ImportService) extractEmbedded(ctx context.Context, data []byte) (*embeddedPictures, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &importer.ParseError{Err: err}
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	cells, err := f.GetPictureCells(sheet)
	if err != nil {
		return nil, &importer.ParseError{Err: fmt.Errorf("read pictures: %w", err)}
	}

	var items []importer.UploadItem
	for _, cell := range cells {
		_, row, err := excelize.CellNameToCoordinates(cell)
		if err != nil {
			continue
		}
		pics, err := f.GetPictures(sheet, cell)
		if err != nil {
			log.Warn().Err(err).Str("cell", cell).Msg("Failed to read embedded picture")
			continue
		}
		for i, pic := range pics {
			items = append(items, importer.UploadItem{
				Row: row,
				Image: models.ImageFile{
					Filename: fmt.Sprintf("%s-%d%s", strings.ToLower(cell), i+1, pic.Extension),
					Data:     pic.File,
					Size:     int64(len(pic.File)),
					MimeType: mimetype.Detect(pic.File).String(),
				},
			})
		}
	}
	// Keep sheet order so a row's first picture becomes its primary image.
	sort.SliceStable(items, func(i, j int) bool { return items[i].Row < items[j].Row })

	pics := &embeddedPictures{byRow: make(map[int][]string), found: len(items)}
	if len(items) == 0 {
		return pics, nil
	}
	up, err := s.uploader.Upload(ctx, items, nil)
	for _, u := range up.Uploaded {
		pics.byRow[u.Row] = append(pics.byRow[u.Row], u.URL)
	}
	pics.uploaded = len(up.Uploaded)
	pics.failed = up.FailedNames()

	log.Info().
		Int("found", pics.found).
		Int("uploaded", pics.uploaded).
		Int("failed", len(pics.failed)).
		Msg("Embedded pictures extracted")
	return pics, err
}

// resolveImages maps referenced filenames to uploaded URLs. Names without an
// upload are skipped.
func resolveImages(names []string, imageMap map[string]string, caseSensitive bool) []string {
	var urls []string
	for _, name := range names {
		if url, ok := imageMap[name]; ok {
			urls = append(urls, url)
			continue
		}
		if !caseSensitive {
			if url, ok := imageMap[strings.ToLower(name)]; ok {
				urls = append(urls, url)
			}
		}
	}
	return urls
}

// rowToProduct converts a parsed row. Headers are lowercase.
func rowToProduct(row models.ImportRow, imageURLs []string) (*models.Product, *models.RowError) {
	fail := func(field, format string, args ...interface{}) *models.RowError {
		return &models.RowError{Row: row.Line, Field: field, Message: fmt.Sprintf(format, args...)}
	}

	name := row.Field("name")
	if name == "" {
		return nil, fail("name", "name is required")
	}

	price, err := parseMoney(row.Field("price"))
	if err != nil {
		return nil, fail("price", "invalid price %q", row.Field("price"))
	}
	mrp := price
	if raw := row.Field("mrp"); raw != "" {
		if mrp, err = parseMoney(raw); err != nil {
			return nil, fail("mrp", "invalid mrp %q", raw)
		}
	}

	quantity := 0
	if raw := row.Field("stock"); raw != "" {
		if quantity, err = strconv.Atoi(raw); err != nil {
			return nil, fail("stock", "invalid stock quantity %q", raw)
		}
	}

	p := &models.Product{
		ID:          row.Field("id"),
		Name:        name,
		Category:    row.Field("category"),
		Price:       price,
		MRP:         mrp,
		Stock:       models.Stock{Quantity: quantity, Status: models.StockStatus(strings.ToLower(row.Field("stockstatus")))},
		Description: row.Field("description"),
		Brand:       row.Field("brand"),
		AgeRange:    row.Field("agerange"),
		Tags:        splitList(row.Field("tags")),
		Colors:      splitList(row.Field("colors")),
		IsFeatured:  parseFlag(row.Field("isfeatured")),
		IsNew:       parseFlag(row.Field("isnew")),
		Gallery:     models.StringList{},
		Specs:       models.Specs{},
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if sub := row.Field("subcategory"); sub != "" {
		p.SubCategory = &sub
	}
	for _, col := range importer.SpecColumns {
		if v := row.Field(strings.ToLower(col)); v != "" {
			p.Specs[col] = v
		}
	}
	if len(imageURLs) > 0 {
		p.Image = imageURLs[0]
		p.Gallery = append(p.Gallery, imageURLs[1:]...)
	}
	return p, nil
}

func parseMoney(raw string) (decimal.Decimal, error) {
	cleaned := priceCleaner.Replace(strings.TrimSpace(raw))
	if cleaned == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(cleaned)
}

func parseFlag(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "yes", "y", "1":
		return true
	}
	return false
}

func splitList(raw string) models.StringList {
	out := models.StringList{}
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
