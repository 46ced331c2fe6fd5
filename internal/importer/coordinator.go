package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/GTDGit/catalog_api/internal/models"
)

// Spreadsheet is the uploaded product sheet.
type Spreadsheet struct {
	Filename string
	Data     []byte
	Format   Format
}

// Request is one operator-initiated import.
type Request struct {
	// ID correlates progress events with the request; optional.
	ID          string
	Spreadsheet *Spreadsheet
	Images      []models.ImageFile
	// Strategy is ignored without a spreadsheet; nil selects filename matching.
	Strategy Strategy
}

// RowImageURL is an uploaded image tagged with the row index it belongs to.
type RowImageURL struct {
	Row int
	URL string
}

// SubmitRequest is the batch handed to the store.
type SubmitRequest struct {
	Spreadsheet *Spreadsheet
	Method      models.ImportMethod
	// ImageMap resolves referenced filenames (original and lowercased) to URLs.
	ImageMap      map[string]string
	RowImages     []RowImageURL
	CaseSensitive bool
}

// SubmitResult is the store's account of a submitted batch. A store that
// fails part way returns the rows it already committed together with the error.
type SubmitResult struct {
	Created             int
	Failed              int
	RowsAttempted       int
	Errors              []models.RowError
	EmbeddedImagesFound *int
	// Embedded pictures the store uploaded itself, and the ones it could not.
	EmbeddedImagesUploaded int
	EmbeddedFailedImages   []string
}

// Store persists products from a spreadsheet and attaches images to existing
// products.
type Store interface {
	SubmitImport(ctx context.Context, req *SubmitRequest) (*SubmitResult, error)
	AttachImages(ctx context.Context, images map[string][]string) (int, error)
}

// CatalogSource returns the current merged catalog.
type CatalogSource interface {
	GetProducts(ctx context.Context, forceRefresh bool) ([]models.Product, error)
}

// CacheInvalidator drops the cached catalog after a successful import.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// ProgressReporter receives phase changes and upload progress.
type ProgressReporter interface {
	NotifyImportProgress(ev *models.ImportProgress)
}

// InvalidationNotifier is told when an import dropped the cached catalog.
type InvalidationNotifier interface {
	NotifyCatalogInvalidated(reason string)
}

type nopReporter struct{}

func (nopReporter) NotifyImportProgress(*models.ImportProgress) {}
func (nopReporter) NotifyCatalogInvalidated(string)             {}

// Coordinator drives an import through
// idle -> verifying -> uploading -> submitting -> done | failed.
type Coordinator struct {
	uploader    *BatchUploader
	store       Store
	catalog     CatalogSource
	invalidator CacheInvalidator
	reporter    ProgressReporter
	notifier    InvalidationNotifier
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(uploader *BatchUploader, store Store, catalog CatalogSource, invalidator CacheInvalidator) *Coordinator {
	return &Coordinator{
		uploader:    uploader,
		store:       store,
		catalog:     catalog,
		invalidator: invalidator,
		reporter:    nopReporter{},
		notifier:    nopReporter{},
	}
}

// SetProgressReporter sets the progress sink (setter injection).
func (c *Coordinator) SetProgressReporter(r ProgressReporter) {
	if r == nil {
		r = nopReporter{}
	}
	c.reporter = r
}

// SetInvalidationNotifier sets the sink told about cache invalidations.
func (c *Coordinator) SetInvalidationNotifier(n InvalidationNotifier) {
	if n == nil {
		n = nopReporter{}
	}
	c.notifier = n
}

// Run executes one import. The report is returned even on failure so callers
// can show partial upload results; the error is one of the typed pipeline
// errors or a context error.
func (c *Coordinator) Run(ctx context.Context, req Request) (*models.ImportReport, error) {
	report := &models.ImportReport{ImagesSelected: len(req.Images)}
	c.emit(req.ID, models.ImportPhaseIdle, 0, 0, "")

	var err error
	switch {
	case req.Spreadsheet == nil && len(req.Images) == 0:
		err = &ValidationError{Message: "select a spreadsheet or at least one image to import"}
	case req.Spreadsheet == nil:
		report.Method = models.ImportMethodImages
		err = c.runImagesOnly(ctx, req, report)
	default:
		if req.Strategy == nil {
			req.Strategy = FilenameStrategy{}
		}
		report.Method = req.Strategy.Method()
		err = c.runSpreadsheet(ctx, req, report)
	}

	if err != nil && imagesAccounted(report) == 0 && len(req.Images) > 0 {
		// Stopped before any image was matched or uploaded.
		report.UnmatchedImages = filenames(req.Images)
	}
	checkImageCounts(report)

	if err != nil {
		report.Status = models.ImportStatusFailed
		c.emit(req.ID, models.ImportPhaseFailed, 0, 0, err.Error())
		ev := log.Error()
		if IsClientError(err) {
			ev = log.Warn()
		}
		ev.Err(err).
			Str("import_id", req.ID).
			Str("method", string(report.Method)).
			Int("created", report.Created).
			Int("updated", report.Updated).
			Msg("Import failed")
		return report, err
	}

	report.Status = models.ImportStatusDone
	c.emit(req.ID, models.ImportPhaseDone, report.Created, report.Created+report.Failed, "")
	log.Info().
		Str("import_id", req.ID).
		Str("method", string(report.Method)).
		Int("created", report.Created).
		Int("failed", report.Failed).
		Int("updated", report.Updated).
		Int("images_uploaded", report.ImagesUploaded).
		Int("images_failed", report.ImagesFailed).
		Int("images_unmatched", len(report.UnmatchedImages)).
		Msg("Import completed")
	return report, nil
}

func (c *Coordinator) runSpreadsheet(ctx context.Context, req Request, report *models.ImportReport) error {
	sheet := req.Spreadsheet
	sub := &SubmitRequest{Spreadsheet: sheet, Method: report.Method}

	if _, ok := req.Strategy.(EmbeddedStrategy); ok {
		if len(req.Images) > 0 {
			report.UnmatchedImages = filenames(req.Images)
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("%d selected images ignored: embedded pictures are read from the workbook", len(req.Images)))
		}
		return c.submit(ctx, req.ID, sub, report)
	}

	parsed, err := Parse(sheet.Data, sheet.Format)
	if err != nil {
		return err
	}

	switch s := req.Strategy.(type) {
	case RowOrderStrategy:
		if len(req.Images) == 0 {
			break
		}
		match := MatchByRowOrder(req.Images)
		items := make([]UploadItem, 0, len(match.Assigned))
		for _, ri := range match.Assigned {
			items = append(items, UploadItem{Image: ri.Image, Row: ri.Row})
		}
		if surplus := len(items) - len(parsed.Rows); surplus > 0 {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("%d images exceed the %d spreadsheet rows and will not be assigned", surplus, len(parsed.Rows)))
		}

		res, err := c.upload(ctx, req.ID, items, report)
		if err != nil {
			return err
		}
		sub.ImageMap = res.ImageMap
		for _, u := range res.Uploaded {
			sub.RowImages = append(sub.RowImages, RowImageURL{Row: u.Row, URL: u.URL})
		}

	case FilenameStrategy:
		sub.CaseSensitive = s.CaseSensitive
		if len(req.Images) == 0 {
			break
		}
		match := MatchByFilename(parsed.ReferencedFiles, req.Images, s.CaseSensitive)
		report.UnmatchedImages = filenames(match.Unmatched)
		if match.MatchedAll {
			log.Warn().Int("images", len(match.Matched)).Msg("Spreadsheet references no image filenames, uploading every selected image")
			report.Warnings = append(report.Warnings,
				"spreadsheet references no image filenames; all selected images were uploaded")
		}
		if len(match.Matched) == 0 {
			return &MatchError{Unmatched: report.UnmatchedImages}
		}

		items := make([]UploadItem, 0, len(match.Matched))
		for _, img := range match.Matched {
			items = append(items, UploadItem{Image: img, Row: -1})
		}
		res, err := c.upload(ctx, req.ID, items, report)
		if err != nil {
			return err
		}
		sub.ImageMap = res.ImageMap
	}

	if missing := missingReferences(parsed, sub.ImageMap, sub.CaseSensitive); len(missing) > 0 && report.Method == models.ImportMethodFilename && len(req.Images) > 0 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("referenced images not uploaded: %s", strings.Join(missing, ", ")))
	}

	return c.submit(ctx, req.ID, sub, report)
}

func (c *Coordinator) runImagesOnly(ctx context.Context, req Request, report *models.ImportReport) error {
	c.emit(req.ID, models.ImportPhaseVerifying, 0, len(req.Images), "")

	products, err := c.catalog.GetProducts(ctx, false)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	match := NewCatalogIndex(products).Match(req.Images)
	report.UnmatchedImages = filenames(match.Unmatched)
	if len(match.Matched) == 0 {
		return &MatchError{Unmatched: report.UnmatchedImages}
	}

	items := make([]UploadItem, 0, len(match.Matched))
	for _, pi := range match.Matched {
		items = append(items, UploadItem{Image: pi.Image, Row: -1, ProductID: pi.ProductID})
	}
	res, err := c.upload(ctx, req.ID, items, report)
	if err != nil {
		return err
	}

	byProduct := make(map[string][]string)
	for _, u := range res.Uploaded {
		byProduct[u.ProductID] = append(byProduct[u.ProductID], u.URL)
	}

	c.emit(req.ID, models.ImportPhaseSubmitting, 0, len(byProduct), "")
	updated, err := c.store.AttachImages(ctx, byProduct)
	report.Updated = updated
	if err != nil {
		if updated > 0 {
			c.invalidate(ctx, report)
		}
		return &SubmissionError{Err: err}
	}

	c.invalidate(ctx, report)
	return nil
}

// upload runs the batch uploader and records its outcome on the report. Zero
// successful uploads out of a non-empty request is fatal.
func (c *Coordinator) upload(ctx context.Context, importID string, items []UploadItem, report *models.ImportReport) (*UploadResult, error) {
	c.emit(importID, models.ImportPhaseUploading, 0, len(items), "")

	res, err := c.uploader.Upload(ctx, items, func(p Progress) {
		c.emit(importID, models.ImportPhaseUploading, p.Done, p.Total, "")
	})

	report.ImagesUploaded = len(res.Uploaded)
	report.ImagesFailed = len(res.Failed)
	report.FailedImages = res.FailedNames()
	if len(res.ImageMap) > 0 {
		report.ImageMap = res.ImageMap
	}

	if err != nil {
		return res, err
	}
	if len(items) > 0 && len(res.Uploaded) == 0 {
		var cause error
		if len(res.Failed) > 0 {
			cause = res.Failed[0].Err
		}
		return res, &UploadError{Failed: res.FailedNames(), Err: cause}
	}
	if len(res.Failed) > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("%d of %d images failed to upload", len(res.Failed), len(items)))
	}
	return res, nil
}

func (c *Coordinator) submit(ctx context.Context, importID string, sub *SubmitRequest, report *models.ImportReport) error {
	c.emit(importID, models.ImportPhaseSubmitting, 0, 0, "")

	res, err := c.store.SubmitImport(ctx, sub)
	if res != nil {
		report.Created = res.Created
		report.Failed = res.Failed
		report.RowErrors = res.Errors
		report.EmbeddedImagesFound = res.EmbeddedImagesFound
		report.ImagesUploaded += res.EmbeddedImagesUploaded
		if n := len(res.EmbeddedFailedImages); n > 0 {
			report.ImagesFailed += n
			report.FailedImages = append(report.FailedImages, res.EmbeddedFailedImages...)
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("%d embedded pictures failed to upload; their rows were imported without them", n))
		}
	}
	if err != nil {
		if res != nil && res.Created > 0 {
			c.invalidate(ctx, report)
		}
		return &SubmissionError{Err: err}
	}

	if res.Created+res.Failed != res.RowsAttempted {
		log.Error().
			Int("created", res.Created).
			Int("failed", res.Failed).
			Int("attempted", res.RowsAttempted).
			Msg("Import store result does not reconcile with rows attempted")
	}

	c.invalidate(ctx, report)
	return nil
}

// invalidate drops the cached catalog. The data is already committed, so a
// failure is reported as a warning rather than failing the import, and a
// cancelled import still invalidates.
func (c *Coordinator) invalidate(ctx context.Context, report *models.ImportReport) {
	if c.invalidator == nil {
		return
	}
	if err := c.invalidator.Invalidate(context.WithoutCancel(ctx)); err != nil {
		log.Warn().Err(err).Msg("Failed to invalidate catalog cache after import")
		report.Warnings = append(report.Warnings, "catalog cache could not be invalidated; changes appear after the cache expires")
		return
	}
	c.notifier.NotifyCatalogInvalidated("import")
}

func (c *Coordinator) emit(importID string, phase models.ImportPhase, done, total int, msg string) {
	c.reporter.NotifyImportProgress(&models.ImportProgress{
		ImportID: importID,
		Phase:    phase,
		Done:     done,
		Total:    total,
		Message:  msg,
	})
}

// missingReferences lists referenced filenames absent from imageMap.
func missingReferences(parsed *ParseResult, imageMap map[string]string, caseSensitive bool) []string {
	var missing []string
	for _, name := range parsed.ReferencedNames() {
		if _, ok := imageMap[name]; ok {
			continue
		}
		if !caseSensitive {
			if _, ok := imageMap[strings.ToLower(name)]; ok {
				continue
			}
		}
		missing = append(missing, name)
	}
	return missing
}

func imagesAccounted(report *models.ImportReport) int {
	return report.ImagesUploaded + report.ImagesFailed + len(report.UnmatchedImages)
}

// checkImageCounts logs a report whose image counts do not add up. Pictures
// found inside a workbook count as selected.
func checkImageCounts(report *models.ImportReport) {
	expected := report.ImagesSelected
	if report.EmbeddedImagesFound != nil {
		expected += *report.EmbeddedImagesFound
	}
	if accounted := imagesAccounted(report); accounted != expected {
		log.Error().
			Int("selected", report.ImagesSelected).
			Int("embedded", expected-report.ImagesSelected).
			Int("uploaded", report.ImagesUploaded).
			Int("failed", report.ImagesFailed).
			Int("unmatched", len(report.UnmatchedImages)).
			Msg("Import image counts do not reconcile")
	}
}

// IsClientError reports whether err was caused by the request rather than a
// downstream system.
func IsClientError(err error) bool {
	var (
		pe *ParseError
		ve *ValidationError
		me *MatchError
	)
	return errors.As(err, &pe) || errors.As(err, &ve) || errors.As(err, &me)
}
