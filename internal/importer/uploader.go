package importer

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/GTDGit/catalog_api/internal/models"
)

// DefaultBatchSize is the number of uploads dispatched together.
const DefaultBatchSize = 5

// ImageUploader stores one image and returns its durable URL.
type ImageUploader interface {
	UploadImage(ctx context.Context, img models.ImageFile) (string, error)
}

// UploadItem is one queued upload. Row is -1 when the image is not tied to a
// spreadsheet row; ProductID is set in images-only mode.
type UploadItem struct {
	Image     models.ImageFile
	Row       int
	ProductID string
}

// UploadedImage is a successful upload.
type UploadedImage struct {
	UploadItem
	URL string
}

// FailedUpload is an upload that returned an error.
type FailedUpload struct {
	UploadItem
	Err error
}

// UploadResult folds every settled upload.
type UploadResult struct {
	// ImageMap holds each uploaded URL under the original and lowercased filename.
	ImageMap map[string]string
	Uploaded []UploadedImage
	Failed   []FailedUpload
}

// FailedNames returns the filenames of failed uploads.
func (r *UploadResult) FailedNames() []string {
	out := make([]string, 0, len(r.Failed))
	for _, f := range r.Failed {
		out = append(out, f.Image.Filename)
	}
	return out
}

// Progress is reported after every settled upload.
type Progress struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

// BatchUploader uploads images in fixed-size batches: every item of a batch is
// dispatched at once and the next batch starts only after all of them settle.
type BatchUploader struct {
	uploader  ImageUploader
	batchSize int
}

// NewBatchUploader creates a BatchUploader. A non-positive batchSize selects
// DefaultBatchSize.
func NewBatchUploader(uploader ImageUploader, batchSize int) *BatchUploader {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &BatchUploader{uploader: uploader, batchSize: batchSize}
}

// BatchSize returns the configured concurrency.
func (u *BatchUploader) BatchSize() int {
	return u.batchSize
}

type outcome struct {
	url string
	err error
}

// Upload uploads items and never fails because of an individual upload. The
// context is checked between batches; on cancellation the result of the
// batches that ran is returned together with the context error.
func (u *BatchUploader) Upload(ctx context.Context, items []UploadItem, onProgress func(Progress)) (*UploadResult, error) {
	total := len(items)
	outcomes := make([]outcome, total)
	settled := make([]bool, total)

	var (
		mu   sync.Mutex
		done int
	)
	report := func() {
		mu.Lock()
		defer mu.Unlock()
		done++
		if onProgress != nil {
			onProgress(Progress{Done: done, Total: total})
		}
	}

	var ctxErr error
	for start := 0; start < total; start += u.batchSize {
		if err := ctx.Err(); err != nil {
			ctxErr = err
			log.Warn().Err(err).Int("settled", start).Int("total", total).Msg("Image upload cancelled between batches")
			break
		}

		end := start + u.batchSize
		if end > total {
			end = total
		}

		var g errgroup.Group
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				url, err := u.uploader.UploadImage(ctx, items[i].Image)
				outcomes[i] = outcome{url: url, err: err}
				settled[i] = true
				report()
				return nil
			})
		}
		_ = g.Wait()
	}

	return fold(items, outcomes, settled, ctxErr), ctxErr
}

// fold aggregates outcomes in item order. Items never dispatched because of
// cancellation count as failed with the cancellation cause, so every item lands
// in exactly one bucket.
func fold(items []UploadItem, outcomes []outcome, settled []bool, ctxErr error) *UploadResult {
	res := &UploadResult{ImageMap: make(map[string]string)}
	for i, item := range items {
		o := outcomes[i]
		if !settled[i] {
			o.err = ctxErr
		}
		if o.err != nil {
			log.Warn().Err(o.err).Str("filename", item.Image.Filename).Msg("Image upload failed")
			res.Failed = append(res.Failed, FailedUpload{UploadItem: item, Err: o.err})
			continue
		}
		res.Uploaded = append(res.Uploaded, UploadedImage{UploadItem: item, URL: o.url})
		res.ImageMap[item.Image.Filename] = o.url
		res.ImageMap[strings.ToLower(item.Image.Filename)] = o.url
	}
	return res
}
