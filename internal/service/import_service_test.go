package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/GTDGit/catalog_api/internal/importer"
	"github.com/GTDGit/catalog_api/internal/models"
)

type cdnUploader struct{}

func (cdnUploader) UploadImage(ctx context.Context, img models.ImageFile) (string, error) {
	return "https://cdn.test/" + img.Filename, nil
}

func newImportFixture(baseline ...models.Product) (*ImportService, *memStore) {
	store := &memStore{createErr: map[string]error{}}
	cat := &liveCatalog{store: store, baseline: baseline}
	return NewImportService(store, cat, importer.NewBatchUploader(cdnUploader{}, 0)), store
}

func csvRequest(method models.ImportMethod, lines ...string) *importer.SubmitRequest {
	return &importer.SubmitRequest{
		Spreadsheet: &importer.Spreadsheet{
			Filename: "products.csv",
			Data:     []byte(strings.Join(lines, "\n")),
			Format:   importer.FormatCSV,
		},
		Method: method,
	}
}

func TestImportService_SubmitFilenameImport(t *testing.T) {
	svc, store := newImportFixture()
	req := csvRequest(models.ImportMethodFilename,
		"name,category,price,mrp,stock,tags,images,frameSize,isFeatured",
		`"Trail, 29er",bikes,"1,200",1500,12,"mtb, trail","a.jpg,B.JPG,https://img.test/x.jpg",L,yes`,
	)
	req.ImageMap = map[string]string{"a.jpg": "https://cdn.test/a.jpg", "b.jpg": "https://cdn.test/b.jpg"}

	res, err := svc.SubmitImport(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, res.RowsAttempted)
	assert.Equal(t, 1, res.Created)
	assert.Zero(t, res.Failed)
	assert.Nil(t, res.EmbeddedImagesFound)

	require.Len(t, store.products, 1)
	p := store.products[0]
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "Trail, 29er", p.Name)
	assert.True(t, p.Price.Equal(decimal.NewFromInt(1200)))
	assert.Equal(t, models.StockInStock, p.Stock.Status)
	assert.Equal(t, models.StringList{"mtb", "trail"}, p.Tags)
	assert.Equal(t, "L", p.Specs["frameSize"])
	assert.True(t, p.IsFeatured)
	assert.Equal(t, "https://cdn.test/a.jpg", p.Image)
	assert.Equal(t, models.StringList{"https://cdn.test/b.jpg", "https://img.test/x.jpg"}, p.Gallery)
}

func TestImportService_PartialCreate(t *testing.T) {
	svc, store := newImportFixture()
	store.createErr["Broken"] = errors.New("insert failed")
	req := csvRequest(models.ImportMethodFilename,
		"name,category,price,mrp",
		"Good,bikes,10,12",
		"Dear,bikes,20,10",
		",bikes,1,1",
		"Broken,bikes,1,1",
		"Odd,bikes,abc,1",
	)

	res, err := svc.SubmitImport(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 5, res.RowsAttempted)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 4, res.Failed)
	assert.Equal(t, res.RowsAttempted, res.Created+res.Failed)

	require.Len(t, res.Errors, 4)
	assert.Equal(t, 3, res.Errors[0].Row)
	assert.Contains(t, res.Errors[0].Message, "INVALID_PRICE")
	assert.Equal(t, "name", res.Errors[1].Field)
	assert.Equal(t, 5, res.Errors[2].Row)
	assert.Equal(t, "price", res.Errors[3].Field)
}

func TestImportService_RowOrderImages(t *testing.T) {
	svc, store := newImportFixture()
	req := csvRequest(models.ImportMethodRowOrder,
		"name,price,mrp",
		"First,1,1",
		"Second,1,1",
	)
	req.RowImages = []importer.RowImageURL{
		{Row: 0, URL: "https://cdn.test/1.jpg"},
		{Row: 1, URL: "https://cdn.test/2.jpg"},
		{Row: 2, URL: "https://cdn.test/surplus.jpg"},
	}

	res, err := svc.SubmitImport(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, "https://cdn.test/1.jpg", store.products[0].Image)
	assert.Equal(t, "https://cdn.test/2.jpg", store.products[1].Image)
}

// pictureWorkbook builds a two-row workbook with a PNG anchored at D2.
func pictureWorkbook(t *testing.T) []byte {
	t.Helper()
	var pic bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	require.NoError(t, png.Encode(&pic, img))

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"name", "price", "mrp", "images"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{"Pictured", "10", "10", ""}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]interface{}{"Plain", "10", "10", ""}))
	require.NoError(t, f.AddPictureFromBytes(sheet, "D2", &excelize.Picture{
		Extension: ".png",
		File:      pic.Bytes(),
		Format:    &excelize.GraphicOptions{},
	}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func embeddedRequest(data []byte) *importer.SubmitRequest {
	return &importer.SubmitRequest{
		Spreadsheet: &importer.Spreadsheet{Filename: "sheet.xlsx", Data: data, Format: importer.FormatXLSX},
		Method:      models.ImportMethodAuto,
	}
}

func TestImportService_EmbeddedPictures(t *testing.T) {
	svc, store := newImportFixture()
	res, err := svc.SubmitImport(context.Background(), embeddedRequest(pictureWorkbook(t)))
	require.NoError(t, err)
	require.NotNil(t, res.EmbeddedImagesFound)
	assert.Equal(t, 1, *res.EmbeddedImagesFound)
	assert.Equal(t, 1, res.EmbeddedImagesUploaded)
	assert.Empty(t, res.EmbeddedFailedImages)
	assert.Equal(t, 2, res.Created)

	require.Len(t, store.products, 2)
	assert.Equal(t, "https://cdn.test/d2-1.png", store.products[0].Image)
	assert.Empty(t, store.products[1].Image)
}

type failingUploader struct{}

func (failingUploader) UploadImage(ctx context.Context, img models.ImageFile) (string, error) {
	return "", errors.New("bucket unreachable")
}

func TestImportService_EmbeddedUploadFailuresAreReported(t *testing.T) {
	store := &memStore{createErr: map[string]error{}}
	cat := &liveCatalog{store: store}
	uploader := importer.NewBatchUploader(failingUploader{}, 0)
	svc := NewImportService(store, cat, uploader)

	res, err := svc.SubmitImport(context.Background(), embeddedRequest(pictureWorkbook(t)))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Zero(t, res.EmbeddedImagesUploaded)
	assert.Equal(t, []string{"d2-1.png"}, res.EmbeddedFailedImages)

	coordinator := importer.NewCoordinator(uploader, svc, cat, cat)
	report, err := coordinator.Run(context.Background(), importer.Request{
		Spreadsheet: embeddedRequest(pictureWorkbook(t)).Spreadsheet,
		Strategy:    importer.EmbeddedStrategy{},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ImportStatusDone, report.Status)
	require.NotNil(t, report.EmbeddedImagesFound)
	assert.Equal(t, 1, *report.EmbeddedImagesFound)
	assert.Equal(t, 1, report.ImagesFailed)
	assert.Equal(t, []string{"d2-1.png"}, report.FailedImages)
	assert.NotEmpty(t, report.Warnings)
}

func TestImportService_PartialSubmitIsReportedAndInvalidates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := &memStore{createErr: map[string]error{}}
	store.afterCreate = cancel
	cat := &liveCatalog{store: store}
	uploader := importer.NewBatchUploader(cdnUploader{}, 0)
	coordinator := importer.NewCoordinator(uploader, NewImportService(store, cat, uploader), cat, cat)

	report, err := coordinator.Run(ctx, importer.Request{
		Spreadsheet: csvRequest(models.ImportMethodFilename, "name,price,mrp", "A,1,1", "B,2,2", "C,3,3").Spreadsheet,
	})

	var se *importer.SubmissionError
	require.ErrorAs(t, err, &se)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.ImportStatusFailed, report.Status)
	assert.Len(t, store.products, 1)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, cat.invalidations)
}

func TestImportService_StopsOnCancellation(t *testing.T) {
	svc, _ := newImportFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := svc.SubmitImport(ctx, csvRequest(models.ImportMethodFilename, "name,price,mrp", "A,1,1"))
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Zero(t, res.Created)
}

func TestImportService_AttachImages(t *testing.T) {
	static := bike("s1", "Static Bike", "bikes")
	static.Image = "https://img.test/s1.jpg"
	svc, store := newImportFixture(static)
	store.products = []models.Product{bike("r1", "Remote Bike", "bikes")}

	updated, err := svc.AttachImages(context.Background(), map[string][]string{
		"r1":    {"https://cdn.test/r1-a.jpg", "https://cdn.test/r1-b.jpg"},
		"s1":    {"https://cdn.test/s1-b.jpg"},
		"ghost": {"https://cdn.test/ghost.jpg"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, updated)

	r1, ok := store.find("r1")
	require.True(t, ok)
	assert.Equal(t, "https://cdn.test/r1-a.jpg", r1.Image)
	assert.Equal(t, models.StringList{"https://cdn.test/r1-b.jpg"}, r1.Gallery)

	s1, ok := store.find("s1")
	require.True(t, ok)
	assert.Equal(t, "https://img.test/s1.jpg", s1.Image)
	assert.Equal(t, models.StringList{"https://cdn.test/s1-b.jpg"}, s1.Gallery)
}

func TestParseMoney(t *testing.T) {
	v, err := parseMoney("₹ 1,499.50")
	require.NoError(t, err)
	assert.True(t, v.Equal(decimal.RequireFromString("1499.50")))

	v, err = parseMoney("")
	require.NoError(t, err)
	assert.True(t, v.IsZero())

	_, err = parseMoney("twelve")
	assert.Error(t, err)
}
