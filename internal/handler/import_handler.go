package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/catalog_api/internal/importer"
	"github.com/GTDGit/catalog_api/internal/middleware"
	"github.com/GTDGit/catalog_api/internal/models"
	"github.com/GTDGit/catalog_api/internal/utils"
)

// ImportRunner runs one bulk import.
type ImportRunner interface {
	Run(ctx context.Context, req importer.Request) (*models.ImportReport, error)
}

// ImportHandler accepts bulk product imports.
type ImportHandler struct {
	coordinator ImportRunner
	maxBytes    int64
}

// NewImportHandler creates an ImportHandler. maxBytes caps the whole multipart
// request.
func NewImportHandler(coordinator ImportRunner, maxBytes int64) *ImportHandler {
	return &ImportHandler{coordinator: coordinator, maxBytes: maxBytes}
}

// Import handles POST /v1/admin/products/import
//
// Multipart fields: spreadsheet (optional file), images / images[] (files),
// importMethod (auto, row-order, filename), caseSensitive, importId.
func (h *ImportHandler) Import(c *gin.Context) {
	if h.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)
	}
	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.Error(c, 413, "PAYLOAD_TOO_LARGE", fmt.Sprintf("Import exceeds %d MB", h.maxBytes>>20))
			return
		}
		utils.Error(c, 400, "INVALID_REQUEST", "Expected a multipart form")
		return
	}

	req := importer.Request{ID: c.PostForm("importId")}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	if files := form.File["spreadsheet"]; len(files) > 0 {
		sheet, err := readSpreadsheet(files[0])
		if err != nil {
			respondImportError(c, nil, err)
			return
		}
		req.Spreadsheet = sheet

		caseSensitive, _ := strconv.ParseBool(c.PostForm("caseSensitive"))
		req.Strategy, err = importer.ParseStrategy(c.PostForm("importMethod"), caseSensitive)
		if err != nil {
			respondImportError(c, nil, err)
			return
		}
	}

	var rejected []string
	for _, fh := range append(form.File["images"], form.File["images[]"]...) {
		img, err := readImage(fh)
		if err != nil {
			log.Warn().Err(err).Str("filename", fh.Filename).Msg("Rejected import image")
			rejected = append(rejected, fh.Filename)
			continue
		}
		req.Images = append(req.Images, img)
	}
	if len(rejected) > 0 {
		utils.ErrorWithData(c, 400, "UNSUPPORTED_IMAGE", "Only image files can be imported", gin.H{
			"rejected": rejected,
		})
		return
	}

	log.Info().
		Str("import_id", req.ID).
		Int("admin_id", middleware.AdminUserID(c)).
		Bool("spreadsheet", req.Spreadsheet != nil).
		Int("images", len(req.Images)).
		Msg("Import started")

	report, err := h.coordinator.Run(c.Request.Context(), req)
	if err != nil {
		respondImportError(c, report, err)
		return
	}

	utils.Success(c, 200, "Import completed", gin.H{
		"importId": req.ID,
		"report":   report,
	})
}

// Template handles GET /v1/admin/products/import/template
func (h *ImportHandler) Template(c *gin.Context) {
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, importer.TemplateFilename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", importer.Template())
}

func readSpreadsheet(fh *multipart.FileHeader) (*importer.Spreadsheet, error) {
	format, err := importer.DetectFormat(fh.Filename)
	if err != nil {
		return nil, err
	}
	data, err := readPart(fh)
	if err != nil {
		return nil, &importer.ParseError{Err: err}
	}
	return &importer.Spreadsheet{Filename: fh.Filename, Data: data, Format: format}, nil
}

func readImage(fh *multipart.FileHeader) (models.ImageFile, error) {
	data, err := readPart(fh)
	if err != nil {
		return models.ImageFile{}, err
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return models.ImageFile{}, fmt.Errorf("detected %s", mt.String())
	}
	return models.ImageFile{
		Filename: fh.Filename,
		Data:     data,
		Size:     int64(len(data)),
		MimeType: mt.String(),
	}, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// respondImportError maps pipeline errors to the response envelope. The
// partial report, when present, is returned with the error.
func respondImportError(c *gin.Context, report *models.ImportReport, err error) {
	var (
		pe *importer.ParseError
		ve *importer.ValidationError
		me *importer.MatchError
		ue *importer.UploadError
		se *importer.SubmissionError
	)
	var data interface{}
	if report != nil {
		data = gin.H{"report": report}
	}

	switch {
	case errors.As(err, &pe):
		utils.ErrorWithData(c, 400, "PARSE_ERROR", err.Error(), data)
	case errors.As(err, &ve):
		utils.ErrorWithData(c, 400, "VALIDATION_ERROR", err.Error(), data)
	case errors.As(err, &me):
		utils.ErrorWithData(c, 422, "MATCH_ERROR", err.Error(), gin.H{"report": report, "unmatched": me.Unmatched})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		utils.ErrorWithData(c, 503, "IMPORT_CANCELLED", "Import was cancelled", data)
	case errors.As(err, &ue):
		utils.ErrorWithData(c, 502, "UPLOAD_ERROR", err.Error(), data)
	case errors.As(err, &se):
		utils.ErrorWithData(c, 502, "SUBMISSION_ERROR", err.Error(), data)
	default:
		_ = c.Error(err)
		utils.ErrorWithData(c, 500, "INTERNAL_ERROR", "Import failed", data)
	}
}
