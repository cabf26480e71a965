package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/schema"
	"github.com/healthchain/marketplace/cmd/marketplace/container"
	"github.com/healthchain/marketplace/cmd/marketplace/models"
	"github.com/healthchain/marketplace/common/apperr"
	"github.com/labstack/echo/v4"
)

const maxFieldBytes = 10 << 20

var errFileTooLarge = errors.New("file too large")

// uploadForm holds the non-file multipart fields
type uploadForm struct {
	Metadata        string `schema:"metadata"`
	LicenseTerms    string `schema:"licenseTerms"`
	Price           string `schema:"price"`
	ProviderAddress string `schema:"providerAddress"`
}

// UploadHandler accepts dataset uploads
type UploadHandler struct {
	container *container.Container
	decoder   *schema.Decoder
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(c *container.Container) *UploadHandler {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)
	return &UploadHandler{
		container: c,
		decoder:   decoder,
	}
}

// UploadDataset spools the multipart upload to a temp file and hands it to
// the upload service
// POST /api/upload-dataset
func (h *UploadHandler) UploadDataset(c echo.Context) error {
	production := h.container.Components.Config.IsProduction()

	mr, err := c.Request().MultipartReader()
	if err != nil {
		return respondError(c, apperr.Wrap(apperr.KindValidation, apperr.StageValidate, err, "Dataset file is required"), production)
	}

	job := &models.UploadJob{ID: uuid.NewString()}
	handedOff := false
	defer func() {
		if !handedOff && job.TempPath != "" {
			_ = h.container.Fs.Remove(job.TempPath)
		}
	}()

	fields := make(map[string][]string)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return respondError(c, apperr.Wrap(apperr.KindValidation, apperr.StageValidate, err, "Invalid multipart body"), production)
		}

		if err := h.readPart(part, job, fields); err != nil {
			part.Close()
			if errors.Is(err, errFileTooLarge) {
				return respondError(c, apperr.Wrap(apperr.KindValidation, apperr.StageValidate, err, "File too large"), production)
			}
			var ae *apperr.Error
			if errors.As(err, &ae) {
				return respondError(c, ae, production)
			}
			return respondError(c, apperr.Wrap(apperr.KindInternal, apperr.StageRead, err, "Failed to receive upload"), production)
		}
		part.Close()
	}

	var form uploadForm
	if err := h.decoder.Decode(&form, fields); err != nil {
		return respondError(c, apperr.Wrap(apperr.KindValidation, apperr.StageValidate, err, "Invalid form fields"), production)
	}
	job.Metadata = form.Metadata
	job.LicenseTerms = form.LicenseTerms
	job.Price = form.Price
	job.Provider = form.ProviderAddress

	handedOff = true
	result, err := h.container.UploadService.HandleUpload(c.Request().Context(), job)
	if err != nil {
		return respondError(c, err, production)
	}

	return c.JSON(http.StatusOK, result)
}

func (h *UploadHandler) readPart(part *multipart.Part, job *models.UploadJob, fields map[string][]string) error {
	name := part.FormName()
	if name == "dataset" && part.FileName() != "" {
		if job.TempPath != "" {
			return apperr.Validation("Only one dataset file is allowed")
		}
		return h.spool(part, job)
	}
	if part.FileName() != "" {
		// unexpected file fields are drained and ignored
		_, err := io.Copy(io.Discard, part)
		return err
	}

	value, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
	if err != nil {
		return err
	}
	if len(value) > maxFieldBytes {
		return apperr.Validation("Form field %s is too large", name)
	}
	fields[name] = append(fields[name], string(value))
	return nil
}

// spool copies the file part to dataset-<job id><ext> in the upload dir
func (h *UploadHandler) spool(part *multipart.Part, job *models.UploadJob) error {
	cfg := h.container.Components.Config.Upload
	original := filepath.Base(strings.ReplaceAll(part.FileName(), "\\", "/"))
	path := filepath.Join(cfg.Dir, fmt.Sprintf("dataset-%s%s", job.ID, strings.ToLower(filepath.Ext(original))))

	f, err := h.container.Fs.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	job.TempPath = path
	job.OriginalFilename = original

	n, err := io.Copy(f, io.LimitReader(part, cfg.MaxBytes+1))
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if n > cfg.MaxBytes {
		return errFileTooLarge
	}
	job.Size = n
	return nil
}
