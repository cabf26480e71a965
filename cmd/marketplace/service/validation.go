package service

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/healthchain/marketplace/cmd/marketplace/models"
	"github.com/healthchain/marketplace/common/apperr"
	"github.com/healthchain/marketplace/common/ledger"
	"github.com/xeipuuv/gojsonschema"
)

var addressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

var metadataSchema = mustSchema(`{"type": "object"}`)

var sortFields = map[string]bool{
	"price":     true,
	"createdAt": true,
	"version":   true,
	"provider":  true,
}

// UploadLimits bounds what HandleUpload accepts
type UploadLimits struct {
	MaxBytes          int64
	AllowedExtensions []string
}

func mustSchema(raw string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
	if err != nil {
		panic(err)
	}
	return s
}

func invalid(summary, details string) *apperr.Error {
	e := apperr.New(apperr.KindValidation, apperr.StageValidate, summary)
	if details != "" {
		e.Err = errors.New(details)
	}
	return e
}

// ValidateAddress checks an Ethereum account address
func ValidateAddress(addr string) error {
	if strings.TrimSpace(addr) == "" {
		return invalid("User address is required", "")
	}
	if !addressPattern.MatchString(addr) {
		return invalid("Invalid Ethereum address format",
			fmt.Sprintf("expected 0x followed by 40 hexadecimal characters, got %q", addr))
	}
	return nil
}

// ParseDatasetID parses a positive integer dataset id
func ParseDatasetID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || id == 0 {
		return 0, invalid("Invalid dataset ID", "Dataset ID must be a positive integer")
	}
	return id, nil
}

// validateUpload checks a job before any side effect
func validateUpload(job *models.UploadJob, limits UploadLimits) error {
	if strings.TrimSpace(job.Metadata) == "" {
		return invalid("Dataset metadata is required", "")
	}
	if strings.TrimSpace(job.LicenseTerms) == "" {
		return invalid("License terms are required", "")
	}
	if _, err := ledger.ParseEther(job.Price); err != nil {
		return invalid("Valid price is required", err.Error())
	}
	if strings.TrimSpace(job.Provider) == "" {
		return invalid("Provider address is required", "")
	}
	if !addressPattern.MatchString(job.Provider) {
		return invalid("Invalid Ethereum address format",
			fmt.Sprintf("expected 0x followed by 40 hexadecimal characters, got %q", job.Provider))
	}
	if job.TempPath == "" || job.OriginalFilename == "" {
		return invalid("Dataset file is required", "")
	}
	if limits.MaxBytes > 0 && job.Size > limits.MaxBytes {
		return invalid("File too large", fmt.Sprintf("maximum is %d bytes, got %d", limits.MaxBytes, job.Size))
	}

	ext := strings.ToLower(filepath.Ext(job.OriginalFilename))
	if !extensionAllowed(ext, limits.AllowedExtensions) {
		return invalid("Invalid file type",
			fmt.Sprintf("allowed types are %s, got %q", strings.Join(limits.AllowedExtensions, " "), ext))
	}

	result, err := metadataSchema.Validate(gojsonschema.NewStringLoader(job.Metadata))
	if err != nil {
		return invalid("Invalid metadata format", "Metadata must be valid JSON string")
	}
	if !result.Valid() {
		return invalid("Invalid metadata format", "Metadata must be a JSON object")
	}
	return nil
}

func extensionAllowed(ext string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if ext == a {
			return true
		}
	}
	return false
}

// ParseListQuery reads and checks the listing parameters. An absent limit
// means no limit.
func ParseListQuery(values url.Values) (*models.ListQuery, error) {
	q := &models.ListQuery{SortOrder: "asc", Filter: strings.TrimSpace(values.Get("filter"))}

	if raw := values.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			return nil, invalid("Invalid limit parameter", "Limit must be a number between 1 and 100")
		}
		q.Limit = n
	}
	if raw := values.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, invalid("Invalid offset parameter", "Offset must be a non-negative number")
		}
		q.Offset = n
	}
	if q.SortBy = values.Get("sortBy"); q.SortBy != "" && !sortFields[q.SortBy] {
		return nil, invalid("Invalid sortBy parameter",
			fmt.Sprintf("allowed fields are price, createdAt, version, provider; got %q", q.SortBy))
	}
	if raw := values.Get("sortOrder"); raw != "" {
		q.SortOrder = strings.ToLower(raw)
		if q.SortOrder != "asc" && q.SortOrder != "desc" {
			return nil, invalid("Invalid sortOrder parameter",
				fmt.Sprintf("allowed values are asc, desc; got %q", raw))
		}
	}
	return q, nil
}
