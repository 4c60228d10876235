// Package validator checks ingestion requests before the phrase pipeline
// runs, reporting every offending field at once.
package validator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/kokuto/pkg/errors"
)

const (
	maxTextLength      = 1 << 20
	maxSections        = 64
	maxSectionLength   = 128
	maxIdempotencyKey  = 255
	maxExtraDataLength = 64 << 10
)

// ValidateIngestRequest returns an *apperrors.ValidationError describing every
// invalid field of req, or nil.
func ValidateIngestRequest(req *ingestion.IngestRequest) error {
	errs := make(map[string]string)

	switch {
	case strings.TrimSpace(req.Text) == "":
		errs["text"] = "text is required"
	case len(req.Text) > maxTextLength:
		errs["text"] = fmt.Sprintf("text must be at most %d bytes", maxTextLength)
	case !utf8.ValidString(req.Text):
		errs["text"] = "text must be valid UTF-8"
	}

	if len(req.Sections) > maxSections {
		errs["sections"] = fmt.Sprintf("at most %d sections are allowed", maxSections)
	} else {
		for _, s := range req.Sections {
			if msg := checkSection(s); msg != "" {
				errs["sections"] = msg
				break
			}
		}
	}

	if len(req.ExtraData) > 0 {
		trimmed := bytes.TrimSpace(req.ExtraData)
		switch {
		case len(req.ExtraData) > maxExtraDataLength:
			errs["extra_data"] = fmt.Sprintf("extra_data must be at most %d bytes", maxExtraDataLength)
		case !json.Valid(trimmed) || len(trimmed) == 0 || trimmed[0] != '{':
			errs["extra_data"] = "extra_data must be a JSON object"
		}
	}

	if len(req.IdempotencyKey) > maxIdempotencyKey {
		errs["idempotency_key"] = fmt.Sprintf("idempotency key must be at most %d characters", maxIdempotencyKey)
	}

	if len(errs) > 0 {
		return &apperrors.ValidationError{Fields: errs}
	}
	return nil
}

// checkSection rejects names that cannot serve as a storage key segment.
func checkSection(s string) string {
	if strings.TrimSpace(s) == "" {
		return "section names must not be empty"
	}
	if len(s) > maxSectionLength {
		return fmt.Sprintf("section names must be at most %d bytes", maxSectionLength)
	}
	if strings.ContainsFunc(s, func(r rune) bool { return r == ':' || !unicode.IsPrint(r) }) {
		return fmt.Sprintf("section %q contains ':' or a non-printable character", s)
	}
	return ""
}

// ValidateSection applies the ingestion rules for section names to a
// section given on a query path.
func ValidateSection(s string) error {
	if msg := checkSection(s); msg != "" {
		return apperrors.NewValidation("section", msg)
	}
	return nil
}
