package util

import "errors"

var (
	ErrNoExtractableText = errors.New("no extractable text found in PDF")

	ErrModelUnavailable = errors.New("primary and backup models exhausted")
	ErrSchemaViolation  = errors.New("model output failed schema validation")
	ErrInvalidState     = errors.New("operation not valid for current report state")
)
