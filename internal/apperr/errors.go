package apperr

import "errors"

var (
	ErrEnvelopeNotFound  = errors.New("envelope not found")
	ErrVersionNotFound   = errors.New("version not found")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrEmbedding         = errors.New("embedding provider failure")
	ErrIndexBackend      = errors.New("index backend failure")
)
