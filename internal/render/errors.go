package render

import (
	"errors"
	"fmt"

	"github.com/maauso/audiogram-api/internal/domain"
)

// Kind classifies a pipeline failure for the caller.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindFetch
	KindDecode
	KindEncoding
	// KindTimeout means the per-request deadline expired.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindFetch:
		return "fetch"
	case KindDecode:
		return "decode"
	case KindEncoding:
		return "encoding"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Stage names a step of the pipeline.
type Stage string

const (
	StageValidate Stage = "validate"
	StageFetch    Stage = "fetch"
	StageCompose  Stage = "compose"
	StageAssemble Stage = "assemble"
	StageEncode   Stage = "encode"
	StageDeliver  Stage = "deliver"
)

// Error is returned by Pipeline.Run for every failure.
type Error struct {
	Kind  Kind
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of a pipeline error, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// classify prefers the typed domain error and falls back to the stage.
func classify(stage Stage, err error) Kind {
	var (
		validationErr *domain.ValidationError
		fetchErr      *domain.FetchError
		decodeErr     *domain.DecodeError
		encodingErr   *domain.EncodingError
	)
	switch {
	case errors.As(err, &validationErr):
		return KindValidation
	case errors.As(err, &fetchErr):
		return KindFetch
	case errors.As(err, &decodeErr):
		return KindDecode
	case errors.As(err, &encodingErr):
		return KindEncoding
	}

	switch stage {
	case StageValidate:
		return KindValidation
	case StageFetch:
		return KindFetch
	case StageCompose, StageAssemble:
		return KindDecode
	default:
		return KindEncoding
	}
}
