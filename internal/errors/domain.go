package errors

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

// SchemaMismatchError reports a feature vector whose keys differ from the
// model schema. Missing and Extra are sorted.
type SchemaMismatchError struct {
	*AppError
	Missing []string
	Extra   []string
}

// NewSchemaMismatchError builds a schema mismatch with both key sets
func NewSchemaMismatchError(missing, extra []string) *SchemaMismatchError {
	missing = sortedCopy(missing)
	extra = sortedCopy(extra)

	errorMap := errbuilder.ErrorMap{}
	if len(missing) > 0 {
		errorMap.Set("missing_features", errors.New(strings.Join(missing, ",")))
	}
	if len(extra) > 0 {
		errorMap.Set("extra_features", errors.New(strings.Join(extra, ",")))
	}

	builder := errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg("feature vector does not match model schema").
		WithDetails(errbuilder.NewErrDetails(errorMap))

	return &SchemaMismatchError{
		AppError: NewAppError(builder, CategorySchema, http.StatusBadRequest),
		Missing:  missing,
		Extra:    extra,
	}
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("[%s] %s (missing: [%s], extra: [%s])",
		e.Code(), e.ErrBuilder.Msg, strings.Join(e.Missing, ", "), strings.Join(e.Extra, ", "))
}

// ArtifactLoadError reports a model or schema that could not be loaded.
// It is fatal: a service holding one must not serve.
type ArtifactLoadError struct {
	*AppError
	Path string
}

// NewArtifactLoadError wraps the cause of a failed artifact load
func NewArtifactLoadError(path, message string, cause error) *ArtifactLoadError {
	errorMap := errbuilder.ErrorMap{}
	errorMap.Set("artifact", errors.New(path))

	builder := errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg(message).
		WithDetails(errbuilder.NewErrDetails(errorMap))

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	return &ArtifactLoadError{
		AppError: NewAppError(builder, CategoryConfiguration, http.StatusInternalServerError),
		Path:     path,
	}
}

func (e *ArtifactLoadError) Error() string {
	msg := fmt.Sprintf("[ARTIFACT_LOAD_ERROR] %s: %s", e.Path, e.ErrBuilder.Msg)
	if cause := e.Unwrap(); cause != nil {
		msg += ": " + cause.Error()
	}
	return msg
}

// IsSchemaMismatch reports whether err carries a schema mismatch
func IsSchemaMismatch(err error) bool {
	var target *SchemaMismatchError
	return errors.As(err, &target)
}

// IsArtifactLoad reports whether err carries an artifact load failure
func IsArtifactLoad(err error) bool {
	var target *ArtifactLoadError
	return errors.As(err, &target)
}

func sortedCopy(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}
