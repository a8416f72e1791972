package errors

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

// Response is the wire shape of every error returned by the API and the
// message transport. The feature lists are pointers so that a schema
// mismatch always carries both keys, even when one side is empty.
type Response struct {
	Error           string        `json:"error"`
	Code            string        `json:"code"`
	Category        ErrorCategory `json:"category"`
	Timestamp       string        `json:"timestamp"`
	RequestID       string        `json:"request_id,omitempty"`
	MissingFeatures *[]string     `json:"missing_features,omitempty"`
	ExtraFeatures   *[]string     `json:"extra_features,omitempty"`
	Details         []string      `json:"details,omitempty"`
}

// NewResponse shapes err for clients
func NewResponse(err error) Response {
	appErr := ToAppError(err)
	resp := Response{
		Error:     appErr.ErrBuilder.Msg,
		Code:      appErr.Code(),
		Category:  appErr.Category,
		Timestamp: appErr.Timestamp.Format(time.RFC3339),
	}

	var schemaErr *SchemaMismatchError
	if errors.As(err, &schemaErr) {
		missing := nonNil(schemaErr.Missing)
		extra := nonNil(schemaErr.Extra)
		resp.MissingFeatures = &missing
		resp.ExtraFeatures = &extra
		return resp
	}

	for key, detail := range appErr.ErrBuilder.Details.Errors {
		resp.Details = append(resp.Details, fmt.Sprintf("%v: %v", key, detail))
	}
	sort.Strings(resp.Details)

	return resp
}

// Respond logs err and aborts the request with its status and Response body
func Respond(c *gin.Context, err error) {
	appErr := ToAppError(err)
	LogError(c, appErr)

	resp := NewResponse(err)
	resp.RequestID = c.GetHeader("X-Request-ID")
	c.AbortWithStatusJSON(appErr.HTTPStatus, resp)
}

// ErrorHandler is a Gin middleware that renders the last error attached
// with c.Error when the handler did not write a response itself.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			Respond(c, c.Errors.Last().Err)
		}
	}
}

// RecoveryHandler provides panic recovery with structured error responses
func RecoveryHandler() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		appErr := NewInternalError(
			fmt.Sprintf("Panic recovered: %v", recovered),
			fmt.Errorf("%v", recovered),
		)
		appErr.StackTrace = captureStackTrace()
		Respond(c, appErr)
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
