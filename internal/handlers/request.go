package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/gin-gonic/gin"

	appErrors "github.com/charlesng35/verifolio/pkg/errors"
	"github.com/charlesng35/verifolio/pkg/response"
	appValidator "github.com/charlesng35/verifolio/pkg/validator"
)

const maxPerPage = 200

// requestContext returns the request context, or Background for handlers
// invoked without a request in tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil || c.Request == nil {
		return context.Background()
	}
	return c.Request.Context()
}

// bindAndValidate decodes the JSON body into dest and applies its validate
// tags. On failure a 400 envelope has already been written.
func bindAndValidate[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest("invalid JSON payload"))
		return false
	}
	if err := appValidator.ValidateStruct(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest(describeValidation(err)))
		return false
	}
	return true
}

var validationMessages = map[string]string{
	"required":  "%s is required",
	"email":     "%s must be a valid email address",
	"institute": "%s must be a printable institute name",
	"min":       "%s must be at least %s characters",
	"max":       "%s must be at most %s characters",
	"oneof":     "%s must be one of: %s",
}

func describeValidation(err error) string {
	failures, ok := err.(appValidator.ValidationErrors)
	if !ok || len(failures) == 0 {
		return "invalid request payload"
	}

	messages := make([]string, 0, len(failures))
	for _, failure := range failures {
		field := fieldLabel(failure.Field)
		format, known := validationMessages[failure.Tag]
		switch {
		case !known:
			messages = append(messages, fmt.Sprintf("%s is invalid", field))
		case strings.Count(format, "%s") == 2:
			messages = append(messages, fmt.Sprintf(format, field, failure.Param))
		default:
			messages = append(messages, fmt.Sprintf(format, field))
		}
	}
	return strings.Join(messages, "; ")
}

// fieldLabel turns a json field name such as verifierEmail or
// requested_role into words.
func fieldLabel(name string) string {
	var b strings.Builder
	for i, r := range name {
		switch {
		case r == '_':
			b.WriteByte(' ')
		case unicode.IsUpper(r):
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// parseIntQuery reads a positive integer query value, falling back on
// absent or malformed input.
func parseIntQuery(c *gin.Context, key string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(c.Query(key)))
	if err != nil || parsed < 1 {
		return fallback
	}
	if key == "per_page" && parsed > maxPerPage {
		return maxPerPage
	}
	return parsed
}

// parseTimeQuery reads an optional RFC3339 query value. A malformed value
// writes a 400 and reports false.
func parseTimeQuery(c *gin.Context, key string) (*time.Time, bool) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		response.Error(c, appErrors.NewBadRequest(key+" must be an RFC3339 timestamp"))
		return nil, false
	}
	return &t, true
}
