package handler

import (
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/logger"
)

var setupValidatorOnce sync.Once

// setupValidator makes validator report json field names.
func setupValidator() {
	setupValidatorOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
			}
			return name
		})
	})
}

func httpStatus(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation, domain.KindInsufficientStock, domain.KindInvalidState,
		domain.KindOTPNotFound, domain.KindOTPExpired, domain.KindOTPTooManyAttempts, domain.KindOTPMismatch:
		return http.StatusBadRequest
	case domain.KindAuth:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindAlreadyExists:
		return http.StatusConflict
	case domain.KindRateLimit:
		return http.StatusTooManyRequests
	case domain.KindDeliveryFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(kind domain.Kind, message string, details map[string]any) gin.H {
	body := gin.H{"code": string(kind), "message": message}
	for k, v := range details {
		if k == "code" || k == "message" {
			continue
		}
		body[k] = v
	}
	return gin.H{"success": false, "error": body}
}

// respondError writes err with the status of its kind. Errors that are not
// domain errors are logged and reported as INTERNAL without their text.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	var de *domain.Error
	if !errors.As(err, &de) {
		logger.FromContext(c).Error("unhandled error", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody("INTERNAL", "internal server error", nil))
		return
	}

	status := httpStatus(de.Kind)
	if status >= http.StatusInternalServerError {
		logger.FromContext(c).Error("request failed", zap.String("kind", string(de.Kind)), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, errorBody(de.Kind, de.Message, de.Details))
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// respondBindError reports a request body or query that failed to bind.
func respondBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]fieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fieldError{Field: fe.Field(), Message: validationMessage(fe)})
		}
		respondError(c, domain.Validation("request validation failed").With("fields", fields))
		return
	}
	respondError(c, domain.Validation("invalid request body"))
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "invalid email format"
	case "min":
		if fe.Kind() == reflect.String {
			return "must be at least " + fe.Param() + " characters"
		}
		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return "must be at most " + fe.Param() + " characters"
		}
		return "must be at most " + fe.Param()
	case "len":
		return "must be exactly " + fe.Param() + " characters"
	case "numeric":
		return "must be numeric"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "ne":
		return "must not be " + fe.Param()
	default:
		return "invalid value"
	}
}
