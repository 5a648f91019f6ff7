package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"sync"

	"layover-match/internal/apperr"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	iataCode       = regexp.MustCompile(`^[A-Za-z]{3}$`)
	registerRules  sync.Once
	errNoProfile   = errors.New("complete your profile first")
	errNoSession   = fmt.Errorf("no user on request: %w", apperr.ErrAuth)
	errNoPhotoRepo = errors.New("photo storage is not configured")
)

// registerValidators adds the custom binding rules once per process.
func registerValidators() {
	registerRules.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			v.RegisterValidation("iata", func(fl validator.FieldLevel) bool {
				return iataCode.MatchString(fl.Field().String())
			})
		}
	})
}

// respondError writes err with the status its kind maps to. Server-side
// failures are recorded on the context for the request logger and not
// echoed to the client.
func respondError(c *gin.Context, err error) {
	status := apperr.Status(err)
	body := gin.H{"error": err.Error()}

	switch {
	case status == http.StatusServiceUnavailable:
		c.Error(err)
		body = gin.H{"error": "Service temporarily unavailable", "retryable": true}
	case status >= http.StatusInternalServerError:
		c.Error(err)
		body = gin.H{"error": "Internal server error"}
	}
	c.AbortWithStatusJSON(status, body)
}

func respondBindError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
