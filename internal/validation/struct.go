package validation

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/GIScience/climatoology-go/internal/model"
)

// validate is the singleton struct-level validator used for ambient
// request binding (as opposed to the dynamic, schema-driven operator
// parameter validation in params.go).
var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterValidation("plugin_teaser", validateTeaser)
	validate.RegisterValidation("plugin_name", validatePluginName)
}

// ValidateStruct validates a struct and returns go-playground's
// validator.ValidationErrors unwrapped.
func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

// BindAndValidate binds a JSON request body and validates it in one
// step, writing a 400 response and returning false on any failure.
func BindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return false
	}
	if err := ValidateStruct(req); err != nil {
		fields := make(map[string]string)
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, e := range verrs {
				fields[strings.ToLower(e.Field())] = formatFieldError(e)
			}
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": fields})
		return false
	}
	return true
}

func formatFieldError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", e.Field())
	case "plugin_teaser":
		return "teaser must be 20-150 characters, start upper-case and end with '.'"
	case "plugin_name":
		return "plugin name must contain only letters, spaces and hyphens"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	default:
		return fmt.Sprintf("validation failed on %q", e.Tag())
	}
}

func validateTeaser(fl validator.FieldLevel) bool {
	return model.ValidateTeaser(fl.Field().String()) == nil
}

func validatePluginName(fl validator.FieldLevel) bool {
	return model.ValidateName(fl.Field().String()) == nil
}
