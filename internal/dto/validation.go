package dto

import (
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// RegisterValidations installs custom binding rules on gin's validator
// engine. Call once during startup, before the router handles traffic.
func RegisterValidations() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}

	// safe_filename rejects names that could escape the storage directory.
	_ = v.RegisterValidation("safe_filename", func(fl validator.FieldLevel) bool {
		name := fl.Field().String()
		if name == "" || name == "." || name == ".." {
			return false
		}
		return !strings.ContainsAny(name, `/\`)
	})
}
