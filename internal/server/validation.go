package server

import (
	"reflect"
	"strings"
	"sync"

	"github.com/aspirtakis/alekostrader-auth/internal/domain"
	"github.com/aspirtakis/alekostrader-auth/internal/keygen"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var registerOnce sync.Once

// registerValidators adds the licensekey rule to gin's validator and reports
// json field names in validation errors.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		err := v.RegisterValidation("licensekey", func(fl validator.FieldLevel) bool {
			return keygen.ValidFormat(fl.Field().String())
		})
		if err != nil {
			panic(errors.Wrap(err, "register licensekey validator"))
		}
	})
}

// bind decodes the JSON body into dst and converts binding failures to
// domain errors. An empty body is treated as an empty object.
func bind(c *gin.Context, dst any) error {
	var err error
	if c.Request.ContentLength == 0 {
		err = binding.Validator.ValidateStruct(dst)
	} else {
		err = c.ShouldBindJSON(dst)
	}
	if err == nil {
		return nil
	}
	return bindingError(err)
}

func bindingError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return domain.ErrInvalidInput.With("malformed JSON body").Wrap(err)
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return domain.ErrMissingParameter.With(fe.Field() + " required")
	case "licensekey":
		return domain.ErrInvalidFormat.With("invalid " + fe.Field() + " format, must be XXXX-XXXX-XXXX-XXXX")
	case "email":
		return domain.ErrInvalidInput.With(fe.Field() + " must be a valid email address")
	default:
		return domain.ErrInvalidInput.With("invalid " + fe.Field())
	}
}
