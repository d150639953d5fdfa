package task

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the submission contract: a non-empty instruction, an output
// path and at least one input document.
func (p Params) Validate() error {
	if strings.TrimSpace(p.Instruction) == "" {
		return &ValidationError{Field: "instruction", Reason: "required"}
	}
	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &ValidationError{Field: verrs[0].Field(), Reason: verrs[0].Tag()}
		}
		return &ValidationError{Field: "params", Reason: err.Error()}
	}
	if p.SpecDoc == "" && p.DiagramDoc == "" {
		return &ValidationError{Field: "spec_doc", Reason: "at least one of spec_doc or diagram_doc is required"}
	}
	return nil
}
