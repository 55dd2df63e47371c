package availability

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/meinhoongagan/availability-engine/models"
	"github.com/meinhoongagan/availability-engine/timegrid"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared struct validator, keyed by json field names.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// ValidateStruct runs the tag rules of v and converts failures into a
// *ValidationError keyed by json path.
func ValidateStruct(v interface{}) *ValidationError {
	verr := &ValidationError{}
	err := Validator().Struct(v)
	if err == nil {
		return verr
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		verr.Add("body", err.Error())
		return verr
	}
	for _, fe := range fieldErrs {
		verr.Add(fieldPath(fe.Namespace()), describe(fe))
	}
	return verr
}

// ValidateProfile checks a profile before it replaces the owner's settings.
// Cross-field rules (window order, break placement, capacity order) run after
// the struct tags so every problem is reported in one pass.
func ValidateProfile(p models.AvailabilityProfile) error {
	verr := ValidateStruct(p)

	start, okStart := timegrid.ParseHHMM(p.Start)
	end, okEnd := timegrid.ParseHHMM(p.End)
	if p.Start != "" && !okStart {
		verr.Add("start", "must be a 24-hour HH:MM time")
	}
	if p.End != "" && !okEnd {
		verr.Add("end", "must be a 24-hour HH:MM time")
	}
	if okStart && okEnd && end <= start {
		verr.Add("end", "must be after start")
	}

	if p.MinPerDay > p.MaxPerDay {
		verr.Add("minPerDay", "must not exceed maxPerDay")
	}
	if p.AvailabilityStatus != "" && !p.AvailabilityStatus.Valid() {
		verr.Add("availabilityStatus", "must be one of available, limited, away")
	}

	seen := make(map[int]bool, len(p.Days))
	for i, d := range p.Days {
		if seen[d] {
			verr.Add(fmt.Sprintf("days[%d]", i), "duplicate weekday")
		}
		seen[d] = true
	}

	prevEnd := -1
	for i, w := range p.BreakTimes {
		field := fmt.Sprintf("breakTimes[%d]", i)
		bs, okBS := timegrid.ParseHHMM(w.Start)
		be, okBE := timegrid.ParseHHMM(w.End)
		switch {
		case !okBS || !okBE:
			verr.Add(field, "start and end must be 24-hour HH:MM times")
			continue
		case be <= bs:
			verr.Add(field, "break end must be after break start")
			continue
		case okStart && okEnd && (bs < start || be > end):
			verr.Add(field, "break must lie inside the daily window")
		case bs < prevEnd:
			verr.Add(field, "breaks must be ordered and must not overlap")
		}
		prevEnd = be
	}

	if verr.HasErrors() {
		return verr
	}
	return nil
}

func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte", "min":
		return "must be at least " + fe.Param()
	case "lte", "max":
		return "must be at most " + fe.Param()
	case "gtefield":
		return "must be at least " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	default:
		return "failed " + fe.Tag() + " validation"
	}
}
