package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/iliyamo/union-registry/internal/model"
)

// MemberInput is the writable part of a member record as submitted by a
// client.  Dates use YYYY-MM-DD.  A nil or empty MembershipEndDate means
// the membership is open.
type MemberInput struct {
	FullName            string  `json:"full_name" validate:"required,max=255"`
	EmployeeID          string  `json:"employee_id" validate:"required,max=50"`
	CompanyName         string  `json:"company_name" validate:"required,max=255"`
	Department          string  `json:"department" validate:"required,max=255"`
	PhoneNumber         string  `json:"phone_number" validate:"required,max=20"`
	Email               string  `json:"email" validate:"required,max=255,email"`
	MembershipStartDate string  `json:"membership_start_date" validate:"required,datetime=2006-01-02"`
	MembershipEndDate   *string `json:"membership_end_date" validate:"omitempty,datetime=2006-01-02"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report JSON names so messages line up with the request body
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (in *MemberInput) normalize() {
	in.FullName = strings.TrimSpace(in.FullName)
	in.EmployeeID = strings.TrimSpace(in.EmployeeID)
	in.CompanyName = strings.TrimSpace(in.CompanyName)
	in.Department = strings.TrimSpace(in.Department)
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)
	in.Email = strings.TrimSpace(in.Email)
	in.MembershipStartDate = strings.TrimSpace(in.MembershipStartDate)
	if in.MembershipEndDate != nil {
		end := strings.TrimSpace(*in.MembershipEndDate)
		if end == "" {
			in.MembershipEndDate = nil
		} else {
			in.MembershipEndDate = &end
		}
	}
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "email":
		return "must be a valid email address"
	case "datetime":
		return "must be a date in YYYY-MM-DD format"
	}
	return "is invalid"
}

// validatedMember is the outcome of a successful validation pass.
type validatedMember struct {
	start time.Time
	end   *time.Time
}

// validateMember runs the field rules and, when the email and employee id
// are well formed, the uniqueness checks against the store.  excludeID is
// the record being updated (0 on create).  All failures are returned
// together as one *ValidationError.
func (s *MemberService) validateMember(ctx context.Context, in *MemberInput, excludeID uint64) (validatedMember, error) {
	in.normalize()
	verr := newValidationError()

	if err := validate.Struct(in); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return validatedMember{}, err
		}
		for _, fe := range fieldErrs {
			verr.add(fe.Field(), tagMessage(fe))
		}
	}

	var out validatedMember
	if _, bad := verr.Fields["membership_start_date"]; !bad {
		out.start, _ = time.Parse(model.DateLayout, in.MembershipStartDate)
	}
	if _, bad := verr.Fields["membership_end_date"]; !bad && in.MembershipEndDate != nil {
		end, _ := time.Parse(model.DateLayout, *in.MembershipEndDate)
		out.end = &end
		if !out.start.IsZero() && !end.After(out.start) {
			verr.add("membership_end_date", "must be after membership_start_date")
		}
	}

	for _, check := range []struct{ field, value string }{
		{"employee_id", in.EmployeeID},
		{"email", in.Email},
	} {
		if _, bad := verr.Fields[check.field]; bad {
			continue
		}
		taken, err := s.store.ExistsByField(ctx, check.field, check.value, excludeID)
		if err != nil {
			return validatedMember{}, fmt.Errorf("check %s uniqueness: %w", check.field, err)
		}
		if taken {
			verr.addDuplicate(check.field)
		}
	}

	if !verr.empty() {
		return validatedMember{}, verr
	}
	return out, nil
}
