package portal

import (
	"errors"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"complaint-portal/internal/apperrors"
	"complaint-portal/internal/models"
)

const (
	MaxPhotoSize        = 5 * 1024 * 1024
	minDescriptionChars = 10
)

var (
	trackIDPattern = regexp.MustCompile(`^[A-Z0-9_]+$`)

	allowedPhotoTypes = map[string]bool{
		"image/jpeg": true,
		"image/png":  true,
		"image/gif":  true,
		"image/webp": true,
	}

	// Messages shown to the submitter, keyed by field
	fieldMessages = map[string]string{
		"category":    "Please select a category.",
		"priority":    "Please select a priority level.",
		"description": "Please provide complaint description.",
		"email":       "Please provide a valid email address.",
		"photoUrl":    "Photo URL must be a valid URL.",
	}
)

// ValidatePriority is the "priority" validation tag: one of the four levels.
func ValidatePriority(fl validator.FieldLevel) bool {
	return models.Priority(fl.Field().String()).Known()
}

// RegisterValidations adds the portal's custom tags to v.
func RegisterValidations(v *validator.Validate) error {
	return v.RegisterValidation("priority", ValidatePriority)
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.SetTagName("binding")
	if err := RegisterValidations(v); err != nil {
		panic(err)
	}
	return v
}

// TranslateValidation converts validator failures into a ValidationError
// carrying the form message of the first failing field.
func TranslateValidation(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}
	fe := fieldErrs[0]
	field := jsonFieldName(fe.Field())
	if msg, ok := fieldMessages[field]; ok {
		return apperrors.NewValidationError(field, msg)
	}
	return apperrors.NewValidationError(field, "failed on the '"+fe.Tag()+"' rule")
}

func jsonFieldName(structField string) string {
	switch structField {
	case "PhotoURL":
		return "photoUrl"
	case "RegNo":
		return "regno"
	}
	if structField == "" {
		return structField
	}
	return strings.ToLower(structField[:1]) + structField[1:]
}

// normalizeSubmission trims the form and applies the submitter defaults.
func normalizeSubmission(sub models.Submission) models.Submission {
	sub.Name = strings.TrimSpace(sub.Name)
	sub.RegNo = strings.TrimSpace(sub.RegNo)
	sub.Email = strings.TrimSpace(sub.Email)
	sub.Category = strings.TrimSpace(sub.Category)
	sub.Priority = strings.TrimSpace(sub.Priority)
	sub.Location = strings.TrimSpace(sub.Location)
	sub.Description = strings.TrimSpace(sub.Description)
	sub.Coordinates = strings.TrimSpace(sub.Coordinates)
	sub.PhotoURL = strings.TrimSpace(sub.PhotoURL)
	sub.PhotoType = strings.ToLower(strings.TrimSpace(sub.PhotoType))

	if sub.Anonymous || sub.Name == "" {
		sub.Name = models.DefaultName
	}
	return sub
}

// validateSubmission runs every rule that needs no network access. Location
// is checked separately once reverse geocoding had its chance.
func (s *Service) validateSubmission(sub models.Submission) error {
	if err := s.validate.Struct(sub); err != nil {
		return TranslateValidation(err)
	}
	if len([]rune(sub.Description)) < minDescriptionChars {
		return apperrors.NewValidationError("description", "Please provide more detailed description (minimum 10 characters).")
	}
	if sub.PhotoSize > 0 || sub.PhotoType != "" {
		if sub.PhotoSize > MaxPhotoSize {
			return apperrors.NewValidationError("photo", "Photo size must be less than 5MB.")
		}
		if !allowedPhotoTypes[sub.PhotoType] {
			return apperrors.NewValidationError("photo", "Please upload a valid image file (JPG, PNG, GIF, WebP).")
		}
	}
	return nil
}

// ValidateTrackID checks the format of a track id entered by the public.
func ValidateTrackID(trackID string) error {
	if trackID == "" {
		return apperrors.NewValidationError("trackId", "Please enter a Track ID")
	}
	if !trackIDPattern.MatchString(trackID) {
		return apperrors.NewValidationError("trackId", "Invalid Track ID format. Please check and try again.")
	}
	return nil
}

// ParseStatus accepts only the three known statuses.
func ParseStatus(value string) (models.Status, error) {
	status := models.Status(strings.TrimSpace(value))
	if !status.Known() {
		return "", apperrors.NewValidationError("status", "Unknown status: "+value)
	}
	return status, nil
}
