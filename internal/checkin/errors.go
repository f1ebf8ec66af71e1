package checkin

import (
	"errors"

	"github.com/your-org/presensi/internal/models"
)

// Conditions reported to the caller. Each is a distinct sentinel so clients
// can tell the user what to fix; match them with errors.Is.
var (
	ErrDeviceUnavailable   = errors.New("camera unavailable")
	ErrLocationUnavailable = errors.New("location unavailable")
	ErrOracleLoadFailed    = errors.New("face models failed to load")
	ErrExtractionFailed    = errors.New("descriptor extraction failed")
	ErrUploadFailed        = errors.New("photo upload failed")
	ErrRecordWriteFailed   = errors.New("check-in record write failed")

	ErrSubmitNotAllowed  = errors.New("submit requires a verified face inside the geofence")
	ErrNoActiveSession   = errors.New("no active check-in session")
	ErrInvalidLabel      = errors.New("invalid session label")
	ErrPersonNotEnrolled = errors.New("person has no enrolled face")
)

// Code returns the stable wire code for err, or "internal" when err is none
// of the check-in conditions.
func Code(err error) string {
	switch {
	case errors.Is(err, models.ErrDuplicateCheckIn):
		return "already_checked_in"
	case errors.Is(err, ErrDeviceUnavailable):
		return "device_unavailable"
	case errors.Is(err, ErrLocationUnavailable):
		return "location_unavailable"
	case errors.Is(err, ErrOracleLoadFailed):
		return "oracle_load_failed"
	case errors.Is(err, ErrExtractionFailed):
		return "extraction_failed"
	case errors.Is(err, ErrUploadFailed):
		return "upload_failed"
	case errors.Is(err, ErrRecordWriteFailed):
		return "record_write_failed"
	case errors.Is(err, ErrSubmitNotAllowed):
		return "submit_not_allowed"
	case errors.Is(err, ErrNoActiveSession):
		return "no_active_session"
	case errors.Is(err, ErrInvalidLabel):
		return "invalid_label"
	case errors.Is(err, ErrPersonNotEnrolled):
		return "person_not_enrolled"
	default:
		return "internal"
	}
}
