package gatelog

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/frahmantamala/factory-console/internal"
	"github.com/frahmantamala/factory-console/internal/core/common/validation"
)

var subTypeNames = []string{
	string(SubTypeVisitor),
	string(SubTypeStaff),
	string(SubTypeInputVehicle),
	string(SubTypeOutputVehicle),
	string(SubTypeScrapVehicle),
	string(SubTypeReturnInput),
	string(SubTypeReturnOutput),
}

// CreateEntryDTO carries the gate-entry form. PhoneNumber is the local part
// only; the stored value is assembled from CountryCode plus the digits.
type CreateEntryDTO struct {
	SubType         SubType    `json:"subType"`
	Name            string     `json:"name"`
	StaffID         string     `json:"staffId,omitempty"`
	CountryCode     string     `json:"countryCode,omitempty"`
	PhoneNumber     string     `json:"phoneNumber,omitempty"`
	VehiclePresence bool       `json:"vehiclePresence"`
	VehicleNumber   string     `json:"vehicleNumber,omitempty"`
	Reason          string     `json:"reason,omitempty"`
	InTime          time.Time  `json:"inTime"`
	ExpectedOutTime *time.Time `json:"expectedOutTime,omitempty"`
	Remarks         string     `json:"remarks,omitempty"`
	PhotoData       string     `json:"photoData,omitempty"`
}

func (d *CreateEntryDTO) Validate() error {
	v := validation.NewValidator()

	v.Field("name", d.Name).Required().MaxLength(120)
	v.Field("subType", string(d.SubType)).Required().OneOf(subTypeNames, apperrors.ErrCodeInvalidSubType)
	v.Field("inTime", d.InTime).Required()

	if d.PhoneNumber != "" {
		v.Field("phoneNumber", d.PhoneNumber).DigitsExactly(10, apperrors.ErrCodeInvalidPhone)
	}
	if d.CountryCode != "" {
		v.Field("countryCode", d.CountryCode).OneOf(CountryCodes, apperrors.ErrCodeInvalidPhone)
	}

	if d.SubType == SubTypeStaff {
		v.Field("staffId", d.StaffID).Custom(func(value interface{}) *apperrors.AppError {
			if s, ok := value.(string); ok && s == "" {
				return apperrors.NewValidationFieldError("staffId", "staff entries must reference a registered staff member", apperrors.ErrCodeMissingStaffRef)
			}
			return nil
		})
	} else if ValidSubType(d.SubType) {
		v.Field("reason", d.Reason).Custom(func(value interface{}) *apperrors.AppError {
			if s, ok := value.(string); ok && s == "" {
				return apperrors.NewValidationFieldError("reason", fmt.Sprintf("reason is required for %s entries", d.SubType), apperrors.ErrCodeMissingReason)
			}
			return nil
		})
	}

	if d.ExpectedOutTime != nil && !d.InTime.IsZero() && d.ExpectedOutTime.Before(d.InTime) {
		v.Field("expectedOutTime", "").Custom(func(interface{}) *apperrors.AppError {
			return apperrors.NewValidationFieldError("expectedOutTime", "expected out time must not precede in time", apperrors.ErrCodeInvalidInTime)
		})
	}

	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

// NormalizedPhone assembles the stored phone string: "<code> <digits>", with
// the deployment default code when none was picked. Empty in, empty out.
func (d *CreateEntryDTO) NormalizedPhone(defaultCode string) string {
	if d.PhoneNumber == "" {
		return ""
	}
	code := d.CountryCode
	if code == "" {
		code = defaultCode
	}
	return code + " " + d.PhoneNumber
}

// ListFilter narrows the returned log. Zero values mean "no constraint".
type ListFilter struct {
	// Window is "today" or "all".
	Window string
	// Activity is "active" or "pending" (both mean IN or OVERSTAY) or
	// "completed" (OUT).
	Activity string
	Category Category
	SubType  SubType
	// Query matches name, vehicle number or phone, case-insensitive.
	Query string
}

func (f ListFilter) matches(e SecurityEntry, now time.Time) bool {
	if f.Window == "today" {
		y1, m1, d1 := e.InTime.Date()
		y2, m2, d2 := now.Date()
		if y1 != y2 || m1 != m2 || d1 != d2 {
			return false
		}
	}
	switch f.Activity {
	case "active", "pending":
		if e.Status == StatusOut {
			return false
		}
	case "completed":
		if e.Status != StatusOut {
			return false
		}
	}
	if f.Category != "" && e.Category != f.Category {
		return false
	}
	if f.SubType != "" && e.SubType != f.SubType {
		return false
	}
	if f.Query != "" {
		q := strings.ToLower(f.Query)
		if !strings.Contains(strings.ToLower(e.Name), q) &&
			!strings.Contains(strings.ToLower(e.VehicleNumber), q) &&
			!strings.Contains(strings.ToLower(e.PhoneNumber), q) {
			return false
		}
	}
	return true
}

// AutofillResult is the prefill offered when a typed name fragment matches a
// registered staff member.
type AutofillResult struct {
	Matched         bool   `json:"matched"`
	StaffID         string `json:"staffId,omitempty"`
	Name            string `json:"name,omitempty"`
	CountryCode     string `json:"countryCode,omitempty"`
	PhoneNumber     string `json:"phoneNumber,omitempty"`
	VehicleNumber   string `json:"vehicleNumber,omitempty"`
	VehiclePresence bool   `json:"vehiclePresence"`
}

// AttachPhotoDTO carries the capture payload, stored verbatim.
type AttachPhotoDTO struct {
	PhotoData string `json:"photoData"`
}

func (d *AttachPhotoDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("photoData", d.PhotoData).Required()
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

// Stats is the security dashboard summary strip.
type Stats struct {
	PersonnelIn      int `json:"personnelIn"`
	VehiclesIn       int `json:"vehiclesIn"`
	TodayEntries     int `json:"todayEntries"`
	OverstayWarnings int `json:"overstayWarnings"`
}
