package gatelog

import (
	"time"
)

type Category string

const (
	CategoryPerson   Category = "Person"
	CategoryMaterial Category = "Material"
)

type SubType string

const (
	SubTypeVisitor       SubType = "Visitor"
	SubTypeStaff         SubType = "Staff"
	SubTypeInputVehicle  SubType = "Input Material Vehicle"
	SubTypeOutputVehicle SubType = "Output Material Vehicle"
	SubTypeScrapVehicle  SubType = "Scrap Material Vehicle"
	SubTypeReturnInput   SubType = "Return Material Input"
	SubTypeReturnOutput  SubType = "Return Material Output"
)

type Status string

const (
	StatusIn       Status = "IN"
	StatusOut      Status = "OUT"
	StatusOverstay Status = "OVERSTAY"
)

// CountryCodes are the dialing prefixes the autofill recognizes when
// splitting a stored phone number back into code and local digits.
var CountryCodes = []string{"+91", "+1", "+44", "+971", "+61", "+86", "+49", "+33", "+81"}

// SecurityEntry is one person-or-material movement event, from arrival to
// departure. OVERSTAY is never persisted: it is derived from inTime and the
// configured threshold whenever the stored status is IN.
type SecurityEntry struct {
	ID              string     `json:"id"`
	Category        Category   `json:"category"`
	SubType         SubType    `json:"subType"`
	Name            string     `json:"name"`
	StaffID         string     `json:"staffId,omitempty"`
	PhoneNumber     string     `json:"phoneNumber,omitempty"`
	VehiclePresence bool       `json:"vehiclePresence"`
	VehicleNumber   string     `json:"vehicleNumber,omitempty"`
	Reason          string     `json:"reason,omitempty"`
	InTime          time.Time  `json:"inTime"`
	ExpectedOutTime *time.Time `json:"expectedOutTime,omitempty"`
	OutTime         *time.Time `json:"outTime,omitempty"`
	Remarks         string     `json:"remarks,omitempty"`
	PhotoData       string     `json:"photoUrl,omitempty"`
	Status          Status     `json:"status"`
	CreatedBy       string     `json:"createdBy"`
	CreatedByName   string     `json:"createdByName"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// EffectiveStatus derives the read-time status: an IN entry past the
// threshold reads as OVERSTAY (boundary inclusive), and reverts to IN when
// recomputed before it. Stored state is never touched.
func (e *SecurityEntry) EffectiveStatus(now time.Time, threshold time.Duration) Status {
	if e.Status == StatusIn && now.Sub(e.InTime) >= threshold {
		return StatusOverstay
	}
	return e.Status
}

// WithEffectiveStatus returns a copy carrying the derived status.
func (e SecurityEntry) WithEffectiveStatus(now time.Time, threshold time.Duration) SecurityEntry {
	e.Status = e.EffectiveStatus(now, threshold)
	return e
}

func (e *SecurityEntry) IsOut() bool {
	return e.Status == StatusOut
}

func ValidSubType(s SubType) bool {
	switch s {
	case SubTypeVisitor, SubTypeStaff, SubTypeInputVehicle, SubTypeOutputVehicle,
		SubTypeScrapVehicle, SubTypeReturnInput, SubTypeReturnOutput:
		return true
	}
	return false
}

// CategoryFor maps a sub-type to its category: people walk in, everything
// else rolls in.
func CategoryFor(s SubType) Category {
	switch s {
	case SubTypeVisitor, SubTypeStaff:
		return CategoryPerson
	default:
		return CategoryMaterial
	}
}
