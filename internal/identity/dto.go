package identity

import (
	apperrors "github.com/frahmantamala/factory-console/internal"
	"github.com/frahmantamala/factory-console/internal/core/common/validation"
)

// LoginDTO is the transport shape used by the HTTP handler to accept login requests.
type LoginDTO struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (d LoginDTO) Validate() *apperrors.AppError {
	v := validation.NewValidator()
	v.Field("username", d.Username).Required()
	v.Field("password", d.Password).Required()
	return v.Validate()
}

type CreateUserDTO struct {
	FirstName        string   `json:"firstName"`
	LastName         string   `json:"lastName"`
	Username         string   `json:"username"`
	Password         string   `json:"password"`
	PhoneNumber      string   `json:"phoneNumber,omitempty"`
	VehicleNumber    string   `json:"vehicleNumber,omitempty"`
	Roles            []string `json:"roles"`
	AssignedSegments []string `json:"assignedDashboards"`
	IsActive         *bool    `json:"isActive,omitempty"`
	IsRevocable      *bool    `json:"isRevocable,omitempty"`
}

func (d CreateUserDTO) Validate() *apperrors.AppError {
	v := validation.NewValidator()
	v.Field("firstName", d.FirstName).Required().MaxLength(100)
	v.Field("lastName", d.LastName).Required().MaxLength(100)
	v.Field("username", d.Username).Required().MinLength(3).MaxLength(50)
	v.Field("password", d.Password).Required().MinLength(6)
	return v.Validate()
}

// UpdateUserDTO carries a partial update; nil fields are left untouched.
type UpdateUserDTO struct {
	FirstName        *string   `json:"firstName,omitempty"`
	LastName         *string   `json:"lastName,omitempty"`
	Password         *string   `json:"password,omitempty"`
	PhoneNumber      *string   `json:"phoneNumber,omitempty"`
	VehicleNumber    *string   `json:"vehicleNumber,omitempty"`
	Roles            *[]string `json:"roles,omitempty"`
	AssignedSegments *[]string `json:"assignedDashboards,omitempty"`
	IsActive         *bool     `json:"isActive,omitempty"`
	IsRevocable      *bool     `json:"isRevocable,omitempty"`
	IsMasterLocked   *bool     `json:"isMasterLocked,omitempty"`
}

type RequestApprovalDTO struct {
	Type       RequestType `json:"type"`
	TargetID   string      `json:"targetId,omitempty"`
	TargetName string      `json:"targetName,omitempty"`
}

func (d RequestApprovalDTO) Validate() *apperrors.AppError {
	if !ValidRequestType(d.Type) {
		return apperrors.NewValidationFieldError("type", "unrecognized request type", apperrors.ErrCodeValidationFailed)
	}
	return nil
}

type ResolveRequestDTO struct {
	Approve bool `json:"approve"`
}

// AuthResponse is returned on successful login: the session snapshot plus a
// bearer token for subsequent requests.
type AuthResponse struct {
	Token   string   `json:"token"`
	Session *Session `json:"session"`
}
