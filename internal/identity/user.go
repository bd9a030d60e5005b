package identity

import "time"

// User is a personnel-directory record. AssignedSegments is an open string
// set: baseline dashboard names plus any ad-hoc segment typed in by an
// operator.
type User struct {
	ID               string    `json:"id"`
	FirstName        string    `json:"firstName"`
	LastName         string    `json:"lastName"`
	Username         string    `json:"username"`
	Password         string    `json:"password,omitempty"`
	PhoneNumber      string    `json:"phoneNumber,omitempty"`
	VehicleNumber    string    `json:"vehicleNumber,omitempty"`
	Roles            []string  `json:"roles"`
	AssignedSegments []string  `json:"assignedDashboards"`
	IsActive         bool      `json:"isActive"`
	IsRevocable      bool      `json:"isRevocable"`
	IsMasterAdmin    bool      `json:"isMasterAdmin,omitempty"`
	IsMasterLocked   bool      `json:"isMasterLocked,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

func (u *User) HasSegment(segment string) bool {
	for _, s := range u.AssignedSegments {
		if s == segment {
			return true
		}
	}
	return false
}

// Session is the authenticated state. The persisted form is an advisory
// rehydration cache; authorization always re-reads the directory.
type Session struct {
	User            *User `json:"user"`
	IsAuthenticated bool  `json:"isAuthenticated"`
}

type RequestType string

const (
	RequestDeleteMember RequestType = "DELETE_MEMBER"
	RequestEditAdmin    RequestType = "EDIT_ADMIN"
	RequestMasterAccess RequestType = "MASTER_ACCESS"
)

type RequestStatus string

const (
	RequestPending  RequestStatus = "PENDING"
	RequestApproved RequestStatus = "APPROVED"
	RequestRejected RequestStatus = "REJECTED"
)

// AdminRequest asks the primary admin to sign off on a sensitive directory
// mutation. PENDING resolves exactly once, to APPROVED or REJECTED.
type AdminRequest struct {
	ID           string        `json:"id"`
	FromUserID   string        `json:"fromUserId"`
	FromUserName string        `json:"fromUserName"`
	Type         RequestType   `json:"type"`
	TargetID     string        `json:"targetId,omitempty"`
	TargetName   string        `json:"targetName,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
	Status       RequestStatus `json:"status"`
}

func (r *AdminRequest) IsPending() bool {
	return r.Status == RequestPending
}

func ValidRequestType(t RequestType) bool {
	switch t {
	case RequestDeleteMember, RequestEditAdmin, RequestMasterAccess:
		return true
	}
	return false
}

// SeedUsers is the built-in directory used when nothing has been persisted
// yet, or when the persisted payload cannot be decoded. The credentials are
// the legacy plaintext seed accounts.
func SeedUsers() []User {
	now := time.Now()
	return []User{
		{
			ID:               "1",
			FirstName:        "Admin",
			LastName:         "Master",
			Username:         "admin",
			Password:         "password123",
			Roles:            []string{"Administrator"},
			AssignedSegments: []string{"Master"},
			IsActive:         true,
			IsMasterAdmin:    true,
			CreatedAt:        now,
		},
		{
			ID:               "2",
			FirstName:        "Sales",
			LastName:         "Manager",
			Username:         "sales01",
			Password:         "password123",
			Roles:            []string{"Sales Head"},
			AssignedSegments: []string{"Sales Team"},
			IsActive:         true,
			CreatedAt:        now,
		},
		{
			ID:               "3",
			FirstName:        "Security",
			LastName:         "Officer",
			Username:         "sec01",
			Password:         "password123",
			Roles:            []string{"Security Head"},
			AssignedSegments: []string{"Security"},
			IsActive:         true,
			CreatedAt:        now,
		},
	}
}
