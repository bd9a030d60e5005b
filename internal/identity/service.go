package identity

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/frahmantamala/factory-console/internal"
	"github.com/frahmantamala/factory-console/internal/core/events"
	"github.com/frahmantamala/factory-console/internal/storage"
)

// Service owns the user directory, the session record and the admin-approval
// state machine. Every operation re-reads its collection from the store so
// decisions never ride on stale in-memory state; writes are serialized with a
// mutex because the durability unit is the whole collection.
type Service struct {
	store           storage.Store
	tokens          *SessionTokenGenerator
	bus             *events.EventBus
	logger          *slog.Logger
	approvalTimeout time.Duration
	mu              sync.Mutex
}

func NewService(store storage.Store, tokens *SessionTokenGenerator, bus *events.EventBus, logger *slog.Logger, approvalTimeout time.Duration) *Service {
	return &Service{
		store:           store,
		tokens:          tokens,
		bus:             bus,
		logger:          logger,
		approvalTimeout: approvalTimeout,
	}
}

// loadUsers returns the persisted directory, falling back to the built-in
// seed accounts when nothing is persisted or the payload is corrupt. Corrupt
// state is never surfaced to callers.
func (s *Service) loadUsers() []User {
	var users []User
	err := s.store.Load(storage.KeyUsers, &users)
	if err != nil {
		if !errors.Is(err, storage.ErrKeyNotFound) {
			s.logger.Warn("user directory unreadable, using seed accounts", "error", err)
		}
		users = SeedUsers()
		if saveErr := s.store.Save(storage.KeyUsers, users); saveErr != nil {
			s.logger.Error("failed to persist seed directory", "error", saveErr)
		}
	}
	return users
}

func (s *Service) saveUsers(users []User) error {
	return s.store.Save(storage.KeyUsers, users)
}

func (s *Service) loadRequests() []AdminRequest {
	var requests []AdminRequest
	err := s.store.Load(storage.KeyRequests, &requests)
	if err != nil {
		if !errors.Is(err, storage.ErrKeyNotFound) {
			s.logger.Warn("approval requests unreadable, starting empty", "error", err)
		}
		return []AdminRequest{}
	}
	return requests
}

// Directory returns the full user directory.
func (s *Service) Directory() []User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadUsers()
}

func (s *Service) GetUser(id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := s.loadUsers()
	for i := range users {
		if users[i].ID == id {
			u := users[i]
			return &u, nil
		}
	}
	return nil, apperrors.ErrUserNotFound
}

// GetUserByUsername looks a user up by exact username match.
func (s *Service) GetUserByUsername(username string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := s.loadUsers()
	for i := range users {
		if users[i].Username == username {
			u := users[i]
			return &u, nil
		}
	}
	return nil, apperrors.ErrUserNotFound
}

// Authenticate checks credentials against the directory as currently
// persisted and, on success, writes the session record and issues a bearer
// token. Inactive accounts fail the same way as bad credentials.
func (s *Service) Authenticate(dto LoginDTO) (*AuthResponse, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	users := s.loadUsers()
	for i := range users {
		u := users[i]
		if u.Username != dto.Username {
			continue
		}
		if !VerifyCredential(u.Password, dto.Password) || !u.IsActive {
			break
		}

		session := &Session{User: &u, IsAuthenticated: true}
		if err := s.store.Save(storage.KeySession, session); err != nil {
			s.logger.Error("failed to persist session", "error", err, "user_id", u.ID)
		}

		token, err := s.tokens.Generate(u.ID, u.Username)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to issue session token", err)
		}

		s.logger.Info("user authenticated", "user_id", u.ID, "username", u.Username)
		return &AuthResponse{Token: token, Session: session}, nil
	}

	s.logger.Warn("authentication failed", "username", dto.Username)
	return nil, apperrors.ErrInvalidCredentials
}

// Logout clears the session unconditionally; there is no error path for the
// caller even when persistence fails.
func (s *Service) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()

	empty := &Session{User: nil, IsAuthenticated: false}
	if err := s.store.Save(storage.KeySession, empty); err != nil {
		s.logger.Error("failed to persist logout", "error", err)
	}
}

// CurrentSession returns the persisted session record, an advisory cache
// used to survive restarts. A corrupt record reads as signed out.
func (s *Service) CurrentSession() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	var session Session
	if err := s.store.Load(storage.KeySession, &session); err != nil {
		return &Session{User: nil, IsAuthenticated: false}
	}
	return &session
}

func (s *Service) CreateUser(dto CreateUserDTO) (*User, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	users := s.loadUsers()
	for i := range users {
		if users[i].Username == dto.Username {
			return nil, apperrors.ErrDuplicateUsername
		}
	}

	isActive := true
	if dto.IsActive != nil {
		isActive = *dto.IsActive
	}
	isRevocable := true
	if dto.IsRevocable != nil {
		isRevocable = *dto.IsRevocable
	}

	user := User{
		ID:               uuid.NewString(),
		FirstName:        dto.FirstName,
		LastName:         dto.LastName,
		Username:         dto.Username,
		Password:         dto.Password,
		PhoneNumber:      dto.PhoneNumber,
		VehicleNumber:    dto.VehicleNumber,
		Roles:            dto.Roles,
		AssignedSegments: dto.AssignedSegments,
		IsActive:         isActive,
		IsRevocable:      isRevocable,
		CreatedAt:        time.Now(),
	}

	users = append(users, user)
	if err := s.saveUsers(users); err != nil {
		return nil, apperrors.NewInternalError("failed to persist user", err)
	}

	s.logger.Info("user created", "user_id", user.ID, "username", user.Username)
	return &user, nil
}

// UpdateUser merges a partial update. The master admin cannot be deactivated
// by anyone but themselves. When the update targets the session user the
// persisted session snapshot is refreshed in the same operation.
func (s *Service) UpdateUser(id string, dto UpdateUserDTO, actorID string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateUserLocked(id, dto, actorID)
}

func (s *Service) updateUserLocked(id string, dto UpdateUserDTO, actorID string) (*User, error) {
	users := s.loadUsers()
	idx := -1
	for i := range users {
		if users[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, apperrors.ErrUserNotFound
	}

	target := &users[idx]
	if target.IsMasterAdmin && dto.IsActive != nil && !*dto.IsActive && actorID != target.ID {
		return nil, apperrors.ErrProtectedRecord
	}

	if dto.FirstName != nil {
		target.FirstName = *dto.FirstName
	}
	if dto.LastName != nil {
		target.LastName = *dto.LastName
	}
	if dto.Password != nil {
		target.Password = *dto.Password
	}
	if dto.PhoneNumber != nil {
		target.PhoneNumber = *dto.PhoneNumber
	}
	if dto.VehicleNumber != nil {
		target.VehicleNumber = *dto.VehicleNumber
	}
	if dto.Roles != nil {
		target.Roles = *dto.Roles
	}
	if dto.AssignedSegments != nil {
		target.AssignedSegments = *dto.AssignedSegments
	}
	if dto.IsActive != nil {
		target.IsActive = *dto.IsActive
	}
	if dto.IsRevocable != nil {
		target.IsRevocable = *dto.IsRevocable
	}
	if dto.IsMasterLocked != nil {
		target.IsMasterLocked = *dto.IsMasterLocked
	}

	if err := s.saveUsers(users); err != nil {
		return nil, apperrors.NewInternalError("failed to persist user update", err)
	}

	s.refreshSessionSnapshot(target)

	updated := *target
	return &updated, nil
}

// refreshSessionSnapshot keeps the persisted session in step with directory
// edits so subsequent authorization checks observe new flags immediately.
func (s *Service) refreshSessionSnapshot(u *User) {
	var session Session
	if err := s.store.Load(storage.KeySession, &session); err != nil {
		return
	}
	if session.User == nil || session.User.ID != u.ID {
		return
	}
	snapshot := *u
	session.User = &snapshot
	if err := s.store.Save(storage.KeySession, &session); err != nil {
		s.logger.Error("failed to refresh session snapshot", "error", err, "user_id", u.ID)
	}
}

// DeleteUser removes a directory record. Non-revocable records and the
// master admin are protected.
func (s *Service) DeleteUser(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := s.loadUsers()
	idx := -1
	for i := range users {
		if users[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return apperrors.ErrUserNotFound
	}
	if !users[idx].IsRevocable || users[idx].IsMasterAdmin {
		return apperrors.ErrProtectedRecord
	}

	users = append(users[:idx], users[idx+1:]...)
	if err := s.saveUsers(users); err != nil {
		return apperrors.NewInternalError("failed to persist user deletion", err)
	}

	s.logger.Info("user deleted", "user_id", id)
	return nil
}

// LockAccess bars a user from sensitive areas until the primary admin
// clears it with UnlockAccess.
func (s *Service) LockAccess(userID string) error {
	locked := true
	_, err := s.UpdateUser(userID, UpdateUserDTO{IsMasterLocked: &locked}, userID)
	if err != nil {
		return err
	}
	s.publish(events.NewAccessLockedEvent(userID, "manual lock"))
	return nil
}

func (s *Service) UnlockAccess(userID string) error {
	unlocked := false
	_, err := s.UpdateUser(userID, UpdateUserDTO{IsMasterLocked: &unlocked}, userID)
	return err
}

// Requests returns the persisted approval requests, newest first.
func (s *Service) Requests() []AdminRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadRequests()
}

// RequestApproval records a PENDING request and schedules its auto-timeout
// resolution. The timer is never cancelled; firing against an already
// resolved request is a no-op.
func (s *Service) RequestApproval(requesterID, requesterName string, dto RequestApprovalDTO) (*AdminRequest, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	request := AdminRequest{
		ID:           uuid.NewString(),
		FromUserID:   requesterID,
		FromUserName: requesterName,
		Type:         dto.Type,
		TargetID:     dto.TargetID,
		TargetName:   dto.TargetName,
		Timestamp:    time.Now(),
		Status:       RequestPending,
	}

	requests := append(s.loadRequests(), request)
	if err := s.store.Save(storage.KeyRequests, requests); err != nil {
		return nil, apperrors.NewInternalError("failed to persist approval request", err)
	}

	time.AfterFunc(s.approvalTimeout, func() {
		s.autoResolveRequest(request.ID)
	})

	s.logger.Info("approval requested",
		"request_id", request.ID,
		"type", request.Type,
		"requester_id", requesterID)
	return &request, nil
}

// ResolveRequest applies the single permitted outcome transition. Calls on a
// non-PENDING request are no-ops: the current record is returned and no side
// effect is applied twice.
func (s *Service) ResolveRequest(id string, approve bool) (*AdminRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	requests := s.loadRequests()
	idx := -1
	for i := range requests {
		if requests[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, apperrors.ErrRequestNotFound
	}

	if !requests[idx].IsPending() {
		resolved := requests[idx]
		return &resolved, nil
	}

	if approve {
		requests[idx].Status = RequestApproved
	} else {
		requests[idx].Status = RequestRejected
	}

	if err := s.store.Save(storage.KeyRequests, requests); err != nil {
		return nil, apperrors.NewInternalError("failed to persist request resolution", err)
	}

	resolved := requests[idx]
	s.publish(events.NewRequestResolvedEvent(resolved.ID, string(resolved.Type), string(resolved.Status), false))
	s.logger.Info("approval request resolved", "request_id", id, "status", resolved.Status)
	return &resolved, nil
}

// HasApprovedRequest reports whether an APPROVED request of the given type
// exists for the target, which clears a non-primary actor for the gated
// action.
func (s *Service) HasApprovedRequest(t RequestType, targetID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	requests := s.loadRequests()
	for i := range requests {
		if requests[i].Type == t && requests[i].Status == RequestApproved {
			if targetID == "" || requests[i].TargetID == targetID {
				return true
			}
		}
	}
	return false
}

// autoResolveRequest fires once per request when the approval timeout
// elapses. A request still PENDING is rejected and its requester's elevated
// access is locked; anything else is left untouched.
func (s *Service) autoResolveRequest(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	requests := s.loadRequests()
	idx := -1
	for i := range requests {
		if requests[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 || !requests[idx].IsPending() {
		return
	}

	requests[idx].Status = RequestRejected
	if err := s.store.Save(storage.KeyRequests, requests); err != nil {
		s.logger.Error("failed to persist auto-rejection", "error", err, "request_id", id)
		return
	}

	requesterID := requests[idx].FromUserID
	locked := true
	if _, err := s.updateUserLocked(requesterID, UpdateUserDTO{IsMasterLocked: &locked}, requesterID); err != nil {
		s.logger.Error("failed to lock requester after timeout", "error", err, "user_id", requesterID)
	}

	s.publish(events.NewRequestResolvedEvent(id, string(requests[idx].Type), string(RequestRejected), true))
	s.publish(events.NewAccessLockedEvent(requesterID, "approval timeout"))
	s.logger.Warn("approval request timed out",
		"request_id", id,
		"requester_id", requesterID)
}

// FindStaffByName does a case-insensitive substring match against full
// names, used by the gate-log staff autofill.
func (s *Service) FindStaffByName(fragment string) (*User, bool) {
	if len(fragment) <= 2 {
		return nil, false
	}
	needle := strings.ToLower(fragment)

	s.mu.Lock()
	defer s.mu.Unlock()

	users := s.loadUsers()
	for i := range users {
		if strings.Contains(strings.ToLower(users[i].FullName()), needle) {
			u := users[i]
			return &u, true
		}
	}
	return nil, false
}

// UpdateVehicleNumber writes a plate change through to the directory; this
// is the gate-log engine's only external mutation.
func (s *Service) UpdateVehicleNumber(userID, vehicleNumber string) error {
	_, err := s.UpdateUser(userID, UpdateUserDTO{VehicleNumber: &vehicleNumber}, userID)
	return err
}

func (s *Service) publish(event events.BaseEvent) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(context.Background(), event); err != nil {
		s.logger.Error("failed to publish event", "event_type", event.EventType(), "error", err)
	}
}
