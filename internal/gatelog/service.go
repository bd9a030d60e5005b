package gatelog

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

// StaffRecord is the slice of a directory user the gate log cares about.
type StaffRecord struct {
	ID            string
	FirstName     string
	LastName      string
	PhoneNumber   string
	VehicleNumber string
}

func (r StaffRecord) FullName() string {
	return strings.TrimSpace(r.FirstName + " " + r.LastName)
}

// Directory is the personnel lookup the gate log depends on. It is satisfied
// by an adapter over the identity service; keeping it local avoids a package
// cycle and keeps this engine testable with a map.
type Directory interface {
	StaffByID(id string) (StaffRecord, bool)
	FindStaffByName(fragment string) (StaffRecord, bool)
	UpdateVehicleNumber(userID, vehicleNumber string) error
}

// Service owns the gate log. Entries are persisted newest first as one
// collection; OVERSTAY is computed at read time and never written back.
type Service struct {
	store              storage.Store
	directory          Directory
	bus                *events.EventBus
	logger             *slog.Logger
	overstayThreshold  time.Duration
	defaultCountryCode string
	now                func() time.Time
	mu                 sync.Mutex
}

func NewService(store storage.Store, directory Directory, bus *events.EventBus, logger *slog.Logger, overstayThreshold time.Duration, defaultCountryCode string) *Service {
	return &Service{
		store:              store,
		directory:          directory,
		bus:                bus,
		logger:             logger,
		overstayThreshold:  overstayThreshold,
		defaultCountryCode: defaultCountryCode,
		now:                time.Now,
	}
}

// loadEntries returns the persisted log, reading corrupt or missing state as
// an empty log rather than failing the operation.
func (s *Service) loadEntries() []SecurityEntry {
	var entries []SecurityEntry
	err := s.store.Load(storage.KeyGateLog, &entries)
	if err != nil {
		if !errors.Is(err, storage.ErrKeyNotFound) {
			s.logger.Warn("gate log unreadable, starting empty", "error", err)
		}
		return []SecurityEntry{}
	}
	return entries
}

func (s *Service) saveEntries(entries []SecurityEntry) error {
	return s.store.Save(storage.KeyGateLog, entries)
}

// Create records an arrival. Staff entries must resolve against the
// directory, and a plate typed at the gate is written through to the staff
// record so the next visit prefills it.
func (s *Service) Create(dto CreateEntryDTO, actorID, actorName string) (*SecurityEntry, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry := SecurityEntry{
		ID:              uuid.NewString(),
		Category:        CategoryFor(dto.SubType),
		SubType:         dto.SubType,
		Name:            dto.Name,
		PhoneNumber:     dto.NormalizedPhone(s.defaultCountryCode),
		VehiclePresence: dto.VehiclePresence,
		VehicleNumber:   dto.VehicleNumber,
		Reason:          dto.Reason,
		InTime:          dto.InTime,
		ExpectedOutTime: dto.ExpectedOutTime,
		Remarks:         dto.Remarks,
		PhotoData:       dto.PhotoData,
		Status:          StatusIn,
		CreatedBy:       actorID,
		CreatedByName:   actorName,
		CreatedAt:       s.now(),
		UpdatedAt:       s.now(),
	}

	if dto.SubType == SubTypeStaff {
		staff, ok := s.directory.StaffByID(dto.StaffID)
		if !ok {
			return nil, apperrors.NewValidationFieldError("staffId", "staff member not found in the directory", apperrors.ErrCodeMissingStaffRef)
		}
		entry.StaffID = staff.ID

		if dto.VehiclePresence && dto.VehicleNumber != "" && dto.VehicleNumber != staff.VehicleNumber {
			if err := s.directory.UpdateVehicleNumber(staff.ID, dto.VehicleNumber); err != nil {
				s.logger.Error("failed to write plate through to staff record",
					"error", err, "staff_id", staff.ID)
			}
		}
	}

	if !entry.VehiclePresence {
		entry.VehicleNumber = ""
	}

	entries := append([]SecurityEntry{entry}, s.loadEntries()...)
	if err := s.saveEntries(entries); err != nil {
		return nil, apperrors.NewInternalError("failed to persist gate entry", err)
	}

	s.publish(events.NewEntryCreatedEvent(entry.ID, string(entry.SubType), entry.Name, actorID))
	s.logger.Info("gate entry created",
		"entry_id", entry.ID,
		"sub_type", entry.SubType,
		"created_by", actorID)
	return &entry, nil
}

// Get returns a single entry with its derived status.
func (s *Service) Get(id string) (*SecurityEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.loadEntries()
	for i := range entries {
		if entries[i].ID == id {
			e := entries[i].WithEffectiveStatus(s.now(), s.overstayThreshold)
			return &e, nil
		}
	}
	return nil, apperrors.ErrEntryNotFound
}

// MarkExit stamps the departure. Only outTime, status and updatedAt change;
// marking an entry out twice is rejected.
func (s *Service) MarkExit(id string) (*SecurityEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.loadEntries()
	idx := -1
	for i := range entries {
		if entries[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, apperrors.ErrEntryNotFound
	}
	if entries[idx].IsOut() {
		return nil, apperrors.ErrAlreadyExited
	}

	now := s.now()
	entries[idx].OutTime = &now
	entries[idx].Status = StatusOut
	entries[idx].UpdatedAt = now

	if err := s.saveEntries(entries); err != nil {
		return nil, apperrors.NewInternalError("failed to persist gate exit", err)
	}

	s.publish(events.NewEntryExitedEvent(id, now))
	s.logger.Info("gate entry marked out", "entry_id", id)

	out := entries[idx]
	return &out, nil
}

// List returns the log newest first with derived statuses. The overstay
// derivation runs before filtering so an activity filter of "active" keeps
// overstayed entries visible.
func (s *Service) List(filter ListFilter) []SecurityEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entries := s.loadEntries()

	result := make([]SecurityEntry, 0, len(entries))
	for i := range entries {
		e := entries[i].WithEffectiveStatus(now, s.overstayThreshold)
		if filter.matches(e, now) {
			result = append(result, e)
		}
	}
	return result
}

// Autofill offers a prefill for staff entries once the typed fragment is
// longer than two characters. The stored phone is split back into country
// code and local digits for the form.
func (s *Service) Autofill(fragment string, subType SubType) AutofillResult {
	if subType != SubTypeStaff || len(fragment) <= 2 {
		return AutofillResult{}
	}

	staff, ok := s.directory.FindStaffByName(fragment)
	if !ok {
		return AutofillResult{}
	}

	code, local := splitPhone(staff.PhoneNumber, s.defaultCountryCode)
	return AutofillResult{
		Matched:         true,
		StaffID:         staff.ID,
		Name:            staff.FullName(),
		CountryCode:     code,
		PhoneNumber:     local,
		VehicleNumber:   staff.VehicleNumber,
		VehiclePresence: staff.VehicleNumber != "",
	}
}

// AttachPhoto stores the capture payload verbatim against the entry.
func (s *Service) AttachPhoto(id string, dto AttachPhotoDTO) (*SecurityEntry, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.loadEntries()
	for i := range entries {
		if entries[i].ID == id {
			entries[i].PhotoData = dto.PhotoData
			entries[i].UpdatedAt = s.now()
			if err := s.saveEntries(entries); err != nil {
				return nil, apperrors.NewInternalError("failed to persist photo", err)
			}
			e := entries[i]
			return &e, nil
		}
	}
	return nil, apperrors.ErrEntryNotFound
}

// Stats computes the dashboard summary from today's derived view.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var stats Stats
	for _, raw := range s.loadEntries() {
		e := raw.WithEffectiveStatus(now, s.overstayThreshold)

		y1, m1, d1 := e.InTime.Date()
		y2, m2, d2 := now.Date()
		if y1 == y2 && m1 == m2 && d1 == d2 {
			stats.TodayEntries++
		}

		if e.Status == StatusOut {
			continue
		}
		if e.Category == CategoryPerson {
			stats.PersonnelIn++
		}
		if e.VehiclePresence {
			stats.VehiclesIn++
		}
		if e.Status == StatusOverstay {
			stats.OverstayWarnings++
		}
	}
	return stats
}

// splitPhone splits a stored "<code> <digits>" value back into parts. Values
// without a recognized prefix read as local digits under the default code.
func splitPhone(stored, defaultCode string) (code, local string) {
	if stored == "" {
		return defaultCode, ""
	}
	for _, c := range CountryCodes {
		if strings.HasPrefix(stored, c) {
			return c, strings.TrimSpace(strings.TrimPrefix(stored, c))
		}
	}
	return defaultCode, strings.TrimSpace(stored)
}

func (s *Service) publish(event events.BaseEvent) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(context.Background(), event); err != nil {
		s.logger.Error("failed to publish event", "event_type", event.EventType(), "error", err)
	}
}
