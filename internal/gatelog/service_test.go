package gatelog_test

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/frahmantamala/factory-console/internal"
	"github.com/frahmantamala/factory-console/internal/gatelog"
	"github.com/frahmantamala/factory-console/internal/storage"
)

func TestGateLogService(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "GateLog Service Suite")
}

// Mock store for testing: one JSON document per key, like the real adapter.
type mockStore struct {
	data    map[string][]byte
	saveErr error
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string][]byte)}
}

func (m *mockStore) Load(key string, v any) error {
	b, ok := m.data[key]
	if !ok {
		return storage.ErrKeyNotFound
	}
	if err := json.Unmarshal(b, v); err != nil {
		return storage.ErrMalformedPayload
	}
	return nil
}

func (m *mockStore) Save(key string, v any) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.data[key] = b
	return nil
}

// Mock directory for testing.
type mockDirectory struct {
	staff       map[string]gatelog.StaffRecord
	plateWrites map[string]string
	updateErr   error
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{
		staff:       make(map[string]gatelog.StaffRecord),
		plateWrites: make(map[string]string),
	}
}

func (m *mockDirectory) StaffByID(id string) (gatelog.StaffRecord, bool) {
	rec, ok := m.staff[id]
	return rec, ok
}

func (m *mockDirectory) FindStaffByName(fragment string) (gatelog.StaffRecord, bool) {
	for _, rec := range m.staff {
		if fragment != "" {
			return rec, true
		}
	}
	return gatelog.StaffRecord{}, false
}

func (m *mockDirectory) UpdateVehicleNumber(userID, vehicleNumber string) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.plateWrites[userID] = vehicleNumber
	rec := m.staff[userID]
	rec.VehicleNumber = vehicleNumber
	m.staff[userID] = rec
	return nil
}

func visitorDTO(name string) gatelog.CreateEntryDTO {
	return gatelog.CreateEntryDTO{
		SubType: gatelog.SubTypeVisitor,
		Name:    name,
		Reason:  "meeting",
		InTime:  time.Now(),
	}
}

var _ = Describe("GateLogService", func() {
	var (
		service   *gatelog.Service
		store     *mockStore
		directory *mockDirectory
		logger    *slog.Logger
	)

	BeforeEach(func() {
		store = newMockStore()
		directory = newMockDirectory()
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		service = gatelog.NewService(store, directory, nil, logger, 8*time.Hour, "+91")
	})

	Describe("Create", func() {
		It("records a visitor entry with IN status", func() {
			entry, err := service.Create(visitorDTO("Ravi Kumar"), "sec-1", "Security One")

			Expect(err).ToNot(HaveOccurred())
			Expect(entry.ID).ToNot(BeEmpty())
			Expect(entry.Status).To(Equal(gatelog.StatusIn))
			Expect(entry.Category).To(Equal(gatelog.CategoryPerson))
			Expect(entry.CreatedBy).To(Equal("sec-1"))
			Expect(entry.OutTime).To(BeNil())
		})

		It("rejects a visitor entry without a reason", func() {
			dto := visitorDTO("Ravi Kumar")
			dto.Reason = ""

			_, err := service.Create(dto, "sec-1", "Security One")

			Expect(err).To(HaveOccurred())
			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(apperrors.ErrorTypeValidation))
		})

		It("rejects a staff entry without a staff reference", func() {
			dto := gatelog.CreateEntryDTO{
				SubType: gatelog.SubTypeStaff,
				Name:    "Priya Singh",
				InTime:  time.Now(),
			}

			_, err := service.Create(dto, "sec-1", "Security One")

			Expect(err).To(HaveOccurred())
		})

		It("rejects a staff entry whose reference is unknown to the directory", func() {
			dto := gatelog.CreateEntryDTO{
				SubType: gatelog.SubTypeStaff,
				Name:    "Priya Singh",
				StaffID: "ghost",
				InTime:  time.Now(),
			}

			_, err := service.Create(dto, "sec-1", "Security One")

			Expect(err).To(HaveOccurred())
		})

		It("rejects a phone number that is not ten digits", func() {
			dto := visitorDTO("Ravi Kumar")
			dto.PhoneNumber = "12345"

			_, err := service.Create(dto, "sec-1", "Security One")

			Expect(err).To(HaveOccurred())
		})

		It("stores the phone with the default country code when none is picked", func() {
			dto := visitorDTO("Ravi Kumar")
			dto.PhoneNumber = "9876543210"

			entry, err := service.Create(dto, "sec-1", "Security One")

			Expect(err).ToNot(HaveOccurred())
			Expect(entry.PhoneNumber).To(Equal("+91 9876543210"))
		})

		It("classifies material sub-types under the Material category", func() {
			dto := gatelog.CreateEntryDTO{
				SubType:         gatelog.SubTypeScrapVehicle,
				Name:            "Scrap pickup",
				Reason:          "weekly scrap removal",
				InTime:          time.Now(),
				VehiclePresence: true,
				VehicleNumber:   "KA01AB1234",
			}

			entry, err := service.Create(dto, "sec-1", "Security One")

			Expect(err).ToNot(HaveOccurred())
			Expect(entry.Category).To(Equal(gatelog.CategoryMaterial))
		})

		It("clears the plate when no vehicle is present", func() {
			dto := visitorDTO("Ravi Kumar")
			dto.VehiclePresence = false
			dto.VehicleNumber = "KA01AB1234"

			entry, err := service.Create(dto, "sec-1", "Security One")

			Expect(err).ToNot(HaveOccurred())
			Expect(entry.VehicleNumber).To(BeEmpty())
		})

		It("writes a changed plate through to the staff record", func() {
			directory.staff["staff-1"] = gatelog.StaffRecord{
				ID:            "staff-1",
				FirstName:     "Priya",
				LastName:      "Singh",
				VehicleNumber: "KA01OLD000",
			}
			dto := gatelog.CreateEntryDTO{
				SubType:         gatelog.SubTypeStaff,
				Name:            "Priya Singh",
				StaffID:         "staff-1",
				InTime:          time.Now(),
				VehiclePresence: true,
				VehicleNumber:   "KA01NEW999",
			}

			_, err := service.Create(dto, "sec-1", "Security One")

			Expect(err).ToNot(HaveOccurred())
			Expect(directory.plateWrites).To(HaveKeyWithValue("staff-1", "KA01NEW999"))
		})

		It("leaves the staff record alone when the plate is unchanged", func() {
			directory.staff["staff-1"] = gatelog.StaffRecord{
				ID:            "staff-1",
				FirstName:     "Priya",
				LastName:      "Singh",
				VehicleNumber: "KA01AB1234",
			}
			dto := gatelog.CreateEntryDTO{
				SubType:         gatelog.SubTypeStaff,
				Name:            "Priya Singh",
				StaffID:         "staff-1",
				InTime:          time.Now(),
				VehiclePresence: true,
				VehicleNumber:   "KA01AB1234",
			}

			_, err := service.Create(dto, "sec-1", "Security One")

			Expect(err).ToNot(HaveOccurred())
			Expect(directory.plateWrites).To(BeEmpty())
		})

		It("prepends new entries so the log reads newest first", func() {
			first, err := service.Create(visitorDTO("First Visitor"), "sec-1", "Security One")
			Expect(err).ToNot(HaveOccurred())
			second, err := service.Create(visitorDTO("Second Visitor"), "sec-1", "Security One")
			Expect(err).ToNot(HaveOccurred())

			entries := service.List(gatelog.ListFilter{})

			Expect(entries).To(HaveLen(2))
			Expect(entries[0].ID).To(Equal(second.ID))
			Expect(entries[1].ID).To(Equal(first.ID))
		})
	})

	Describe("MarkExit", func() {
		It("stamps the departure and flips the status to OUT", func() {
			created, err := service.Create(visitorDTO("Ravi Kumar"), "sec-1", "Security One")
			Expect(err).ToNot(HaveOccurred())

			exited, err := service.MarkExit(created.ID)

			Expect(err).ToNot(HaveOccurred())
			Expect(exited.Status).To(Equal(gatelog.StatusOut))
			Expect(exited.OutTime).ToNot(BeNil())
			Expect(exited.OutTime.Before(exited.InTime)).To(BeFalse())
		})

		It("rejects a second exit on the same entry", func() {
			created, err := service.Create(visitorDTO("Ravi Kumar"), "sec-1", "Security One")
			Expect(err).ToNot(HaveOccurred())

			_, err = service.MarkExit(created.ID)
			Expect(err).ToNot(HaveOccurred())

			_, err = service.MarkExit(created.ID)
			Expect(err).To(Equal(apperrors.ErrAlreadyExited))
		})

		It("returns not found for an unknown entry", func() {
			_, err := service.MarkExit("missing")
			Expect(err).To(Equal(apperrors.ErrEntryNotFound))
		})

		It("leaves the other fields untouched", func() {
			dto := visitorDTO("Ravi Kumar")
			dto.Remarks = "carrying samples"
			created, err := service.Create(dto, "sec-1", "Security One")
			Expect(err).ToNot(HaveOccurred())

			exited, err := service.MarkExit(created.ID)

			Expect(err).ToNot(HaveOccurred())
			Expect(exited.Name).To(Equal(created.Name))
			Expect(exited.Remarks).To(Equal("carrying samples"))
			Expect(exited.InTime.Unix()).To(Equal(created.InTime.Unix()))
		})
	})

	Describe("overstay derivation", func() {
		It("reads a long-standing IN entry as OVERSTAY without persisting it", func() {
			dto := visitorDTO("Ravi Kumar")
			dto.InTime = time.Now().Add(-9 * time.Hour)
			created, err := service.Create(dto, "sec-1", "Security One")
			Expect(err).ToNot(HaveOccurred())

			got, err := service.Get(created.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(got.Status).To(Equal(gatelog.StatusOverstay))

			// Stored state still says IN.
			var raw []gatelog.SecurityEntry
			Expect(store.Load(storage.KeyGateLog, &raw)).To(Succeed())
			Expect(raw[0].Status).To(Equal(gatelog.StatusIn))
		})

		It("keeps a recent IN entry as IN", func() {
			dto := visitorDTO("Ravi Kumar")
			dto.InTime = time.Now().Add(-1 * time.Hour)
			created, err := service.Create(dto, "sec-1", "Security One")
			Expect(err).ToNot(HaveOccurred())

			got, err := service.Get(created.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(got.Status).To(Equal(gatelog.StatusIn))
		})

		It("never derives OVERSTAY for an OUT entry", func() {
			dto := visitorDTO("Ravi Kumar")
			dto.InTime = time.Now().Add(-9 * time.Hour)
			created, err := service.Create(dto, "sec-1", "Security One")
			Expect(err).ToNot(HaveOccurred())
			_, err = service.MarkExit(created.ID)
			Expect(err).ToNot(HaveOccurred())

			got, err := service.Get(created.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(got.Status).To(Equal(gatelog.StatusOut))
		})
	})

	Describe("List filtering", func() {
		It("keeps overstayed entries under the active filter", func() {
			overdue := visitorDTO("Overdue Visitor")
			overdue.InTime = time.Now().Add(-9 * time.Hour)
			_, err := service.Create(overdue, "sec-1", "Security One")
			Expect(err).ToNot(HaveOccurred())

			done, err := service.Create(visitorDTO("Done Visitor"), "sec-1", "Security One")
			Expect(err).ToNot(HaveOccurred())
			_, err = service.MarkExit(done.ID)
			Expect(err).ToNot(HaveOccurred())

			active := service.List(gatelog.ListFilter{Activity: "active"})

			Expect(active).To(HaveLen(1))
			Expect(active[0].Name).To(Equal("Overdue Visitor"))
			Expect(active[0].Status).To(Equal(gatelog.StatusOverstay))
		})

		It("narrows by category and sub-type", func() {
			_, err := service.Create(visitorDTO("Ravi Kumar"), "sec-1", "Security One")
			Expect(err).ToNot(HaveOccurred())
			_, err = service.Create(gatelog.CreateEntryDTO{
				SubType: gatelog.SubTypeInputVehicle,
				Name:    "Raw material truck",
				Reason:  "steel delivery",
				InTime:  time.Now(),
			}, "sec-1", "Security One")
			Expect(err).ToNot(HaveOccurred())

			material := service.List(gatelog.ListFilter{Category: gatelog.CategoryMaterial})
			Expect(material).To(HaveLen(1))
			Expect(material[0].SubType).To(Equal(gatelog.SubTypeInputVehicle))

			visitors := service.List(gatelog.ListFilter{SubType: gatelog.SubTypeVisitor})
			Expect(visitors).To(HaveLen(1))
			Expect(visitors[0].Name).To(Equal("Ravi Kumar"))
		})

		It("matches free text against name, plate and phone", func() {
			dto := visitorDTO("Ravi Kumar")
			dto.PhoneNumber = "9876543210"
			dto.VehiclePresence = true
			dto.VehicleNumber = "KA01AB1234"
			_, err := service.Create(dto, "sec-1", "Security One")
			Expect(err).ToNot(HaveOccurred())
			_, err = service.Create(visitorDTO("Someone Else"), "sec-1", "Security One")
			Expect(err).ToNot(HaveOccurred())

			Expect(service.List(gatelog.ListFilter{Query: "ravi"})).To(HaveLen(1))
			Expect(service.List(gatelog.ListFilter{Query: "ka01ab"})).To(HaveLen(1))
			Expect(service.List(gatelog.ListFilter{Query: "98765"})).To(HaveLen(1))
			Expect(service.List(gatelog.ListFilter{Query: "nomatch"})).To(BeEmpty())
		})

		It("limits the today window to entries from the current day", func() {
			old := visitorDTO("Yesterday Visitor")
			old.InTime = time.Now().Add(-48 * time.Hour)
			_, err := service.Create(old, "sec-1", "Security One")
			Expect(err).ToNot(HaveOccurred())
			_, err = service.Create(visitorDTO("Today Visitor"), "sec-1", "Security One")
			Expect(err).ToNot(HaveOccurred())

			today := service.List(gatelog.ListFilter{Window: "today"})

			Expect(today).To(HaveLen(1))
			Expect(today[0].Name).To(Equal("Today Visitor"))
		})

		It("reads a corrupt log as empty instead of failing", func() {
			store.data[storage.KeyGateLog] = []byte("{not json")

			Expect(service.List(gatelog.ListFilter{})).To(BeEmpty())
		})
	})

	Describe("Autofill", func() {
		BeforeEach(func() {
			directory.staff["staff-1"] = gatelog.StaffRecord{
				ID:            "staff-1",
				FirstName:     "Priya",
				LastName:      "Singh",
				PhoneNumber:   "+44 7700900123",
				VehicleNumber: "KA01AB1234",
			}
		})

		It("offers a prefill with the phone split into code and digits", func() {
			result := service.Autofill("Pri", gatelog.SubTypeStaff)

			Expect(result.Matched).To(BeTrue())
			Expect(result.StaffID).To(Equal("staff-1"))
			Expect(result.Name).To(Equal("Priya Singh"))
			Expect(result.CountryCode).To(Equal("+44"))
			Expect(result.PhoneNumber).To(Equal("7700900123"))
			Expect(result.VehicleNumber).To(Equal("KA01AB1234"))
			Expect(result.VehiclePresence).To(BeTrue())
		})

		It("stays quiet for fragments of two characters or fewer", func() {
			Expect(service.Autofill("Pr", gatelog.SubTypeStaff).Matched).To(BeFalse())
		})

		It("stays quiet for non-staff sub-types", func() {
			Expect(service.Autofill("Priya", gatelog.SubTypeVisitor).Matched).To(BeFalse())
		})
	})

	Describe("AttachPhoto", func() {
		It("stores the payload verbatim", func() {
			created, err := service.Create(visitorDTO("Ravi Kumar"), "sec-1", "Security One")
			Expect(err).ToNot(HaveOccurred())

			payload := "data:image/jpeg;base64,AAAA"
			updated, err := service.AttachPhoto(created.ID, gatelog.AttachPhotoDTO{PhotoData: payload})

			Expect(err).ToNot(HaveOccurred())
			Expect(updated.PhotoData).To(Equal(payload))
		})

		It("rejects an empty payload", func() {
			created, err := service.Create(visitorDTO("Ravi Kumar"), "sec-1", "Security One")
			Expect(err).ToNot(HaveOccurred())

			_, err = service.AttachPhoto(created.ID, gatelog.AttachPhotoDTO{})
			Expect(err).To(HaveOccurred())
			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(apperrors.ErrorTypeValidation))
		})
	})

	Describe("Stats", func() {
		It("counts people, vehicles and overstays still inside", func() {
			// Short threshold keeps every entry within the current day.
			quick := gatelog.NewService(store, directory, nil, logger, time.Minute, "+91")

			_, err := quick.Create(visitorDTO("Ravi Kumar"), "sec-1", "Security One")
			Expect(err).ToNot(HaveOccurred())

			overdue := visitorDTO("Overdue Visitor")
			overdue.InTime = time.Now().Add(-5 * time.Minute)
			_, err = quick.Create(overdue, "sec-1", "Security One")
			Expect(err).ToNot(HaveOccurred())

			truck := gatelog.CreateEntryDTO{
				SubType:         gatelog.SubTypeOutputVehicle,
				Name:            "Dispatch truck",
				Reason:          "finished goods",
				InTime:          time.Now(),
				VehiclePresence: true,
				VehicleNumber:   "KA05XY4321",
			}
			_, err = quick.Create(truck, "sec-1", "Security One")
			Expect(err).ToNot(HaveOccurred())

			gone, err := quick.Create(visitorDTO("Gone Visitor"), "sec-1", "Security One")
			Expect(err).ToNot(HaveOccurred())
			_, err = quick.MarkExit(gone.ID)
			Expect(err).ToNot(HaveOccurred())

			stats := quick.Stats()

			Expect(stats.PersonnelIn).To(Equal(2))
			Expect(stats.VehiclesIn).To(Equal(1))
			Expect(stats.OverstayWarnings).To(Equal(1))
			Expect(stats.TodayEntries).To(Equal(4))
		})

		It("counts vehicles only when one is actually on site", func() {
			carried := gatelog.CreateEntryDTO{
				SubType: gatelog.SubTypeReturnInput,
				Name:    "Hand-carried return",
				Reason:  "rejected parts back from vendor",
				InTime:  time.Now(),
			}
			_, err := service.Create(carried, "sec-1", "Security One")
			Expect(err).ToNot(HaveOccurred())

			driver := visitorDTO("Driver With Car")
			driver.VehiclePresence = true
			driver.VehicleNumber = "KA02CD5678"
			_, err = service.Create(driver, "sec-1", "Security One")
			Expect(err).ToNot(HaveOccurred())

			Expect(service.Stats().VehiclesIn).To(Equal(1))
		})
	})

	Describe("persistence failures", func() {
		It("surfaces an internal error when the store rejects the write", func() {
			store.saveErr = errors.New("disk full")

			_, err := service.Create(visitorDTO("Ravi Kumar"), "sec-1", "Security One")

			Expect(err).To(HaveOccurred())
			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(apperrors.ErrorTypeInternal))
		})
	})
})

var _ = Describe("EffectiveStatus", func() {
	threshold := 8 * time.Hour

	It("flips to OVERSTAY exactly at the threshold", func() {
		in := time.Now().Add(-threshold)
		entry := gatelog.SecurityEntry{Status: gatelog.StatusIn, InTime: in}

		Expect(entry.EffectiveStatus(in.Add(threshold), threshold)).To(Equal(gatelog.StatusOverstay))
	})

	It("stays IN one instant before the threshold", func() {
		in := time.Now()
		entry := gatelog.SecurityEntry{Status: gatelog.StatusIn, InTime: in}

		Expect(entry.EffectiveStatus(in.Add(threshold-time.Nanosecond), threshold)).To(Equal(gatelog.StatusIn))
	})

	It("leaves OUT entries untouched however old they are", func() {
		in := time.Now().Add(-100 * time.Hour)
		entry := gatelog.SecurityEntry{Status: gatelog.StatusOut, InTime: in}

		Expect(entry.EffectiveStatus(time.Now(), threshold)).To(Equal(gatelog.StatusOut))
	})
})
