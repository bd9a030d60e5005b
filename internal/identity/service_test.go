package identity_test

import (
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/frahmantamala/factory-console/internal"
	"github.com/frahmantamala/factory-console/internal/identity"
	"github.com/frahmantamala/factory-console/internal/storage"
)

func TestIdentityService(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Identity Service Suite")
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

var _ = Describe("IdentityService", func() {
	var (
		service *identity.Service
		store   *mockStore
		tokens  *identity.SessionTokenGenerator
		logger  *slog.Logger
	)

	newServiceWithTimeout := func(timeout time.Duration) *identity.Service {
		return identity.NewService(store, tokens, nil, logger, timeout)
	}

	BeforeEach(func() {
		store = newMockStore()
		tokens = identity.NewSessionTokenGenerator("test-secret-at-least-32-characters!!", time.Hour)
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		service = newServiceWithTimeout(time.Hour)
	})

	Describe("Authenticate", func() {
		It("logs in a seed account and issues a token", func() {
			resp, err := service.Authenticate(identity.LoginDTO{Username: "admin", Password: "password123"})

			Expect(err).ToNot(HaveOccurred())
			Expect(resp.Token).ToNot(BeEmpty())
			Expect(resp.Session.IsAuthenticated).To(BeTrue())
			Expect(resp.Session.User.Username).To(Equal("admin"))

			claims, err := tokens.Validate(resp.Token)
			Expect(err).ToNot(HaveOccurred())
			Expect(claims.UserID).To(Equal("1"))
		})

		It("rejects a wrong password", func() {
			_, err := service.Authenticate(identity.LoginDTO{Username: "admin", Password: "wrong"})

			Expect(err).To(Equal(apperrors.ErrInvalidCredentials))
		})

		It("rejects an unknown username", func() {
			_, err := service.Authenticate(identity.LoginDTO{Username: "nobody", Password: "password123"})

			Expect(err).To(Equal(apperrors.ErrInvalidCredentials))
		})

		It("treats inactive accounts like bad credentials", func() {
			inactive := false
			_, err := service.UpdateUser("2", identity.UpdateUserDTO{IsActive: &inactive}, "1")
			Expect(err).ToNot(HaveOccurred())

			_, err = service.Authenticate(identity.LoginDTO{Username: "sales01", Password: "password123"})

			Expect(err).To(Equal(apperrors.ErrInvalidCredentials))
		})

		It("accepts a bcrypt-hashed credential", func() {
			hash, err := identity.HashPassword("s3cret-pass", 0)
			Expect(err).ToNot(HaveOccurred())

			_, err = service.CreateUser(identity.CreateUserDTO{
				FirstName:        "Hash",
				LastName:         "User",
				Username:         "hashuser",
				Password:         hash,
				AssignedSegments: []string{"Inventory"},
			})
			Expect(err).ToNot(HaveOccurred())

			resp, err := service.Authenticate(identity.LoginDTO{Username: "hashuser", Password: "s3cret-pass"})
			Expect(err).ToNot(HaveOccurred())
			Expect(resp.Session.User.Username).To(Equal("hashuser"))
		})

		It("persists the session so it survives a restart", func() {
			_, err := service.Authenticate(identity.LoginDTO{Username: "admin", Password: "password123"})
			Expect(err).ToNot(HaveOccurred())

			restarted := newServiceWithTimeout(time.Hour)
			session := restarted.CurrentSession()

			Expect(session.IsAuthenticated).To(BeTrue())
			Expect(session.User.Username).To(Equal("admin"))
		})
	})

	Describe("Logout", func() {
		It("clears the persisted session", func() {
			_, err := service.Authenticate(identity.LoginDTO{Username: "admin", Password: "password123"})
			Expect(err).ToNot(HaveOccurred())

			service.Logout()

			session := service.CurrentSession()
			Expect(session.IsAuthenticated).To(BeFalse())
			Expect(session.User).To(BeNil())
		})
	})

	Describe("seed fallback", func() {
		It("falls back to the seed accounts when the directory is corrupt", func() {
			store.data[storage.KeyUsers] = []byte("{broken")

			users := service.Directory()

			Expect(users).To(HaveLen(3))
			Expect(users[0].Username).To(Equal("admin"))
		})

		It("reads a corrupt session as signed out", func() {
			store.data[storage.KeySession] = []byte("{broken")

			Expect(service.CurrentSession().IsAuthenticated).To(BeFalse())
		})
	})

	Describe("CreateUser", func() {
		It("registers a user with defaults applied", func() {
			user, err := service.CreateUser(identity.CreateUserDTO{
				FirstName:        "New",
				LastName:         "Member",
				Username:         "newmember",
				Password:         "secret99",
				AssignedSegments: []string{"Dispatch"},
			})

			Expect(err).ToNot(HaveOccurred())
			Expect(user.ID).ToNot(BeEmpty())
			Expect(user.IsActive).To(BeTrue())
			Expect(user.IsRevocable).To(BeTrue())
			Expect(user.IsMasterAdmin).To(BeFalse())
		})

		It("rejects a duplicate username without touching the directory", func() {
			before, err := json.Marshal(service.Directory())
			Expect(err).ToNot(HaveOccurred())

			_, err = service.CreateUser(identity.CreateUserDTO{
				FirstName: "Dup",
				LastName:  "User",
				Username:  "admin",
				Password:  "secret99",
			})
			Expect(err).To(Equal(apperrors.ErrDuplicateUsername))

			after, err := json.Marshal(service.Directory())
			Expect(err).ToNot(HaveOccurred())
			Expect(after).To(MatchJSON(before))
		})

		It("rejects a short password", func() {
			_, err := service.CreateUser(identity.CreateUserDTO{
				FirstName: "Weak",
				LastName:  "User",
				Username:  "weakuser",
				Password:  "123",
			})

			Expect(err).To(HaveOccurred())
		})
	})

	Describe("UpdateUser", func() {
		It("merges only the provided fields", func() {
			first := "Renamed"
			user, err := service.UpdateUser("2", identity.UpdateUserDTO{FirstName: &first}, "1")

			Expect(err).ToNot(HaveOccurred())
			Expect(user.FirstName).To(Equal("Renamed"))
			Expect(user.LastName).To(Equal("Manager"))
			Expect(user.Username).To(Equal("sales01"))
		})

		It("refuses to deactivate the primary admin on someone else's behalf", func() {
			inactive := false
			_, err := service.UpdateUser("1", identity.UpdateUserDTO{IsActive: &inactive}, "2")

			Expect(err).To(Equal(apperrors.ErrProtectedRecord))
		})

		It("lets the primary admin deactivate themselves", func() {
			inactive := false
			user, err := service.UpdateUser("1", identity.UpdateUserDTO{IsActive: &inactive}, "1")

			Expect(err).ToNot(HaveOccurred())
			Expect(user.IsActive).To(BeFalse())
		})

		It("refreshes the persisted session when the session user changes", func() {
			_, err := service.Authenticate(identity.LoginDTO{Username: "sales01", Password: "password123"})
			Expect(err).ToNot(HaveOccurred())

			first := "Updated"
			_, err = service.UpdateUser("2", identity.UpdateUserDTO{FirstName: &first}, "1")
			Expect(err).ToNot(HaveOccurred())

			Expect(service.CurrentSession().User.FirstName).To(Equal("Updated"))
		})
	})

	Describe("DeleteUser", func() {
		It("refuses to delete a non-revocable record and leaves the directory intact", func() {
			before, err := json.Marshal(service.Directory())
			Expect(err).ToNot(HaveOccurred())

			Expect(service.DeleteUser("2")).To(Equal(apperrors.ErrProtectedRecord))

			after, err := json.Marshal(service.Directory())
			Expect(err).ToNot(HaveOccurred())
			Expect(after).To(MatchJSON(before))
		})

		It("refuses to delete the primary admin", func() {
			before, err := json.Marshal(service.Directory())
			Expect(err).ToNot(HaveOccurred())

			Expect(service.DeleteUser("1")).To(Equal(apperrors.ErrProtectedRecord))

			after, err := json.Marshal(service.Directory())
			Expect(err).ToNot(HaveOccurred())
			Expect(after).To(MatchJSON(before))
		})

		It("deletes a revocable record", func() {
			user, err := service.CreateUser(identity.CreateUserDTO{
				FirstName: "Temp",
				LastName:  "Member",
				Username:  "tempmember",
				Password:  "secret99",
			})
			Expect(err).ToNot(HaveOccurred())

			Expect(service.DeleteUser(user.ID)).To(Succeed())

			_, err = service.GetUser(user.ID)
			Expect(err).To(Equal(apperrors.ErrUserNotFound))
		})

		It("returns not found for an unknown id", func() {
			Expect(service.DeleteUser("missing")).To(Equal(apperrors.ErrUserNotFound))
		})
	})

	Describe("approval requests", func() {
		It("records a PENDING request", func() {
			request, err := service.RequestApproval("2", "Sales Manager", identity.RequestApprovalDTO{
				Type:     identity.RequestDeleteMember,
				TargetID: "3",
			})

			Expect(err).ToNot(HaveOccurred())
			Expect(request.Status).To(Equal(identity.RequestPending))
			Expect(service.Requests()).To(HaveLen(1))
		})

		It("rejects an unrecognized request type", func() {
			_, err := service.RequestApproval("2", "Sales Manager", identity.RequestApprovalDTO{Type: "NONSENSE"})

			Expect(err).To(HaveOccurred())
		})

		It("resolves a PENDING request to APPROVED", func() {
			request, err := service.RequestApproval("2", "Sales Manager", identity.RequestApprovalDTO{
				Type:     identity.RequestDeleteMember,
				TargetID: "3",
			})
			Expect(err).ToNot(HaveOccurred())

			resolved, err := service.ResolveRequest(request.ID, true)

			Expect(err).ToNot(HaveOccurred())
			Expect(resolved.Status).To(Equal(identity.RequestApproved))
			Expect(service.HasApprovedRequest(identity.RequestDeleteMember, "3")).To(BeTrue())
		})

		It("treats resolution of a terminal request as a no-op", func() {
			request, err := service.RequestApproval("2", "Sales Manager", identity.RequestApprovalDTO{
				Type: identity.RequestMasterAccess,
			})
			Expect(err).ToNot(HaveOccurred())

			_, err = service.ResolveRequest(request.ID, false)
			Expect(err).ToNot(HaveOccurred())

			resolved, err := service.ResolveRequest(request.ID, true)
			Expect(err).ToNot(HaveOccurred())
			Expect(resolved.Status).To(Equal(identity.RequestRejected))
		})

		It("returns not found for an unknown request", func() {
			_, err := service.ResolveRequest("missing", true)
			Expect(err).To(Equal(apperrors.ErrRequestNotFound))
		})

		It("auto-rejects on timeout and locks the requester", func() {
			quick := newServiceWithTimeout(30 * time.Millisecond)

			request, err := quick.RequestApproval("2", "Sales Manager", identity.RequestApprovalDTO{
				Type: identity.RequestMasterAccess,
			})
			Expect(err).ToNot(HaveOccurred())

			Eventually(func() identity.RequestStatus {
				requests := quick.Requests()
				for i := range requests {
					if requests[i].ID == request.ID {
						return requests[i].Status
					}
				}
				return ""
			}, time.Second, 10*time.Millisecond).Should(Equal(identity.RequestRejected))

			requester, err := quick.GetUser("2")
			Expect(err).ToNot(HaveOccurred())
			Expect(requester.IsMasterLocked).To(BeTrue())
		})

		It("leaves a manually resolved request alone when the timer fires", func() {
			quick := newServiceWithTimeout(50 * time.Millisecond)

			request, err := quick.RequestApproval("2", "Sales Manager", identity.RequestApprovalDTO{
				Type: identity.RequestMasterAccess,
			})
			Expect(err).ToNot(HaveOccurred())

			_, err = quick.ResolveRequest(request.ID, true)
			Expect(err).ToNot(HaveOccurred())

			time.Sleep(150 * time.Millisecond)

			requests := quick.Requests()
			var got identity.RequestStatus
			for i := range requests {
				if requests[i].ID == request.ID {
					got = requests[i].Status
				}
			}
			Expect(got).To(Equal(identity.RequestApproved))

			requester, err := quick.GetUser("2")
			Expect(err).ToNot(HaveOccurred())
			Expect(requester.IsMasterLocked).To(BeFalse())
		})
	})

	Describe("access locks", func() {
		It("locks and unlocks a user", func() {
			Expect(service.LockAccess("2")).To(Succeed())

			user, err := service.GetUser("2")
			Expect(err).ToNot(HaveOccurred())
			Expect(user.IsMasterLocked).To(BeTrue())

			Expect(service.UnlockAccess("2")).To(Succeed())

			user, err = service.GetUser("2")
			Expect(err).ToNot(HaveOccurred())
			Expect(user.IsMasterLocked).To(BeFalse())
		})
	})

	Describe("FindStaffByName", func() {
		It("matches a case-insensitive substring of the full name", func() {
			user, ok := service.FindStaffByName("ales man")

			Expect(ok).To(BeTrue())
			Expect(user.Username).To(Equal("sales01"))
		})

		It("requires more than two characters", func() {
			_, ok := service.FindStaffByName("Sa")
			Expect(ok).To(BeFalse())
		})

		It("reports no match for unknown fragments", func() {
			_, ok := service.FindStaffByName("zzz")
			Expect(ok).To(BeFalse())
		})
	})

	Describe("UpdateVehicleNumber", func() {
		It("writes the plate through to the directory record", func() {
			Expect(service.UpdateVehicleNumber("3", "KA02CD5678")).To(Succeed())

			user, err := service.GetUser("3")
			Expect(err).ToNot(HaveOccurred())
			Expect(user.VehicleNumber).To(Equal("KA02CD5678"))
		})
	})
})
