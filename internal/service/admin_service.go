package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"

	"github.com/parcelaid/backend/internal/model"
	"github.com/parcelaid/backend/internal/repository"
)

// AdminCredentials is the single configured admin identifier/password pair.
type AdminCredentials struct {
	ID       string
	Password string
}

// AdminService は管理者認証と全コレクションの集約を行う
type AdminService interface {
	// Login reports whether id and password both match the configured pair.
	// It does not say which one was wrong.
	Login(id, password string) bool

	// Data は全コレクションを絞り込みなしで返す
	Data(ctx context.Context) *model.AdminData
}

type adminService struct {
	store repository.RecordStore
	creds AdminCredentials
}

// NewAdminService creates an AdminService. With an empty ID or password every login fails.
func NewAdminService(store repository.RecordStore, creds AdminCredentials) AdminService {
	return &adminService{store: store, creds: creds}
}

func (s *adminService) Login(id, password string) bool {
	if s.creds.ID == "" || s.creds.Password == "" {
		return false
	}
	// どちらが違っても所要時間が変わらないよう両方比較する
	idOK := equalConstantTime(id, s.creds.ID)
	pwOK := equalConstantTime(password, s.creds.Password)
	return idOK&pwOK == 1
}

func equalConstantTime(a, b string) int {
	ha := sha256.Sum256([]byte(a))
	hb := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ha[:], hb[:])
}

func (s *adminService) Data(ctx context.Context) *model.AdminData {
	return &model.AdminData{
		Donations:  s.store.ReadAll(ctx, model.CollectionDonations),
		Volunteer:  s.store.ReadAll(ctx, model.CollectionVolunteer),
		Newsletter: s.store.ReadAll(ctx, model.CollectionNewsletter),
		Contact:    s.store.ReadAll(ctx, model.CollectionContact),
	}
}
