package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/parcelaid/backend/internal/model"
	"github.com/parcelaid/backend/internal/repository"
)

// ErrValidation is wrapped by every ValidationError.
var ErrValidation = errors.New("validation failed")

// ValidationError reports a required field that was missing or blank.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string { return e.Field + " is required" }

func (e *ValidationError) Unwrap() error { return ErrValidation }

// DonationInput is a donate form as received from the client. ParcelCount and
// TotalAmount are kept raw so numbers, numeric strings and junk can all be coerced.
type DonationInput struct {
	Name        string
	Email       string
	Phone       string
	ParcelName  string
	ParcelCount json.RawMessage
	TotalAmount json.RawMessage
}

// VolunteerInput is a volunteer form as received from the client.
type VolunteerInput struct {
	Name    string
	Email   string
	Phone   string
	Help    string
	Message string
}

// ContactInput is a contact form as received from the client.
type ContactInput struct {
	Name    string
	Email   string
	Message string
}

// SubmissionService はフォーム投稿の検証・既定値の補完・日付の付与を行い、レコードストアへ追記する
type SubmissionService interface {
	// SubmitDonation は寄付を保存し、保存後の寄付総件数を返す
	SubmitDonation(ctx context.Context, in DonationInput) (int, error)

	// DonationCount は保存済みの寄付件数を返す
	DonationCount(ctx context.Context) int

	SubmitVolunteer(ctx context.Context, in VolunteerInput) error

	// SubscribeNewsletter は未登録のアドレスだけを保存する（大文字小文字は区別しない）。
	// 既に登録済みなら subscribed は false
	SubscribeNewsletter(ctx context.Context, email string) (subscribed bool, err error)

	SubmitContact(ctx context.Context, in ContactInput) error
}

type submissionService struct {
	store repository.RecordStore
	now   func() time.Time
}

// NewSubmissionService は store を使う SubmissionService を生成する
func NewSubmissionService(store repository.RecordStore) SubmissionService {
	return NewSubmissionServiceWithClock(store, time.Now)
}

// NewSubmissionServiceWithClock is NewSubmissionService with an injectable clock.
func NewSubmissionServiceWithClock(store repository.RecordStore, now func() time.Time) SubmissionService {
	return &submissionService{store: store, now: now}
}

// require は空の必須項目のうち最初のものを ValidationError で返す
func require(fields ...[2]string) error {
	for _, f := range fields {
		if strings.TrimSpace(f[1]) == "" {
			return &ValidationError{Field: f[0]}
		}
	}
	return nil
}

func (s *submissionService) SubmitDonation(ctx context.Context, in DonationInput) (int, error) {
	if err := require(
		[2]string{"name", in.Name},
		[2]string{"email", in.Email},
		[2]string{"phone", in.Phone},
	); err != nil {
		return 0, err
	}

	parcels, ok := coerceInt(in.ParcelCount)
	if !ok || parcels < 1 {
		parcels = 1
	}
	total, ok := coerceInt(in.TotalAmount)
	if !ok || total <= 0 {
		total = parcels * model.ParcelPrice
	}

	d := model.Donation{
		Name:        strings.TrimSpace(in.Name),
		Email:       strings.TrimSpace(in.Email),
		Phone:       strings.TrimSpace(in.Phone),
		ParcelName:  strings.TrimSpace(in.ParcelName),
		ParcelCount: parcels,
		TotalAmount: total,
		Date:        model.FormatDate(s.now()),
	}
	rec, err := json.Marshal(d)
	if err != nil {
		return 0, err
	}
	return s.store.Append(ctx, model.CollectionDonations, rec)
}

func (s *submissionService) DonationCount(ctx context.Context) int {
	return s.store.Count(ctx, model.CollectionDonations)
}

func (s *submissionService) SubmitVolunteer(ctx context.Context, in VolunteerInput) error {
	if err := require(
		[2]string{"name", in.Name},
		[2]string{"email", in.Email},
		[2]string{"phone", in.Phone},
		[2]string{"help", in.Help},
	); err != nil {
		return err
	}

	v := model.Volunteer{
		Name:    strings.TrimSpace(in.Name),
		Email:   strings.TrimSpace(in.Email),
		Phone:   strings.TrimSpace(in.Phone),
		Help:    strings.TrimSpace(in.Help),
		Message: strings.TrimSpace(in.Message),
		Date:    model.FormatDate(s.now()),
	}
	rec, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = s.store.Append(ctx, model.CollectionVolunteer, rec)
	return err
}

func (s *submissionService) SubscribeNewsletter(ctx context.Context, email string) (bool, error) {
	norm := model.NormalizeEmail(email)
	if norm == "" {
		return false, &ValidationError{Field: "email"}
	}

	rec, err := json.Marshal(model.NewsletterEntry{Email: norm, Date: model.FormatDate(s.now())})
	if err != nil {
		return false, err
	}
	_, appended, err := s.store.AppendUnique(ctx, model.CollectionNewsletter, rec, func(r json.RawMessage) bool {
		return model.NewsletterEmail(r) == norm
	})
	return appended, err
}

func (s *submissionService) SubmitContact(ctx context.Context, in ContactInput) error {
	if err := require(
		[2]string{"name", in.Name},
		[2]string{"email", in.Email},
		[2]string{"message", in.Message},
	); err != nil {
		return err
	}

	m := model.ContactMessage{
		Name:    strings.TrimSpace(in.Name),
		Email:   strings.TrimSpace(in.Email),
		Message: strings.TrimSpace(in.Message),
		Date:    model.FormatDate(s.now()),
	}
	rec, err := json.Marshal(m)
	if err != nil {
		return err
	}
	_, err = s.store.Append(ctx, model.CollectionContact, rec)
	return err
}

// coerceInt reads a JSON number or numeric string, truncating fractions.
// ok is false for absent, null, non-numeric or non-finite values.
func coerceInt(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}
