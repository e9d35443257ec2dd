package accounts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/leadcadencehq/leadcadence-backend/pkg/db/models"
	pkgerrors "github.com/leadcadencehq/leadcadence-backend/pkg/errors"
)

type stubAccountRepo struct {
	created      *models.SocialAccount
	createErr    error
	activeResult *models.SocialAccount
	activeErr    error
	sessionID    uuid.UUID
	sessionAt    time.Time
	sessionErr   error
}

func (s *stubAccountRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubAccountRepo) Create(ctx context.Context, account *models.SocialAccount) (*models.SocialAccount, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	s.created = account
	return account, nil
}

func (s *stubAccountRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.SocialAccount, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubAccountRepo) FindActiveByProject(ctx context.Context, projectID uuid.UUID) (*models.SocialAccount, error) {
	if s.activeErr != nil {
		return nil, s.activeErr
	}
	if s.activeResult == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.activeResult, nil
}

func (s *stubAccountRepo) MarkSessionUsed(ctx context.Context, id uuid.UUID, usedAt time.Time) error {
	s.sessionID = id
	s.sessionAt = usedAt
	return s.sessionErr
}

func (s *stubAccountRepo) Deactivate(ctx context.Context, id uuid.UUID) error { return nil }

type stubSealer struct {
	sealErr error
	openErr error
}

func (s *stubSealer) Seal(plaintext string) ([]byte, error) {
	if s.sealErr != nil {
		return nil, s.sealErr
	}
	return []byte("sealed:" + plaintext), nil
}

func (s *stubSealer) Open(sealed []byte) (string, error) {
	if s.openErr != nil {
		return "", s.openErr
	}
	return string(sealed[len("sealed:"):]), nil
}

func TestRegisterAccountSealsPassword(t *testing.T) {
	repo := &stubAccountRepo{}
	svc, err := NewService(repo, &stubSealer{})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	created, err := svc.RegisterAccount(context.Background(), RegisterAccountInput{
		ProjectID:   uuid.New(),
		Handle:      " outreach.bsky.social ",
		DID:         "did:plc:abc123",
		AppPassword: "app-pass-1234",
	})
	if err != nil {
		t.Fatalf("RegisterAccount returned error: %v", err)
	}
	if created.Handle != "outreach.bsky.social" {
		t.Fatalf("expected trimmed handle, got %q", created.Handle)
	}
	if string(created.EncryptedAppPassword) != "sealed:app-pass-1234" {
		t.Fatalf("expected sealed password, got %q", created.EncryptedAppPassword)
	}
	if !created.Active {
		t.Fatal("expected account active on registration")
	}
	if repo.created == nil {
		t.Fatal("expected account persisted")
	}
}

func TestRegisterAccountRequiresPassword(t *testing.T) {
	svc, err := NewService(&stubAccountRepo{}, &stubSealer{})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	_, err = svc.RegisterAccount(context.Background(), RegisterAccountInput{
		ProjectID: uuid.New(),
		Handle:    "outreach.bsky.social",
		DID:       "did:plc:abc123",
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCredentialsUnsealsPassword(t *testing.T) {
	repo := &stubAccountRepo{
		activeResult: &models.SocialAccount{
			ID:                   uuid.New(),
			Handle:               "outreach.bsky.social",
			Host:                 "https://bsky.social",
			EncryptedAppPassword: []byte("sealed:app-pass-1234"),
		},
	}
	svc, err := NewService(repo, &stubSealer{})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	creds, err := svc.Credentials(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Credentials returned error: %v", err)
	}
	if creds.AppPassword != "app-pass-1234" {
		t.Fatalf("expected unsealed password, got %q", creds.AppPassword)
	}
	if creds.Identifier != "outreach.bsky.social" {
		t.Fatalf("expected handle as identifier, got %q", creds.Identifier)
	}
	if creds.Host != "https://bsky.social" {
		t.Fatalf("unexpected host %q", creds.Host)
	}
}

func TestCredentialsNoActiveAccount(t *testing.T) {
	svc, err := NewService(&stubAccountRepo{}, &stubSealer{})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	_, err = svc.Credentials(context.Background(), uuid.New())
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestCredentialsUnsealFailure(t *testing.T) {
	repo := &stubAccountRepo{
		activeResult: &models.SocialAccount{
			ID:                   uuid.New(),
			EncryptedAppPassword: []byte("garbage"),
		},
	}
	svc, err := NewService(repo, &stubSealer{openErr: errors.New("cipher: message authentication failed")})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	_, err = svc.Credentials(context.Background(), uuid.New())
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestMarkSessionUsedDelegates(t *testing.T) {
	repo := &stubAccountRepo{}
	svc, err := NewService(repo, &stubSealer{})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	accountID := uuid.New()
	usedAt := time.Date(2026, 5, 12, 11, 0, 0, 0, time.UTC)
	if err := svc.MarkSessionUsed(context.Background(), accountID, usedAt); err != nil {
		t.Fatalf("MarkSessionUsed returned error: %v", err)
	}
	if repo.sessionID != accountID || !repo.sessionAt.Equal(usedAt) {
		t.Fatalf("expected delegation to repository, got %v at %v", repo.sessionID, repo.sessionAt)
	}
}
