package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/leadcadencehq/leadcadence-backend/pkg/db/models"
	pkgerrors "github.com/leadcadencehq/leadcadence-backend/pkg/errors"
)

type secretSealer interface {
	Seal(plaintext string) ([]byte, error)
	Open(sealed []byte) (string, error)
}

// Service manages platform accounts and keeps app passwords sealed at rest.
type Service interface {
	RegisterAccount(ctx context.Context, input RegisterAccountInput) (*models.SocialAccount, error)
	Credentials(ctx context.Context, projectID uuid.UUID) (*Credentials, error)
	MarkSessionUsed(ctx context.Context, accountID uuid.UUID, usedAt time.Time) error
	DeactivateAccount(ctx context.Context, accountID uuid.UUID) error
}

type service struct {
	repo   Repository
	sealer secretSealer
}

// RegisterAccountInput holds the fields needed to connect an account.
type RegisterAccountInput struct {
	ProjectID   uuid.UUID
	Handle      string
	DID         string
	Host        string
	AppPassword string
}

// Credentials is the unsealed login material for the connector.
type Credentials struct {
	AccountID   uuid.UUID
	Identifier  string
	AppPassword string
	Host        string
}

// NewService builds an accounts service backed by the repository and sealer.
func NewService(repo Repository, sealer secretSealer) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("accounts repository required")
	}
	if sealer == nil {
		return nil, fmt.Errorf("secret sealer required")
	}
	return &service{repo: repo, sealer: sealer}, nil
}

func (s *service) RegisterAccount(ctx context.Context, input RegisterAccountInput) (*models.SocialAccount, error) {
	if input.ProjectID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "project identity missing")
	}
	handle := strings.TrimSpace(input.Handle)
	if handle == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account handle required")
	}
	did := strings.TrimSpace(input.DID)
	if did == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account did required")
	}
	if strings.TrimSpace(input.AppPassword) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "app password required")
	}

	sealed, err := s.sealer.Seal(input.AppPassword)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "seal app password")
	}

	account := &models.SocialAccount{
		ProjectID:            input.ProjectID,
		Handle:               handle,
		DID:                  did,
		EncryptedAppPassword: sealed,
		Active:               true,
	}
	if host := strings.TrimSpace(input.Host); host != "" {
		account.Host = host
	}

	created, err := s.repo.Create(ctx, account)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create social account")
	}
	return created, nil
}

// Credentials returns unsealed login material for the project's active
// account. The plaintext never touches storage or logs.
func (s *service) Credentials(ctx context.Context, projectID uuid.UUID) (*Credentials, error) {
	if projectID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "project identity missing")
	}
	account, err := s.repo.FindActiveByProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no active social account for project")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup social account")
	}
	password, err := s.sealer.Open(account.EncryptedAppPassword)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unseal app password")
	}
	return &Credentials{
		AccountID:   account.ID,
		Identifier:  account.Handle,
		AppPassword: password,
		Host:        account.Host,
	}, nil
}

func (s *service) MarkSessionUsed(ctx context.Context, accountID uuid.UUID, usedAt time.Time) error {
	if accountID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "account identity missing")
	}
	if err := s.repo.MarkSessionUsed(ctx, accountID, usedAt); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record session use")
	}
	return nil
}

func (s *service) DeactivateAccount(ctx context.Context, accountID uuid.UUID) error {
	if accountID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "account identity missing")
	}
	if err := s.repo.Deactivate(ctx, accountID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate social account")
	}
	return nil
}
