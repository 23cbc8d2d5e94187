package services

import (
	"context"
	"errors"
	"testing"

	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/BradenHooton/gatekeeper/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockAccountRepository struct {
	GetByEmailFunc func(ctx context.Context, email string) (*models.User, error)
	CreateFunc     func(ctx context.Context, user *models.User) (*models.User, error)
}

func (m *MockAccountRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	u := *user
	u.ID = "new-id"
	return &u, nil
}

func TestUserService_CreateUser(t *testing.T) {
	svc := NewUserService(&MockAccountRepository{}, testLogger())

	u, err := svc.CreateUser(context.Background(), " Bob@Example.com", "Bob", "", "Str0ngPassword")
	require.NoError(t, err)

	assert.Equal(t, "new-id", u.ID)
	assert.Equal(t, "bob@example.com", u.Email)
	assert.Equal(t, models.RoleUser, u.Role)
	assert.Equal(t, models.StatusActive, u.Status)

	ok, err := auth.VerifyPassword(u.PasswordHash, "Str0ngPassword")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUserService_CreateUser_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		repo     *MockAccountRepository
		email    string
		role     string
		password string
		want     error
	}{
		{"missing email", &MockAccountRepository{}, "", "", "Str0ngPassword", models.ErrValidation},
		{"unknown role", &MockAccountRepository{}, "a@example.com", "root", "Str0ngPassword", models.ErrValidation},
		{"weak password", &MockAccountRepository{}, "a@example.com", "", "password", models.ErrValidation},
		{
			"existing email",
			&MockAccountRepository{GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
				return &models.User{ID: "x"}, nil
			}},
			"a@example.com", "", "Str0ngPassword", models.ErrConflict,
		},
		{
			"lookup failure",
			&MockAccountRepository{GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
				return nil, errors.New("db down")
			}},
			"a@example.com", "", "Str0ngPassword", models.ErrInternalServer,
		},
		{
			"insert race",
			&MockAccountRepository{CreateFunc: func(ctx context.Context, user *models.User) (*models.User, error) {
				return nil, models.ErrConflict
			}},
			"a@example.com", models.RoleAdmin, "Str0ngPassword", models.ErrConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewUserService(tt.repo, testLogger())
			_, err := svc.CreateUser(context.Background(), tt.email, "", tt.role, tt.password)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
