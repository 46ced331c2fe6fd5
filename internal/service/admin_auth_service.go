package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/GTDGit/catalog_api/internal/models"
	"github.com/GTDGit/catalog_api/internal/utils"
)

// AdminUserStore is the admin account store.
type AdminUserStore interface {
	GetByEmail(ctx context.Context, email string) (*models.AdminUser, error)
	Create(ctx context.Context, user *models.AdminUser) error
	TouchLastLogin(ctx context.Context, id int) error
}

type AdminAuthService struct {
	adminRepo AdminUserStore
}

func NewAdminAuthService(adminRepo AdminUserStore) *AdminAuthService {
	return &AdminAuthService{adminRepo: adminRepo}
}

// LoginResult is returned on a successful login.
type LoginResult struct {
	Token string            `json:"token"`
	User  *models.AdminUser `json:"user"`
}

func (s *AdminAuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	log.Debug().Str("email", email).Msg("Login attempt")

	user, err := s.adminRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.ErrInvalidCredentials
		}
		log.Error().Err(err).Str("email", email).Msg("Failed to get user by email")
		return nil, err
	}

	if !user.IsActive {
		log.Warn().Str("email", email).Msg("Account is inactive")
		return nil, utils.ErrAccountInactive
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		log.Warn().Str("email", email).Msg("Password verification failed")
		return nil, utils.ErrInvalidCredentials
	}

	token, err := utils.GenerateJWT(user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	if err := s.adminRepo.TouchLastLogin(ctx, user.ID); err != nil {
		log.Warn().Err(err).Int("user_id", user.ID).Msg("Failed to record last login")
	}

	log.Info().Str("email", email).Msg("Login successful")
	return &LoginResult{Token: token, User: user}, nil
}

// CreateAdmin stores a new active admin. It returns sql.ErrNoRows when the
// email is already taken.
func (s *AdminAuthService) CreateAdmin(ctx context.Context, email, password, name string) (*models.AdminUser, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &models.AdminUser{
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: string(hashedPassword),
		Name:         name,
		IsActive:     true,
	}
	if err := s.adminRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// EnsureAdmin creates the bootstrap admin unless the email already exists.
func (s *AdminAuthService) EnsureAdmin(ctx context.Context, email, password, name string) error {
	if email == "" || password == "" {
		return nil
	}
	_, err := s.CreateAdmin(ctx, email, password, name)
	switch {
	case err == nil:
		log.Info().Str("email", email).Msg("Bootstrap admin created")
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return nil
	default:
		return err
	}
}
