package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ferrychris/policyweb-sub000/internal/domain"
	"github.com/ferrychris/policyweb-sub000/internal/infra/auth"
	"github.com/ferrychris/policyweb-sub000/internal/validation"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// UserStore: хранилище учетных записей.
type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	CreateUser(ctx context.Context, u *domain.User) error
}

type AuthService struct {
	repo       UserStore
	signer     *auth.Signer
	bcryptCost int
	logger     *zap.Logger
}

func NewAuthService(repo UserStore, signer *auth.Signer, bcryptCost int, logger *zap.Logger) *AuthService {
	if bcryptCost < bcrypt.MinCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &AuthService{
		repo:       repo,
		signer:     signer,
		bcryptCost: bcryptCost,
		logger:     logger.Named("auth"),
	}
}

// GenerateToken проверяет пароль и выпускает RS256-токен.
// Неверный логин и неверный пароль неразличимы: domain.ErrInvalidCredentials.
func (s *AuthService) GenerateToken(ctx context.Context, username, password string) (*domain.TokenResponse, error) {
	user, err := s.repo.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, fmt.Errorf("auth: lookup user: %w", err)
	}
	if user == nil {
		return nil, domain.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	return s.signer.Issue(user)
}

// Register создает пользователя без подписки.
func (s *AuthService) Register(ctx context.Context, req domain.RegisterRequest) (*domain.User, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	return s.create(ctx, req.Username, req.Email, req.Password, nil)
}

// EnsureAdmin заводит оператора с scope admin, если его еще нет.
func (s *AuthService) EnsureAdmin(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return nil
	}
	existing, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("auth: lookup admin: %w", err)
	}
	if existing != nil {
		return nil
	}
	_, err = s.create(ctx, username, username+"@admin.local", password, map[string]bool{domain.ScopeAdmin: true})
	if errors.Is(err, domain.ErrUserExists) {
		return nil
	}
	if err == nil {
		s.logger.Info("admin account created", zap.String("username", username))
	}
	return err
}

func (s *AuthService) create(ctx context.Context, username, email, password string, scopes map[string]bool) (*domain.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}
	if scopes == nil {
		scopes = map[string]bool{}
	}
	role := "user"
	if scopes[domain.ScopeAdmin] {
		role = "admin"
	}
	now := time.Now().UTC()
	u := &domain.User{
		ID:           uuid.New().String(),
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
		Scopes:       scopes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}
