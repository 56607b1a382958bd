package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/souqhub/souq-api/internal/model"
	"github.com/souqhub/souq-api/internal/repository"
)

var (
	ErrCredentialFormat  = errors.New("credential must be a 4-digit PIN or 10-digit phone number")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrSessionInvalid    = errors.New("invalid session")
	ErrPINInUse          = errors.New("pin already in use")
	ErrUserNotFound      = errors.New("user not found")
	ErrUserHasOrders     = errors.New("user has order history")
)

// Principal is an authenticated actor: an administrator or employee matched
// by PIN, or a market owner matched by phone number.
type Principal struct {
	ID       uuid.UUID
	Name     string
	Role     model.Role
	MarketID *uuid.UUID
}

type AuthService struct {
	userRepo   repository.UserRepository
	marketRepo repository.MarketRepository
	jwtSecret  []byte
	sessionTTL time.Duration
}

func NewAuthService(userRepo repository.UserRepository, marketRepo repository.MarketRepository, jwtSecret string, sessionTTL time.Duration) *AuthService {
	return &AuthService{
		userRepo:   userRepo,
		marketRepo: marketRepo,
		jwtSecret:  []byte(jwtSecret),
		sessionTTL: sessionTTL,
	}
}

// Authenticate dispatches on credential shape: 4 digits is a staff PIN,
// 10 digits is a market phone number. Anything else is a format error.
func (s *AuthService) Authenticate(ctx context.Context, credential string) (*Principal, error) {
	switch {
	case isDigits(credential, 4):
		return s.authenticatePIN(ctx, credential)
	case isDigits(credential, 10):
		return s.authenticatePhone(ctx, credential)
	}
	return nil, ErrCredentialFormat
}

// authenticatePIN scans every stored hash. PINs are salted, so there is no
// lookup by plaintext; first match wins. Creation-time uniqueness keeps
// collisions out in practice.
func (s *AuthService) authenticatePIN(ctx context.Context, pin string) (*Principal, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	for _, u := range users {
		if bcrypt.CompareHashAndPassword([]byte(u.PINHash), []byte(pin)) == nil {
			return &Principal{ID: u.ID, Name: u.Name, Role: u.Role}, nil
		}
	}
	return nil, ErrInvalidCredential
}

func (s *AuthService) authenticatePhone(ctx context.Context, phone string) (*Principal, error) {
	market, err := s.marketRepo.GetByPhone(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("get market by phone: %w", err)
	}
	if market == nil {
		return nil, ErrInvalidCredential
	}
	marketID := market.ID
	return &Principal{ID: market.ID, Name: market.Name, Role: model.RoleMarketOwner, MarketID: &marketID}, nil
}

// IssueSession mints a signed token carrying the principal's identity, role
// and market affiliation.
func (s *AuthService) IssueSession(p *Principal) (string, error) {
	claims := jwt.MapClaims{
		"sub":  p.ID.String(),
		"role": string(p.Role),
		"exp":  time.Now().Add(s.sessionTTL).Unix(),
		"iat":  time.Now().Unix(),
	}
	if p.MarketID != nil {
		claims["market_id"] = p.MarketID.String()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}

// ValidateSession checks signature and expiry, then verifies the referenced
// user or market still exists. A token for a deleted identity is stale and
// rejected, not trusted.
func (s *AuthService) ValidateSession(ctx context.Context, tokenStr string) (*model.AuthContext, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrSessionInvalid
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrSessionInvalid
	}

	sub, _ := claims["sub"].(string)
	principalID, err := uuid.Parse(sub)
	if err != nil {
		return nil, ErrSessionInvalid
	}
	roleStr, _ := claims["role"].(string)
	role, err := model.ParseRole(roleStr)
	if err != nil {
		return nil, ErrSessionInvalid
	}

	if role == model.RoleMarketOwner {
		marketStr, _ := claims["market_id"].(string)
		marketID, err := uuid.Parse(marketStr)
		if err != nil {
			return nil, ErrSessionInvalid
		}
		market, err := s.marketRepo.GetByID(ctx, marketID)
		if err != nil {
			return nil, fmt.Errorf("verify market: %w", err)
		}
		if market == nil {
			return nil, ErrSessionInvalid
		}
		return &model.AuthContext{UserID: principalID, Role: model.RoleMarketOwner, MarketID: &marketID}, nil
	}

	user, err := s.userRepo.GetByID(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("verify user: %w", err)
	}
	if user == nil {
		return nil, ErrSessionInvalid
	}
	// Role from the row, not the token, so a demoted user loses access on
	// the next request.
	return &model.AuthContext{UserID: user.ID, Role: user.Role}, nil
}

// CreateUser registers a staff identity. The PIN is checked against every
// existing hash before insert; the repository serializes the check and the
// insert behind an advisory lock.
func (s *AuthService) CreateUser(ctx context.Context, name, roleStr, pin string) (*model.User, error) {
	role, err := model.ParseRole(roleStr)
	if err != nil || role == model.RoleMarketOwner {
		return nil, fmt.Errorf("%w: staff role must be ADMIN or EMPLOYEE", ErrCredentialFormat)
	}
	if !isDigits(pin, 4) {
		return nil, fmt.Errorf("%w: PIN must be exactly 4 digits", ErrCredentialFormat)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash pin: %w", err)
	}

	user := &model.User{Name: name, PINHash: string(hashed), Role: role}
	err = s.userRepo.Create(ctx, user, func(hash string) bool {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) == nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrPINTaken) {
			return nil, ErrPINInUse
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (s *AuthService) ListUsers(ctx context.Context) ([]model.User, error) {
	return s.userRepo.List(ctx)
}

func (s *AuthService) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

// DeleteUser removes a staff identity. Users that own orders cannot be
// deleted; the audit trail keeps its author.
func (s *AuthService) DeleteUser(ctx context.Context, id uuid.UUID) error {
	err := s.userRepo.Delete(ctx, id)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrUserHasOrders):
		return ErrUserHasOrders
	case errors.Is(err, pgx.ErrNoRows):
		return ErrUserNotFound
	}
	return fmt.Errorf("delete user: %w", err)
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
