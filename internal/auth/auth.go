// Package auth signs users up and in with email and password and issues
// JWT access tokens backed by a revocable session record.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"layover-match/internal/apperr"
	"layover-match/internal/models"
	"layover-match/internal/store"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

// TokenStore records live sessions by token id.
type TokenStore interface {
	Save(ctx context.Context, jti, userID string, ttl time.Duration) error
	Lookup(ctx context.Context, jti string) (string, error)
	Revoke(ctx context.Context, jti string) error
}

type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Grant is what a successful sign-up or sign-in hands back to the client.
type Grant struct {
	Token     string          `json:"access_token"`
	ExpiresAt time.Time       `json:"expires_at"`
	Account   *models.Account `json:"account"`
}

type Service struct {
	accounts store.AccountStore
	tokens   TokenStore
	secret   []byte
	expiry   time.Duration
	validate *validator.Validate
	now      func() time.Time
	log      *logrus.Entry
}

func NewService(accounts store.AccountStore, tokens TokenStore, secret string, expiry time.Duration, log *logrus.Entry) *Service {
	return &Service{
		accounts: accounts,
		tokens:   tokens,
		secret:   []byte(secret),
		expiry:   expiry,
		validate: validator.New(),
		now:      time.Now,
		log:      log,
	}
}

// SignUp creates an account. The new user has no profile yet.
func (s *Service) SignUp(ctx context.Context, email, password string) (*Grant, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := s.validate.Var(email, "required,email"); err != nil {
		return nil, apperr.Invalid("email is not valid")
	}
	if len(password) < minPasswordLength {
		return nil, apperr.Invalid("password must be at least %d characters", minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	account, err := s.accounts.CreateAccount(ctx, email, string(hash))
	if err != nil {
		return nil, err
	}
	s.log.WithField("user_id", account.ID).Info("Account created")

	return s.issue(ctx, account)
}

// SignIn checks the credentials and opens a new session.
func (s *Service) SignIn(ctx context.Context, email, password string) (*Grant, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	account, err := s.accounts.GetAccountByEmail(ctx, email)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("invalid credentials: %w", apperr.ErrAuth)
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("invalid credentials: %w", apperr.ErrAuth)
	}

	if err := s.accounts.TouchAccount(ctx, account.ID); err != nil {
		s.log.WithError(err).WithField("user_id", account.ID).Warn("Failed to update last seen")
	}
	return s.issue(ctx, account)
}

// CurrentSession validates a token and checks that its session is still live.
func (s *Service) CurrentSession(ctx context.Context, token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("invalid token: %w", apperr.ErrAuth)
	}
	if claims.UserID == "" || claims.ID == "" {
		return nil, fmt.Errorf("token without session: %w", apperr.ErrAuth)
	}

	userID, err := s.tokens.Lookup(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if userID != claims.UserID {
		return nil, fmt.Errorf("session belongs to another user: %w", apperr.ErrAuth)
	}
	return claims, nil
}

// SignOut revokes the session behind token.
func (s *Service) SignOut(ctx context.Context, token string) error {
	claims, err := s.CurrentSession(ctx, token)
	if err != nil {
		return err
	}
	if err := s.tokens.Revoke(ctx, claims.ID); err != nil {
		return err
	}
	s.log.WithField("user_id", claims.UserID).Info("Signed out")
	return nil
}

func (s *Service) issue(ctx context.Context, account *models.Account) (*Grant, error) {
	now := s.now()
	expiresAt := now.Add(s.expiry)
	claims := Claims{
		UserID: account.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   account.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	if err := s.tokens.Save(ctx, claims.ID, account.ID, s.expiry); err != nil {
		return nil, err
	}

	return &Grant{Token: signed, ExpiresAt: expiresAt, Account: account}, nil
}
