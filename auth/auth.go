// Package auth implements account registration, sign-in and JWT issuance for
// the dashboard API.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/form3tech-oss/jwt-go"
	"golang.org/x/crypto/bcrypt"

	"github.com/habithive/habithive/lib/utils"
	"github.com/habithive/habithive/models"
	storage "github.com/habithive/habithive/storage/persistent"
)

const (
	authTokenTTL    = 24 * time.Hour
	refreshTokenTTL = 30 * 24 * time.Hour
)

// ErrAuthenticationFailed covers every credential mismatch. One message for
// unknown email and wrong password alike, so the response doesn't reveal
// which accounts exist.
var ErrAuthenticationFailed = errors.New("authentication failed")

// Service issues and verifies tokens against the user store.
type Service struct {
	store      storage.UserStore
	signingKey []byte
}

// NewService builds an auth service over the given user store.
func NewService(store storage.UserStore, signingKey string) *Service {
	return &Service{
		store:      store,
		signingKey: []byte(signingKey),
	}
}

// CreateAuthToken creates a signed short-lived JWT carrying the user's id.
func (s *Service) CreateAuthToken(userID string) (string, error) {
	return s.signToken(userID, authTokenTTL)
}

// CreateRefreshToken creates a signed long-lived JWT used to mint new auth
// tokens.
func (s *Service) CreateRefreshToken(userID string) (string, error) {
	return s.signToken(userID, refreshTokenTTL)
}

// CreateTokens creates an auth token and a refresh token pair.
func (s *Service) CreateTokens(userID string) (string, string, error) {
	authToken, err := s.CreateAuthToken(userID)
	if err != nil {
		return "", "", err
	}

	refreshToken, err := s.CreateRefreshToken(userID)
	if err != nil {
		return "", "", err
	}

	return authToken, refreshToken, nil
}

func (s *Service) signToken(userID string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"id":  userID,
		"exp": time.Now().Add(ttl).Unix(),
	}

	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := newToken.SignedString(s.signingKey)
	if err != nil {
		return "", errors.New("failed to create token")
	}
	return signedToken, nil
}

// ParseToken verifies a signed token and returns the user id claim.
func (s *Service) ParseToken(tokenStr string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil {
		return "", errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", errors.New("invalid token claims")
	}

	userID, ok := claims["id"].(string)
	if !ok || userID == "" {
		return "", errors.New("invalid token claims")
	}
	return userID, nil
}

// SignUp registers a new user and returns a token pair for the fresh account.
func (s *Service) SignUp(ctx context.Context, username, email, password string) (string, string, error) {
	if len(username) < 2 {
		return "", "", errors.New("username must be at least 2 characters")
	}
	if !utils.ValidateEmail(email) {
		return "", "", errors.New("invalid email format")
	}
	if !utils.ValidatePassword(password) {
		return "", "", errors.New("password must be at least 8 characters and contain both letters and numbers")
	}

	foundUser, err := s.store.FindUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return "", "", err
	}
	if foundUser != nil {
		return "", "", errors.New("an account with this email already exists")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", "", err
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hashedPassword),
	}
	created, err := s.store.AddUser(ctx, user)
	if err != nil {
		return "", "", err
	}

	return s.CreateTokens(created.ID)
}

// SignIn authenticates a user by email and password and returns a token pair.
func (s *Service) SignIn(ctx context.Context, email, password string) (string, string, error) {
	foundUser, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		return "", "", ErrAuthenticationFailed
	}

	if err := bcrypt.CompareHashAndPassword([]byte(foundUser.PasswordHash), []byte(password)); err != nil {
		return "", "", ErrAuthenticationFailed
	}

	return s.CreateTokens(foundUser.ID)
}

// Refresh verifies a refresh token and mints a new token pair. The user must
// still exist.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, string, error) {
	userID, err := s.ParseToken(refreshToken)
	if err != nil {
		return "", "", err
	}

	if _, err := s.store.FindUserByID(ctx, userID); err != nil {
		return "", "", ErrAuthenticationFailed
	}

	return s.CreateTokens(userID)
}
