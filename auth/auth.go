package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"winequiz/store"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidEmail       = errors.New("a valid email is required")
	ErrInvalidPassword    = errors.New("password must be at least 8 characters and contain both letters and numbers")
	ErrInvalidAlias       = errors.New("alias must be 2-30 characters")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// ProfileStore is the slice of persistence accounts need.
type ProfileStore interface {
	CreateProfile(ctx context.Context, p *store.Profile) error
	GetProfileByEmail(ctx context.Context, email string) (*store.Profile, error)
}

type Service struct {
	store  ProfileStore
	tokens *TokenIssuer
}

func NewService(store ProfileStore, tokens *TokenIssuer) *Service {
	return &Service{
		store:  store,
		tokens: tokens,
	}
}

type SignUpInput struct {
	Email    string
	Password string
	Alias    string
	Country  string
}

func (s *Service) SignUp(ctx context.Context, in SignUpInput) (*store.Profile, string, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, "", err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, "", err
	}

	alias := SanitizeString(in.Alias)
	if alias == "" {
		alias = strings.SplitN(email, "@", 2)[0]
	}
	if n := len([]rune(alias)); n < 2 || n > 30 {
		return nil, "", ErrInvalidAlias
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	profile := &store.Profile{
		Email:        email,
		PasswordHash: string(passwordHash),
		Alias:        alias,
		Country:      strings.ToUpper(SanitizeString(in.Country)),
	}
	if err := s.store.CreateProfile(ctx, profile); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, "", ErrEmailTaken
		}
		return nil, "", fmt.Errorf("failed to create profile: %w", err)
	}

	token, err := s.tokens.Issue(profile.ID)
	if err != nil {
		return nil, "", err
	}
	return profile, token, nil
}

func (s *Service) SignIn(ctx context.Context, email, password string) (*store.Profile, string, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, "", ErrInvalidCredentials
	}

	profile, err := s.store.GetProfileByEmail(ctx, email)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get profile: %w", err)
	}
	if profile == nil {
		return nil, "", ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(profile.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(profile.ID)
	if err != nil {
		return nil, "", err
	}
	return profile, token, nil
}

// Authenticate resolves a bearer token to a profile id.
func (s *Service) Authenticate(token string) (string, error) {
	return s.tokens.Validate(token)
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func validatePassword(password string) error {
	if len(password) < 8 {
		return ErrInvalidPassword
	}

	hasLetter := false
	hasNumber := false

	for _, char := range password {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') {
			hasLetter = true
		}
		if char >= '0' && char <= '9' {
			hasNumber = true
		}
	}

	if !hasLetter || !hasNumber {
		return ErrInvalidPassword
	}

	return nil
}
