package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"gopherchat/internal/model"
	"gopherchat/internal/oauth"
	"gopherchat/internal/pkg/jwtutil"
	"gopherchat/internal/repository"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrUsernameExists    = errors.New("username already exists")
	ErrEmailExists       = errors.New("email already exists")
	ErrInvalidCredential = errors.New("invalid username or password")
)

type AuthService struct {
	userRepo      *repository.UserRepository
	jwtSecret     string
	jwtExpiration time.Duration
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

type LoginInput struct {
	Username string
	Password string
}

type AuthResult struct {
	Token string
	User  *model.User
}

func NewAuthService(userRepo *repository.UserRepository, jwtSecret string, jwtExpiration time.Duration) *AuthService {
	return &AuthService{
		userRepo:      userRepo,
		jwtSecret:     jwtSecret,
		jwtExpiration: jwtExpiration,
	}
}

func (s *AuthService) Register(input RegisterInput) (*AuthResult, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.TrimSpace(strings.ToLower(input.Email))
	password := strings.TrimSpace(input.Password)

	if username == "" || email == "" || password == "" || len(password) < 7 {
		return nil, ErrInvalidInput
	}

	existingByName, err := s.userRepo.GetByUsername(username)
	if err != nil {
		return nil, err
	}
	if existingByName != nil {
		return nil, ErrUsernameExists
	}

	existingByEmail, err := s.userRepo.GetByEmail(email)
	if err != nil {
		return nil, err
	}
	if existingByEmail != nil {
		return nil, ErrEmailExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password failed: %w", err)
	}

	user := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := s.userRepo.Create(user); err != nil {
		return nil, err
	}

	token, err := jwtutil.GenerateToken(s.jwtSecret, s.jwtExpiration, user.ID, user.Username)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, User: user}, nil
}

func (s *AuthService) Login(input LoginInput) (*AuthResult, error) {
	username := strings.TrimSpace(input.Username)
	password := strings.TrimSpace(input.Password)
	if username == "" || password == "" {
		return nil, ErrInvalidInput
	}

	user, err := s.userRepo.GetByUsername(username)
	if err != nil {
		return nil, err
	}
	if user == nil || user.PasswordHash == "" {
		return nil, ErrInvalidCredential
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredential
	}

	token, err := jwtutil.GenerateToken(s.jwtSecret, s.jwtExpiration, user.ID, user.Username)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, User: user}, nil
}

// OAuthLogin resolves a verified provider identity to a local user,
// creating one on first login and refreshing profile fields on re-login.
// An existing account with the same email is linked rather than duplicated.
func (s *AuthService) OAuthLogin(identity oauth.Identity) (*AuthResult, error) {
	if identity.Subject == "" || identity.Email == "" {
		return nil, ErrInvalidInput
	}

	user, err := s.userRepo.GetByOAuthIdentity(identity.Provider, identity.Subject)
	if err != nil {
		return nil, err
	}

	if user == nil {
		user, err = s.userRepo.GetByEmail(identity.Email)
		if err != nil {
			return nil, err
		}
	}

	if user == nil {
		user = &model.User{
			Username:      s.usernameFor(identity),
			Email:         identity.Email,
			AvatarURL:     identity.AvatarURL,
			OAuthProvider: identity.Provider,
			OAuthSubject:  identity.Subject,
		}
		if err := s.userRepo.Create(user); err != nil {
			return nil, err
		}
	} else {
		user.OAuthProvider = identity.Provider
		user.OAuthSubject = identity.Subject
		if identity.AvatarURL != "" {
			user.AvatarURL = identity.AvatarURL
		}
		if err := s.userRepo.Update(user); err != nil {
			return nil, err
		}
	}

	token, err := jwtutil.GenerateToken(s.jwtSecret, s.jwtExpiration, user.ID, user.Username)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, User: user}, nil
}

func (s *AuthService) GetUserByID(id uint) (*model.User, error) {
	if id == 0 {
		return nil, ErrInvalidInput
	}
	return s.userRepo.GetByID(id)
}

// usernameFor derives a unique username from the provider identity, suffixing
// the email local part when it is already taken.
func (s *AuthService) usernameFor(identity oauth.Identity) string {
	base := strings.TrimSpace(identity.Name)
	if base == "" {
		base = identity.Email
	}
	if at := strings.Index(base, "@"); at > 0 {
		base = base[:at]
	}
	base = strings.ToLower(strings.ReplaceAll(base, " ", "-"))
	if base == "" {
		base = identity.Provider + "-user"
	}

	candidate := base
	for i := 1; i < 100; i++ {
		existing, err := s.userRepo.GetByUsername(candidate)
		if err != nil || existing == nil {
			return candidate
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
	return fmt.Sprintf("%s-%d", base, time.Now().Unix())
}
