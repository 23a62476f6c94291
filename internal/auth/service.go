package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"otp-agent/internal/backend"
	"otp-agent/internal/model"
	"otp-agent/internal/util"
)

var ErrMissingCredentials = errors.New("email and password are required")

const minPasswordLength = 6

var (
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,20}$`)
	emailPattern    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// Registration is a signup form.
type Registration struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Validate checks the form the way the signup page does, first failure wins.
func (r Registration) Validate() error {
	switch {
	case r.Username == "" || r.Email == "" || r.Password == "" || r.ConfirmPassword == "":
		return &model.ValidationError{Field: "form", Message: "Please fill in all required fields."}
	case len(r.Username) < 3 || len(r.Username) > 20:
		return &model.ValidationError{Field: "username", Message: "Username must be between 3 and 20 characters."}
	case !usernamePattern.MatchString(r.Username):
		return &model.ValidationError{Field: "username", Message: "Username can only contain letters, numbers, and underscores."}
	}
	if err := validateEmail(r.Email); err != nil {
		return err
	}
	switch {
	case len(r.Password) < minPasswordLength:
		return &model.ValidationError{Field: "password", Message: fmt.Sprintf("Password must be at least %d characters long.", minPasswordLength)}
	case r.Password != r.ConfirmPassword:
		return &model.ValidationError{Field: "confirm_password", Message: "Passwords do not match."}
	}
	return nil
}

func validateEmail(email string) error {
	if util.ContainsSuspicious(email) || !emailPattern.MatchString(email) {
		return &model.ValidationError{Field: "email", Message: "Please enter a valid email address."}
	}
	return nil
}

// Backend is the part of the backend client the auth service uses.
type Backend interface {
	Login(ctx context.Context, email, password string) (model.Token, error)
	Register(ctx context.Context, username, email, password string) (model.Token, error)
	Me(ctx context.Context) (model.User, error)
}

type Status struct {
	LoggedIn bool        `json:"logged_in"`
	User     *model.User `json:"user,omitempty"`
	Since    *time.Time  `json:"since,omitempty"`
}

type Service struct {
	store   Store
	backend Backend
	now     func() time.Time
	logger  *zap.Logger
}

func NewService(store Store, backend Backend, logger *zap.Logger) *Service {
	return &Service{store: store, backend: backend, now: time.Now, logger: logger}
}

func (s *Service) Login(ctx context.Context, email, password string) (model.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return model.User{}, ErrMissingCredentials
	}
	if err := validateEmail(email); err != nil {
		return model.User{}, err
	}

	token, err := s.backend.Login(ctx, email, password)
	if err != nil {
		return model.User{}, err
	}
	token.IssuedAt = s.now().UTC()

	if err := s.store.Save(ctx, token); err != nil {
		return model.User{}, fmt.Errorf("save token: %w", err)
	}

	s.logger.Info("logged in", zap.String("email", email))
	return token.User, nil
}

// Register creates an account. The returned token is not stored; the user
// logs in afterwards, as on the signup page.
func (s *Service) Register(ctx context.Context, reg Registration) (model.User, error) {
	reg.Username = strings.TrimSpace(reg.Username)
	reg.Email = strings.TrimSpace(reg.Email)
	if err := reg.Validate(); err != nil {
		return model.User{}, err
	}

	token, err := s.backend.Register(ctx, reg.Username, reg.Email, reg.Password)
	if err != nil {
		return model.User{}, err
	}
	user := token.User
	if user.Username == "" {
		user.Username = reg.Username
	}
	if user.Email == "" {
		user.Email = reg.Email
	}

	s.logger.Info("account registered", zap.String("username", reg.Username))
	return user, nil
}

func (s *Service) Logout(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	s.logger.Info("logged out")
	return nil
}

// Status reports whether a token is stored and the backend still accepts
// it. A rejected token is removed.
func (s *Service) Status(ctx context.Context) (Status, error) {
	token, err := s.store.Load(ctx)
	if errors.Is(err, ErrNoToken) {
		return Status{}, nil
	}
	if errors.Is(err, ErrCorruptToken) {
		s.logger.Warn("discarding unreadable token", zap.Error(err))
		_ = s.store.Clear(ctx)
		return Status{}, nil
	}
	if err != nil {
		return Status{}, err
	}

	user, err := s.backend.Me(ctx)
	if errors.Is(err, backend.ErrUnauthorized) {
		s.logger.Info("stored token rejected by backend")
		if clearErr := s.store.Clear(ctx); clearErr != nil {
			return Status{}, fmt.Errorf("clear token: %w", clearErr)
		}
		return Status{}, nil
	}
	if err != nil {
		return Status{}, err
	}

	since := token.IssuedAt
	return Status{LoggedIn: true, User: &user, Since: &since}, nil
}
