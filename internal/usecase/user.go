package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/neuroscan/internal/auth"
	"github.com/example/neuroscan/internal/repository"
)

var (
	// ErrInvalidCredentials is returned for a failed login, without revealing
	// whether the email or the password was wrong.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrEmailTaken is returned when registering an address already in use.
	ErrEmailTaken = errors.New("an account with this email already exists")

	// ErrAccountDisabled is returned when a deactivated account logs in.
	ErrAccountDisabled = errors.New("account is deactivated")
)

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	namePattern  = regexp.MustCompile(`^[a-zA-Z\s'-]+$`)
)

// ValidationError reports a rejected registration field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// UserRepositoryAPI defines the persistence operations the user flow needs.
type UserRepositoryAPI interface {
	Create(ctx context.Context, user *repository.User) error
	FindByEmail(ctx context.Context, email string) (*repository.User, error)
	FindByID(ctx context.Context, id uint) (*repository.User, error)
	TouchLastLogin(ctx context.Context, id uint, at time.Time) error
}

// UserUseCase handles registration, login, and profile lookup.
type UserUseCase struct {
	repo        UserRepositoryAPI
	jwtSecret   string
	jwtAudience string
	logger      *zap.Logger
}

// NewUserUseCase constructs a new use case instance.
func NewUserUseCase(repo UserRepositoryAPI, jwtSecret, jwtAudience string, logger *zap.Logger) *UserUseCase {
	return &UserUseCase{
		repo:        repo,
		jwtSecret:   jwtSecret,
		jwtAudience: jwtAudience,
		logger:      logger.Named("user_usecase"),
	}
}

// RegisterInput carries the signup form fields.
type RegisterInput struct {
	FirstName       string
	LastName        string
	Email           string
	Password        string
	ConfirmPassword string
	UserType        string
	AgreeToTerms    bool
}

// Register validates the input, hashes the password, and creates the account.
func (uc *UserUseCase) Register(ctx context.Context, input RegisterInput) (*repository.User, error) {
	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if input.UserType == "" {
		input.UserType = "healthcare"
	}

	if err := validateRegistration(input); err != nil {
		return nil, err
	}

	if _, err := uc.repo.FindByEmail(ctx, input.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &repository.User{
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Email:        input.Email,
		PasswordHash: string(hash),
		UserType:     input.UserType,
		IsActive:     true,
	}
	if err := uc.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	uc.logger.Info("user registered", zap.Uint("user_id", user.ID))
	return user, nil
}

// Login checks credentials and returns a signed access token.
func (uc *UserUseCase) Login(ctx context.Context, email, password string) (string, *repository.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := uc.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return "", nil, ErrAccountDisabled
	}

	token, err := auth.IssueToken(uc.jwtSecret, fmt.Sprintf("%d", user.ID), uc.jwtAudience)
	if err != nil {
		return "", nil, err
	}

	now := time.Now().UTC()
	if err := uc.repo.TouchLastLogin(ctx, user.ID, now); err != nil {
		// Login still succeeds; the timestamp is best effort.
		uc.logger.Warn("failed to update last login", zap.Uint("user_id", user.ID), zap.Error(err))
	}
	user.LastLogin = &now

	return token, user, nil
}

// Profile returns the account behind an authenticated subject.
func (uc *UserUseCase) Profile(ctx context.Context, id uint) (*repository.User, error) {
	return uc.repo.FindByID(ctx, id)
}

func validateRegistration(input RegisterInput) error {
	if !input.AgreeToTerms {
		return &ValidationError{Field: "agreeToTerms", Message: "you must agree to the terms and conditions"}
	}
	if err := validateName("firstName", input.FirstName); err != nil {
		return err
	}
	if err := validateName("lastName", input.LastName); err != nil {
		return err
	}
	if !emailPattern.MatchString(input.Email) {
		return &ValidationError{Field: "email", Message: "please provide a valid email address"}
	}
	if err := validatePassword(input.Password); err != nil {
		return err
	}
	if input.Password != input.ConfirmPassword {
		return &ValidationError{Field: "confirmPassword", Message: "password and confirm password do not match"}
	}
	return nil
}

func validateName(field, name string) error {
	if len(strings.TrimSpace(name)) < 2 {
		return &ValidationError{Field: field, Message: "name must be at least 2 characters long"}
	}
	if !namePattern.MatchString(name) {
		return &ValidationError{Field: field, Message: "name can only contain letters, spaces, hyphens, and apostrophes"}
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 8 {
		return &ValidationError{Field: "password", Message: "password must be at least 8 characters long"}
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter {
		return &ValidationError{Field: "password", Message: "password must contain at least one letter"}
	}
	if !hasDigit {
		return &ValidationError{Field: "password", Message: "password must contain at least one number"}
	}
	return nil
}
