package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/neuroscan/internal/repository"
)

type stubUserRepo struct {
	users      map[string]*repository.User
	nextID     uint
	lastLogins map[uint]time.Time
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{
		users:      make(map[string]*repository.User),
		nextID:     1,
		lastLogins: make(map[uint]time.Time),
	}
}

func (s *stubUserRepo) Create(ctx context.Context, user *repository.User) error {
	user.ID = s.nextID
	s.nextID++
	s.users[user.Email] = user
	return nil
}

func (s *stubUserRepo) FindByEmail(ctx context.Context, email string) (*repository.User, error) {
	if user, ok := s.users[email]; ok {
		return user, nil
	}
	return nil, repository.ErrUserNotFound
}

func (s *stubUserRepo) FindByID(ctx context.Context, id uint) (*repository.User, error) {
	for _, user := range s.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (s *stubUserRepo) TouchLastLogin(ctx context.Context, id uint, at time.Time) error {
	s.lastLogins[id] = at
	return nil
}

func validInput() RegisterInput {
	return RegisterInput{
		FirstName:       "Ada",
		LastName:        "Lovelace",
		Email:           "Ada@Example.com",
		Password:        "analytical1",
		ConfirmPassword: "analytical1",
		AgreeToTerms:    true,
	}
}

func TestRegisterHashesPasswordAndLowercasesEmail(t *testing.T) {
	repo := newStubUserRepo()
	uc := NewUserUseCase(repo, "secret", "", zap.NewNop())

	user, err := uc.Register(context.Background(), validInput())
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if user.Email != "ada@example.com" {
		t.Fatalf("expected lowercased email, got %s", user.Email)
	}
	if user.PasswordHash == "analytical1" || user.PasswordHash == "" {
		t.Fatal("password must be stored hashed")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("analytical1")); err != nil {
		t.Fatalf("hash does not verify: %v", err)
	}
	if user.UserType != "healthcare" {
		t.Fatalf("expected default user type, got %s", user.UserType)
	}
}

func TestRegisterValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*RegisterInput)
		field  string
	}{
		{"terms not accepted", func(in *RegisterInput) { in.AgreeToTerms = false }, "agreeToTerms"},
		{"short first name", func(in *RegisterInput) { in.FirstName = "A" }, "firstName"},
		{"bad name characters", func(in *RegisterInput) { in.LastName = "L0v3lace" }, "lastName"},
		{"bad email", func(in *RegisterInput) { in.Email = "not-an-email" }, "email"},
		{"short password", func(in *RegisterInput) { in.Password, in.ConfirmPassword = "ab1", "ab1" }, "password"},
		{"no digit", func(in *RegisterInput) { in.Password, in.ConfirmPassword = "abcdefgh", "abcdefgh" }, "password"},
		{"no letter", func(in *RegisterInput) { in.Password, in.ConfirmPassword = "12345678", "12345678" }, "password"},
		{"mismatch", func(in *RegisterInput) { in.ConfirmPassword = "different1" }, "confirmPassword"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			uc := NewUserUseCase(newStubUserRepo(), "secret", "", zap.NewNop())
			input := validInput()
			tc.mutate(&input)

			_, err := uc.Register(context.Background(), input)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %T: %v", err, err)
			}
			if verr.Field != tc.field {
				t.Fatalf("expected field %s, got %s", tc.field, verr.Field)
			}
		})
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	repo := newStubUserRepo()
	uc := NewUserUseCase(repo, "secret", "", zap.NewNop())

	if _, err := uc.Register(context.Background(), validInput()); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}
	_, err := uc.Register(context.Background(), validInput())
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestLoginIssuesTokenAndStampsLastLogin(t *testing.T) {
	repo := newStubUserRepo()
	uc := NewUserUseCase(repo, "secret", "neuroscan", zap.NewNop())

	registered, err := uc.Register(context.Background(), validInput())
	if err != nil {
		t.Fatalf("registration failed: %v", err)
	}

	token, user, err := uc.Login(context.Background(), "ADA@example.com", "analytical1")
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if token == "" {
		t.Fatal("expected a signed token")
	}
	if user.ID != registered.ID {
		t.Fatalf("unexpected user: %+v", user)
	}
	if _, ok := repo.lastLogins[user.ID]; !ok {
		t.Fatal("expected last login to be stamped")
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	repo := newStubUserRepo()
	uc := NewUserUseCase(repo, "secret", "", zap.NewNop())

	if _, err := uc.Register(context.Background(), validInput()); err != nil {
		t.Fatalf("registration failed: %v", err)
	}

	if _, _, err := uc.Login(context.Background(), "ada@example.com", "wrongpass1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, _, err := uc.Login(context.Background(), "nobody@example.com", "analytical1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}
