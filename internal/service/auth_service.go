package service

import (
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/yourusername/inventory-api/internal/domain/entity"
	"github.com/yourusername/inventory-api/internal/domain/repository"
	apperrors "github.com/yourusername/inventory-api/internal/pkg/errors"
	"github.com/yourusername/inventory-api/pkg/auth"
)

var (
	nameRegex  = regexp.MustCompile(`^[A-Za-z\s'-]+$`)
	emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// AuthService handles registration and login.
type AuthService struct {
	userRepo   repository.UserRepository
	jwtService *auth.JWTService
}

func NewAuthService(userRepo repository.UserRepository, jwtService *auth.JWTService) (*AuthService, error) {
	if userRepo == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if jwtService == nil {
		return nil, fmt.Errorf("jwt service is required")
	}
	return &AuthService{userRepo: userRepo, jwtService: jwtService}, nil
}

// RegisterInput carries the registration form fields.
type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Age       int
	Gender    string
	Password  string
}

// RegisterUser validates the input and creates a new account with role "user".
func (s *AuthService) RegisterUser(input RegisterInput) (*entity.User, error) {
	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)
	input.Email = normalizeEmail(input.Email)
	input.Gender = strings.ToLower(strings.TrimSpace(input.Gender))

	if err := validateName(input.FirstName, "first name"); err != nil {
		return nil, err
	}
	if err := validateName(input.LastName, "last name"); err != nil {
		return nil, err
	}
	if len(input.Email) > 100 || !emailRegex.MatchString(input.Email) {
		return nil, fmt.Errorf("%w: enter a valid email address", apperrors.ErrValidation)
	}
	if input.Age < 13 || input.Age > 120 {
		return nil, fmt.Errorf("%w: age must be between 13 and 120", apperrors.ErrValidation)
	}
	if input.Gender != "male" && input.Gender != "female" {
		return nil, fmt.Errorf("%w: gender must be 'male' or 'female'", apperrors.ErrValidation)
	}
	if !isStrongPassword(input.Password) {
		return nil, fmt.Errorf("%w: password must be 8+ chars and include uppercase, lowercase, number, and special character", apperrors.ErrValidation)
	}

	_, err := s.userRepo.GetByEmail(input.Email)
	if err == nil {
		return nil, fmt.Errorf("%w: email is already registered", apperrors.ErrConflict)
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("failed to check email existence: %w", err)
	}

	user := &entity.User{
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Email:     input.Email,
		Age:       input.Age,
		Gender:    input.Gender,
		Password:  input.Password,
		Role:      "user",
	}
	if err := s.userRepo.Create(user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	log.Printf("[AuthService] user ID=%d registered", user.ID)
	return user, nil
}

// LoginUser authenticates the credentials and returns the user with a signed
// access token. Unknown email and wrong password are indistinguishable.
func (s *AuthService) LoginUser(email, password string) (*entity.User, string, error) {
	user, err := s.AuthenticateUser(email, password)
	if err != nil {
		return nil, "", err
	}

	token, err := s.jwtService.GenerateAccessToken(user)
	if err != nil {
		log.Printf("[AuthService] failed to generate access token for user ID=%d: %v", user.ID, err)
		return nil, "", fmt.Errorf("failed to generate access token")
	}
	return user, token, nil
}

// AuthenticateUser checks credentials without issuing a token.
func (s *AuthService) AuthenticateUser(email, password string) (*entity.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", apperrors.ErrValidation)
	}

	user, err := s.userRepo.GetByEmail(email)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid credentials", apperrors.ErrUnauthorized)
	}
	if !user.CheckPassword(password) {
		return nil, fmt.Errorf("%w: invalid credentials", apperrors.ErrUnauthorized)
	}
	return user, nil
}

// GetUserByID returns the user for the given id.
func (s *AuthService) GetUserByID(userID uint) (*entity.User, error) {
	return s.userRepo.GetByID(userID)
}

func validateName(name, field string) error {
	if len(name) < 2 || len(name) > 50 || !nameRegex.MatchString(name) {
		return fmt.Errorf("%w: %s must be 2-50 chars and only letters, spaces, hyphens, apostrophes", apperrors.ErrValidation, field)
	}
	return nil
}

// isStrongPassword requires 8+ chars with upper, lower, digit and special.
func isStrongPassword(password string) bool {
	if len(password) < 8 {
		return false
	}
	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		case r == '_' || r == ' ':
			// word characters and whitespace do not count as special
		default:
			hasSpecial = true
		}
	}
	return hasUpper && hasLower && hasDigit && hasSpecial
}

// normalizeEmail trims whitespace and lower-cases the address.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
