package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/yourusername/inventory-api/internal/pkg/errors"
	"github.com/yourusername/inventory-api/internal/service"
	"github.com/yourusername/inventory-api/pkg/auth"
)

// AuthHandler handles registration, login and current-user requests.
type AuthHandler struct {
	authService *service.AuthService
	jwtService  *auth.JWTService
}

func NewAuthHandler(authService *service.AuthService, jwtService *auth.JWTService) *AuthHandler {
	return &AuthHandler{authService: authService, jwtService: jwtService}
}

// RegisterRequest is the registration payload.
type RegisterRequest struct {
	FirstName string `json:"firstName" binding:"required"`
	LastName  string `json:"lastName" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
	Age       int    `json:"age" binding:"required"`
	Gender    string `json:"gender" binding:"required"`
	Password  string `json:"password" binding:"required"`
}

// LoginRequest is the login payload.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// userPayload is the user shape returned to clients.
type userPayload struct {
	ID        uint   `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Age       int    `json:"age"`
	Gender    string `json:"gender"`
	Role      string `json:"role"`
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "All fields are required", "error_type": "validation_error"})
		return
	}

	_, err := h.authService.RegisterUser(service.RegisterInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Age:       req.Age,
		Gender:    req.Gender,
		Password:  req.Password,
	})
	if err != nil {
		h.handleAuthError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "User registered successfully."})
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email and password are required.", "error_type": "validation_error"})
		return
	}

	user, token, err := h.authService.LoginUser(req.Email, req.Password)
	if err != nil {
		h.handleAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":     token,
		"expiresIn": h.jwtService.ExpirySeconds(),
		"user": userPayload{
			ID:        user.ID,
			FirstName: user.FirstName,
			LastName:  user.LastName,
			Email:     user.Email,
			Age:       user.Age,
			Gender:    user.Gender,
			Role:      user.Role,
		},
	})
}

// GetMe handles GET /api/auth/me. The bearer token is parsed right here:
// this is the only route that needs one, so there is no middleware layer.
func (h *AuthHandler) GetMe(c *gin.Context) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required", "error_type": "token_missing"})
		return
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer {token}", "error_type": "token_format"})
		return
	}

	claims, err := h.jwtService.ParseAccessToken(parts[1])
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token", "error_type": "token_invalid"})
		return
	}

	user, err := h.authService.GetUserByID(claims.UserID)
	if err != nil {
		h.handleAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user": userPayload{
			ID:        user.ID,
			FirstName: user.FirstName,
			LastName:  user.LastName,
			Email:     user.Email,
			Age:       user.Age,
			Gender:    user.Gender,
			Role:      user.Role,
		},
	})
}

// handleAuthError maps service errors to status codes and stable error_type
// strings, once, at the transport boundary.
func (h *AuthHandler) handleAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_type": "validation_error"})
	case errors.Is(err, apperrors.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials.", "error_type": "invalid_credentials"})
	case errors.Is(err, apperrors.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "Email is already registered.", "error_type": "conflict"})
	case errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Resource not found.", "error_type": "not_found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error. Please try again.", "error_type": "internal_server_error"})
	}
}
