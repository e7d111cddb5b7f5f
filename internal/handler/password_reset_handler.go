package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/yourusername/inventory-api/internal/pkg/errors"
	"github.com/yourusername/inventory-api/internal/service"
)

// PasswordResetHandler exposes the three-phase OTP password reset flow.
type PasswordResetHandler struct {
	resetService *service.PasswordResetService
}

func NewPasswordResetHandler(resetService *service.PasswordResetService) *PasswordResetHandler {
	return &PasswordResetHandler{resetService: resetService}
}

// ForgotPasswordRequest is the phase 1 payload.
type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required"`
}

// VerifyOtpRequest is the phase 2 payload.
type VerifyOtpRequest struct {
	Email string `json:"email" binding:"required"`
	Code  string `json:"code" binding:"required"`
}

// ResetPasswordRequest is the phase 3 payload.
type ResetPasswordRequest struct {
	ResetToken  string `json:"resetToken" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required"`
}

// ForgotPassword handles POST /api/auth/forgot-password. The response is the
// same whether or not the email belongs to an account.
func (h *PasswordResetHandler) ForgotPassword(c *gin.Context) {
	var req ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email is required", "error_type": "validation_error"})
		return
	}

	if err := h.resetService.RequestReset(c.Request.Context(), req.Email); err != nil {
		h.handleResetError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "If the email exists, a verification code was sent. Please check your inbox.",
	})
}

// VerifyOtp handles POST /api/auth/verify-otp.
func (h *PasswordResetHandler) VerifyOtp(c *gin.Context) {
	var req VerifyOtpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email and code are required", "error_type": "validation_error"})
		return
	}

	resetToken, err := h.resetService.VerifyCode(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		h.handleResetError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"resetToken": resetToken})
}

// ResetPassword handles POST /api/auth/reset-password.
func (h *PasswordResetHandler) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Token and new password are required", "error_type": "validation_error"})
		return
	}

	if err := h.resetService.ResetPassword(c.Request.Context(), req.ResetToken, req.NewPassword); err != nil {
		h.handleResetError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Password reset successful"})
}

// handleResetError is the single mapping from reset flow errors to transport
// status codes. The orchestrator itself never sees HTTP concerns.
func (h *PasswordResetHandler) handleResetError(c *gin.Context, err error) {
	var cooldownErr *service.ResetCooldownError
	switch {
	case errors.As(err, &cooldownErr):
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":      "An OTP was already sent. Please wait before requesting a new code.",
			"error_type": "rate_limited",
			"retryAfter": cooldownErr.RetryAfter,
		})
	case errors.Is(err, apperrors.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_type": "validation_error"})
	case errors.Is(err, service.ErrResetCodeExpired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Code expired. Request a new one.", "error_type": "code_expired"})
	case errors.Is(err, service.ErrTooManyResetAttempts):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many attempts. Request a new code.", "error_type": "too_many_attempts"})
	case errors.Is(err, service.ErrInvalidResetCode):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid code", "error_type": "invalid_code"})
	case errors.Is(err, service.ErrResetTokenInvalid):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token", "error_type": "token_invalid"})
	case errors.Is(err, service.ErrResetTokenPurpose):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token purpose", "error_type": "token_purpose"})
	case errors.Is(err, service.ErrResetAccountNotFound):
		c.JSON(http.StatusBadRequest, gin.H{"error": "User not found", "error_type": "user_not_found"})
	default:
		// Store or mail transport failure: no internals leak to the caller.
		log.Printf("[PasswordResetHandler] unexpected error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong", "error_type": "internal_server_error"})
	}
}
