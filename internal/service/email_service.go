package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
)

// EmailService sends transactional emails.
type EmailService interface {
	SendPasswordResetCode(ctx context.Context, toEmail, code, idempotencyKey string) error
}

// NoopEmailService is used when outbound email is disabled (local dev, tests).
type NoopEmailService struct{}

func (s *NoopEmailService) SendPasswordResetCode(ctx context.Context, toEmail, code, idempotencyKey string) error {
	log.Printf("[EmailService] noop send password reset code to=%s", toEmail)
	return nil
}

const (
	resetEmailSubject = "Your password reset code"

	// defaultSendAttempts includes the first try.
	defaultSendAttempts = 4
	defaultSendBackoff  = 400 * time.Millisecond

	// rateLimitWaitCap bounds how long a Retry-After hint can stall a send.
	rateLimitWaitCap = 20 * time.Second
)

// ResendEmailService delivers reset codes via the Resend REST API.
// Transient failures are retried with exponential backoff; a rate-limit
// response overrides the backoff with the provider's Retry-After hint.
type ResendEmailService struct {
	from     string
	client   *resend.Client
	codeTTL  time.Duration
	attempts int
	backoff  time.Duration
}

func NewResendEmailService(apiKey, from string, codeTTL time.Duration) (*ResendEmailService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend api key is required")
	}
	if from == "" {
		return nil, fmt.Errorf("email from is required")
	}
	if codeTTL <= 0 {
		codeTTL = 5 * time.Minute
	}
	return &ResendEmailService{
		from:     from,
		client:   resend.NewClient(apiKey),
		codeTTL:  codeTTL,
		attempts: defaultSendAttempts,
		backoff:  defaultSendBackoff,
	}, nil
}

func (s *ResendEmailService) SendPasswordResetCode(ctx context.Context, toEmail, code, idempotencyKey string) error {
	if toEmail == "" || code == "" {
		return fmt.Errorf("toEmail and code are required")
	}

	ttlMinutes := int(s.codeTTL.Minutes())
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{toEmail},
		Subject: resetEmailSubject,
		Text: fmt.Sprintf("Your password reset code is %s. It is valid for %d minutes and can be used once.",
			code, ttlMinutes),
		Html: fmt.Sprintf("<p>Your password reset code:</p>"+
			"<p style=\"font-size:22px;font-weight:bold;letter-spacing:4px\">%s</p>"+
			"<p>Valid for %d minutes, usable once. If you did not request this, ignore this email.</p>",
			code, ttlMinutes),
	}

	options := &resend.SendEmailOptions{}
	if key := strings.TrimSpace(idempotencyKey); key != "" {
		options.IdempotencyKey = key
	}

	var lastErr error
	backoff := s.backoff
	for attempt := 1; attempt <= s.attempts; attempt++ {
		_, err := s.client.Emails.SendWithOptions(ctx, params, options)
		if err == nil {
			if attempt > 1 {
				log.Printf("[EmailService] send succeeded on attempt %d", attempt)
			}
			return nil
		}
		lastErr = err

		wait, retryable := sendRetryWait(err, backoff)
		if !retryable || attempt == s.attempts {
			break
		}

		log.Printf("[EmailService] transient send failure (attempt %d/%d), retrying in %v: %v",
			attempt, s.attempts, wait, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		backoff *= 2
	}

	return fmt.Errorf("could not deliver reset code email: %w", lastErr)
}

// sendRetryWait reports whether err is worth retrying and how long to wait.
// The provider's Retry-After hint wins over the caller's backoff, capped so a
// hostile hint cannot park the worker.
func sendRetryWait(err error, backoff time.Duration) (time.Duration, bool) {
	var rateLimitErr *resend.RateLimitError
	if errors.As(err, &rateLimitErr) {
		if seconds, convErr := strconv.Atoi(strings.TrimSpace(rateLimitErr.RetryAfter)); convErr == nil && seconds > 0 {
			wait := time.Duration(seconds) * time.Second
			if wait > rateLimitWaitCap {
				wait = rateLimitWaitCap
			}
			return wait, true
		}
		return backoff, true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return backoff, true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "temporar") ||
		strings.Contains(msg, "connection reset") {
		return backoff, true
	}

	return 0, false
}
