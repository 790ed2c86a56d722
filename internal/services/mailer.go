package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/campusgate/internal/models"
	pkglogger "github.com/BradenHooton/campusgate/pkg/logger"
)

// otpMessage is the rendered content of a one-time code email
type otpMessage struct {
	Subject string
	Text    string
	HTML    string
}

func renderOTPMessage(code string, purpose models.OTPPurpose, expiresAt time.Time) otpMessage {
	minutes := int(time.Until(expiresAt).Round(time.Minute).Minutes())
	if minutes < 1 {
		minutes = 1
	}

	subject := "Your campus console sign-in code"
	intro := "Use this code to finish signing in to the campus console."
	if purpose == models.OTPPurposePasswordReset {
		subject = "Your campus console password reset code"
		intro = "Use this code to reset your campus console password."
	}

	text := fmt.Sprintf(`%s

    %s

The code expires in %d minutes and can be used once.
If you did not request it, you can ignore this message.
`, intro, code, minutes)

	html := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
  <div style="max-width: 480px; margin: 0 auto; padding: 20px;">
    <p>%s</p>
    <p style="font-size: 28px; letter-spacing: 6px; font-weight: bold;">%s</p>
    <p>The code expires in %d minutes and can be used once.</p>
    <p style="color: #666; font-size: 12px;">If you did not request it, you can ignore this message.</p>
  </div>
</body>
</html>
`, intro, code, minutes)

	return otpMessage{Subject: subject, Text: text, HTML: html}
}

// LogMailer writes codes to the log instead of sending them. Development only.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendOTP(ctx context.Context, to, code string, purpose models.OTPPurpose, expiresAt time.Time) error {
	m.logger.Warn("otp mail not sent (log driver)",
		slog.String("to", pkglogger.SanitizedEmail(to)),
		slog.String("purpose", string(purpose)),
		slog.String("code", code),
		slog.Time("expires_at", expiresAt))
	return nil
}
