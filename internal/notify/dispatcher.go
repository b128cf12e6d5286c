package notify

import (
	"context"
	"fmt"
	"html/template"
	"strconv"
	"strings"
	"time"

	"github.com/nyaruka/phonenumbers"

	"github.com/redmonkez12/go-account-service/internal/logging"
)

// DefaultRegion is used to parse phone numbers written without a country code
const DefaultRegion = "IN"

// Config holds the sender identities and text of outgoing notifications
type Config struct {
	CallerNumber      string // Twilio number verification calls come from
	Region            string
	VerificationTTL   time.Duration
	ResetTokenTTL     time.Duration
	VerificationTitle string
	ResetTitle        string
}

// Dispatcher renders notifications and hands them to the email and voice
// transports
type Dispatcher struct {
	email     EmailSender
	voice     VoiceCaller
	cfg       Config
	templates *template.Template
	logger    *logging.Logger
}

func NewDispatcher(email EmailSender, voice VoiceCaller, cfg Config, logger *logging.Logger) (*Dispatcher, error) {
	tmpl, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	if cfg.VerificationTitle == "" {
		cfg.VerificationTitle = "Your Verification Code"
	}
	if cfg.ResetTitle == "" {
		cfg.ResetTitle = "Reset Password"
	}

	return &Dispatcher{
		email:     email,
		voice:     voice,
		cfg:       cfg,
		templates: tmpl,
		logger:    logger,
	}, nil
}

// SendVerificationEmail mails the verification code
func (d *Dispatcher) SendVerificationEmail(ctx context.Context, toEmail, name string, code int) error {
	body, err := render(d.templates, verificationTemplate, verificationData{
		Name:             name,
		Code:             code,
		ExpiresInMinutes: int(d.cfg.VerificationTTL.Minutes()),
	})
	if err != nil {
		return err
	}

	if err := d.email.SendEmail(ctx, Email{To: toEmail, Subject: d.cfg.VerificationTitle, HTML: body}); err != nil {
		return err
	}

	d.logger.Info("verification email sent", "email", toEmail)
	return nil
}

// SendVerificationCall reads the verification code to toPhone
func (d *Dispatcher) SendVerificationCall(ctx context.Context, toPhone string, code int) error {
	to, err := NormalizePhone(toPhone, d.cfg.Region)
	if err != nil {
		return err
	}

	call := VoiceCall{
		To:           to,
		From:         d.cfg.CallerNumber,
		SpokenDigits: SpokenDigits(code),
	}
	if err := d.voice.SendVoiceCall(ctx, call); err != nil {
		return err
	}

	d.logger.Info("verification call placed", "phone", to)
	return nil
}

// SendPasswordResetEmail mails the reset link
func (d *Dispatcher) SendPasswordResetEmail(ctx context.Context, toEmail, resetURL string) error {
	body, err := render(d.templates, passwordResetTemplate, passwordResetData{
		ResetURL:         resetURL,
		ExpiresInMinutes: int(d.cfg.ResetTokenTTL.Minutes()),
	})
	if err != nil {
		return err
	}

	if err := d.email.SendEmail(ctx, Email{To: toEmail, Subject: d.cfg.ResetTitle, HTML: body}); err != nil {
		return err
	}

	d.logger.Info("password reset email sent", "email", toEmail)
	return nil
}

// NormalizePhone converts a national or international number to E.164
func NormalizePhone(phone, region string) (string, error) {
	num, err := phonenumbers.Parse(phone, region)
	if err != nil {
		return "", fmt.Errorf("parse phone number: %w", err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", fmt.Errorf("invalid phone number %q", phone)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// SpokenDigits separates the digits of code with spaces, e.g. 12345 -> "1 2 3 4 5"
func SpokenDigits(code int) string {
	return strings.Join(strings.Split(strconv.Itoa(code), ""), " ")
}
