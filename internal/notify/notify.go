// Package notify delivers verification codes and password reset links over
// SMTP email and Twilio voice calls.
package notify

import "context"

// Email is a single HTML message
type Email struct {
	To      string
	Subject string
	HTML    string
}

// VoiceCall reads SpokenDigits to the callee
type VoiceCall struct {
	To           string
	From         string
	SpokenDigits string
}

// EmailSender delivers an email synchronously
type EmailSender interface {
	SendEmail(ctx context.Context, email Email) error
}

// VoiceCaller places a voice call synchronously
type VoiceCaller interface {
	SendVoiceCall(ctx context.Context, call VoiceCall) error
}
