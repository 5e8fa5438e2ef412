// Package notify delivers one-time passcodes over email or SMS.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Skotchmaster/inventory/pkg/logging"
)

const (
	ChannelEmail = "email"
	ChannelPhone = "phone"
)

var ErrUnsupportedChannel = errors.New("unsupported notification channel")

type Sender interface {
	Send(ctx context.Context, channel, contact, code string) error
}

// Dispatcher routes a code to the sender registered for its channel.
type Dispatcher struct {
	senders map[string]Sender
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{senders: make(map[string]Sender)}
}

func (d *Dispatcher) Register(channel string, s Sender) *Dispatcher {
	d.senders[channel] = s
	return d
}

func (d *Dispatcher) Send(ctx context.Context, channel, contact, code string) error {
	s, ok := d.senders[channel]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedChannel, channel)
	}
	return s.Send(ctx, channel, contact, code)
}

// Settings picks the sender for each channel.
type Settings struct {
	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	SMTPFrom string

	TwilioBaseURL     string
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioPhoneNumber string

	// DevLog registers LogSender for channels without a provider.
	DevLog bool
}

// NewFromSettings leaves a channel unregistered when it has neither a
// provider nor DevLog, so sends on it fail with ErrUnsupportedChannel.
func NewFromSettings(s Settings, logger *slog.Logger) *Dispatcher {
	d := NewDispatcher()
	dev := LogSender{Logger: logger}

	switch {
	case s.SMTPHost != "":
		d.Register(ChannelEmail, NewEmailSender(s.SMTPHost, s.SMTPPort, s.SMTPUser, s.SMTPPass, s.SMTPFrom))
	case s.DevLog:
		d.Register(ChannelEmail, dev)
	default:
		logger.Warn("otp_channel_disabled", "channel", ChannelEmail)
	}

	switch {
	case s.TwilioAccountSID != "":
		d.Register(ChannelPhone, NewSMSSender(s.TwilioBaseURL, s.TwilioAccountSID, s.TwilioAuthToken, s.TwilioPhoneNumber))
	case s.DevLog:
		d.Register(ChannelPhone, dev)
	default:
		logger.Warn("otp_channel_disabled", "channel", ChannelPhone)
	}
	return d
}

// LogSender writes codes to the debug log instead of delivering them. Only
// for local development.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(ctx context.Context, channel, contact, code string) error {
	l := s.Logger
	if l == nil {
		l = logging.FromContext(ctx)
	}
	l.Debug("otp_dev_delivery", "channel", channel, "contact", contact, "code", code)
	return nil
}

func otpMessage(code string) string {
	return fmt.Sprintf("Your login code is %s. It expires in 2 minutes.", code)
}
