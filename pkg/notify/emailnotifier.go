package notify

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/wneessen/go-mail"
)

// smtpDialTimeout bounds the SMTP dial when sending an alert
const smtpDialTimeout = 30 * time.Second

type SMTPConfig struct {
	Host     string
	Port     int
	TLS      bool
	Username string
	Password string
	From     string
	To       string // Operator alert address
}

// EmailNotifier sends operator alerts over SMTP
type EmailNotifier struct {
	SMTPConfig SMTPConfig
	client     *mail.Client
}

func NewEmailNotifier(config SMTPConfig) (*EmailNotifier, error) {
	opts := []mail.Option{
		mail.WithPort(config.Port),
		mail.WithTimeout(smtpDialTimeout),
	}

	// Only add authentication if username and password are provided
	if config.Username != "" && config.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthLogin),
			mail.WithUsername(config.Username),
			mail.WithPassword(config.Password),
		)
	}

	if !config.TLS {
		slog.Info("Using NoTLS policy for alert mailer")
		opts = append(opts,
			mail.WithTLSConfig(&tls.Config{
				InsecureSkipVerify: true,
			}),
			mail.WithTLSPolicy(mail.NoTLS),
		)
	} else {
		opts = append(opts,
			mail.WithTLSConfig(&tls.Config{
				InsecureSkipVerify: true,
			}),
			mail.WithTLSPolicy(mail.TLSMandatory),
		)
	}

	slog.Info("Creating alert mail client", "Host", config.Host, "Port", config.Port)
	client, err := mail.NewClient(config.Host, opts...)
	if err != nil {
		slog.Error("Failed to create alert mail client", "err", err)
		return nil, err
	}

	return &EmailNotifier{SMTPConfig: config, client: client}, nil
}

func (e *EmailNotifier) Send(alert Alert) error {
	if e.SMTPConfig.To == "" {
		return fmt.Errorf("email notifier requires an operator 'To' address")
	}

	msg := mail.NewMsg()
	if err := msg.From(e.SMTPConfig.From); err != nil {
		return fmt.Errorf("failed to set alert from address: %w", err)
	}
	if err := msg.To(e.SMTPConfig.To); err != nil {
		return fmt.Errorf("failed to set alert to address: %w", err)
	}

	msg.Subject(alert.Subject)

	body := alert.Body
	for k, v := range alert.Data {
		body += fmt.Sprintf("\n%s: %s", k, v)
	}
	msg.SetBodyString(mail.TypeTextPlain, body)

	if err := e.client.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send alert email: %w", err)
	}
	return nil
}
