// Package mailsetup is the interactive SMTP configuration form.
package mailsetup

import (
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/nhle/bizops/internal/credential"
	"github.com/nhle/bizops/internal/model"
)

// ErrAborted is returned when the user cancels the form.
var ErrAborted = errors.New("mail setup cancelled")

// SecretStore keeps the SMTP password out of the config file.
type SecretStore interface {
	Set(key, value string) error
}

// Values are the form fields as the user edits them.
type Values struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	TLS      string
}

// FromConfig seeds the form with the current settings. The password is
// never prefilled.
func FromConfig(cfg model.MailConfig) Values {
	v := Values{
		Host:     cfg.Host,
		Username: cfg.Username,
		From:     cfg.From,
		TLS:      cfg.TLS,
	}
	if cfg.Port > 0 {
		v.Port = strconv.Itoa(cfg.Port)
	}
	if v.TLS == "" {
		v.TLS = model.MailTLSStart
	}
	return v
}

// Apply validates v and writes it into cfg. A non-empty password goes
// to secrets and is cleared from cfg.
func (v Values) Apply(cfg *model.MailConfig, secrets SecretStore) error {
	if err := validateRequired("Host")(v.Host); err != nil {
		return err
	}
	if err := validatePort(v.Port); err != nil {
		return err
	}
	if err := validateAddress(v.From); err != nil {
		return err
	}
	port, _ := strconv.Atoi(strings.TrimSpace(v.Port))

	if v.Password != "" {
		if err := secrets.Set(credential.SMTPPasswordKey, v.Password); err != nil {
			return fmt.Errorf("saving smtp password: %w", err)
		}
	}

	cfg.Host = strings.TrimSpace(v.Host)
	cfg.Port = port
	cfg.Username = strings.TrimSpace(v.Username)
	cfg.From = strings.TrimSpace(v.From)
	cfg.TLS = v.TLS
	cfg.Password = ""
	return nil
}

// NewForm builds the form bound to v.
func NewForm(v *Values) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("SMTP Host").
				Description("Outbound mail server hostname").
				Placeholder("smtp.example.com").
				Value(&v.Host).
				Validate(validateRequired("SMTP Host")),
			huh.NewInput().
				Title("SMTP Port").
				Description("Usually 587 for STARTTLS or 465 for TLS").
				Placeholder("587").
				Value(&v.Port).
				Validate(validatePort),
			huh.NewSelect[string]().
				Title("Encryption").
				Options(
					huh.NewOption("STARTTLS", model.MailTLSStart),
					huh.NewOption("Implicit TLS", model.MailTLSImplicit),
					huh.NewOption("None (local relay only)", model.MailTLSNone),
				).
				Value(&v.TLS),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Username").
				Description("Leave empty for servers without AUTH").
				Placeholder("notifications@example.com").
				Value(&v.Username),
			huh.NewInput().
				Title("Password").
				Description("Stored in the system keyring. Leave empty to keep the current one.").
				EchoMode(huh.EchoModePassword).
				Value(&v.Password),
			huh.NewInput().
				Title("From").
				Description("Sender address on reminder emails").
				Placeholder("Reminders <noreply@example.com>").
				Value(&v.From).
				Validate(validateAddress),
		),
	)
}

// Run shows the form, then stores the password and writes the config to
// path.
func Run(path string, cfg *model.AppConfig, secrets SecretStore) error {
	v := FromConfig(cfg.Mail)
	if err := NewForm(&v).Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return ErrAborted
		}
		return fmt.Errorf("running mail setup form: %w", err)
	}
	if err := v.Apply(&cfg.Mail, secrets); err != nil {
		return err
	}
	return model.SaveConfig(path, cfg)
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validatePort(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("port is required")
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 || n > 65535 {
		return fmt.Errorf("port must be a number between 1 and 65535")
	}
	return nil
}

func validateAddress(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("From is required")
	}
	if _, err := mail.ParseAddress(s); err != nil {
		return fmt.Errorf("invalid address: %w", err)
	}
	return nil
}
