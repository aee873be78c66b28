package mailsetup

import (
	"path/filepath"
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/bizops/internal/credential"
	"github.com/nhle/bizops/internal/model"
)

func TestApplyStoresPasswordInVault(t *testing.T) {
	vault := credential.NewVault(keyring.NewArrayKeyring(nil))
	cfg := model.MailConfig{Password: "from-file", TimeoutSec: 30}

	v := Values{
		Host:     " smtp.example.com ",
		Port:     "465",
		Username: "bot@example.com",
		Password: "s3cret",
		From:     "Reminders <noreply@example.com>",
		TLS:      model.MailTLSImplicit,
	}
	require.NoError(t, v.Apply(&cfg, vault))

	assert.Equal(t, "smtp.example.com", cfg.Host)
	assert.Equal(t, 465, cfg.Port)
	assert.Equal(t, model.MailTLSImplicit, cfg.TLS)
	assert.Empty(t, cfg.Password, "password never lands in the config file")
	assert.Equal(t, 30, cfg.TimeoutSec)

	got, err := vault.Get(credential.SMTPPasswordKey)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got)
}

func TestApplyKeepsExistingPassword(t *testing.T) {
	vault := credential.NewVault(keyring.NewArrayKeyring(nil))
	require.NoError(t, vault.Set(credential.SMTPPasswordKey, "old"))

	cfg := model.MailConfig{}
	v := Values{Host: "smtp.example.com", Port: "587", From: "noreply@example.com", TLS: model.MailTLSStart}
	require.NoError(t, v.Apply(&cfg, vault))

	got, err := vault.Get(credential.SMTPPasswordKey)
	require.NoError(t, err)
	assert.Equal(t, "old", got)
}

func TestApplyValidates(t *testing.T) {
	vault := credential.NewVault(keyring.NewArrayKeyring(nil))
	base := Values{Host: "smtp.example.com", Port: "587", From: "noreply@example.com", TLS: model.MailTLSStart}

	cases := map[string]func(v *Values){
		"missing host": func(v *Values) { v.Host = "  " },
		"bad port":     func(v *Values) { v.Port = "smtp" },
		"port range":   func(v *Values) { v.Port = "70000" },
		"bad from":     func(v *Values) { v.From = "not an address" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			v := base
			mutate(&v)
			cfg := model.MailConfig{}
			assert.Error(t, v.Apply(&cfg, vault))
			assert.Empty(t, cfg.Host)
		})
	}
}

func TestFromConfigAndSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg, err := model.LoadConfig(path)
	require.NoError(t, err)

	v := FromConfig(cfg.Mail)
	assert.Equal(t, "587", v.Port)
	assert.Equal(t, model.MailTLSStart, v.TLS)

	v.Host = "smtp.example.com"
	v.From = "noreply@example.com"
	require.NoError(t, v.Apply(&cfg.Mail, credential.NewVault(keyring.NewArrayKeyring(nil))))
	require.NoError(t, model.SaveConfig(path, cfg))

	reloaded, err := model.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com", reloaded.Mail.Host)
	assert.True(t, reloaded.Mail.Configured())
}
