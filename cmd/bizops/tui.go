package main

import (
	"errors"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/bizops/internal/credential"
	"github.com/nhle/bizops/internal/keys"
	"github.com/nhle/bizops/internal/model"
	"github.com/nhle/bizops/internal/ui/inbox"
	"github.com/nhle/bizops/internal/ui/mailsetup"
)

func inboxCmd(args []string) error {
	fs, cfgPath := newFlagSet("inbox")
	user := fs.String("user", "", "user id whose notifications to show")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *user == "" {
		return errors.New("--user is required")
	}

	e, err := loadEnv(*cfgPath)
	if err != nil {
		return err
	}
	defer e.close()

	p := tea.NewProgram(inbox.New(e.store, *user, keys.DefaultKeyMap()), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running inbox: %w", err)
	}
	return nil
}

func setupMailCmd(args []string, stdout io.Writer) error {
	fs, cfgPath := newFlagSet("setup-mail")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := model.LoadEnvFile(".env"); err != nil {
		return err
	}
	cfg, err := model.LoadConfig(*cfgPath)
	if err != nil {
		return err
	}
	vault, err := credential.Open()
	if err != nil {
		return err
	}

	if err := mailsetup.Run(*cfgPath, cfg, vault); err != nil {
		if errors.Is(err, mailsetup.ErrAborted) {
			fmt.Fprintln(stdout, "Cancelled, nothing saved.")
			return nil
		}
		return err
	}
	fmt.Fprintf(stdout, "Mail settings saved to %s\n", *cfgPath)
	return nil
}
