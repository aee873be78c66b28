// Command bizops runs the reminder pipeline: the scheduled scans, the
// notification API and the terminal tools around them.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/bizops/internal/logging"
	"github.com/nhle/bizops/internal/model"
	"github.com/nhle/bizops/internal/store"
)

const usage = `Usage: bizops <command> [flags]

Commands:
  serve        run the scheduler and the HTTP API
  scan         run reminder scans once and exit
  inbox        browse a user's notifications in the terminal
  setup-mail   configure outbound SMTP
  migrate      apply database migrations

Run 'bizops <command> -h' for command flags.
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	var err error
	switch cmd, rest := args[0], args[1:]; cmd {
	case "serve":
		err = serveCmd(rest)
	case "scan":
		err = scanCmd(rest, stdout)
	case "inbox":
		err = inboxCmd(rest)
	case "setup-mail":
		err = setupMailCmd(rest, stdout)
	case "migrate":
		err = migrateCmd(rest, stdout)
	case "-h", "--help", "help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "bizops: %v\n", err)
		return 1
	}
	return 0
}

// newFlagSet returns a flag set with the shared --config flag.
func newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	cfgPath := fs.String("config", model.DefaultConfigPath(), "path to config file")
	return fs, cfgPath
}

// env is what every command needs: config, logger and an open store.
type env struct {
	cfgPath string
	cfg     *model.AppConfig
	logger  *zap.Logger
	store   *store.SQLStore
}

func loadEnv(cfgPath string) (*env, error) {
	if err := model.LoadEnvFile(".env"); err != nil {
		return nil, err
	}
	cfg, err := model.LoadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	if cfg.Database.Driver == model.DriverSQLite && !strings.HasPrefix(cfg.Database.DSN, ":memory:") {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.DSN), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	s, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	return &env{cfgPath: cfgPath, cfg: cfg, logger: logger, store: s}, nil
}

func (e *env) close() {
	if err := e.store.Close(); err != nil {
		e.logger.Warn("closing store", zap.Error(err))
	}
	_ = e.logger.Sync()
}

func migrateCmd(args []string, stdout io.Writer) error {
	fs, cfgPath := newFlagSet("migrate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := loadEnv(*cfgPath)
	if err != nil {
		return err
	}
	defer e.close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	v, err := e.store.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s database at schema version %d\n", e.store.Driver(), v)
	return nil
}
