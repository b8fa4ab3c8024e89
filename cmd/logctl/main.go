// Command logctl inspects and repairs locally stored SetPad training logs.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"alcyxob/setpad/internal/auth"
	"alcyxob/setpad/internal/config"
	"alcyxob/setpad/internal/domain"
	"alcyxob/setpad/internal/localstore"
	"alcyxob/setpad/internal/logging"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	configDir string
	userID    string
	logLevel  string

	session *auth.Session
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{session: auth.NewSession()}

	cmd := &cobra.Command{
		Use:   "logctl",
		Short: "Inspect and repair locally stored training logs",
		Long: `logctl works on the local copy of the active training log and on
training log JSON files.

Examples:
  # Show the cached active log of a user
  logctl active show --user 65f0c0ffee

  # Normalize an exported log file in place
  logctl normalize --write push-day.json`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Setup(logging.LoggerSetupParams{LogLevel: opts.logLevel})
			// stdout carries command output.
			log.SetOutput(cmd.ErrOrStderr())
			if opts.userID != "" {
				opts.session.SignIn(domain.AuthUser{ID: opts.userID})
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configDir, "config-dir", ".", "directory containing config.yaml")
	cmd.PersistentFlags().StringVar(&opts.userID, "user", "", "user ID whose active log to use (server caches are per user)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level")

	cmd.AddCommand(newActiveCmd(opts))
	cmd.AddCommand(newNormalizeCmd())
	return cmd
}

// activeLog opens the configured local store.
func (o *rootOptions) activeLog() (*localstore.ActiveLog, func() error, error) {
	cfg, err := config.LoadConfig(o.configDir)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	kv, closeFn, err := openKV(cfg)
	if err != nil {
		return nil, nil, err
	}
	return localstore.NewActiveLog(kv, cfg.Local.Key).PerUser(o.session), closeFn, nil
}

func openKV(cfg config.Config) (localstore.KeyValue, func() error, error) {
	switch cfg.Local.Driver {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		return localstore.NewRedisKV(rdb, cfg.Local.MaxBytes), rdb.Close, nil
	case "file":
		log.WithField("dir", cfg.Local.Dir).Debug("using file store")
		return localstore.NewFileKV(cfg.Local.Dir, cfg.Local.MaxBytes), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown local.driver %q", cfg.Local.Driver)
	}
}
