package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medportal/portalauth"
	"github.com/medportal/portalauth/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries what every command needs once flags are parsed.
type app struct {
	configPath string
	cfg        *config.Config
	log        zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "portal",
		Short:         "Medical portal client",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", os.Getenv("PORTAL_CONFIG"), "path to a config file")

	root.AddCommand(
		loginCmd(a),
		registerCmd(a),
		logoutCmd(a),
		whoamiCmd(a),
		openCmd(a),
		verifyCmd(a),
		devCmd(a),
	)
	return root
}

func (a *app) load() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg
	a.log = cfg.Logger()
	return nil
}

// client builds a portal client and restores the saved session. The returned
// cleanup closes the client and any Redis connection it opened.
func (a *app) client(ctx context.Context) (*portalauth.Client, func(), error) {
	b := portalauth.New().
		WithConfig(a.cfg.Client()).
		WithLogger(a.log)
	if a.cfg.AuditEnabled {
		b = b.WithAuditSink(portalauth.NewZerologSink(a.log))
	}

	var rdb *redis.Client
	if a.cfg.SessionBackend == string(portalauth.SessionBackendRedis) {
		rdb = redis.NewClient(&redis.Options{Addr: a.cfg.RedisAddr})
		b = b.WithRedis(rdb)
	}

	c, err := b.Build()
	if err != nil {
		if rdb != nil {
			rdb.Close()
		}
		return nil, nil, err
	}
	c.Restore(ctx)

	return c, func() {
		c.Close()
		if rdb != nil {
			rdb.Close()
		}
	}, nil
}

func printf(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format, args...)
}
