package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/medportal/portalauth/internal/devserver"
	"github.com/medportal/portalauth/jwt"
)

func devCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Run and drive the local development backend",
	}
	cmd.AddCommand(devServeCmd(a), devConfirmCmd(a))
	return cmd
}

func devServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the development backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	logger := a.log

	var rdb redis.UniversalClient
	if cfg.DevRedisAddr != "" {
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{cfg.DevRedisAddr}})
		logger.Info().Str("addr", cfg.DevRedisAddr).Msg("using redis")
	} else {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start miniredis: %w", err)
		}
		defer mr.Close()
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		logger.Warn().Str("addr", mr.Addr()).Msg("no DEV_REDIS_ADDR set, using in-process miniredis; data is lost on exit")
	}
	defer rdb.Close()

	key := []byte(cfg.DevJWTSecret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return fmt.Errorf("generate signing key: %w", err)
		}
	}

	srv, err := devserver.New(devserver.Options{
		Redis:  rdb,
		Prefix: cfg.DevPrefix,
		JWT: jwt.Config{
			AccessTTL:     cfg.DevAccessTTL,
			SigningMethod: jwt.MethodHS256,
			PrivateKey:    key,
			Issuer:        "portal-devserver",
		},
		CodeTTL:       cfg.DevCodeTTL,
		BotName:       cfg.DevBotName,
		WebhookSecret: cfg.DevWebhookSecret,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	if cfg.DevSeed {
		if err := srv.Seed(ctx, devserver.DefaultSeeds()); err != nil {
			return err
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.DevAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down devserver")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info().Msg("devserver stopped")
	return nil
}

func devConfirmCmd(a *app) *cobra.Command {
	var chatID int64
	cmd := &cobra.Command{
		Use:   "confirm <code>",
		Short: "Deliver a code to the backend as if the Telegram bot received it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.confirm(cmd.Context(), args[0], chatID)
			if err != nil {
				return err
			}
			if !res.Verified {
				return errors.New(res.Message)
			}
			printf(cmd.OutOrStdout(), "code accepted, account verified\n")
			return nil
		},
	}
	cmd.Flags().Int64Var(&chatID, "chat", 1, "telegram chat id to record")
	return cmd
}

type confirmResult struct {
	Verified bool   `json:"verified"`
	Message  string `json:"message"`
}

func (a *app) confirm(ctx context.Context, code string, chatID int64) (confirmResult, error) {
	body, err := json.Marshal(devserver.Update{
		UpdateID: time.Now().UnixNano(),
		Message:  &devserver.Message{Text: "/start " + code, Chat: devserver.Chat{ID: chatID}},
	})
	if err != nil {
		return confirmResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.APIURL+"/api/telegram/webhook", bytes.NewReader(body))
	if err != nil {
		return confirmResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.cfg.DevWebhookSecret != "" {
		req.Header.Set(devserver.HeaderBotSecret, a.cfg.DevWebhookSecret)
	}

	httpClient := &http.Client{Timeout: a.cfg.APITimeout}
	resp, err := httpClient.Do(req)
	if err != nil {
		return confirmResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return confirmResult{}, fmt.Errorf("webhook answered %s", resp.Status)
	}

	var res confirmResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return confirmResult{}, fmt.Errorf("decode webhook response: %w", err)
	}
	return res, nil
}
