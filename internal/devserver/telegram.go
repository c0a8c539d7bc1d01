package devserver

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/medportal/portalauth/internal/stores"
)

// HeaderBotSecret carries the secret token configured with setWebhook.
const HeaderBotSecret = "X-Telegram-Bot-Api-Secret-Token"

// Update is the subset of a Telegram Bot API update the webhook reads.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

type Message struct {
	Text string `json:"text"`
	Chat Chat   `json:"chat"`
}

type Chat struct {
	ID int64 `json:"id"`
}

type webhookResult struct {
	OK       bool   `json:"ok"`
	Verified bool   `json:"verified"`
	Message  string `json:"message,omitempty"`
}

// ExtractCode returns the verification code in a bot message: "/start <code>",
// "/start@bot <code>" or a bare numeric code.
func ExtractCode(text string) (string, bool) {
	fields := strings.Fields(text)
	switch {
	case len(fields) == 2 && (fields[0] == "/start" || strings.HasPrefix(fields[0], "/start@")):
		return fields[1], isDigits(fields[1])
	case len(fields) == 1:
		return fields[0], isDigits(fields[0])
	}
	return "", false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// webhook always answers 200 for well-formed updates so the bot platform does not
// redeliver; the body says whether a code was redeemed.
func (s *Server) webhook(c echo.Context) error {
	if s.webhookSecret != "" {
		got := c.Request().Header.Get(HeaderBotSecret)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.webhookSecret)) != 1 {
			return c.JSON(http.StatusUnauthorized, errorResponse{Message: "bad webhook secret"})
		}
	}

	var upd Update
	if err := c.Bind(&upd); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Message: "malformed update"})
	}
	if upd.Message == nil {
		return c.JSON(http.StatusOK, webhookResult{OK: true})
	}

	code, ok := ExtractCode(upd.Message.Text)
	if !ok {
		return c.JSON(http.StatusOK, webhookResult{OK: true, Message: "send the code shown in the portal"})
	}

	ctx := c.Request().Context()
	rec, err := s.codes.Consume(ctx, code)
	if errors.Is(err, stores.ErrCodeNotFound) {
		return c.JSON(http.StatusOK, webhookResult{OK: true, Message: "code is invalid or expired"})
	}
	if err != nil {
		return err
	}

	chatID := upd.Message.Chat.ID
	if _, err := s.users.Update(ctx, rec.UserID, func(u *stores.UserRecord) {
		u.Verified = true
		u.TelegramChat = chatID
	}); err != nil {
		return err
	}

	s.metrics.verified.Inc()
	s.log.Info().Str("user_id", rec.UserID).Int64("chat_id", chatID).Msg("account verified via bot")
	return c.JSON(http.StatusOK, webhookResult{OK: true, Verified: true})
}
