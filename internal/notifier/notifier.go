package notifier

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/fanclubhq/fanclub-backend/internal/storage"
)

// Notifier pushes payment confirmations to an admin Telegram chat. With no
// token or chat id configured it stays disabled and every call is a no-op.
type Notifier struct {
	bot    *bot.Bot
	chatID int64
	log    *slog.Logger
}

// New creates a new Notifier
func New(token string, chatID int64, log *slog.Logger) (*Notifier, error) {
	n := &Notifier{chatID: chatID, log: log}

	if token == "" || chatID == 0 {
		log.Info("telegram notifier disabled")
		return n, nil
	}

	// Send-only usage: no polling, no getMe round trip at startup
	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	n.bot = b

	return n, nil
}

// PaymentConfirmed announces a confirmed payment. Failures are logged and
// swallowed; notification delivery must never affect the payment response.
func (n *Notifier) PaymentConfirmed(ctx context.Context, member *storage.Member, source string) {
	if n.bot == nil {
		return
	}

	text := fmt.Sprintf(
		"💳 <b>Payment confirmed</b>\n\nMember: %s (@%s)\nAmount: ₦%d\nConfirmed via: %s",
		member.Nickname, member.Handle, member.Amount, source,
	)

	_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    n.chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		n.log.Error("send payment notification", "error", err, "member_id", member.ID)
	}
}
