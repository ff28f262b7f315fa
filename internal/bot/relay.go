package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tbourn/filegate-bot/internal/domain"
)

// Messenger is the subset of the Bot API client used by the bot.
// *tgbotapi.BotAPI satisfies it.
type Messenger interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// ChannelRelay re-sends payloads into the storage channel. It implements
// services.Relayer.
type ChannelRelay struct {
	api       Messenger
	channelID int64
}

// NewChannelRelay returns a relay targeting channelID.
func NewChannelRelay(api Messenger, channelID int64) *ChannelRelay {
	return &ChannelRelay{api: api, channelID: channelID}
}

// Relay re-sends p into the channel and returns the channel message id.
func (r *ChannelRelay) Relay(ctx context.Context, p domain.Payload) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c, err := ContentFor(p)
	if err != nil {
		return 0, err
	}
	sent, err := r.api.Send(c.RelayTo(r.channelID))
	if err != nil {
		return 0, fmt.Errorf("relay %s to channel: %w", c.Kind(), err)
	}
	if sent.MessageID == 0 {
		return 0, errors.New("relay: channel returned no message id")
	}
	return sent.MessageID, nil
}

// Retract deletes a relayed message from the channel.
func (r *ChannelRelay) Retract(ctx context.Context, channelMessageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if channelMessageID == 0 {
		return nil
	}
	_, err := r.api.Request(tgbotapi.NewDeleteMessage(r.channelID, channelMessageID))
	return err
}

// Deliver copies a stored channel message into chatID.
func (r *ChannelRelay) Deliver(ctx context.Context, chatID int64, channelMessageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := r.api.Request(tgbotapi.NewCopyMessage(chatID, r.channelID, channelMessageID))
	return err
}
