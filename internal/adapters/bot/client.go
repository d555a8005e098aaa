package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tg-combo-bot/internal/adapters/telegram"
	"tg-combo-bot/internal/domain"
	"tg-combo-bot/internal/infra/metrics"
)

// Client реализует транспортные интерфейсы домена поверх Bot API.
type Client struct {
	api       *tgbotapi.BotAPI
	channelID int64
}

// NewClient создаёт транспортный клиент.
func NewClient(api *tgbotapi.BotAPI, channelID int64) *Client {
	return &Client{api: api, channelID: channelID}
}

var (
	_ domain.Sender    = (*Client)(nil)
	_ domain.Publisher = (*Client)(nil)
)

// SendText отправляет текст, разбивая его по лимиту Telegram.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) error {
	for _, part := range telegram.SplitMessage(text) {
		msg := tgbotapi.NewMessage(chatID, part)
		start := time.Now()
		_, err := c.api.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			return fmt.Errorf("отправка сообщения: %w", err)
		}
	}
	return nil
}

// SendPhoto отправляет одно фото по file_id.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, fileID, caption string) error {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(fileID))
	photo.Caption = caption
	start := time.Now()
	_, err := c.api.Send(photo)
	metrics.ObserveNetworkRequest("telegram_bot", "send_photo", strconv.FormatInt(chatID, 10), start, err)
	if err != nil {
		return fmt.Errorf("отправка фото: %w", err)
	}
	return nil
}

// SendModerationPrompt отправляет модератору кнопки approve/reject.
func (c *Client) SendModerationPrompt(ctx context.Context, chatID int64, submissionID string) error {
	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("Do you approve this submission (ID: %s)?", submissionID))
	markup := moderationKeyboard(submissionID)
	msg.ReplyMarkup = &markup
	start := time.Now()
	_, err := c.api.Send(msg)
	metrics.ObserveNetworkRequest("telegram_bot", "send_moderation_prompt", strconv.FormatInt(chatID, 10), start, err)
	if err != nil {
		return fmt.Errorf("отправка кнопок модерации: %w", err)
	}
	return nil
}

// PublishAlbum публикует альбом в канал одним постом и возвращает ID
// первого сообщения альбома.
func (c *Client) PublishAlbum(ctx context.Context, photos []domain.AlbumPhoto) (int64, error) {
	if len(photos) == 0 {
		return 0, errors.New("пустой альбом")
	}
	group := tgbotapi.NewMediaGroup(c.channelID, telegram.BuildAlbum(photos))
	start := time.Now()
	messages, err := c.api.SendMediaGroup(group)
	metrics.ObserveNetworkRequest("telegram_bot", "send_media_group", strconv.FormatInt(c.channelID, 10), start, err)
	if err != nil {
		return 0, fmt.Errorf("публикация альбома: %w", err)
	}
	if len(messages) == 0 {
		return 0, errors.New("канал не вернул сообщений")
	}
	return int64(messages[0].MessageID), nil
}

// DeletePost удаляет пост из канала.
func (c *Client) DeletePost(ctx context.Context, channelPostID int64) error {
	start := time.Now()
	_, err := c.api.Request(tgbotapi.NewDeleteMessage(c.channelID, int(channelPostID)))
	metrics.ObserveNetworkRequest("telegram_bot", "delete_message", strconv.FormatInt(c.channelID, 10), start, err)
	if err != nil {
		return fmt.Errorf("удаление поста: %w", err)
	}
	return nil
}

func moderationKeyboard(submissionID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Approve", "approve_"+submissionID),
			tgbotapi.NewInlineKeyboardButtonData("Reject", "reject_"+submissionID),
		),
	)
}
