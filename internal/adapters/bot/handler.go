package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tg-combo-bot/internal/domain"
	"tg-combo-bot/internal/infra/metrics"
	"tg-combo-bot/internal/usecase/moderation"
	"tg-combo-bot/internal/usecase/submission"
)

// Handler маршрутизирует входящие апдейты между движком диалога
// и сервисом модерации.
type Handler struct {
	client       *Client
	log          zerolog.Logger
	engine       *submission.Engine
	moderationUC *moderation.Service
}

// NewHandler создаёт обработчик.
func NewHandler(client *Client, log zerolog.Logger, engine *submission.Engine, moderationUC *moderation.Service) *Handler {
	return &Handler{client: client, log: log, engine: engine, moderationUC: moderationUC}
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil {
		h.handleMessage(ctx, upd.Message)
	} else if upd.CallbackQuery != nil {
		h.handleCallback(ctx, upd.CallbackQuery)
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	userID := msg.From.ID

	if len(msg.Photo) > 0 {
		// Берём самое высокое разрешение — последний вариант в списке.
		fileID := msg.Photo[len(msg.Photo)-1].FileID
		reply, err := h.engine.HandlePhoto(ctx, userID, fileID)
		h.sendReply(ctx, msg.Chat.ID, reply, err)
		return
	}

	text := strings.TrimSpace(msg.Text)
	switch {
	case strings.HasPrefix(text, "/start"), strings.HasPrefix(text, "/new"):
		reply, err := h.engine.Begin(ctx, userID)
		h.sendReply(ctx, msg.Chat.ID, reply, err)
	case strings.HasPrefix(text, "/submit"):
		reply, err := h.engine.Resume(ctx, userID)
		h.sendReply(ctx, msg.Chat.ID, reply, err)
	case strings.HasPrefix(text, "/nickname"):
		reply, err := h.engine.ChangeNickname(ctx, userID)
		h.sendReply(ctx, msg.Chat.ID, reply, err)
	case strings.HasPrefix(text, "/cancel"):
		reply, err := h.engine.Cancel(ctx, userID)
		h.sendReply(ctx, msg.Chat.ID, reply, err)
	case strings.HasPrefix(text, "/help"):
		h.reply(ctx, msg.Chat.ID, helpMessage())
	case strings.HasPrefix(text, "/pending"):
		h.handlePending(ctx, msg.Chat.ID, userID)
	case strings.HasPrefix(text, "/delete"):
		arg := strings.TrimSpace(strings.TrimPrefix(text, "/delete"))
		h.handleDelete(ctx, msg.Chat.ID, userID, arg)
	default:
		reply, err := h.engine.HandleText(ctx, userID, msg.Text)
		h.sendReply(ctx, msg.Chat.ID, reply, err)
	}
}

func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	data := cb.Data
	userID := cb.From.ID
	chatID := userID
	if cb.Message != nil {
		chatID = cb.Message.Chat.ID
	}

	switch {
	case strings.HasPrefix(data, "source_"):
		key := strings.TrimPrefix(data, "source_")
		reply, err := h.engine.SelectSource(ctx, userID, key)
		h.sendReply(ctx, chatID, reply, err)
	case data == "confirm_yes":
		reply, err := h.engine.Confirm(ctx, userID)
		h.sendReply(ctx, chatID, reply, err)
	case data == "confirm_no":
		reply, err := h.engine.Cancel(ctx, userID)
		h.sendReply(ctx, chatID, reply, err)
	case strings.HasPrefix(data, "approve_"):
		h.handleModerationAction(ctx, cb, "approve", strings.TrimPrefix(data, "approve_"))
	case strings.HasPrefix(data, "reject_"):
		h.handleModerationAction(ctx, cb, "reject", strings.TrimPrefix(data, "reject_"))
	}

	start := time.Now()
	_, err := h.client.api.Request(tgbotapi.NewCallback(cb.ID, ""))
	metrics.ObserveNetworkRequest("telegram_bot", "answer_callback", strconv.FormatInt(userID, 10), start, err)
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось ответить на callback")
	}
}

func (h *Handler) handleModerationAction(ctx context.Context, cb *tgbotapi.CallbackQuery, action, submissionID string) {
	var (
		res moderation.Result
		err error
	)
	if action == "approve" {
		res, err = h.moderationUC.Approve(ctx, cb.From.ID, submissionID)
	} else {
		res, err = h.moderationUC.Reject(ctx, cb.From.ID, submissionID)
	}

	chatID := cb.From.ID
	if cb.Message != nil {
		chatID = cb.Message.Chat.ID
	}

	switch {
	case errors.Is(err, domain.ErrNotAllowed):
		// Непривилегированный клик по кнопке игнорируем без ответа.
		return
	case errors.Is(err, domain.ErrSubmissionNotFound):
		h.reply(ctx, chatID, "Submission not found.")
		return
	case errors.Is(err, domain.ErrInvalidState):
		h.reply(ctx, chatID, "This submission has already been handled.")
		return
	case err != nil:
		h.log.Error().Err(err).Str("submission_id", submissionID).Str("action", action).Msg("ошибка действия модератора")
		h.reply(ctx, chatID, "Could not process the action. Please try again later.")
		return
	}

	outcome := "✅ Submission " + res.SubmissionID + " approved and published to the channel."
	if action == "reject" {
		outcome = "❌ Submission " + res.SubmissionID + " rejected."
	}
	text := fmt.Sprintf("%s\n\nNickname: %s\nPeople: %d\nSource: %s", outcome, res.Nickname, res.PeopleCount, res.DeliverySource)

	// Заменяем исходное сообщение с кнопками итогом действия.
	if cb.Message != nil {
		edit := tgbotapi.NewEditMessageText(chatID, cb.Message.MessageID, text)
		start := time.Now()
		_, err := h.client.api.Send(edit)
		metrics.ObserveNetworkRequest("telegram_bot", "edit_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			h.log.Error().Err(err).Msg("не удалось обновить сообщение модератора")
			h.reply(ctx, chatID, text)
		}
		return
	}
	h.reply(ctx, chatID, text)
}

func (h *Handler) handlePending(ctx context.Context, chatID, userID int64) {
	pending, err := h.moderationUC.ListPending(ctx, userID)
	if errors.Is(err, domain.ErrNotAllowed) {
		h.reply(ctx, chatID, "This command is only available to admins.")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось получить список заявок")
		h.reply(ctx, chatID, "Could not load pending submissions. Please try again later.")
		return
	}
	if len(pending) == 0 {
		h.reply(ctx, chatID, "No pending submissions.")
		return
	}
	var b strings.Builder
	b.WriteString("Pending submissions:\n\n")
	for _, sub := range pending {
		b.WriteString(fmt.Sprintf("ID: %s\nNickname: %s\nCreated: %s\n\n", sub.SubmissionID, sub.Nickname, sub.CreatedAt.Format("2006-01-02 15:04")))
	}
	h.reply(ctx, chatID, b.String())
}

func (h *Handler) handleDelete(ctx context.Context, chatID, userID int64, submissionID string) {
	if submissionID == "" {
		h.reply(ctx, chatID, "Usage: /delete [submission_id]")
		return
	}
	err := h.moderationUC.Delete(ctx, userID, submissionID)
	switch {
	case errors.Is(err, domain.ErrNotAllowed):
		h.reply(ctx, chatID, "This command is only available to admins.")
	case errors.Is(err, domain.ErrSubmissionNotFound), errors.Is(err, domain.ErrInvalidState):
		h.reply(ctx, chatID, "No published post found with that ID.")
	case err != nil:
		h.log.Error().Err(err).Str("submission_id", submissionID).Msg("не удалось удалить пост")
		h.reply(ctx, chatID, "Could not delete the post. Please try again later.")
	default:
		h.reply(ctx, chatID, fmt.Sprintf("Post with ID %s has been deleted from the channel.", submissionID))
	}
}

func (h *Handler) sendReply(ctx context.Context, chatID int64, reply submission.Reply, err error) {
	if err != nil {
		h.log.Error().Err(err).Int64("chat", chatID).Msg("шаг диалога завершился ошибкой")
	}
	if reply.Text == "" {
		return
	}
	switch reply.Keyboard {
	case submission.KeyboardSources:
		h.replyWithKeyboard(chatID, reply.Text, h.sourcesKeyboard())
	case submission.KeyboardConfirm:
		h.replyWithKeyboard(chatID, reply.Text, confirmKeyboard())
	default:
		h.reply(ctx, chatID, reply.Text)
	}
}

func (h *Handler) reply(ctx context.Context, chatID int64, text string) {
	if err := h.client.SendText(ctx, chatID, text); err != nil {
		h.log.Error().Err(err).Int64("chat", chatID).Msg("не удалось отправить сообщение")
	}
}

func (h *Handler) replyWithKeyboard(chatID int64, text string, markup tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = &markup
	start := time.Now()
	_, err := h.client.api.Send(msg)
	metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
	if err != nil {
		h.log.Error().Err(err).Int64("chat", chatID).Msg("не удалось отправить сообщение")
	}
}

func (h *Handler) sourcesKeyboard() tgbotapi.InlineKeyboardMarkup {
	keys := h.engine.Sources().Keys()
	row := make([]tgbotapi.InlineKeyboardButton, 0, len(keys))
	for _, key := range keys {
		label, _ := h.engine.Sources().Canonical(key)
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, "source_"+key))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

func confirmKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Yes, Submit", "confirm_yes"),
			tgbotapi.NewInlineKeyboardButtonData("No, Cancel", "confirm_no"),
		),
	)
}

func helpMessage() string {
	lines := []string{
		"🍔 Food Combo Bot Commands 🍕",
		"",
		"/start - Start a new food combo submission",
		"/new - Alternative to start a new submission",
		"/submit - Submit using your saved nickname",
		"/nickname - Change your display nickname",
		"/cancel - Cancel the current submission process",
		"/help - Show this help message",
		"",
		"To submit a food combo:",
		"1. Start with /start or /new",
		"2. Provide your nickname (or use existing)",
		"3. Enter the number of food pictures",
		"4. Upload your food pictures",
		"5. Upload a payment screenshot as proof",
		"6. Enter number of people who ordered",
		"7. Select the delivery service",
		"8. Confirm your submission",
		"",
		"Your submission will be reviewed by admins before being published to the channel.",
	}
	return strings.Join(lines, "\n")
}
