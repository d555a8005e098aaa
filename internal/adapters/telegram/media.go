package telegram

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tg-combo-bot/internal/domain"
)

const messageLimit = 4096

// BuildAlbum собирает медиагруппу для публикации: подпись несёт только
// та позиция, у которой она задана.
func BuildAlbum(photos []domain.AlbumPhoto) []interface{} {
	media := make([]interface{}, 0, len(photos))
	for _, photo := range photos {
		item := tgbotapi.NewInputMediaPhoto(tgbotapi.FileID(photo.FileID))
		if photo.Caption != "" {
			item.Caption = photo.Caption
			item.ParseMode = tgbotapi.ModeHTML
		}
		media = append(media, item)
	}
	return media
}

// SplitMessage разбивает текст на части в пределах лимита Telegram,
// предпочитая границы строк.
func SplitMessage(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	runes := []rune(trimmed)
	if len(runes) <= messageLimit {
		return []string{trimmed}
	}

	var parts []string
	for start := 0; start < len(runes); {
		end := start + messageLimit
		if end >= len(runes) {
			if chunk := strings.Trim(string(runes[start:]), "\n"); chunk != "" {
				parts = append(parts, chunk)
			}
			break
		}
		split := end
		for i := end; i > start; i-- {
			if runes[i-1] == '\n' {
				split = i
				break
			}
		}
		if chunk := strings.Trim(string(runes[start:split]), "\n"); chunk != "" {
			parts = append(parts, chunk)
		}
		start = split
		for start < len(runes) && runes[start] == '\n' {
			start++
		}
	}
	return parts
}
