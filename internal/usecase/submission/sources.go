package submission

import "strings"

// Sources задаёт закрытый набор служб доставки. Набор расширяется только
// конфигурацией процесса.
type Sources struct {
	keys []string
}

// NewSources строит набор из ключей конфигурации.
func NewSources(keys []string) *Sources {
	cleaned := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		normalized := strings.ToLower(strings.TrimSpace(key))
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		cleaned = append(cleaned, normalized)
	}
	return &Sources{keys: cleaned}
}

// Keys возвращает ключи в порядке конфигурации.
func (s *Sources) Keys() []string {
	return s.keys
}

// Canonical возвращает каноничную форму для отображения (с заглавной буквы)
// и признак принадлежности ключа набору.
func (s *Sources) Canonical(key string) (string, bool) {
	normalized := strings.ToLower(strings.TrimSpace(key))
	for _, known := range s.keys {
		if known == normalized {
			return capitalize(normalized), true
		}
	}
	return "", false
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	return strings.ToUpper(string(runes[0])) + string(runes[1:])
}
