package service

import "strings"

const maxTitleRunes = 30

// Title derives a conversation title from the first user message: the trimmed
// text, cut to 30 characters with a trailing "..." when it was longer.
func Title(text string) string {
	trimmed := strings.TrimSpace(text)
	runes := []rune(trimmed)
	if len(runes) <= maxTitleRunes {
		return trimmed
	}
	return string(runes[:maxTitleRunes]) + "..."
}
