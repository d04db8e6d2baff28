package telegram

import "strings"

const messageLimit = 4096

// SplitMessage режет длинный текст на части в пределах лимита сообщения
// Telegram, предпочитая границы абзацев, чтобы списки не рвались посередине.
func SplitMessage(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	lines := strings.Split(trimmed, "\n")
	var (
		parts []string
		buf   strings.Builder
	)
	flush := func() {
		chunk := strings.Trim(buf.String(), "\n")
		if chunk != "" {
			parts = append(parts, chunk)
		}
		buf.Reset()
	}

	for _, line := range lines {
		// Строка длиннее лимита режется жёстко по рунам.
		for len([]rune(line)) > messageLimit {
			runes := []rune(line)
			flush()
			parts = append(parts, string(runes[:messageLimit]))
			line = string(runes[messageLimit:])
		}
		if buf.Len() > 0 && len([]rune(buf.String()))+len([]rune(line))+1 > messageLimit {
			flush()
		}
		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(line)
	}
	flush()

	if len(parts) == 0 {
		return []string{trimmed}
	}
	return parts
}
