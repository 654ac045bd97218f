package outbound

import (
	"strings"
	"unicode/utf8"
)

// ChunkText splits text into parts of at most limit runes, breaking at
// newlines first and at spaces for overlong lines
func ChunkText(text string, limit int) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if limit <= 0 || utf8.RuneCountInString(trimmed) <= limit {
		return []string{trimmed}
	}

	var chunks []string
	var buf []string
	bufLen := 0
	flush := func() {
		if len(buf) > 0 {
			chunks = append(chunks, strings.Join(buf, "\n"))
			buf = buf[:0]
			bufLen = 0
		}
	}

	for _, line := range strings.Split(trimmed, "\n") {
		lineLen := utf8.RuneCountInString(line)
		sep := 0
		if len(buf) > 0 {
			sep = 1
		}
		if bufLen+sep+lineLen <= limit {
			buf = append(buf, line)
			bufLen += sep + lineLen
			continue
		}
		flush()
		if lineLen <= limit {
			buf = append(buf, line)
			bufLen = lineLen
			continue
		}
		chunks = append(chunks, splitLongLine(line, limit)...)
	}
	flush()
	return chunks
}

func splitLongLine(line string, limit int) []string {
	runes := []rune(line)
	var parts []string
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i] == ' ' {
				cut = i
				break
			}
		}
		parts = append(parts, strings.TrimSpace(string(runes[:cut])))
		runes = []rune(strings.TrimLeft(string(runes[cut:]), " "))
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
