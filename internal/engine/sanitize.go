package engine

import (
	"regexp"
	"strings"
)

var (
	excessNewlines = regexp.MustCompile(`\n{3,}`)
	// C0 и DEL, кроме \t и \n
	controlChars = regexp.MustCompile(`[\x00-\x08\x0B-\x1F\x7F]`)

	// ETH-PROC-001 (Incident Reporting)
	referencePattern = regexp.MustCompile(`\b([A-Z]{2,8}-[A-Z]{2,8}-\d{2,4})\s*\(([^()\n]{2,120})\)`)
)

// Sanitize приводит переводы строк к \n, убирает угловые скобки и управляющие
// символы, схлопывает 3+ переводов строки до двух и обрезает края.
func Sanitize(s string) string {
	s = strings.NewReplacer("\r\n", "\n", "\r", "\n", "<", "", ">", "").Replace(s)
	s = controlChars.ReplaceAllString(s, "")
	s = excessNewlines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// ExtractReferences: best-effort поиск ссылок на процедуры. Дубликаты отбрасываются,
// порядок первого появления сохраняется. Отсутствие ссылок не ошибка.
func ExtractReferences(content string) []string {
	matches := referencePattern.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		out = append(out, m[1]+" ("+strings.TrimSpace(m[2])+")")
	}
	return out
}
