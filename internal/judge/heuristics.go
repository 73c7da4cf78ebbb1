// Package judge — heuristics.go: локальные правила, которые заменяют судью,
// когда он молчит. Все функции детерминированы.
package judge

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// WordCount — число слов, разделённых пробелами.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// SentenceCount — число непустых предложений (делим по . ! ?).
func SentenceCount(s string) int {
	n := 0
	for _, part := range strings.FieldsFunc(s, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	}) {
		if strings.TrimSpace(part) != "" {
			n++
		}
	}
	return n
}

// IsShortDescription — описание короче 2 предложений или 12 слов.
func IsShortDescription(desc string) bool {
	return SentenceCount(desc) < 2 || WordCount(desc) < 12
}

func hasDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func containsAny(s string, words []string) bool {
	s = strings.ToLower(s)
	for _, w := range words {
		if w != "" && strings.Contains(s, strings.ToLower(w)) {
			return true
		}
	}
	return false
}

// extractJSON разбирает ответ модели: сначала целиком, потом кусок от первой «{» до последней «}».
func extractJSON(text string) map[string]any {
	var out map[string]any
	dec := func(s string) bool {
		d := json.NewDecoder(strings.NewReader(s))
		d.UseNumber()
		return d.Decode(&out) == nil && out != nil
	}
	if dec(text) {
		return out
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end > start {
		out = nil
		if dec(text[start : end+1]) {
			return out
		}
	}
	return nil
}

var firstIntRe = regexp.MustCompile(`\b(\d{1,3})\b`)

// firstInt возвращает первое 1–3-значное число в тексте.
func firstInt(text string) (int, bool) {
	m := firstIntRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v := 0
	for _, r := range m[1] {
		v = v*10 + int(r-'0')
	}
	return v, true
}

var sentenceSplitRe = regexp.MustCompile(`[.!?]\s+`)

// splitSentences делит текст на предложения, сохраняя знаки препинания.
func splitSentences(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var out []string
	last := 0
	for _, loc := range sentenceSplitRe.FindAllStringIndex(s, -1) {
		out = appendSentence(out, s[last:loc[0]+1])
		last = loc[1]
	}
	return appendSentence(out, s[last:])
}

func appendSentence(out []string, part string) []string {
	part = strings.TrimSpace(part)
	for _, r := range part {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return append(out, part)
		}
	}
	return out
}

// firstTwoSentences — первые два предложения первой строки.
func firstTwoSentences(text string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	parts := splitSentences(line)
	if len(parts) == 0 {
		return ""
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return parts[0] + " " + parts[1]
}

// PitchConvincing — эвристика для питча: числа (2), ценность (2),
// обращение к клиенту (1), длина больше 60 символов (1). Проходной балл задаётся.
func PitchConvincing(pitch string, minWords, passScore int, valueWords, customerWords []string) bool {
	s := strings.ToLower(pitch)
	if WordCount(s) < minWords {
		return false
	}
	score := 0
	if hasDigit(s) {
		score += 2
	}
	if containsAny(s, valueWords) {
		score += 2
	}
	if containsAny(s, customerWords) {
		score++
	}
	if len([]rune(s)) > 60 {
		score++
	}
	return score >= passScore
}

// reasonFor объясняет победу аргумента без модели.
func reasonFor(winnerLabel, loserLabel, winArg, loseArg string, businessWords []string) string {
	wcW, wcL := WordCount(winArg), WordCount(loseArg)
	var bits []string
	if wcW-wcL >= 5 {
		bits = append(bits, fmt.Sprintf("it provided more detail (%d vs %d words)", wcW, wcL))
	}
	if hasDigit(winArg) && !hasDigit(loseArg) {
		bits = append(bits, "it used concrete figures")
	}
	if containsAny(winArg, businessWords) && !containsAny(loseArg, businessWords) {
		bits = append(bits, "it focused on business outcomes")
	}
	if len(bits) == 0 {
		return winnerLabel + "'s argument was clearer and more persuasive than " + loserLabel + "'s."
	}
	return winnerLabel + " wins because " + strings.Join(bits, ", and ") + "."
}
