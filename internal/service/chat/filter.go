package chat

import "strings"

// RefusalMessage is returned instead of a completion when the user message
// contains a sensitive word.
const RefusalMessage = "消息中含有敏感词，请重新输入。"

// matchSensitive reports the first configured word found in text. Matching is
// a case-sensitive substring test; empty words are ignored.
func matchSensitive(text string, words []string) (string, bool) {
	for _, word := range words {
		if word == "" {
			continue
		}
		if strings.Contains(text, word) {
			return word, true
		}
	}
	return "", false
}
