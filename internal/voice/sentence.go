package voice

import (
	"strings"
	"unicode/utf8"
)

var sentenceEnders = []rune{'。', '！', '？', '；', '.', '!', '?', ';', '\n'}

// extractSentence 尝试从文本中提取第一个完整句子。
func extractSentence(text string) (string, string, bool) {
	for i, r := range text {
		for _, ender := range sentenceEnders {
			if r == ender {
				splitAt := i + utf8.RuneLen(r)
				return text[:splitAt], text[splitAt:], true
			}
		}
	}
	return "", text, false
}

// splitText 将文本按句切分后合并为若干段，每段不超过 maxChars 个字符
// （单句超长时保持整句）。每段对应一次推理，产出一个音频帧。
func splitText(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = 100
	}

	var chunks []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
		currentLen = 0
	}
	appendPart := func(s string) {
		n := utf8.RuneCountInString(s)
		if currentLen > 0 && currentLen+n > maxChars {
			flush()
		}
		if currentLen > 0 {
			current.WriteByte(' ')
			n++
		}
		current.WriteString(s)
		currentLen += n
	}

	remaining := text
	for {
		sentence, rest, found := extractSentence(remaining)
		if !found {
			if r := strings.TrimSpace(remaining); r != "" {
				appendPart(r)
			}
			break
		}
		remaining = rest
		if s := strings.TrimSpace(sentence); s != "" {
			appendPart(s)
		}
	}
	flush()
	return chunks
}
