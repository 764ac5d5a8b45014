package flashcard

import (
	"iter"
	"strings"
)

// normalizeNewlines 统一换行符为 \n
func normalizeNewlines(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

// SplitBlocks 将文本切分为卡片块
// 每个以 "<leading>:" 开头的行开启一个新块，该行保留在新块中。
// 文本开头不属于任何块的内容以及空块会被丢弃。
// 返回的序列是惰性的，每次迭代都重新扫描文本。
func SplitBlocks(text, leading string) iter.Seq[string] {
	text = strings.TrimSpace(normalizeNewlines(text))
	marker := leading + ":"

	return func(yield func(string) bool) {
		if text == "" || leading == "" {
			return
		}

		var block strings.Builder
		open := false

		emit := func() bool {
			b := strings.TrimSpace(block.String())
			block.Reset()
			if !open || b == "" {
				return true
			}
			return yield(b)
		}

		rest := text
		for len(rest) > 0 {
			line := rest
			next := ""
			if i := strings.IndexByte(rest, '\n'); i >= 0 {
				line = rest[:i]
				next = rest[i+1:]
			}

			if strings.HasPrefix(line, marker) {
				if !emit() {
					return
				}
				open = true
			}

			block.WriteString(line)
			block.WriteByte('\n')
			rest = next
		}

		emit()
	}
}
