package flashcard

import (
	"unicode"
	"unicode/utf8"
)

// parseHeader 尝试将一行解析为 "<字段名>:<内容>"
// 字段名只能由字母和句点组成，且必须紧跟冒号。
func parseHeader(line string) (name, rest string, ok bool) {
	i := 0
	for i < len(line) {
		r, size := utf8.DecodeRuneInString(line[i:])
		if r == ':' {
			break
		}
		if r != '.' && !unicode.IsLetter(r) {
			return "", "", false
		}
		i += size
	}

	if i == 0 || i >= len(line) {
		return "", "", false
	}

	return line[:i], line[i+1:], true
}
