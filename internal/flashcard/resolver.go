package flashcard

import (
	"slices"
	"strings"
)

// ResolveField 将输入的字段名解析为规范字段名
// 依次尝试：精确匹配、别名映射、忽略大小写和句点的匹配。
// 无法识别时返回 false，这不是错误。
func ResolveField(raw string, fields []string, aliases FieldMap) (string, bool) {
	if slices.Contains(fields, raw) {
		return raw, true
	}

	// 别名指向未声明的字段时视为未匹配，继续尝试后续规则
	if mapped, ok := aliases[raw]; ok && slices.Contains(fields, mapped) {
		return mapped, true
	}

	key := foldFieldName(raw)
	for _, f := range fields {
		if foldFieldName(f) == key {
			return f, true
		}
	}

	return "", false
}

// foldFieldName 转为小写并去掉句点
func foldFieldName(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), ".", "")
}
