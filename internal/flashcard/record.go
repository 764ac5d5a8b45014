package flashcard

import (
	"strings"
)

const (
	// FieldFront 卡片正面字段，同时是默认的卡片起始字段
	FieldFront = "Front"
	// FieldBack 卡片背面字段
	FieldBack = "Back"
	// FieldExtras 附加信息字段
	FieldExtras = "Extras"
)

// DefaultFields 返回默认的字段列表
func DefaultFields() []string {
	return []string{FieldFront, FieldBack, FieldExtras}
}

// FieldMap 字段别名映射
// 键为输入文本中的字段名，值为规范字段名
type FieldMap map[string]string

// Record 一张卡片的字段值
// 按声明的字段列表顺序排列，长度与字段列表一致
type Record []string

// Get 返回指定字段的值，字段未声明时返回空字符串
func (r Record) Get(fields []string, name string) string {
	for i, f := range fields {
		if f == name && i < len(r) {
			return r[i]
		}
	}
	return ""
}

// ToMap 将记录转换为 字段名 -> 值 的映射
func (r Record) ToMap(fields []string) map[string]string {
	m := make(map[string]string, len(fields))
	for i, f := range fields {
		if i < len(r) {
			m[f] = r[i]
		} else {
			m[f] = ""
		}
	}
	return m
}

// Format 将记录序列化为 "字段: 值" 文本
// 空字段会被省略，输出可以被 Extract 重新解析为相同的记录
func Format(r Record, fields []string) string {
	var b strings.Builder
	for i, f := range fields {
		if i >= len(r) || r[i] == "" {
			continue
		}
		b.WriteString(f)
		b.WriteString(": ")
		b.WriteString(r[i])
		b.WriteString("\n")
	}
	return b.String()
}

// FormatAll 将多条记录序列化为一段文本，记录之间以空行分隔
func FormatAll(records []Record, fields []string) string {
	parts := make([]string, 0, len(records))
	for _, r := range records {
		parts = append(parts, Format(r, fields))
	}
	return strings.Join(parts, "\n")
}
