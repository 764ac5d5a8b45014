package flashcard

import (
	"strings"
)

// assembler 逐行组装一个卡片块的状态
type assembler struct {
	fields  []string
	aliases FieldMap

	card    map[string]string // 每个声明字段的累积值
	current string            // 当前打开的字段
	open    bool              // 是否有打开的字段
	value   []string          // 当前字段已收集的行
}

func newAssembler(fields []string, aliases FieldMap) *assembler {
	card := make(map[string]string, len(fields))
	for _, f := range fields {
		card[f] = ""
	}
	return &assembler{
		fields:  fields,
		aliases: aliases,
		card:    card,
	}
}

// flush 将当前字段的内容写入 card，同名字段后写覆盖先写
func (a *assembler) flush() {
	if a.open {
		a.card[a.current] = strings.TrimSpace(strings.Join(a.value, "\n"))
	}
	a.value = a.value[:0]
}

func (a *assembler) feed(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	if name, rest, ok := parseHeader(line); ok {
		a.flush()

		field, resolved := ResolveField(name, a.fields, a.aliases)
		if !resolved {
			// 未识别的字段名：关闭当前字段，后续续行被丢弃
			a.current, a.open = "", false
			return
		}

		a.current, a.open = field, true
		if rest = strings.TrimSpace(rest); rest != "" {
			a.value = append(a.value, rest)
		}
		return
	}

	if a.open {
		a.value = append(a.value, line)
	}
}

func (a *assembler) finish() (Record, bool) {
	a.flush()

	if strings.TrimSpace(a.card[FieldFront]) == "" || strings.TrimSpace(a.card[FieldBack]) == "" {
		return nil, false
	}

	record := make(Record, len(a.fields))
	for i, f := range a.fields {
		record[i] = a.card[f]
	}
	return record, true
}

// AssembleBlock 将一个卡片块组装为记录
// Front 或 Back 为空时返回 false，该块被静默丢弃。
func AssembleBlock(block string, fields []string, aliases FieldMap) (Record, bool) {
	a := newAssembler(fields, aliases)
	for _, line := range strings.Split(normalizeNewlines(block), "\n") {
		a.feed(line)
	}
	return a.finish()
}
