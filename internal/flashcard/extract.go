// Package flashcard 将纯文本中的闪卡块解析为按字段排列的记录。
//
// 文本按 "Front:" 行切分为卡片块，每个块逐行识别 "字段名: 值" 形式的标题行，
// 多行内容归属于最近打开的字段。只有 Front 和 Back 都非空的块才会产出记录。
// 解析过程不返回错误，格式不正确的输入只会产出更少的记录。
package flashcard

// Extract 从文本中提取所有完整的卡片记录
// fields 决定记录中值的顺序，aliases 可以为 nil。
func Extract(text string, fields []string, aliases FieldMap) []Record {
	return ExtractWithLeading(text, FieldFront, fields, aliases)
}

// ExtractWithLeading 使用指定的起始字段切分卡片块并提取记录
func ExtractWithLeading(text, leading string, fields []string, aliases FieldMap) []Record {
	records := []Record{}
	for block := range SplitBlocks(text, leading) {
		if record, ok := AssembleBlock(block, fields, aliases); ok {
			records = append(records, record)
		}
	}
	return records
}
