package document

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFParser PDF源文件解析器
type PDFParser struct{}

// NewPDFParser 创建一个新的PDF解析器
func NewPDFParser() Parser {
	return &PDFParser{}
}

// Parse 解析PDF文件并提取其文本内容
func (p *PDFParser) Parse(filePath string) (string, error) {
	// 创建临时目录用于存放提取的页面内容
	tmpDir, err := os.MkdirTemp("", "pdfcpu_extract_")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(filePath, tmpDir, nil, conf); err != nil {
		return "", fmt.Errorf("failed to extract text from PDF: %w", err)
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		return "", fmt.Errorf("failed to read extracted text dir: %w", err)
	}

	// 按文件名排序（页码顺序）
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	var pages []string
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(tmpDir, e.Name()))
		if err != nil {
			continue
		}
		pages = append(pages, pageText(string(data)))
	}

	result := strings.TrimSpace(strings.Join(pages, "\n\n"))
	if result == "" {
		return "", fmt.Errorf("no text content found in PDF")
	}
	return result, nil
}

// ParseReader 将内容写入临时文件后解析
func (p *PDFParser) ParseReader(r io.Reader, filename string) (string, error) {
	tmp, err := os.CreateTemp("", "pdf_source_*.pdf")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to buffer PDF %s: %w", filename, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to buffer PDF %s: %w", filename, err)
	}

	return p.Parse(tmp.Name())
}

// pageText 从页面内容流中取出显示的文本，每个文本显示操作一行
// 内容流中没有文本操作时返回原始内容
func pageText(content string) string {
	lines := showTextOperands(content)
	if len(lines) == 0 {
		return strings.TrimSpace(content)
	}
	return strings.Join(lines, "\n")
}

// showTextOperands 扫描内容流，收集 Tj、TJ、' 和 " 操作的字符串操作数
func showTextOperands(content string) []string {
	var lines []string
	var pending []string

	i := 0
	for i < len(content) {
		c := content[i]
		switch {
		case c == '(':
			s, n := readLiteralString(content[i:])
			pending = append(pending, s)
			i += n
		case c == '<' && i+1 < len(content) && content[i+1] != '<':
			// 十六进制字符串，不解码
			end := strings.IndexByte(content[i:], '>')
			if end == -1 {
				return lines
			}
			i += end + 1
		case isContentDelimiter(c):
			i++
		default:
			start := i
			for i < len(content) && !isContentDelimiter(content[i]) && content[i] != '(' {
				i++
			}
			token := content[start:i]
			if isOperand(token) {
				continue
			}
			switch token {
			case "Tj", "TJ", "'", "\"":
				if len(pending) > 0 {
					lines = append(lines, strings.Join(pending, ""))
				}
			}
			pending = pending[:0]
		}
	}

	return lines
}

// readLiteralString 读取以 '(' 开头的字符串，返回内容和消耗的字节数
func readLiteralString(s string) (string, int) {
	var b strings.Builder
	depth := 0
	i := 0

	for i < len(s) {
		c := s[i]
		switch c {
		case '\\':
			i++
			if i >= len(s) {
				return b.String(), i
			}
			switch e := s[i]; e {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case 'b':
				b.WriteByte('\b')
			case 'f':
				b.WriteByte('\f')
			case '\n':
				// 续行
			case '0', '1', '2', '3', '4', '5', '6', '7':
				v := 0
				n := 0
				for n < 3 && i < len(s) && s[i] >= '0' && s[i] <= '7' {
					v = v*8 + int(s[i]-'0')
					i++
					n++
				}
				b.WriteByte(byte(v))
				continue
			default:
				b.WriteByte(e)
			}
			i++
		case '(':
			if depth > 0 {
				b.WriteByte(c)
			}
			depth++
			i++
		case ')':
			depth--
			i++
			if depth == 0 {
				return b.String(), i
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
			i++
		}
	}

	return b.String(), i
}

func isContentDelimiter(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\f', '[', ']', '<', '>', '{', '}':
		return true
	}
	return false
}

// isOperand 判断记号是数字或名称等操作数
func isOperand(token string) bool {
	if token == "" {
		return true
	}
	switch c := token[0]; {
	case c >= '0' && c <= '9', c == '-', c == '+', c == '.', c == '/':
		return true
	}
	return token == "true" || token == "false" || token == "null"
}
