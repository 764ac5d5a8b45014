package document

import (
	"fmt"
	"html"
	"io"
	"os"
	"strings"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// MarkdownParser Markdown源文件解析器
type MarkdownParser struct{}

// NewMarkdownParser 创建新的Markdown解析器
func NewMarkdownParser() Parser {
	return &MarkdownParser{}
}

// Parse 解析Markdown文件并提取文本内容
func (p *MarkdownParser) Parse(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open markdown file: %w", err)
	}
	defer file.Close()

	return p.ParseReader(file, filePath)
}

// ParseReader 从Reader解析Markdown内容
// 头部设置会被去掉，需要时用 ParseFrontMatter 单独读取
func (p *MarkdownParser) ParseReader(r io.Reader, filename string) (string, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read markdown content: %w", err)
	}

	_, body := ParseFrontMatter(string(content))

	mdParser := parser.NewWithExtensions(parser.CommonExtensions)
	doc := mdParser.Parse([]byte(body))

	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{Flags: mdhtml.CommonFlags})
	htmlContent := markdown.Render(doc, renderer)

	return extractTextFromHTML(string(htmlContent)), nil
}

// lineBreakTags 结束后需要换行的标签
var lineBreakTags = map[string]bool{
	"br": true, "p": true, "li": true, "pre": true, "blockquote": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"tr": true, "hr": true, "dt": true, "dd": true,
}

// extractTextFromHTML 从HTML中提取纯文本，保留行结构
// 块级标签变为换行，行内标签直接移除
func extractTextFromHTML(s string) string {
	var b strings.Builder

	for {
		start := strings.IndexByte(s, '<')
		if start == -1 {
			b.WriteString(s)
			break
		}
		end := strings.IndexByte(s[start:], '>')
		if end == -1 {
			b.WriteString(s)
			break
		}

		b.WriteString(s[:start])
		if lineBreakTags[tagName(s[start+1:start+end])] {
			b.WriteByte('\n')
		}
		s = s[start+end+1:]
	}

	return normalizeLines(html.UnescapeString(b.String()))
}

// tagName 返回标签名（小写，不含斜杠和属性）
func tagName(tag string) string {
	tag = strings.TrimPrefix(tag, "/")
	tag = strings.TrimSuffix(tag, "/")
	if i := strings.IndexAny(tag, " \t\n"); i >= 0 {
		tag = tag[:i]
	}
	return strings.ToLower(tag)
}

// normalizeLines 规范化每行的空白，最多保留一个连续空行
func normalizeLines(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false

	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}
