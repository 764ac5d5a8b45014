package document

import (
	"strings"

	"github.com/adrg/frontmatter"
)

// FrontMatter 源文件头部的导入设置
// 非空字段会覆盖本次导入的默认设置
type FrontMatter struct {
	Deck     string            `yaml:"deck" toml:"deck" json:"deck"`
	Model    string            `yaml:"model" toml:"model" json:"model"`
	Tags     []string          `yaml:"tags" toml:"tags" json:"tags"`
	Fields   []string          `yaml:"fields" toml:"fields" json:"fields"`
	FieldMap map[string]string `yaml:"field_map" toml:"field_map" json:"field_map"`
}

// IsZero 判断是否没有任何设置
func (f FrontMatter) IsZero() bool {
	return f.Deck == "" && f.Model == "" && len(f.Tags) == 0 &&
		len(f.Fields) == 0 && len(f.FieldMap) == 0
}

// ParseFrontMatter 拆分头部设置和正文
// 没有头部或头部格式错误时，整个内容都作为正文返回
func ParseFrontMatter(content string) (FrontMatter, string) {
	var meta FrontMatter
	body, err := frontmatter.Parse(strings.NewReader(content), &meta)
	if err != nil {
		return FrontMatter{}, content
	}
	return meta, string(body)
}
