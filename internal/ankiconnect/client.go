package ankiconnect

import (
	"context"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultEndpoint AnkiConnect 插件默认监听地址
	DefaultEndpoint = "http://localhost:8765"
	// DefaultVersion AnkiConnect 协议版本
	DefaultVersion = 6
	// DefaultTimeout 单次请求超时时间
	DefaultTimeout = 5 * time.Second
)

// Client AnkiConnect 客户端接口
// 负责与本地运行的 Anki 交互
type Client interface {
	// Version 返回 AnkiConnect 协议版本
	Version(ctx context.Context) (int, error)

	// Ping 检查 AnkiConnect 是否可达
	Ping(ctx context.Context) error

	// DeckNames 返回全部牌组名称
	DeckNames(ctx context.Context) ([]string, error)

	// CreateDeck 创建牌组，牌组已存在时返回其ID
	CreateDeck(ctx context.Context, name string) (int64, error)

	// AddNote 添加一条笔记，返回笔记ID
	AddNote(ctx context.Context, note Note) (int64, error)

	// ModelFieldNames 返回笔记类型的字段名
	ModelFieldNames(ctx context.Context, model string) ([]string, error)
}

// Note 待添加的笔记
type Note struct {
	DeckName  string            `json:"deckName"`
	ModelName string            `json:"modelName"`
	Fields    map[string]string `json:"fields"`
	Options   NoteOptions       `json:"options"`
	Tags      []string          `json:"tags"`
}

// NoteOptions 添加笔记的选项
type NoteOptions struct {
	AllowDuplicate bool `json:"allowDuplicate"`
}

// NewNote 创建笔记，字段值会去掉首尾空白
func NewNote(deck, model string, fields map[string]string, tags []string, allowDuplicate bool) Note {
	trimmed := make(map[string]string, len(fields))
	for k, v := range fields {
		trimmed[k] = strings.TrimSpace(v)
	}
	if tags == nil {
		tags = []string{}
	}
	return Note{
		DeckName:  deck,
		ModelName: model,
		Fields:    trimmed,
		Options:   NoteOptions{AllowDuplicate: allowDuplicate},
		Tags:      tags,
	}
}

// Config 客户端配置
type Config struct {
	Endpoint   string        // AnkiConnect 地址
	Version    int           // 协议版本
	Timeout    time.Duration // 请求超时时间
	HTTPClient *http.Client  // 自定义HTTP客户端
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Endpoint: DefaultEndpoint,
		Version:  DefaultVersion,
		Timeout:  DefaultTimeout,
	}
}

// Option 客户端配置选项函数类型
type Option func(*Config)

// WithEndpoint 设置 AnkiConnect 地址
func WithEndpoint(endpoint string) Option {
	return func(c *Config) {
		c.Endpoint = endpoint
	}
}

// WithVersion 设置协议版本
func WithVersion(version int) Option {
	return func(c *Config) {
		c.Version = version
	}
}

// WithTimeout 设置请求超时时间
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithHTTPClient 设置自定义HTTP客户端
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) {
		c.HTTPClient = client
	}
}

// NewConfig 创建一个新的配置并应用选项
func NewConfig(opts ...Option) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
