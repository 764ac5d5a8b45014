package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用程序配置结构体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Anki     AnkiConfig     `mapstructure:"anki"`
	Import   ImportConfig   `mapstructure:"import"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host         string        `mapstructure:"host"`          // 服务器主机
	Port         int           `mapstructure:"port"`          // 服务器端口
	Mode         string        `mapstructure:"mode"`          // 运行模式: debug, release, test
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`  // 读取超时
	WriteTimeout time.Duration `mapstructure:"write_timeout"` // 写入超时
}

// Addr 返回监听地址
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AnkiConfig AnkiConnect 配置
type AnkiConfig struct {
	Endpoint       string        `mapstructure:"endpoint"`        // AnkiConnect 地址
	Version        int           `mapstructure:"version"`         // 协议版本
	Timeout        time.Duration `mapstructure:"timeout"`         // 请求超时
	Deck           string        `mapstructure:"deck"`            // 默认牌组
	Model          string        `mapstructure:"model"`           // 默认笔记类型
	AllowDuplicate bool          `mapstructure:"allow_duplicate"` // 是否允许重复笔记
}

// FieldAlias 字段别名
// 以列表形式配置，避免键名被转为小写
type FieldAlias struct {
	From string `mapstructure:"from"` // 文本中出现的字段名
	To   string `mapstructure:"to"`   // 对应的规范字段名
}

// ImportConfig 闪卡解析和导入配置
type ImportConfig struct {
	Fields       []string     `mapstructure:"fields"`        // 声明的字段列表
	FieldMap     []FieldAlias `mapstructure:"field_map"`     // 字段别名
	LeadingField string       `mapstructure:"leading_field"` // 卡片起始字段
	Concurrency  int          `mapstructure:"concurrency"`   // 并发添加笔记数
	Tags         []string     `mapstructure:"tags"`          // 附加标签
}

// Aliases 返回别名映射
func (c ImportConfig) Aliases() map[string]string {
	m := make(map[string]string, len(c.FieldMap))
	for _, a := range c.FieldMap {
		if a.From != "" && a.To != "" {
			m[a.From] = a.To
		}
	}
	return m
}

// StorageConfig 存储配置
type StorageConfig struct {
	Type      string `mapstructure:"type"`     // 存储类型：local 或 minio
	Path      string `mapstructure:"path"`     // 本地存储路径
	Bucket    string `mapstructure:"bucket"`   // MinIO桶名称
	Endpoint  string `mapstructure:"endpoint"` // MinIO端点
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"` // 是否使用SSL
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Enable    bool   `mapstructure:"enable"`     // 是否启用缓存
	Type      string `mapstructure:"type"`       // 缓存类型：memory 或 redis
	Address   string `mapstructure:"address"`    // Redis地址
	Password  string `mapstructure:"password"`   // Redis密码
	DB        int    `mapstructure:"db"`         // Redis数据库
	TTL       int    `mapstructure:"ttl"`        // 缓存TTL（秒）
	KeyPrefix string `mapstructure:"key_prefix"` // 键前缀
}

// QueueConfig 任务队列配置
type QueueConfig struct {
	Enable        bool   `mapstructure:"enable"`         // 是否启用任务队列
	Type          string `mapstructure:"type"`           // 队列类型
	RedisAddr     string `mapstructure:"redis_addr"`     // Redis地址
	RedisPassword string `mapstructure:"redis_password"` // Redis密码
	RedisDB       int    `mapstructure:"redis_db"`       // Redis数据库编号
	Concurrency   int    `mapstructure:"concurrency"`    // 任务处理并发数
	RetryLimit    int    `mapstructure:"retry_limit"`    // 任务最大重试次数
	RetryDelay    int    `mapstructure:"retry_delay"`    // 重试延迟(秒)
	Worker        bool   `mapstructure:"worker"`         // 是否在本进程内处理任务
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Enable bool   `mapstructure:"enable"` // 是否保存导入记录
	Type   string `mapstructure:"type"`   // 数据库类型: sqlite
	DSN    string `mapstructure:"dsn"`    // 数据源名称
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`       // 日志级别
	File       string `mapstructure:"file"`        // 日志文件，为空时只输出到标准输出
	MaxSize    int    `mapstructure:"max_size"`    // 单个文件最大大小(MB)
	MaxBackups int    `mapstructure:"max_backups"` // 保留的旧文件数量
	MaxAge     int    `mapstructure:"max_age"`     // 旧文件保留天数
	Compress   bool   `mapstructure:"compress"`    // 是否压缩旧文件
}

// Load 从文件和环境变量加载配置
// 当前目录的 .env 会先被加载，已存在的环境变量不会被覆盖
func Load(configPath string) (*Config, error) {
	var config Config

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: Failed to load .env: %v", err)
	}

	if configPath == "" {
		configPath = "config.yaml"
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	setDefaults(v)

	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		// 找不到配置文件时写入一份默认配置
		log.Printf("Warning: Config file not found at %s, using defaults", configPath)
		if err := os.MkdirAll(filepath.Dir(configPath), 0755); err == nil {
			if err := v.WriteConfigAs(configPath); err != nil {
				log.Printf("Warning: Could not write default config to %s: %v", configPath, err)
			}
		}
	} else if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	} else {
		log.Printf("Using config file: %s", v.ConfigFileUsed())
	}

	// 支持环境变量覆盖，如 ANKI_ENDPOINT
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return processEnvironmentVariables(&config), nil
}

// processEnvironmentVariables 替换配置项中的 ${VAR} 占位符
func processEnvironmentVariables(cfg *Config) *Config {
	for _, s := range []*string{
		&cfg.Anki.Endpoint,
		&cfg.Storage.Endpoint,
		&cfg.Storage.AccessKey,
		&cfg.Storage.SecretKey,
		&cfg.Cache.Address,
		&cfg.Cache.Password,
		&cfg.Queue.RedisAddr,
		&cfg.Queue.RedisPassword,
		&cfg.Database.DSN,
	} {
		*s = expandEnv(*s)
	}
	return cfg
}

// expandEnv 值为 ${VAR} 且环境变量非空时返回环境变量的值
func expandEnv(value string) string {
	if !strings.HasPrefix(value, "${") || !strings.HasSuffix(value, "}") {
		return value
	}
	if envVal := os.Getenv(value[2 : len(value)-1]); envVal != "" {
		return envVal
	}
	return value
}

// setDefaults 设置配置的默认值
func setDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")

	// AnkiConnect 默认配置
	v.SetDefault("anki.endpoint", "http://localhost:8765")
	v.SetDefault("anki.version", 6)
	v.SetDefault("anki.timeout", "5s")
	v.SetDefault("anki.deck", "ChatGPT Imported Cards")
	v.SetDefault("anki.model", "Basic")
	v.SetDefault("anki.allow_duplicate", false)

	// 导入默认配置
	v.SetDefault("import.fields", []string{"Front", "Back", "Extras"})
	v.SetDefault("import.field_map", []map[string]string{{"from": "References", "to": "Extras"}})
	v.SetDefault("import.leading_field", "Front")
	v.SetDefault("import.concurrency", 4)
	v.SetDefault("import.tags", []string{"auto_imported"})

	// 存储默认配置
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.path", "./data/uploads")
	v.SetDefault("storage.bucket", "anki-imports")
	v.SetDefault("storage.use_ssl", false)

	// 缓存默认配置
	v.SetDefault("cache.enable", true)
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.ttl", 600)
	v.SetDefault("cache.key_prefix", "anki")

	// 队列默认配置
	v.SetDefault("queue.enable", false)
	v.SetDefault("queue.type", "redis")
	v.SetDefault("queue.redis_addr", "localhost:6379")
	v.SetDefault("queue.redis_db", 0)
	v.SetDefault("queue.concurrency", 4)
	v.SetDefault("queue.retry_limit", 3)
	v.SetDefault("queue.retry_delay", 30)
	v.SetDefault("queue.worker", true)

	// 数据库默认配置
	v.SetDefault("database.enable", true)
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "data/imports.db")

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", false)
}
