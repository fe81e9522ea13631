package config

import (
	"time"
)

// Config 服务全局配置。启动时加载后只读，通过显式传参注入各组件。
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	CORS     CORSConfig     `yaml:"cors"`
	LLM      LLMConfig      `yaml:"llm"`
	Context  ContextConfig  `yaml:"context"`
	Session  SessionConfig  `yaml:"session"`
}

type ServerConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	IP          string `yaml:"ip"`
	Port        int    `yaml:"port"`
	APIPrefix   string `yaml:"api_prefix"`
	Environment string `yaml:"environment"` // development 或 production
}

// IsDevelopment 是否为开发环境（开发环境向客户端暴露异常详情）
func (s ServerConfig) IsDevelopment() bool {
	return s.Environment == "development"
}

type LogConfig struct {
	Level string `yaml:"log_level"`
	Dir   string `yaml:"log_dir"`
	File  string `yaml:"log_file"`
}

type DatabaseConfig struct {
	Driver           string        `yaml:"driver"` // postgres 或 sqlite
	URL              string        `yaml:"url"`
	MaxOpenConns     int           `yaml:"max_open_conns"`
	MaxIdleConns     int           `yaml:"max_idle_conns"`
	ConnMaxLifetime  time.Duration `yaml:"conn_max_lifetime"`
	StatementTimeout time.Duration `yaml:"statement_timeout"`
}

type AuthConfig struct {
	Enabled       bool          `yaml:"enabled"`
	SecretKey     string        `yaml:"secret_key"`
	AccessExpiry  time.Duration `yaml:"access_expiry"`
	RefreshExpiry time.Duration `yaml:"refresh_expiry"`
}

type CORSConfig struct {
	AllowOrigins []string `yaml:"allow_origins"`
	MaxAge       time.Duration `yaml:"max_age"`
}

type LLMConfig struct {
	BaseURL     string  `yaml:"url"`
	APIKey      string  `yaml:"api_key"`
	ModelName   string  `yaml:"model_name"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	TopP        float64 `yaml:"top_p"`
}

// ContextConfig 患者上下文注入的规模限制
type ContextConfig struct {
	MaxMedicalReports int `yaml:"max_medical_reports"`
	MaxMedications    int `yaml:"max_medications"`
}

type SessionConfig struct {
	Driver string             `yaml:"driver"` // memory 或 redis
	TTL    time.Duration      `yaml:"ttl"`
	Redis  SessionRedisConfig `yaml:"redis"`
}

type SessionRedisConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}
