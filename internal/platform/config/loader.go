package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"yiscore-server-go/internal/platform/errors"
)

// DefaultConfigPath 默认配置文件路径
const DefaultConfigPath = ".config.yaml"

// Loader 负责加载配置：默认值 -> yaml 文件 -> 环境变量，后者覆盖前者。
type Loader struct {
	useDotEnv bool
	path      string
}

// NewLoader creates a loader reading the default config file path.
func NewLoader() *Loader {
	return &Loader{
		useDotEnv: true,
		path:      DefaultConfigPath,
	}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithPath overrides the configuration file path (useful for tests).
func (l *Loader) WithPath(path string) *Loader {
	if path != "" {
		l.path = path
	}
	return l
}

// Result captures the loaded configuration and its origin path.
type Result struct {
	Config *Config
	Path   string
}

// Load 加载配置。yaml 文件不存在时仅使用默认值与环境变量。
func (l *Loader) Load() (*Result, error) {
	if l.useDotEnv {
		if err := godotenv.Load(); err != nil {
			fmt.Println("未找到 .env 文件，使用系统环境变量")
		}
	}

	cfg := DefaultConfig()

	path := l.path
	if env := os.Getenv("YISCORE_CONFIG"); env != "" {
		path = env
	}

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(errors.KindConfig, "loader.parse", "解析配置文件失败", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrap(errors.KindConfig, "loader.read", "读取配置文件失败", err)
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return &Result{
		Config: cfg,
		Path:   path,
	}, nil
}

// applyEnvOverrides 环境变量优先级最高，保持与旧部署脚本兼容的变量名。
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		cfg.Server.Environment = v
	}
	if v := os.Getenv("API_PREFIX"); v != "" {
		cfg.Server.APIPrefix = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("SECRET_KEY"); v != "" {
		cfg.Auth.SecretKey = v
	}
	if v := os.Getenv("OPENAI_API_BASE"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.ModelName = v
	}
	if v := os.Getenv("MAX_MEDICAL_REPORTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Context.MaxMedicalReports = n
		}
	}
	if v := os.Getenv("MAX_MEDICATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Context.MaxMedications = n
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Session.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Session.Redis.Password = v
	}
}

// Validate 校验加载完成后的配置
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New(errors.KindConfig, "loader.validate", "配置为空")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return errors.New(errors.KindConfig, "loader.validate",
			fmt.Sprintf("非法端口号: %d", cfg.Server.Port))
	}
	if cfg.Database.URL == "" {
		return errors.New(errors.KindConfig, "loader.validate", "数据库连接串不能为空")
	}
	if cfg.LLM.BaseURL == "" {
		return errors.New(errors.KindConfig, "loader.validate", "LLM地址不能为空")
	}
	if cfg.Session.Driver == "redis" && cfg.Session.Redis.Addr == "" {
		return errors.New(errors.KindConfig, "loader.validate", "redis会话存储需要配置地址")
	}
	return nil
}
