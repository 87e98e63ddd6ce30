package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 应用配置结构体
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	JWT       JWTConfig       `yaml:"jwt"`
	Log       LogConfig       `yaml:"log"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Message   MessageConfig   `yaml:"message"`
	Offline   OfflineConfig   `yaml:"offline"`
	Presence  PresenceConfig  `yaml:"presence"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port            string        `yaml:"port"`            // 服务器监听端口
	ReadTimeout     time.Duration `yaml:"readTimeout"`     // 读取超时时间
	WriteTimeout    time.Duration `yaml:"writeTimeout"`    // 写入超时时间
	IdleTimeout     time.Duration `yaml:"idleTimeout"`     // 空闲超时时间
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"` // 优雅关闭超时时间
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`   // 数据库驱动类型
	Host     string `yaml:"host"`     // 数据库主机地址
	Port     int    `yaml:"port"`     // 数据库端口
	Username string `yaml:"username"` // 数据库用户名
	Password string `yaml:"password"` // 数据库密码
	Database string `yaml:"database"` // 数据库名称
	Charset  string `yaml:"charset"`  // 字符集
	MaxIdle  int    `yaml:"maxIdle"`  // 最大空闲连接数
	MaxOpen  int    `yaml:"maxOpen"`  // 最大打开连接数
}

// RedisConfig Redis配置
type RedisConfig struct {
	Host     string `yaml:"host"`     // Redis主机地址
	Port     int    `yaml:"port"`     // Redis端口
	Password string `yaml:"password"` // Redis密码
	DB       int    `yaml:"db"`       // Redis数据库编号
}

// KafkaConfig Kafka配置
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`      // broker地址列表
	GroupID      string        `yaml:"groupId"`      // 消费者组ID
	BatchTimeout time.Duration `yaml:"batchTimeout"` // 生产者批量发送超时
	MaxAttempts  int           `yaml:"maxAttempts"`  // 生产者最大重试次数
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret     string        `yaml:"secret"`     // JWT密钥
	ExpireTime time.Duration `yaml:"expireTime"` // JWT过期时间
	Issuer     string        `yaml:"issuer"`     // JWT签发者
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level"`      // 日志级别
	Filename   string `yaml:"filename"`   // 日志文件名
	MaxSize    int    `yaml:"maxSize"`    // 单个日志文件最大大小(MB)
	MaxBackups int    `yaml:"maxBackups"` // 最大备份文件数
	MaxAge     int    `yaml:"maxAge"`     // 最大保存天数
	Compress   bool   `yaml:"compress"`   // 是否压缩
	Console    bool   `yaml:"console"`    // 是否同时输出到控制台
}

// WebSocketConfig WebSocket会话与心跳配置
type WebSocketConfig struct {
	AuthTimeout   time.Duration `yaml:"authTimeout"`   // 升级后等待auth帧的超时
	WriteTimeout  time.Duration `yaml:"writeTimeout"`  // 单次写超时
	SweepInterval time.Duration `yaml:"sweepInterval"` // 会话清扫周期
	ZombieAfter   time.Duration `yaml:"zombieAfter"`   // 僵尸探测阈值
	ExpireAfter   time.Duration `yaml:"expireAfter"`   // 会话过期阈值
}

// MessageConfig 消息管线配置
type MessageConfig struct {
	MaxPayloadBytes int           `yaml:"maxPayloadBytes"` // 单条消息最大载荷
	CacheSize       int           `yaml:"cacheSize"`       // 会话缓存保留条数
	CacheTTL        time.Duration `yaml:"cacheTTL"`        // 会话缓存TTL
}

// OfflineConfig 离线队列配置
type OfflineConfig struct {
	MessageTTL      time.Duration `yaml:"messageTTL"`      // 离线消息TTL
	NotificationTTL time.Duration `yaml:"notificationTTL"` // 离线通知TTL
	MaxQueue        int           `yaml:"maxQueue"`        // 单用户队列上限
}

// PresenceConfig 在线状态配置
type PresenceConfig struct {
	MarkerTTL time.Duration `yaml:"markerTTL"` // 在线标记TTL（须不小于心跳间隔）
	Debounce  time.Duration `yaml:"debounce"`  // 上下线抖动抑制窗口
}

// LoadConfig 加载配置（混合方式：YAML文件 + 环境变量）
func LoadConfig(path string) *Config {
	// 1. 首先从YAML文件加载默认配置
	config := loadFromYAML(path)

	// 2. 用环境变量覆盖配置（环境变量优先级更高）
	overrideWithEnvVars(config)

	return config
}

// loadFromYAML 从YAML文件加载配置
func loadFromYAML(filePath string) *Config {
	// 读取配置文件
	data, err := os.ReadFile(filePath)
	if err != nil {
		// 如果文件不存在，返回默认配置
		return getDefaultConfig()
	}

	// 解析YAML，文件中未出现的字段保留默认值
	config := getDefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return getDefaultConfig()
	}

	return config
}

// overrideWithEnvVars 用环境变量覆盖配置
func overrideWithEnvVars(config *Config) {
	// 服务器配置
	if port := getEnv("SERVER_PORT", ""); port != "" {
		config.Server.Port = port
	}
	if timeout := getEnvDuration("SERVER_READ_TIMEOUT", 0); timeout > 0 {
		config.Server.ReadTimeout = timeout
	}
	if timeout := getEnvDuration("SERVER_WRITE_TIMEOUT", 0); timeout > 0 {
		config.Server.WriteTimeout = timeout
	}
	if timeout := getEnvDuration("SERVER_IDLE_TIMEOUT", 0); timeout > 0 {
		config.Server.IdleTimeout = timeout
	}
	if timeout := getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 0); timeout > 0 {
		config.Server.ShutdownTimeout = timeout
	}

	// 数据库配置
	if host := getEnv("DB_HOST", ""); host != "" {
		config.Database.Host = host
	}
	if port := getEnvInt("DB_PORT", 0); port > 0 {
		config.Database.Port = port
	}
	if username := getEnv("DB_USERNAME", ""); username != "" {
		config.Database.Username = username
	}
	if password := getEnv("DB_PASSWORD", ""); password != "" {
		config.Database.Password = password
	}
	if database := getEnv("DB_DATABASE", ""); database != "" {
		config.Database.Database = database
	}
	if charset := getEnv("DB_CHARSET", ""); charset != "" {
		config.Database.Charset = charset
	}
	if maxIdle := getEnvInt("DB_MAX_IDLE", 0); maxIdle > 0 {
		config.Database.MaxIdle = maxIdle
	}
	if maxOpen := getEnvInt("DB_MAX_OPEN", 0); maxOpen > 0 {
		config.Database.MaxOpen = maxOpen
	}

	// Redis配置
	if host := getEnv("REDIS_HOST", ""); host != "" {
		config.Redis.Host = host
	}
	if port := getEnvInt("REDIS_PORT", 0); port > 0 {
		config.Redis.Port = port
	}
	if password := getEnv("REDIS_PASSWORD", ""); password != "" {
		config.Redis.Password = password
	}
	if db := getEnvInt("REDIS_DB", -1); db >= 0 {
		config.Redis.DB = db
	}

	// Kafka配置
	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		config.Kafka.Brokers = strings.Split(brokers, ",")
	}
	if groupID := getEnv("KAFKA_GROUP_ID", ""); groupID != "" {
		config.Kafka.GroupID = groupID
	}

	// JWT配置
	if secret := getEnv("JWT_SECRET", ""); secret != "" {
		config.JWT.Secret = secret
	}
	if expireTime := getEnvDuration("JWT_EXPIRE_TIME", 0); expireTime > 0 {
		config.JWT.ExpireTime = expireTime
	}
	if issuer := getEnv("JWT_ISSUER", ""); issuer != "" {
		config.JWT.Issuer = issuer
	}

	// 日志配置
	if level := getEnv("LOG_LEVEL", ""); level != "" {
		config.Log.Level = level
	}
	if filename := getEnv("LOG_FILENAME", ""); filename != "" {
		config.Log.Filename = filename
	}
	if maxSize := getEnvInt("LOG_MAX_SIZE", 0); maxSize > 0 {
		config.Log.MaxSize = maxSize
	}
	if maxBackups := getEnvInt("LOG_MAX_BACKUPS", 0); maxBackups > 0 {
		config.Log.MaxBackups = maxBackups
	}
	if maxAge := getEnvInt("LOG_MAX_AGE", 0); maxAge > 0 {
		config.Log.MaxAge = maxAge
	}

	// WebSocket配置
	if d := getEnvDuration("WS_AUTH_TIMEOUT", 0); d > 0 {
		config.WebSocket.AuthTimeout = d
	}
	if d := getEnvDuration("WS_WRITE_TIMEOUT", 0); d > 0 {
		config.WebSocket.WriteTimeout = d
	}
	if d := getEnvDuration("WS_SWEEP_INTERVAL", 0); d > 0 {
		config.WebSocket.SweepInterval = d
	}
	if d := getEnvDuration("WS_ZOMBIE_AFTER", 0); d > 0 {
		config.WebSocket.ZombieAfter = d
	}
	if d := getEnvDuration("WS_EXPIRE_AFTER", 0); d > 0 {
		config.WebSocket.ExpireAfter = d
	}

	// 消息配置
	if n := getEnvInt("MSG_MAX_PAYLOAD_BYTES", 0); n > 0 {
		config.Message.MaxPayloadBytes = n
	}
	if n := getEnvInt("MSG_CACHE_SIZE", 0); n > 0 {
		config.Message.CacheSize = n
	}
	if d := getEnvDuration("MSG_CACHE_TTL", 0); d > 0 {
		config.Message.CacheTTL = d
	}
}

// getDefaultConfig 获取默认配置
func getDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:   "mysql",
			Host:     "localhost",
			Port:     3306,
			Username: "im_user",
			Password: "",
			Database: "im_server",
			Charset:  "utf8mb4",
			MaxIdle:  10,
			MaxOpen:  100,
		},
		Redis: RedisConfig{
			Host:     "localhost",
			Port:     6379,
			Password: "",
			DB:       0,
		},
		Kafka: KafkaConfig{
			Brokers:      []string{"localhost:9092"},
			GroupID:      "im-server",
			BatchTimeout: 10 * time.Millisecond,
			MaxAttempts:  3,
		},
		JWT: JWTConfig{
			Secret:     "your-secret-key",
			ExpireTime: 24 * time.Hour,
			Issuer:     "im-server",
		},
		Log: LogConfig{
			Level:      "info",
			Filename:   "logs/app.log",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   true,
			Console:    false,
		},
		WebSocket: WebSocketConfig{
			AuthTimeout:   10 * time.Second,
			WriteTimeout:  10 * time.Second,
			SweepInterval: 60 * time.Second,
			ZombieAfter:   120 * time.Second,
			ExpireAfter:   300 * time.Second,
		},
		Message: MessageConfig{
			MaxPayloadBytes: 4096,
			CacheSize:       100,
			CacheTTL:        24 * time.Hour,
		},
		Offline: OfflineConfig{
			MessageTTL:      30 * 24 * time.Hour,
			NotificationTTL: 7 * 24 * time.Hour,
			MaxQueue:        10000,
		},
		Presence: PresenceConfig{
			MarkerTTL: 2 * time.Minute,
			Debounce:  5 * time.Second,
		},
	}
}

// Validate 校验配置间的约束关系
func (c *Config) Validate() error {
	if c.WebSocket.ZombieAfter >= c.WebSocket.ExpireAfter {
		return fmt.Errorf("websocket.zombieAfter(%v) 必须小于 expireAfter(%v)",
			c.WebSocket.ZombieAfter, c.WebSocket.ExpireAfter)
	}
	if c.Message.MaxPayloadBytes <= 0 {
		return fmt.Errorf("message.maxPayloadBytes 必须为正数")
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers 不能为空")
	}
	return nil
}

// 辅助函数：获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// 辅助函数：获取整数环境变量
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// 辅助函数：获取时间环境变量
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
