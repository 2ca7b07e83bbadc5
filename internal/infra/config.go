package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config: корневая структура конфигурации роутера и консоли.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Console   ServerConfig    `mapstructure:"console"`
	GRPC      GRPCConfig      `mapstructure:"grpc"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Router    RouterConfig    `mapstructure:"router"`
	Transport TransportConfig `mapstructure:"transport"`
	Targets   []TargetConfig  `mapstructure:"targets"`
	Logger    LoggerConfig    `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// GRPCConfig: входящая точка для релея (router.v1.Receiver).
type GRPCConfig struct {
	Addr       string `mapstructure:"addr"`
	RelayToken string `mapstructure:"relay_token"`
}

// DatabaseConfig описывает подключение к PostgreSQL. Пустой URL: работа без БД.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig описывает подключение к Redis (Pub/Sub, ExecutedSet, аттестации).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig содержит пути к RSA ключам и настройки JWT.
type AuthConfig struct {
	PublicKeyPath  string        `mapstructure:"public_key_path"`
	PrivateKeyPath string        `mapstructure:"private_key_path"` // Только для Console API
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	BcryptCost     int           `mapstructure:"bcrypt_cost"`
	PublicKey      []byte
	PrivateKey     []byte
}

// RouterConfig: параметры инстанса роутера.
type RouterConfig struct {
	Chain         string        `mapstructure:"chain"`         // имя сети из статической таблицы
	AdminAddress  string        `mapstructure:"admin_address"` // владелец реестров
	Ledger        string        `mapstructure:"ledger"`        // memory, redis, postgres
	GasPerAction  uint64        `mapstructure:"gas_per_action"`
	MaxBatchSize  int           `mapstructure:"max_batch_size"`
	TargetTimeout time.Duration `mapstructure:"target_timeout"`

	JournalBufferSize    int           `mapstructure:"journal_buffer_size"`
	JournalFlushInterval time.Duration `mapstructure:"journal_flush_interval"`
}

// TransportConfig: внешний релей и настройки надёжности.
type TransportConfig struct {
	Mode       string `mapstructure:"mode"` // relay, loopback
	RelayAddr  string `mapstructure:"relay_addr"`
	RelayToken string `mapstructure:"relay_token"`

	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
	QuoteAttempts uint          `mapstructure:"quote_attempts"`
	CallTimeout   time.Duration `mapstructure:"call_timeout"`

	// Настройки Circuit Breaker для релея
	CBMaxRequests uint32        `mapstructure:"cb_max_requests"`
	CBInterval    time.Duration `mapstructure:"cb_interval"`
	CBTimeout     time.Duration `mapstructure:"cb_timeout"`
}

// TargetConfig: удалённый коннектор, исполняющий действия для адреса таргета.
type TargetConfig struct {
	Address  string `mapstructure:"address"`
	Endpoint string `mapstructure:"endpoint"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// 2. ENV перекрывает конфиг: ROUTER_CHAIN=base перекроет router.chain
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Дефолты
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет: работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// 6. Ключи: сначала PEM прямо в ENV (Docker/K8s), иначе файл по пути
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")
	cfg.Auth.PrivateKey = loadKeyResource(cfg.Auth.PrivateKeyPath, "AUTH_PRIVATE_KEY_DATA")

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("console.port", 8081)
	v.SetDefault("console.read_timeout", 5*time.Second)
	v.SetDefault("console.write_timeout", 10*time.Second)
	v.SetDefault("grpc.addr", ":9090")
	v.SetDefault("grpc.relay_token", "")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("redis.addr", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.bcrypt_cost", 12)
	v.SetDefault("router.chain", "ethereum")
	v.SetDefault("router.admin_address", "")
	v.SetDefault("router.ledger", "memory")
	v.SetDefault("router.gas_per_action", 200_000)
	v.SetDefault("router.max_batch_size", 50)
	v.SetDefault("router.target_timeout", 15*time.Second)
	v.SetDefault("router.journal_buffer_size", 10000)
	v.SetDefault("router.journal_flush_interval", 500*time.Millisecond)
	v.SetDefault("transport.mode", "relay")
	v.SetDefault("transport.relay_addr", "")
	v.SetDefault("transport.relay_token", "")
	v.SetDefault("transport.rate_per_second", 100)
	v.SetDefault("transport.burst", 20)
	v.SetDefault("transport.quote_attempts", 3)
	v.SetDefault("transport.call_timeout", 10*time.Second)
	v.SetDefault("transport.cb_max_requests", 3)
	v.SetDefault("transport.cb_interval", 5*time.Second)
	v.SetDefault("transport.cb_timeout", 30*time.Second)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
}

// loadKeyResource: ключ из ENV (PEM) или из файла по пути.
func loadKeyResource(path string, envDataKey string) []byte {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
