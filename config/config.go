package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Factory  FactoryConfig  `mapstructure:"factory"`
	Room     RoomConfig     `mapstructure:"room"`
	Match    MatchConfig    `mapstructure:"match"`
	Database DatabaseConfig `mapstructure:"database"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	HTTPAddress string        `mapstructure:"http_address"`
	RPCAddress  string        `mapstructure:"rpc_address"`
	MetricsPath string        `mapstructure:"metrics_path"`
	Heartbeat   time.Duration `mapstructure:"heartbeat"`
}

// FactoryConfig points at the external service that generates boards.
type FactoryConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type RoomConfig struct {
	MaxPlayers      int    `mapstructure:"max_players"`
	OwnerPolicy     string `mapstructure:"owner_policy"` // "promote" or "close"
	DefaultMap      string `mapstructure:"default_map"`
	DefaultDuration int    `mapstructure:"default_duration"` // minutes
	DefaultItems    int    `mapstructure:"default_items"`
	CreateOnJoin    bool   `mapstructure:"create_on_join"`
}

type MatchConfig struct {
	CountdownTicks int           `mapstructure:"countdown_ticks"`
	TickInterval   time.Duration `mapstructure:"tick_interval"`
	BlockReward    int           `mapstructure:"block_reward"`
	KillReward     int           `mapstructure:"kill_reward"`
	Ranking        string        `mapstructure:"ranking"` // "survival" or "cascade"
}

type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver"` // "", "gorm" or "sql"
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":3000")
	v.SetDefault("server.rpc_address", ":3001")
	v.SetDefault("server.metrics_path", "/metrics")
	v.SetDefault("server.heartbeat", 30*time.Second)

	v.SetDefault("factory.url", "http://localhost:8080/games/create")
	v.SetDefault("factory.timeout", 10*time.Second)

	v.SetDefault("room.max_players", 4)
	v.SetDefault("room.owner_policy", "promote")
	v.SetDefault("room.default_map", "default")
	v.SetDefault("room.default_duration", 5)
	v.SetDefault("room.default_items", 3)
	v.SetDefault("room.create_on_join", true)

	v.SetDefault("match.countdown_ticks", 3)
	v.SetDefault("match.tick_interval", time.Second)
	v.SetDefault("match.block_reward", 10)
	v.SetDefault("match.kill_reward", 25)
	v.SetDefault("match.ranking", "survival")

	v.SetDefault("database.driver", "")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.dbname", "bombarena")

	v.SetDefault("nats.subject", "arena.match.over")
	v.SetDefault("redis.key", "arena:leaderboard")

	v.SetDefault("log.level", "info")
}

// LoadConfig reads config.yaml from the given search paths (or the exact
// file when configFile is set) and applies ARENA_* environment overrides.
// A missing config file is not an error: defaults apply.
func LoadConfig(configFile string, paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		for _, p := range paths {
			v.AddConfigPath(p)
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("arena")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
