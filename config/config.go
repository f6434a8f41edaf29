package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Game   GameConfig   `mapstructure:"game"`
	Log    LogConfig    `mapstructure:"log"`
}

type ServerConfig struct {
	HTTPAddress       string  `mapstructure:"http_address"`
	RPCAddress        string  `mapstructure:"rpc_address"`
	MetricsAddress    string  `mapstructure:"metrics_address"`
	MessagesPerSecond float64 `mapstructure:"messages_per_second"`
	MessageBurst      int     `mapstructure:"message_burst"`
}

// GameConfig holds the session rules shared by every room.
type GameConfig struct {
	Mode          string        `mapstructure:"mode"`
	ReadySeconds  int           `mapstructure:"ready_seconds"`
	RoundSeconds  int           `mapstructure:"round_seconds"`
	TurnSeconds   int           `mapstructure:"turn_seconds"`
	WinPoints     int           `mapstructure:"win_points"`
	MinPlayers    int           `mapstructure:"min_players"`
	MaxRounds     int           `mapstructure:"max_rounds"`
	BattlePolicy  string        `mapstructure:"battle_policy"`
	TickInterval  time.Duration `mapstructure:"tick_interval"`
	RoomListLimit int           `mapstructure:"room_list_limit"`
}

type LogConfig struct {
	Development bool `mapstructure:"development"`
}

// EnvPrefix is prepended to every environment override, e.g.
// ROOMSERVER_GAME_WIN_POINTS.
const EnvPrefix = "ROOMSERVER"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.rpc_address", ":9090")
	v.SetDefault("server.metrics_address", ":9100")
	v.SetDefault("server.messages_per_second", 10.0)
	v.SetDefault("server.message_burst", 20)

	v.SetDefault("game.mode", "pick")
	v.SetDefault("game.ready_seconds", 30)
	v.SetDefault("game.round_seconds", 30)
	v.SetDefault("game.turn_seconds", 30)
	v.SetDefault("game.win_points", 3)
	v.SetDefault("game.min_players", 2)
	v.SetDefault("game.max_rounds", 0)
	v.SetDefault("game.battle_policy", "random")
	v.SetDefault("game.tick_interval", time.Second)
	v.SetDefault("game.room_list_limit", 10)

	v.SetDefault("log.development", false)
}

// LoadConfig reads config.yaml from path. A missing file is not an error:
// defaults and environment overrides still apply.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
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
