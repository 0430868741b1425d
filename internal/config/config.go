package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"open-trivia-rounds/internal/domain"
	"open-trivia-rounds/internal/game"
)

// EnvPrefix prefixes every environment override, e.g. TRIVIA_REDIS_ADDR.
const EnvPrefix = "TRIVIA"

// Category sources.
const (
	SourceOpenTDB  = "opentdb"
	SourcePostgres = "postgres"
	SourceStatic   = "static"
)

type Config struct {
	Server struct {
		Port string `mapstructure:"port"`
	} `mapstructure:"server"`
	Log struct {
		Level  string `mapstructure:"level"`
		Pretty bool   `mapstructure:"pretty"`
	} `mapstructure:"log"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
		TTL      string `mapstructure:"ttl"`
		Prefix   string `mapstructure:"prefix"`
	} `mapstructure:"redis"`
	Postgres struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"postgres"`
	OpenTDB struct {
		BaseURL string `mapstructure:"baseurl"`
		Timeout string `mapstructure:"timeout"`
	} `mapstructure:"opentdb"`
	Categories struct {
		Source string `mapstructure:"source"`
		TTL    string `mapstructure:"ttl"`
	} `mapstructure:"categories"`
	Game struct {
		MinNameLength int `mapstructure:"minnamelength"`
		MaxNameLength int `mapstructure:"maxnamelength"`
		MinRounds     int `mapstructure:"minrounds"`
		MaxRounds     int `mapstructure:"maxrounds"`
		MinQuestions  int `mapstructure:"minquestions"`
		MaxQuestions  int `mapstructure:"maxquestions"`
		RandomMinID   int `mapstructure:"randomminid"`
		RandomMaxID   int `mapstructure:"randommaxid"`
		Timeouts      struct {
			Easy   string `mapstructure:"easy"`
			Medium string `mapstructure:"medium"`
			Hard   string `mapstructure:"hard"`
		} `mapstructure:"timeouts"`
		TickInterval   string `mapstructure:"tickinterval"`
		SessionIdleTTL string `mapstructure:"sessionidlettl"`
		SweepInterval  string `mapstructure:"sweepinterval"`
	} `mapstructure:"game"`
	RateLimit struct {
		RPS   float64 `mapstructure:"rps"`
		Burst int     `mapstructure:"burst"`
	} `mapstructure:"ratelimit"`
}

// Default returns the configuration used for every key the file and the
// environment leave out.
func Default() Config {
	var c Config
	c.Server.Port = "8080"
	c.Log.Level = "info"
	c.Redis.TTL = "30m"
	c.Redis.Prefix = "trivia"
	c.OpenTDB.BaseURL = "https://opentdb.com"
	c.OpenTDB.Timeout = "10s"
	c.Categories.Source = SourceOpenTDB
	c.Categories.TTL = "1h"

	p := game.DefaultPolicy()
	c.Game.MinNameLength = p.MinNameLength
	c.Game.MaxNameLength = p.MaxNameLength
	c.Game.MinRounds = p.MinRounds
	c.Game.MaxRounds = p.MaxRounds
	c.Game.MinQuestions = p.MinQuestions
	c.Game.MaxQuestions = p.MaxQuestions
	c.Game.RandomMinID = p.RandomMinID
	c.Game.RandomMaxID = p.RandomMaxID
	c.Game.Timeouts.Easy = "90s"
	c.Game.Timeouts.Medium = "60s"
	c.Game.Timeouts.Hard = "30s"
	c.Game.TickInterval = "1s"
	c.Game.SessionIdleTTL = "30m"
	c.Game.SweepInterval = "1m"

	c.RateLimit.RPS = 10
	c.RateLimit.Burst = 20
	return c
}

// Load reads the YAML file at path over the defaults, then applies TRIVIA_*
// environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	m := make(map[string]any)
	if err := mapstructure.Decode(cfg, &m); err != nil {
		return cfg, fmt.Errorf("mapstructure: %v", err)
	}
	if err := v.MergeConfigMap(m); err != nil {
		return cfg, fmt.Errorf("merge config map: %v", err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return cfg, fmt.Errorf("read config from file %s: %v", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("stat config %s: %v", path, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %v", err)
	}
	return cfg, nil
}

// Policy builds the game policy from the game section.
func (c Config) Policy() (game.Policy, error) {
	def := game.DefaultPolicy()
	p := game.Policy{
		MinNameLength: c.Game.MinNameLength,
		MaxNameLength: c.Game.MaxNameLength,
		MinRounds:     c.Game.MinRounds,
		MaxRounds:     c.Game.MaxRounds,
		MinQuestions:  c.Game.MinQuestions,
		MaxQuestions:  c.Game.MaxQuestions,
		RandomMinID:   c.Game.RandomMinID,
		RandomMaxID:   c.Game.RandomMaxID,
		Timeouts: map[domain.Difficulty]time.Duration{
			domain.DifficultyEasy:   TTLDuration(c.Game.Timeouts.Easy, def.Timeouts[domain.DifficultyEasy]),
			domain.DifficultyMedium: TTLDuration(c.Game.Timeouts.Medium, def.Timeouts[domain.DifficultyMedium]),
			domain.DifficultyHard:   TTLDuration(c.Game.Timeouts.Hard, def.Timeouts[domain.DifficultyHard]),
		},
	}
	if err := p.Validate(); err != nil {
		return game.Policy{}, err
	}
	return p, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
