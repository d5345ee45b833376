package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Dosada05/pong-arena/game"
	"github.com/joho/godotenv"
)

// Config holds every setting of the process.
type Config struct {
	ServerPort         int
	LogLevel           slog.Level
	JWTSecretKey       string
	CORSAllowedOrigins []string

	DatabaseURL string
	RedisURL    string
	R2          R2Config

	Match      MatchConfig
	Tournament TournamentConfig
	Game       game.Settings
}

// MatchConfig holds the timing rules of a match session.
type MatchConfig struct {
	TickRate         int
	ScoreLimit       int
	ConnectTimeout   time.Duration
	ReconnectTimeout time.Duration
	StartTimer       int // seconds of countdown before play starts
	MaxReconnections int
}

type TournamentConfig struct {
	MatchDelay time.Duration
	MaxRounds  int
	MinPlayers int
	MaxPlayers int
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicBaseURL   string
}

// Enabled reports whether the archive credentials are present.
func (c R2Config) Enabled() bool {
	return c.AccountID != "" && c.AccessKeyID != "" && c.SecretAccessKey != "" && c.BucketName != ""
}

func DefaultMatchConfig() MatchConfig {
	return MatchConfig{
		TickRate:         60,
		ScoreLimit:       5,
		ConnectTimeout:   30 * time.Second,
		ReconnectTimeout: 15 * time.Second,
		StartTimer:       3,
		MaxReconnections: 3,
	}
}

func DefaultTournamentConfig() TournamentConfig {
	return TournamentConfig{
		MatchDelay: 5 * time.Second,
		MaxRounds:  8,
		MinPlayers: 2,
		MaxPlayers: 16,
	}
}

func (c MatchConfig) Validate() error {
	switch {
	case c.TickRate <= 0:
		return fmt.Errorf("TICK_RATE must be positive, got %d", c.TickRate)
	case c.ScoreLimit <= 0:
		return fmt.Errorf("SCORE_LIMIT must be positive, got %d", c.ScoreLimit)
	case c.ConnectTimeout <= 0 || c.ReconnectTimeout <= 0:
		return errors.New("MATCH_CONNECT_TIMEOUT and RECONNECT_TIMEOUT must be positive")
	case c.StartTimer < 0:
		return fmt.Errorf("MATCH_START_TIMER must not be negative, got %d", c.StartTimer)
	case c.MaxReconnections <= 0:
		return fmt.Errorf("MAX_RECONNECTIONS must be positive, got %d", c.MaxReconnections)
	}
	return nil
}

func (c TournamentConfig) Validate() error {
	switch {
	case c.MatchDelay < 0:
		return errors.New("TOURNAMENT_MATCH_DELAY must not be negative")
	case c.MaxRounds <= 0:
		return fmt.Errorf("TOURNAMENT_MAX_ROUNDS must be positive, got %d", c.MaxRounds)
	case c.MinPlayers < 2 || c.MaxPlayers < c.MinPlayers:
		return fmt.Errorf("invalid tournament player bounds %d..%d", c.MinPlayers, c.MaxPlayers)
	}
	return nil
}

// Load reads the configuration from the environment, loading a .env file first when present.
func Load() (*Config, error) {
	// A missing .env file is fine: production passes real environment variables.
	_ = godotenv.Load()

	jwtKey := os.Getenv("JWT_SECRET_KEY")
	if jwtKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}

	l := &loader{}
	cfg := &Config{
		ServerPort:         l.int("SERVER_PORT", 8080),
		JWTSecretKey:       jwtKey,
		CORSAllowedOrigins: splitList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "*")),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           os.Getenv("REDIS_URL"),
		R2: R2Config{
			AccountID:       os.Getenv("R2_ACCOUNT_ID"),
			AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
			BucketName:      os.Getenv("R2_BUCKET_NAME"),
			PublicBaseURL:   os.Getenv("R2_PUBLIC_BASE_URL"),
		},
	}

	match := DefaultMatchConfig()
	cfg.Match = MatchConfig{
		TickRate:         l.int("TICK_RATE", match.TickRate),
		ScoreLimit:       l.int("SCORE_LIMIT", match.ScoreLimit),
		ConnectTimeout:   l.duration("MATCH_CONNECT_TIMEOUT", match.ConnectTimeout),
		ReconnectTimeout: l.duration("RECONNECT_TIMEOUT", match.ReconnectTimeout),
		StartTimer:       l.int("MATCH_START_TIMER", match.StartTimer),
		MaxReconnections: l.int("MAX_RECONNECTIONS", match.MaxReconnections),
	}

	tournament := DefaultTournamentConfig()
	cfg.Tournament = TournamentConfig{
		MatchDelay: l.duration("TOURNAMENT_MATCH_DELAY", tournament.MatchDelay),
		MaxRounds:  l.int("TOURNAMENT_MAX_ROUNDS", tournament.MaxRounds),
		MinPlayers: l.int("TOURNAMENT_MIN_PLAYERS", tournament.MinPlayers),
		MaxPlayers: l.int("TOURNAMENT_MAX_PLAYERS", tournament.MaxPlayers),
	}

	world := game.DefaultSettings()
	cfg.Game = game.Settings{
		TickRate:      cfg.Match.TickRate,
		WorldWidth:    l.float("WORLD_WIDTH", world.WorldWidth),
		WorldHeight:   l.float("WORLD_HEIGHT", world.WorldHeight),
		PaddleWidth:   l.float("PADDLE_WIDTH", world.PaddleWidth),
		PaddleHeight:  l.float("PADDLE_HEIGHT", world.PaddleHeight),
		PaddleSpeed:   l.float("PADDLE_SPEED", world.PaddleSpeed),
		PaddleOffset:  l.float("PADDLE_OFFSET", world.PaddleOffset),
		BallSize:      l.float("BALL_SIZE", world.BallSize),
		BallSpeed:     l.float("BALL_SPEED", world.BallSpeed),
		BallDirection: world.BallDirection,
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(getEnvOrDefault("LOG_LEVEL", "info"))); err != nil {
		l.errs = append(l.errs, fmt.Errorf("invalid LOG_LEVEL: %w", err))
	}
	if l.err() != nil {
		return nil, l.err()
	}

	if cfg.ServerPort <= 0 || cfg.ServerPort > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", cfg.ServerPort)
	}
	if err := cfg.Match.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Tournament.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Game.Validate(); err != nil {
		return nil, fmt.Errorf("invalid world settings: %w", err)
	}

	return cfg, nil
}

// loader collects parse errors so every malformed variable is reported at once.
type loader struct {
	errs []error
}

func (l *loader) err() error {
	return errors.Join(l.errs...)
}

func (l *loader) int(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("invalid %s environment variable: %w", key, err))
		return def
	}
	return v
}

func (l *loader) float(key string, def float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("invalid %s environment variable: %w", key, err))
		return def
	}
	return v
}

func (l *loader) duration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("invalid %s environment variable: %w", key, err))
		return def
	}
	return v
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
