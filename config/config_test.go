package config_test

import (
	"testing"
	"time"

	"github.com/Dosada05/pong-arena/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "secret")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, config.DefaultMatchConfig(), cfg.Match)
	assert.Equal(t, config.DefaultTournamentConfig(), cfg.Tournament)
	assert.Equal(t, 60, cfg.Game.TickRate)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.False(t, cfg.R2.Enabled())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "secret")
	t.Setenv("TICK_RATE", "30")
	t.Setenv("SCORE_LIMIT", "11")
	t.Setenv("RECONNECT_TIMEOUT", "2s")
	t.Setenv("PADDLE_SPEED", "4.5")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.Match.TickRate)
	assert.Equal(t, 30, cfg.Game.TickRate, "world tick rate follows the match tick rate")
	assert.Equal(t, 11, cfg.Match.ScoreLimit)
	assert.Equal(t, 2*time.Second, cfg.Match.ReconnectTimeout)
	assert.Equal(t, 4.5, cfg.Game.PaddleSpeed)
	assert.Equal(t, "DEBUG", cfg.LogLevel.String())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing jwt key", env: map[string]string{"JWT_SECRET_KEY": ""}},
		{name: "bad port", env: map[string]string{"SERVER_PORT": "70000"}},
		{name: "malformed duration", env: map[string]string{"MATCH_CONNECT_TIMEOUT": "soon"}},
		{name: "malformed int", env: map[string]string{"SCORE_LIMIT": "five"}},
		{name: "zero reconnections", env: map[string]string{"MAX_RECONNECTIONS": "0"}},
		{name: "bad player bounds", env: map[string]string{"TOURNAMENT_MIN_PLAYERS": "1"}},
		{name: "unknown log level", env: map[string]string{"LOG_LEVEL": "loud"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET_KEY", "secret")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := config.Load()
			assert.Error(t, err)
			assert.Nil(t, cfg)
		})
	}
}
