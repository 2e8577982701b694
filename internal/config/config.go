// Package config provides centralized configuration management.
// This is the single source of truth for all server and game settings.
//
// Values come from environment variables with sane defaults; cmd/server
// loads a .env file before calling Load.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// GameConfig holds per-room simulation settings.
type GameConfig struct {
	MaxPlayers        int           // Maximum players per room
	MaxBots           int           // Recognised but unwired (no bot implementation)
	PhysicsResolution int           // Sub-steps per unit of velocity; small values cause inconsistent collisions
	ConnectTimeout    time.Duration // Lifetime of an unused join auth code
	TickRate          int           // Global ticks per second
	ChunkSize         int           // Broad-phase chunk size in tiles
}

// DefaultGame returns the default game configuration.
func DefaultGame() GameConfig {
	return GameConfig{
		MaxPlayers:        8,
		MaxBots:           2,
		PhysicsResolution: 64,
		ConnectTimeout:    10 * time.Second,
		TickRate:          40,
		ChunkSize:         8,
	}
}

// GameFromEnv returns game configuration with environment variable overrides.
func GameFromEnv() GameConfig {
	cfg := DefaultGame()

	if v := getEnvInt("GAME_MAX_PLAYERS", 0); v > 0 {
		cfg.MaxPlayers = v
	}
	if v := getEnvInt("GAME_MAX_BOTS", -1); v >= 0 {
		cfg.MaxBots = v
	}
	if v := getEnvInt("GAME_PHYSICS_RESOLUTION", 0); v > 0 {
		cfg.PhysicsResolution = v
	}
	if v := getEnvInt("GAME_CONNECT_TIMEOUT", 0); v > 0 {
		cfg.ConnectTimeout = time.Duration(v) * time.Second
	}
	if v := getEnvInt("GAME_TICK_RATE", 0); v > 0 {
		cfg.TickRate = v
	}

	// A resolution below 1 breaks the sub-stepping contract
	if cfg.PhysicsResolution < 1 {
		cfg.PhysicsResolution = 1
	}

	return cfg
}

// ChatConfig holds chat spam and profanity settings.
type ChatConfig struct {
	MinMillisPerMessage int      // Minimum gap between messages from one player
	SpamGraceCount      int      // Messages allowed under the gap before throttling
	MaxSpamPerMinute    int      // Hard per-minute cap per player
	BannedWords         []string // Censored substrings, case-insensitive
}

// DefaultChat returns the default chat configuration.
func DefaultChat() ChatConfig {
	return ChatConfig{
		MinMillisPerMessage: 500,
		SpamGraceCount:      3,
		MaxSpamPerMinute:    30,
	}
}

// ChatFromEnv returns chat configuration with environment variable overrides.
func ChatFromEnv() ChatConfig {
	cfg := DefaultChat()

	if v := getEnvInt("CHAT_MIN_MILLIS_PER_MESSAGE", 0); v > 0 {
		cfg.MinMillisPerMessage = v
	}
	if v := getEnvInt("CHAT_SPAM_GRACE_COUNT", -1); v >= 0 {
		cfg.SpamGraceCount = v
	}
	if v := getEnvInt("CHAT_MAX_SPAM_PER_MINUTE", 0); v > 0 {
		cfg.MaxSpamPerMinute = v
	}
	if v := os.Getenv("CHAT_BANNED_WORD_LIST"); v != "" {
		for _, w := range strings.Split(v, ",") {
			if w = strings.TrimSpace(w); w != "" {
				cfg.BannedWords = append(cfg.BannedWords, w)
			}
		}
	}

	return cfg
}

// ServerConfig holds hub HTTP server settings.
type ServerConfig struct {
	Port      int
	MapsDir   string // Directory holding the tileset and map JSON files
	DebugMode bool
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:    3000,
		MapsDir: "maps",
	}
}

// ServerFromEnv returns server configuration with environment variable overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	if d := os.Getenv("MAPS_DIR"); d != "" {
		cfg.MapsDir = d
	}
	cfg.DebugMode = os.Getenv("DEBUG_MODE") == "true"

	return cfg
}

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Game   GameConfig
	Chat   ChatConfig
	Server ServerConfig
}

// Load returns the complete configuration with environment overrides.
func Load() AppConfig {
	return AppConfig{
		Game:   GameFromEnv(),
		Chat:   ChatFromEnv(),
		Server: ServerFromEnv(),
	}
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
