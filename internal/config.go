package internal

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Host              string        `env:"HOST,required=true"`
	Port              int           `env:"PORT,required=true"`
	LogLevel          string        `env:"LOG_LEVEL,required=true"`
	BadgerFilepath    string        `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath     string        `env:"BLUGE_FILEPATH,required=true"`
	JWTSecret         string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,required=true"`
	AllowedOrigins    string        `env:"ALLOWED_ORIGINS,default=*"`

	MaxFrameSize      int64         `env:"MAX_FRAME_SIZE,default=65536"`
	MaxContentLength  int           `env:"MAX_CONTENT_LENGTH,default=4096"`
	RateLimitBurst    int           `env:"RATE_LIMIT_BURST,default=20"`
	RateLimitInterval time.Duration `env:"RATE_LIMIT_INTERVAL,default=100ms"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT,default=10s"`
	PongTimeout       time.Duration `env:"PONG_TIMEOUT,default=60s"`
	AuthTimeout       time.Duration `env:"AUTH_TIMEOUT,default=10s"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`

	RestartInterval time.Duration `env:"RESTART_INTERVAL,required=true"`
	MetricInterval  time.Duration `env:"METRIC_INTERVAL,required=true"`
	LimitMessages   *int          `env:"LIMIT_MESSAGES"`

	EnableModeration bool   `env:"ENABLE_MODERATION,default=false"`
	CharReplacement  string `env:"CHARACTER_REPLACEMENT,default=*"`
}

// Addr is the listen address of the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Origins splits ALLOWED_ORIGINS. A lone "*" or an empty value allows any origin,
// which is reported as a nil slice.
func (c Config) Origins() []string {
	return ParseOrigins(c.AllowedOrigins)
}

func ParseOrigins(str string) []string {
	var origins []string
	for _, origin := range strings.Split(str, ",") {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			return nil
		}
		if origin != "" {
			origins = append(origins, strings.TrimSuffix(origin, "/"))
		}
	}
	return origins
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
