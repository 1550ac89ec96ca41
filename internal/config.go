package internal

import (
	"chat-relay/errors"
	"fmt"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Host            string        `env:"HOST,default=0.0.0.0" validate:"required"`
	Port            int           `env:"PORT,default=8880" validate:"gte=0,lte=65535"`
	LogLevel        string        `env:"LOG_LEVEL,default=INFO" validate:"oneof=DEBUG INFO WARN ERROR debug info warn error"`
	MailboxSize     int           `env:"MAILBOX_SIZE,default=128" validate:"gt=0"`
	MaxLineLength   int           `env:"MAX_LINE_LENGTH,default=65536" validate:"gte=64"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT,default=10s" validate:"gte=0"`
	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=200ms" validate:"gt=0"`
	StatsInterval   time.Duration `env:"STATS_INTERVAL,default=30s" validate:"gte=0"`
	DebugPort       *int          `env:"DEBUG_PORT" validate:"omitempty,gt=0,lte=65535"`
	CensoredDir     string        `env:"CENSORED_DIR" validate:"omitempty,dir"`
	CensorCharacter string        `env:"CENSOR_CHARACTER,default=*"`

	// CensorRune is CensorCharacter once checked by LoadConfig.
	CensorRune rune
}

var validate = validator.New()

// LoadConfig reads an optional .env file, then the environment, and validates the result.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err)
	}
	if err := validate.Struct(config); err != nil {
		return Config{}, fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err)
	}
	censorRune, err := CharacterRune(config.CensorCharacter)
	if err != nil {
		return Config{}, err
	}
	config.CensorRune = censorRune
	return config, nil
}

func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"%w: CENSOR_CHARACTER must be a single character, got %q",
			errors.ErrInvalidConfig, str,
		)
	}
	return r[0], nil
}
