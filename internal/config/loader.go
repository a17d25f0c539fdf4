package config

import (
	"errors"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var defaultEnvLoaded sync.Once

// LoadEnv applies the given dotenv files without overriding variables that
// are already set. Earlier files take precedence over later ones.
func LoadEnv(paths ...string) error {
	return godotenv.Load(paths...)
}

// parse fills a T from the environment after applying ./.env once.
func parse[T any]() (T, error) {
	defaultEnvLoaded.Do(func() {
		// A missing .env is the normal case outside development.
		_ = godotenv.Load()
	})

	var v T
	if err := env.Parse(&v); err != nil {
		return v, errors.Join(ErrParsingConfig, err)
	}
	return v, nil
}
