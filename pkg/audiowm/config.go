package audiowm

import "github.com/himanishpuri/audiowm/internal/params"

type Config struct {
	DBPath      string
	WorkerCount int
	Params      params.Params
	Logger      Logger
	Storage     Storage
}

type Option func(*Config)

func WithDBPath(path string) Option {
	return func(c *Config) { c.DBPath = path }
}

func WithWorkerCount(n int) Option {
	return func(c *Config) { c.WorkerCount = n }
}

func WithParams(p params.Params) Option {
	return func(c *Config) { c.Params = p }
}

func WithLogger(log Logger) Option {
	return func(c *Config) { c.Logger = log }
}

func WithStorage(storage Storage) Option {
	return func(c *Config) { c.Storage = storage }
}

func defaultConfig() *Config {
	return &Config{
		DBPath:      "audiowm.sqlite3",
		WorkerCount: 0,
		Params:      params.Default(),
	}
}
