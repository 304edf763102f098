package store

import "github.com/link2pay/link2pay/apps/api/internal/config"

// Config selects the database. SQLite serves a single instance; replicas
// must share a PostgreSQL database.
type Config struct {
	Driver string
	DSN    string
}

func LoadConfig() Config {
	return Config{
		Driver: config.Getenv("DATABASE_DRIVER", DriverSQLite),
		DSN:    config.Getenv("DATABASE_URL", "link2pay.db"),
	}
}

// Open opens the configured database and applies the schema.
func (c Config) Open() (*Store, error) {
	return OpenDriver(c.Driver, c.DSN)
}
