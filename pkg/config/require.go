package config

import "fmt"

// Validate reports the first missing or invalid required setting. There is no
// default signing secret.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("missing required env DATABASE_URL")
	}
	if len(c.JWTSecret) == 0 {
		return fmt.Errorf("missing required env JWT_SECRET")
	}
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	return nil
}
