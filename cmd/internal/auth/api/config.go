package authapi

import "taskman/cmd/identity"

// Request handling defaults.
const (
	DefaultMaxBodyBytes = 1 << 20 // 1 MiB
	DefaultUsernameMin  = 4
	DefaultUsernameMax  = 20
)

// Config controls auth API request handling. Zero values take defaults.
type Config struct {
	MaxBodyBytes int64

	// Username length bounds applied to signup requests.
	UsernameMin int
	UsernameMax int
}

func (c Config) normalized() Config {
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.UsernameMin <= 0 {
		c.UsernameMin = DefaultUsernameMin
	}
	if c.UsernameMax <= 0 {
		c.UsernameMax = DefaultUsernameMax
	}
	c.UsernameMax = min(c.UsernameMax, identity.MaxUsernameChars)
	c.UsernameMin = min(c.UsernameMin, c.UsernameMax)
	return c
}
