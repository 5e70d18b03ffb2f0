// Package auth gates the dashboard behind a username/password login and a
// signed session cookie.
package auth

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v2"
)

// User is one entry under credentials.usernames.
type User struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"` // bcrypt hash
}

type CookieConfig struct {
	Name       string  `yaml:"name"`
	Key        string  `yaml:"key"`
	ExpiryDays float64 `yaml:"expiry_days"`
}

// Credentials mirrors the credentials YAML file.
type Credentials struct {
	Credentials struct {
		Usernames map[string]User `yaml:"usernames"`
	} `yaml:"credentials"`
	Cookie        CookieConfig `yaml:"cookie"`
	// Preauthorized lists who may self-register. There is no registration
	// page; the section is read so existing credentials files still load.
	Preauthorized struct {
		Emails []string `yaml:"emails"`
	} `yaml:"preauthorized"`
}

// LoadCredentials reads and validates a credentials file.
func LoadCredentials(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	var c Credentials
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse credentials %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("credentials %s: %w", path, err)
	}
	return &c, nil
}

func (c *Credentials) Validate() error {
	if c.Cookie.Name == "" {
		return errors.New("cookie.name is required")
	}
	if len(c.Cookie.Key) < 16 {
		return errors.New("cookie.key must be at least 16 characters")
	}
	if c.Cookie.ExpiryDays <= 0 {
		return errors.New("cookie.expiry_days must be positive")
	}
	if len(c.Credentials.Usernames) == 0 {
		return errors.New("no users defined")
	}
	for name, u := range c.Credentials.Usernames {
		if _, err := bcrypt.Cost([]byte(u.Password)); err != nil {
			return fmt.Errorf("user %s: password is not a bcrypt hash: %w", name, err)
		}
	}
	return nil
}

// Expiry is the session lifetime.
func (c CookieConfig) Expiry() time.Duration {
	return time.Duration(c.ExpiryDays * float64(24*time.Hour))
}
