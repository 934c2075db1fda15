package cli

import (
	"os"
	"time"
)

// Config holds CLI configuration
type Config struct {
	ServerURL string
	Output    string
	Name      string
	Timeout   time.Duration
	Verbose   bool
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		ServerURL: getEnvOrDefault("OSB_SERVER", "http://localhost:3000"),
		Output:    getEnvOrDefault("OSB_OUTPUT", "text"),
		Name:      os.Getenv("OSB_NAME"),
		Timeout:   10 * time.Second,
		Verbose:   false,
	}
}

// ClientData is the client document sent when creating or joining a board
func (c *Config) ClientData() map[string]any {
	data := map[string]any{}
	if c.Name != "" {
		data["name"] = c.Name
	}
	return data
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
