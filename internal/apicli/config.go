package apicli

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"
)

// EnvPrefix is prepended to every variable Config reads.
const EnvPrefix = "APICLI_"

// Config holds the runtime settings read from the environment.
type Config struct {
	APIToken    string        `env:"API_TOKEN"`
	APIURL      string        `env:"API_URL"`
	CommandTree string        `env:"COMMAND_TREE" envDefault:"command_tree.json"`
	AccountID   string        `env:"ACCOUNT_ID"`
	ZoneID      string        `env:"ZONE_ID"`
	UserAgent   string        `env:"USER_AGENT" envDefault:"apicli"`
	Timeout     time.Duration `env:"TIMEOUT" envDefault:"30s"`
}

// LoadConfig parses Config from the process environment.
func LoadConfig() (Config, error) {
	return loadConfig(env.Options{Prefix: EnvPrefix})
}

// LoadConfigFrom parses Config from the given variables instead of the
// process environment. Keys include the prefix.
func LoadConfigFrom(vars map[string]string) (Config, error) {
	return loadConfig(env.Options{Prefix: EnvPrefix, Environment: vars})
}

func loadConfig(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	return cfg, nil
}

// defaultForParam maps well-known identifier parameters to their configured
// default.
func (c Config) defaultForParam(name string) (string, bool) {
	var v string
	switch name {
	case "account_id", "account_identifier", "accountId":
		v = c.AccountID
	case "zone_id", "zone_identifier", "zoneId":
		v = c.ZoneID
	}
	return v, v != ""
}
