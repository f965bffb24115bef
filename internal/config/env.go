package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// EnvPrefix starts every override variable, e.g. LSINDEXER_MYSITE_PASSWORD.
const EnvPrefix = "LSINDEXER"

// LoadDotEnv loads the given .env files into the process environment,
// skipping files that do not exist. Variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env.local", ".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// EnvKey builds the override variable name for an indexer field.
func EnvKey(id, field string) string {
	slug := strings.ToUpper(strings.ReplaceAll(Slug(id), "-", "_"))
	return EnvPrefix + "_" + slug + "_" + strings.ToUpper(field)
}

// ApplyEnv overrides credentials and cookies from the environment and
// reports which indexers changed. LSINDEXER_QBITTORRENT_PASSWORD sets the
// download client password.
func ApplyEnv(cfg *Config) []string {
	var changed []string
	for i := range cfg.Indexers {
		ic := &cfg.Indexers[i]
		touched := false
		for field, dst := range map[string]*string{
			"USERNAME": &ic.Username,
			"PASSWORD": &ic.Password,
			"COOKIE":   &ic.Cookie,
		} {
			if val, ok := os.LookupEnv(EnvKey(ic.ID, field)); ok {
				*dst = val
				touched = true
			}
		}
		if touched {
			changed = append(changed, ic.ID)
		}
	}
	if val, ok := os.LookupEnv(EnvPrefix + "_QBITTORRENT_PASSWORD"); ok {
		cfg.Client.Password = val
	}
	return changed
}

// StripEnv undoes ApplyEnv on one entry before it is saved: fields still
// holding their override value get the stored value back.
func StripEnv(ic, stored IndexerConfig) IndexerConfig {
	for field, pair := range map[string][2]*string{
		"USERNAME": {&ic.Username, &stored.Username},
		"PASSWORD": {&ic.Password, &stored.Password},
		"COOKIE":   {&ic.Cookie, &stored.Cookie},
	} {
		if val, ok := os.LookupEnv(EnvKey(ic.ID, field)); ok && *pair[0] == val {
			*pair[0] = *pair[1]
		}
	}
	return ic
}
