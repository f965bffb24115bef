package config

import (
	"fmt"
	"strings"

	"gopkg.in/ini.v1"
)

const iniSectionPrefix = "indexer."

// ImportINI reads [indexer.<id>] sections from a legacy INI export. Keys
// that are not indexer fields end up in Extra.
func ImportINI(path string) ([]IndexerConfig, error) {
	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	var out []IndexerConfig
	for _, sec := range file.Sections() {
		if !strings.HasPrefix(sec.Name(), iniSectionPrefix) {
			continue
		}
		id := strings.TrimPrefix(sec.Name(), iniSectionPrefix)
		if id == "" {
			continue
		}

		ic := IndexerConfig{
			ID:      id,
			Type:    TypeGeneric,
			Enabled: true,
		}
		for _, key := range sec.Keys() {
			if err := applyINIKey(&ic, key); err != nil {
				return nil, fmt.Errorf("section %s: %w", sec.Name(), err)
			}
		}
		out = append(out, ic)
	}
	return out, nil
}

func applyINIKey(ic *IndexerConfig, key *ini.Key) error {
	val := key.String()
	switch strings.ToLower(key.Name()) {
	case "name":
		ic.Name = val
	case "type":
		ic.Type = strings.ToLower(val)
	case "url":
		ic.URL = val
	case "enabled":
		b, err := key.Bool()
		if err != nil {
			return fmt.Errorf("enabled: %w", err)
		}
		ic.Enabled = b
	case "username":
		ic.Username = val
	case "password":
		ic.Password = val
	case "cookie":
		ic.Cookie = val
	case "retries":
		n, err := key.Int()
		if err != nil {
			return fmt.Errorf("retries: %w", err)
		}
		ic.RetryCount = &n
	case "request_delay":
		return ic.RequestDelay.UnmarshalText([]byte(val))
	case "query_timeout":
		return ic.QueryTimeout.UnmarshalText([]byte(val))
	case "definition":
		ic.Definition = val
	case "encoding":
		ic.Encoding = val
	default:
		if ic.Extra == nil {
			ic.Extra = make(map[string]string)
		}
		ic.Extra[key.Name()] = val
	}
	return nil
}

// Merge inserts or replaces indexers by id and returns the ids touched.
func (c *Config) Merge(indexers []IndexerConfig) []string {
	ids := make([]string, 0, len(indexers))
	for _, in := range indexers {
		replaced := false
		for i := range c.Indexers {
			if c.Indexers[i].ID == in.ID {
				c.Indexers[i] = in.Clone()
				replaced = true
				break
			}
		}
		if !replaced {
			c.Indexers = append(c.Indexers, in.Clone())
		}
		ids = append(ids, in.ID)
	}
	return ids
}
