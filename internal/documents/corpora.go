package documents

import (
	"fmt"
	"os"
	"path/filepath"

	yaml "gopkg.in/yaml.v3"
)

// CorporaConfig maps corpus names to directories. The optional YAML file has
// the shape:
//
//	corpora:
//	  food-safety: ./knowledge/food-safety
//	  contracts: /srv/corpora/contracts
type CorporaConfig struct {
	Corpora map[string]string `yaml:"corpora"`
}

// LoadCorporaConfig reads an explicit corpus mapping.
func LoadCorporaConfig(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corpora config: %w", err)
	}
	var cfg CorporaConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse corpora config: %w", err)
	}
	if len(cfg.Corpora) == 0 {
		return nil, fmt.Errorf("corpora config %s lists no corpora", path)
	}
	return cfg.Corpora, nil
}

// DiscoverCorpora derives the mapping from a knowledge root: one corpus per
// subdirectory; a root with loose files and no subdirectories becomes a
// single corpus named "default".
func DiscoverCorpora(root string) (map[string]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read knowledge path: %w", err)
	}
	out := map[string]string{}
	hasFiles := false
	for _, e := range entries {
		if e.IsDir() {
			out[e.Name()] = filepath.Join(root, e.Name())
		} else {
			hasFiles = true
		}
	}
	if len(out) == 0 && hasFiles {
		out["default"] = root
	}
	return out, nil
}
