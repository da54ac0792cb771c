package app

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ringbridge/ringbridge/pkg/shell"
	"github.com/ringbridge/ringbridge/pkg/yaml"
)

var ConfigPath string

func LoadConfig(v any) {
	for _, data := range configs {
		if err := yaml.Unmarshal(data, v); err != nil {
			Logger.Warn().Err(err).Msg("[app] read config")
		}
	}
}

var patchMu sync.Mutex

// PatchConfig changes one value in the main config file, path is dot separated
func PatchConfig(path string, value any) error {
	if ConfigPath == "" {
		return errors.New("config file disabled")
	}

	patchMu.Lock()
	defer patchMu.Unlock()

	// a missing file is created with the single value
	b, _ := os.ReadFile(ConfigPath)

	b, err := yaml.Patch(b, path, value)
	if err != nil {
		return err
	}

	return os.WriteFile(ConfigPath, b, 0644)
}

type flagConfig []string

func (c *flagConfig) String() string {
	return strings.Join(*c, " ")
}

func (c *flagConfig) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var configs [][]byte

func initConfig(confs flagConfig) {
	if confs == nil {
		confs = []string{"ringbridge.yaml"}
	}

	for _, conf := range confs {
		switch {
		case conf == "":
		case conf[0] == '{':
			configs = append(configs, []byte(conf))
		case parseConfString(conf) != nil:
			configs = append(configs, parseConfString(conf))
		default:
			// the first file receives PatchConfig writes
			if ConfigPath == "" {
				ConfigPath = absPath(conf)
			}
			if data, err := os.ReadFile(conf); err == nil {
				configs = append(configs, []byte(shell.ReplaceEnvVars(string(data))))
			}
		}
	}

	if ConfigPath != "" {
		Info["config_path"] = ConfigPath
	}
}

func absPath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if cwd, err := os.Getwd(); err == nil {
		return filepath.Join(cwd, path)
	}
	return path
}

// parseConfString converts `log.level=trace` to `{log: {level: trace}}`
func parseConfString(s string) []byte {
	key, value, ok := strings.Cut(s, "=")
	if !ok {
		return nil
	}

	items := strings.Split(key, ".")
	if len(items) < 2 {
		return nil
	}

	var pre, suf string
	for _, item := range items {
		pre += "{" + item + ": "
		suf += "}"
	}

	return []byte(pre + value + suf)
}
