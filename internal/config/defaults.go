package config

import (
	"os"
	"path/filepath"
)

// SupportedConfigFormats returns the list of supported config file formats.
func SupportedConfigFormats() []string {
	return []string{
		"toml",
		"json",
		"yaml",
		"yml",
	}
}

// FindConfigFile searches the config directory, then the current
// directory, for config.{toml,json,yaml,yml}. It returns "" when none
// exists.
func FindConfigFile() string {
	for _, dir := range []string{ConfigDir(), "."} {
		for _, ext := range SupportedConfigFormats() {
			path := filepath.Join(dir, "config."+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// EnvFilePath is the optional dotenv file read by the binary before the
// configuration.
func EnvFilePath() string {
	return filepath.Join(ConfigDir(), "bogoime.env")
}
