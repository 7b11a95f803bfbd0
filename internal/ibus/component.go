package ibus

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Component is the IBus component description read by ibus-daemon from
// its component directory.
type Component struct {
	XMLName     xml.Name     `xml:"component"`
	Name        string       `xml:"name"`
	Description string       `xml:"description"`
	Exec        string       `xml:"exec"`
	Version     string       `xml:"version"`
	Author      string       `xml:"author"`
	License     string       `xml:"license"`
	Homepage    string       `xml:"homepage,omitempty"`
	Textdomain  string       `xml:"textdomain"`
	Engines     []EngineDesc `xml:"engines>engine"`
}

// EngineDesc describes one engine of a component.
type EngineDesc struct {
	Name        string `xml:"name"`
	Language    string `xml:"language"`
	License     string `xml:"license"`
	Author      string `xml:"author"`
	Icon        string `xml:"icon,omitempty"`
	Layout      string `xml:"layout"`
	LongName    string `xml:"longname"`
	Description string `xml:"description"`
	Rank        int    `xml:"rank"`
	Symbol      string `xml:"symbol"`
}

// NewComponent describes the engine served by the binary at exec.
func NewComponent(busName, engineName, exec, version string) Component {
	return Component{
		Name:        busName,
		Description: ComponentDescription,
		Exec:        exec + " --ibus",
		Version:     version,
		Author:      "bogoime",
		License:     "GPLv3",
		Textdomain:  "bogoime",
		Engines: []EngineDesc{{
			Name:        engineName,
			Language:    "vi",
			License:     "GPLv3",
			Author:      "bogoime",
			Layout:      "us",
			LongName:    "Bogo",
			Description: ComponentDescription,
			Rank:        99,
			Symbol:      "V",
		}},
	}
}

// DefaultComponentDir returns the per-user IBus component directory.
func DefaultComponentDir() string {
	data := os.Getenv("XDG_DATA_HOME")
	if data == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		data = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(data, "ibus", "component")
}

// Marshal renders c as an XML document.
func (c Component) Marshal() ([]byte, error) {
	out, err := xml.MarshalIndent(c, "", "    ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), append(out, '\n')...), nil
}

// Install writes c to dir and returns the file path.
func Install(dir string, c Component) (string, error) {
	if dir == "" {
		dir = DefaultComponentDir()
	}
	data, err := c.Marshal()
	if err != nil {
		return "", fmt.Errorf("render component: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create component dir: %w", err)
	}
	path := filepath.Join(dir, ComponentFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write component: %w", err)
	}
	return path, nil
}

// Uninstall removes the component file from dir. A missing file is not
// an error.
func Uninstall(dir string) (string, error) {
	if dir == "" {
		dir = DefaultComponentDir()
	}
	path := filepath.Join(dir, ComponentFile)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}
	return path, nil
}
