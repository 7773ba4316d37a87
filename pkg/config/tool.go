package config

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/pobuild/pob/pkg/errors"
)

// ToolFileName is the optional tool-level configuration file at the
// projects root. Board/project data stays in ini files; this file only
// tunes the tool itself.
const ToolFileName = ".pob.toml"

// Tool is the tool-level configuration.
type Tool struct {
	// DefaultPlatform applies to projects without a PROJECT_PLATFORM.
	DefaultPlatform string `toml:"default_platform"`
	// StopOnError turns soft hook failures into hard ones.
	StopOnError bool `toml:"stop_on_error"`
	// Ignore adds capture ignore patterns on top of PROJECT_PO_IGNORE.
	Ignore []string `toml:"ignore"`
}

// LoadTool reads the projects root's .pob.toml. A missing file yields the
// zero Tool; a malformed one is an error.
func LoadTool(projectsRoot string) (Tool, error) {
	var tool Tool
	path := filepath.Join(projectsRoot, ToolFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return tool, nil
		}
		return tool, errors.Wrapf(err, errors.ErrConfigLoad, "failed to read %s", path)
	}
	if err := toml.Unmarshal(data, &tool); err != nil {
		return tool, errors.Wrapf(err, errors.ErrConfigParse, "failed to parse %s", path)
	}
	return tool, nil
}
