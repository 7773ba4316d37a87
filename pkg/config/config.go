// Package config loads and merges board/project configuration.
//
// A projects root holds one directory per board, each with exactly one
// ini file whose sections are project names. Projects inherit from a parent
// project named by stripping the last "-" suffix: the parent's keys form the
// base, the child's keys override, and PROJECT_PO_CONFIG concatenates
// (parent bundles first, then child bundles).
package config

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/pobuild/pob/pkg/errors"
	"github.com/pobuild/pob/pkg/logging"
)

// KeyPOConfig is the bundle directive key of a project section.
const KeyPOConfig = "PROJECT_PO_CONFIG"

// Keys of the per-bundle copy sections in common/common.ini.
const (
	// KeyPODir names the bundle subdirectory holding copy sources.
	KeyPODir = "PROJECT_PO_DIR"
	// KeyPOFileCopy holds the copy rules: backslash-separated
	// "source:target" pairs, sources relative to the copy directory.
	KeyPOFileCopy = "PROJECT_PO_FILE_COPY"
)

// copySectionPrefix marks common.ini sections carrying per-bundle copy
// rules: [po-<bundle>].
const copySectionPrefix = "po-"

// Directories under the projects root that never hold boards.
var excludeDirs = map[string]bool{
	"scripts":  true,
	"common":   true,
	"template": true,
	".cache":   true,
	".git":     true,
}

// Project is the fully merged configuration of one build target.
type Project struct {
	Name      string
	BoardName string
	BoardPath string
	IniFile   string
	Parent    string
	Children  []string
	Values    map[string]string
}

// Get returns a configuration value, or "" when unset.
func (p *Project) Get(key string) string {
	return p.Values[key]
}

// POConfig returns the raw bundle directive string.
func (p *Project) POConfig() string {
	return strings.TrimSpace(p.Values[KeyPOConfig])
}

// Platform returns the project's platform name, or "" when none.
func (p *Project) Platform() string {
	return p.Values["PROJECT_PLATFORM"]
}

// PODir returns the bundle directory of the project's board.
func (p *Project) PODir() string {
	return filepath.Join(p.BoardPath, "po")
}

// CopySpec is a bundle's custom file-copy configuration from a
// [po-<bundle>] section of common.ini.
type CopySpec struct {
	// Dir is the bundle subdirectory holding the copy sources. Empty means
	// the conventional "custom" directory.
	Dir string
	// FileCopy is the raw rule string from KeyPOFileCopy.
	FileCopy string
}

// Store holds every project resolved from a projects root.
type Store struct {
	ProjectsRoot string
	Projects     map[string]*Project
	CopySpecs    map[string]CopySpec
}

// Project resolves a project by name.
func (s *Store) Project(name string) (*Project, error) {
	p, ok := s.Projects[name]
	if !ok {
		return nil, errors.Newf(errors.ErrProjectNotFound, "project '%s' not found under %s", name, s.ProjectsRoot)
	}
	return p, nil
}

// Names returns all project names in sorted order.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.Projects))
	for name := range s.Projects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CopySpec returns the custom copy configuration of a bundle, if any.
func (s *Store) CopySpec(bundle string) (CopySpec, bool) {
	spec, ok := s.CopySpecs[bundle]
	return spec, ok
}

// IniFiles returns the set of board ini files backing the store, sorted.
func (s *Store) IniFiles() []string {
	seen := make(map[string]bool)
	for _, p := range s.Projects {
		seen[p.IniFile] = true
	}
	files := make([]string, 0, len(seen))
	for f := range seen {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// Load scans every board directory under projectsRoot and builds the merged
// project map. Boards with zero or multiple ini files, and files with
// duplicate keys, are excluded with an error logged; the load itself only
// fails when the root cannot be read.
func Load(projectsRoot string) (*Store, error) {
	logger := logging.GetLogger("config")
	store := &Store{
		ProjectsRoot: projectsRoot,
		Projects:     make(map[string]*Project),
		CopySpecs:    make(map[string]CopySpec),
	}

	entries, err := os.ReadDir(projectsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn().Str("path", projectsRoot).Msg("Projects root does not exist")
			return store, nil
		}
		return nil, errors.Wrapf(err, errors.ErrConfigLoad, "failed to read projects root %s", projectsRoot)
	}

	common, copySpecs := loadCommon(projectsRoot)
	store.CopySpecs = copySpecs

	type rawProject struct {
		values    map[string]string
		boardName string
		boardPath string
		iniFile   string
	}
	raw := make(map[string]*rawProject)

	for _, entry := range entries {
		if !entry.IsDir() || excludeDirs[entry.Name()] {
			continue
		}
		boardName := entry.Name()
		boardPath := filepath.Join(projectsRoot, boardName)

		iniFiles, err := filepath.Glob(filepath.Join(boardPath, "*.ini"))
		if err != nil || len(iniFiles) == 0 {
			logger.Warn().Str("board", boardName).Msg("No ini file found in board directory")
			continue
		}
		if len(iniFiles) > 1 {
			logger.Error().Str("board", boardName).Strs("files", iniFiles).
				Msg("Multiple ini files in board directory, board excluded")
			continue
		}
		iniFile := iniFiles[0]

		if hasDuplicateKeys(iniFile) {
			continue
		}

		file, err := ini.Load(iniFile)
		if err != nil {
			logger.Error().Err(err).Str("file", iniFile).Msg("Failed to parse ini file")
			continue
		}
		for _, section := range file.Sections() {
			if section.Name() == ini.DefaultSection {
				continue
			}
			values := make(map[string]string)
			for _, key := range section.Keys() {
				values[strings.ToUpper(key.Name())] = stripInlineComment(key.Value())
			}
			if prev, ok := raw[section.Name()]; ok {
				logger.Warn().Str("project", section.Name()).
					Str("first", prev.iniFile).Str("second", iniFile).
					Msg("Project defined in multiple boards, keeping the later definition")
			}
			raw[section.Name()] = &rawProject{
				values:    values,
				boardName: boardName,
				boardPath: boardPath,
				iniFile:   iniFile,
			}
		}
	}

	// Merge with memoized recursion so parents resolve before children.
	merged := make(map[string]map[string]string)
	var merge func(name string) map[string]string
	merge = func(name string) map[string]string {
		if m, ok := merged[name]; ok {
			return m
		}
		m := make(map[string]string)
		for k, v := range common {
			m[k] = v
		}
		if parent := parentName(name); parent != "" {
			if _, ok := raw[parent]; ok {
				for k, v := range merge(parent) {
					m[k] = v
				}
			}
		}
		for k, v := range raw[name].values {
			if k == KeyPOConfig && m[k] != "" {
				m[k] = strings.TrimSpace(m[k]) + " " + strings.TrimSpace(v)
			} else {
				m[k] = v
			}
		}
		merged[name] = m
		return m
	}

	for name, rp := range raw {
		store.Projects[name] = &Project{
			Name:      name,
			BoardName: rp.boardName,
			BoardPath: rp.boardPath,
			IniFile:   rp.iniFile,
			Parent:    parentName(name),
			Values:    merge(name),
		}
	}
	for name, p := range store.Projects {
		if p.Parent != "" {
			if parent, ok := store.Projects[p.Parent]; ok {
				parent.Children = append(parent.Children, name)
			}
		}
	}
	for _, p := range store.Projects {
		sort.Strings(p.Children)
	}

	logger.Debug().Int("projects", len(store.Projects)).Str("root", projectsRoot).Msg("Projects loaded")
	return store, nil
}

// parentName derives the inheritance parent: everything before the last "-".
func parentName(project string) string {
	if i := strings.LastIndex(project, "-"); i > 0 {
		return project[:i]
	}
	return ""
}

// loadCommon reads common/common.ini: the [common] section becomes the
// lowest precedence layer for every project, and every [po-<bundle>]
// section becomes that bundle's custom copy configuration. Missing file is
// fine.
func loadCommon(projectsRoot string) (map[string]string, map[string]CopySpec) {
	logger := logging.GetLogger("config")
	values := make(map[string]string)
	copySpecs := make(map[string]CopySpec)
	path := filepath.Join(projectsRoot, "common", "common.ini")
	file, err := ini.Load(path)
	if err != nil {
		return values, copySpecs
	}

	section := file.Section("common")
	if len(section.Keys()) == 0 {
		logger.Warn().Str("file", path).Msg("[common] section missing or empty")
	}
	for _, key := range section.Keys() {
		values[strings.ToUpper(key.Name())] = stripInlineComment(key.Value())
	}

	for _, s := range file.Sections() {
		if !strings.HasPrefix(s.Name(), copySectionPrefix) {
			continue
		}
		bundle := strings.TrimPrefix(s.Name(), copySectionPrefix)
		spec := CopySpec{}
		for _, key := range s.Keys() {
			switch strings.ToUpper(key.Name()) {
			case KeyPODir:
				spec.Dir = strings.TrimRight(stripInlineComment(key.Value()), "/")
			case KeyPOFileCopy:
				spec.FileCopy = stripInlineComment(key.Value())
			}
		}
		copySpecs[bundle] = spec
		logger.Debug().Str("bundle", bundle).Str("dir", spec.Dir).Msg("Copy section loaded")
	}
	return values, copySpecs
}

// hasDuplicateKeys pre-scans an ini file line by line. Duplicate keys within
// one section are a hard error for that file only. The ini parser would
// silently take the last value, so the scan runs before parsing.
func hasDuplicateKeys(path string) bool {
	logger := logging.GetLogger("config")
	f, err := os.Open(path)
	if err != nil {
		logger.Error().Err(err).Str("file", path).Msg("Failed to open ini file")
		return true
	}
	defer func() { _ = f.Close() }()

	duplicate := false
	section := ""
	keys := make(map[string]bool)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.TrimSpace(line[1 : len(line)-1])
			keys = make(map[string]bool)
			continue
		}
		if eq := strings.Index(line, "="); eq > 0 && section != "" {
			key := strings.TrimSpace(line[:eq])
			if keys[key] {
				logger.Error().Str("key", key).Str("section", section).Str("file", path).
					Msg("Duplicate key in project section, file excluded")
				duplicate = true
			}
			keys[key] = true
		}
	}
	return duplicate
}

// stripInlineComment removes trailing "#" or ";" comments from a value.
func stripInlineComment(value string) string {
	if i := strings.IndexAny(value, "#;"); i >= 0 {
		value = value[:i]
	}
	return strings.TrimSpace(value)
}
