// Package pospec parses PROJECT_PO_CONFIG directive strings.
//
// The grammar is whitespace-separated tokens: "name" includes a bundle,
// "-name" excludes it entirely, and "-name[file_a,file_b]" excludes only the
// listed override files while the bundle itself stays active.
package pospec

import (
	"regexp"
	"strings"

	"github.com/pobuild/pob/pkg/logging"
)

var excludeFilesRe = regexp.MustCompile(`^-([a-zA-Z0-9_]+)\[([^\]]+)\]$`)
var bareNameRe = regexp.MustCompile(`^-?[a-zA-Z0-9_]+$`)

// Directive is a single parsed token of a PO configuration string.
type Directive struct {
	Name    string
	Exclude bool
	// Files scopes an exclusion to specific override paths within the
	// bundle. Empty for includes and for whole-bundle exclusions.
	Files []string
}

// Spec is the parsed form of a project's PO directive string.
type Spec struct {
	Directives []Directive
}

// Parse parses a directive string into an ordered list of directives.
// An empty or blank string parses to an empty Spec. A token with malformed
// bracket syntax is folded into a whole-bundle exclusion of its base name:
// when in doubt the parser refuses to apply, never applies by accident.
func Parse(directive string) Spec {
	logger := logging.GetLogger("pospec")
	var spec Spec
	for _, token := range strings.Fields(directive) {
		switch {
		case excludeFilesRe.MatchString(token):
			m := excludeFilesRe.FindStringSubmatch(token)
			var files []string
			for _, f := range strings.Split(m[2], ",") {
				if f = strings.TrimSpace(f); f != "" {
					files = append(files, f)
				}
			}
			spec.Directives = append(spec.Directives, Directive{Name: m[1], Exclude: true, Files: files})
		case bareNameRe.MatchString(token):
			if strings.HasPrefix(token, "-") {
				spec.Directives = append(spec.Directives, Directive{Name: token[1:], Exclude: true})
			} else {
				spec.Directives = append(spec.Directives, Directive{Name: token})
			}
		default:
			base := baseName(token)
			if base == "" {
				logger.Warn().Str("token", token).Msg("Unparseable directive token, ignored")
				continue
			}
			logger.Warn().Str("token", token).Str("bundle", base).
				Msg("Malformed directive token, excluding bundle entirely")
			spec.Directives = append(spec.Directives, Directive{Name: base, Exclude: true})
		}
	}
	return spec
}

// baseName strips the exclusion marker and any bracket suffix from a token.
func baseName(token string) string {
	base := strings.TrimPrefix(token, "-")
	if i := strings.Index(base, "["); i >= 0 {
		base = base[:i]
	}
	if !bareNameRe.MatchString(base) {
		return ""
	}
	return base
}

// BaseName reports the bundle name a raw token refers to, or "" when the
// token carries no recognizable name. Used by the lifecycle rewrite to match
// tokens against a bundle being deleted.
func BaseName(token string) string {
	return baseName(token)
}

// Effective returns the ordered bundle list to process: included names in
// first-seen order, minus any name carrying a whole-bundle exclusion.
// File-scoped exclusions do not remove a bundle from the list.
func (s Spec) Effective() []string {
	wholeExcluded := make(map[string]bool)
	for _, d := range s.Directives {
		if d.Exclude && len(d.Files) == 0 {
			wholeExcluded[d.Name] = true
		}
	}

	var ordered []string
	seen := make(map[string]bool)
	for _, d := range s.Directives {
		if d.Exclude || seen[d.Name] || wholeExcluded[d.Name] {
			continue
		}
		seen[d.Name] = true
		ordered = append(ordered, d.Name)
	}
	return ordered
}

// ExcludedFiles returns the per-bundle deny-list of override paths for the
// named bundle. The deny-list is consulted during override application only;
// patches are applied or skipped per bundle as a whole.
func (s Spec) ExcludedFiles(bundle string) map[string]bool {
	files := make(map[string]bool)
	for _, d := range s.Directives {
		if d.Exclude && d.Name == bundle {
			for _, f := range d.Files {
				files[f] = true
			}
		}
	}
	return files
}

// IsEmpty reports whether the spec carries no directives at all.
func (s Spec) IsEmpty() bool {
	return len(s.Directives) == 0
}
