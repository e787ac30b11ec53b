package export

import (
	"fmt"
	"path"
	"strings"

	"github.com/osteele/liquid"
)

// DefaultPath lays tables out as <category>/<name>/<view>_<year>.csv.
const DefaultPath = "{{ category }}/{{ name }}/{{ view }}_{{ year }}.csv"

// PathVars are the bindings available to a path template.
type PathVars struct {
	Category string
	Name     string
	View     string
	Year     int
	Period   string
}

// PathTemplate renders storage keys from a Liquid template.
type PathTemplate struct {
	tpl *liquid.Template
	src string
}

// ParsePathTemplate compiles src. The "slug" filter replaces characters
// that are awkward in object keys.
func ParsePathTemplate(src string) (*PathTemplate, error) {
	engine := liquid.NewEngine()
	engine.RegisterFilter("slug", func(s string) string {
		return strings.Map(func(r rune) rune {
			switch r {
			case '/', '\\', ' ', ':':
				return '_'
			}
			return r
		}, s)
	})

	tpl, err := engine.ParseString(src)
	if err != nil {
		return nil, fmt.Errorf("parsing path template %q: %w", src, err)
	}
	return &PathTemplate{tpl: tpl, src: src}, nil
}

// DefaultPathTemplate returns the compiled DefaultPath.
func DefaultPathTemplate() *PathTemplate {
	t, err := ParsePathTemplate(DefaultPath)
	if err != nil {
		panic(err)
	}
	return t
}

// Render returns the cleaned key for v. Keys escaping the root are rejected.
func (t *PathTemplate) Render(v PathVars) (string, error) {
	out, err := t.tpl.RenderString(map[string]interface{}{
		"category": v.Category,
		"name":     v.Name,
		"view":     v.View,
		"year":     v.Year,
		"period":   v.Period,
	})
	if err != nil {
		return "", fmt.Errorf("rendering path template: %w", err)
	}

	key := path.Clean(strings.TrimSpace(out))
	if key == "." || key == ".." || strings.HasPrefix(key, "../") || path.IsAbs(key) {
		return "", fmt.Errorf("path template %q rendered unusable key %q", t.src, out)
	}
	return key, nil
}
