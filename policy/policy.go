package policy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gobwas/glob"
	"github.com/samber/lo"
)

var (
	// Label boundaries, so * stays inside one label and ** spans several.
	globSeparators = []rune{'.'}

	ErrInvalidPattern = errors.New("invalid domain pattern")
)

type (
	// Policy is an allow-list of domain globs, e.g. *.devices.example.com
	Policy struct {
		patterns []string
		globs    []glob.Glob
	}
)

// New compiles the patterns. An empty Policy allows every domain.
func New(patterns ...string) (*Policy, error) {
	p := &Policy{}
	for _, pattern := range patterns {
		pattern = normalize(pattern)
		if pattern == "" {
			continue
		}
		g, err := glob.Compile(pattern, globSeparators...)
		if err != nil {
			return nil, fmt.Errorf("error compiling %q: %w: %w", pattern, ErrInvalidPattern, err)
		}
		p.patterns = append(p.patterns, pattern)
		p.globs = append(p.globs, g)
	}
	return p, nil
}

func (p *Policy) Allows(domain string) bool {
	if p == nil || len(p.globs) == 0 {
		return true
	}
	domain = normalize(domain)
	return lo.SomeBy(p.globs, func(g glob.Glob) bool {
		return g.Match(domain)
	})
}

func (p *Policy) Patterns() []string {
	if p == nil {
		return nil
	}
	return p.patterns
}

func normalize(s string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), ".")
}
