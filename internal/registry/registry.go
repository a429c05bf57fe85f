// Package registry holds the validated built-in profiles, looked up by
// name or picked for the running CPU.
package registry

import (
	"fmt"
	"strings"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/xyproto/vlower/internal/diag"
	"github.com/xyproto/vlower/internal/isa"
	"github.com/xyproto/vlower/internal/profile"
	"github.com/xyproto/vlower/internal/recipe"
)

var (
	once     sync.Once
	all      []*profile.Profile
	byName   map[string]*profile.Profile
	errBuild error
)

// load builds and validates every profile once. A profile that fails
// validation makes the whole registry unusable.
func load() {
	all = profile.Builtin()
	byName = lo.KeyBy(all, func(p *profile.Profile) string { return p.Name })
	for _, p := range all {
		if err := p.Err(); err != nil {
			errBuild = diag.New(diag.CategoryConfig).Profile(p.Name).Detail("profile table").Cause(err).Build()
			return
		}
		if err := recipe.Validate(p); err != nil {
			errBuild = diag.WithContext(err, p.Name, "validate")
			return
		}
		diag.Logger().Debug("profile registered", zap.String("profile", p.Name), zap.Int("entries", len(p.Entries())))
	}
}

// All returns the validated profiles in registration order
func All() ([]*profile.Profile, error) {
	once.Do(load)
	if errBuild != nil {
		return nil, errBuild
	}
	return all, nil
}

// Names returns the profile names in registration order
func Names() []string {
	once.Do(load)
	return lo.Map(all, func(p *profile.Profile, _ int) string { return p.Name })
}

// Lookup returns the profile called name. Unknown names are
// configuration errors that suggest the closest known names.
func Lookup(name string) (*profile.Profile, error) {
	if _, err := All(); err != nil {
		return nil, err
	}
	if p, ok := byName[strings.ToLower(name)]; ok {
		return p, nil
	}
	detail := fmt.Sprintf("unknown profile %q", name)
	if similar := suggest(strings.ToLower(name), Names(), 3); len(similar) > 0 {
		detail += " (did you mean " + strings.Join(similar, ", ") + "?)"
	}
	return nil, diag.New(diag.CategoryConfig).Detail("%s", detail).Build()
}

// ForArch returns the profiles of one architecture, least capable first
func ForArch(a isa.Arch) []*profile.Profile {
	ps, err := All()
	if err != nil {
		return nil
	}
	return lo.Filter(ps, func(p *profile.Profile, _ int) bool { return p.Arch == a })
}

// Best returns the most capable profile of arch whose features are all in
// features
func Best(a isa.Arch, features []string) (*profile.Profile, error) {
	if _, err := All(); err != nil {
		return nil, err
	}
	fits := lo.Filter(ForArch(a), func(p *profile.Profile, _ int) bool {
		return lo.Every(features, p.Features)
	})
	if len(fits) == 0 {
		return nil, diag.New(diag.CategoryConfig).Detail("no profile for %s with features %v", a, features).Build()
	}
	return fits[len(fits)-1], nil
}
