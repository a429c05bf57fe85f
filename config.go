package main

import (
	"fmt"

	"github.com/xyproto/env/v2"

	"github.com/xyproto/vlower/internal/selector"
	"github.com/xyproto/vlower/internal/vop"
)

// Settings are the defaults a job file may override
type Settings struct {
	Profile string
	Width   vop.Width
	Compat  selector.Compat
	Verbose bool
}

// LoadSettings reads the VLOWER_* environment variables. env caches the
// environment on first use, so the cache is reloaded on every call.
func LoadSettings() (Settings, error) {
	env.Load()
	w, ok := vop.ParseWidth(env.Str("VLOWER_WIDTH", "variable"))
	if !ok {
		return Settings{}, fmt.Errorf("VLOWER_WIDTH: want 128, 256, 512 or variable, got %q", env.Str("VLOWER_WIDTH"))
	}
	d := selector.DefaultCompat
	return Settings{
		Profile: env.Str("VLOWER_PROFILE"),
		Width:   w,
		Compat: selector.Compat{
			Rcp:   env.Int("VLOWER_COMPAT_RCP", d.Rcp),
			Rsq:   env.Int("VLOWER_COMPAT_RSQ", d.Rsq),
			FMA:   env.Int("VLOWER_COMPAT_FMA", d.FMA),
			Round: env.Int("VLOWER_COMPAT_ROUND", d.Round),
		},
		Verbose: env.Bool("VLOWER_VERBOSE"),
	}, nil
}
