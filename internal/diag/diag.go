// Package diag provides the structured error type used by the lowering engine.
//
// Errors carry a Level (how bad), a Category (what went wrong) and the
// profile/operation context they were raised in:
//
//	err := diag.New(diag.CategoryConfig).
//		Profile("x86-avx2").
//		Op("addsat.i64").
//		Detail("no capability entry").
//		Build()
//
// All errors support errors.Is against the category sentinels, so callers
// can test errors.Is(err, diag.ErrAliasing) without caring about details.
package diag

import (
	"fmt"
	"strings"
)

// Level indicates the severity of an error
type Level int

const (
	LevelWarning Level = iota
	LevelError
	LevelFatal
)

func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal error"
	default:
		return "unknown"
	}
}

// Category classifies the error
type Category string

const (
	CategoryConfig   Category = "config"   // profile validation, unlisted pairs, compat levels
	CategoryAliasing Category = "aliasing" // operand combination the target cannot encode
	CategoryEncoding Category = "encoding" // operand out of range for a field
	CategoryInternal Category = "internal" // engine bug
)

// Error is the error type returned by every package of the engine
type Error struct {
	Cause    error
	Level    Level
	Category Category
	Profile  string
	Op       string
	Detail   string
}

// Sentinels for errors.Is matching
var (
	ErrConfig   = &Error{Category: CategoryConfig}
	ErrAliasing = &Error{Category: CategoryAliasing}
	ErrEncoding = &Error{Category: CategoryEncoding}
	ErrInternal = &Error{Category: CategoryInternal}
)

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Level.String())
	b.WriteString(" [")
	b.WriteString(string(e.Category))
	b.WriteByte(']')
	if e.Profile != "" {
		b.WriteString(" profile ")
		b.WriteString(e.Profile)
	}
	if e.Op != "" {
		b.WriteString(" op ")
		b.WriteString(e.Op)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}
	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same category
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Category == t.Category
}

// Fatal reports whether the error must abort the encoding session
func (e *Error) Fatal() bool {
	return e.Level == LevelFatal
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New starts an error of the given category. Configuration and aliasing
// errors abort the session, so they default to LevelFatal.
func New(cat Category) *Builder {
	lvl := LevelError
	if cat == CategoryConfig || cat == CategoryAliasing || cat == CategoryInternal {
		lvl = LevelFatal
	}
	return &Builder{err: Error{Category: cat, Level: lvl}}
}

func (b *Builder) Level(l Level) *Builder {
	b.err.Level = l
	return b
}

func (b *Builder) Profile(name string) *Builder {
	b.err.Profile = name
	return b
}

func (b *Builder) Op(op string) *Builder {
	b.err.Op = op
	return b
}

func (b *Builder) Detail(format string, args ...any) *Builder {
	b.err.Detail = fmt.Sprintf(format, args...)
	return b
}

func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Build returns the error
func (b *Builder) Build() error {
	e := b.err
	return &e
}

// Config creates a configuration error
func Config(format string, args ...any) error {
	return New(CategoryConfig).Detail(format, args...).Build()
}

// Aliasing creates an aliasing error
func Aliasing(format string, args ...any) error {
	return New(CategoryAliasing).Detail(format, args...).Build()
}

// Encoding creates an encoding error
func Encoding(format string, args ...any) error {
	return New(CategoryEncoding).Detail(format, args...).Build()
}

// Internal creates an internal error
func Internal(format string, args ...any) error {
	return New(CategoryInternal).Detail(format, args...).Build()
}

// WithContext fills in the profile and op of err if it is an *Error that
// does not have them yet. Other errors are wrapped as internal errors.
func WithContext(err error, profile, op string) error {
	if err == nil {
		return nil
	}
	e, ok := err.(*Error)
	if !ok {
		return New(CategoryInternal).Profile(profile).Op(op).Cause(err).Build()
	}
	c := *e
	if c.Profile == "" {
		c.Profile = profile
	}
	if c.Op == "" {
		c.Op = op
	}
	return &c
}
