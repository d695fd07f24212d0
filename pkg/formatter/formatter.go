// Package formatter converts attribute values between their wire form and their native
// form, keyed by attribute kind.
package formatter

import (
	"time"

	"github.com/conduit-lang/spine/pkg/resource"
)

// DateLayout is the wire profile for Date attributes: ISO-8601 with seconds precision
// and an explicit numeric offset ("Z" for UTC)
const DateLayout = "2006-01-02T15:04:05Z07:00"

// Formatter transforms values for one mapping run. It holds no mutable state; create
// one per run or share a configured instance.
type Formatter struct {
	now      func() time.Time
	location *time.Location
}

// Option configures a Formatter
type Option func(*Formatter)

// WithClock sets the clock used when a date cannot be parsed
func WithClock(now func() time.Time) Option {
	return func(f *Formatter) {
		if now != nil {
			f.now = now
		}
	}
}

// WithLocation formats dates in loc instead of the offset they carry
func WithLocation(loc *time.Location) Option {
	return func(f *Formatter) {
		f.location = loc
	}
}

// New creates a Formatter
func New(opts ...Option) *Formatter {
	f := &Formatter{now: time.Now}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Unformat turns a decoded wire value into the native value for kind.
//
// A Date value that is not a parseable date string yields the current time instead of
// an error. Null stays null so an explicitly cleared date is not invented.
func (f *Formatter) Unformat(kind resource.Kind, v resource.Value) resource.Value {
	if kind != resource.Date {
		return v
	}
	if v.IsNull() {
		return v
	}
	if t, ok := v.AsTime(); ok {
		return resource.Time(t)
	}
	s, ok := v.AsString()
	if !ok {
		return resource.Time(f.now())
	}
	t, err := f.ParseDate(s)
	if err != nil {
		return resource.Time(f.now())
	}
	return resource.Time(t)
}

// Format turns a native value into its wire form for kind
func (f *Formatter) Format(kind resource.Kind, v resource.Value) resource.Value {
	if kind != resource.Date {
		return v
	}
	t, ok := v.AsTime()
	if !ok {
		return v
	}
	return resource.String(f.FormatDate(t))
}

// FormatDate renders t using DateLayout
func (f *Formatter) FormatDate(t time.Time) string {
	if f.location != nil {
		t = t.In(f.location)
	}
	return t.Format(DateLayout)
}

// ParseDate parses s using DateLayout
func (f *Formatter) ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}
