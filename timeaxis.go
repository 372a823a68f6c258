package geode

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Resolution is the finest calendar field a time axis carries.
type Resolution int

const (
	ResolutionNone Resolution = iota
	Year
	Month
	Day
	Hour
	Minute
	Second
)

// calendar field names, coarse to fine, indexed by Resolution-1
var calendarFields = []string{"year", "month", "day", "hour", "minute", "second"}

const (
	// FieldSeason numbers seasons 1=DJF, 2=MAM, 3=JJA, 4=SON.
	FieldSeason = "season"
	// FieldSYear is a year aligned so that a December belongs to the
	// following year's DJF.
	FieldSYear = "syear"
)

var fieldRanks = map[string]int{
	FieldSYear:  0,
	"year":      1,
	FieldSeason: 2,
	"month":     3,
	"day":       4,
	"hour":      5,
	"minute":    6,
	"second":    7,
}

func fieldRank(name string) int {
	if r, ok := fieldRanks[name]; ok {
		return r
	}
	return len(fieldRanks)
}

func (r Resolution) String() string {
	if r < Year || r > Second {
		return "none"
	}
	return calendarFields[r-1]
}

// ParseResolution reads a resolution name such as "day" or "month".
func ParseResolution(s string) (Resolution, error) {
	for i, name := range calendarFields {
		if strings.EqualFold(s, name) {
			return Resolution(i + 1), nil
		}
	}
	return ResolutionNone, configErrorf("unknown time resolution %q", s)
}

// NewTimeAxis builds a time axis from timestamps, keeping calendar fields
// down to res. The first timestamp is the reference start date.
func NewTimeAxis(times []time.Time, res Resolution) (*Axis, error) {
	if len(times) == 0 {
		return nil, configErrorf("time axis needs at least one timestamp")
	}
	if res < Year || res > Second {
		return nil, configErrorf("invalid time resolution %d", res)
	}
	fields := make([]Field, res)
	for k := range fields {
		fields[k] = Field{Name: calendarFields[k], Values: make([]int, len(times))}
	}
	for i, t := range times {
		t = t.UTC()
		parts := []int{t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second()}
		for k := range fields {
			fields[k].Values[i] = parts[k]
		}
	}
	return NewCalendarAxis(truncate(times[0].UTC(), res), fields...)
}

// NewCalendarAxis builds a time axis from explicit calendar fields relative
// to a reference start date.
func NewCalendarAxis(start time.Time, fields ...Field) (*Axis, error) {
	n := -1
	fs := make([]Field, 0, len(fields))
	for _, f := range fields {
		if _, ok := fieldRanks[f.Name]; !ok {
			return nil, configErrorf("unknown calendar field %q", f.Name)
		}
		if n >= 0 && len(f.Values) != n {
			return nil, configErrorf("calendar field %q has %d values, want %d", f.Name, len(f.Values), n)
		}
		n = len(f.Values)
		fs = append(fs, Field{Name: f.Name, Values: append([]int{}, f.Values...)})
	}
	if n < 0 {
		n = 1
	}
	proto := &Axis{name: "time", family: FamilyTime, start: start.UTC()}
	return proto.withFields(fs, make([]float64, n)), nil
}

// Resolution reports the finest calendar field on the axis.
func (a *Axis) Resolution() Resolution {
	res := ResolutionNone
	for i, name := range calendarFields {
		if a.HasField(name) {
			res = Resolution(i + 1)
		}
	}
	return res
}

// Date returns the calendar date of position i. Missing fields default to
// the start year, January and the first of the month.
func (a *Axis) Date(i int) time.Time { return a.dateAt(i) }

func (a *Axis) dateAt(i int) time.Time {
	year, month, day := a.start.Year(), 1, 1
	var hour, minute, second int
	var season, syear int
	hasYear, hasMonth := false, false
	for _, f := range a.fields {
		v := f.Values[i]
		switch f.Name {
		case "year":
			year, hasYear = v, true
		case "month":
			month, hasMonth = v, true
		case "day":
			day = v
		case "hour":
			hour = v
		case "minute":
			minute = v
		case "second":
			second = v
		case FieldSeason:
			season = v
		case FieldSYear:
			syear = v
		}
	}
	if !hasYear && syear != 0 {
		year = syear
	}
	if !hasMonth && season != 0 {
		month = 3 * (season - 1)
		if month == 0 {
			month = 12
			year--
		}
	}
	return time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
}

// Reltime returns the seconds elapsed from ref to every position.
func (a *Axis) Reltime(ref time.Time) []float64 {
	out := make([]float64, a.Len())
	shift := float64(a.start.Unix() - ref.Unix())
	for i, v := range a.values {
		out[i] = v + shift
	}
	return out
}

// WithSeasons endows a time axis with season and season-aligned year
// fields, so that seasonal bins can be formed by field matching.
func (a *Axis) WithSeasons() (*Axis, error) {
	months, ok := a.Field("month")
	if a.family != FamilyTime || !ok {
		return nil, configErrorf("axis %q has no month field to derive seasons from", a.name)
	}
	fields := make([]Field, 0, len(a.fields)+2)
	for _, f := range a.fields {
		if f.Name == FieldSeason || f.Name == FieldSYear {
			continue
		}
		fields = append(fields, Field{Name: f.Name, Values: append([]int{}, f.Values...)})
	}
	season := make([]int, len(months))
	for i, m := range months {
		season[i] = (m%12)/3 + 1
	}
	fields = append(fields, Field{Name: FieldSeason, Values: season})
	if years, ok := a.Field("year"); ok {
		for i, m := range months {
			if m == 12 {
				years[i]++
			}
		}
		fields = append(fields, Field{Name: FieldSYear, Values: years})
	}
	b := a.withFields(fields, nil)
	b.values = a.Values()
	return b, nil
}

// ModifyOptions selects an axis reduction rule.
type ModifyOptions struct {
	// Exclude drops the named fields.
	Exclude []string
	// Resolution keeps calendar fields down to the given resolution.
	Resolution Resolution
	// Uniquify collapses repeated field tuples into one sorted position each.
	Uniquify bool
	// Keep, when non-empty, drops every field not listed.
	Keep []string
}

// Modify derives a reduced axis from a. Requesting a field or resolution
// the axis does not carry is a configuration error.
func (a *Axis) Modify(opts ModifyOptions) (*Axis, error) {
	fields := append([]Field{}, a.fields...)
	for _, name := range opts.Exclude {
		i := fieldIndex(fields, name)
		if i < 0 {
			return nil, configErrorf("axis %q has no %q field to exclude", a.name, name)
		}
		fields = append(fields[:i], fields[i+1:]...)
	}
	if len(opts.Keep) > 0 {
		kept := fields[:0:0]
		for _, name := range opts.Keep {
			i := fieldIndex(fields, name)
			if i < 0 {
				return nil, configErrorf("axis %q has no %q field to keep", a.name, name)
			}
			kept = append(kept, fields[i])
		}
		fields = kept
	}
	if opts.Resolution != ResolutionNone {
		if a.family != FamilyTime {
			return nil, configErrorf("resolution rule applies to time axes, not %q", a.name)
		}
		if fieldIndex(fields, opts.Resolution.String()) < 0 {
			return nil, configErrorf("axis %q has resolution %s, cannot reduce to %s",
				a.name, a.Resolution(), opts.Resolution)
		}
		kept := fields[:0:0]
		for _, f := range fields {
			if r := fieldRank(f.Name); r <= fieldRank(opts.Resolution.String()) {
				kept = append(kept, f)
			}
		}
		fields = kept
	}
	if !opts.Uniquify {
		fs := make([]Field, len(fields))
		for k, f := range fields {
			fs[k] = Field{Name: f.Name, Values: append([]int{}, f.Values...)}
		}
		return a.withFields(fs, a.Values()), nil
	}
	return a.uniquify(fields), nil
}

// uniquify keeps one position per distinct field tuple, sorted
// lexicographically in canonical field order.
func (a *Axis) uniquify(fields []Field) *Axis {
	sort.SliceStable(fields, func(i, j int) bool {
		return fieldRank(fields[i].Name) < fieldRank(fields[j].Name)
	})
	seen := map[string]bool{}
	var keep []int
	for i := 0; i < a.Len(); i++ {
		k := fieldKey(fields, i)
		if !seen[k] {
			seen[k] = true
			keep = append(keep, i)
		}
	}
	if len(fields) == 0 && len(keep) > 1 {
		keep = keep[:1]
	}
	sort.SliceStable(keep, func(x, y int) bool {
		for _, f := range fields {
			if f.Values[keep[x]] != f.Values[keep[y]] {
				return f.Values[keep[x]] < f.Values[keep[y]]
			}
		}
		return false
	})
	fs := make([]Field, len(fields))
	for k, f := range fields {
		vals := make([]int, len(keep))
		for p, i := range keep {
			vals[p] = f.Values[i]
		}
		fs[k] = Field{Name: f.Name, Values: vals}
	}
	values := make([]float64, len(keep))
	for p, i := range keep {
		values[p] = a.values[i]
	}
	return a.withFields(fs, values)
}

func fieldIndex(fields []Field, name string) int {
	for i, f := range fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

func fieldKey(fields []Field, i int) string {
	var b []byte
	for _, f := range fields {
		b = strconv.AppendInt(b, int64(f.Values[i]), 10)
		b = append(b, ',')
	}
	return string(b)
}

func truncate(t time.Time, res Resolution) time.Time {
	parts := []int{t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second()}
	for k := int(res); k < len(parts); k++ {
		if k == 1 || k == 2 {
			parts[k] = 1
		} else {
			parts[k] = 0
		}
	}
	return time.Date(parts[0], time.Month(parts[1]), parts[2], parts[3], parts[4], parts[5], 0, time.UTC)
}

// formatFields renders position i's fields for error messages.
func (a *Axis) formatFields(i int) string {
	parts := make([]string, len(a.fields))
	for k, f := range a.fields {
		parts[k] = fmt.Sprintf("%s=%d", f.Name, f.Values[i])
	}
	return strings.Join(parts, " ")
}
