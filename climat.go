package geode

import (
	"context"
	"fmt"
)

// timeRule derives the output time axis of a temporal aggregate.
type timeRule struct {
	suffix string
	// endow optionally adds fields to the input axis before mapping.
	endow func(in *Axis) (*Axis, error)
	out   func(in *Axis) (*Axis, error)
}

var (
	climRule = timeRule{
		suffix: "clim",
		out: func(in *Axis) (*Axis, error) {
			return in.Modify(ModifyOptions{Exclude: []string{"year"}, Uniquify: true})
		},
	}
	dailyRule = timeRule{
		suffix: "daily",
		out: func(in *Axis) (*Axis, error) {
			return in.Modify(ModifyOptions{Resolution: Day, Uniquify: true})
		},
	}
	monthlyRule = timeRule{
		suffix: "monthly",
		out: func(in *Axis) (*Axis, error) {
			return in.Modify(ModifyOptions{Resolution: Month, Uniquify: true})
		},
	}
	diurnalRule = timeRule{
		suffix: "diurnal",
		out: func(in *Axis) (*Axis, error) {
			if in.Resolution() < Hour {
				return nil, configErrorf("axis %q has resolution %s, a diurnal cycle needs hours", in.name, in.Resolution())
			}
			return in.Modify(ModifyOptions{Exclude: []string{"year", "month", "day"}, Uniquify: true})
		},
	}
	seasonalRule = timeRule{
		suffix: "seasonal",
		endow:  (*Axis).WithSeasons,
		out: func(in *Axis) (*Axis, error) {
			keep := []string{FieldSeason}
			if in.HasField(FieldSYear) {
				keep = append([]string{FieldSYear}, keep...)
			}
			return in.Modify(ModifyOptions{Keep: keep, Uniquify: true})
		},
	}
	seriesRule = timeRule{
		suffix: "series",
		out: func(in *Axis) (*Axis, error) {
			return in.Modify(ModifyOptions{Exclude: in.FieldNames(), Uniquify: true})
		},
	}
)

// Climatology averages over years, keeping the position within the year.
func Climatology(x *Var) (*Var, error) { return timeOp(x, climRule, KindMean) }

func DailyMean(x *Var) (*Var, error)   { return timeOp(x, dailyRule, KindMean) }
func MonthlyMean(x *Var) (*Var, error) { return timeOp(x, monthlyRule, KindMean) }

// DiurnalMean averages every time of day across all days.
func DiurnalMean(x *Var) (*Var, error) { return timeOp(x, diurnalRule, KindMean) }

// SeasonalMean averages over DJF, MAM, JJA and SON. December counts towards
// the following year's DJF.
func SeasonalMean(x *Var) (*Var, error) { return timeOp(x, seasonalRule, KindMean) }

// ClimTrend fits a linear trend per climatological bin. The result gains a
// trailing coefficient axis holding the intercept then the slope per second.
func ClimTrend(x *Var) (*Var, error) { return timeOp(x, climRule, KindTrend) }

// LinearTrend fits a single linear trend over the whole series.
func LinearTrend(x *Var) (*Var, error) { return timeOp(x, seriesRule, KindTrend) }

func timeOp(x *Var, rule timeRule, kind Kind) (*Var, error) {
	ti, err := x.FamilyIndex(FamilyTime)
	if err != nil {
		return nil, configErrorf("%s %s of %q: %v", rule.suffix, kind, x.name, err)
	}
	intime := x.axes[ti]
	src := x
	if rule.endow != nil {
		if intime, err = rule.endow(intime); err != nil {
			return nil, err
		}
		if src, err = x.ReplaceAxis(ti, intime); err != nil {
			return nil, err
		}
	}
	outtime, err := rule.out(intime)
	if err != nil {
		return nil, err
	}

	n := &binnedNode{src: src, dim: ti, op: reductions[kind]}
	axes := append([]*Axis{}, x.axes...)
	axes[ti] = outtime
	n.outAxes = append([]*Axis{}, axes...)
	if kind == KindTrend {
		if distinct(intime.values) < 2 {
			return nil, configErrorf("trend of %q needs at least two distinct times, axis %q has %d", x.name, intime.name, distinct(intime.values))
		}
		secs, _ := NewArrayFrom(intime.Reltime(intime.start), intime.Len())
		if n.secs, err = FromArray("seconds", []*Axis{intime}, secs); err != nil {
			return nil, err
		}
		axes = append(axes, NewCoefAxis(n.op.coefs))
	}
	name := fmt.Sprintf("%s_%s_%s", x.name, rule.suffix, kind)
	return &Var{name: name, axes: axes, node: n}, nil
}

func distinct(values []float64) int {
	seen := make(map[float64]bool, len(values))
	for _, v := range values {
		seen[v] = true
	}
	return len(seen)
}

// binnedNode reduces the time dimension of src onto the bins of an output
// time axis.
type binnedNode struct {
	src     *Var
	secs    *Var
	dim     int
	outAxes []*Axis
	op      *reduction
}

func (n *binnedNode) fetch(ctx context.Context, r *Region, e *env) (*Array, error) {
	out := &Region{axes: n.outAxes, idx: r.idx[:len(n.outAxes)]}
	vars := []*Var{n.src}
	if n.secs != nil {
		vars = append(vars, n.secs)
	}
	loop, err := streamBinned(ctx, e, vars, out, n.dim)
	if err != nil {
		return nil, err
	}
	res, err := accumulate(loop, n.op, e)
	if err != nil {
		return nil, err
	}
	if n.op.coefs > 0 {
		return res.Take(res.NDim()-1, r.idx[len(n.outAxes)])
	}
	return res, nil
}

// FromTrend evaluates A·t + B over taxis from trend coefficients laid out
// as ClimTrend returns them. t counts seconds from the start of the
// coefficient time axis.
func FromTrend(taxis *Axis, coef *Var, opts ...Option) (*Var, error) {
	e := newEnv(opts)
	ti, err := coef.FamilyIndex(FamilyTime)
	if err != nil {
		return nil, configErrorf("trend coefficients %q: %v", coef.name, err)
	}
	ci, err := coef.FamilyIndex(FamilyCoef)
	if err != nil {
		return nil, configErrorf("trend coefficients %q: %v", coef.name, err)
	}
	if n := coef.axes[ci].Len(); n != 2 {
		return nil, configErrorf("trend coefficients %q have %d coefficients, want 2", coef.name, n)
	}

	ct := coef.axes[ti]
	if years, ok := ct.Field("year"); ok && constant(years) {
		e.logger.Warn("dropping constant year field from trend axis", "kind", "numeric", "axis", ct.name, "year", years[0])
		if ct, err = ct.Modify(ModifyOptions{Exclude: []string{"year"}}); err != nil {
			return nil, err
		}
	}
	if taxis.family != FamilyTime || !taxis.Compatible(ct) {
		return nil, configErrorf("time axis %q (%s) is not compatible with trend axis %q (%s)",
			taxis.name, taxis.family, ct.name, ct.FieldNames())
	}
	m, err := CommonMap(taxis, ct)
	if err != nil {
		return nil, err
	}
	for i, o := range m.InToOut {
		if o < 0 {
			return nil, configErrorf("time %s of %q has no trend coefficients", taxis.dateAt(i).Format("2006-01-02T15:04:05"), taxis.name)
		}
	}

	var axes []*Axis
	for d, a := range coef.axes {
		switch d {
		case ci:
		case ti:
			axes = append(axes, taxis)
		default:
			axes = append(axes, a)
		}
	}
	n := &trendNode{
		coef: coef,
		ti:   ti,
		ci:   ci,
		bins: m.InToOut,
		secs: taxis.Reltime(ct.start),
	}
	return &Var{name: coef.name, axes: axes, node: n}, nil
}

func constant(v []int) bool {
	for _, x := range v {
		if x != v[0] {
			return false
		}
	}
	return len(v) > 0
}

// trendNode evaluates trend coefficients over a time axis.
type trendNode struct {
	coef   *Var
	ti, ci int
	bins   []int
	secs   []float64
}

func (n *trendNode) fetch(ctx context.Context, r *Region, e *env) (*Array, error) {
	// Dimension of the time axis in the output, which lacks the coefficient
	// dimension.
	td := n.ti
	if n.ci < n.ti {
		td--
	}
	times := r.idx[td]

	// Coefficient rows needed by the requested times, and where each time
	// finds its row.
	var rows []int
	row := make(map[int]int)
	pick := make([]int, len(times))
	for p, i := range times {
		b := n.bins[i]
		k, ok := row[b]
		if !ok {
			k = len(rows)
			row[b] = k
			rows = append(rows, b)
		}
		pick[p] = k
	}

	cr := &Region{axes: n.coef.axes, idx: make([][]int, len(n.coef.axes))}
	j := 0
	for d := range n.coef.axes {
		switch d {
		case n.ci:
			cr.idx[d] = []int{0, 1}
			continue
		case n.ti:
			cr.idx[d] = rows
		default:
			cr.idx[d] = r.idx[j]
		}
		j++
	}
	c, err := n.coef.fetch(ctx, cr, e)
	if err != nil {
		return nil, err
	}

	shape := r.Shape()
	coefAt := func(k int) (*Array, error) {
		a, err := c.Take(n.ci, []int{k})
		if err != nil {
			return nil, err
		}
		a, err = NewArrayFrom(a.data, append(shape[:td:td], append([]int{len(rows)}, shape[td+1:]...)...)...)
		if err != nil {
			return nil, err
		}
		return a.Take(td, pick)
	}
	b, err := coefAt(0)
	if err != nil {
		return nil, err
	}
	a, err := coefAt(1)
	if err != nil {
		return nil, err
	}
	t := make([]float64, len(times))
	for p, i := range times {
		t[p] = n.secs[i]
	}
	ta, _ := NewArrayFrom(t, len(t))
	out := ta.Broadcast([]int{td}, shape)
	for i, tv := range out.data {
		out.data[i] = a.data[i]*tv + b.data[i]
	}
	return out, nil
}

// Detrend removes the climatological linear trend from x. The trend
// coefficients are loaded into memory.
func Detrend(ctx context.Context, x *Var, opts ...Option) (*Var, error) {
	resid, _, err := DetrendWithTrend(ctx, x, opts...)
	return resid, err
}

// DetrendWithTrend is Detrend that also returns the reconstructed trend.
func DetrendWithTrend(ctx context.Context, x *Var, opts ...Option) (*Var, *Var, error) {
	ti, err := x.FamilyIndex(FamilyTime)
	if err != nil {
		return nil, nil, configErrorf("detrend %q: %v", x.name, err)
	}
	trend, err := ClimTrend(x)
	if err != nil {
		return nil, nil, err
	}
	coef, err := trend.Load(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("loading trend of %q: %w", x.name, err)
	}
	recon, err := FromTrend(x.axes[ti], coef, opts...)
	if err != nil {
		return nil, nil, err
	}
	recon = recon.Rename(x.name + "_trend")
	resid, err := Sub(x, recon)
	if err != nil {
		return nil, nil, err
	}
	return resid.Rename(x.name + "_detrended"), recon, nil
}
