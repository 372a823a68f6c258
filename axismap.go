package geode

// Mapping relates positions of an input axis to bins of an output axis.
type Mapping struct {
	// InToOut holds the output bin of every input position, or -1 when the
	// position has no bin.
	InToOut []int
	// In and Out list the mapped pairs in ascending input order.
	In  []int
	Out []int
}

// CommonMap computes the index correspondence between an input axis and an
// output axis derived from it by a reduction rule. Bins are matched on the
// output axis fields; axes without fields are matched by value.
func CommonMap(in, out *Axis) (*Mapping, error) {
	if in.family != out.family {
		return nil, configErrorf("cannot map %s axis %q onto %s axis %q", in.family, in.name, out.family, out.name)
	}
	m := &Mapping{InToOut: make([]int, in.Len())}
	for i := range m.InToOut {
		m.InToOut[i] = -1
	}

	if len(out.fields) == 0 && out.Len() == 1 {
		// degenerate output axis: everything collapses into one bin
		for i := 0; i < in.Len(); i++ {
			m.add(i, 0)
		}
		return m, nil
	}

	if len(in.fields) == 0 && len(out.fields) == 0 {
		bins := make(map[float64]int, out.Len())
		for o := out.Len() - 1; o >= 0; o-- {
			bins[out.values[o]] = o
		}
		for i, v := range in.values {
			if o, ok := bins[v]; ok {
				m.add(i, o)
			}
		}
		return m, nil
	}

	fields := make([]Field, len(out.fields))
	for k, f := range out.fields {
		j := fieldIndex(in.fields, f.Name)
		if j < 0 {
			return nil, configErrorf("axis %q has no %q field to map onto %q", in.name, f.Name, out.name)
		}
		fields[k] = in.fields[j]
	}
	bins := make(map[string]int, out.Len())
	for o := out.Len() - 1; o >= 0; o-- {
		bins[fieldKey(out.fields, o)] = o
	}
	for i := 0; i < in.Len(); i++ {
		if o, ok := bins[fieldKey(fields, i)]; ok {
			m.add(i, o)
		}
	}
	return m, nil
}

func (m *Mapping) add(i, o int) {
	m.InToOut[i] = o
	m.In = append(m.In, i)
	m.Out = append(m.Out, o)
}

// OutToIn lists the input positions of each of n output bins.
func (m *Mapping) OutToIn(n int) [][]int {
	out := make([][]int, n)
	for k, o := range m.Out {
		if o < n {
			out[o] = append(out[o], m.In[k])
		}
	}
	return out
}

// Covers reports whether every listed output bin receives at least one
// input position.
func (m *Mapping) Covers(bins []int) bool {
	hit := make(map[int]bool, len(m.Out))
	for _, o := range m.Out {
		hit[o] = true
	}
	for _, b := range bins {
		if !hit[b] {
			return false
		}
	}
	return true
}

// checkCoverage fails when some requested bin has no contributing input;
// that means the rule that built the output axis is defective.
func checkCoverage(m *Mapping, out *Axis, bins []int) error {
	if m.Covers(bins) {
		return nil
	}
	for _, b := range bins {
		if !m.Covers([]int{b}) {
			return configErrorf("axis mapping leaves bin %d (%s) of %q empty", b, out.formatFields(b), out.name)
		}
	}
	return nil
}
