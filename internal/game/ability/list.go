package ability

// Entry is one granted ability instance.
type Entry struct {
	Kind      Kind `json:"kind"`
	Remaining int  `json:"remaining"`
}

// Consumed reports whether the instance has no uses left.
func (e Entry) Consumed() bool { return e.Remaining <= 0 }

// List is the ordered set of ability instances on one entity. Consumed
// entries stay in the list as history. Add, Consume and ConsumeAll are the
// only mutation entry points. It is not safe for concurrent use; the caller
// must serialise access.
type List []Entry

// Add appends one single-use instance of each kind in order.
//
// Postcondition: Count(k) increases by one for every k given.
func (l *List) Add(kinds ...Kind) {
	for _, k := range kinds {
		*l = append(*l, Entry{Kind: k, Remaining: 1})
	}
}

// Has reports whether at least one unconsumed instance of k exists.
func (l List) Has(k Kind) bool {
	return l.Count(k) > 0
}

// Count returns the number of unconsumed uses of k.
func (l List) Count(k Kind) int {
	n := 0
	for _, e := range l {
		if e.Kind == k && e.Remaining > 0 {
			n += e.Remaining
		}
	}
	return n
}

// Consume uses one instance of k, oldest first.
//
// Postcondition: Returns true and decrements Count(k) by one, or returns
// false and leaves the list unchanged if Count(k) was zero.
func (l List) Consume(k Kind) bool {
	for i := range l {
		if l[i].Kind == k && l[i].Remaining > 0 {
			l[i].Remaining--
			return true
		}
	}
	return false
}

// ConsumeAll uses every instance of k and returns how many were consumed.
//
// Postcondition: Count(k) == 0.
func (l List) ConsumeAll(k Kind) int {
	n := 0
	for i := range l {
		if l[i].Kind == k && l[i].Remaining > 0 {
			n += l[i].Remaining
			l[i].Remaining = 0
		}
	}
	return n
}

// Active returns the distinct kinds that still have uses, in first-grant order.
func (l List) Active() []Kind {
	seen := make(map[Kind]bool)
	var out []Kind
	for _, e := range l {
		if e.Remaining > 0 && !seen[e.Kind] {
			seen[e.Kind] = true
			out = append(out, e.Kind)
		}
	}
	return out
}
