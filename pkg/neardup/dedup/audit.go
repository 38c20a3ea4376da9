package dedup

// Example is one (kept, removed) pair shown to the user for inspection.
type Example struct {
	KeptID      string `json:"kept_id"`
	KeptText    string `json:"kept_text"`
	RemovedID   string `json:"removed_id"`
	RemovedText string `json:"removed_text"`
}

// Audit collects up to max examples. Canonical texts of representatives
// are held only while there is room for more examples.
type Audit struct {
	max      int
	texts    map[int]string
	examples []Example
}

// NewAudit creates an audit buffer holding at most max examples.
func NewAudit(max int) *Audit {
	a := &Audit{max: max}
	if max > 0 {
		a.texts = make(map[int]string)
	}
	return a
}

// Full reports whether no more examples will be collected.
func (a *Audit) Full() bool {
	return len(a.examples) >= a.max
}

// Kept remembers the canonical text of a new representative.
func (a *Audit) Kept(handle int, text string) {
	if a.Full() {
		return
	}
	a.texts[handle] = text
}

// Dropped records an example if the representative's text is known.
func (a *Audit) Dropped(handle int, repID, id, text string) {
	if a.Full() {
		return
	}
	repText, ok := a.texts[handle]
	if !ok {
		return
	}
	a.examples = append(a.examples, Example{
		KeptID:      repID,
		KeptText:    repText,
		RemovedID:   id,
		RemovedText: text,
	})
	if a.Full() {
		a.texts = nil
	}
}

// Examples returns the collected pairs in the order they were found.
func (a *Audit) Examples() []Example {
	out := make([]Example, len(a.examples))
	copy(out, a.examples)
	return out
}
