package core

// Errors is an ordered mapping of field name to validation messages.
// The zero value is empty and ready to use.
type Errors struct {
	order  []string
	fields map[string][]string
}

// Add appends a message for field.
func (e *Errors) Add(field, msg string) {
	if e.fields == nil {
		e.fields = make(map[string][]string)
	}
	if _, ok := e.fields[field]; !ok {
		e.order = append(e.order, field)
	}
	e.fields[field] = append(e.fields[field], msg)
}

// Get returns the messages recorded for field.
func (e *Errors) Get(field string) []string {
	return e.fields[field]
}

// Has reports whether field has at least one message.
func (e *Errors) Has(field string) bool {
	return len(e.fields[field]) > 0
}

// Fields returns field names in insertion order.
func (e *Errors) Fields() []string {
	out := make([]string, len(e.order))
	copy(out, e.order)
	return out
}

// Len returns the number of fields with messages.
func (e *Errors) Len() int { return len(e.order) }

// Empty reports whether no messages are recorded.
func (e *Errors) Empty() bool { return len(e.order) == 0 }

// Clear removes every entry.
func (e *Errors) Clear() {
	e.order = nil
	e.fields = nil
}

// Clone returns an independent copy.
func (e *Errors) Clone() Errors {
	var c Errors
	c.Merge(*e)
	return c
}

// Merge appends every message of other, keeping other's field order for new fields.
func (e *Errors) Merge(other Errors) {
	for _, field := range other.order {
		for _, msg := range other.fields[field] {
			e.Add(field, msg)
		}
	}
}

// Replace swaps the whole content for other's.
func (e *Errors) Replace(other Errors) {
	c := other.Clone()
	e.order = c.order
	e.fields = c.fields
}

// Map returns a copy keyed by field.
func (e *Errors) Map() map[string][]string {
	out := make(map[string][]string, len(e.order))
	for _, field := range e.order {
		msgs := make([]string, len(e.fields[field]))
		copy(msgs, e.fields[field])
		out[field] = msgs
	}
	return out
}

// FullMessages renders "field message" strings in order.
func (e *Errors) FullMessages() []string {
	var out []string
	for _, field := range e.order {
		for _, msg := range e.fields[field] {
			out = append(out, field+" "+msg)
		}
	}
	return out
}
