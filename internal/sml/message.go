package sml

// Message is one reading: field name to value.
type Message map[string]Value

// Batch is a sequence of closed readings awaiting reduction.
type Batch []Message

// Assembler builds the current reading from consecutive data lines.
type Assembler struct {
	current Message
}

func NewAssembler() *Assembler {
	return &Assembler{current: Message{}}
}

// Header closes the current reading and starts a new one. closed is false
// when nothing was collected yet, e.g. at stream start.
func (a *Assembler) Header() (msg Message, closed bool) {
	if len(a.current) == 0 {
		return nil, false
	}
	msg = a.current
	a.current = Message{}
	return msg, true
}

// Add records a reading for name. A repeated field within one block
// overwrites the earlier value.
func (a *Assembler) Add(name string, v Value) {
	a.current[name] = v
}

// Current returns the reading being built, possibly empty.
func (a *Assembler) Current() Message {
	return a.current
}
