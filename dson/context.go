package dson

// contextState tracks which call a reader or writer expects next inside one
// container.
type contextState uint8

const (
	stateType    contextState = iota // reader: ReadDsonType
	stateName                        // reader: ReadName; writer: WriteName
	stateValue                       // a value is due
	stateWaitEnd                     // reader: end seen, ReadEnd* due
	stateDone                        // top-level reader: input exhausted
)

func (s contextState) String() string {
	switch s {
	case stateType:
		return "TYPE"
	case stateName:
		return "NAME"
	case stateValue:
		return "VALUE"
	case stateWaitEnd:
		return "WAIT_END"
	case stateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// DefaultMaxDepth is the container nesting limit of readers and writers
// unless set otherwise.
const DefaultMaxDepth = 128

// context is one level of the container stack.
type context[K Key] struct {
	parent *context[K]
	typ    ContextType
	state  contextState
	header Header
	count  int
	name   K
	seen   map[K]struct{}

	// text writer layout
	depth     int
	afterText bool // previous element ended with a text block line
}

func newContext[K Key](parent *context[K], typ ContextType, state contextState, h Header) *context[K] {
	c := &context[K]{parent: parent, typ: typ, state: state, header: h}
	if parent != nil {
		c.depth = parent.depth + 1
	}
	return c
}

// markSeen records an object key and reports whether it was new.
func (c *context[K]) markSeen(k K) bool {
	if c.seen == nil {
		c.seen = make(map[K]struct{})
	}
	if _, dup := c.seen[k]; dup {
		return false
	}
	c.seen[k] = struct{}{}
	return true
}

func containerContext(dt DsonType) ContextType {
	if dt == TypeArray {
		return ContextArray
	}
	return ContextObject
}
