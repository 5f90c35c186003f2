package domain

// Directive is a leading `%name args` (or `!cmd`) line peeled off a cell.
type Directive struct {
	Name      string
	Args      string
	Remainder string
}

// Direction of a variable exchange, seen from the Host dictionary.
type Direction string

const (
	DirectionGet Direction = "get"
	DirectionPut Direction = "put"
)

// ExchangeRequest names the variables to move between Host and an engine.
type ExchangeRequest struct {
	Names     []string
	Direction Direction
}

// Dict is the Host dictionary.
type Dict map[string]any

// Clone returns a shallow copy of the dictionary.
func (d Dict) Clone() Dict {
	out := make(Dict, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
