package obs

// Opt is an explicit optional for stream payloads, keeping "no value yet"
// distinct from a zero value crossing a channel.
type Opt[T any] struct {
	Val T
	OK  bool
}

func Some[T any](v T) Opt[T] { return Opt[T]{Val: v, OK: true} }

func None[T any]() Opt[T] { return Opt[T]{} }

// Ptr adapts a nullable pointer into an Opt by value.
func Ptr[T any](p *T) Opt[T] {
	if p == nil {
		return Opt[T]{}
	}
	return Opt[T]{Val: *p, OK: true}
}
