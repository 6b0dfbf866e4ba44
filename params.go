package halyard

import "maps"

// Params holds the parameters of a decoded command. Keys are unique; when a
// frame repeats a key the last occurrence wins. On the server every
// dispatched Params carries the connection id under the "uuid" key.
type Params map[string]string

// UUIDKey is the parameter key the server injects into every dispatched
// command, including lifecycle events.
const UUIDKey = "uuid"

// Get returns the value of a parameter by key. If the key does not exist,
// an empty string is returned.
func (p Params) Get(key string) string {
	return p[key]
}

// Lookup returns the value of a parameter and whether it was present.
func (p Params) Lookup(key string) (string, bool) {
	v, ok := p[key]
	return v, ok
}

// Clone returns a shallow copy of the params. Each dispatched handler gets
// its own copy so concurrent invocations never share a map.
func (p Params) Clone() Params {
	if p == nil {
		return Params{}
	}
	return maps.Clone(p)
}

// With returns a copy of the params with key set to value. Layers use it to
// pass modified parameters on without mutating their input.
func (p Params) With(key, value string) Params {
	c := p.Clone()
	c[key] = value
	return c
}
