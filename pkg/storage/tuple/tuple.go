// Package tuple defines the fixed-layout record stored in heap pages: an
// int64 key plus an opaque payload, the same key type the B+tree index
// maps to a primitives.RID.
package tuple

// Tuple is a single stored record: a key (the value the B+tree indexes)
// and an opaque payload the engine never interprets.
type Tuple struct {
	Key     int64
	Payload []byte
}

func New(key int64, payload []byte) *Tuple {
	return &Tuple{Key: key, Payload: append([]byte{}, payload...)}
}
