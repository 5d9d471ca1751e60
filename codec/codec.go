// Package codec converts typed values to and from the bytes a kv.Store holds.
package codec

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// Serializer encodes and decodes values of a single type.
type Serializer[T any] interface {
	Marshal(v T) ([]byte, error)
	Unmarshal(data []byte) (T, error)
}

type jsonSerializer[T any] struct{}

// JSON stores values as self-describing JSON. Used for records an operator
// may want to read straight out of Redis (sessions, API keys).
func JSON[T any]() Serializer[T] {
	return jsonSerializer[T]{}
}

func (jsonSerializer[T]) Marshal(v T) ([]byte, error) {
	buf, err := json.Marshal(v)
	return buf, errors.Wrap(err, "codec: json marshal")
}

func (jsonSerializer[T]) Unmarshal(data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		var zero T
		return zero, errors.Wrap(err, "codec: json unmarshal")
	}
	return v, nil
}

type msgpackSerializer[T any] struct{}

// Msgpack is the compact encoding used for cache values.
func Msgpack[T any]() Serializer[T] {
	return msgpackSerializer[T]{}
}

func (msgpackSerializer[T]) Marshal(v T) ([]byte, error) {
	buf, err := msgpack.Marshal(v)
	return buf, errors.Wrap(err, "codec: msgpack marshal")
}

func (msgpackSerializer[T]) Unmarshal(data []byte) (T, error) {
	var v T
	if err := msgpack.Unmarshal(data, &v); err != nil {
		var zero T
		return zero, errors.Wrap(err, "codec: msgpack unmarshal")
	}
	return v, nil
}
