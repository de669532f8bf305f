package serde

import (
	"google.golang.org/protobuf/proto"
)

type protobufSerde[T proto.Message] struct{}

// Protobuf returns a Serde for generated protobuf message types. T must be a
// pointer type; Deserialise allocates a fresh message per call.
func Protobuf[T proto.Message]() Serde[T] {
	return protobufSerde[T]{}
}

func (s protobufSerde[T]) Serialise(topic string, value T) ([]byte, error) {
	return proto.Marshal(value)
}

func (s protobufSerde[T]) Deserialise(topic string, data []byte) (T, error) {
	var result T
	msg := result.ProtoReflect().New().Interface().(T)
	err := proto.Unmarshal(data, msg)
	return msg, err
}
