// Package serde encodes and decodes JSON with a shared codec handle.
package serde

import (
	"sync"

	"github.com/ugorji/go/codec"
)

// resolver holds an encoder and decoder.
type resolver struct {
	jsonEncoder *codec.Encoder
	jsonDecoder *codec.Decoder
	jsonHandle  codec.JsonHandle

	jsonData []byte

	jsonMu sync.Mutex
}

var gendecoder = newResolver()

func newResolver() *resolver {
	r := &resolver{}

	r.jsonHandle = codec.JsonHandle{}
	r.jsonHandle.ErrorIfNoField = true
	r.jsonHandle.ErrorIfNoArrayExpand = true
	r.jsonHandle.HTMLCharsAsIs = true
	r.jsonHandle.TypeInfos = codec.NewTypeInfos([]string{"json"})

	r.jsonData = make([]byte, 0, 4096)
	r.jsonEncoder = codec.NewEncoderBytes(&r.jsonData, &r.jsonHandle)
	r.jsonDecoder = codec.NewDecoderBytes(nil, &r.jsonHandle)

	return r
}

// MarshalJson encodes v as JSON. The returned slice is owned by the caller.
func MarshalJson[T any](v T) ([]byte, error) {
	gendecoder.jsonMu.Lock()
	defer gendecoder.jsonMu.Unlock()

	gendecoder.jsonData = gendecoder.jsonData[:0]
	gendecoder.jsonEncoder.ResetBytes(&gendecoder.jsonData)

	if err := gendecoder.jsonEncoder.Encode(v); err != nil {
		return nil, err
	}

	return append([]byte(nil), gendecoder.jsonData...), nil
}

// UnmarshalJson decodes JSON data into marshalTo, which must be a pointer.
func UnmarshalJson[T any](data []byte, marshalTo T) error {
	gendecoder.jsonMu.Lock()
	defer gendecoder.jsonMu.Unlock()

	gendecoder.jsonDecoder.ResetBytes(data)

	return gendecoder.jsonDecoder.Decode(marshalTo)
}
