package server

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/tracker/internal/model"
)

// toStruct converts v to a Struct through its JSON encoding. v must encode
// to a JSON object.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding response: %w", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, fmt.Errorf("converting response: %w", err)
	}
	return out, nil
}

// fromStruct decodes in into v using v's JSON field names. A nil in leaves
// v untouched.
func fromStruct(in *structpb.Struct, v any) error {
	if in == nil {
		return nil
	}
	b, err := protojson.Marshal(in)
	if err != nil {
		return fmt.Errorf("converting request: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return model.Invalid("request", "malformed request: %v", err)
	}
	return nil
}
