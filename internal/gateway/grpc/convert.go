package grpc

import (
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ankittk/missioncontrol/internal/gateway"
)

// toStruct converts a JSON-tagged value into a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	m := map[string]any{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("payload is not a JSON object: %w", err)
	}
	return structpb.NewStruct(m)
}

// fromStruct decodes s into the JSON-tagged value out.
func fromStruct(s *structpb.Struct, out any) error {
	if s == nil {
		s = &structpb.Struct{}
	}
	b, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

// toStatus maps gateway errors onto gRPC codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, gateway.ErrSessionNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, gateway.ErrNotConnected):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// fromStatus wraps a gRPC error with the operation's sentinel, keeping
// ErrSessionNotFound visible to errors.Is.
func fromStatus(sentinel, err error) error {
	if err == nil {
		return nil
	}
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%w: %w: %w", sentinel, gateway.ErrSessionNotFound, err)
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}
