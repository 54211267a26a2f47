package state

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/alarm-subsystem/internal/address"
	"github.com/oshokin/alarm-subsystem/internal/domain/place"
)

// Field names of the encoded snapshot.
const (
	fieldPlaceID    = "placeId"
	fieldAttributes = "attributes"
	fieldVariables  = "variables"
	fieldModels     = "models"
)

// marshalSnapshot encodes a snapshot as protobuf JSON.
func marshalSnapshot(s *place.Snapshot) ([]byte, error) {
	models := make(map[string]any, len(s.Models))
	for key, m := range s.Models {
		models[key] = stringsToAny(m.Attributes)
	}

	pbStruct, err := structpb.NewStruct(map[string]any{
		fieldPlaceID:    s.PlaceID,
		fieldAttributes: stringsToAny(s.Attributes),
		fieldVariables:  stringsToAny(s.Variables),
		fieldModels:     models,
	})
	if err != nil {
		return nil, fmt.Errorf("build snapshot struct: %w", err)
	}

	marshalOptions := protojson.MarshalOptions{
		EmitUnpopulated: true,
	}

	data, err := marshalOptions.Marshal(pbStruct)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	return data, nil
}

// unmarshalSnapshot decodes a snapshot written by marshalSnapshot.
func unmarshalSnapshot(data []byte) (*place.Snapshot, error) {
	var pbStruct structpb.Struct
	if err := protojson.Unmarshal(data, &pbStruct); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	fields := pbStruct.GetFields()
	s := place.NewSnapshot(fields[fieldPlaceID].GetStringValue())
	s.Attributes = structToStrings(fields[fieldAttributes].GetStructValue())
	s.Variables = structToStrings(fields[fieldVariables].GetStructValue())

	for key, value := range fields[fieldModels].GetStructValue().GetFields() {
		addr, err := address.Parse(key)
		if err != nil {
			return nil, fmt.Errorf("decode model %q: %w", key, err)
		}

		s.Models[key] = &place.Model{
			Address:    addr,
			Attributes: structToStrings(value.GetStructValue()),
		}
	}

	return s, nil
}

func stringsToAny(in map[string]string) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}

	return out
}

func structToStrings(in *structpb.Struct) map[string]string {
	out := make(map[string]string, len(in.GetFields()))
	for k, v := range in.GetFields() {
		out[k] = v.GetStringValue()
	}

	return out
}
