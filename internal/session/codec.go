package session

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrUnknownKind = errors.New("unknown_session_kind")

type envelope struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Encode writes s as {"kind": ..., "data": ...}.
func Encode(s State) ([]byte, error) {
	if s == nil {
		s = Idle{}
	}
	env := envelope{Kind: s.Kind()}
	if _, idle := s.(Idle); !idle {
		data, err := json.Marshal(s)
		if err != nil {
			return nil, err
		}
		env.Data = data
	}
	return json.Marshal(env)
}

func Decode(raw []byte) (State, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	switch env.Kind {
	case KindIdle, "":
		return Idle{}, nil
	case KindDraftingCampaign:
		return decodeInto[DraftingCampaign](env.Data)
	case KindDraftingOffer:
		return decodeInto[DraftingOffer](env.Data)
	case KindUploadingPhoto:
		return decodeInto[UploadingPhoto](env.Data)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
}

func decodeInto[T State](data json.RawMessage) (State, error) {
	var v T
	if len(data) > 0 {
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
	}
	return v, nil
}
