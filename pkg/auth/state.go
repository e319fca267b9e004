package auth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// State is round-tripped through the identity provider as the OAuth2 state
// parameter. The nonce ties the callback to a login we started.
type State struct {
	CameFrom string `json:"came_from,omitempty"`
}

type encodedState struct {
	State
	Nonce string `json:"nonce"`
}

func (s *State) Encode(nonce string) (string, error) {
	bytes, err := json.Marshal(&encodedState{State: *s, Nonce: nonce})
	if err != nil {
		return "", fmt.Errorf("error encoding state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

func ParseState(param string) (*State, string, error) {
	if param == "" {
		return nil, "", fmt.Errorf("state is empty")
	}
	bytes, err := base64.RawURLEncoding.DecodeString(param)
	if err != nil {
		return nil, "", fmt.Errorf("error decoding state: %w", err)
	}
	decoded := &encodedState{}
	if err := json.Unmarshal(bytes, decoded); err != nil {
		return nil, "", fmt.Errorf("error parsing state: %w", err)
	}
	if decoded.Nonce == "" {
		return nil, "", fmt.Errorf("state has no nonce")
	}
	return &decoded.State, decoded.Nonce, nil
}
