package backup

import (
	"encoding/json"
	"fmt"
)

// State is the per-snapshot record stored in the backer:state property.
// Stored flips to true once the snapshot's stream is safely on the remote.
// Indexes maps bucket kinds to the remote paths already published for this
// snapshot, so republishing can skip buckets that are current.
type State struct {
	Meta    Meta              `json:"meta"`
	Stored  bool              `json:"stored"`
	Indexes map[string]string `json:"indexes"`
}

// NewState returns the initial state for a freshly created snapshot.
func NewState(meta Meta) State {
	return State{
		Meta:    meta,
		Indexes: make(map[string]string),
	}
}

// EncodeState serializes a state for storage in a ZFS user property.
func EncodeState(state State) (string, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("encode snapshot state: %w", err)
	}
	return string(data), nil
}

// DecodeState parses a state read back from a ZFS user property.
func DecodeState(data string) (State, error) {
	var state State
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return State{}, fmt.Errorf("decode snapshot state: %w", err)
	}
	if state.Indexes == nil {
		state.Indexes = make(map[string]string)
	}
	return state, nil
}

// IndexEntry is the document published to remote index paths. It wraps the
// snapshot metadata so the format can grow without breaking readers.
type IndexEntry struct {
	Meta Meta `json:"meta"`
}

// EncodeIndexEntry serializes an index document.
func EncodeIndexEntry(entry IndexEntry) ([]byte, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("encode index entry: %w", err)
	}
	return data, nil
}

// DecodeIndexEntry parses an index document fetched from a remote.
func DecodeIndexEntry(data []byte) (IndexEntry, error) {
	var entry IndexEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return IndexEntry{}, fmt.Errorf("decode index entry: %w", err)
	}
	return entry, nil
}
