// Copyright 2023 Greptime Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package failover

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/greptime/region-control/pkg/errs"
	"github.com/greptime/region-control/pkg/meta"
)

// wireState is State's persisted shape: Kind plus whichever payload fields
// the variant carries, per §6's "persisted failover-procedure state". This
// is the explicit discriminant + payload the REDESIGN FLAGS note calls for,
// replacing the original's name-tagged dynamic-dispatch serialization.
//
// Version records the ProcedureVersion that wrote the record, so a resumed
// procedure written with a version older than MinProcedureVersion can be
// rejected instead of misinterpreted (mirroring the teacher's IsFeatureSupported semver gate,
// here applied to persisted procedure state rather than a cluster feature).
type wireState struct {
	Version   string     `json:"version"`
	Kind      Kind       `json:"kind"`
	Candidate *meta.Peer `json:"candidate,omitempty"`
}

func encodeState(s State) ([]byte, error) {
	w := wireState{Version: ProcedureVersion, Kind: s.Kind()}
	if u, ok := s.(UpdateRegionMetadata); ok {
		candidate := u.Candidate
		w.Candidate = &candidate
	}
	return json.Marshal(w)
}

func decodeState(data []byte) (State, error) {
	var w wireState
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, errs.Wrap(errs.KindTableMetadataManager, err, "decode persisted failover state")
	}
	if w.Version != "" {
		if err := CheckProcedureVersion(w.Version); err != nil {
			return nil, err
		}
	}
	switch w.Kind {
	case KindDetected:
		return Detected{}, nil
	case KindElectCandidate:
		return ElectCandidate{}, nil
	case KindUpdateRegionMetadata:
		if w.Candidate == nil {
			return nil, errs.New(errs.KindTableMetadataManager, "persisted UpdateRegionMetadata state missing candidate")
		}
		return UpdateRegionMetadata{Candidate: *w.Candidate}, nil
	case KindInvalidateCache:
		return InvalidateCache{}, nil
	case KindDone:
		return Done{}, nil
	default:
		return nil, errs.New(errs.KindTableMetadataManager, "unknown persisted failover state kind %q", w.Kind)
	}
}

// ProcedureStore durably persists one state per in-flight failover
// procedure, so the controller may crash and resume (§4.E).
type ProcedureStore interface {
	SaveState(ctx context.Context, procedureID string, s State) error
	LoadState(ctx context.Context, procedureID string) (State, bool, error)
	DeleteState(ctx context.Context, procedureID string) error
}

// MemProcedureStore is an in-memory ProcedureStore for tests.
type MemProcedureStore struct {
	mu    sync.Mutex
	items map[string][]byte
}

// NewMemProcedureStore builds a ready-to-use MemProcedureStore.
func NewMemProcedureStore() *MemProcedureStore {
	return &MemProcedureStore{items: make(map[string][]byte)}
}

// SaveState implements ProcedureStore.
func (m *MemProcedureStore) SaveState(_ context.Context, procedureID string, s State) error {
	data, err := encodeState(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.items[procedureID] = data
	m.mu.Unlock()
	return nil
}

// LoadState implements ProcedureStore.
func (m *MemProcedureStore) LoadState(_ context.Context, procedureID string) (State, bool, error) {
	m.mu.Lock()
	data, ok := m.items[procedureID]
	m.mu.Unlock()
	if !ok {
		return nil, false, nil
	}
	s, err := decodeState(data)
	if err != nil {
		return nil, false, err
	}
	return s, true, nil
}

// DeleteState implements ProcedureStore.
func (m *MemProcedureStore) DeleteState(_ context.Context, procedureID string) error {
	m.mu.Lock()
	delete(m.items, procedureID)
	m.mu.Unlock()
	return nil
}
