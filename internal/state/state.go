package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/stackform-io/stackform/internal/ir"
)

// Manager is the local-file state store. All writes go through an atomic
// temp-file-and-rename so a crash never leaves a torn state file.
type Manager struct {
	path string

	mu     sync.Mutex
	cached *ir.State
}

func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Load reads the state file. A missing file yields a fresh empty state.
// Encrypted state is transparently decrypted.
func (m *Manager) Load(ctx context.Context) (*ir.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadLocked()
}

func (m *Manager) loadLocked() (*ir.State, error) {
	if m.cached != nil {
		return m.cached, nil
	}

	raw, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		st := ir.NewState()
		st.Lineage = uuid.NewString()
		m.cached = st
		return st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file %s: %w", m.path, err)
	}

	raw, err = Decrypt(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt state: %w", err)
	}

	st, err := decodeState(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse state file %s: %w", m.path, err)
	}
	m.cached = st
	return st, nil
}

// Put persists a single record and bumps the serial.
func (m *Manager) Put(ctx context.Context, rec *ir.StateRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.loadLocked()
	if err != nil {
		return err
	}
	st.Records[rec.ID] = rec
	st.Serial++
	return m.writeLocked(st)
}

// Remove deletes a single record and bumps the serial.
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.loadLocked()
	if err != nil {
		return err
	}
	if _, ok := st.Records[id]; !ok {
		return nil
	}
	delete(st.Records, id)
	st.Serial++
	return m.writeLocked(st)
}

func (m *Manager) writeLocked(st *ir.State) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	content, err := encodeState(st)
	if err != nil {
		return err
	}

	encrypted, err := Encrypt(content)
	if err != nil {
		return fmt.Errorf("failed to encrypt state: %w", err)
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, encrypted, 0600); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// decodeState parses and version-checks a raw state document.
func decodeState(raw []byte) (*ir.State, error) {
	var st ir.State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, err
	}
	if st.Version > ir.StateVersion {
		return nil, fmt.Errorf("state version %d is newer than supported version %d", st.Version, ir.StateVersion)
	}
	if st.Version == 0 {
		st.Version = ir.StateVersion
	}
	if st.Records == nil {
		st.Records = make(map[string]*ir.StateRecord)
	}
	if st.Lineage == "" {
		st.Lineage = uuid.NewString()
	}
	return &st, nil
}

func encodeState(st *ir.State) ([]byte, error) {
	content, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode state: %w", err)
	}
	return append(content, '\n'), nil
}
