package dotdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

const sessionFile = "session.json"

// Session is the chat transcript saved between "lokal chat" runs so that a
// conversation can be resumed. Long-term facts live in the fact store, not
// here.
type Session struct {
	Provider string           `json:"provider,omitempty"`
	Model    string           `json:"model,omitempty"`
	Messages []SessionMessage `json:"messages"`
}

// SessionMessage is one message of the saved transcript.
type SessionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Trim keeps at most the last n messages.
func (s *Session) Trim(n int) {
	if n >= 0 && len(s.Messages) > n {
		s.Messages = append([]SessionMessage(nil), s.Messages[len(s.Messages)-n:]...)
	}
}

// LoadSession loads session.json. It returns nil, nil when no session was
// saved.
func (m *Manager) LoadSession(overrideDir string) (*Session, error) {
	path, err := m.File(sessionFile, overrideDir)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading session: %w", err)
	}

	s := &Session{}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing session: %w", err)
	}
	return s, nil
}

// SaveSession persists s to session.json.
func (m *Manager) SaveSession(s *Session, overrideDir string) error {
	if s == nil {
		return errors.New("cannot save nil session")
	}

	path, err := m.File(sessionFile, overrideDir)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing session: %w", err)
	}
	return nil
}

// ClearSession removes session.json. A missing file is not an error.
func (m *Manager) ClearSession(overrideDir string) error {
	path, err := m.File(sessionFile, overrideDir)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing session: %w", err)
	}
	return nil
}
