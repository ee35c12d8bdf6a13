package dotdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	resumeFile = "resume.json"
)

// ResumeState records the server session the chat client last used, so the
// next "parlor chat" continues it instead of starting a new session.
type ResumeState struct {
	// Server is the base URL of the parlor server holding the session.
	Server string `json:"server"`

	// SessionID is the server-side session id.
	SessionID string `json:"session_id"`

	// Conversation is the conversation that was current on exit.
	Conversation string `json:"conversation,omitempty"`

	SavedAt time.Time `json:"saved_at"`
}

// LoadResumeState loads the resume state from a target .parlor/resume.json.
// Returns nil, nil if no resume state exists.
// If overrideDir is non-empty, it is used instead of the default location.
func (m *Manager) LoadResumeState(overrideDir string) (*ResumeState, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, resumeFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading resume state: %w", err)
	}

	state := &ResumeState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("parsing resume state: %w", err)
	}

	return state, nil
}

// SaveResumeState persists the resume state to a target .parlor/resume.json.
func (m *Manager) SaveResumeState(state *ResumeState, overrideDir string) error {
	if state == nil {
		return errors.New("cannot save nil resume state")
	}
	if state.SessionID == "" {
		return errors.New("cannot save resume state without a session id")
	}

	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling resume state: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, resumeFile), data, 0o600); err != nil {
		return fmt.Errorf("writing resume state: %w", err)
	}

	return nil
}

// ClearResumeState removes the resume state file so the next chat starts a
// new session. Returns nil if the file doesn't exist.
func (m *Manager) ClearResumeState(overrideDir string) error {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	if err := os.Remove(filepath.Join(dir, resumeFile)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("removing resume state: %w", err)
	}

	return nil
}
