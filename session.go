package main

import (
	"encoding/json"
	"errors"
	"log"
)

// SessionManager loads and saves per-user conversation state. Every
// interaction is wrapped as load, handle, save; the save fully replaces the
// stored bag.
type SessionManager struct {
	repo Repository
}

// NewSessionManager creates a new SessionManager
func NewSessionManager(repo Repository) *SessionManager {
	return &SessionManager{repo: repo}
}

// Load returns the stored bag for a user, provisioning an empty one on first
// use. Provisioning is idempotent: loading twice before any save yields the
// same default.
func (m *SessionManager) Load(telegramID string) (*StateBag, error) {
	blob, err := m.repo.LoadSession(telegramID)
	if errors.Is(err, ErrNotFound) {
		if err := m.repo.SaveSession(telegramID, "{}"); err != nil {
			return nil, err
		}
		return &StateBag{}, nil
	}
	if err != nil {
		return nil, err
	}
	var bag StateBag
	if err := json.Unmarshal([]byte(blob), &bag); err != nil {
		// A corrupt blob resets the conversation rather than wedging the user.
		log.Printf("session %s: corrupt blob, resetting: %v", telegramID, err)
		return &StateBag{}, nil
	}
	return &bag, nil
}

// Save overwrites the stored bag for a user.
func (m *SessionManager) Save(telegramID string, bag *StateBag) error {
	blob, err := json.Marshal(bag)
	if err != nil {
		return err
	}
	return m.repo.SaveSession(telegramID, string(blob))
}
