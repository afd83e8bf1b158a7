package store

import (
	"database/sql"
)

// Setting keys used by the service.
const (
	SettingPromptVariant = "prompt_variant"
	SettingLLMModel      = "llm_model"
)

// SetSetting upserts a key-value pair in the settings table.
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(s.rebind(
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`),
		key, value, value,
	)
	return err
}

// GetSetting returns the value for a settings key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow(s.rebind(`SELECT value FROM settings WHERE key = ?`), key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}
