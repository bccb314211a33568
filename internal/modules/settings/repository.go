// Package settings provides the repository for generic keyed application settings.
// Settings are key-value pairs stored in config.db (base currency, reconciliation
// state, feed staleness thresholds, refresh schedule overrides, etc.).
//
// Values are stored as strings and converted to appropriate types when retrieved.
// The repository provides type-safe getters and setters for convenience; callers
// that need structured values use GetJSON/SetJSON.
package settings

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// Repository handles settings database operations.
type Repository struct {
	db  *sql.DB        // config.db - settings table
	log zerolog.Logger // Structured logger
}

// NewRepository creates a new settings repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "settings").Logger(),
	}
}

// Get retrieves a setting value by key.
// Returns nil if the setting doesn't exist (not an error).
func (r *Repository) Get(key string) (*string, error) {
	var value string
	err := r.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return &value, nil
}

// Set sets a setting value.
// The description is optional and can be used to document the setting's purpose.
func (r *Repository) Set(key string, value string, description *string) error {
	now := time.Now().Unix()

	if description != nil {
		_, err := r.db.Exec(`
			INSERT INTO settings (key, value, description, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				value = excluded.value,
				description = excluded.description,
				updated_at = excluded.updated_at
		`, key, value, *description, now)
		return err
	}

	_, err := r.db.Exec(`
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, value, now)
	return err
}

// Delete deletes a setting.
// This operation is idempotent - it does not error if the setting doesn't exist.
func (r *Repository) Delete(key string) error {
	_, err := r.db.Exec("DELETE FROM settings WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("failed to delete setting %s: %w", key, err)
	}
	return nil
}

// GetAll retrieves all settings as a map.
func (r *Repository) GetAll() (map[string]string, error) {
	rows, err := r.db.Query("SELECT key, value FROM settings")
	if err != nil {
		return nil, fmt.Errorf("failed to get all settings: %w", err)
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			r.log.Warn().Err(err).Msg("Failed to scan setting row")
			continue
		}
		result[key] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating settings: %w", err)
	}

	return result, nil
}

// GetFloat retrieves a setting value as float64.
// Returns defaultValue if the setting doesn't exist or parsing fails.
func (r *Repository) GetFloat(key string, defaultValue float64) (float64, error) {
	value, err := r.Get(key)
	if err != nil {
		return defaultValue, err
	}
	if value == nil {
		return defaultValue, nil
	}

	floatVal, err := strconv.ParseFloat(*value, 64)
	if err != nil {
		r.log.Warn().
			Err(err).
			Str("key", key).
			Str("value", *value).
			Msg("Failed to parse float setting")
		return defaultValue, nil
	}

	return floatVal, nil
}

// GetBool retrieves a setting value as boolean.
// Recognizes truthy values: "true", "1", "yes", "on".
func (r *Repository) GetBool(key string, defaultValue bool) (bool, error) {
	value, err := r.Get(key)
	if err != nil {
		return defaultValue, err
	}
	if value == nil {
		return defaultValue, nil
	}

	v := *value
	if v == "true" || v == "1" || v == "yes" || v == "on" {
		return true, nil
	}

	return false, nil
}

// GetJSON retrieves a setting value and unmarshals it into dest.
// Returns (false, nil) if the setting doesn't exist.
func (r *Repository) GetJSON(key string, dest any) (bool, error) {
	value, err := r.Get(key)
	if err != nil {
		return false, err
	}
	if value == nil {
		return false, nil
	}

	if err := json.Unmarshal([]byte(*value), dest); err != nil {
		return false, fmt.Errorf("failed to decode setting %s: %w", key, err)
	}
	return true, nil
}

// SetJSON marshals src and stores it under key.
func (r *Repository) SetJSON(key string, src any) error {
	data, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("failed to encode setting %s: %w", key, err)
	}
	return r.Set(key, string(data), nil)
}
