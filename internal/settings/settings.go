// Package settings owns the singleton preferences object and the
// separately-protected PIN. Preferences live as one JSON blob in the
// general kv store; the PIN and the biometric marker live in the
// protected store.
package settings

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"

	"pocketledger/internal/core"
	"pocketledger/internal/kv"
	"pocketledger/internal/log"
	"pocketledger/internal/secure"
)

const (
	settingsKey        = "settings"
	pinKey             = "pin"
	biometricMarkerKey = "biometric_enabled"
)

// Store mediates all settings and PIN access. Construct one at startup
// and pass it by reference.
type Store struct {
	kv     *kv.Store
	secure *secure.Store
	logger *log.Logger
}

func New(kvStore *kv.Store, secureStore *secure.Store, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentSettings)
	}
	return &Store{kv: kvStore, secure: secureStore, logger: logger}
}

// GetSettings returns the persisted settings merged over the hard-coded
// defaults, so every field always has a value. Read failures fall back to
// the defaults.
func (s *Store) GetSettings(ctx context.Context) core.Settings {
	defaults := core.DefaultSettings()

	raw, err := s.kv.Get(ctx, settingsKey)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to read settings, using defaults", log.FieldError, err)
		return defaults
	}
	if raw == nil {
		return defaults
	}

	// Unmarshaling over the defaults keeps prior values for any field the
	// stored blob does not mention.
	merged := defaults
	if err := json.Unmarshal(raw, &merged); err != nil {
		s.logger.WarnContext(ctx, "Stored settings are malformed, using defaults", log.FieldError, err)
		return defaults
	}
	return merged
}

// UpdateSettings merges a partial patch over the current settings,
// persists the result, and returns it. Write failures propagate.
func (s *Store) UpdateSettings(ctx context.Context, patch core.SettingsPatch) (core.Settings, error) {
	if err := patch.Validate(); err != nil {
		return core.Settings{}, err
	}

	merged := s.GetSettings(ctx).Apply(patch)

	raw, err := json.Marshal(merged)
	if err != nil {
		return core.Settings{}, fmt.Errorf("marshal settings: %w", err)
	}
	if err := s.kv.Set(ctx, settingsKey, raw); err != nil {
		return core.Settings{}, fmt.Errorf("persist settings: %w", err)
	}

	s.logger.InfoContext(ctx, "Settings updated")
	return merged, nil
}

// SetPIN stores the PIN in the protected store.
func (s *Store) SetPIN(ctx context.Context, pin string) error {
	if pin == "" {
		return fmt.Errorf("pin must not be empty")
	}
	if err := s.secure.Set(ctx, pinKey, []byte(pin)); err != nil {
		return fmt.Errorf("store pin: %w", err)
	}
	return nil
}

// VerifyPIN compares the candidate against the stored PIN in constant
// time. An absent PIN never matches.
func (s *Store) VerifyPIN(ctx context.Context, candidate string) (bool, error) {
	stored, err := s.secure.Get(ctx, pinKey)
	if err != nil {
		return false, fmt.Errorf("read pin: %w", err)
	}
	if stored == nil {
		return false, nil
	}
	return subtle.ConstantTimeCompare(stored, []byte(candidate)) == 1, nil
}

// ClearPIN removes the stored PIN.
func (s *Store) ClearPIN(ctx context.Context) error {
	if err := s.secure.Delete(ctx, pinKey); err != nil {
		return fmt.Errorf("clear pin: %w", err)
	}
	return nil
}

// HasPIN reports whether a PIN is stored without revealing it.
func (s *Store) HasPIN(ctx context.Context) (bool, error) {
	return s.secure.Has(ctx, pinKey)
}

// SetBiometricEnabled flips the settings flag and keeps the companion
// marker in the protected store in sync: set when enabling, cleared when
// disabling.
func (s *Store) SetBiometricEnabled(ctx context.Context, enabled bool) (core.Settings, error) {
	merged, err := s.UpdateSettings(ctx, core.SettingsPatch{BiometricEnabled: &enabled})
	if err != nil {
		return core.Settings{}, err
	}

	if enabled {
		if err := s.secure.Set(ctx, biometricMarkerKey, []byte("true")); err != nil {
			return core.Settings{}, fmt.Errorf("store biometric marker: %w", err)
		}
	} else {
		if err := s.secure.Delete(ctx, biometricMarkerKey); err != nil {
			return core.Settings{}, fmt.Errorf("clear biometric marker: %w", err)
		}
	}

	return merged, nil
}

// ClearAll removes the settings blob, the PIN, and the biometric marker.
func (s *Store) ClearAll(ctx context.Context) error {
	if err := s.kv.Delete(ctx, settingsKey); err != nil {
		return fmt.Errorf("clear settings: %w", err)
	}
	if err := s.secure.Delete(ctx, pinKey); err != nil {
		return fmt.Errorf("clear pin: %w", err)
	}
	if err := s.secure.Delete(ctx, biometricMarkerKey); err != nil {
		return fmt.Errorf("clear biometric marker: %w", err)
	}
	s.logger.WarnContext(ctx, "All settings cleared")
	return nil
}
