package core

import (
	"errors"
	"fmt"
	"strings"
)

// Theme is the UI color scheme preference.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// SupportedCurrencies is the fixed set of currency codes the settings
// store accepts.
var SupportedCurrencies = []string{"USD", "EUR", "GBP", "JPY", "CAD", "AUD", "INR", "CHF"}

var ErrUnsupportedCurrency = errors.New("unsupported currency")

// Settings is the singleton preferences object. Exactly one exists per
// installation; the PIN is deliberately not part of it.
type Settings struct {
	Currency         string `json:"currency"`
	DefaultCategory  string `json:"defaultCategory"`
	Theme            Theme  `json:"theme"`
	BiometricEnabled bool   `json:"biometricEnabled"`
	PINEnabled       bool   `json:"pinEnabled"`
}

// SettingsPatch is a partial update: nil fields keep their prior values.
type SettingsPatch struct {
	Currency         *string `json:"currency,omitempty"`
	DefaultCategory  *string `json:"defaultCategory,omitempty"`
	Theme            *Theme  `json:"theme,omitempty"`
	BiometricEnabled *bool   `json:"biometricEnabled,omitempty"`
	PINEnabled       *bool   `json:"pinEnabled,omitempty"`
}

// DefaultSettings returns the hard-coded defaults every installation
// starts from. GetSettings merges stored values over this object so
// callers always see a fully-populated settings struct.
func DefaultSettings() Settings {
	return Settings{
		Currency:         "USD",
		DefaultCategory:  "Other",
		Theme:            ThemeLight,
		BiometricEnabled: false,
		PINEnabled:       false,
	}
}

// NormalizeCurrency canonicalizes a currency code to the stored form.
// SupportedCurrencies holds canonical codes, so membership checks and
// persisted values must agree on this form.
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Apply merges a patch over the settings and returns the result. It is a
// pure function: the receiver is not modified.
func (s Settings) Apply(p SettingsPatch) Settings {
	if p.Currency != nil {
		s.Currency = NormalizeCurrency(*p.Currency)
	}
	if p.DefaultCategory != nil {
		s.DefaultCategory = *p.DefaultCategory
	}
	if p.Theme != nil {
		s.Theme = *p.Theme
	}
	if p.BiometricEnabled != nil {
		s.BiometricEnabled = *p.BiometricEnabled
	}
	if p.PINEnabled != nil {
		s.PINEnabled = *p.PINEnabled
	}
	return s
}

func (t Theme) Validate() error {
	switch t {
	case ThemeLight, ThemeDark:
		return nil
	default:
		return fmt.Errorf("invalid theme %q: must be %q or %q", string(t), ThemeLight, ThemeDark)
	}
}

// Validate rejects patches that would put the settings object into an
// unsupported state.
func (p SettingsPatch) Validate() error {
	if p.Currency != nil {
		code := NormalizeCurrency(*p.Currency)
		supported := false
		for _, c := range SupportedCurrencies {
			if c == code {
				supported = true
				break
			}
		}
		if !supported {
			return fmt.Errorf("%w: %q", ErrUnsupportedCurrency, *p.Currency)
		}
	}
	if p.DefaultCategory != nil && strings.TrimSpace(*p.DefaultCategory) == "" {
		return ErrEmptyCategory
	}
	if p.Theme != nil {
		if err := p.Theme.Validate(); err != nil {
			return err
		}
	}
	return nil
}
