package http

import (
	"errors"
	"net/http"

	"pocketledger/internal/core"
	"pocketledger/internal/log"
)

type settingsResponse struct {
	Currency         string `json:"currency"`
	DefaultCategory  string `json:"defaultCategory"`
	Theme            string `json:"theme"`
	BiometricEnabled bool   `json:"biometricEnabled"`
	PINEnabled       bool   `json:"pinEnabled"`
}

type biometricRequest struct {
	Enabled bool `json:"enabled"`
}

func toSettingsResponse(s core.Settings) settingsResponse {
	return settingsResponse{
		Currency:         s.Currency,
		DefaultCategory:  s.DefaultCategory,
		Theme:            string(s.Theme),
		BiometricEnabled: s.BiometricEnabled,
		PINEnabled:       s.PINEnabled,
	}
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toSettingsResponse(s.settings.GetSettings(r.Context())))
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch core.SettingsPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := s.settings.UpdateSettings(r.Context(), patch)
	if err != nil {
		if errors.Is(err, core.ErrUnsupportedCurrency) || patch.Validate() != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.logger.ErrorContext(r.Context(), "Failed to update settings", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "failed to update settings")
		return
	}

	writeJSON(w, http.StatusOK, toSettingsResponse(updated))
}

func (s *Server) handleSetBiometric(w http.ResponseWriter, r *http.Request) {
	var req biometricRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := s.settings.SetBiometricEnabled(r.Context(), req.Enabled)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to set biometric marker", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "failed to update settings")
		return
	}

	writeJSON(w, http.StatusOK, toSettingsResponse(updated))
}

func (s *Server) handleClearSettings(w http.ResponseWriter, r *http.Request) {
	if err := s.settings.ClearAll(r.Context()); err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to clear settings", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "failed to clear settings")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
