package recon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/HerbHall/switchbridge/pkg/models"
	"github.com/HerbHall/switchbridge/pkg/plugin"
)

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "GET", Path: "/switchers/scan", Handler: m.handleScanSwitchers},
		{Method: "GET", Path: "/cameras/scan", Handler: m.handleScanCameras},
	}
}

// handleScanSwitchers runs a switcher scan and returns the result.
//
//	@Summary		Scan for switchers
//	@Description	Probes every usable /24 and returns the de-duplicated switchers.
//	@Tags			recon
//	@Produce		json
//	@Success		200 {array} models.DiscoveredSwitcher
//	@Failure		409 {object} map[string]any
//	@Failure		429 {object} map[string]any
//	@Failure		503 {object} map[string]any
//	@Router			/recon/switchers/scan [get]
func (m *Module) handleScanSwitchers(w http.ResponseWriter, r *http.Request) {
	if !m.limiter.Allow() {
		reconWriteError(w, http.StatusTooManyRequests, "scan rate exceeded")
		return
	}
	// Scans run to completion even if the client goes away.
	found, err := m.ScanSwitchers(m.scanContext(r))
	if err != nil {
		m.writeScanError(w, err)
		return
	}
	if found == nil {
		found = []models.DiscoveredSwitcher{}
	}
	reconWriteJSON(w, http.StatusOK, found)
}

// handleScanCameras runs a camera scan and returns the result.
//
//	@Summary		Scan for PTZ cameras
//	@Tags			recon
//	@Produce		json
//	@Success		200 {array} models.DiscoveredCamera
//	@Failure		409 {object} map[string]any
//	@Failure		429 {object} map[string]any
//	@Router			/recon/cameras/scan [get]
func (m *Module) handleScanCameras(w http.ResponseWriter, r *http.Request) {
	if !m.limiter.Allow() {
		reconWriteError(w, http.StatusTooManyRequests, "scan rate exceeded")
		return
	}
	found, err := m.ScanCameras(m.scanContext(r))
	if err != nil {
		m.writeScanError(w, err)
		return
	}
	if found == nil {
		found = []models.DiscoveredCamera{}
	}
	reconWriteJSON(w, http.StatusOK, found)
}

func (m *Module) scanContext(r *http.Request) context.Context {
	if m.scanCtx != nil {
		return m.scanCtx
	}
	return context.WithoutCancel(r.Context())
}

func (m *Module) writeScanError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrScanInProgress):
		reconWriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrNoSubnets):
		reconWriteError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, ErrSwitcherScanUnavailable), errors.Is(err, ErrScanCancelled):
		reconWriteError(w, http.StatusServiceUnavailable, err.Error())
	default:
		m.logger.Error("scan failed", zap.Error(err))
		reconWriteError(w, http.StatusInternalServerError, "scan failed")
	}
}

// -- helpers --

func reconWriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func reconWriteError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":   "https://switchbridge.dev/problems/" + http.StatusText(status),
		"title":  http.StatusText(status),
		"status": status,
		"detail": detail,
	})
}
