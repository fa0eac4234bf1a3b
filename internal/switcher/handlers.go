package switcher

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/HerbHall/switchbridge/pkg/models"
	"github.com/HerbHall/switchbridge/pkg/plugin"
)

// connectRequest is the JSON body for POST /connect.
type connectRequest struct {
	IP string `json:"ip"`
}

// programRequest is the JSON body for POST /program. Input is a number or
// an alias such as "mp1".
type programRequest struct {
	Input      json.RawMessage `json:"input"`
	Transition string          `json:"transition"`
}

// macroRequest is the JSON body for POST /macro.
type macroRequest struct {
	Index *int `json:"index"`
}

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "POST", Path: "/connect", Handler: m.handleConnect},
		{Method: "POST", Path: "/program", Handler: m.handleProgram},
		{Method: "POST", Path: "/macro", Handler: m.handleMacro},
		{Method: "GET", Path: "/state", Handler: m.handleState},
	}
}

// handleConnect replaces the active connection.
//
//	@Summary		Connect to a switcher
//	@Tags			switcher
//	@Accept			json
//	@Produce		plain
//	@Param			body body connectRequest true "Switcher address"
//	@Success		202 {string} string
//	@Failure		400 {object} map[string]any
//	@Router			/switcher/connect [post]
func (m *Module) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IP == "" {
		switcherWriteError(w, http.StatusBadRequest, "missing ip")
		return
	}
	if err := m.coord.Connect(r.Context(), req.IP); err != nil {
		m.logger.Warn("connect request failed", zap.String("ip", req.IP), zap.Error(err))
		switcherWriteError(w, http.StatusBadGateway, err.Error())
		return
	}
	switcherWriteText(w, http.StatusAccepted, "Connecting to switcher at "+req.IP)
}

// handleProgram takes an input to program.
//
//	@Summary		Switch program input
//	@Tags			switcher
//	@Accept			json
//	@Produce		plain
//	@Param			body body programRequest true "Input and transition"
//	@Success		200 {string} string
//	@Failure		400 {object} map[string]any
//	@Failure		409 {object} map[string]any
//	@Router			/switcher/program [post]
func (m *Module) handleProgram(w http.ResponseWriter, r *http.Request) {
	var req programRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		switcherWriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	input, err := m.parseInput(req.Input)
	if err != nil {
		switcherWriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	kind := ParseTransition(req.Transition)

	queued, err := m.coord.RequestSwitch(input, kind)
	switch {
	case errors.Is(err, ErrNotConnected):
		switcherWriteError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, ErrInputNotAllowed):
		switcherWriteError(w, http.StatusBadRequest, fmt.Sprintf("Input %d is not allowed on this switcher model.", input))
		return
	case err != nil:
		m.logger.Warn("switch request failed", zap.Int("input", input), zap.Error(err))
		switcherWriteError(w, http.StatusBadGateway, err.Error())
		return
	}

	suffix := ""
	if queued {
		suffix = " (queued)"
	}
	switcherWriteText(w, http.StatusOK, fmt.Sprintf("Handled input %d, transition=%s%s", input, kind, suffix))
}

// handleMacro runs a macro.
//
//	@Summary		Run a macro
//	@Tags			switcher
//	@Accept			json
//	@Produce		plain
//	@Param			body body macroRequest true "Macro index"
//	@Success		200 {string} string
//	@Failure		400 {object} map[string]any
//	@Failure		409 {object} map[string]any
//	@Failure		501 {object} map[string]any
//	@Router			/switcher/macro [post]
func (m *Module) handleMacro(w http.ResponseWriter, r *http.Request) {
	var req macroRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		switcherWriteError(w, http.StatusBadRequest, "invalid macro index")
		return
	}
	if req.Index == nil {
		// The connected check comes first, as for every command.
		if m.coord.Snapshot().Status != models.StatusConnected {
			switcherWriteError(w, http.StatusConflict, ErrNotConnected.Error())
			return
		}
		switcherWriteError(w, http.StatusBadRequest, "invalid macro index")
		return
	}

	err := m.coord.RunMacro(*req.Index)
	switch {
	case err == nil:
		switcherWriteText(w, http.StatusOK, fmt.Sprintf("Macro %d triggered", *req.Index))
	case errors.Is(err, ErrNotConnected):
		switcherWriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidMacro):
		switcherWriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrMacroUnavailable):
		switcherWriteError(w, http.StatusNotImplemented, err.Error())
	default:
		m.logger.Warn("macro failed", zap.Int("index", *req.Index), zap.Error(err))
		switcherWriteError(w, http.StatusBadGateway, "macro execution failed")
	}
}

// handleState returns the connection snapshot.
//
//	@Summary		Connection state
//	@Tags			switcher
//	@Produce		json
//	@Success		200 {object} State
//	@Router			/switcher/state [get]
func (m *Module) handleState(w http.ResponseWriter, _ *http.Request) {
	switcherWriteJSON(w, http.StatusOK, m.coord.Snapshot())
}

// parseInput accepts a JSON number or a string that is numeric or an alias.
func (m *Module) parseInput(raw json.RawMessage) (int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, errors.New("missing input")
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("invalid input %s", strconv.Quote(string(raw)))
	}
	return m.catalog.ResolveInput(s)
}

// -- helpers --

func switcherWriteText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func switcherWriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func switcherWriteError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":   "https://switchbridge.dev/problems/" + http.StatusText(status),
		"title":  http.StatusText(status),
		"status": status,
		"detail": detail,
	})
}
