package rpc

import (
	"net/http"
	"strings"
)

const defaultEventLimit = 100

type eventsLatestParams struct {
	Limit int `json:"limit,omitempty"`
}

type adminPauseParams struct {
	Module string `json:"module"`
	Paused bool   `json:"paused"`
}

type adminPauseResult struct {
	Module string `json:"module"`
	Paused bool   `json:"paused"`
}

func (s *Server) handleEventsLatest(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	limit := defaultEventLimit
	if len(req.Params) == 1 {
		var params eventsLatestParams
		if err := parseParams(req, &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "invalid_params", err.Error())
			return
		}
		if params.Limit > 0 {
			limit = params.Limit
		}
	}
	if s.deps.Events == nil {
		writeResult(w, req.ID, []struct{}{})
		return
	}
	writeResult(w, req.ID, s.deps.Events.Latest(limit))
}

func (s *Server) handleAdminSetPaused(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params adminPauseParams
	if err := parseParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "invalid_params", err.Error())
		return
	}
	module := strings.TrimSpace(params.Module)
	if module == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "invalid_params", "module required")
		return
	}
	if s.deps.Pauses == nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "internal_error", "pause control not configured")
		return
	}
	if err := s.deps.Pauses.SetPaused(module, params.Paused); err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "internal_error", err.Error())
		return
	}
	s.log.Info("module pause flag updated", "module", module, "paused", params.Paused)
	writeResult(w, req.ID, adminPauseResult{Module: module, Paused: s.deps.Pauses.IsPaused(module)})
}
