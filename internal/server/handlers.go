package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/leapstack-labs/fhirsql/internal/runner"
	"github.com/leapstack-labs/fhirsql/pkg/adapter"
	"github.com/leapstack-labs/fhirsql/pkg/compiler"
	"github.com/leapstack-labs/fhirsql/pkg/dialect"
)

const maxBodyBytes = 1 << 20

// CompileRequest is the body of POST /compile.
type CompileRequest struct {
	Expression   string `json:"expression"`
	ResourceType string `json:"resourceType"`
	Dialect      string `json:"dialect"`
}

// CTEInfo describes one CTE of a compiled statement.
type CTEInfo struct {
	Name      string   `json:"name"`
	DependsOn []string `json:"dependsOn,omitempty"`
}

// CompileResponse is the body of a successful POST /compile.
type CompileResponse struct {
	SQL          string    `json:"sql"`
	Dialect      string    `json:"dialect"`
	Type         string    `json:"type"`
	IsCollection bool      `json:"isCollection"`
	CTEs         []CTEInfo `json:"ctes"`
}

// EvaluateRequest is the body of POST /evaluate.
type EvaluateRequest struct {
	Expression   string `json:"expression"`
	ResourceType string `json:"resourceType"`
}

// EvaluateRow is one resource's result.
type EvaluateRow struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
}

// EvaluateResponse is the body of a successful POST /evaluate.
type EvaluateResponse struct {
	SQL  string        `json:"sql"`
	Rows []EvaluateRow `json:"rows"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Stage string `json:"stage,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDialects(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{
		"dialects": dialect.List(),
		"adapters": adapter.ListAdapters(),
	})
}

func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	var req CompileRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if req.Expression == "" || req.ResourceType == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "expression and resourceType are required"})
		return
	}
	if req.Dialect == "" {
		req.Dialect = "duckdb"
	}

	c, err := s.compilerFor(req.Dialect)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	res, err := c.Compile(req.Expression, req.ResourceType)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Stage: compiler.Stage(err)})
		return
	}

	resp := CompileResponse{
		SQL:          res.SQL,
		Dialect:      c.Dialect().Name(),
		Type:         res.Type.String(),
		IsCollection: res.IsCollection,
		CTEs:         make([]CTEInfo, len(res.CTEs)),
	}
	for i, c := range res.CTEs {
		resp.CTEs[i] = CTEInfo{Name: c.Name, DependsOn: c.DependsOn}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeJSON(w, http.StatusNotImplemented, ErrorResponse{Error: "no database target is attached"})
		return
	}

	var req EvaluateRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if req.Expression == "" || req.ResourceType == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "expression and resourceType are required"})
		return
	}

	res, err := s.runner.Evaluate(r.Context(), req.Expression, req.ResourceType)
	if err != nil {
		var ee *adapter.ExecutionError
		if errors.As(err, &ee) {
			s.logger.Error("evaluate failed", slog.String("expression", req.Expression), slog.Any("error", err))
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: ee.Err.Error(), Stage: "execute"})
			return
		}
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Stage: compiler.Stage(err)})
		return
	}

	resp := EvaluateResponse{SQL: res.Compiled.SQL, Rows: make([]EvaluateRow, len(res.Rows))}
	for i, row := range res.Rows {
		resp.Rows[i] = EvaluateRow{ID: row.ID, Result: json.RawMessage(runner.Render(row.Result))}
	}
	writeJSON(w, http.StatusOK, resp)
}

func decodeRequest(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
