package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/pesadb/pesadb/internal/engine"
	"github.com/pesadb/pesadb/internal/types"
)

// APIResponse wraps every API response with success/error info.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"` // error category when Success is false
}

// QueryRequest is the body for POST /api/query.
type QueryRequest struct {
	SQL string `json:"sql"`
}

// QueryResponse carries the rows or the mutation message.
type QueryResponse struct {
	Columns  []string `json:"columns,omitempty"`
	Rows     [][]any  `json:"rows,omitempty"`
	RowCount int      `json:"row_count"`
	Message  string   `json:"message,omitempty"`
}

// TableListResponse lists every table name.
type TableListResponse struct {
	Tables []string `json:"tables"`
}

// ColumnInfo describes one column of a table.
type ColumnInfo struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	PrimaryKey bool   `json:"primary_key"`
	NotNull    bool   `json:"not_null"`
	References string `json:"references,omitempty"`
}

// TableSchemaResponse describes a table's structure.
type TableSchemaResponse struct {
	Name    string       `json:"name"`
	Columns []ColumnInfo `json:"columns"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, APIResponse{Success: false, Error: message, Kind: kind})
}

// valueToJSON converts a cell into its JSON form. Timestamps render as
// their textual layout; NULL becomes JSON null.
func valueToJSON(v types.Value) any {
	switch v.Kind() {
	case types.KindNull:
		return nil
	case types.KindInteger:
		return v.Int()
	case types.KindText:
		return v.Text()
	case types.KindBoolean:
		return v.Bool()
	default:
		return v.String()
	}
}

// statusFor maps an error category to an HTTP status.
func statusFor(cat engine.Category) int {
	switch cat {
	case engine.CategorySyntax, engine.CategorySemantic:
		return http.StatusBadRequest
	case engine.CategoryConstraint:
		return http.StatusConflict
	case engine.CategoryStorage, engine.CategoryInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}

// handleHealth answers liveness probes.
// GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, map[string]string{"status": "ok", "database": s.db.Path()})
}

// handleTables lists the tables.
// GET /api/tables
func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, TableListResponse{Tables: s.db.Tables()})
}

// handleTableSchema describes one table.
// GET /api/tables/{name}
func (s *Server) handleTableSchema(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	def, ok := s.db.Table(name)
	if !ok {
		writeError(w, http.StatusNotFound, string(engine.CategorySemantic),
			"unknown table "+name)
		return
	}
	resp := TableSchemaResponse{Name: def.Name}
	for _, col := range def.Columns {
		info := ColumnInfo{
			Name:       col.Name,
			Type:       col.Type.String(),
			PrimaryKey: col.PrimaryKey,
			NotNull:    col.NotNull,
		}
		if col.Reference != nil {
			info.References = col.Reference.Table + "." + col.Reference.Column
		}
		resp.Columns = append(resp.Columns, info)
	}
	writeSuccess(w, resp)
}

// handleQuery executes one SQL statement.
// POST /api/query
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "request", "invalid request body: "+err.Error())
		return
	}
	if req.SQL == "" {
		writeError(w, http.StatusBadRequest, "request", "missing sql field")
		return
	}

	result, err := s.db.Execute(req.SQL)
	if err != nil {
		cat := engine.Categorize(err)
		writeError(w, statusFor(cat), string(cat), err.Error())
		return
	}

	resp := QueryResponse{
		Columns:  result.Columns,
		RowCount: result.RowCount,
		Message:  result.Message,
	}
	if result.Rows != nil {
		resp.Rows = make([][]any, len(result.Rows))
		for i, row := range result.Rows {
			cells := make([]any, len(row))
			for j, v := range row {
				cells[j] = valueToJSON(v)
			}
			resp.Rows[i] = cells
		}
	}
	writeSuccess(w, resp)
}
