package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
)

// FakeEngine is an in-memory stand-in for the Engine REST API, serving a
// single pipeline. Pipeline transitions complete immediately. Ingested
// batches stay in progress for PollsToComplete completion polls.
type FakeEngine struct {
	URL string

	mu sync.Mutex

	// PollsToComplete is how many completion polls report inprogress
	// before a batch completes.
	PollsToComplete int

	exists        bool
	program       string
	programStatus string
	deployment    string
	storage       string

	compileStatuses []string
	compileQueue    []string

	inTransaction  bool
	commitPolls    int
	transactionLog []bool

	tables    map[string][]map[string]any
	tokens    map[string]int
	nextToken int

	errorTypes map[string][]string
	sqlLines   map[string][]string
	noSQL      map[string]bool
	untyped    map[string]bool

	requests []string
}

var pipelineIDPattern = regexp.MustCompile(`pipeline_id = '((?:[^']|'')*)'`)

// NewFakeEngine starts a fake Engine that is closed with the test.
func NewFakeEngine(t *testing.T) *FakeEngine {
	t.Helper()
	f := &FakeEngine{
		programStatus: "Success",
		deployment:    "Stopped",
		storage:       "Cleared",
		tables:        make(map[string][]map[string]any),
		tokens:        make(map[string]int),
		errorTypes:    make(map[string][]string),
		sqlLines:      make(map[string][]string),
		noSQL:         make(map[string]bool),
		untyped:       make(map[string]bool),
	}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	f.URL = srv.URL
	return f
}

// SetRunning makes the pipeline exist, compiled from program and running.
func (f *FakeEngine) SetRunning(program string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exists, f.program, f.deployment, f.storage = true, program, "Running", "InUse"
}

// CompileStatuses sets the program_status values reported after each
// program upload, one per status request. The last one sticks. Without it
// an upload compiles to Success on the first request.
func (f *FakeEngine) CompileStatuses(statuses ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.compileStatuses = statuses
}

// Program returns the program the pipeline holds.
func (f *FakeEngine) Program() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.program
}

// FailWith makes the error view report errorTypes for pipelineID.
func (f *FakeEngine) FailWith(pipelineID string, errorTypes ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errorTypes[pipelineID] = errorTypes
}

// DeriveSQL sets the sql_lines the output view reports for pipelineID.
// Without it, a pipeline id that has rule rows yields one comment line per
// rule.
func (f *FakeEngine) DeriveSQL(pipelineID string, lines ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sqlLines[pipelineID] = lines
}

// OmitSQL makes the output view return no row for pipelineID.
func (f *FakeEngine) OmitSQL(pipelineID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.noSQL[pipelineID] = true
}

// OmitErrorType makes the error view report one row for pipelineID that
// lacks the error_type column.
func (f *FakeEngine) OmitErrorType(pipelineID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.untyped[pipelineID] = true
}

// Rows returns the rows ingested into table, in arrival order.
func (f *FakeEngine) Rows(table string) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.tables[table]...)
}

// Requests returns "METHOD path" for every request served.
func (f *FakeEngine) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

// CountRequests returns how many requests started with prefix.
func (f *FakeEngine) CountRequests(prefix string) int {
	n := 0
	for _, r := range f.Requests() {
		if strings.HasPrefix(r, prefix) {
			n++
		}
	}
	return n
}

// IngestedInTransaction reports, per ingress request, whether a
// transaction was open at the time.
func (f *FakeEngine) IngestedInTransaction() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.transactionLog...)
}

func (f *FakeEngine) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)

	rest, ok := strings.CutPrefix(r.URL.Path, "/v0/pipelines/")
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error_code": "NotFound"})
		return
	}
	_, action, _ := strings.Cut(rest, "/")

	if !f.exists && !(action == "" && r.Method == http.MethodPut) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error_code": "UnknownPipelineName"})
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		if len(f.compileQueue) > 0 {
			f.programStatus, f.compileQueue = f.compileQueue[0], f.compileQueue[1:]
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"program_code":      f.program,
			"deployment_status": f.deployment,
			"storage_status":    f.storage,
			"program_status":    f.programStatus,
		})
	case action == "" && r.Method == http.MethodPut:
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error_code": "InvalidBody"})
			return
		}
		f.exists, f.program = true, body["program_code"]
		f.programStatus = "Pending"
		f.compileQueue = append([]string(nil), f.compileStatuses...)
		if len(f.compileQueue) == 0 {
			f.compileQueue = []string{"Success"}
		}
		writeJSON(w, http.StatusCreated, map[string]string{})
	case action == "start":
		f.deployment, f.storage = "Running", "InUse"
		writeJSON(w, http.StatusAccepted, map[string]string{})
	case action == "stop":
		f.deployment = "Stopped"
		writeJSON(w, http.StatusAccepted, map[string]string{})
	case action == "clear":
		f.storage = "Cleared"
		f.tables = make(map[string][]map[string]any)
		writeJSON(w, http.StatusAccepted, map[string]string{})
	case action == "start_transaction":
		f.inTransaction = true
		writeJSON(w, http.StatusOK, map[string]string{})
	case action == "commit_transaction":
		f.inTransaction = false
		f.commitPolls = 1
		writeJSON(w, http.StatusOK, map[string]string{})
	case action == "stats":
		status := "NoTransaction"
		switch {
		case f.inTransaction:
			status = "TransactionInProgress"
		case f.commitPolls > 0:
			f.commitPolls--
			status = "CommitInProgress"
		}
		writeJSON(w, http.StatusOK, map[string]any{"global_metrics": map[string]string{"transaction_status": status}})
	case strings.HasPrefix(action, "ingress/"):
		f.ingest(w, r, strings.TrimPrefix(action, "ingress/"))
	case action == "completion_status":
		token := r.URL.Query().Get("token")
		left, ok := f.tokens[token]
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error_code": "UnknownToken"})
			return
		}
		if left > 0 {
			f.tokens[token] = left - 1
			writeJSON(w, http.StatusOK, map[string]string{"status": "inprogress"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "complete"})
	case action == "query":
		f.query(w, r.URL.Query().Get("sql"))
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error_code": "NotFound"})
	}
}

func (f *FakeEngine) ingest(w http.ResponseWriter, r *http.Request, table string) {
	var rows []map[string]any
	if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error_code": "InvalidBody"})
		return
	}
	f.tables[table] = append(f.tables[table], rows...)
	f.transactionLog = append(f.transactionLog, f.inTransaction)

	f.nextToken++
	token := fmt.Sprintf("tok-%d", f.nextToken)
	f.tokens[token] = f.PollsToComplete
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (f *FakeEngine) query(w http.ResponseWriter, sql string) {
	m := pipelineIDPattern.FindStringSubmatch(sql)
	if m == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error_code": "UnsupportedQuery"})
		return
	}
	id := strings.ReplaceAll(m[1], "''", "'")

	rows := []map[string]any{}
	switch {
	case strings.Contains(sql, `FROM "error"`):
		if f.untyped[id] {
			rows = append(rows, map[string]any{"message": "boom"})
		}
		for _, et := range f.errorTypes[id] {
			rows = append(rows, map[string]any{"error_type": et})
		}
	case strings.Contains(sql, "FROM full_pipeline_sql"):
		if f.noSQL[id] {
			break
		}
		if lines, ok := f.sqlLines[id]; ok {
			rows = append(rows, map[string]any{"sql_lines": lines})
			break
		}
		var lines []string
		for _, row := range f.tables["rule"] {
			if row["pipeline_id"] == id {
				lines = append(lines, fmt.Sprintf("-- %v", row["table_name"]))
			}
		}
		if lines != nil {
			rows = append(rows, map[string]any{"sql_lines": lines})
		}
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error_code": "UnsupportedQuery"})
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// WriteTestCase writes a test case file named <key>.test.grasp into dir
// and returns its path.
func WriteTestCase(t *testing.T, dir, key, source string) string {
	t.Helper()
	return WriteFile(t, dir, key+".test.grasp", source)
}
