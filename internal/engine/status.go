package engine

import "github.com/buger/jsonparser"

// DeploymentStatus is the runtime state of a pipeline, e.g. Running.
type DeploymentStatus string

// StorageStatus is the state of a pipeline's storage, e.g. Cleared.
type StorageStatus string

// ProgramStatus is the compilation state of a pipeline's program.
type ProgramStatus string

const (
	DeploymentStopped DeploymentStatus = "Stopped"
	DeploymentRunning DeploymentStatus = "Running"

	StorageCleared StorageStatus = "Cleared"
	StorageInUse   StorageStatus = "InUse"

	ProgramPending       ProgramStatus = "Pending"
	ProgramCompilingSQL  ProgramStatus = "CompilingSql"
	ProgramSQLCompiled   ProgramStatus = "SqlCompiled"
	ProgramCompilingRust ProgramStatus = "CompilingRust"
	ProgramSuccess       ProgramStatus = "Success"
	ProgramSQLError      ProgramStatus = "SqlError"
	ProgramRustError     ProgramStatus = "RustError"
	ProgramSystemError   ProgramStatus = "SystemError"
)

// Status is the pipeline status reported by the Engine. Deployment and
// storage values are passed through as reported; callers compare against
// the states they wait for.
type Status struct {
	Exists     bool
	Deployment DeploymentStatus
	Storage    StorageStatus
	Program    ProgramStatus
}

func decodeStatus(op string, body []byte) (*Status, error) {
	s := &Status{Exists: true}
	fields := []struct {
		key string
		dst *string
	}{
		{"deployment_status", (*string)(&s.Deployment)},
		{"storage_status", (*string)(&s.Storage)},
		{"program_status", (*string)(&s.Program)},
	}
	for _, f := range fields {
		v, err := jsonparser.GetString(body, f.key)
		if err != nil {
			return nil, malformed(op, body, "missing %s", f.key)
		}
		*f.dst = v
	}
	return s, nil
}

// TransactionStatus is the state of the pipeline's transaction.
type TransactionStatus string

const (
	NoTransaction         TransactionStatus = "NoTransaction"
	TransactionInProgress TransactionStatus = "TransactionInProgress"
	CommitInProgress      TransactionStatus = "CommitInProgress"
)

func parseTransactionStatus(op string, body []byte, v string) (TransactionStatus, error) {
	switch s := TransactionStatus(v); s {
	case NoTransaction, TransactionInProgress, CommitInProgress:
		return s, nil
	default:
		return "", malformed(op, body, "unrecognized transaction_status %q", v)
	}
}

// IngestStatus is the processing state of one ingested batch.
type IngestStatus string

const (
	IngestInProgress IngestStatus = "inprogress"
	IngestComplete   IngestStatus = "complete"
)

func parseIngestStatus(op string, body []byte, v string) (IngestStatus, error) {
	switch s := IngestStatus(v); s {
	case IngestInProgress, IngestComplete:
		return s, nil
	default:
		return "", malformed(op, body, "unrecognized ingest status %q", v)
	}
}
