package record

import "fmt"

// MigrationError is a per-record failure surfaced in ImportResult.Errors
// and in EntityImportResult.Errors. It deliberately carries enough
// context to reconstruct which archive row failed without re-running the
// import.
type MigrationError struct {
	Entity     string
	RecordID   string
	Message    string
	StatusCode int      // 0 if the server did not supply one
	Diagnosis  []string // operator suggestions from the reference post-mortem, if any
}

func (e *MigrationError) Error() string {
	if e.RecordID == "" {
		return fmt.Sprintf("%s: %s", e.Entity, e.Message)
	}
	return fmt.Sprintf("%s %s: %s", e.Entity, e.RecordID, e.Message)
}
