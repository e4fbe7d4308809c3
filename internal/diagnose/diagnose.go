// Package diagnose performs post-mortem analysis of a failed batch: it
// extracts identifiers named in the server's error text and classifies
// every matching reference attribute in the batch as a self-reference, a
// same-batch reference, or a reference to a record the batch never saw.
package diagnose

import (
	"fmt"
	"regexp"

	"github.com/dvmigrate/core/internal/record"
)

// idPattern matches the identifier shape the server embeds in bulk
// infrastructure fault text, e.g. "Ids = 3fa85f64-5717-4562-b3fc-2c963f66afa6"
// or "With Id = ...".
var idPattern = regexp.MustCompile(`(?:With )?Ids? = ([0-9a-fA-F-]{36})`)

// Pattern classifies how a diagnosed reference relates to the failing
// batch.
type Pattern string

const (
	SelfReference      Pattern = "SELF_REFERENCE"
	SameBatchReference Pattern = "SAME_BATCH_REFERENCE"
	MissingReference   Pattern = "MISSING_REFERENCE"
)

// Finding is one diagnosed reference.
type Finding struct {
	RecordIndex  int
	FieldName    string
	ReferencedID string
	Pattern      Pattern
	Suggestion   string
}

// suggestion gives the operator a concrete next step per pattern. These
// wordings are this implementation's own decision, recorded in
// DESIGN.md.
func suggestion(p Pattern, field string) string {
	switch p {
	case SelfReference:
		return fmt.Sprintf("%s references its own record; this entity likely needs to be deferred (added to the tier's deferred-field set) rather than written in the first pass", field)
	case SameBatchReference:
		return fmt.Sprintf("%s references another record in the same batch; reduce batch size or move this lookup to the deferred-field pass so the target exists first", field)
	default:
		return fmt.Sprintf("%s references an id not present in this import; verify the archive contains that record or that it mapped successfully", field)
	}
}

// ExtractReferencedIDs returns every identifier named in errMsg in the
// shape idPattern recognises.
func ExtractReferencedIDs(errMsg string) []string {
	matches := idPattern.FindAllStringSubmatch(errMsg, -1)
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m[1])
	}
	return ids
}

// Diagnose walks every record's reference-typed attributes against the
// identifiers extracted from errMsg and returns one Finding per match.
func Diagnose(batch []*record.Record, errMsg string) []Finding {
	referenced := ExtractReferencedIDs(errMsg)
	if len(referenced) == 0 {
		return nil
	}
	referencedSet := make(map[string]bool, len(referenced))
	for _, id := range referenced {
		referencedSet[id] = true
	}

	batchIDs := make(map[string]bool, len(batch))
	for _, r := range batch {
		batchIDs[r.ID] = true
	}

	var findings []Finding
	for i, r := range batch {
		r.Each(func(name string, v record.Value) {
			if !v.IsReference() {
				return
			}
			if !referencedSet[v.Ref.ID] {
				return
			}
			var pattern Pattern
			switch {
			case v.Ref.ID == r.ID:
				pattern = SelfReference
			case batchIDs[v.Ref.ID]:
				pattern = SameBatchReference
			default:
				pattern = MissingReference
			}
			findings = append(findings, Finding{
				RecordIndex:  i,
				FieldName:    name,
				ReferencedID: v.Ref.ID,
				Pattern:      pattern,
				Suggestion:   suggestion(pattern, name),
			})
		})
	}
	return findings
}
