package record

// M2MBlock is one archived many-to-many association: a source record and
// the set of target ids it associates to through relationship.
type M2MBlock struct {
	SourceID     string
	Relationship string
	TargetEntity string
	TargetIDs    []string
}

// Archive is the in-memory shape of an exported tenant, as handed to the
// importer by an archive reader collaborator outside this package.
type Archive struct {
	Schema           *Schema
	EntityData       map[string][]*Record
	RelationshipData map[string][]M2MBlock
}

// NewArchive returns an empty archive.
func NewArchive(schema *Schema) *Archive {
	return &Archive{
		Schema:           schema,
		EntityData:       make(map[string][]*Record),
		RelationshipData: make(map[string][]M2MBlock),
	}
}

// Entities returns the logical names that have at least one archived
// record, independent of relationship data.
func (a *Archive) Entities() []string {
	names := make([]string, 0, len(a.EntityData))
	for name := range a.EntityData {
		names = append(names, name)
	}
	return names
}
