package record

// AttributeSchema describes one attribute of an EntitySchema.
type AttributeSchema struct {
	Name         string
	IsLookup     bool
	TargetEntity string // only meaningful when IsLookup
}

// M2MRelationship describes a many-to-many relationship between two
// entities, materialised through an intersect entity.
type M2MRelationship struct {
	SchemaName     string
	IntersectName  string
	Entity1Logical string
	Entity2Logical string
}

// EntitySchema is the per-entity portion of the target schema description.
type EntitySchema struct {
	LogicalName    string
	PrimaryKey     string
	ObjectTypeCode int // 0 if not set
	DisablePlugins bool
	Attributes     []AttributeSchema
	ManyToMany     []M2MRelationship
}

// LookupTo returns the target entity of attrName if it is a lookup on es,
// and whether it was found.
func (es *EntitySchema) LookupTo(attrName string) (string, bool) {
	for _, a := range es.Attributes {
		if a.Name == attrName && a.IsLookup {
			return a.TargetEntity, true
		}
	}
	return "", false
}

// Schema is the full target schema description: one EntitySchema per
// entity logical name.
type Schema struct {
	Entities map[string]*EntitySchema
}

// NewSchema returns an empty schema.
func NewSchema() *Schema {
	return &Schema{Entities: make(map[string]*EntitySchema)}
}

// Add registers an entity schema, keyed by its logical name.
func (s *Schema) Add(es *EntitySchema) {
	s.Entities[es.LogicalName] = es
}
