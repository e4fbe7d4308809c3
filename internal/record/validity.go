package record

// FieldValidity records, per attribute, whether it may be sent on a create
// and/or an update request. An attribute absent from the map is treated as
// "unknown, include it" — this keeps the validator backward
// compatible with target metadata that lags behind the archive.
type FieldValidity struct {
	ValidForCreate bool
	ValidForUpdate bool
}

// EntityValidity is the per-entity attribute -> FieldValidity map loaded
// from the target.
type EntityValidity map[string]FieldValidity

// Mode selects which validity rule applies to a record write.
type Mode int

const (
	ModeCreate Mode = iota
	ModeUpdate
	ModeUpsert
)

func (m Mode) String() string {
	switch m {
	case ModeCreate:
		return "Create"
	case ModeUpdate:
		return "Update"
	case ModeUpsert:
		return "Upsert"
	default:
		return "Unknown"
	}
}

// ShouldIncludeField decides whether a single attribute belongs on an
// outgoing write. metadata may be nil, meaning the entity has no target
// metadata at all (include everything).
func ShouldIncludeField(name string, mode Mode, metadata EntityValidity) bool {
	if metadata == nil {
		return true
	}
	v, ok := metadata[name]
	if !ok {
		return true
	}
	if !v.ValidForCreate && !v.ValidForUpdate {
		return false
	}
	switch mode {
	case ModeCreate:
		return v.ValidForCreate
	case ModeUpdate:
		return v.ValidForUpdate
	case ModeUpsert:
		return v.ValidForCreate || v.ValidForUpdate
	default:
		return true
	}
}
