package types

// EntityKind is the closed set of entity kinds the graph builder extracts
// from memory content. Unknown kinds are rejected on write.
type EntityKind string

const (
	EntityKindProject   EntityKind = "project"
	EntityKindTech      EntityKind = "tech"
	EntityKindComponent EntityKind = "component"
	EntityKindFile      EntityKind = "file"
	EntityKindPerson    EntityKind = "person"
)

// ValidEntityKinds enumerates every kind a MemoryEntity may hold.
var ValidEntityKinds = []EntityKind{
	EntityKindProject, EntityKindTech, EntityKindComponent, EntityKindFile, EntityKindPerson,
}

// IsValidEntityKind reports whether k belongs to the closed entity-kind set.
func IsValidEntityKind(k EntityKind) bool {
	for _, v := range ValidEntityKinds {
		if v == k {
			return true
		}
	}
	return false
}

// MemoryEntity is a many-to-many link between a Memory and a named thing
// extracted from its content (a project, a technology, a component, a file
// path, a person). The pair (MemoryID, EntityKind, EntityValue) is the
// natural key; the same entity can be attached to many memories and a
// memory can reference many entities.
type MemoryEntity struct {
	MemoryID    string     `json:"memory_id"`
	EntityKind  EntityKind `json:"entity_kind"`
	EntityValue string     `json:"entity_value"`
}
