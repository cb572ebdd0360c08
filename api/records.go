package api

// MetaType declares whether a file record is a regular file or a directory.
type MetaType int

const (
	MetaFile      MetaType = 1
	MetaDirectory MetaType = 2
)

func (t MetaType) String() string {
	switch t {
	case MetaFile:
		return "file"
	case MetaDirectory:
		return "dir"
	default:
		return "unknown"
	}
}

// ArtifactType identifies the kind of artifact an analysis module produced.
type ArtifactType int

// AttributeType identifies the meaning of a single artifact attribute.
type AttributeType int

const (
	// ArtifactInterestingFileHit marks a file or directory matched by an
	// interesting-files rule set.
	ArtifactInterestingFileHit ArtifactType = 12
)

const (
	// AttrSetName carries the name of the rule set that produced a hit.
	AttrSetName AttributeType = 2
	// AttrComment is a free-text note attached by the producing rule set.
	AttrComment AttributeType = 3
)

// FileRecord is one filesystem entry inside a source image.
// Records are owned by the record store and never mutated by consumers.
type FileRecord struct {
	ID       int64
	ParentID int64
	Name     string
	Type     MetaType
	Size     int64  // byte length of the content, 0 for directories
	MIME     string // sniffed content type, empty when unknown
}

// IsDir reports whether the record describes a directory.
func (r FileRecord) IsDir() bool {
	return r.Type == MetaDirectory
}

// Attribute is a typed value attached to a hit.
type Attribute struct {
	Type  AttributeType
	Value string
}

// Hit is an artifact asserting that a file record matched an analysis rule.
type Hit struct {
	ArtifactID int64
	SubjectID  int64 // file record the hit is about
	Attributes []Attribute
}

// SetNames returns every rule set name carried by the hit, in attribute order.
// Duplicates are preserved.
func (h Hit) SetNames() []string {
	var names []string
	for _, a := range h.Attributes {
		if a.Type == AttrSetName {
			names = append(names, a.Value)
		}
	}
	return names
}
