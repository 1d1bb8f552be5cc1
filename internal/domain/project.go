package domain

import (
	"time"

	"github.com/google/uuid"
)

// ProjectKind is the shape of a generated project.
type ProjectKind string

const (
	ProjectKindHTML  ProjectKind = "html"  // Single self-contained page
	ProjectKindReact ProjectKind = "react" // Vite/React scaffold
)

// Valid checks if the project kind is valid.
func (k ProjectKind) Valid() bool {
	switch k {
	case ProjectKindHTML, ProjectKindReact:
		return true
	default:
		return false
	}
}

// Project is the metadata record for one generated site. The generated files
// themselves live in artifact storage as a ZIP under ArtifactKey.
type Project struct {
	ID          uuid.UUID
	AccountID   uuid.UUID
	Title       string      // Derived from the prompt, for display
	Kind        ProjectKind // html or react
	Prompt      string      // The description the project was generated from
	ArtifactKey string      // Storage key of the packaged ZIP
	SizeBytes   int64       // ZIP size
	FileCount   int         // Number of files in the project
	Model       string      // Provider model that produced the project
	CreatedAt   time.Time
}
