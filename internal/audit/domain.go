package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinovault/clinovault/internal/policy"
)

// Entry is one immutable record of a permission decision. There is no update
// or delete operation anywhere in this package's contract surface.
type Entry struct {
	ID          uuid.UUID
	At          time.Time
	PrincipalID string
	// Roles captures the expanded role set at decision time; later role
	// changes must not rewrite history.
	Roles       []string
	Attribute   string
	SubjectType string
	SubjectID   string
	Outcome     policy.Outcome
	Reason      string
}

// Filters menampung filter dasar untuk kueri audit.
type Filters struct {
	From        time.Time
	To          time.Time
	PrincipalID string
	SubjectID   string
	Attribute   string
	Page        int
	PageSize    int
}

// PagingInfo menyimpan metadata pagination sederhana.
type PagingInfo struct {
	Page     int
	HasNext  bool
	PageSize int
	PrevPage int
	NextPage int
}

// Result membungkus hasil kueri dengan informasi paging.
type Result struct {
	Entries []Entry
	Paging  PagingInfo
}
