package users

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinovault/clinovault/internal/policy"
)

// AttributeManage gates user administration and role assignment.
const AttributeManage policy.Attribute = "manage-principals"

// User represents a directory account with its declared roles. Declared roles
// are what an administrator assigned; hierarchy expansion happens at
// evaluation time, never here.
type User struct {
	ID        uuid.UUID
	Email     string
	Name      string
	OrgID     string
	IsActive  bool
	Roles     []policy.Role
	CreatedAt time.Time
	UpdatedAt time.Time
}
