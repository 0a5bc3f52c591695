package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"agencycrm/internal/engine/access"
	"agencycrm/internal/engine/workspaces"
	"agencycrm/internal/platform/audit"
	"agencycrm/internal/platform/models"
	"agencycrm/internal/platform/repositories"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvoiceLocked = errors.New("only draft invoices can be edited by editors")
	ErrAlreadyPaid   = errors.New("invoice is already paid")
)

// Payload is a create or update body keyed by field name.
type Payload map[string]json.RawMessage

func (p Payload) Fields() []string {
	fields := make([]string, 0, len(p))
	for k := range p {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}

// has reports whether the payload sets field.
func (p Payload) has(field string) bool {
	_, ok := p[field]
	return ok
}

type ListParams struct {
	Query  string
	Status string
	Limit  int
	Offset int
}

func (p ListParams) filter() (repositories.ListFilter, error) {
	status := p.Status
	switch status {
	case "":
		status = models.RecordStatusActive
	case "all":
		status = ""
	case models.RecordStatusActive, models.RecordStatusArchived:
	default:
		return repositories.ListFilter{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, p.Status)
	}
	return repositories.ListFilter{Query: p.Query, Status: status, Limit: p.Limit, Offset: p.Offset}, nil
}

type Service struct {
	repos   *repositories.Repositories
	auditor workspaces.Auditor
	now     func() time.Time
}

type nopAuditor struct{}

func (nopAuditor) Log(context.Context, audit.Entry) {}

func NewService(repos *repositories.Repositories, auditor workspaces.Auditor) *Service {
	if auditor == nil {
		auditor = nopAuditor{}
	}
	return &Service{repos: repos, auditor: auditor, now: time.Now}
}

// checkWrite validates payload against the entity schema and the role's field
// policy. It runs before anything is loaded or stored.
func checkWrite(a *access.Access, entity access.Entity, perm access.Permission, payload Payload) error {
	if err := a.Require(perm); err != nil {
		return err
	}
	fields := payload.Fields()
	if err := access.SchemaFor(entity).Validate(fields); err != nil {
		return err
	}
	return access.AssertCanWrite(entity, fields, a.Role)
}

// merge overlays payload on the JSON form of current and decodes the result
// into a fresh value. Identity fields never come from the payload since the
// schema does not list them.
func merge[T any](current *T, payload Payload) (*T, error) {
	base, err := json.Marshal(current)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, err
	}
	for k, v := range payload {
		fields[k] = v
	}
	merged, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	out := new(T)
	if err := json.Unmarshal(merged, out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return out, nil
}

func sanitize(entity access.Entity, v any, role access.Role) (access.Record, error) {
	rec, err := access.ToRecord(v)
	if err != nil {
		return nil, err
	}
	return access.SanitizeForRole(entity, rec, role), nil
}

func (s *Service) audit(ctx context.Context, a *access.Access, action, resourceType, id string) {
	s.auditor.Log(ctx, audit.Entry{WorkspaceID: a.WorkspaceID(), UserID: a.Principal.UserID, Action: action, ResourceType: resourceType, ResourceID: id})
}
