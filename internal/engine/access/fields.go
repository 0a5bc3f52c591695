package access

import "fmt"

// Entity is a record type that carries field-level policy.
type Entity string

const (
	EntityInvoice Entity = "invoice"
	EntityProject Entity = "project"
)

// Policy names a group of owner-only fields.
type Policy string

const (
	PolicyFinanceFields Policy = "finance_fields"
	PolicyBudgetFields  Policy = "budget_fields"
)

// Schema lists the writable fields of an entity and the restricted subset
// that only owners may read or write. Both the sanitizer and the write guard
// read Restricted from here.
type Schema struct {
	Entity     Entity
	Fields     []string
	Policy     Policy
	Restricted []string

	writable   map[string]struct{}
	restricted map[string]struct{}
}

var schemas = map[Entity]*Schema{
	EntityInvoice: newSchema(EntityInvoice, PolicyFinanceFields,
		[]string{"project_id", "number", "client_name", "state", "amount", "currency", "due_date", "paid_date", "line_items", "payments", "notes"},
		[]string{"amount", "currency", "paid_date", "line_items", "payments"},
	),
	EntityProject: newSchema(EntityProject, PolicyBudgetFields,
		[]string{"name", "description", "client_name", "budget_amount", "currency"},
		[]string{"budget_amount", "currency"},
	),
}

func newSchema(entity Entity, policy Policy, fields, restricted []string) *Schema {
	s := &Schema{
		Entity:     entity,
		Fields:     fields,
		Policy:     policy,
		Restricted: restricted,
		writable:   make(map[string]struct{}, len(fields)),
		restricted: make(map[string]struct{}, len(restricted)),
	}
	for _, f := range fields {
		s.writable[f] = struct{}{}
	}
	for _, f := range restricted {
		if _, ok := s.writable[f]; !ok {
			panic(fmt.Sprintf("access: restricted field %q is not a %s field", f, entity))
		}
		s.restricted[f] = struct{}{}
	}
	return s
}

// SchemaFor returns the schema of entity. It panics on an unknown entity.
func SchemaFor(entity Entity) *Schema {
	s, ok := schemas[entity]
	if !ok {
		panic(fmt.Sprintf("access: undefined entity %q", entity))
	}
	return s
}

func (s *Schema) IsRestricted(field string) bool {
	_, ok := s.restricted[field]
	return ok
}

// Unknown returns the fields that are not writable on this entity, in input order.
func (s *Schema) Unknown(fields []string) []string {
	var unknown []string
	for _, f := range fields {
		if _, ok := s.writable[f]; !ok {
			unknown = append(unknown, f)
		}
	}
	return unknown
}

// Validate rejects a payload naming fields outside the schema.
func (s *Schema) Validate(fields []string) error {
	if unknown := s.Unknown(fields); len(unknown) > 0 {
		return &UnknownFieldError{Entity: s.Entity, Fields: unknown}
	}
	return nil
}
