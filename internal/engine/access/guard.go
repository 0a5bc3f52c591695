package access

// AssertCanWrite fails with a *PolicyViolation when a non-owner payload names
// any restricted field of entity. It must run before the write is persisted.
func AssertCanWrite(entity Entity, fields []string, role Role) error {
	if role == RoleOwner {
		return nil
	}
	schema := SchemaFor(entity)

	var offending []string
	seen := make(map[string]bool)
	for _, f := range fields {
		if schema.IsRestricted(f) && !seen[f] {
			seen[f] = true
			offending = append(offending, f)
		}
	}
	if len(offending) == 0 {
		return nil
	}
	return &PolicyViolation{Entity: entity, Policy: schema.Policy, Fields: offending}
}
