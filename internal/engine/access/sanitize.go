package access

import "encoding/json"

// Record is the JSON object view of an entity as it leaves the service.
type Record map[string]any

// ToRecord converts v to its JSON object form.
func ToRecord(v any) (Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// SanitizeForRole returns rec unchanged for owners. For any other role it
// returns a copy without the entity's restricted fields.
func SanitizeForRole(entity Entity, rec Record, role Role) Record {
	if role == RoleOwner {
		return rec
	}
	schema := SchemaFor(entity)
	out := make(Record, len(rec))
	for k, v := range rec {
		if schema.IsRestricted(k) {
			continue
		}
		out[k] = v
	}
	return out
}

// SanitizeAll applies SanitizeForRole to each record.
func SanitizeAll(entity Entity, recs []Record, role Role) []Record {
	out := make([]Record, len(recs))
	for i, rec := range recs {
		out[i] = SanitizeForRole(entity, rec, role)
	}
	return out
}
