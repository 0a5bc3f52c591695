package access

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agencycrm/internal/platform/models"
)

var entities = []Entity{EntityInvoice, EntityProject}

// subsets returns every subset of fields.
func subsets(fields []string) [][]string {
	var out [][]string
	for mask := 0; mask < 1<<len(fields); mask++ {
		var s []string
		for i, f := range fields {
			if mask&(1<<i) != 0 {
				s = append(s, f)
			}
		}
		out = append(out, s)
	}
	return out
}

func TestSchema_RestrictedSets(t *testing.T) {
	inv := SchemaFor(EntityInvoice)
	assert.Equal(t, PolicyFinanceFields, inv.Policy)
	assert.ElementsMatch(t, []string{"amount", "currency", "paid_date", "line_items", "payments"}, inv.Restricted)

	proj := SchemaFor(EntityProject)
	assert.Equal(t, PolicyBudgetFields, proj.Policy)
	assert.ElementsMatch(t, []string{"budget_amount", "currency"}, proj.Restricted)

	assert.Panics(t, func() { SchemaFor(Entity("contact_note")) })
}

func TestSchema_Validate(t *testing.T) {
	s := SchemaFor(EntityProject)
	assert.NoError(t, s.Validate([]string{"name", "budget_amount"}))

	err := s.Validate([]string{"name", "id", "workspace_id"})
	require.ErrorIs(t, err, ErrUnknownField)
	var ufe *UnknownFieldError
	require.True(t, errors.As(err, &ufe))
	assert.Equal(t, []string{"id", "workspace_id"}, ufe.Fields)
}

func TestSanitizeForRole_EditorNeverSeesRestricted(t *testing.T) {
	for _, entity := range entities {
		schema := SchemaFor(entity)
		for _, present := range subsets(schema.Fields) {
			rec := Record{"id": "x"}
			for _, f := range present {
				rec[f] = "v"
			}

			out := SanitizeForRole(entity, rec, RoleEditor)
			for _, f := range schema.Restricted {
				assert.NotContains(t, out, f)
			}
			for k := range rec {
				if !schema.IsRestricted(k) {
					assert.Contains(t, out, k)
				}
			}
		}
	}
}

func TestSanitizeForRole_OwnerIsIdentity(t *testing.T) {
	rec := Record{"id": "invc_1", "amount": 10.0, "payments": []any{}}
	assert.Equal(t, rec, SanitizeForRole(EntityInvoice, rec, RoleOwner))
}

func TestSanitizeForRole_DoesNotMutateInput(t *testing.T) {
	rec := Record{"id": "prj_1", "budget_amount": 100.0}
	_ = SanitizeForRole(EntityProject, rec, RoleEditor)
	assert.Contains(t, rec, "budget_amount")
}

func TestSanitizeAll_FromModels(t *testing.T) {
	amount := 500.0
	paid := int64(1700000000)
	invoices := []*models.Invoice{
		{ID: "invc_1", Number: "1", Amount: &amount, Currency: "USD", PaidDate: &paid, LineItems: []models.LineItem{{Description: "a"}}},
		{ID: "invc_2", Number: "2"},
	}

	var recs []Record
	for _, inv := range invoices {
		rec, err := ToRecord(inv)
		require.NoError(t, err)
		recs = append(recs, rec)
	}

	out := SanitizeAll(EntityInvoice, recs, RoleEditor)
	require.Len(t, out, 2)
	for _, rec := range out {
		for _, f := range SchemaFor(EntityInvoice).Restricted {
			assert.NotContains(t, rec, f)
		}
		assert.Contains(t, rec, "number")
	}

	owner := SanitizeAll(EntityInvoice, recs, RoleOwner)
	assert.Equal(t, 500.0, owner[0]["amount"])
}

func TestAssertCanWrite_EveryPayloadSubset(t *testing.T) {
	for _, entity := range entities {
		schema := SchemaFor(entity)
		for _, payload := range subsets(schema.Fields) {
			touchesRestricted := false
			for _, f := range payload {
				if schema.IsRestricted(f) {
					touchesRestricted = true
				}
			}

			err := AssertCanWrite(entity, payload, RoleEditor)
			if touchesRestricted {
				require.ErrorIs(t, err, ErrPolicyViolation, "%s %v", entity, payload)
				var pv *PolicyViolation
				require.True(t, errors.As(err, &pv))
				assert.Equal(t, schema.Policy, pv.Policy)
			} else {
				assert.NoError(t, err, "%s %v", entity, payload)
			}

			assert.NoError(t, AssertCanWrite(entity, payload, RoleOwner))
		}
	}
}

func TestAssertCanWrite_NamesOffendingFields(t *testing.T) {
	err := AssertCanWrite(EntityInvoice, []string{"notes", "amount", "payments", "amount"}, RoleEditor)
	var pv *PolicyViolation
	require.True(t, errors.As(err, &pv))
	assert.Equal(t, EntityInvoice, pv.Entity)
	assert.Equal(t, []string{"amount", "payments"}, pv.Fields)
	assert.Contains(t, err.Error(), "finance_fields")
}
