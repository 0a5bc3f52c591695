package records

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"agencycrm/internal/engine/access"
	"agencycrm/internal/platform/models"
)

func validateInvoice(inv *models.Invoice) error {
	inv.Number = strings.TrimSpace(inv.Number)
	if inv.Number == "" {
		return fmt.Errorf("%w: number is required", ErrInvalidInput)
	}
	switch inv.State {
	case models.InvoiceStateDraft, models.InvoiceStateSent, models.InvoiceStatePaid:
	default:
		return fmt.Errorf("%w: unknown state %q", ErrInvalidInput, inv.State)
	}
	if inv.Amount != nil && *inv.Amount < 0 {
		return fmt.Errorf("%w: amount must not be negative", ErrInvalidInput)
	}
	inv.Currency = strings.ToUpper(strings.TrimSpace(inv.Currency))
	return nil
}

// checkPaidState keeps the paid state behind invoice.mark_paid.
func checkPaidState(a *access.Access, before string, after *models.Invoice) error {
	if after.State == models.InvoiceStatePaid && before != models.InvoiceStatePaid {
		return a.Require(access.InvoiceMarkPaid)
	}
	return nil
}

// checkProject rejects a project_id that does not name a project of the
// caller's workspace.
func (s *Service) checkProject(ctx context.Context, a *access.Access, projectID string) error {
	if projectID == "" {
		return nil
	}
	p, err := s.repos.Projects.Get(ctx, a.WorkspaceID(), projectID)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("%w: unknown project_id %q", ErrInvalidInput, projectID)
	}
	return nil
}

func (s *Service) CreateInvoice(ctx context.Context, a *access.Access, payload Payload) (access.Record, error) {
	if err := checkWrite(a, access.EntityInvoice, access.InvoiceCreate, payload); err != nil {
		return nil, err
	}

	inv, err := merge(&models.Invoice{State: models.InvoiceStateDraft}, payload)
	if err != nil {
		return nil, err
	}
	if err := validateInvoice(inv); err != nil {
		return nil, err
	}
	if err := checkPaidState(a, models.InvoiceStateDraft, inv); err != nil {
		return nil, err
	}
	if err := s.checkProject(ctx, a, inv.ProjectID); err != nil {
		return nil, err
	}

	now := s.now().Unix()
	inv.ID = "invc_" + uuid.NewString()
	inv.WorkspaceID = a.WorkspaceID()
	inv.Status = models.RecordStatusActive
	inv.CreatedBy = a.Principal.UserID
	inv.CreatedAt = now
	inv.UpdatedAt = now

	if err := s.repos.Invoices.Create(ctx, inv); err != nil {
		return nil, err
	}
	s.audit(ctx, a, "invoice.created", "invoice", inv.ID)
	return sanitize(access.EntityInvoice, inv, a.Role)
}

func (s *Service) getInvoice(ctx context.Context, a *access.Access, id string) (*models.Invoice, error) {
	inv, err := s.repos.Invoices.Get(ctx, a.WorkspaceID(), id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, ErrNotFound
	}
	return inv, nil
}

func (s *Service) GetInvoice(ctx context.Context, a *access.Access, id string) (access.Record, error) {
	if err := a.Require(access.InvoiceView); err != nil {
		return nil, err
	}
	inv, err := s.getInvoice(ctx, a, id)
	if err != nil {
		return nil, err
	}
	return sanitize(access.EntityInvoice, inv, a.Role)
}

func (s *Service) ListInvoices(ctx context.Context, a *access.Access, params ListParams) ([]access.Record, error) {
	if err := a.Require(access.InvoiceView); err != nil {
		return nil, err
	}
	filter, err := params.filter()
	if err != nil {
		return nil, err
	}
	invoices, err := s.repos.Invoices.List(ctx, a.WorkspaceID(), filter)
	if err != nil {
		return nil, err
	}

	out := make([]access.Record, 0, len(invoices))
	for _, inv := range invoices {
		rec, err := sanitize(access.EntityInvoice, inv, a.Role)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// UpdateInvoice applies a partial update. Editors may only touch drafts.
func (s *Service) UpdateInvoice(ctx context.Context, a *access.Access, id string, payload Payload) (access.Record, error) {
	if err := checkWrite(a, access.EntityInvoice, access.InvoiceEdit, payload); err != nil {
		return nil, err
	}

	current, err := s.getInvoice(ctx, a, id)
	if err != nil {
		return nil, err
	}
	if a.Role != access.RoleOwner && current.State != models.InvoiceStateDraft {
		return nil, ErrInvoiceLocked
	}

	state, projectID := current.State, current.ProjectID
	inv, err := merge(current, payload)
	if err != nil {
		return nil, err
	}
	if err := validateInvoice(inv); err != nil {
		return nil, err
	}
	if err := checkPaidState(a, state, inv); err != nil {
		return nil, err
	}
	if inv.ProjectID != projectID {
		if err := s.checkProject(ctx, a, inv.ProjectID); err != nil {
			return nil, err
		}
	}
	inv.UpdatedAt = s.now().Unix()

	if err := s.repos.Invoices.Update(ctx, inv); err != nil {
		return nil, err
	}
	s.audit(ctx, a, "invoice.updated", "invoice", inv.ID)
	return sanitize(access.EntityInvoice, inv, a.Role)
}

func (s *Service) setInvoiceStatus(ctx context.Context, a *access.Access, id, status string, perm access.Permission) (access.Record, error) {
	if err := a.Require(perm); err != nil {
		return nil, err
	}
	inv, err := s.getInvoice(ctx, a, id)
	if err != nil {
		return nil, err
	}
	inv.Status = status
	inv.UpdatedAt = s.now().Unix()
	if err := s.repos.Invoices.Update(ctx, inv); err != nil {
		return nil, err
	}
	s.audit(ctx, a, "invoice."+status, "invoice", inv.ID)
	return sanitize(access.EntityInvoice, inv, a.Role)
}

func (s *Service) ArchiveInvoice(ctx context.Context, a *access.Access, id string) (access.Record, error) {
	return s.setInvoiceStatus(ctx, a, id, models.RecordStatusArchived, access.InvoiceArchive)
}

func (s *Service) RestoreInvoice(ctx context.Context, a *access.Access, id string) (access.Record, error) {
	return s.setInvoiceStatus(ctx, a, id, models.RecordStatusActive, access.InvoiceRestore)
}

// MarkPaid moves the invoice to paid and stamps its paid date.
func (s *Service) MarkPaid(ctx context.Context, a *access.Access, id string) (access.Record, error) {
	if err := a.Require(access.InvoiceMarkPaid); err != nil {
		return nil, err
	}
	ok, err := s.repos.Invoices.MarkPaid(ctx, a.WorkspaceID(), id, s.now().Unix())
	if err != nil {
		return nil, err
	}
	inv, err := s.getInvoice(ctx, a, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAlreadyPaid
	}
	s.audit(ctx, a, "invoice.paid", "invoice", id)
	return sanitize(access.EntityInvoice, inv, a.Role)
}

func (s *Service) DeleteInvoice(ctx context.Context, a *access.Access, id string) error {
	if err := a.Require(access.InvoiceDelete); err != nil {
		return err
	}
	ok, err := s.repos.Invoices.Delete(ctx, a.WorkspaceID(), id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	s.audit(ctx, a, "invoice.deleted", "invoice", id)
	return nil
}
