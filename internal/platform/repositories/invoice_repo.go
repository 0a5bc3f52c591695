package repositories

import (
	"context"
	"database/sql"
	"encoding/json"

	"agencycrm/internal/platform/models"
)

type InvoiceRepository struct {
	db DBTX
}

const invoiceColumns = `id, workspace_id, project_id, number, client_name, state, status, amount, currency, due_date, paid_date, line_items, payments, notes, created_by, created_at, updated_at`

func (r *InvoiceRepository) Create(ctx context.Context, inv *models.Invoice) error {
	lineItems, payments, err := marshalInvoiceLists(inv)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO invoices (`+invoiceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, inv.ID, inv.WorkspaceID, inv.ProjectID, inv.Number, inv.ClientName, inv.State, inv.Status,
		nullFloat64(inv.Amount), inv.Currency, nullInt64(inv.DueDate), nullInt64(inv.PaidDate),
		lineItems, payments, inv.Notes, inv.CreatedBy, inv.CreatedAt, inv.UpdatedAt)
	return err
}

func (r *InvoiceRepository) Get(ctx context.Context, workspaceID, id string) (*models.Invoice, error) {
	inv, err := scanInvoice(r.db.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = ? AND workspace_id = ?`, id, workspaceID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return inv, err
}

func (r *InvoiceRepository) List(ctx context.Context, workspaceID string, f ListFilter) ([]*models.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE workspace_id = ?`
	args := []interface{}{workspaceID}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.Query != "" {
		query += ` AND (number LIKE ? ESCAPE '\' OR client_name LIKE ? ESCAPE '\')`
		like := f.containsPattern()
		args = append(args, like, like)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, f.limit(), f.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []*models.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

func (r *InvoiceRepository) Update(ctx context.Context, inv *models.Invoice) error {
	lineItems, payments, err := marshalInvoiceLists(inv)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE invoices SET project_id = ?, number = ?, client_name = ?, state = ?, status = ?, amount = ?, currency = ?,
			due_date = ?, paid_date = ?, line_items = ?, payments = ?, notes = ?, updated_at = ?
		WHERE id = ? AND workspace_id = ?
	`, inv.ProjectID, inv.Number, inv.ClientName, inv.State, inv.Status, nullFloat64(inv.Amount), inv.Currency,
		nullInt64(inv.DueDate), nullInt64(inv.PaidDate), lineItems, payments, inv.Notes, inv.UpdatedAt,
		inv.ID, inv.WorkspaceID)
	return err
}

// MarkPaid moves an unpaid invoice to paid. It reports whether the invoice
// was unpaid before the call.
func (r *InvoiceRepository) MarkPaid(ctx context.Context, workspaceID, id string, timestamp int64) (bool, error) {
	n, err := rowsAffected(r.db.ExecContext(ctx, `
		UPDATE invoices SET state = 'paid', paid_date = ?, updated_at = ?
		WHERE id = ? AND workspace_id = ? AND state <> 'paid'
	`, timestamp, timestamp, id, workspaceID))
	return n == 1, err
}

func (r *InvoiceRepository) Delete(ctx context.Context, workspaceID, id string) (bool, error) {
	n, err := rowsAffected(r.db.ExecContext(ctx, `DELETE FROM invoices WHERE id = ? AND workspace_id = ?`, id, workspaceID))
	return n == 1, err
}

func marshalInvoiceLists(inv *models.Invoice) (string, string, error) {
	lineItems := inv.LineItems
	if lineItems == nil {
		lineItems = []models.LineItem{}
	}
	payments := inv.Payments
	if payments == nil {
		payments = []models.Payment{}
	}
	lineItemsJSON, err := json.Marshal(lineItems)
	if err != nil {
		return "", "", err
	}
	paymentsJSON, err := json.Marshal(payments)
	if err != nil {
		return "", "", err
	}
	return string(lineItemsJSON), string(paymentsJSON), nil
}

func scanInvoice(s scanner) (*models.Invoice, error) {
	inv := &models.Invoice{}
	var amount sql.NullFloat64
	var dueDate, paidDate sql.NullInt64
	var lineItemsRaw, paymentsRaw []byte
	err := s.Scan(&inv.ID, &inv.WorkspaceID, &inv.ProjectID, &inv.Number, &inv.ClientName, &inv.State, &inv.Status,
		&amount, &inv.Currency, &dueDate, &paidDate, &lineItemsRaw, &paymentsRaw, &inv.Notes,
		&inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	inv.Amount = float64Ptr(amount)
	inv.DueDate = int64Ptr(dueDate)
	inv.PaidDate = int64Ptr(paidDate)
	if len(lineItemsRaw) > 0 {
		if err := json.Unmarshal(lineItemsRaw, &inv.LineItems); err != nil {
			return nil, err
		}
	}
	if len(paymentsRaw) > 0 {
		if err := json.Unmarshal(paymentsRaw, &inv.Payments); err != nil {
			return nil, err
		}
	}
	return inv, nil
}
