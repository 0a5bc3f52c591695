package models

type User struct {
	ID           string `json:"id"`
	WorkspaceID  string `json:"workspace_id"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	IsActive     bool   `json:"is_active"`
	LastLoginAt  *int64 `json:"last_login_at,omitempty"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
}

type Workspace struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	LogoURL     string `json:"logo_url,omitempty"`
	OwnerUserID string `json:"owner_user_id"`
	IsActive    bool   `json:"is_active"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

// WorkspaceMembership grants a user a role in a workspace other than the one
// they were created in. There is at most one row per (user, workspace).
type WorkspaceMembership struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	WorkspaceID string `json:"workspace_id"`
	Role        string `json:"role"`
	IsActive    bool   `json:"is_active"`
	InvitedByID string `json:"invited_by_id,omitempty"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

// Member is a membership joined with the user it belongs to.
type Member struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	IsDirect bool   `json:"is_direct"`
	IsActive bool   `json:"is_active"`
}

const (
	InviteStatusPending  = "pending"
	InviteStatusAccepted = "accepted"
	InviteStatusRevoked  = "revoked"
	InviteStatusExpired  = "expired"
)

type TeamInvite struct {
	ID             string  `json:"id"`
	WorkspaceID    string  `json:"workspace_id"`
	Email          string  `json:"email"`
	Role           string  `json:"role"`
	Token          string  `json:"-"`
	Status         string  `json:"status"`
	InvitedByID    string  `json:"invited_by_id"`
	ExpiresAt      int64   `json:"expires_at"`
	AcceptedAt     *int64  `json:"accepted_at,omitempty"`
	AcceptedUserID *string `json:"accepted_user_id,omitempty"`
	CreatedAt      int64   `json:"created_at"`
	UpdatedAt      int64   `json:"updated_at"`
}

const (
	RecordStatusActive   = "active"
	RecordStatusArchived = "archived"
)

type Project struct {
	ID           string   `json:"id"`
	WorkspaceID  string   `json:"workspace_id"`
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	ClientName   string   `json:"client_name,omitempty"`
	Status       string   `json:"status"`
	BudgetAmount *float64 `json:"budget_amount,omitempty"`
	Currency     string   `json:"currency,omitempty"`
	CreatedBy    string   `json:"created_by"`
	CreatedAt    int64    `json:"created_at"`
	UpdatedAt    int64    `json:"updated_at"`
}

const (
	InvoiceStateDraft = "draft"
	InvoiceStateSent  = "sent"
	InvoiceStatePaid  = "paid"
)

type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
}

type Payment struct {
	Amount float64 `json:"amount"`
	PaidAt int64   `json:"paid_at"`
	Method string  `json:"method,omitempty"`
}

type Invoice struct {
	ID          string     `json:"id"`
	WorkspaceID string     `json:"workspace_id"`
	ProjectID   string     `json:"project_id,omitempty"`
	Number      string     `json:"number"`
	ClientName  string     `json:"client_name,omitempty"`
	State       string     `json:"state"`
	Status      string     `json:"status"`
	Amount      *float64   `json:"amount,omitempty"`
	Currency    string     `json:"currency,omitempty"`
	DueDate     *int64     `json:"due_date,omitempty"`
	PaidDate    *int64     `json:"paid_date,omitempty"`
	LineItems   []LineItem `json:"line_items,omitempty"`
	Payments    []Payment  `json:"payments,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	CreatedBy   string     `json:"created_by"`
	CreatedAt   int64      `json:"created_at"`
	UpdatedAt   int64      `json:"updated_at"`
}
