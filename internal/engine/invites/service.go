package invites

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"agencycrm/internal/engine/access"
	"agencycrm/internal/engine/workspaces"
	"agencycrm/internal/pkg/validator"
	"agencycrm/internal/platform/audit"
	"agencycrm/internal/platform/auth"
	"agencycrm/internal/platform/config"
	"agencycrm/internal/platform/models"
	"agencycrm/internal/platform/repositories"
)

type Notifier interface {
	InviteCreated(invite *models.TeamInvite, ws *models.Workspace, invitedBy string)
}

type TransitionRecorder interface {
	RecordInviteTransition(to string)
}

type nop struct{}

func (nop) InviteCreated(*models.TeamInvite, *models.Workspace, string) {}
func (nop) RecordInviteTransition(string)                               {}
func (nop) Log(context.Context, audit.Entry)                            {}

// Service drives invites through pending -> accepted | revoked | expired.
// Every transition is a single conditional write on status = 'pending'.
type Service struct {
	repos    *repositories.Repositories
	ttl      time.Duration
	notifier Notifier
	auditor  workspaces.Auditor
	recorder TransitionRecorder
	now      func() time.Time
}

func NewService(repos *repositories.Repositories, cfg config.InvitesConfig, notifier Notifier, auditor workspaces.Auditor, recorder TransitionRecorder) *Service {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	s := &Service{repos: repos, ttl: ttl, notifier: nop{}, auditor: nop{}, recorder: nop{}, now: time.Now}
	if notifier != nil {
		s.notifier = notifier
	}
	if auditor != nil {
		s.auditor = auditor
	}
	if recorder != nil {
		s.recorder = recorder
	}
	return s
}

// Create issues a fresh invite for email, revoking any pending invite for the
// same address in the workspace.
func (s *Service) Create(ctx context.Context, a *access.Access, email string, role access.Role) (*models.TeamInvite, error) {
	if err := a.Require(access.UsersManage); err != nil {
		return nil, err
	}
	if !role.IsValid() {
		return nil, fmt.Errorf("%w: %v", workspaces.ErrInvalidInput, access.ErrUnknownRole)
	}
	email, err := validator.NormalizeEmail(email)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", workspaces.ErrInvalidInput, err)
	}

	token, err := newToken()
	if err != nil {
		return nil, err
	}

	now := s.now()
	invite := &models.TeamInvite{
		ID:          "inv_" + uuid.NewString(),
		WorkspaceID: a.WorkspaceID(),
		Email:       email,
		Role:        string(role),
		Token:       token,
		Status:      models.InviteStatusPending,
		InvitedByID: a.Principal.UserID,
		ExpiresAt:   now.Add(s.ttl).Unix(),
		CreatedAt:   now.Unix(),
		UpdatedAt:   now.Unix(),
	}

	var revoked int64
	err = s.repos.InTx(ctx, func(tx *repositories.Repositories) error {
		user, err := tx.Users.GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		if user != nil {
			if user.WorkspaceID == invite.WorkspaceID {
				return workspaces.ErrAlreadyMember
			}
			m, err := tx.Memberships.Get(ctx, user.ID, invite.WorkspaceID)
			if err != nil {
				return err
			}
			if m != nil && m.IsActive {
				return workspaces.ErrAlreadyMember
			}
		}

		if revoked, err = tx.Invites.RevokePending(ctx, email, invite.WorkspaceID, now.Unix()); err != nil {
			return err
		}
		return tx.Invites.Create(ctx, invite)
	})
	if err != nil {
		return nil, err
	}

	for i := int64(0); i < revoked; i++ {
		s.recorder.RecordInviteTransition(models.InviteStatusRevoked)
	}
	s.recorder.RecordInviteTransition(models.InviteStatusPending)

	log.Info().Str("invite_id", invite.ID).Str("workspace_id", invite.WorkspaceID).Int64("revoked_prior", revoked).Msg("Invite created")
	s.auditor.Log(ctx, audit.Entry{
		WorkspaceID: invite.WorkspaceID, UserID: a.Principal.UserID, Action: "invite.created", ResourceType: "invite", ResourceID: invite.ID,
		Metadata: map[string]interface{}{"email": email, "role": invite.Role},
	})
	s.notifier.InviteCreated(invite, a.Workspace, a.Principal.UserID)

	return invite, nil
}

// pending loads the invite behind token and fails unless it can still be
// accepted. An invite found past its expiry is flipped to expired on the way.
func (s *Service) pending(ctx context.Context, token string, now int64) (*models.TeamInvite, error) {
	if token == "" {
		return nil, ErrInvalidInvite
	}
	invite, err := s.repos.Invites.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if invite == nil {
		return nil, ErrInvalidInvite
	}

	switch invite.Status {
	case models.InviteStatusPending:
	case models.InviteStatusExpired:
		return nil, ErrInviteExpired
	default:
		return nil, ErrInviteNotPending
	}

	if invite.ExpiresAt <= now {
		flipped, err := s.repos.Invites.MarkExpired(ctx, invite.ID, now)
		if err != nil {
			return nil, err
		}
		if flipped {
			s.recorder.RecordInviteTransition(models.InviteStatusExpired)
			log.Info().Str("invite_id", invite.ID).Msg("Invite expired")
		}
		return nil, ErrInviteExpired
	}
	return invite, nil
}

// Preview is what an invitee sees before accepting.
type Preview struct {
	Email         string `json:"email"`
	Role          string `json:"role"`
	WorkspaceID   string `json:"workspace_id"`
	WorkspaceName string `json:"workspace_name"`
	ExpiresAt     int64  `json:"expires_at"`
	AccountExists bool   `json:"account_exists"`
}

// Lookup resolves a token for display. It applies the same checks as Accept.
func (s *Service) Lookup(ctx context.Context, token string) (*Preview, error) {
	invite, err := s.pending(ctx, token, s.now().Unix())
	if err != nil {
		return nil, err
	}
	ws, err := s.repos.Workspaces.GetByID(ctx, invite.WorkspaceID)
	if err != nil {
		return nil, err
	}
	if ws == nil {
		return nil, ErrInvalidInvite
	}
	user, err := s.repos.Users.GetByEmail(ctx, invite.Email)
	if err != nil {
		return nil, err
	}
	return &Preview{
		Email:         invite.Email,
		Role:          invite.Role,
		WorkspaceID:   ws.ID,
		WorkspaceName: ws.Name,
		ExpiresAt:     invite.ExpiresAt,
		AccountExists: user != nil,
	}, nil
}

type AcceptRequest struct {
	Token    string `json:"token"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type AcceptResult struct {
	User        *models.User `json:"user"`
	WorkspaceID string       `json:"workspace_id"`
	Role        string       `json:"role"`
	NewAccount  bool         `json:"new_account"`
}

// Accept consumes the invite for the identity in req. A new email gets an
// account with its own workspace; an existing account must present its
// password. Either way the user ends with an active membership in the
// inviting workspace.
func (s *Service) Accept(ctx context.Context, req AcceptRequest) (*AcceptResult, error) {
	now := s.now().Unix()

	invite, err := s.pending(ctx, req.Token, now)
	if err != nil {
		return nil, err
	}

	email, err := validator.NormalizeEmail(req.Email)
	if err != nil || email != invite.Email {
		return nil, ErrEmailMismatch
	}

	existing, err := s.repos.Users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	var hash string
	if existing != nil {
		if !existing.IsActive || !auth.CheckPassword(existing.PasswordHash, req.Password) {
			return nil, workspaces.ErrInvalidCredentials
		}
	} else {
		if err := validator.Password(req.Password); err != nil {
			return nil, fmt.Errorf("%w: %v", workspaces.ErrInvalidInput, err)
		}
		if hash, err = auth.HashPassword(req.Password); err != nil {
			return nil, err
		}
	}

	result := &AcceptResult{WorkspaceID: invite.WorkspaceID, Role: invite.Role, NewAccount: existing == nil}
	err = s.repos.InTx(ctx, func(tx *repositories.Repositories) error {
		ws, err := tx.Workspaces.GetByID(ctx, invite.WorkspaceID)
		if err != nil {
			return err
		}
		if ws == nil || !ws.IsActive {
			return ErrInviteNotPending
		}

		userID := workspaces.NewUserID()
		if existing != nil {
			userID = existing.ID
		}
		// claim the invite first so a concurrent accept of the same token
		// loses on the invite, not on the email
		ok, err := tx.Invites.MarkAccepted(ctx, invite.ID, userID, now)
		if err != nil {
			return err
		}
		if !ok {
			return s.classify(ctx, tx, invite.Token, now)
		}

		user := existing
		if user == nil {
			acct := workspaces.NewAccount{UserID: userID, Email: email, PasswordHash: hash, Name: req.Name}
			if user, _, err = workspaces.CreateAccount(ctx, tx, acct, now); err != nil {
				return err
			}
		}
		result.User = user

		if user.WorkspaceID == invite.WorkspaceID {
			// the inviting workspace is already the user's home workspace
			result.Role = string(access.RoleOwner)
			return nil
		}
		err = tx.Memberships.Upsert(ctx, &models.WorkspaceMembership{
			ID:          "mem_" + uuid.NewString(),
			UserID:      user.ID,
			WorkspaceID: invite.WorkspaceID,
			Role:        invite.Role,
			InvitedByID: invite.InvitedByID,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if err != nil {
			return err
		}
		m, err := tx.Memberships.Get(ctx, user.ID, invite.WorkspaceID)
		if err != nil {
			return err
		}
		result.Role = m.Role
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recorder.RecordInviteTransition(models.InviteStatusAccepted)
	log.Info().Str("invite_id", invite.ID).Str("user_id", result.User.ID).Bool("new_account", result.NewAccount).Msg("Invite accepted")
	s.auditor.Log(ctx, audit.Entry{
		WorkspaceID: invite.WorkspaceID, UserID: result.User.ID, Action: "invite.accepted", ResourceType: "invite", ResourceID: invite.ID,
		Metadata: map[string]interface{}{"role": result.Role, "new_account": result.NewAccount},
	})
	return result, nil
}

// classify explains why a conditional transition matched no row.
func (s *Service) classify(ctx context.Context, tx *repositories.Repositories, token string, now int64) error {
	invite, err := tx.Invites.GetByToken(ctx, token)
	if err != nil {
		return err
	}
	switch {
	case invite == nil:
		return ErrInvalidInvite
	case invite.Status == models.InviteStatusExpired:
		return ErrInviteExpired
	case invite.Status != models.InviteStatusPending:
		return ErrInviteNotPending
	case invite.ExpiresAt <= now:
		return ErrInviteExpired
	default:
		return fmt.Errorf("invite %s: transition matched no row", invite.ID)
	}
}

// Revoke cancels a pending invite of the workspace.
func (s *Service) Revoke(ctx context.Context, a *access.Access, inviteID string) error {
	if err := a.Require(access.UsersManage); err != nil {
		return err
	}

	now := s.now().Unix()
	invite, err := s.repos.Invites.GetByID(ctx, a.WorkspaceID(), inviteID)
	if err != nil {
		return err
	}
	if invite == nil {
		return ErrInvalidInvite
	}
	if invite.Status == models.InviteStatusPending && invite.ExpiresAt <= now {
		flipped, err := s.repos.Invites.MarkExpired(ctx, invite.ID, now)
		if err != nil {
			return err
		}
		if flipped {
			s.recorder.RecordInviteTransition(models.InviteStatusExpired)
		}
		return ErrInviteNotPending
	}

	ok, err := s.repos.Invites.Revoke(ctx, a.WorkspaceID(), inviteID, now)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInviteNotPending
	}

	s.recorder.RecordInviteTransition(models.InviteStatusRevoked)
	s.auditor.Log(ctx, audit.Entry{WorkspaceID: a.WorkspaceID(), UserID: a.Principal.UserID, Action: "invite.revoked", ResourceType: "invite", ResourceID: inviteID})
	return nil
}

// List returns the workspace's invites with expiry applied to the view. A
// "pending" filter leaves out invites whose time has run out.
func (s *Service) List(ctx context.Context, a *access.Access, status string, limit, offset int) ([]*models.TeamInvite, error) {
	if err := a.Require(access.UsersManage); err != nil {
		return nil, err
	}
	switch status {
	case "", models.InviteStatusPending, models.InviteStatusAccepted, models.InviteStatusRevoked, models.InviteStatusExpired:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", workspaces.ErrInvalidInput, status)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	now := s.now().Unix()
	rows, err := s.repos.Invites.ListByWorkspace(ctx, a.WorkspaceID(), status, now, limit, offset)
	if err != nil {
		return nil, err
	}

	out := []*models.TeamInvite{}
	for _, inv := range rows {
		if inv.Status == models.InviteStatusPending && inv.ExpiresAt <= now {
			inv.Status = models.InviteStatusExpired
		}
		out = append(out, inv)
	}
	return out, nil
}
