package workspaces

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"agencycrm/internal/engine/access"
	"agencycrm/internal/pkg/validator"
	"agencycrm/internal/platform/audit"
	"agencycrm/internal/platform/auth"
	"agencycrm/internal/platform/models"
	"agencycrm/internal/platform/repositories"
)

// NewAccount describes a user to create together with their personal workspace.
type NewAccount struct {
	// UserID is generated when empty.
	UserID        string
	Email         string
	PasswordHash  string
	Name          string
	WorkspaceName string
}

// CreateAccount inserts a user and the workspace they own directly. It must
// run inside a transaction. A taken email is ErrEmailTaken.
func CreateAccount(ctx context.Context, tx *repositories.Repositories, acct NewAccount, now int64) (*models.User, *models.Workspace, error) {
	wsName := strings.TrimSpace(acct.WorkspaceName)
	if wsName == "" {
		wsName = defaultWorkspaceName(acct.Name, acct.Email)
	}

	userID := acct.UserID
	if userID == "" {
		userID = NewUserID()
	}
	user := &models.User{
		ID:           userID,
		Email:        acct.Email,
		PasswordHash: acct.PasswordHash,
		Name:         strings.TrimSpace(acct.Name),
		Role:         string(access.RoleOwner),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	ws := &models.Workspace{
		ID:          "ws_" + uuid.NewString(),
		Name:        wsName,
		OwnerUserID: user.ID,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	user.WorkspaceID = ws.ID

	if err := tx.Users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrUniqueViolation) {
			return nil, nil, ErrEmailTaken
		}
		return nil, nil, err
	}
	if err := tx.Workspaces.Create(ctx, ws); err != nil {
		return nil, nil, err
	}
	return user, ws, nil
}

// NewUserID returns a fresh user id.
func NewUserID() string {
	return "usr_" + uuid.NewString()
}

func defaultWorkspaceName(name, email string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name + "'s Workspace"
	}
	local, _, _ := strings.Cut(email, "@")
	return local + "'s Workspace"
}

type SignupRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	Name          string `json:"name"`
	WorkspaceName string `json:"workspace_name"`
}

// Signup creates an owner account and its personal workspace.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (*models.User, *models.Workspace, error) {
	email, err := validator.NormalizeEmail(req.Email)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := validator.Password(req.Password); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, nil, err
	}

	var user *models.User
	var ws *models.Workspace
	err = s.repos.InTx(ctx, func(tx *repositories.Repositories) error {
		var err error
		user, ws, err = CreateAccount(ctx, tx, NewAccount{Email: email, PasswordHash: hash, Name: req.Name, WorkspaceName: req.WorkspaceName}, s.now().Unix())
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	log.Info().Str("user_id", user.ID).Str("workspace_id", ws.ID).Msg("Account created")
	return user, ws, nil
}

// Authenticate returns the active user owning email when password matches.
// Every failure is ErrInvalidCredentials.
func Authenticate(ctx context.Context, users *repositories.UserRepository, email, password string) (*models.User, error) {
	email, err := validator.NormalizeEmail(email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	user, err := users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsActive || !auth.CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (*models.User, error) {
	user, err := Authenticate(ctx, s.repos.Users, email, password)
	if err != nil {
		return nil, err
	}
	if err := s.repos.Users.UpdateLastLogin(ctx, user.ID, s.now().Unix()); err != nil {
		log.Warn().Err(err).Str("user_id", user.ID).Msg("Failed to record last login")
	}
	return user, nil
}

// CloseAccount deactivates the principal's account after checking password.
// It fails with ErrLastOwner while the user is the only active owner of a
// workspace they joined. Their home workspace is deactivated too when no other
// owner remains there.
func (s *Service) CloseAccount(ctx context.Context, p *access.Principal, password string) error {
	user, err := s.repos.Users.GetByID(ctx, p.UserID)
	if err != nil {
		return err
	}
	if user == nil || !user.IsActive || !auth.CheckPassword(user.PasswordHash, password) {
		return ErrInvalidCredentials
	}

	now := s.now().Unix()
	homeClosed := false
	err = s.repos.InTx(ctx, func(tx *repositories.Repositories) error {
		sole, err := tx.Memberships.SoleOwnerOf(ctx, user.ID)
		if err != nil {
			return err
		}
		if len(sole) > 0 {
			return fmt.Errorf("%w: transfer ownership of %s first", ErrLastOwner, strings.Join(sole, ", "))
		}
		if err := tx.Users.SetActive(ctx, user.ID, false, now); err != nil {
			return err
		}

		owners, err := tx.Memberships.OwnerCount(ctx, user.WorkspaceID)
		if err != nil {
			return err
		}
		if owners > 0 {
			return nil
		}
		homeClosed = true
		_, _, err = deactivateWorkspace(ctx, tx, user.WorkspaceID, now)
		return err
	})
	if err != nil {
		return err
	}

	log.Info().Str("user_id", user.ID).Bool("workspace_closed", homeClosed).Msg("Account closed")
	s.auditor.Log(ctx, audit.Entry{
		WorkspaceID: user.WorkspaceID, UserID: user.ID, Action: "account.closed", ResourceType: "user", ResourceID: user.ID,
		Metadata: map[string]interface{}{"workspace_closed": homeClosed},
	})
	return nil
}
