package invites

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agencycrm/internal/engine/access"
	"agencycrm/internal/engine/workspaces"
	"agencycrm/internal/platform/config"
	"agencycrm/internal/platform/database"
	"agencycrm/internal/platform/models"
	"agencycrm/internal/platform/repositories"
)

type notifierStub struct {
	mu      sync.Mutex
	invites []string
}

func (n *notifierStub) InviteCreated(invite *models.TeamInvite, _ *models.Workspace, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.invites = append(n.invites, invite.ID)
}

type transitionsStub struct {
	mu sync.Mutex
	to []string
}

func (r *transitionsStub) RecordInviteTransition(to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.to = append(r.to, to)
}

type fixture struct {
	svc         *Service
	accounts    *workspaces.Service
	repos       *repositories.Repositories
	resolver    *access.MembershipResolver
	notifier    *notifierStub
	transitions *transitionsStub
	now         time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{URL: ":memory:", MaxConnections: 1})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db))

	repos := repositories.New(db)
	f := &fixture{
		accounts:    workspaces.NewService(repos, nil),
		repos:       repos,
		resolver:    access.NewMembershipResolver(repos.Workspaces, repos.Memberships, nil),
		notifier:    &notifierStub{},
		transitions: &transitionsStub{},
		now:         time.Unix(1700000000, 0),
	}
	f.svc = NewService(repos, config.InvitesConfig{}, f.notifier, nil, f.transitions)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) signup(t *testing.T, email string) (*access.Principal, string) {
	t.Helper()
	user, ws, err := f.accounts.Signup(context.Background(), workspaces.SignupRequest{Email: email, Password: "correct horse", Name: email})
	require.NoError(t, err)
	return &access.Principal{UserID: user.ID, Email: user.Email, Role: access.RoleOwner, WorkspaceID: user.WorkspaceID}, ws.ID
}

func (f *fixture) access(t *testing.T, p *access.Principal, workspaceID string) *access.Access {
	t.Helper()
	a, err := f.resolver.Resolve(context.Background(), p, workspaceID)
	require.NoError(t, err)
	return a
}

func TestCreate_RevokesPriorPendingInvite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, w1 := f.signup(t, "owner@x.com")
	a := f.access(t, owner, w1)

	first, err := f.svc.Create(ctx, a, "a@x.com", access.RoleEditor)
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, a, "A@X.com", access.RoleEditor)
	require.NoError(t, err)

	got, err := f.repos.Invites.GetByID(ctx, w1, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InviteStatusRevoked, got.Status)

	got, err = f.repos.Invites.GetByID(ctx, w1, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InviteStatusPending, got.Status)
	assert.Equal(t, "a@x.com", got.Email)

	assert.NotEqual(t, first.Token, second.Token)
	assert.Len(t, second.Token, 43)
	assert.Equal(t, f.now.Add(7*24*time.Hour).Unix(), second.ExpiresAt)

	assert.Equal(t, []string{first.ID, second.ID}, f.notifier.invites)
	assert.Equal(t, []string{"pending", "revoked", "pending"}, f.transitions.to)
}

func TestCreate_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, w1 := f.signup(t, "owner@x.com")
	editor, _ := f.signup(t, "editor@x.com")
	a := f.access(t, owner, w1)

	_, err := f.accounts.AddExistingUser(ctx, a, "editor@x.com", access.RoleEditor)
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, f.access(t, editor, w1), "new@x.com", access.RoleEditor)
	assert.ErrorIs(t, err, access.ErrForbidden)

	_, err = f.svc.Create(ctx, a, "owner@x.com", access.RoleEditor)
	assert.ErrorIs(t, err, workspaces.ErrAlreadyMember)

	_, err = f.svc.Create(ctx, a, "editor@x.com", access.RoleOwner)
	assert.ErrorIs(t, err, workspaces.ErrAlreadyMember)

	_, err = f.svc.Create(ctx, a, "not an email", access.RoleEditor)
	assert.ErrorIs(t, err, workspaces.ErrInvalidInput)

	_, err = f.svc.Create(ctx, a, "new@x.com", access.Role("admin"))
	assert.ErrorIs(t, err, workspaces.ErrInvalidInput)
}

func TestAccept_NewUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, w1 := f.signup(t, "owner@x.com")

	invite, err := f.svc.Create(ctx, f.access(t, owner, w1), "a@x.com", access.RoleEditor)
	require.NoError(t, err)

	res, err := f.svc.Accept(ctx, AcceptRequest{Token: invite.Token, Email: "a@x.com", Password: "a long password", Name: "Ada"})
	require.NoError(t, err)
	assert.True(t, res.NewAccount)
	assert.Equal(t, "editor", res.Role)
	assert.Equal(t, "owner", res.User.Role)
	assert.NotEqual(t, w1, res.User.WorkspaceID)

	home, err := f.repos.Workspaces.GetByID(ctx, res.User.WorkspaceID)
	require.NoError(t, err)
	require.NotNil(t, home)
	assert.Equal(t, res.User.ID, home.OwnerUserID)

	p := &access.Principal{UserID: res.User.ID, WorkspaceID: res.User.WorkspaceID, Role: access.RoleOwner}
	role, err := f.resolver.EffectiveRole(ctx, p, w1)
	require.NoError(t, err)
	assert.Equal(t, access.RoleEditor, role)

	stored, err := f.repos.Invites.GetByToken(ctx, invite.Token)
	require.NoError(t, err)
	assert.Equal(t, models.InviteStatusAccepted, stored.Status)
	require.NotNil(t, stored.AcceptedAt)
	assert.Equal(t, f.now.Unix(), *stored.AcceptedAt)
	require.NotNil(t, stored.AcceptedUserID)
	assert.Equal(t, res.User.ID, *stored.AcceptedUserID)
}

func TestAccept_TokenReuseFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, w1 := f.signup(t, "owner@x.com")
	a := f.access(t, owner, w1)

	invite, err := f.svc.Create(ctx, a, "a@x.com", access.RoleEditor)
	require.NoError(t, err)
	req := AcceptRequest{Token: invite.Token, Email: "a@x.com", Password: "a long password"}
	_, err = f.svc.Accept(ctx, req)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = f.svc.Accept(ctx, req)
		assert.ErrorIs(t, err, ErrInviteNotPending)
	}

	revoked, err := f.svc.Create(ctx, a, "b@x.com", access.RoleEditor)
	require.NoError(t, err)
	require.NoError(t, f.svc.Revoke(ctx, a, revoked.ID))
	_, err = f.svc.Accept(ctx, AcceptRequest{Token: revoked.Token, Email: "b@x.com", Password: "a long password"})
	assert.ErrorIs(t, err, ErrInviteNotPending)

	_, err = f.svc.Accept(ctx, AcceptRequest{Token: "no-such-token", Email: "b@x.com"})
	assert.ErrorIs(t, err, ErrInvalidInvite)
}

func TestAccept_ConcurrentNewUserSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, w1 := f.signup(t, "owner@x.com")

	invite, err := f.svc.Create(ctx, f.access(t, owner, w1), "a@x.com", access.RoleEditor)
	require.NoError(t, err)

	const n = 4
	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.svc.Accept(ctx, AcceptRequest{Token: invite.Token, Email: "a@x.com", Password: "a long password"})
		}(i)
	}
	close(start)
	wg.Wait()

	var won int
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		assert.ErrorIs(t, err, ErrInviteNotPending)
		assert.NotErrorIs(t, err, workspaces.ErrEmailTaken)
	}
	assert.Equal(t, 1, won)

	user, err := f.repos.Users.GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.NotNil(t, user)
	stored, err := f.repos.Invites.GetByToken(ctx, invite.Token)
	require.NoError(t, err)
	assert.Equal(t, models.InviteStatusAccepted, stored.Status)
	require.NotNil(t, stored.AcceptedUserID)
	assert.Equal(t, user.ID, *stored.AcceptedUserID)
}

func TestAccept_LazyExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, w1 := f.signup(t, "owner@x.com")

	invite, err := f.svc.Create(ctx, f.access(t, owner, w1), "a@x.com", access.RoleEditor)
	require.NoError(t, err)

	f.now = f.now.Add(7*24*time.Hour + time.Second)

	_, err = f.svc.Accept(ctx, AcceptRequest{Token: invite.Token, Email: "a@x.com", Password: "a long password"})
	assert.ErrorIs(t, err, ErrInviteExpired)

	stored, err := f.repos.Invites.GetByToken(ctx, invite.Token)
	require.NoError(t, err)
	assert.Equal(t, models.InviteStatusExpired, stored.Status)

	_, err = f.svc.Accept(ctx, AcceptRequest{Token: invite.Token, Email: "a@x.com", Password: "a long password"})
	assert.ErrorIs(t, err, ErrInviteExpired)

	user, err := f.repos.Users.GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Nil(t, user)
	assert.Contains(t, f.transitions.to, "expired")
}

func TestAccept_EmailMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, w1 := f.signup(t, "owner@x.com")

	invite, err := f.svc.Create(ctx, f.access(t, owner, w1), "a@x.com", access.RoleEditor)
	require.NoError(t, err)

	_, err = f.svc.Accept(ctx, AcceptRequest{Token: invite.Token, Email: "intruder@x.com", Password: "a long password"})
	assert.ErrorIs(t, err, ErrEmailMismatch)

	stored, err := f.repos.Invites.GetByToken(ctx, invite.Token)
	require.NoError(t, err)
	assert.Equal(t, models.InviteStatusPending, stored.Status)
}

func TestAccept_ExistingUserReactivatesMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, w1 := f.signup(t, "owner@x.com")
	bob, _ := f.signup(t, "bob@x.com")
	a := f.access(t, owner, w1)

	_, err := f.accounts.AddExistingUser(ctx, a, "bob@x.com", access.RoleEditor)
	require.NoError(t, err)
	require.NoError(t, f.accounts.RemoveMember(ctx, a, bob.UserID))

	_, err = f.resolver.Resolve(ctx, bob, w1)
	require.ErrorIs(t, err, access.ErrForbidden)

	invite, err := f.svc.Create(ctx, a, "bob@x.com", access.RoleOwner)
	require.NoError(t, err)

	_, err = f.svc.Accept(ctx, AcceptRequest{Token: invite.Token, Email: "bob@x.com", Password: "wrong password"})
	assert.ErrorIs(t, err, workspaces.ErrInvalidCredentials)

	res, err := f.svc.Accept(ctx, AcceptRequest{Token: invite.Token, Email: "bob@x.com", Password: "correct horse"})
	require.NoError(t, err)
	assert.False(t, res.NewAccount)
	assert.Equal(t, bob.UserID, res.User.ID)

	role, err := f.resolver.EffectiveRole(ctx, bob, w1)
	require.NoError(t, err)
	assert.Equal(t, access.RoleOwner, role)
}

func TestRevoke(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, w1 := f.signup(t, "owner@x.com")
	other, w2 := f.signup(t, "other@x.com")
	a := f.access(t, owner, w1)

	invite, err := f.svc.Create(ctx, a, "a@x.com", access.RoleEditor)
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.Revoke(ctx, f.access(t, other, w2), invite.ID), ErrInvalidInvite)
	require.NoError(t, f.svc.Revoke(ctx, a, invite.ID))
	assert.ErrorIs(t, f.svc.Revoke(ctx, a, invite.ID), ErrInviteNotPending)
	assert.ErrorIs(t, f.svc.Revoke(ctx, a, "inv_missing"), ErrInvalidInvite)

	late, err := f.svc.Create(ctx, a, "late@x.com", access.RoleEditor)
	require.NoError(t, err)
	f.now = f.now.Add(8 * 24 * time.Hour)
	assert.ErrorIs(t, f.svc.Revoke(ctx, a, late.ID), ErrInviteNotPending)

	stored, err := f.repos.Invites.GetByID(ctx, w1, late.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InviteStatusExpired, stored.Status)
}

func TestRevoke_ExpiryWriteFailureSurfaces(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	transitions := &transitionsStub{}
	svc := NewService(repositories.New(db), config.InvitesConfig{}, nil, nil, transitions)
	svc.now = func() time.Time { return time.Unix(1000, 0) }
	a := &access.Access{
		Principal: &access.Principal{UserID: "usr_1", WorkspaceID: "ws_1", Role: access.RoleOwner},
		Workspace: &models.Workspace{ID: "ws_1", OwnerUserID: "usr_1", IsActive: true},
		Role:      access.RoleOwner,
	}

	rows := sqlmock.NewRows([]string{"id", "workspace_id", "email", "role", "token", "status", "invited_by_id", "expires_at", "accepted_at", "accepted_user_id", "created_at", "updated_at"}).
		AddRow("inv_1", "ws_1", "a@x.com", "editor", "tok_1", "pending", "usr_1", 500, nil, nil, 1, 1)
	mock.ExpectQuery("SELECT (.+) FROM team_invites WHERE id = (.+)").WithArgs("inv_1", "ws_1").WillReturnRows(rows)
	boom := errors.New("disk I/O error")
	mock.ExpectExec("UPDATE team_invites SET status = 'expired'").WillReturnError(boom)

	err = svc.Revoke(context.Background(), a, "inv_1")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrInviteNotPending)
	assert.Empty(t, transitions.to)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestList_AppliesExpiryToView(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, w1 := f.signup(t, "owner@x.com")
	a := f.access(t, owner, w1)

	old, err := f.svc.Create(ctx, a, "old@x.com", access.RoleEditor)
	require.NoError(t, err)
	f.now = f.now.Add(5 * 24 * time.Hour)
	fresh, err := f.svc.Create(ctx, a, "fresh@x.com", access.RoleEditor)
	require.NoError(t, err)
	f.now = f.now.Add(3 * 24 * time.Hour)

	pending, err := f.svc.List(ctx, a, "pending", 0, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, fresh.ID, pending[0].ID)

	expired, err := f.svc.List(ctx, a, "expired", 0, 0)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, old.ID, expired[0].ID)

	all, err := f.svc.List(ctx, a, "", 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = f.svc.List(ctx, a, "bogus", 0, 0)
	assert.ErrorIs(t, err, workspaces.ErrInvalidInput)
}

func TestLookup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, w1 := f.signup(t, "owner@x.com")

	invite, err := f.svc.Create(ctx, f.access(t, owner, w1), "a@x.com", access.RoleEditor)
	require.NoError(t, err)

	preview, err := f.svc.Lookup(ctx, invite.Token)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", preview.Email)
	assert.Equal(t, w1, preview.WorkspaceID)
	assert.False(t, preview.AccountExists)

	_, err = f.svc.Lookup(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidInvite)
}
