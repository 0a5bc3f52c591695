package invites

import "errors"

var (
	ErrInvalidInvite    = errors.New("invite not found")
	ErrEmailMismatch    = errors.New("invite was sent to a different email address")
	ErrInviteExpired    = errors.New("invite has expired")
	ErrInviteNotPending = errors.New("invite is no longer pending")
)
