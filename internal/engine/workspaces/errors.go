package workspaces

import "errors"

var (
	ErrLastOwner          = errors.New("workspace must keep at least one active owner")
	ErrDirectOwner        = errors.New("the workspace creator cannot be removed or demoted")
	ErrEmailTaken         = errors.New("an account with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrMemberNotFound     = errors.New("member not found")
	ErrAlreadyMember      = errors.New("user already belongs to this workspace")
	ErrInvalidInput       = errors.New("invalid input")
)
