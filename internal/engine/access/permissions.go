package access

import (
	"fmt"
	"sort"
)

// Permission is an operation a role may perform inside a workspace.
type Permission string

const (
	ContactView    Permission = "contact.view"
	ContactCreate  Permission = "contact.create"
	ContactEdit    Permission = "contact.edit"
	ContactArchive Permission = "contact.archive"
	ContactRestore Permission = "contact.restore"
	ContactDelete  Permission = "contact.delete"

	ProjectView    Permission = "project.view"
	ProjectCreate  Permission = "project.create"
	ProjectEdit    Permission = "project.edit"
	ProjectArchive Permission = "project.archive"
	ProjectRestore Permission = "project.restore"
	ProjectDelete  Permission = "project.delete"

	MilestoneView    Permission = "milestone.view"
	MilestoneCreate  Permission = "milestone.create"
	MilestoneEdit    Permission = "milestone.edit"
	MilestoneArchive Permission = "milestone.archive"
	MilestoneRestore Permission = "milestone.restore"
	MilestoneDelete  Permission = "milestone.delete"

	InvoiceView        Permission = "invoice.view"
	InvoiceCreate      Permission = "invoice.create"
	InvoiceEdit        Permission = "invoice.edit"
	InvoiceArchive     Permission = "invoice.archive"
	InvoiceRestore     Permission = "invoice.restore"
	InvoiceDelete      Permission = "invoice.delete"
	InvoiceViewAmounts Permission = "invoice.view_amounts"
	InvoiceMarkPaid    Permission = "invoice.mark_paid"

	MembersView     Permission = "members.view"
	UsersManage     Permission = "users.manage"
	WorkspaceUpdate Permission = "workspace.update"
	WorkspaceDelete Permission = "workspace.delete"
	AuditView       Permission = "audit.view"
	SystemReset     Permission = "system.reset"
)

// catalog holds every defined permission. The value tells whether editors
// hold it; owners hold all of them.
var catalog = map[Permission]bool{
	ContactView: true, ContactCreate: true, ContactEdit: true, ContactArchive: true, ContactRestore: true,
	ContactDelete: false,

	ProjectView: true, ProjectCreate: true, ProjectEdit: true, ProjectArchive: true, ProjectRestore: true,
	ProjectDelete: false,

	MilestoneView: true, MilestoneCreate: true, MilestoneEdit: true, MilestoneArchive: true, MilestoneRestore: true,
	MilestoneDelete: false,

	InvoiceView: true, InvoiceCreate: true, InvoiceEdit: true, InvoiceArchive: true, InvoiceRestore: true,
	InvoiceDelete: false, InvoiceViewAmounts: false, InvoiceMarkPaid: false,

	MembersView:     true,
	UsersManage:     false,
	WorkspaceUpdate: false,
	WorkspaceDelete: false,
	AuditView:       false,
	SystemReset:     false,
}

// HasPermission reports whether role may perform perm. Unlisted roles hold
// nothing. It panics on a permission that is not in the catalog.
func HasPermission(role Role, perm Permission) bool {
	editor, ok := catalog[perm]
	if !ok {
		panic(fmt.Sprintf("access: undefined permission %q", perm))
	}
	switch role {
	case RoleOwner:
		return true
	case RoleEditor:
		return editor
	default:
		return false
	}
}

// Permissions returns every defined permission in name order.
func Permissions() []Permission {
	perms := make([]Permission, 0, len(catalog))
	for p := range catalog {
		perms = append(perms, p)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i] < perms[j] })
	return perms
}

// PermissionsFor returns the permissions role holds, in name order.
func PermissionsFor(role Role) []Permission {
	var perms []Permission
	for _, p := range Permissions() {
		if HasPermission(role, p) {
			perms = append(perms, p)
		}
	}
	return perms
}
