// Package rbac decides what a caller may do with a thread or collection based
// on their relation to its owner and whether the resource is public.
package rbac

type Role string
type Action string

const (
	RoleAnonymous Role = "anonymous"
	RoleMember    Role = "member"
	RoleOwner     Role = "owner"
)

const (
	ActionRead     Action = "read"
	ActionExport   Action = "export"
	ActionReact    Action = "react"
	ActionBookmark Action = "bookmark"
	ActionFork     Action = "fork"
	ActionCurate   Action = "curate"
	ActionPublish  Action = "publish"
	ActionDelete   Action = "delete"
)

// Decision is the outcome of Decide.
type Decision int

const (
	// Allow lets the action proceed.
	Allow Decision = iota
	// Hidden means the resource must look absent to the caller.
	Hidden
	// Unauthenticated means the action needs a signed-in caller.
	Unauthenticated
	// Forbidden means the caller can see the resource but may not do this.
	Forbidden
)

func RoleFor(viewerID, ownerID string) Role {
	switch {
	case viewerID == "":
		return RoleAnonymous
	case viewerID == ownerID:
		return RoleOwner
	default:
		return RoleMember
	}
}

func Can(role Role, action Action) bool {
	switch role {
	case RoleOwner:
		return true
	case RoleMember:
		return action == ActionRead || action == ActionExport || action == ActionReact ||
			action == ActionBookmark || action == ActionFork || action == ActionCurate
	case RoleAnonymous:
		return action == ActionRead || action == ActionExport
	default:
		return false
	}
}

// Decide applies visibility first: a non-public resource is Hidden from
// everyone but its owner regardless of action.
func Decide(viewerID, ownerID string, public bool, action Action) Decision {
	role := RoleFor(viewerID, ownerID)
	if !public && role != RoleOwner {
		return Hidden
	}
	if Can(role, action) {
		return Allow
	}
	if role == RoleAnonymous {
		return Unauthenticated
	}
	return Forbidden
}
