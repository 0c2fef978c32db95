package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "anonymous read", role: RoleAnonymous, action: ActionRead, allow: true},
		{name: "anonymous react", role: RoleAnonymous, action: ActionReact, allow: false},
		{name: "member fork", role: RoleMember, action: ActionFork, allow: true},
		{name: "member publish", role: RoleMember, action: ActionPublish, allow: false},
		{name: "member delete", role: RoleMember, action: ActionDelete, allow: false},
		{name: "owner delete", role: RoleOwner, action: ActionDelete, allow: true},
		{name: "unknown role", role: Role("admin"), action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestRoleFor(t *testing.T) {
	if got := RoleFor("", "owner-1"); got != RoleAnonymous {
		t.Fatalf("RoleFor(anonymous) = %q", got)
	}
	if got := RoleFor("owner-1", "owner-1"); got != RoleOwner {
		t.Fatalf("RoleFor(owner) = %q", got)
	}
	if got := RoleFor("user-2", "owner-1"); got != RoleMember {
		t.Fatalf("RoleFor(member) = %q", got)
	}
}

func TestDecide(t *testing.T) {
	cases := []struct {
		name   string
		viewer string
		public bool
		action Action
		want   Decision
	}{
		{name: "draft hidden from member", viewer: "user-2", public: false, action: ActionRead, want: Hidden},
		{name: "draft hidden from anonymous", viewer: "", public: false, action: ActionRead, want: Hidden},
		{name: "draft visible to owner", viewer: "owner-1", public: false, action: ActionRead, want: Allow},
		{name: "published readable anonymously", viewer: "", public: true, action: ActionRead, want: Allow},
		{name: "anonymous fork needs login", viewer: "", public: true, action: ActionFork, want: Unauthenticated},
		{name: "member cannot publish", viewer: "user-2", public: true, action: ActionPublish, want: Forbidden},
		{name: "owner can delete draft", viewer: "owner-1", public: false, action: ActionDelete, want: Allow},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Decide(tc.viewer, "owner-1", tc.public, tc.action); got != tc.want {
				t.Fatalf("Decide() = %v, want %v", got, tc.want)
			}
		})
	}
}
