package lobby

import (
	"testing"

	"lobbyhub/internal/api"
)

func TestCapabilitiesFor(t *testing.T) {
	owner := api.Membership{User: api.User{ID: 1}, Role: api.RoleOwner}
	moderator := api.Membership{User: api.User{ID: 2}, Role: api.RoleModerator}
	member := api.Membership{User: api.User{ID: 3}, Role: api.RoleMember}
	banned := api.Membership{User: api.User{ID: 4}, Role: api.RoleMember, IsBanned: true}

	tests := []struct {
		name   string
		actor  api.Role
		target api.Membership
		want   Capabilities
	}{
		{
			name:   "owner against member",
			actor:  api.RoleOwner,
			target: member,
			want:   Capabilities{Kick: true, Ban: true, Promote: true, Transfer: true},
		},
		{
			name:   "owner against moderator",
			actor:  api.RoleOwner,
			target: moderator,
			want:   Capabilities{Kick: true, Ban: true, Demote: true, Transfer: true},
		},
		{
			name:   "owner against banned member",
			actor:  api.RoleOwner,
			target: banned,
			want:   Capabilities{Kick: true, Ban: true, Unban: true},
		},
		{
			name:   "owner against itself",
			actor:  api.RoleOwner,
			target: owner,
			want:   Capabilities{},
		},
		{
			name:   "moderator against member",
			actor:  api.RoleModerator,
			target: member,
			want:   Capabilities{Kick: true, Ban: true},
		},
		{
			name:   "moderator against moderator",
			actor:  api.RoleModerator,
			target: moderator,
			want:   Capabilities{Kick: true, Ban: true},
		},
		{
			name:   "moderator against owner",
			actor:  api.RoleModerator,
			target: owner,
			want:   Capabilities{},
		},
		{
			name:   "moderator against banned member",
			actor:  api.RoleModerator,
			target: banned,
			want:   Capabilities{Kick: true, Ban: true, Unban: true},
		},
		{
			name:   "member against member",
			actor:  api.RoleMember,
			target: member,
			want:   Capabilities{},
		},
		{
			name:   "member against owner",
			actor:  api.RoleMember,
			target: owner,
			want:   Capabilities{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CapabilitiesFor(tt.actor, tt.target); got != tt.want {
				t.Errorf("CapabilitiesFor(%s) = %+v, want %+v", tt.actor, got, tt.want)
			}
		})
	}
}

func TestBannedMembersAreNotPromotable(t *testing.T) {
	banned := api.Membership{User: api.User{ID: 4}, Role: api.RoleMember, IsBanned: true}

	caps := CapabilitiesFor(api.RoleOwner, banned)
	if caps.Promote {
		t.Error("owner may promote a banned member, want vetoed")
	}
}

func TestRequiresReason(t *testing.T) {
	withReason := []ModAction{ActionKick, ActionBan}
	withoutReason := []ModAction{ActionUnban, ActionPromote, ActionDemote, ActionTransferOwnership}

	for _, action := range withReason {
		if !action.RequiresReason() {
			t.Errorf("%s.RequiresReason() = false, want true", action)
		}
	}
	for _, action := range withoutReason {
		if action.RequiresReason() {
			t.Errorf("%s.RequiresReason() = true, want false", action)
		}
	}
}

func TestModActionEndpoints(t *testing.T) {
	tests := map[ModAction]string{
		ActionKick:              "kick",
		ActionBan:               "ban",
		ActionUnban:             "unban",
		ActionPromote:           "add_moderator",
		ActionDemote:            "remove_moderator",
		ActionTransferOwnership: "transfer_ownership",
	}

	for action, want := range tests {
		if got := action.endpoint(); got != want {
			t.Errorf("%s.endpoint() = %q, want %q", action, got, want)
		}
	}
}

func TestAllowsMapsEveryAction(t *testing.T) {
	all := Capabilities{Kick: true, Ban: true, Unban: true, Promote: true, Demote: true, Transfer: true}

	for _, action := range []ModAction{ActionKick, ActionBan, ActionUnban, ActionPromote, ActionDemote, ActionTransferOwnership} {
		if !all.Allows(action) {
			t.Errorf("Allows(%s) = false with full capabilities", action)
		}
		if (Capabilities{}).Allows(action) {
			t.Errorf("Allows(%s) = true with no capabilities", action)
		}
	}
	if all.Allows(ModAction("mute")) {
		t.Error("Allows(unknown) = true, want false")
	}
}
