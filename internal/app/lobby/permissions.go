/*
Package lobby maintains the browsable lobby directory and, for the current
lobby, the authoritative membership roster.

This file defines the moderation permission lattice. It is a mirror of backend
policy used only to decide which actions the UI offers; the backend re-validates
every action, and a backend rejection of something the mirror allowed is an
expected, tolerated outcome.
*/
package lobby

import "lobbyhub/internal/api"

// ModAction is one of the moderation operations.
type ModAction string

const (
	ActionKick              ModAction = "kick"
	ActionBan               ModAction = "ban"
	ActionUnban             ModAction = "unban"
	ActionPromote           ModAction = "promote"
	ActionDemote            ModAction = "demote"
	ActionTransferOwnership ModAction = "transfer_ownership"
)

// endpoint maps the action onto the backend's URL segment.
func (a ModAction) endpoint() string {
	switch a {
	case ActionPromote:
		return "add_moderator"
	case ActionDemote:
		return "remove_moderator"
	default:
		return string(a)
	}
}

// RequiresReason reports whether the action must carry a non-empty reason.
func (a ModAction) RequiresReason() bool {
	return a == ActionKick || a == ActionBan
}

// Capabilities is the set of moderation actions an actor may take against one
// target, as offered to the UI.
type Capabilities struct {
	Kick     bool
	Ban      bool
	Unban    bool
	Promote  bool
	Demote   bool
	Transfer bool
}

// CapabilitiesFor evaluates the lattice for one actor role against one target
// membership.
//
//	owner:     kick/ban/transfer on any non-owner, unban if banned,
//	           promote plain members, demote moderators
//	moderator: kick/ban on any non-owner, unban if banned
//	member:    nothing
func CapabilitiesFor(actor api.Role, target api.Membership) Capabilities {
	isOwner := actor == api.RoleOwner
	isModerator := actor == api.RoleModerator
	targetIsOwner := target.Role == api.RoleOwner

	return Capabilities{
		Kick:     (isOwner || isModerator) && !targetIsOwner,
		Ban:      (isOwner || isModerator) && !targetIsOwner,
		Unban:    (isOwner || isModerator) && target.IsBanned,
		Promote:  isOwner && target.Role == api.RoleMember && !target.IsBanned,
		Demote:   isOwner && target.Role == api.RoleModerator,
		Transfer: isOwner && !targetIsOwner,
	}
}

// Allows reports whether the lattice permits action against target.
func (c Capabilities) Allows(action ModAction) bool {
	switch action {
	case ActionKick:
		return c.Kick
	case ActionBan:
		return c.Ban
	case ActionUnban:
		return c.Unban
	case ActionPromote:
		return c.Promote
	case ActionDemote:
		return c.Demote
	case ActionTransferOwnership:
		return c.Transfer
	default:
		return false
	}
}
