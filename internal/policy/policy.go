// Package policy holds the board capability table and the business rules that
// can refuse an otherwise valid mutation. Refusals are domain.PolicyError values
// so callers can tell them apart from transient failures.
package policy

import (
	"fmt"

	"github.com/h0rv/kanban/internal/domain"
)

// Action is something a board member may be allowed to do.
type Action string

const (
	ActionRead        Action = "read"
	ActionComment     Action = "comment"
	ActionEdit        Action = "edit"    // create, update, move and reorder lists and cards
	ActionApprove     Action = "approve" // approve cards
	ActionManage      Action = "manage"  // members, labels, list gates, deleting others' cards
	ActionDeleteBoard Action = "delete_board"
)

// Can reports whether role grants action. Owners can do everything, admins
// everything but deleting the board.
func Can(role domain.Role, action Action) bool {
	switch role {
	case domain.RoleOwner:
		return true
	case domain.RoleAdmin:
		return action != ActionDeleteBoard
	case domain.RoleMember:
		return action == ActionRead || action == ActionComment || action == ActionEdit
	default:
		return false
	}
}

// Normalize maps a stored role string to a Role. Unknown values become
// RoleMember.
func Normalize(role string) domain.Role {
	switch domain.Role(role) {
	case domain.RoleOwner, domain.RoleAdmin, domain.RoleMember:
		return domain.Role(role)
	default:
		return domain.RoleMember
	}
}

// Authorize checks a mutation. member is false when the user has no role on the board.
func Authorize(role domain.Role, member bool, action Action) error {
	if !member {
		return domain.Reject("not a member of this board")
	}
	if !Can(role, action) {
		return domain.Reject(fmt.Sprintf("role %s may not %s", role, action))
	}
	return nil
}

// AuthorizeRead checks read access. Strangers get ErrForbidden, not a policy
// rejection, since nothing was attempted.
func AuthorizeRead(member bool) error {
	if !member {
		return domain.ErrForbidden
	}
	return nil
}

// CanEnter reports whether card may be moved into target.
// Moves within the same list never pass through here.
func CanEnter(card domain.Card, target domain.List) error {
	if target.RequiresApproval && !card.Approved {
		return domain.Reject(fmt.Sprintf("list %q requires approval before entry", target.Title))
	}
	return nil
}

// CanApprove enforces that approval is granted once, by an admin or the owner.
func CanApprove(role domain.Role, card domain.Card) error {
	if !Can(role, ActionApprove) {
		return domain.Reject(fmt.Sprintf("role %s may not approve cards", role))
	}
	if card.Approved {
		return domain.Reject("card already approved")
	}
	return nil
}

// CanDeleteCard lets members delete their own cards only.
func CanDeleteCard(role domain.Role, actor string, card domain.Card) error {
	if card.CreatorID == actor || Can(role, ActionManage) {
		return nil
	}
	return domain.Reject("only the creator or a board admin may delete this card")
}
