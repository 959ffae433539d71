package order

import "orderflow/auth"

// successors defines the only legal forward edges of the pipeline. Rejected
// and delivered are terminal; nothing moves backward and nothing skips.
var successors = map[Status][]Status{
	StatusPending:   {StatusApproved, StatusRejected},
	StatusApproved:  {StatusFunded},
	StatusFunded:    {StatusAllocated},
	StatusAllocated: {StatusDelivered},
}

// ValidStatus reports whether s is one of the six pipeline statuses.
func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusFunded, StatusAllocated, StatusDelivered:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transitions leave s.
func Terminal(s Status) bool {
	return len(successors[s]) == 0
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Status) bool {
	for _, next := range successors[from] {
		if next == to {
			return true
		}
	}
	return false
}

// RoleAllowed reports whether the actor's role is authorized for the
// from -> to edge. The approved -> funded edge belongs to bid selection, so
// it is authorized for admins and the order's broker; allocated -> delivered
// belongs to the funding party, a client or an admin.
func RoleAllowed(actor auth.Actor, from, to Status) bool {
	switch {
	case from == StatusPending && (to == StatusApproved || to == StatusRejected):
		return actor.Role == auth.RoleContractor
	case from == StatusApproved && to == StatusFunded:
		return actor.Role == auth.RoleAdmin || actor.Role == auth.RoleBroker
	case from == StatusFunded && to == StatusAllocated:
		return actor.Role == auth.RoleSourcingAgent
	case from == StatusAllocated && to == StatusDelivered:
		return actor.Role == auth.RoleClient || actor.Role == auth.RoleAdmin
	default:
		return false
	}
}
