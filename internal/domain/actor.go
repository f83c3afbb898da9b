package domain

import "fmt"

// Role is the coarse role carried by a verified session.
type Role string

// Known roles. RoleStoreOffice is the triage role.
const (
	RoleOffice         Role = "office"
	RoleFactoryOffice  Role = "factory_office"
	RoleStoreOffice    Role = "store_office"
	RoleFactory        Role = "factory"
	RoleDriverCrown    Role = "driver_crown"
	RoleDriverElectric Role = "driver_electric"
)

// TriageRole may assign tasks to fleets and reject requests.
const TriageRole = RoleStoreOffice

// Actor is the verified identity behind a request or connection.
type Actor struct {
	ID    string
	Role  Role
	Fleet string
}

// Operation names an action checked against the capability table.
type Operation string

// Operations known to the capability table.
const (
	OpListTasks   Operation = "task.list"
	OpCreateTask  Operation = "task.create"
	OpTransition  Operation = "task.transition"
	OpAssign      Operation = "task.assign"
	OpReject      Operation = "task.reject"
	OpListHistory Operation = "history.list"
	OpSubscribe   Operation = "events.subscribe"
)

// Decision is the explicit result of a capability lookup.
type Decision bool

const (
	Allow Decision = true
	Deny  Decision = false
)

var everyone = []Operation{OpListTasks, OpCreateTask, OpTransition, OpListHistory, OpSubscribe}

// capabilities is built once at init and never mutated.
var capabilities = func() map[Role]map[Operation]Decision {
	table := make(map[Role]map[Operation]Decision)
	for _, r := range []Role{RoleOffice, RoleFactoryOffice, RoleStoreOffice, RoleFactory, RoleDriverCrown, RoleDriverElectric} {
		ops := make(map[Operation]Decision)
		for _, op := range everyone {
			ops[op] = Allow
		}
		table[r] = ops
	}
	table[TriageRole][OpAssign] = Allow
	table[TriageRole][OpReject] = Allow
	return table
}()

// Authorize looks up whether role may perform op. Unknown roles and
// operations are denied.
func Authorize(role Role, op Operation) Decision {
	return capabilities[role][op]
}

// KnownRole reports whether r appears in the capability table.
func KnownRole(r Role) bool {
	_, ok := capabilities[r]
	return ok
}

// Require returns a wrapped ErrForbidden when the actor may not perform op.
func (a Actor) Require(op Operation) error {
	if Authorize(a.Role, op) == Deny {
		return fmt.Errorf("%w: role %q cannot %s", ErrForbidden, a.Role, op)
	}
	return nil
}
