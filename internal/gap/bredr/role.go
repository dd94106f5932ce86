package bredr

// Role is the local device's role in a pairing exchange.
type Role uint8

const (
	RoleInitiator Role = iota
	RoleResponder
)

func (r Role) String() string {
	if r == RoleResponder {
		return "Responder"
	}
	return "Initiator"
}
