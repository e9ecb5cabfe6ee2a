package capability

import "github.com/localmart/authgate"

// rootBit is the highest bit of the mask, reserved to mean "everything".
// Admin grants carry it so new capabilities are admin-allowed by default.
const rootBit = 63

// Mask64 is a capability bitmask.
type Mask64 uint64

// Has reports whether the capability bit is set. A mask carrying the root
// bit has every capability.
func (m *Mask64) Has(c Capability) bool {
	if c < 0 || c >= capabilityCount {
		return false
	}
	if (*m & (1 << rootBit)) != 0 {
		return true
	}
	return (*m & (1 << c)) != 0
}

// Set sets the capability bit.
func (m *Mask64) Set(c Capability) {
	if c < 0 || c >= capabilityCount {
		return
	}
	*m |= (1 << c)
}

// Clear clears the capability bit.
func (m *Mask64) Clear(c Capability) {
	if c < 0 || c >= capabilityCount {
		return
	}
	*m &^= (1 << c)
}

// Raw returns the mask as a plain uint64.
func (m *Mask64) Raw() uint64 {
	return uint64(*m)
}

func maskOf(caps ...Capability) Mask64 {
	var m Mask64
	for _, c := range caps {
		m.Set(c)
	}
	return m
}

// grants is the role-to-capability table. Unknown roles resolve to the zero
// mask, so a typoed or future role can do nothing until added here.
var grants = map[authgate.Role]Mask64{
	authgate.RoleAdmin:     Mask64(1) << rootBit,
	authgate.RoleModerator: maskOf(AccessAnalytics, ModerateReviews, ViewAllOrders, SuspendStores),
	authgate.RoleSupport:   maskOf(HandleSupportTickets, ViewAllOrders),
	authgate.RoleSeller:    maskOf(SellProducts),
	authgate.RoleBuyer:     0,
}

// MaskFor returns the capability mask for a role. Unknown roles get the
// zero mask.
func MaskFor(role authgate.Role) Mask64 {
	return grants[role]
}

// Allows reports whether the role holds the capability.
func Allows(role authgate.Role, c Capability) bool {
	m := grants[role]
	return m.Has(c)
}

// AllowsUser reports whether the user holds the capability. Nil users hold
// nothing.
func AllowsUser(u *authgate.User, c Capability) bool {
	if u == nil {
		return false
	}
	return Allows(u.Role, c)
}

// Granted lists the capabilities a role holds, in declaration order.
func Granted(role authgate.Role) []Capability {
	m := grants[role]
	var out []Capability
	for _, c := range All() {
		if m.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// Set expands a role's grants into a name-keyed lookup table, the shape UI
// layers want for show/hide checks. Every capability appears as a key.
func Set(role authgate.Role) map[string]bool {
	m := grants[role]
	out := make(map[string]bool, capabilityCount)
	for _, c := range All() {
		out[c.String()] = m.Has(c)
	}
	return out
}
