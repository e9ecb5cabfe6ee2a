// Package capability maps storefront roles to a fixed set of capabilities.
//
// The set is closed: roles and capabilities are compile-time constants, and
// the grant table is the single authority for what each role may do. UI and
// guard code asks Allows questions; it never inspects role names beyond the
// redirect split the roles themselves define.
package capability

// Capability is a bit position within a [Mask64].
type Capability int

const (
	ManageUsers Capability = iota
	AccessAnalytics
	ManageProducts
	ViewAllOrders
	ModerateReviews
	HandleSupportTickets
	SellProducts
	SuspendStores

	capabilityCount
)

var capabilityNames = [...]string{
	ManageUsers:          "manage_users",
	AccessAnalytics:      "access_analytics",
	ManageProducts:       "manage_products",
	ViewAllOrders:        "view_all_orders",
	ModerateReviews:      "moderate_reviews",
	HandleSupportTickets: "handle_support_tickets",
	SellProducts:         "sell_products",
	SuspendStores:        "suspend_stores",
}

func (c Capability) String() string {
	if c < 0 || c >= capabilityCount {
		return "unknown"
	}
	return capabilityNames[c]
}

// All returns every defined capability in declaration order.
func All() []Capability {
	out := make([]Capability, capabilityCount)
	for i := range out {
		out[i] = Capability(i)
	}
	return out
}
