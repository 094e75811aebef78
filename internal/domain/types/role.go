package types

// Role es un rol con alcance de tenant (los roles nunca son globales).
type Role string

const (
	RoleAdmin        Role = "admin"
	RoleStaff        Role = "staff"
	RolePractitioner Role = "practitioner"
)

// AdminEligible retorna true si el rol habilita el dashboard administrativo
// del tenant. Practitioner-only no alcanza para intent admin.
func (r Role) AdminEligible() bool {
	return r == RoleAdmin || r == RoleStaff
}
