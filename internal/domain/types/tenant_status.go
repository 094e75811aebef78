package types

// TenantStatus es el estado operativo de un tenant.
type TenantStatus string

const (
	TenantActive TenantStatus = "active"
	// TenantRequiresBilling bloquea el ingreso directo: el login con intent
	// admin redirige a la configuración de facturación en lugar del tenant.
	TenantRequiresBilling TenantStatus = "requires_billing_setup"
	TenantSuspended       TenantStatus = "suspended"
)
