package auth

// Destinos del dominio central. Rutas relativas: el controller las vuelve
// absolutas solo cuando el hand-off cruza de dominio.
const (
	PathIntentSelection = "/login"

	PathPractitionerLogin = "/login/practitioner"
	PathPatientLogin      = "/login/patient"
	PathAdminLogin        = "/login/admin"

	PathSecondFactor    = "/login/2fa"
	PathTenantSelection = "/login/select-tenant"

	PathCentralDashboard      = "/dashboard"
	PathPractitionerDashboard = "/practitioner/dashboard"
	PathPatientDashboard      = "/patient/dashboard"

	PathBillingSetup = "/billing/setup"
)

// tenantLandingPath es el destino default dentro del tenant tras el canje.
const tenantLandingPath = "/dashboard"
