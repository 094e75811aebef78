package auth

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Effham/wellvois/internal/domain/repository"
	"github.com/Effham/wellvois/internal/domain/types"
	"github.com/Effham/wellvois/internal/email"
	dto "github.com/Effham/wellvois/internal/http/dto/auth"
	"github.com/Effham/wellvois/internal/metrics"
	"github.com/Effham/wellvois/internal/observability/logger"
	"github.com/Effham/wellvois/internal/security/password"
	"github.com/Effham/wellvois/internal/session"
	"github.com/Effham/wellvois/internal/sso"
	"github.com/Effham/wellvois/internal/tenancy"
	"go.uber.org/zap"
)

// LoginDeps contiene las dependencias del login service.
type LoginDeps struct {
	Identities  repository.IdentityRepository
	Tenants     repository.TenantRepository
	Memberships repository.MembershipRepository
	DocTokens   repository.DocumentAccessTokenRepository

	Sessions *session.Manager
	Broker   CodeBroker
	Verifier MembershipVerifier
	Domains  TenantDomainResolver
	Notifier email.Notifier // nil = Noop

	// CentralHosts son los hosts del dominio central; un intended URL hacia
	// uno de ellos no dispara hand-off.
	CentralHosts []string

	// TOTPWindow es la tolerancia en steps del verificador TOTP (default 1).
	TOTPWindow int

	Clock Clock // nil = time.Now
}

type loginService struct {
	deps LoginDeps
}

// NewLoginService crea un nuevo servicio de login.
func NewLoginService(deps LoginDeps) LoginService {
	if deps.Notifier == nil {
		deps.Notifier = email.Noop{}
	}
	if deps.TOTPWindow <= 0 {
		deps.TOTPWindow = 1
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &loginService{deps: deps}
}

// Errores del flujo de login
var (
	ErrMissingFields      = fmt.Errorf("missing required fields")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrUserDisabled       = fmt.Errorf("user disabled")
	ErrWrongAccountType   = fmt.Errorf("account type does not match login intent")
	ErrTenantNotFound     = fmt.Errorf("tenant not found")
	ErrMembershipDenied   = fmt.Errorf("membership denied")
	ErrNoPendingChallenge = fmt.Errorf("no second factor challenge pending")
	ErrSecondFactorFailed = fmt.Errorf("second factor verification failed")
	ErrHandoffFailed      = fmt.Errorf("sso handoff failed")
)

func (s *loginService) LoginPassword(ctx context.Context, sess *session.Session, in dto.LoginRequest, opts LoginOptions) (*Result, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.login"),
		logger.Op("LoginPassword"),
	)

	// Paso 0: Resolver intent ANTES de tocar credenciales. Un intent
	// inválido o ausente termina acá: las credenciales ni se miran.
	intent, ok := s.resolveIntent(sess, in, opts)
	if !ok {
		log.Info("login rejected: invalid or missing intent",
			zap.String("raw_intent", firstNonEmpty(opts.RouteIntent, opts.QueryIntent, in.Intent)))
		metrics.LoginAttempts.WithLabelValues("unknown", "invalid_intent").Inc()
		return &Result{Outcome: OutcomeIntentSelection, RedirectTo: PathIntentSelection, Session: sess}, nil
	}
	log = log.With(logger.Intent(string(intent)))

	// El intent elegido queda en sesión: sobrevive el desvío por 2FA y se
	// consume exactamente una vez al resolver destino.
	sess.Data.LoginIntent = string(intent)
	if err := s.deps.Sessions.Save(ctx, sess); err != nil {
		return &Result{Session: sess}, err
	}

	// Paso 1: Normalización y validación mínima
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	if in.Email == "" || in.Password == "" {
		metrics.LoginAttempts.WithLabelValues(string(intent), "missing_fields").Inc()
		return &Result{Session: sess}, ErrMissingFields
	}

	// Paso 2: Buscar identidad y verificar password
	identity, err := s.deps.Identities.GetByEmail(ctx, in.Email)
	if err != nil {
		if repository.IsNotFound(err) {
			log.Debug("identity not found")
			metrics.LoginAttempts.WithLabelValues(string(intent), "invalid_credentials").Inc()
			return &Result{Session: sess}, ErrInvalidCredentials
		}
		return &Result{Session: sess}, err
	}
	log = log.With(logger.UserID(identity.ID))

	if identity.DisabledAt != nil {
		log.Info("identity disabled")
		metrics.LoginAttempts.WithLabelValues(string(intent), "disabled").Inc()
		return &Result{Session: sess}, ErrUserDisabled
	}

	if identity.PasswordHash == nil || *identity.PasswordHash == "" {
		log.Debug("no password credential for identity")
		metrics.LoginAttempts.WithLabelValues(string(intent), "invalid_credentials").Inc()
		return &Result{Session: sess}, ErrInvalidCredentials
	}
	if !password.Verify(in.Password, *identity.PasswordHash) {
		log.Debug("password check failed")
		metrics.LoginAttempts.WithLabelValues(string(intent), "invalid_credentials").Inc()
		return &Result{Session: sess}, ErrInvalidCredentials
	}

	// Paso 3: Credenciales OK. Rotar el id de sesión (mitiga fixation),
	// estampar user y login_time.
	sess.Data.UserID = identity.ID
	sess.Data.LoginTime = s.deps.Clock().Unix()
	fresh, err := s.deps.Sessions.Regenerate(ctx, sess)
	if err != nil {
		return &Result{Session: sess}, err
	}
	sess = fresh

	s.deps.Notifier.NotifyLogin(ctx, identity.Email, s.deps.Clock(), opts.ClientIP)

	// Paso 4: Gate de segundo factor
	if identity.SecondFactorEnabled && !sess.Data.TwoFAPassed {
		sess.Data.TwoFAUserID = identity.ID
		if err := s.deps.Sessions.Save(ctx, sess); err != nil {
			return &Result{Session: sess}, err
		}
		log.Info("second factor required")
		metrics.SecondFactorChallenges.Inc()
		metrics.LoginAttempts.WithLabelValues(string(intent), "second_factor").Inc()
		return &Result{Outcome: OutcomeSecondFactor, RedirectTo: PathSecondFactor, Session: sess}, nil
	}

	// Paso 5: Resolver destino
	res, err := s.resolveDestination(ctx, sess, identity, intent)
	if err == nil {
		metrics.LoginAttempts.WithLabelValues(string(intent), "success").Inc()
	} else {
		metrics.LoginAttempts.WithLabelValues(string(intent), "denied").Inc()
	}
	return res, err
}

// resolveIntent aplica la precedencia route > query > sesión > body.
func (s *loginService) resolveIntent(sess *session.Session, in dto.LoginRequest, opts LoginOptions) (types.LoginIntent, bool) {
	raw := firstNonEmpty(opts.RouteIntent, opts.QueryIntent, sess.Data.LoginIntent, in.Intent)
	if raw == "" {
		return "", false
	}
	return types.ParseIntent(raw)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// resolveDestination es el último paso del flujo: consume el intent de la
// sesión y decide entre dashboard central, selección de tenant o hand-off.
// Ante cualquier estado inconsistente (tipo de cuenta equivocado, tenant
// inexistente, membresía denegada) desarma la sesión por completo.
func (s *loginService) resolveDestination(ctx context.Context, sess *session.Session, identity *repository.Identity, intent types.LoginIntent) (*Result, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.login"),
		logger.Op("resolveDestination"),
		logger.UserID(identity.ID),
		logger.Intent(string(intent)),
	)

	// El intent se consume acá, pase lo que pase después.
	sess.Data.LoginIntent = ""

	switch intent {
	case types.IntentPatient:
		if !identity.IsPatient() {
			log.Warn("patient intent without patient record")
			return s.hardFail(ctx, sess, PathPatientLogin, ErrWrongAccountType)
		}
		if res, handled, err := s.resolveIntended(ctx, sess, identity, intent, log); handled {
			return res, err
		}
		return s.finish(ctx, sess, PathPatientDashboard)

	case types.IntentPractitioner:
		if !identity.IsPractitioner() {
			log.Warn("practitioner intent without practitioner record")
			return s.hardFail(ctx, sess, PathPractitionerLogin, ErrWrongAccountType)
		}
		if res, handled, err := s.resolveIntended(ctx, sess, identity, intent, log); handled {
			return res, err
		}
		grants, err := s.verifiedGrants(ctx, identity)
		if err != nil {
			return &Result{Session: sess}, err
		}
		switch len(grants) {
		case 0:
			return s.finish(ctx, sess, PathPractitionerDashboard)
		case 1:
			return s.handoff(ctx, sess, identity, intent, &grants[0].Tenant, tenantLandingPath, nil, log)
		default:
			return s.finish(ctx, sess, PathTenantSelection)
		}

	case types.IntentAdmin:
		if identity.IsPatientOnly() {
			log.Warn("admin intent with patient-only account")
			return s.hardFail(ctx, sess, PathAdminLogin, ErrWrongAccountType)
		}
		if res, handled, err := s.resolveIntended(ctx, sess, identity, intent, log); handled {
			return res, err
		}
		grants, err := s.verifiedGrants(ctx, identity)
		if err != nil {
			return &Result{Session: sess}, err
		}
		// Preferir tenants con rol admin/staff; los de solo-practitioner
		// quedan como fallback.
		eligible := grantsWithAdminRole(grants)
		if len(eligible) == 0 {
			eligible = grants
		}
		switch len(eligible) {
		case 0:
			return s.finish(ctx, sess, PathCentralDashboard)
		case 1:
			return s.adminHandoff(ctx, sess, identity, &eligible[0], log)
		default:
			return s.finish(ctx, sess, PathTenantSelection)
		}
	}

	// Intent desconocido a esta altura es un bug del caller.
	log.Error("unreachable intent in destination resolution")
	return s.hardFail(ctx, sess, PathIntentSelection, ErrWrongAccountType)
}

// verifiedGrants lista los tenants de la identidad y filtra, fail-closed,
// los que no pasan la verificación de membresía ni están operativos.
func (s *loginService) verifiedGrants(ctx context.Context, identity *repository.Identity) ([]repository.TenantGrant, error) {
	grants, err := s.deps.Memberships.ListTenants(ctx, identity.ID)
	if err != nil {
		return nil, err
	}
	out := grants[:0]
	for _, g := range grants {
		if g.Tenant.Status == types.TenantSuspended {
			continue
		}
		if !s.deps.Verifier.Verify(ctx, identity.ID, g.Tenant.ID) {
			continue
		}
		out = append(out, g)
	}
	return out, nil
}

func grantsWithAdminRole(grants []repository.TenantGrant) []repository.TenantGrant {
	var out []repository.TenantGrant
	for _, g := range grants {
		if g.HasAdminEligibleRole() {
			out = append(out, g)
		}
	}
	return out
}

// adminHandoff aplica el gate de billing y la provisión lazy antes del
// hand-off con intent admin.
func (s *loginService) adminHandoff(ctx context.Context, sess *session.Session, identity *repository.Identity, grant *repository.TenantGrant, log *zap.Logger) (*Result, error) {
	tenant := &grant.Tenant
	if tenant.RequiresBillingSetup() {
		log.Info("tenant requires billing setup", logger.TenantID(tenant.ID))
		return s.finish(ctx, sess, PathBillingSetup)
	}

	// Provisión lazy del usuario del tenant: practitioner si la identidad
	// tiene registro de practitioner, admin en caso contrario.
	defaultRole := types.RoleAdmin
	if identity.IsPractitioner() {
		defaultRole = types.RolePractitioner
	}
	err := s.deps.Memberships.EnsureTenantUser(ctx, repository.EnsureTenantUserInput{
		TenantID:    tenant.ID,
		IdentityID:  identity.ID,
		Email:       identity.Email,
		PreferredID: identity.ID,
		DefaultRole: defaultRole,
	})
	if err != nil {
		log.Error("lazy tenant user provisioning failed", logger.Err(err), logger.TenantID(tenant.ID))
		return &Result{Session: sess}, err
	}

	return s.handoff(ctx, sess, identity, types.IntentAdmin, tenant, tenantLandingPath, nil, log)
}

// handoff emite el código SSO y construye la URL de canje en el dominio
// del tenant. La sesión se regenera: cruzar de dominio es un cambio de
// privilegio.
func (s *loginService) handoff(ctx context.Context, sess *session.Session, identity *repository.Identity, intent types.LoginIntent, tenant *repository.Tenant, path string, docIDs []string, log *zap.Logger) (*Result, error) {
	code, err := s.deps.Broker.Issue(ctx, sso.IssueInput{
		UserID:             identity.ID,
		TenantID:           tenant.ID,
		RedirectPath:       path,
		SessionID:          sess.ID,
		Email:              identity.Email,
		TenantName:         tenant.DisplayName,
		SecondFactorPassed: sess.Data.TwoFAPassed,
		DocumentIDs:        docIDs,
	})
	if err != nil {
		log.Error("sso code issue failed", logger.Err(err), logger.TenantID(tenant.ID))
		return &Result{Session: sess}, ErrHandoffFailed
	}
	metrics.SSOCodesIssued.Inc()

	redirect, err := s.deps.Broker.BuildTenantRedirectURL(code, tenant)
	if err != nil {
		log.Error("tenant redirect build failed", logger.Err(err), logger.TenantID(tenant.ID))
		return &Result{Session: sess}, ErrHandoffFailed
	}

	// El token de documentos ya viajó (o no aplica): no debe sobrevivir en
	// la sesión central.
	sess.Data.DocumentAccessToken = ""
	sess.Data.DocumentIDsFilter = nil

	fresh, err := s.deps.Sessions.Regenerate(ctx, sess)
	if err != nil {
		return &Result{Session: sess}, err
	}
	log.Info("sso handoff issued", logger.TenantID(tenant.ID), logger.CodeHint(code))
	return &Result{Outcome: OutcomeRedirect, RedirectTo: redirect, Session: fresh}, nil
}

// resolveIntended aplica el deep link pendiente, si existe. handled=false
// significa "no había intended: seguir con el destino por intent".
func (s *loginService) resolveIntended(ctx context.Context, sess *session.Session, identity *repository.Identity, intent types.LoginIntent, log *zap.Logger) (*Result, bool, error) {
	raw := strings.TrimSpace(sess.Data.Intended)
	if raw == "" {
		return nil, false, nil
	}
	// El intended se consume siempre, incluso si resulta inválido.
	sess.Data.Intended = ""

	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		log.Debug("intended url unparseable, falling back to intent destination")
		return nil, false, nil
	}

	host := tenancy.NormalizeHost(u.Host)
	if host == "" || s.isCentralHost(host) {
		res, ferr := s.finish(ctx, sess, u.RequestURI())
		return res, true, ferr
	}

	tenant, err := s.deps.Domains.Resolve(ctx, host)
	if err != nil {
		log.Warn("intended url points to unknown tenant domain", logger.TenantDomain(host))
		res, ferr := s.hardFail(ctx, sess, loginPathFor(intent), ErrTenantNotFound)
		return res, true, ferr
	}

	if !s.deps.Verifier.Verify(ctx, identity.ID, tenant.ID) {
		log.Warn("intended url denied: no membership", logger.TenantID(tenant.ID))
		res, ferr := s.hardFail(ctx, sess, loginPathFor(intent), ErrMembershipDenied)
		return res, true, ferr
	}

	docIDs := s.consumeDocumentToken(ctx, sess, tenant.ID, log)
	res, ferr := s.handoff(ctx, sess, identity, intent, tenant, u.RequestURI(), docIDs, log)
	return res, true, ferr
}

// consumeDocumentToken valida y quema el token de acceso a documentos de la
// sesión, si hay uno. Un token inválido no aborta el login: solo se pierde
// el filtro de documentos.
func (s *loginService) consumeDocumentToken(ctx context.Context, sess *session.Session, tenantID string, log *zap.Logger) []string {
	raw := sess.Data.DocumentAccessToken
	if raw == "" {
		return nil
	}
	sess.Data.DocumentAccessToken = ""

	tok, err := s.deps.DocTokens.Validate(ctx, raw)
	if err != nil {
		log.Info("document access token rejected", logger.Err(err))
		return nil
	}
	if tok.TenantID != tenantID {
		log.Warn("document access token bound to another tenant")
		return nil
	}
	if err := s.deps.DocTokens.MarkUsed(ctx, raw); err != nil {
		log.Error("document access token mark-used failed", logger.Err(err))
		return nil
	}
	return tok.DocumentIDs
}

func (s *loginService) isCentralHost(host string) bool {
	for _, h := range s.deps.CentralHosts {
		if tenancy.NormalizeHost(h) == host {
			return true
		}
	}
	return false
}

func loginPathFor(intent types.LoginIntent) string {
	switch intent {
	case types.IntentPatient:
		return PathPatientLogin
	case types.IntentAdmin:
		return PathAdminLogin
	default:
		return PathPractitionerLogin
	}
}

// finish persiste la sesión y retorna el redirect de éxito.
func (s *loginService) finish(ctx context.Context, sess *session.Session, redirect string) (*Result, error) {
	if err := s.deps.Sessions.Save(ctx, sess); err != nil {
		return &Result{Session: sess}, err
	}
	return &Result{Outcome: OutcomeRedirect, RedirectTo: redirect, Session: sess}, nil
}

// hardFail es el desarme completo: la sesión actual muere y el caller
// recibe una nueva vacía junto con el error de la taxonomía.
func (s *loginService) hardFail(ctx context.Context, sess *session.Session, redirect string, cause error) (*Result, error) {
	metrics.SessionTeardowns.Inc()
	fresh, err := s.deps.Sessions.Teardown(ctx, sess.ID)
	if err != nil {
		// Sin store no hay sesión nueva; el caller al menos borra el cookie.
		return &Result{RedirectTo: redirect}, cause
	}
	return &Result{RedirectTo: redirect, Session: fresh}, cause
}
