package auth

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Effham/wellvois/internal/cache"
	"github.com/Effham/wellvois/internal/domain/repository"
	"github.com/Effham/wellvois/internal/domain/types"
	dto "github.com/Effham/wellvois/internal/http/dto/auth"
	"github.com/Effham/wellvois/internal/security/password"
	"github.com/Effham/wellvois/internal/security/totp"
	"github.com/Effham/wellvois/internal/session"
	"github.com/Effham/wellvois/internal/sso"
)

// ---- fakes ----

type fakeIdentities struct {
	byEmail map[string]*repository.Identity
	byID    map[string]*repository.Identity

	emailLookups int
	lastCounter  map[string]int64
}

func (f *fakeIdentities) GetByID(_ context.Context, id string) (*repository.Identity, error) {
	if i, ok := f.byID[id]; ok {
		return i, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeIdentities) GetByEmail(_ context.Context, email string) (*repository.Identity, error) {
	f.emailLookups++
	if i, ok := f.byEmail[strings.ToLower(email)]; ok {
		return i, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeIdentities) GetByProviderSubject(context.Context, string) (*repository.Identity, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeIdentities) SetProviderSubject(context.Context, string, string) error { return nil }

func (f *fakeIdentities) SetTOTPLastCounter(_ context.Context, id string, c int64) error {
	if f.lastCounter == nil {
		f.lastCounter = map[string]int64{}
	}
	f.lastCounter[id] = c
	return nil
}

type fakeMemberships struct {
	grants    map[string][]repository.TenantGrant
	ensured   []repository.EnsureTenantUserInput
	ensureErr error
}

func (f *fakeMemberships) Get(context.Context, string, string) (*repository.Membership, error) {
	return nil, repository.ErrNotFound
}
func (f *fakeMemberships) Exists(context.Context, string, string) (bool, error)       { return false, nil }
func (f *fakeMemberships) ExistsDirect(context.Context, string, string) (bool, error) { return false, nil }
func (f *fakeMemberships) HasRole(context.Context, string, string, types.Role) (bool, error) {
	return false, nil
}

func (f *fakeMemberships) ListTenants(_ context.Context, identityID string) ([]repository.TenantGrant, error) {
	return f.grants[identityID], nil
}

func (f *fakeMemberships) EnsureTenantUser(_ context.Context, in repository.EnsureTenantUserInput) error {
	if f.ensureErr != nil {
		return f.ensureErr
	}
	f.ensured = append(f.ensured, in)
	return nil
}

type fakeDocTokens struct {
	tokens map[string]*repository.DocumentAccessToken
	used   []string
}

func (f *fakeDocTokens) Validate(_ context.Context, token string) (*repository.DocumentAccessToken, error) {
	if t, ok := f.tokens[token]; ok {
		return t, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeDocTokens) MarkUsed(_ context.Context, token string) error {
	f.used = append(f.used, token)
	return nil
}

type fakeBroker struct {
	issued []sso.IssueInput
	err    error
}

func (f *fakeBroker) Issue(_ context.Context, in sso.IssueInput) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.issued = append(f.issued, in)
	return fmt.Sprintf("code-%d", len(f.issued)), nil
}

func (f *fakeBroker) BuildTenantRedirectURL(code string, tenant *repository.Tenant) (string, error) {
	return "https://" + tenant.PrimaryDomain() + "/sso/start?code=" + code, nil
}

type fakeVerifier struct {
	deny map[string]bool // key tenantID
}

func (f *fakeVerifier) Verify(_ context.Context, _, tenantID string) bool {
	return !f.deny[tenantID]
}

type fakeDomains struct {
	byHost map[string]*repository.Tenant
}

func (f *fakeDomains) Resolve(_ context.Context, host string) (*repository.Tenant, error) {
	if t, ok := f.byHost[host]; ok {
		return t, nil
	}
	return nil, repository.ErrNotFound
}

// ---- harness ----

type harness struct {
	svc        LoginService
	identities *fakeIdentities
	members    *fakeMemberships
	docs       *fakeDocTokens
	broker     *fakeBroker
	verifier   *fakeVerifier
	domains    *fakeDomains
	sessions   *session.Manager
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		identities: &fakeIdentities{byEmail: map[string]*repository.Identity{}, byID: map[string]*repository.Identity{}},
		members:    &fakeMemberships{grants: map[string][]repository.TenantGrant{}},
		docs:       &fakeDocTokens{tokens: map[string]*repository.DocumentAccessToken{}},
		broker:     &fakeBroker{},
		verifier:   &fakeVerifier{deny: map[string]bool{}},
		domains:    &fakeDomains{byHost: map[string]*repository.Tenant{}},
		sessions:   session.NewManager(cache.NewMemory(""), time.Hour),
	}
	h.svc = NewLoginService(LoginDeps{
		Identities:   h.identities,
		Memberships:  h.members,
		DocTokens:    h.docs,
		Sessions:     h.sessions,
		Broker:       h.broker,
		Verifier:     h.verifier,
		Domains:      h.domains,
		CentralHosts: []string{"app.wellvois.test"},
	})
	return h
}

func (h *harness) addIdentity(t *testing.T, email, pass string, mut func(*repository.Identity)) *repository.Identity {
	t.Helper()
	phc, err := password.Hash(password.Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, KeyLen: 32}, pass)
	require.NoError(t, err)
	id := &repository.Identity{
		ID:           "id-" + email,
		Email:        email,
		PasswordHash: &phc,
	}
	if mut != nil {
		mut(id)
	}
	h.identities.byEmail[email] = id
	h.identities.byID[id.ID] = id
	return id
}

func (h *harness) newSession(t *testing.T) *session.Session {
	t.Helper()
	s, err := h.sessions.New(context.Background())
	require.NoError(t, err)
	return s
}

func strptr(s string) *string { return &s }

func tenant(id, domain string, status types.TenantStatus) repository.Tenant {
	return repository.Tenant{ID: id, Name: id, DisplayName: "Clinic " + id, Status: status, Domains: []string{domain}}
}

// ---- tests ----

func TestLoginPassword_InvalidIntentSkipsCredentials(t *testing.T) {
	h := newHarness(t)
	h.addIdentity(t, "doc@clinic.test", "s3cret", func(i *repository.Identity) {
		i.PractitionerID = strptr("pr-1")
	})
	sess := h.newSession(t)

	res, err := h.svc.LoginPassword(context.Background(), sess, dto.LoginRequest{
		Email:    "doc@clinic.test",
		Password: "s3cret",
	}, LoginOptions{RouteIntent: "hacker"})

	require.NoError(t, err)
	assert.Equal(t, OutcomeIntentSelection, res.Outcome)
	assert.Equal(t, PathIntentSelection, res.RedirectTo)
	assert.Zero(t, h.identities.emailLookups, "credentials must not be touched on invalid intent")
}

func TestLoginPassword_RouteIntentBeatsQueryAndSession(t *testing.T) {
	h := newHarness(t)
	h.addIdentity(t, "pat@clinic.test", "s3cret", func(i *repository.Identity) {
		i.PatientID = strptr("pa-1")
	})
	sess := h.newSession(t)
	sess.Data.LoginIntent = "admin"
	require.NoError(t, h.sessions.Save(context.Background(), sess))

	res, err := h.svc.LoginPassword(context.Background(), sess, dto.LoginRequest{
		Email:    "pat@clinic.test",
		Password: "s3cret",
	}, LoginOptions{RouteIntent: "patient", QueryIntent: "practitioner"})

	require.NoError(t, err)
	assert.Equal(t, PathPatientDashboard, res.RedirectTo)
}

func TestLoginPassword_InvalidCredentials(t *testing.T) {
	h := newHarness(t)
	h.addIdentity(t, "doc@clinic.test", "s3cret", func(i *repository.Identity) {
		i.PractitionerID = strptr("pr-1")
	})
	sess := h.newSession(t)

	_, err := h.svc.LoginPassword(context.Background(), sess, dto.LoginRequest{
		Email:    "doc@clinic.test",
		Password: "wrong",
	}, LoginOptions{RouteIntent: "practitioner"})

	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginPassword_RegeneratesSessionID(t *testing.T) {
	h := newHarness(t)
	h.addIdentity(t, "pat@clinic.test", "s3cret", func(i *repository.Identity) {
		i.PatientID = strptr("pa-1")
	})
	sess := h.newSession(t)
	oldID := sess.ID

	res, err := h.svc.LoginPassword(context.Background(), sess, dto.LoginRequest{
		Email:    "pat@clinic.test",
		Password: "s3cret",
	}, LoginOptions{RouteIntent: "patient"})

	require.NoError(t, err)
	assert.NotEqual(t, oldID, res.Session.ID)

	// La sesión vieja quedó muerta.
	_, err = h.sessions.Get(context.Background(), oldID)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestLoginPassword_PatientIntentWithoutPatientRecordTearsDown(t *testing.T) {
	h := newHarness(t)
	h.addIdentity(t, "doc@clinic.test", "s3cret", func(i *repository.Identity) {
		i.PractitionerID = strptr("pr-1")
	})
	sess := h.newSession(t)

	res, err := h.svc.LoginPassword(context.Background(), sess, dto.LoginRequest{
		Email:    "doc@clinic.test",
		Password: "s3cret",
	}, LoginOptions{RouteIntent: "patient"})

	assert.ErrorIs(t, err, ErrWrongAccountType)
	require.NotNil(t, res.Session)
	assert.Empty(t, res.Session.Data.UserID, "teardown must leave an empty session")
	assert.Equal(t, PathPatientLogin, res.RedirectTo)
}

func TestLoginPassword_PractitionerTenantBranching(t *testing.T) {
	ctx := context.Background()

	t.Run("zero tenants goes to central dashboard", func(t *testing.T) {
		h := newHarness(t)
		h.addIdentity(t, "doc@clinic.test", "s3cret", func(i *repository.Identity) {
			i.PractitionerID = strptr("pr-1")
		})

		res, err := h.svc.LoginPassword(ctx, h.newSession(t), dto.LoginRequest{
			Email: "doc@clinic.test", Password: "s3cret",
		}, LoginOptions{RouteIntent: "practitioner"})

		require.NoError(t, err)
		assert.Equal(t, PathPractitionerDashboard, res.RedirectTo)
		assert.Empty(t, h.broker.issued)
	})

	t.Run("one tenant hands off directly", func(t *testing.T) {
		h := newHarness(t)
		id := h.addIdentity(t, "doc@clinic.test", "s3cret", func(i *repository.Identity) {
			i.PractitionerID = strptr("pr-1")
		})
		h.members.grants[id.ID] = []repository.TenantGrant{
			{Tenant: tenant("t1", "t1.wellvois.test", types.TenantActive), Roles: []types.Role{types.RolePractitioner}},
		}

		res, err := h.svc.LoginPassword(ctx, h.newSession(t), dto.LoginRequest{
			Email: "doc@clinic.test", Password: "s3cret",
		}, LoginOptions{RouteIntent: "practitioner"})

		require.NoError(t, err)
		assert.Contains(t, res.RedirectTo, "https://t1.wellvois.test/sso/start?code=")
		require.Len(t, h.broker.issued, 1)
		assert.Equal(t, "t1", h.broker.issued[0].TenantID)
	})

	t.Run("many tenants go to selection", func(t *testing.T) {
		h := newHarness(t)
		id := h.addIdentity(t, "doc@clinic.test", "s3cret", func(i *repository.Identity) {
			i.PractitionerID = strptr("pr-1")
		})
		h.members.grants[id.ID] = []repository.TenantGrant{
			{Tenant: tenant("t1", "t1.wellvois.test", types.TenantActive), Roles: []types.Role{types.RolePractitioner}},
			{Tenant: tenant("t2", "t2.wellvois.test", types.TenantActive), Roles: []types.Role{types.RolePractitioner}},
		}

		res, err := h.svc.LoginPassword(ctx, h.newSession(t), dto.LoginRequest{
			Email: "doc@clinic.test", Password: "s3cret",
		}, LoginOptions{RouteIntent: "practitioner"})

		require.NoError(t, err)
		assert.Equal(t, PathTenantSelection, res.RedirectTo)
		assert.Empty(t, h.broker.issued)
	})

	t.Run("revoked membership is filtered out", func(t *testing.T) {
		h := newHarness(t)
		id := h.addIdentity(t, "doc@clinic.test", "s3cret", func(i *repository.Identity) {
			i.PractitionerID = strptr("pr-1")
		})
		h.members.grants[id.ID] = []repository.TenantGrant{
			{Tenant: tenant("t1", "t1.wellvois.test", types.TenantActive), Roles: []types.Role{types.RolePractitioner}},
			{Tenant: tenant("t2", "t2.wellvois.test", types.TenantActive), Roles: []types.Role{types.RolePractitioner}},
		}
		h.verifier.deny["t2"] = true

		res, err := h.svc.LoginPassword(ctx, h.newSession(t), dto.LoginRequest{
			Email: "doc@clinic.test", Password: "s3cret",
		}, LoginOptions{RouteIntent: "practitioner"})

		require.NoError(t, err)
		assert.Contains(t, res.RedirectTo, "t1.wellvois.test")
	})
}

func TestLoginPassword_AdminPrefersAdminRoleTenants(t *testing.T) {
	h := newHarness(t)
	id := h.addIdentity(t, "boss@clinic.test", "s3cret", func(i *repository.Identity) {
		i.PractitionerID = strptr("pr-1")
	})
	// T1: admin. T2: solo practitioner. El admin intent debe ir directo a T1
	// sin pasar por la selección de tenant.
	h.members.grants[id.ID] = []repository.TenantGrant{
		{Tenant: tenant("t1", "t1.wellvois.test", types.TenantActive), Roles: []types.Role{types.RoleAdmin}},
		{Tenant: tenant("t2", "t2.wellvois.test", types.TenantActive), Roles: []types.Role{types.RolePractitioner}},
	}

	res, err := h.svc.LoginPassword(context.Background(), h.newSession(t), dto.LoginRequest{
		Email: "boss@clinic.test", Password: "s3cret",
	}, LoginOptions{RouteIntent: "admin"})

	require.NoError(t, err)
	assert.Contains(t, res.RedirectTo, "t1.wellvois.test")
	require.Len(t, h.members.ensured, 1)
	assert.Equal(t, types.RolePractitioner, h.members.ensured[0].DefaultRole)
}

func TestLoginPassword_AdminBillingGate(t *testing.T) {
	h := newHarness(t)
	id := h.addIdentity(t, "boss@clinic.test", "s3cret", nil)
	h.members.grants[id.ID] = []repository.TenantGrant{
		{Tenant: tenant("t1", "t1.wellvois.test", types.TenantRequiresBilling), Roles: []types.Role{types.RoleAdmin}},
	}

	res, err := h.svc.LoginPassword(context.Background(), h.newSession(t), dto.LoginRequest{
		Email: "boss@clinic.test", Password: "s3cret",
	}, LoginOptions{RouteIntent: "admin"})

	require.NoError(t, err)
	assert.Equal(t, PathBillingSetup, res.RedirectTo)
	assert.Empty(t, h.broker.issued, "no handoff while billing is pending")
}

func TestLoginPassword_AdminPatientOnlyRejected(t *testing.T) {
	h := newHarness(t)
	h.addIdentity(t, "pat@clinic.test", "s3cret", func(i *repository.Identity) {
		i.PatientID = strptr("pa-1")
	})

	res, err := h.svc.LoginPassword(context.Background(), h.newSession(t), dto.LoginRequest{
		Email: "pat@clinic.test", Password: "s3cret",
	}, LoginOptions{RouteIntent: "admin"})

	assert.ErrorIs(t, err, ErrWrongAccountType)
	assert.Equal(t, PathAdminLogin, res.RedirectTo)
}

func TestSecondFactor_DetourAndCompletion(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	raw, b32, err := totp.GenerateSecret()
	require.NoError(t, err)

	h.addIdentity(t, "doc@clinic.test", "s3cret", func(i *repository.Identity) {
		i.PractitionerID = strptr("pr-1")
		i.SecondFactorEnabled = true
		i.TOTPSecret = &b32
	})

	res, err := h.svc.LoginPassword(ctx, h.newSession(t), dto.LoginRequest{
		Email: "doc@clinic.test", Password: "s3cret",
	}, LoginOptions{RouteIntent: "practitioner"})
	require.NoError(t, err)
	require.Equal(t, OutcomeSecondFactor, res.Outcome)
	assert.Equal(t, PathSecondFactor, res.RedirectTo)

	// El intent sobrevive el desvío en la sesión.
	assert.Equal(t, "practitioner", res.Session.Data.LoginIntent)

	// Código equivocado no abre nada.
	_, err = h.svc.CompleteSecondFactor(ctx, res.Session, "000000")
	assert.ErrorIs(t, err, ErrSecondFactorFailed)

	// Código correcto completa el login hacia el destino del intent.
	code := totp.Code(raw, time.Now())
	done, err := h.svc.CompleteSecondFactor(ctx, res.Session, code)
	require.NoError(t, err)
	assert.Equal(t, PathPractitionerDashboard, done.RedirectTo)
	assert.True(t, done.Session.Data.TwoFAPassed)
	assert.Empty(t, done.Session.Data.LoginIntent, "intent must be consumed")
}

func TestSecondFactor_ReplayRejected(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	raw, b32, err := totp.GenerateSecret()
	require.NoError(t, err)
	id := h.addIdentity(t, "doc@clinic.test", "s3cret", func(i *repository.Identity) {
		i.PractitionerID = strptr("pr-1")
		i.SecondFactorEnabled = true
		i.TOTPSecret = &b32
	})

	res, err := h.svc.LoginPassword(ctx, h.newSession(t), dto.LoginRequest{
		Email: "doc@clinic.test", Password: "s3cret",
	}, LoginOptions{RouteIntent: "practitioner"})
	require.NoError(t, err)

	code := totp.Code(raw, time.Now())
	_, err = h.svc.CompleteSecondFactor(ctx, res.Session, code)
	require.NoError(t, err)

	// Simular un segundo login con el mismo código: el counter persistido
	// lo bloquea.
	counter := h.identities.lastCounter[id.ID]
	h.identities.byID[id.ID].TOTPLastCounter = &counter

	res2, err := h.svc.LoginPassword(ctx, h.newSession(t), dto.LoginRequest{
		Email: "doc@clinic.test", Password: "s3cret",
	}, LoginOptions{RouteIntent: "practitioner"})
	require.NoError(t, err)
	_, err = h.svc.CompleteSecondFactor(ctx, res2.Session, code)
	assert.ErrorIs(t, err, ErrSecondFactorFailed)
}

func TestIntended_TenantDeepLinkWithDocumentToken(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	id := h.addIdentity(t, "pat@clinic.test", "s3cret", func(i *repository.Identity) {
		i.PatientID = strptr("pa-1")
	})
	t1 := tenant("t1", "t1.wellvois.test", types.TenantActive)
	h.domains.byHost["t1.wellvois.test"] = &t1
	h.members.grants[id.ID] = []repository.TenantGrant{{Tenant: t1}}
	h.docs.tokens["doc-tok"] = &repository.DocumentAccessToken{
		Token:       "doc-tok",
		TenantID:    "t1",
		DocumentIDs: []string{"d1", "d2"},
		ExpiresAt:   time.Now().Add(time.Hour),
	}

	sess := h.newSession(t)
	sess.Data.Intended = "https://t1.wellvois.test/documents/shared"
	sess.Data.DocumentAccessToken = "doc-tok"
	require.NoError(t, h.sessions.Save(ctx, sess))

	res, err := h.svc.LoginPassword(ctx, sess, dto.LoginRequest{
		Email: "pat@clinic.test", Password: "s3cret",
	}, LoginOptions{RouteIntent: "patient"})

	require.NoError(t, err)
	require.Len(t, h.broker.issued, 1)
	assert.Equal(t, "/documents/shared", h.broker.issued[0].RedirectPath)
	assert.Equal(t, []string{"d1", "d2"}, h.broker.issued[0].DocumentIDs)
	assert.Equal(t, []string{"doc-tok"}, h.docs.used)
	assert.Empty(t, res.Session.Data.DocumentAccessToken)
	assert.Empty(t, res.Session.Data.Intended)
}

func TestIntended_UnknownTenantDomainTearsDown(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addIdentity(t, "doc@clinic.test", "s3cret", func(i *repository.Identity) {
		i.PractitionerID = strptr("pr-1")
	})

	sess := h.newSession(t)
	sess.Data.Intended = "https://ghost.wellvois.test/anything"
	require.NoError(t, h.sessions.Save(ctx, sess))

	res, err := h.svc.LoginPassword(ctx, sess, dto.LoginRequest{
		Email: "doc@clinic.test", Password: "s3cret",
	}, LoginOptions{RouteIntent: "practitioner"})

	assert.ErrorIs(t, err, ErrTenantNotFound)
	require.NotNil(t, res.Session)
	assert.Empty(t, res.Session.Data.UserID)
}

func TestIntended_CentralHostStaysLocal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addIdentity(t, "doc@clinic.test", "s3cret", func(i *repository.Identity) {
		i.PractitionerID = strptr("pr-1")
	})

	sess := h.newSession(t)
	sess.Data.Intended = "https://app.wellvois.test/practitioner/agenda?week=12"
	require.NoError(t, h.sessions.Save(ctx, sess))

	res, err := h.svc.LoginPassword(ctx, sess, dto.LoginRequest{
		Email: "doc@clinic.test", Password: "s3cret",
	}, LoginOptions{RouteIntent: "practitioner"})

	require.NoError(t, err)
	assert.Equal(t, "/practitioner/agenda?week=12", res.RedirectTo)
	assert.Empty(t, h.broker.issued)
}
