// Package sso emite y canjea los códigos one-time que re-autentican a un
// usuario del dominio central en el subdominio aislado de un tenant.
//
// El código es un opaco de alta entropía; todo el estado vive server-side
// en el token store. Canjearlo dos veces es imposible: la redención usa la
// primitiva atómica Take del store, así que ante redenciones concurrentes
// exactamente una gana y el resto observa CodeNotFound.
package sso

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Effham/wellvois/internal/cache"
	"github.com/Effham/wellvois/internal/idp"
	"github.com/Effham/wellvois/internal/observability/logger"
	tokens "github.com/Effham/wellvois/internal/security/token"
)

const (
	codeKeyPrefix = "sso:code:"
	// codeEntropyBytes produce 64 chars base64url: no adivinable.
	codeEntropyBytes = 48
)

// Errores de redención. El caller HTTP los colapsa en un mensaje genérico:
// el error específico jamás llega al usuario (evita probing tipo oracle).
var (
	ErrCodeNotFound     = errors.New("sso: code not found")
	ErrCodeExpired      = errors.New("sso: code expired")
	ErrMembershipDenied = errors.New("sso: membership denied")
	ErrNoTenantDomain   = errors.New("sso: tenant has no bound domain")
)

// Payload es el estado que viaja (server-side) con cada código.
type Payload struct {
	UserID       string    `json:"user_id"`
	TenantID     string    `json:"tenant_id"`
	RedirectPath string    `json:"redirect_path"`
	IssuedAt     time.Time `json:"issued_at"`
	TTLSeconds   int       `json:"ttl_seconds"`

	// SessionID es la sesión de origen. Auditoría solamente: los flujos
	// multi-dominio cambian legítimamente de session id en cada salto.
	SessionID string `json:"session_id,omitempty"`

	// Snapshots al momento de emisión.
	Email      string `json:"email,omitempty"`
	TenantName string `json:"tenant_name,omitempty"`

	SecondFactorPassed bool `json:"second_factor_passed"`

	// DocumentIDs restringe el acceso a documentos puntuales (deep links).
	DocumentIDs []string `json:"document_ids,omitempty"`

	// IdPTokens son los tokens upstream del provider, si el login fue
	// federado, para que el tenant pueda refrescarlos.
	IdPTokens *idp.Tokens `json:"idp_tokens,omitempty"`
}

// MembershipVerifier re-verifica la membresía al momento del canje.
type MembershipVerifier interface {
	Verify(ctx context.Context, identityID, tenantID string) bool
}

// Broker emite y canjea códigos SSO.
type Broker struct {
	store    cache.Client
	verifier MembershipVerifier
	ttl      time.Duration
	prod     bool

	// now es inyectable para simular expiración en tests.
	now func() time.Time
}

// Options configura el broker.
type Options struct {
	Store    cache.Client
	Verifier MembershipVerifier
	TTL      time.Duration // default 5m
	Prod     bool          // define https vs http en el redirect
	Now      func() time.Time
}

// NewBroker crea el broker.
func NewBroker(opts Options) *Broker {
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Broker{
		store:    opts.Store,
		verifier: opts.Verifier,
		ttl:      opts.TTL,
		prod:     opts.Prod,
		now:      opts.Now,
	}
}

// IssueInput describe la emisión de un código.
type IssueInput struct {
	UserID             string
	TenantID           string
	RedirectPath       string
	SessionID          string
	Email              string
	TenantName         string
	SecondFactorPassed bool
	DocumentIDs        []string
	IdPTokens          *idp.Tokens
}

// Issue genera el código opaco y persiste el payload con el TTL del broker.
// El código retornado no carga información propia: solo es la key.
func (b *Broker) Issue(ctx context.Context, in IssueInput) (string, error) {
	log := logger.From(ctx).With(
		logger.Component("sso.broker"), logger.Op("Issue"),
		logger.UserID(in.UserID), logger.TenantID(in.TenantID),
	)

	code, err := tokens.GenerateOpaqueToken(codeEntropyBytes)
	if err != nil {
		return "", fmt.Errorf("sso: generate code: %w", err)
	}

	payload := Payload{
		UserID:             in.UserID,
		TenantID:           in.TenantID,
		RedirectPath:       in.RedirectPath,
		IssuedAt:           b.now().UTC(),
		TTLSeconds:         int(b.ttl.Seconds()),
		SessionID:          in.SessionID,
		Email:              in.Email,
		TenantName:         in.TenantName,
		SecondFactorPassed: in.SecondFactorPassed,
		DocumentIDs:        in.DocumentIDs,
		IdPTokens:          in.IdPTokens,
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	if err := b.store.Set(ctx, codeKeyPrefix+code, string(raw), b.ttl); err != nil {
		log.Error("failed to persist sso code", logger.Err(err))
		return "", fmt.Errorf("sso: persist code: %w", err)
	}

	log.Info("sso code issued", logger.CodeHint(code))
	return code, nil
}

// Redeem canjea un código. Single use: el entry se consume en TODOS los
// desenlaces (éxito, expirado, membresía denegada).
func (b *Broker) Redeem(ctx context.Context, code, requestingSessionID string) (*Payload, error) {
	log := logger.From(ctx).With(
		logger.Component("sso.broker"), logger.Op("Redeem"), logger.CodeHint(code),
	)

	// Paso 1: Take atómico. Ausente cubre "nunca existió", "expiró en el
	// store" y "ya canjeado". Store caído también cae acá: fail closed.
	raw, err := b.store.Take(ctx, codeKeyPrefix+code)
	if err != nil {
		if !cache.IsNotFound(err) {
			log.Error("token store unavailable, denying", logger.Err(err))
		}
		return nil, ErrCodeNotFound
	}

	var payload Payload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		log.Error("stored payload corrupt", logger.Err(err))
		return nil, ErrCodeNotFound
	}

	log = log.With(logger.UserID(payload.UserID), logger.TenantID(payload.TenantID))

	// Paso 2: session id distinto NO falla. Los saltos entre dominios
	// regeneran la sesión; se deja rastro para auditoría y nada más.
	if requestingSessionID != "" && payload.SessionID != "" && requestingSessionID != payload.SessionID {
		log.Info("sso code redeemed from a different session",
			logger.SessionID(tokens.SHA256Base64URL(requestingSessionID)))
	}

	// Paso 3: re-chequeo de elapsed contra el timestamp embebido, por si
	// el store y el reloj no coinciden. El entry ya fue consumido.
	ttl := time.Duration(payload.TTLSeconds) * time.Second
	if elapsed := b.now().Sub(payload.IssuedAt); elapsed > ttl {
		log.Info("sso code expired at redemption",
			logger.String("elapsed", elapsed.String()))
		return nil, ErrCodeExpired
	}

	// Paso 4: la membresía pudo revocarse entre emisión y canje.
	if !b.verifier.Verify(ctx, payload.UserID, payload.TenantID) {
		log.Info("membership denied at redemption")
		return nil, ErrMembershipDenied
	}

	log.Info("sso code redeemed")
	return &payload, nil
}
