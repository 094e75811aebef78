// Package idp implementa el cliente del identity provider central (Keycloak):
// authorization-code flow, decode de ID tokens, userinfo y tokens admin.
package idp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Effham/wellvois/internal/cache"
	"github.com/Effham/wellvois/internal/observability/logger"
	tokens "github.com/Effham/wellvois/internal/security/token"
	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// Tokens es el resultado de un exchange/refresh contra el provider.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// Claims son los claims decodificados de un ID token o userinfo.
type Claims map[string]any

// Subject retorna el claim "sub" o "".
func (c Claims) Subject() string { s, _ := c["sub"].(string); return s }

// Email retorna el claim "email" normalizado o "".
func (c Claims) Email() string {
	s, _ := c["email"].(string)
	return strings.ToLower(strings.TrimSpace(s))
}

// Config configura el cliente Keycloak.
type Config struct {
	BaseURL      string // ej: https://id.wellvois.com
	Realm        string
	ClientID     string
	ClientSecret string
	// CallbackURL es el único redirect URI registrado en el provider.
	// Siempre el callback central, nunca un subdominio de tenant.
	CallbackURL string
	Scopes      []string
	StateTTL    time.Duration
	Timeout     time.Duration
	AdminUser   string
	AdminPass   string
}

// Client habla con el provider OIDC externo.
type Client struct {
	cfg    Config
	states cache.Client
	http   *http.Client
}

// New crea el cliente. El hard timeout del http.Client garantiza que un
// provider colgado no cuelga el login.
func New(cfg Config, states cache.Client) *Client {
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = 10 * time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{"openid", "email", "profile"}
	}
	return &Client{
		cfg:    cfg,
		states: states,
		http:   &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *Client) realmURL(suffix string) string {
	return fmt.Sprintf("%s/realms/%s/protocol/openid-connect/%s",
		strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.Realm, suffix)
}

// BuildAuthorizationURL genera la URL de autorización y persiste el state
// (TTL corto, single use). tenantID es opcional: si el flujo se originó en
// un tenant, viaja embebido en el state para que el provider solo necesite
// un redirect URI permitido.
func (c *Client) BuildAuthorizationURL(ctx context.Context, tenantID string) (authURL, state string, err error) {
	raw, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		return "", "", err
	}

	if err := c.states.Set(ctx, stateKey(raw, tenantID), raw, c.cfg.StateTTL); err != nil {
		return "", "", fmt.Errorf("idp: persist state: %w", err)
	}

	state = encodeState(raw, tenantID)

	u, err := url.Parse(c.realmURL("auth"))
	if err != nil {
		return "", "", err
	}
	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", c.cfg.ClientID)
	q.Set("redirect_uri", c.cfg.CallbackURL)
	q.Set("scope", strings.Join(c.cfg.Scopes, " "))
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String(), state, nil
}

// ExchangeCode valida el state (single use) y canjea el code por tokens.
// Retorna además el tenant id embebido en el state, si había.
func (c *Client) ExchangeCode(ctx context.Context, code, state string) (*Tokens, string, error) {
	log := logger.From(ctx).With(logger.Component("idp"), logger.Op("ExchangeCode"))

	raw, tenantID, ok := decodeState(state)
	if !ok {
		log.Warn("state decode failed")
		return nil, "", ErrInvalidState
	}

	// Take es atómico: el segundo canje del mismo state ve not-found.
	stored, err := c.states.Take(ctx, stateKey(raw, tenantID))
	if err != nil {
		// Store caído o state ausente: fail closed en ambos casos.
		log.Warn("state not found", logger.Err(err))
		return nil, "", ErrInvalidState
	}
	if !tokens.ConstantTimeEquals(stored, raw) {
		log.Warn("state mismatch")
		return nil, "", ErrInvalidState
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("code", code)
	form.Set("redirect_uri", c.cfg.CallbackURL)

	tk, err := c.postToken(ctx, form)
	if err != nil {
		if err == ErrProviderError {
			return nil, "", err
		}
		return nil, "", ErrExchangeFailed
	}
	return tk, tenantID, nil
}

// DecodeIdentity decodifica los claims del ID token SIN verificar la firma.
// El token llega por canal server-to-server TLS directo desde el provider;
// la verificación de firma queda como limitación documentada.
func (c *Client) DecodeIdentity(idToken string) (Claims, error) {
	claims := jwtv5.MapClaims{}
	parser := jwtv5.NewParser()
	if _, _, err := parser.ParseUnverified(idToken, claims); err != nil {
		return nil, ErrMalformedToken
	}
	return Claims(claims), nil
}

// FetchUserinfo es el fallback cuando los claims del ID token no alcanzan.
func (c *Client) FetchUserinfo(ctx context.Context, accessToken string) (Claims, error) {
	log := logger.From(ctx).With(logger.Component("idp"), logger.Op("FetchUserinfo"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.realmURL("userinfo"), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		log.Error("userinfo request failed", logger.Err(err))
		return nil, ErrProviderError
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		log.Error("userinfo non-2xx",
			logger.Status(resp.StatusCode),
			logger.String("body", string(body)),
		)
		return nil, ErrProviderError
	}

	var claims Claims
	if err := decodeJSON(resp.Body, &claims); err != nil {
		log.Error("userinfo decode failed", logger.Err(err))
		return nil, ErrProviderError
	}
	return claims, nil
}

// RefreshTokens renueva los tokens upstream del usuario.
func (c *Client) RefreshTokens(ctx context.Context, refreshToken string) (*Tokens, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("refresh_token", refreshToken)
	return c.postToken(ctx, form)
}

// AdminToken obtiene un token de servicio vía password grant (admin-only).
func (c *Client) AdminToken(ctx context.Context) (*Tokens, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("username", c.cfg.AdminUser)
	form.Set("password", c.cfg.AdminPass)
	return c.postToken(ctx, form)
}

// postToken es el POST form-encoded compartido contra el token endpoint.
func (c *Client) postToken(ctx context.Context, form url.Values) (*Tokens, error) {
	log := logger.From(ctx).With(logger.Component("idp"), logger.Op("postToken"),
		logger.String("grant_type", form.Get("grant_type")))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.realmURL("token"), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		log.Error("token request failed", logger.Err(err))
		return nil, ErrProviderError
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		log.Error("token endpoint non-2xx",
			logger.Status(resp.StatusCode),
			logger.String("body", string(body)),
		)
		return nil, ErrExchangeFailed
	}

	var tk Tokens
	if err := decodeJSON(resp.Body, &tk); err != nil {
		log.Error("token decode failed", logger.Err(err))
		return nil, ErrExchangeFailed
	}
	if tk.AccessToken == "" {
		return nil, ErrExchangeFailed
	}
	return &tk, nil
}
