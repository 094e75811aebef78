// Package session implementa la sesión central server-side.
//
// El cookie lleva solo un id opaco; el estado vive en el token store bajo
// el hash del id (el id crudo nunca se persiste). El teardown completo
// (invalidate + id nuevo + CSRF nuevo) es una sola operación para que un
// estado a-medio-autenticar nunca quede en pie.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Effham/wellvois/internal/cache"
	tokens "github.com/Effham/wellvois/internal/security/token"
)

const keyPrefix = "session:"

// ErrNotFound indica sesión ausente o expirada.
var ErrNotFound = errors.New("session: not found")

// Data es el estado serializado de una sesión.
// Los nombres JSON son el contrato con los colaboradores (portal/tenant).
type Data struct {
	UserID string `json:"user_id,omitempty"`

	// LoginIntent se fija antes de las credenciales y se consume exactamente
	// una vez al resolver destino (incluso tras el desvío por 2FA).
	LoginIntent string `json:"login_intent,omitempty"`

	// LoginTime habilita el timeout absoluto de sesión.
	LoginTime int64 `json:"login_time,omitempty"`

	// TwoFAUserID / TwoFAPassed sostienen el desvío por segundo factor.
	TwoFAUserID string `json:"2fa_user_id,omitempty"`
	TwoFAPassed bool   `json:"2fa_passed,omitempty"`

	// Intended es el deep link pendiente que overridea el destino por intent.
	Intended string `json:"intended,omitempty"`

	DocumentAccessToken string   `json:"document_access_token,omitempty"`
	DocumentIDsFilter   []string `json:"document_ids_filter,omitempty"`

	CSRFToken string `json:"csrf_token,omitempty"`
}

// Session es una sesión viva. ID es el valor del cookie (opaco, crudo).
type Session struct {
	ID   string
	Data Data
}

// Manager administra sesiones sobre el token store.
type Manager struct {
	store cache.Client
	ttl   time.Duration
}

// NewManager crea el manager. ttl <= 0 usa 12h.
func NewManager(store cache.Client, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Manager{store: store, ttl: ttl}
}

func storageKey(sid string) string {
	return keyPrefix + tokens.SHA256Base64URL(sid)
}

// New crea una sesión vacía con id y CSRF token frescos.
func (m *Manager) New(ctx context.Context) (*Session, error) {
	sid, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		return nil, err
	}
	csrf, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		return nil, err
	}
	s := &Session{ID: sid, Data: Data{CSRFToken: csrf}}
	if err := m.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Get carga una sesión por su id crudo.
func (m *Manager) Get(ctx context.Context, sid string) (*Session, error) {
	if sid == "" {
		return nil, ErrNotFound
	}
	raw, err := m.store.Get(ctx, storageKey(sid))
	if err != nil {
		if cache.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var d Data
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, ErrNotFound
	}
	return &Session{ID: sid, Data: d}, nil
}

// Save persiste la sesión renovando el TTL deslizante.
func (m *Manager) Save(ctx context.Context, s *Session) error {
	raw, err := json.Marshal(s.Data)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, storageKey(s.ID), string(raw), m.ttl)
}

// Invalidate destruye la sesión. Tras retornar, cualquier Get concurrente
// con el id viejo falla.
func (m *Manager) Invalidate(ctx context.Context, sid string) error {
	if sid == "" {
		return nil
	}
	return m.store.Delete(ctx, storageKey(sid))
}

// Regenerate rota el id de sesión y el CSRF token conservando los datos.
// Se usa en cada cambio de privilegio (login ok, hand-off).
func (m *Manager) Regenerate(ctx context.Context, s *Session) (*Session, error) {
	if err := m.Invalidate(ctx, s.ID); err != nil {
		return nil, err
	}
	sid, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		return nil, err
	}
	csrf, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		return nil, err
	}
	fresh := &Session{ID: sid, Data: s.Data}
	fresh.Data.CSRFToken = csrf
	if err := m.Save(ctx, fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

// Teardown es el desarme completo: destruye la sesión actual y entrega una
// nueva vacía (id y CSRF frescos, sin intent remanente).
func (m *Manager) Teardown(ctx context.Context, sid string) (*Session, error) {
	if err := m.Invalidate(ctx, sid); err != nil {
		return nil, err
	}
	return m.New(ctx)
}
