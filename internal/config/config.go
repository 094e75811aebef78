// Package config carga la configuración YAML con overrides por entorno.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`
		// PublicBaseURL es la URL pública del dominio central
		// (ej: https://app.wellvois.com). Se usa para armar el callback
		// OIDC fijo y para decidir si un intended URL es central o tenant.
		PublicBaseURL string `yaml:"public_base_url"`
		// CentralDomains son los hosts que cuentan como dominio central.
		CentralDomains []string `yaml:"central_domains"`
	} `yaml:"server"`

	Storage struct {
		Postgres struct {
			DSN             string `yaml:"dsn"`
			MaxOpenConns    int    `yaml:"max_open_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
		Prefix string `yaml:"prefix"`
	} `yaml:"cache"`

	Session struct {
		CookieName string `yaml:"cookie_name"`
		Domain     string `yaml:"domain"`
		SameSite   string `yaml:"samesite"`
		Secure     bool   `yaml:"secure"`
		TTL        string `yaml:"ttl"`
		// AbsoluteTTL limita la vida total de la sesión desde login_time,
		// independiente de actividad.
		AbsoluteTTL string `yaml:"absolute_ttl"`
	} `yaml:"session"`

	Throttle struct {
		// LoginMax limita los POST de login por IP por ventana.
		// Negativo deshabilita; 0 usa el default.
		LoginMax    int           `yaml:"login_max"`
		LoginWindow time.Duration `yaml:"login_window"`
	} `yaml:"throttle"`

	SSO struct {
		// CodeTTL es la ventana de validez del código one-time de hand-off.
		CodeTTL time.Duration `yaml:"code_ttl"`
	} `yaml:"sso"`

	Keycloak struct {
		BaseURL      string        `yaml:"base_url"`
		Realm        string        `yaml:"realm"`
		ClientID     string        `yaml:"client_id"`
		ClientSecret string        `yaml:"client_secret"`
		// CallbackURL es el único redirect URI permitido en el provider.
		// Siempre apunta al dominio central, nunca a un tenant.
		CallbackURL string        `yaml:"callback_url"`
		Scopes      []string      `yaml:"scopes"`
		StateTTL    time.Duration `yaml:"state_ttl"`
		Timeout     time.Duration `yaml:"timeout"`
		AdminUser   string        `yaml:"admin_user"`
		AdminPass   string        `yaml:"admin_pass"`
	} `yaml:"keycloak"`

	SMTP struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		From     string `yaml:"from"`
	} `yaml:"smtp"`

	Metrics struct {
		Addr string `yaml:"addr"` // vacío = metrics deshabilitadas
	} `yaml:"metrics"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// IsProd retorna true en entorno productivo (protocolo https en redirects).
func (c *Config) IsProd() bool {
	return strings.EqualFold(c.App.Env, "prod")
}

// SessionTTL parsea el TTL de sesión (default 12h).
func (c *Config) SessionTTL() time.Duration {
	d, err := time.ParseDuration(c.Session.TTL)
	if err != nil || d <= 0 {
		return 12 * time.Hour
	}
	return d
}

// SessionAbsoluteTTL parsea el TTL absoluto (default 24h).
func (c *Config) SessionAbsoluteTTL() time.Duration {
	d, err := time.ParseDuration(c.Session.AbsoluteTTL)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// Load lee el YAML, aplica defaults, overrides por env y valida.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}

	// sane defaults
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Prefix == "" {
		c.Cache.Prefix = "wv"
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "wv_sid"
	}
	if c.Session.SameSite == "" {
		c.Session.SameSite = "Lax"
	}
	if c.Session.TTL == "" {
		c.Session.TTL = "12h"
	}
	if c.Session.AbsoluteTTL == "" {
		c.Session.AbsoluteTTL = "24h"
	}
	if c.Throttle.LoginMax == 0 {
		c.Throttle.LoginMax = 20
	}
	if c.Throttle.LoginWindow == 0 {
		c.Throttle.LoginWindow = time.Minute
	}
	if c.SSO.CodeTTL == 0 {
		c.SSO.CodeTTL = 5 * time.Minute
	}
	if c.Keycloak.StateTTL == 0 {
		c.Keycloak.StateTTL = 10 * time.Minute
	}
	if c.Keycloak.Timeout == 0 {
		c.Keycloak.Timeout = 10 * time.Second
	}
	if len(c.Keycloak.Scopes) == 0 {
		c.Keycloak.Scopes = []string{"openid", "email", "profile"}
	}

	// validate string durations
	if c.Storage.Postgres.ConnMaxLifetime != "" {
		if _, err := time.ParseDuration(c.Storage.Postgres.ConnMaxLifetime); err != nil {
			return nil, err
		}
	}
	if _, err := time.ParseDuration(c.Session.TTL); err != nil {
		return nil, err
	}
	if _, err := time.ParseDuration(c.Session.AbsoluteTTL); err != nil {
		return nil, err
	}

	c.applyEnvOverrides()

	if err := c.Validate(); err != nil {
		return nil, err
	}

	// Guardia dura: cookies seguras siempre en prod.
	if c.IsProd() {
		c.Session.Secure = true
	}

	return &c, nil
}

// Validate verifica la coherencia mínima de la configuración.
func (c *Config) Validate() error {
	if c.Keycloak.BaseURL != "" {
		if c.Keycloak.Realm == "" {
			return fmt.Errorf("config: keycloak.realm requerido si keycloak.base_url está seteado")
		}
		if c.Keycloak.ClientID == "" {
			return fmt.Errorf("config: keycloak.client_id requerido si keycloak.base_url está seteado")
		}
	}
	if c.Cache.Kind == "redis" && c.Cache.Redis.Host == "" {
		return fmt.Errorf("config: cache.redis.host requerido con kind=redis")
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = v
	}
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("PUBLIC_BASE_URL"); ok {
		c.Server.PublicBaseURL = v
	}
	if v, ok := getEnvStr("PG_DSN"); ok {
		c.Storage.Postgres.DSN = v
	}
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvStr("REDIS_HOST"); ok {
		c.Cache.Redis.Host = v
	}
	if v, ok := getEnvInt("REDIS_PORT"); ok {
		c.Cache.Redis.Port = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := getEnvStr("KEYCLOAK_BASE_URL"); ok {
		c.Keycloak.BaseURL = v
	}
	if v, ok := getEnvStr("KEYCLOAK_REALM"); ok {
		c.Keycloak.Realm = v
	}
	if v, ok := getEnvStr("KEYCLOAK_CLIENT_ID"); ok {
		c.Keycloak.ClientID = v
	}
	if v, ok := getEnvStr("KEYCLOAK_CLIENT_SECRET"); ok {
		c.Keycloak.ClientSecret = v
	}
	if v, ok := getEnvStr("KEYCLOAK_CALLBACK_URL"); ok {
		c.Keycloak.CallbackURL = v
	}
	if v, ok := getEnvStr("SMTP_HOST"); ok {
		c.SMTP.Host = v
	}
	if v, ok := getEnvStr("SMTP_PASSWORD"); ok {
		c.SMTP.Password = v
	}
	if v, ok := getEnvStr("METRICS_ADDR"); ok {
		c.Metrics.Addr = v
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
