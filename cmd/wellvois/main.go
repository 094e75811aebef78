package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Effham/wellvois/internal/cache"
	"github.com/Effham/wellvois/internal/config"
	"github.com/Effham/wellvois/internal/email"
	authctl "github.com/Effham/wellvois/internal/http/controllers/auth"
	healthctl "github.com/Effham/wellvois/internal/http/controllers/health"
	oidcctl "github.com/Effham/wellvois/internal/http/controllers/oidc"
	ssoctl "github.com/Effham/wellvois/internal/http/controllers/sso"
	"github.com/Effham/wellvois/internal/http/middlewares"
	"github.com/Effham/wellvois/internal/http/router"
	authsvc "github.com/Effham/wellvois/internal/http/services/auth"
	oidcsvc "github.com/Effham/wellvois/internal/http/services/oidc"
	ssosvc "github.com/Effham/wellvois/internal/http/services/sso"
	"github.com/Effham/wellvois/internal/idp"
	"github.com/Effham/wellvois/internal/metrics"
	"github.com/Effham/wellvois/internal/observability/logger"
	"github.com/Effham/wellvois/internal/rate"
	"github.com/Effham/wellvois/internal/session"
	"github.com/Effham/wellvois/internal/sso"
	"github.com/Effham/wellvois/internal/store/pg"
	"github.com/Effham/wellvois/internal/tenancy"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "wellvois",
		Short:         "Servicio de autenticación y hand-off multi-tenant",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var cfgPath string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Levanta el servidor HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cfgPath)
		},
	}
	serve.Flags().StringVarP(&cfgPath, "config", "c", os.Getenv("CONFIG_PATH"), "ruta al YAML de configuración")

	root.AddCommand(serve)
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newSeedCmd())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Imprime la versión",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runServe(cfgPath string) error {
	// .env opcional; las env vars del sistema siguen valiendo.
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.Log.Level,
		ServiceName: "wellvois",
	})
	defer func() { _ = logger.Sync() }()
	log := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Paso 1: Store central (Postgres)
	var connLifetime time.Duration
	if cfg.Storage.Postgres.ConnMaxLifetime != "" {
		connLifetime, _ = time.ParseDuration(cfg.Storage.Postgres.ConnMaxLifetime)
	}
	store, err := pg.New(ctx, pg.Config{
		DSN:             cfg.Storage.Postgres.DSN,
		MaxOpenConns:    cfg.Storage.Postgres.MaxOpenConns,
		ConnMaxLifetime: connLifetime,
	})
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer store.Close()

	// Paso 2: Token store (memoria o Redis)
	tokenStore, err := cache.New(cache.Config{
		Driver:   cfg.Cache.Kind,
		Host:     cfg.Cache.Redis.Host,
		Port:     cfg.Cache.Redis.Port,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
		Prefix:   cfg.Cache.Prefix,
	})
	if err != nil {
		return fmt.Errorf("token store: %w", err)
	}
	defer func() { _ = tokenStore.Close() }()

	sessions := session.NewManager(tokenStore, cfg.SessionTTL())

	// Paso 3: Colaboradores de dominio
	verifier := tenancy.NewVerifier(store.Identities(), store.Memberships())
	domains := tenancy.NewDomainResolver(store.Tenants(), 30*time.Second)

	broker := sso.NewBroker(sso.Options{
		Store:    tokenStore,
		Verifier: verifier,
		TTL:      cfg.SSO.CodeTTL,
		Prod:     cfg.IsProd(),
	})

	idpClient := idp.New(idp.Config{
		BaseURL:      cfg.Keycloak.BaseURL,
		Realm:        cfg.Keycloak.Realm,
		ClientID:     cfg.Keycloak.ClientID,
		ClientSecret: cfg.Keycloak.ClientSecret,
		CallbackURL:  cfg.Keycloak.CallbackURL,
		Scopes:       cfg.Keycloak.Scopes,
		StateTTL:     cfg.Keycloak.StateTTL,
		Timeout:      cfg.Keycloak.Timeout,
		AdminUser:    cfg.Keycloak.AdminUser,
		AdminPass:    cfg.Keycloak.AdminPass,
	}, tokenStore)

	var notifier email.Notifier = email.Noop{}
	if cfg.SMTP.Enabled {
		notifier = email.NewSMTP(email.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
	}

	// Paso 4: Services
	loginSvc := authsvc.NewLoginService(authsvc.LoginDeps{
		Identities:   store.Identities(),
		Tenants:      store.Tenants(),
		Memberships:  store.Memberships(),
		DocTokens:    store.DocumentTokens(),
		Sessions:     sessions,
		Broker:       broker,
		Verifier:     verifier,
		Domains:      domains,
		Notifier:     notifier,
		CentralHosts: centralHosts(cfg),
	})

	startSvc := ssosvc.NewStartService(ssosvc.StartDeps{
		Broker:   broker,
		Sessions: sessions,
	})

	oidcSvc := oidcsvc.NewLoginService(oidcsvc.Deps{
		Client:   idpClient,
		Resolver: idp.NewResolver(store.Identities(), store.Memberships()),
		Sessions: sessions,
	})

	// Paso 5: Controllers + router
	cookieCfg := authctl.CookieConfig{
		Name:     cfg.Session.CookieName,
		SameSite: cfg.Session.SameSite,
		Secure:   cfg.Session.Secure,
		TTL:      cfg.SessionTTL(),
	}

	handler := router.New(router.Deps{
		Login: authctl.NewLoginController(loginSvc, sessions, cookieCfg),
		OIDC: oidcctl.NewLoginController(oidcSvc, oidcctl.CookieConfig{
			Name:     cfg.Session.CookieName,
			SameSite: cfg.Session.SameSite,
			Secure:   cfg.Session.Secure,
			TTL:      cfg.SessionTTL(),
		}),
		SSOStart: ssoctl.NewStartController(startSvc, ssoctl.CookieConfig{
			Name:     cfg.Session.CookieName,
			SameSite: cfg.Session.SameSite,
			Secure:   cfg.Session.Secure,
			TTL:      cfg.SessionTTL(),
		}),
		Health: healthctl.NewController(version, map[string]healthctl.Pinger{
			"postgres":    store,
			"token_store": tokenStore,
		}),
		Session: middlewares.SessionConfig{
			Manager:     sessions,
			CookieName:  cfg.Session.CookieName,
			SameSite:    cfg.Session.SameSite,
			Secure:      cfg.Session.Secure,
			TTL:         cfg.SessionTTL(),
			AbsoluteTTL: cfg.SessionAbsoluteTTL(),
		},
		LoginLimiter: rate.NewFixedWindow(tokenStore, "rl:login", cfg.Throttle.LoginMax, cfg.Throttle.LoginWindow),
	})

	// Paso 6: Métricas en addr separado (opcional)
	if err := metrics.Register(nil); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	var metricsSrv *http.Server
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			log.Info("metrics server listening", logger.String("addr", cfg.Metrics.Addr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", logger.Err(err))
			}
		}()
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", logger.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutCtx)
	}
	return srv.Shutdown(shutCtx)
}

// centralHosts junta los hosts que cuentan como dominio central.
func centralHosts(cfg *config.Config) []string {
	hosts := append([]string(nil), cfg.Server.CentralDomains...)
	if cfg.Server.PublicBaseURL != "" {
		if u, err := url.Parse(cfg.Server.PublicBaseURL); err == nil && u.Host != "" {
			hosts = append(hosts, u.Host)
		}
	}
	return hosts
}
