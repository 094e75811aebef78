package sso

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Effham/wellvois/internal/cache"
	"github.com/Effham/wellvois/internal/session"
	ssocore "github.com/Effham/wellvois/internal/sso"
)

type fakeBroker struct {
	payload *ssocore.Payload
	err     error

	gotCode      string
	gotSessionID string
}

func (f *fakeBroker) Redeem(_ context.Context, code, requestingSessionID string) (*ssocore.Payload, error) {
	f.gotCode = code
	f.gotSessionID = requestingSessionID
	if f.err != nil {
		return nil, f.err
	}
	return f.payload, nil
}

func newService(broker *fakeBroker) (StartService, *session.Manager) {
	mgr := session.NewManager(cache.NewMemory(""), time.Hour)
	return NewStartService(StartDeps{Broker: broker, Sessions: mgr}), mgr
}

func TestStart_OpensFreshTenantSession(t *testing.T) {
	issued := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	broker := &fakeBroker{payload: &ssocore.Payload{
		UserID:             "u1",
		TenantID:           "t1",
		SecondFactorPassed: true,
		DocumentIDs:        []string{"d1", "d2"},
		RedirectPath:       "/documents/shared",
		IssuedAt:           issued,
	}}
	svc, mgr := newService(broker)

	res, err := svc.Start(context.Background(), "code-abc", "anon-sess")
	if err != nil {
		t.Fatalf("Start err: %v", err)
	}
	if broker.gotCode != "code-abc" || broker.gotSessionID != "anon-sess" {
		t.Fatalf("broker got %q / %q", broker.gotCode, broker.gotSessionID)
	}
	if res.RedirectTo != "/documents/shared" {
		t.Fatalf("redirect = %q", res.RedirectTo)
	}
	if res.Session.Data.UserID != "u1" || !res.Session.Data.TwoFAPassed {
		t.Fatalf("session data = %+v", res.Session.Data)
	}
	if len(res.Session.Data.DocumentIDsFilter) != 2 {
		t.Fatalf("doc filter = %v", res.Session.Data.DocumentIDsFilter)
	}
	if res.Session.Data.LoginTime != issued.Unix() {
		t.Fatalf("login time = %d", res.Session.Data.LoginTime)
	}

	// La sesión quedó persistida bajo su ID nuevo.
	if _, err := mgr.Get(context.Background(), res.Session.ID); err != nil {
		t.Fatalf("session not persisted: %v", err)
	}
}

func TestStart_DefaultRedirect(t *testing.T) {
	broker := &fakeBroker{payload: &ssocore.Payload{UserID: "u1", IssuedAt: time.Now()}}
	svc, _ := newService(broker)

	res, err := svc.Start(context.Background(), "code-abc", "")
	if err != nil {
		t.Fatalf("Start err: %v", err)
	}
	if res.RedirectTo != "/dashboard" {
		t.Fatalf("redirect = %q", res.RedirectTo)
	}
}

func TestStart_MissingCode(t *testing.T) {
	svc, _ := newService(&fakeBroker{})
	_, err := svc.Start(context.Background(), "", "sess")
	if !errors.Is(err, ErrMissingCode) {
		t.Fatalf("want ErrMissingCode, got %v", err)
	}
}

func TestStart_RedeemDeniedWrapsCause(t *testing.T) {
	svc, _ := newService(&fakeBroker{err: ssocore.ErrCodeExpired})
	_, err := svc.Start(context.Background(), "code-abc", "sess")
	if !errors.Is(err, ErrRedeemDenied) {
		t.Fatalf("want ErrRedeemDenied, got %v", err)
	}
	if !errors.Is(err, ssocore.ErrCodeExpired) {
		t.Fatalf("cause must survive the wrap: %v", err)
	}
}
