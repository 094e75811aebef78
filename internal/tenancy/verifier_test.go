package tenancy

import (
	"context"
	"fmt"
	"testing"

	"github.com/Effham/wellvois/internal/domain/repository"
	"github.com/Effham/wellvois/internal/domain/types"
)

type stubIdentities struct {
	identity *repository.Identity
	err      error
}

func (s *stubIdentities) GetByID(context.Context, string) (*repository.Identity, error) {
	return s.identity, s.err
}
func (s *stubIdentities) GetByEmail(context.Context, string) (*repository.Identity, error) {
	return nil, repository.ErrNotFound
}
func (s *stubIdentities) GetByProviderSubject(context.Context, string) (*repository.Identity, error) {
	return nil, repository.ErrNotFound
}
func (s *stubIdentities) SetProviderSubject(context.Context, string, string) error { return nil }
func (s *stubIdentities) SetTOTPLastCounter(context.Context, string, int64) error  { return nil }

type stubMemberships struct {
	exists        bool
	existsErr     error
	direct        bool
	directErr     error
	directCalls   int
	membership    *repository.Membership
	membershipErr error
}

func (s *stubMemberships) Exists(context.Context, string, string) (bool, error) {
	return s.exists, s.existsErr
}

func (s *stubMemberships) ExistsDirect(context.Context, string, string) (bool, error) {
	s.directCalls++
	return s.direct, s.directErr
}

func (s *stubMemberships) Get(context.Context, string, string) (*repository.Membership, error) {
	if s.membershipErr != nil {
		return nil, s.membershipErr
	}
	if s.membership == nil {
		return nil, repository.ErrNotFound
	}
	return s.membership, nil
}

func (s *stubMemberships) ListTenants(context.Context, string) ([]repository.TenantGrant, error) {
	return nil, nil
}
func (s *stubMemberships) HasRole(context.Context, string, string, types.Role) (bool, error) {
	return false, nil
}
func (s *stubMemberships) EnsureTenantUser(context.Context, repository.EnsureTenantUserInput) error {
	return nil
}

func practitionerIdentity() *repository.Identity {
	pr := "pr-1"
	return &repository.Identity{ID: "i1", PractitionerID: &pr}
}

func patientIdentity() *repository.Identity {
	pa := "pa-1"
	return &repository.Identity{ID: "i1", PatientID: &pa}
}

func TestVerify_DeniesUnknownIdentity(t *testing.T) {
	v := NewVerifier(&stubIdentities{err: repository.ErrNotFound}, &stubMemberships{exists: true})
	if v.Verify(context.Background(), "ghost", "t1") {
		t.Fatal("unknown identity must deny")
	}
}

func TestVerify_DeniesOnStoreError(t *testing.T) {
	v := NewVerifier(
		&stubIdentities{identity: practitionerIdentity()},
		&stubMemberships{existsErr: fmt.Errorf("pg down")},
	)
	if v.Verify(context.Background(), "i1", "t1") {
		t.Fatal("store error must deny, never allow")
	}
}

func TestVerify_PractitionerWithMembership(t *testing.T) {
	v := NewVerifier(&stubIdentities{identity: practitionerIdentity()}, &stubMemberships{exists: true})
	if !v.Verify(context.Background(), "i1", "t1") {
		t.Fatal("practitioner with membership must pass")
	}
}

func TestVerify_RaceFallbackHitsDirectRead(t *testing.T) {
	ms := &stubMemberships{exists: false, direct: true}
	v := NewVerifier(&stubIdentities{identity: practitionerIdentity()}, ms)

	if !v.Verify(context.Background(), "i1", "t1") {
		t.Fatal("direct join-table hit must grant access")
	}
	if ms.directCalls != 1 {
		t.Fatalf("directCalls = %d, want 1", ms.directCalls)
	}
}

func TestVerify_NoMembershipAnywhere(t *testing.T) {
	ms := &stubMemberships{exists: false, direct: false}
	v := NewVerifier(&stubIdentities{identity: practitionerIdentity()}, ms)
	if v.Verify(context.Background(), "i1", "t1") {
		t.Fatal("no membership must deny")
	}
}

func TestVerify_PatientInvitationGate(t *testing.T) {
	cases := []struct {
		status types.InvitationStatus
		want   bool
	}{
		{types.InvitationAccepted, true},
		{types.InvitationPending, false},
		{types.InvitationInvited, false},
		{types.InvitationDeclined, false},
		{types.InvitationNotInvited, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.status), func(t *testing.T) {
			v := NewVerifier(
				&stubIdentities{identity: patientIdentity()},
				&stubMemberships{exists: true, membership: &repository.Membership{InvitationStatus: tc.status}},
			)
			if got := v.Verify(context.Background(), "i1", "t1"); got != tc.want {
				t.Fatalf("status %q: got %v, want %v", tc.status, got, tc.want)
			}
		})
	}
}

func TestVerify_PractitionerPatientComboSkipsInvitationGate(t *testing.T) {
	pr, pa := "pr-1", "pa-1"
	id := &repository.Identity{ID: "i1", PractitionerID: &pr, PatientID: &pa}

	// Sin fila de invitación: Get fallaría; no debe consultarse.
	v := NewVerifier(&stubIdentities{identity: id}, &stubMemberships{exists: true, membershipErr: fmt.Errorf("must not be called")})
	if !v.Verify(context.Background(), "i1", "t1") {
		t.Fatal("practitioner+patient must bypass the invitation gate")
	}
}
