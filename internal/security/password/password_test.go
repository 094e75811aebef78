package password

import (
	"strings"
	"testing"
)

// Params chicos para que los tests no quemen CPU.
var testParams = Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, KeyLen: 32}

func TestHashVerify_RoundTrip(t *testing.T) {
	phc, err := Hash(testParams, "correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash err: %v", err)
	}
	if !strings.HasPrefix(phc, "$argon2id$v=19$") {
		t.Fatalf("unexpected PHC format: %q", phc)
	}
	if !Verify("correct horse battery staple", phc) {
		t.Fatal("correct password must verify")
	}
	if Verify("wrong", phc) {
		t.Fatal("wrong password must not verify")
	}
}

func TestHash_EmptyPasswordRejected(t *testing.T) {
	if _, err := Hash(testParams, ""); err == nil {
		t.Fatal("empty password must be rejected")
	}
}

func TestHash_SaltsDiffer(t *testing.T) {
	a, err := Hash(testParams, "same")
	if err != nil {
		t.Fatalf("Hash err: %v", err)
	}
	b, err := Hash(testParams, "same")
	if err != nil {
		t.Fatalf("Hash err: %v", err)
	}
	if a == b {
		t.Fatal("two hashes of the same password must differ (random salt)")
	}
}

func TestVerify_MalformedHashNeverPanics(t *testing.T) {
	for _, phc := range []string{
		"",
		"plaintext",
		"$argon2id$v=19$m=65536,t=3,p=1$onlyfourparts",
		"$bcrypt$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=abc,t=3,p=1$c2FsdA$aGFzaA",
	} {
		if Verify("x", phc) {
			t.Fatalf("malformed hash %q must not verify", phc)
		}
	}
}
