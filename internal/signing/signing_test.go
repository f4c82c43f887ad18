package signing

import (
	"strings"
	"testing"
)

func TestSignDeterministic(t *testing.T) {
	t.Parallel()

	if Sign("k", []byte("hello")) != Sign("k", []byte("hello")) {
		t.Fatalf("signature changed between identical calls")
	}
	if Sign("k", []byte("hello")) == Sign("k", []byte("hellp")) {
		t.Fatalf("signature did not change with body")
	}
	if Sign("k", []byte(`{"a":1}`)) == Sign("k", []byte(`{"a": 1}`)) {
		t.Fatalf("signature ignored whitespace difference")
	}
	if Sign("k1", []byte("hello")) == Sign("k2", []byte("hello")) {
		t.Fatalf("signature ignored key")
	}
}

func TestSignReferenceVector(t *testing.T) {
	t.Parallel()

	// RFC 4231 test case 2.
	got := Sign("Jefe", []byte("what do ya want for nothing?"))
	want := "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843"
	if got != want {
		t.Fatalf("Sign() = %s, want %s", got, want)
	}
	if strings.ToLower(got) != got {
		t.Fatalf("signature not lowercase: %s", got)
	}
}

func TestVerify(t *testing.T) {
	t.Parallel()

	body := []byte(`{"events":[]}`)
	sig := Sign("project-key", body)
	if !Verify("project-key", body, sig) {
		t.Fatalf("expected valid signature")
	}
	if Verify("project-key", []byte(`{"events":[ ]}`), sig) {
		t.Fatalf("expected tampered body to fail")
	}
	if Verify("other-key", body, sig) {
		t.Fatalf("expected wrong key to fail")
	}
	if Verify("project-key", body, "not-hex") {
		t.Fatalf("expected malformed signature to fail")
	}
}
