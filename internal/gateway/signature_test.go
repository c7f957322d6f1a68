package gateway

import (
	"errors"
	"testing"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"event_id":"evt-1","type":"charge.completed"}`)
	secret := "shared-secret"

	sig := Sign(payload, secret)

	if err := VerifySignature(payload, sig, secret); err != nil {
		t.Errorf("VerifySignature: %v", err)
	}
}

func TestVerifySignatureRejects(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"event_id":"evt-1"}`)
	secret := "shared-secret"
	sig := Sign(payload, secret)

	tests := []struct {
		name      string
		payload   []byte
		signature string
		secret    string
	}{
		{"tampered payload", []byte(`{"event_id":"evt-2"}`), sig, secret},
		{"wrong secret", payload, sig, "other-secret"},
		{"not hex", payload, "zzzz", secret},
		{"empty signature", payload, "", secret},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := VerifySignature(tt.payload, tt.signature, tt.secret); !errors.Is(err, ErrBadSignature) {
				t.Errorf("got %v, want ErrBadSignature", err)
			}
		})
	}
}
