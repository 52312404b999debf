package webhooks

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"testing"

	"tillpoint/internal/types"
)

// mapSecrets implements SecretSource over a plain map.
type mapSecrets map[types.PaymentProvider]types.SecretString

func (m mapSecrets) WebhookSecret(p types.PaymentProvider) types.SecretString {
	return m[p]
}

func testSecrets() mapSecrets {
	return mapSecrets{
		types.ProviderPaystack:    "paystack-secret",
		types.ProviderFlutterwave: "flw-secret",
	}
}

func signPaystack(t *testing.T, secret string, body []byte) string {
	t.Helper()
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func appCode(t *testing.T, err error) types.ErrorCode {
	t.Helper()
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T: %v", err, err)
	}
	return appErr.Code
}

func TestVerifier_ValidSignature(t *testing.T) {
	v := NewVerifier(testSecrets())
	body := []byte(`{"event":"charge.success","data":{"reference":"tx-1"}}`)
	sig := signPaystack(t, "paystack-secret", body)

	if err := v.Verify(types.ProviderPaystack, body, sig); err != nil {
		t.Errorf("valid signature rejected: %v", err)
	}
}

func TestVerifier_MissingHeader(t *testing.T) {
	v := NewVerifier(testSecrets())

	err := v.Verify(types.ProviderPaystack, []byte(`{}`), "")
	if err == nil {
		t.Fatal("missing signature must be rejected")
	}
	if code := appCode(t, err); code != types.ErrCodeAuthSignatureMissing {
		t.Errorf("code = %s, want %s", code, types.ErrCodeAuthSignatureMissing)
	}
}

func TestVerifier_SingleByteMutationInvalidates(t *testing.T) {
	v := NewVerifier(testSecrets())
	body := []byte(`{"event":"charge.success","data":{"reference":"tx-1","amount":50000}}`)
	sig := signPaystack(t, "paystack-secret", body)

	// Flip one byte of the signed payload.
	mutated := make([]byte, len(body))
	copy(mutated, body)
	mutated[len(mutated)/2] ^= 0x01

	err := v.Verify(types.ProviderPaystack, mutated, sig)
	if err == nil {
		t.Fatal("mutated body must invalidate the signature")
	}
	if code := appCode(t, err); code != types.ErrCodeAuthSignatureInvalid {
		t.Errorf("code = %s, want %s", code, types.ErrCodeAuthSignatureInvalid)
	}
}

func TestVerifier_WrongSecret(t *testing.T) {
	v := NewVerifier(testSecrets())
	body := []byte(`{"event":"charge.success"}`)
	sig := signPaystack(t, "some-other-secret", body)

	if err := v.Verify(types.ProviderPaystack, body, sig); err == nil {
		t.Fatal("signature under the wrong secret must be rejected")
	}
}

func TestVerifier_ProviderDigestsDiffer(t *testing.T) {
	v := NewVerifier(testSecrets())
	body := []byte(`{"event":"charge.completed"}`)

	// A flutterwave delivery signed with paystack's SHA-512 scheme must not
	// verify even with the right flutterwave secret bytes.
	mac := hmac.New(sha512.New, []byte("flw-secret"))
	mac.Write(body)
	wrongScheme := hex.EncodeToString(mac.Sum(nil))

	if err := v.Verify(types.ProviderFlutterwave, body, wrongScheme); err == nil {
		t.Fatal("signature under the wrong digest must be rejected")
	}

	// The profile's own scheme verifies.
	sig, err := Sign(types.ProviderFlutterwave, "flw-secret", body)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := v.Verify(types.ProviderFlutterwave, body, sig); err != nil {
		t.Errorf("valid flutterwave signature rejected: %v", err)
	}
}

func TestVerifier_UnknownProvider(t *testing.T) {
	v := NewVerifier(testSecrets())

	err := v.Verify("stripe", []byte(`{}`), "deadbeef")
	if err == nil {
		t.Fatal("unknown provider must be rejected")
	}
}

func TestSignVerify_RoundTrip(t *testing.T) {
	v := NewVerifier(testSecrets())
	body := []byte(`{"event":"charge.success","data":{"reference":"tx-9"}}`)

	sig, err := Sign(types.ProviderPaystack, "paystack-secret", body)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := v.Verify(types.ProviderPaystack, body, sig); err != nil {
		t.Errorf("round trip failed: %v", err)
	}
}
