package credential

import (
	"context"
	"strings"
	"testing"
	"time"
)

// shProvider builds a Provider backed by a `sh -c` script that reads
// and discards the one-line JSON request, then prints resp verbatim.
// This exercises the real subprocess/stdio path without depending on
// a compiled helper binary.
func shProvider(t *testing.T, resp string) *Provider {
	t.Helper()
	script := "read _line; printf '%s\\n' " + shQuote(resp)
	return NewProvider([]string{"sh", "-c", script})
}

func shQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func TestGetReturnsToken(t *testing.T) {
	p := shProvider(t, `{"Token":{"value":"secret123","cache":"session"}}`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tok, err := p.Get(ctx, "sparse+https://example.com/index", OpPull)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if tok.Value != "secret123" {
		t.Errorf("Token.Value = %q, want secret123", tok.Value)
	}
	if tok.Cache != "session" {
		t.Errorf("Token.Cache = %q, want session", tok.Cache)
	}
}

func TestGetNotFoundIsFallthrough(t *testing.T) {
	p := shProvider(t, `{"Error":{"kind":"NotFound"}}`)

	tok, err := p.Get(context.Background(), "sparse+https://example.com/index", OpPull)
	if err == nil {
		t.Fatal("expected an error")
	}
	if tok != (Token{}) {
		t.Errorf("Token should be zero on error, got %+v", tok)
	}
	pe, ok := err.(*ProviderError)
	if !ok {
		t.Fatalf("error type = %T, want *ProviderError", err)
	}
	if pe.Kind != KindNotFound || !pe.Fallthrough() {
		t.Errorf("NotFound should be a fallthrough kind, got %v", pe.Kind)
	}
}

func TestGetOperationNotSupportedIsFatal(t *testing.T) {
	p := shProvider(t, `{"Error":{"kind":"OperationNotSupported","message":"no get support"}}`)

	_, err := p.Get(context.Background(), "sparse+https://example.com/index", OpPull)
	pe, ok := err.(*ProviderError)
	if !ok {
		t.Fatalf("error type = %T, want *ProviderError", err)
	}
	if pe.Fallthrough() {
		t.Error("OperationNotSupported must not be treated as a fallthrough error")
	}
	if pe.Message != "no get support" {
		t.Errorf("Message = %q", pe.Message)
	}
}

func TestChainFallsThroughToNextProvider(t *testing.T) {
	chain := &Chain{Providers: []*Provider{
		shProvider(t, `{"Error":{"kind":"UrlNotSupported"}}`),
		shProvider(t, `{"Token":{"value":"from-second"}}`),
	}}

	tok, err := chain.Get(context.Background(), "sparse+https://example.com/index", OpPull)
	if err != nil {
		t.Fatalf("Chain.Get() error: %v", err)
	}
	if tok.Value != "from-second" {
		t.Errorf("Token.Value = %q, want from-second", tok.Value)
	}
}

func TestChainStopsOnFatalError(t *testing.T) {
	chain := &Chain{Providers: []*Provider{
		shProvider(t, `{"Error":{"kind":"Other","message":"disk on fire"}}`),
		shProvider(t, `{"Token":{"value":"should-not-be-reached"}}`),
	}}

	_, err := chain.Get(context.Background(), "sparse+https://example.com/index", OpPull)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "disk on fire") {
		t.Errorf("error = %v, want it to surface the first provider's message", err)
	}
}

func TestStoreAndErase(t *testing.T) {
	store := shProvider(t, `{"Login":{}}`)
	if err := store.Store(context.Background(), "sparse+https://example.com/index", map[string]string{"token": "abc"}); err != nil {
		t.Fatalf("Store() error: %v", err)
	}

	erase := shProvider(t, `{"Logout":{}}`)
	if err := erase.Erase(context.Background(), "sparse+https://example.com/index"); err != nil {
		t.Fatalf("Erase() error: %v", err)
	}
}
