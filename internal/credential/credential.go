// Package credential implements the client side of the external
// credential provider protocol: a JSON-over-stdio conversation with a
// subprocess that knows how to get/store/erase a registry's auth token
// (spec.md §6). Credential providers themselves -- the processes on
// the other end of this protocol -- are out of scope (spec.md §1); this
// package is only the `get/store/erase` capability the core consumes.
//
// Grounded directly on spec.md §6's message vocabulary and, on the
// original_source side, src/cargo/ops/registry/auth.rs and
// credential/cargo-credential/src/error.rs for the ErrorKind shape.
// Library: stdlib encoding/json + os/exec -- this is a small framed
// stdio protocol, not a domain any of the pack's HTTP/VCS/DB libraries
// touch, so no third-party dependency applies here.
package credential

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/pkg/errors"
)

// Operation names the registry action a Get request is being made on
// behalf of.
type Operation string

const (
	OpPublish     Operation = "publish"
	OpPull        Operation = "pull"
	OpYank        Operation = "yank"
	OpOwnerList   Operation = "owner-list"
	OpOwnerAdd    Operation = "owner-add"
	OpOwnerRemove Operation = "owner-remove"
)

// request is one JSON value written to the provider's stdin.
type request struct {
	Get    *getRequest    `json:"Get,omitempty"`
	Login  *loginRequest  `json:"Login,omitempty"`
	Logout *struct{}      `json:"Logout,omitempty"`
}

type getRequest struct {
	Operation Operation `json:"operation"`
}

type loginRequest struct {
	Options map[string]string `json:"options,omitempty"`
}

// response is one JSON value read back from the provider's stdout.
type response struct {
	Token  *tokenResponse `json:"Token,omitempty"`
	Login  *struct{}      `json:"Login,omitempty"`
	Logout *struct{}      `json:"Logout,omitempty"`
	Error  *errorResponse `json:"Error,omitempty"`
}

type tokenResponse struct {
	Value                string `json:"value"`
	Cache                string `json:"cache,omitempty"`
	OperationIndependent bool   `json:"operation_independent,omitempty"`
}

type errorResponse struct {
	Kind      string   `json:"kind"`
	Message   string   `json:"message,omitempty"`
	CausedBy  []string `json:"caused_by,omitempty"`
}

// ErrorKind classifies a provider failure (spec.md §6). UrlNotSupported
// and NotFound are non-fatal: the caller falls through to the next
// configured provider. Every other kind is fatal.
type ErrorKind uint8

const (
	KindUrlNotSupported ErrorKind = iota
	KindNotFound
	KindOperationNotSupported
	KindOther
)

// ProviderError is returned for every {Error: ...} response.
type ProviderError struct {
	Kind     ErrorKind
	Message  string
	CausedBy []string
}

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("credential provider error (%v)", e.Kind)
	}
	return e.Message
}

// Fallthrough reports whether this error should cause the caller to
// try the next configured provider rather than abort.
func (e *ProviderError) Fallthrough() bool {
	return e.Kind == KindUrlNotSupported || e.Kind == KindNotFound
}

func parseErrorKind(s string) ErrorKind {
	switch s {
	case "UrlNotSupported":
		return KindUrlNotSupported
	case "NotFound":
		return KindNotFound
	case "OperationNotSupported":
		return KindOperationNotSupported
	default:
		return KindOther
	}
}

// Token is a successfully retrieved credential.
type Token struct {
	Value                string
	Cache                string
	OperationIndependent bool
}

// Provider is one external credential-provider process, addressed by
// its command line (argv[0] plus args).
type Provider struct {
	Argv []string
}

// NewProvider returns a Provider that invokes argv as a subprocess for
// every call.
func NewProvider(argv []string) *Provider {
	return &Provider{Argv: argv}
}

// Get asks the provider for a token usable for op against registryURL.
func (p *Provider) Get(ctx context.Context, registryURL string, op Operation) (Token, error) {
	resp, err := p.call(ctx, registryURL, request{Get: &getRequest{Operation: op}})
	if err != nil {
		return Token{}, err
	}
	if resp.Token == nil {
		return Token{}, errors.New("credential provider: Get response carried no Token")
	}
	return Token{
		Value:                resp.Token.Value,
		Cache:                resp.Token.Cache,
		OperationIndependent: resp.Token.OperationIndependent,
	}, nil
}

// Store asks the provider to persist a token for future use.
func (p *Provider) Store(ctx context.Context, registryURL string, options map[string]string) error {
	_, err := p.call(ctx, registryURL, request{Login: &loginRequest{Options: options}})
	return err
}

// Erase asks the provider to forget any token it holds for registryURL.
func (p *Provider) Erase(ctx context.Context, registryURL string) error {
	_, err := p.call(ctx, registryURL, request{Logout: &struct{}{}})
	return err
}

// call runs one request/response round trip against a fresh
// subprocess. One process per call keeps the protocol simple (no
// request IDs needed) at the cost of a spawn per credential operation,
// matching how infrequently these are actually invoked.
func (p *Provider) call(ctx context.Context, registryURL string, req request) (*response, error) {
	cmd := exec.CommandContext(ctx, p.Argv[0], p.Argv[1:]...)
	cmd.Env = append(cmd.Env, "CARGO_REGISTRY_INDEX_URL="+registryURL)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "credential provider: failed to open stdin")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "credential provider: failed to open stdout")
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "credential provider: failed to start %v", p.Argv)
	}

	enc := json.NewEncoder(stdin)
	if err := enc.Encode(req); err != nil {
		stdin.Close()
		cmd.Wait()
		return nil, errors.Wrap(err, "credential provider: failed to write request")
	}
	stdin.Close()

	scanner := bufio.NewScanner(stdout)
	var resp response
	var decodeErr error
	if scanner.Scan() {
		decodeErr = json.Unmarshal(scanner.Bytes(), &resp)
	}

	waitErr := cmd.Wait()
	if decodeErr != nil {
		return nil, errors.Wrap(decodeErr, "credential provider: malformed response")
	}
	if resp.Error == nil && waitErr != nil {
		return nil, errors.Wrapf(waitErr, "credential provider %v exited with an error", p.Argv)
	}
	if resp.Error != nil {
		return nil, &ProviderError{
			Kind:     parseErrorKind(resp.Error.Kind),
			Message:  resp.Error.Message,
			CausedBy: resp.Error.CausedBy,
		}
	}
	return &resp, nil
}

// Chain tries providers in order, falling through to the next one
// whenever a ProviderError reports Fallthrough (spec.md §6 /
// §7 recovery policy).
type Chain struct {
	Providers []*Provider
}

func (c *Chain) Get(ctx context.Context, registryURL string, op Operation) (Token, error) {
	var lastErr error
	for _, p := range c.Providers {
		tok, err := p.Get(ctx, registryURL, op)
		if err == nil {
			return tok, nil
		}
		var pe *ProviderError
		if errors.As(err, &pe) && pe.Fallthrough() {
			lastErr = err
			continue
		}
		return Token{}, err
	}
	if lastErr == nil {
		lastErr = errors.New("credential: no providers configured")
	}
	return Token{}, lastErr
}
