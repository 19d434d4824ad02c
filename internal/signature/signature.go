// Copyright 2026 The Scopekeeper Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package signature validates HAWK-signed (and bewit-bearing) requests,
// layering temporary-certificate delegation on top of the MAC check
// provided by github.com/hiyosi/hawk.
package signature

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/scopekeeper/scopekeeper/internal/cert"
	"github.com/scopekeeper/scopekeeper/internal/resolver"
	"github.com/scopekeeper/scopekeeper/internal/role"
	"github.com/scopekeeper/scopekeeper/internal/scope"
)

// certIDPrefix marks a HAWK credential id as a certificate delegation
// rather than a direct client id: "cert:<issuerClientId>:<seed>". The
// seed lets the credential getter re-derive the session key
// (cert.DerivedAccessToken) without ever seeing the certificate itself,
// which HAWK's MAC covers only inside the ext field.
const certIDPrefix = "cert:"

// Client is the subset of client directory state the validator needs.
type Client struct {
	ID          string
	AccessToken string
	Scopes      []scope.Scope
}

// ClientLoader resolves a client id to its directory record. Implemented
// by internal/clientdir.
type ClientLoader interface {
	Load(clientID string) (*Client, error)
}

// Error is the flat shape returned to callers on validation failure.
type Error struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return e.Message }

func fail(format string, args ...any) *Error {
	return &Error{Status: "failed", Message: fmt.Sprintf(format, args...)}
}

// Result is the successful outcome of validating a request: the
// resolved client id and the scopes the caller is entitled to present
// to the role resolver.
type Result struct {
	Status    string        `json:"status"`
	ClientID  string        `json:"clientId"`
	Scopes    []scope.Scope `json:"scopes"`
	Scheme    string        `json:"scheme"`
	ExpiresAt *int64        `json:"expiresAt,omitempty"`
}

// ParseCredentialID splits a HAWK credential id into the issuer client
// id and certificate seed, if it is a certificate delegation.
func ParseCredentialID(id string) (issuerID, seed string, isCert bool) {
	if !strings.HasPrefix(id, certIDPrefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(id, certIDPrefix)
	parts := strings.SplitN(rest, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// SessionKey resolves the HAWK key a credential id authenticates with:
// the client's own access token for a direct client id, or the derived
// access token for a certificate delegation.
func SessionKey(loader ClientLoader, id string) (key string, err error) {
	if issuerID, seed, isCert := ParseCredentialID(id); isCert {
		issuer, err := loader.Load(issuerID)
		if err != nil {
			return "", fmt.Errorf("signature: loading issuer %q: %w", issuerID, err)
		}
		return cert.DerivedAccessToken(issuer.AccessToken, seed), nil
	}
	client, err := loader.Load(id)
	if err != nil {
		return "", fmt.Errorf("signature: loading client %q: %w", id, err)
	}
	return client.AccessToken, nil
}

// extPayload is the decoded shape of a HAWK ext field, per §4.4.2: an
// optional certificate and an optional further restriction to a subset
// of the issuer's scopes. Both are modelled as present/absent rather
// than zero-valued, so downstream logic never has to guess whether an
// empty value means "not given" or "given empty".
type extPayload struct {
	Certificate      *cert.Cert
	AuthorizedScopes []scope.Scope
	hasAuthScopes    bool
}

// decodeBase64 accepts either standard or URL-safe base64, with or
// without padding, since the two payload carriers (HAWK ext attribute
// and bewit query parameter) are not guaranteed to agree on alphabet.
func decodeBase64(s string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding} {
		if raw, err := enc.DecodeString(s); err == nil {
			return raw, nil
		}
	}
	return base64.RawURLEncoding.DecodeString(s)
}

// parseExt decodes and validates the base64+JSON ext payload, per
// §4.4.4 rules 1-2. It is modelled as explicit field-by-field checks on
// a generic decode rather than a typed struct, so a type mismatch on
// any one field produces the field-specific message the spec mandates
// instead of a generic unmarshal error.
func parseExt(ext string) (*extPayload, error) {
	raw, err := decodeBase64(ext)
	if err != nil {
		return nil, fail("Failed to parse ext")
	}
	var top map[string]any
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, fail("Failed to parse ext")
	}

	p := &extPayload{}
	if cv, present := top["certificate"]; present {
		c, err := parseCertificate(cv)
		if err != nil {
			return nil, err
		}
		p.Certificate = c
	}
	if av, present := top["authorizedScopes"]; present {
		scopes, err := parseScopeArray(av, "ext.authorizedScopes")
		if err != nil {
			return nil, err
		}
		p.AuthorizedScopes = scopes
		p.hasAuthScopes = true
	}
	return p, nil
}

func parseCertificate(raw any) (*cert.Cert, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fail("ext.certificate must be an object")
	}

	version, err := requireNumber(obj, "version", "ext.certificate.version")
	if err != nil {
		return nil, err
	}
	seed, err := requireString(obj, "seed", "ext.certificate.seed")
	if err != nil {
		return nil, err
	}
	if len(seed) != 44 {
		return nil, fail("ext.certificate.seed must be exactly 44 characters")
	}
	start, err := requireNumber(obj, "start", "ext.certificate.start")
	if err != nil {
		return nil, err
	}
	expiry, err := requireNumber(obj, "expiry", "ext.certificate.expiry")
	if err != nil {
		return nil, err
	}
	scopesRaw, present := obj["scopes"]
	if !present {
		return nil, fail("ext.certificate.scopes must be an array")
	}
	scopes, err := parseScopeArray(scopesRaw, "ext.certificate.scopes")
	if err != nil {
		return nil, err
	}
	sigStr, err := requireString(obj, "signature", "ext.certificate.signature")
	if err != nil {
		return nil, err
	}
	sig, err := decodeBase64(sigStr)
	if err != nil {
		return nil, fail("ext.certificate.signature is not valid")
	}

	name, err := optionalString(obj, "name", "ext.certificate.name")
	if err != nil {
		return nil, err
	}
	issuer, err := optionalString(obj, "issuer", "ext.certificate.issuer")
	if err != nil {
		return nil, err
	}

	return &cert.Cert{
		Version:   int(version),
		Seed:      seed,
		Start:     int64(start),
		Expiry:    int64(expiry),
		Scopes:    scopes,
		Name:      name,
		Issuer:    issuer,
		Signature: sig,
	}, nil
}

func parseScopeArray(raw any, field string) ([]scope.Scope, error) {
	arr, ok := raw.([]any)
	if !ok {
		return nil, fail("%s must be an array", field)
	}
	scopes := make([]scope.Scope, 0, len(arr))
	for _, item := range arr {
		s, ok := item.(string)
		if !ok || !scope.Scope(s).Valid() {
			return nil, fail("%s must be an array", field)
		}
		scopes = append(scopes, scope.Scope(s))
	}
	return scopes, nil
}

func requireString(obj map[string]any, key, field string) (string, error) {
	v, present := obj[key]
	if !present {
		return "", fail("%s must be a string", field)
	}
	s, ok := v.(string)
	if !ok {
		return "", fail("%s must be a string", field)
	}
	return s, nil
}

func optionalString(obj map[string]any, key, field string) (string, error) {
	v, present := obj[key]
	if !present {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fail("%s must be a string", field)
	}
	return s, nil
}

func requireNumber(obj map[string]any, key, field string) (float64, error) {
	v, present := obj[key]
	if !present {
		return 0, fail("%s must be a number", field)
	}
	n, ok := v.(float64)
	if !ok {
		return 0, fail("%s must be a number", field)
	}
	return n, nil
}

// ValidateAuthenticated applies the certificate-delegation rules to a
// request whose HAWK MAC has already been verified by the caller
// (typically MACAuthenticator, which derives the session key MAC'd
// against from SessionKey — this is where §4.4.4 rule 8, matching the
// derived access token to the request's MAC key, is already enforced:
// a request that reached this function at all necessarily MAC'd
// against the correct derived key). res is the resolver snapshot used
// to expand the issuer's own scopes in rule 9a.
//
// Validation order follows §4.4.4:
//  1. A direct (non-certificate) credential id needs no ext.
//  2. A certificate credential id must carry a parseable ext.certificate.
//  3. The certificate version must be 1.
//  4. now must fall within [start, expiry], itself spanning at most
//     cert.MaxLifetime.
//  5. Named-delegation rules, in the precedence the spec's open
//     questions resolve: both-or-neither, name != issuer, name equal to
//     the outer credential's clientId, then issuer's create-client scope.
//  6. The issuer must be a known client.
//  7. The certificate signature must verify against the issuer's own
//     access token.
//  9. effectiveScopes narrows from the issuer's resolver-expanded
//     scopes through the certificate and, if present, authorizedScopes.
func ValidateAuthenticated(loader ClientLoader, res *resolver.Resolver, credentialID, ext string, now time.Time) (*Result, error) {
	issuerID, seed, isCert := ParseCredentialID(credentialID)
	if !isCert {
		client, err := loader.Load(credentialID)
		if err != nil {
			return nil, fail("no such clientId")
		}
		return &Result{Status: "success", ClientID: client.ID, Scopes: client.Scopes, Scheme: "hawk"}, nil
	}

	if ext == "" {
		return nil, fail("Failed to parse ext")
	}
	payload, err := parseExt(ext)
	if err != nil {
		return nil, err
	}
	if payload.Certificate == nil {
		return nil, fail("ext.certificate must be an object")
	}
	c := payload.Certificate

	if c.Version != cert.Version {
		return nil, fail("ext.certificate.version must be 1")
	}
	if c.Seed != seed {
		return nil, fail("ext.certificate.seed does not match credential")
	}

	nowMilli := now.UnixMilli()
	switch err := cert.CheckWindow(c, nowMilli); err {
	case cert.ErrNotYetValid:
		return nil, fail("ext.certificate.start > now")
	case cert.ErrExpired:
		return nil, fail("ext.certificate.expiry < now")
	case cert.ErrTooLong:
		return nil, fail("ext.certificate cannot last longer than 31 days!")
	}

	if (c.Name != "") != (c.Issuer != "") {
		return nil, fail("name must only be used with issuer")
	}
	namedDelegation := c.Name != "" && c.Issuer != ""
	if namedDelegation {
		if c.Name == c.Issuer {
			return nil, fail("name must not equal issuer")
		}
		if c.Name != issuerID {
			return nil, fail("name must equal the credential's clientId")
		}
		grantor, err := loader.Load(c.Issuer)
		if err != nil {
			return nil, fail("no such clientId")
		}
		if !scope.Satisfies(grantor.Scopes, []scope.Scope{scope.Scope("auth:create-client:" + c.Name)}) {
			return nil, fail("ext.certificate issuer `%s` cannot create client `%s`", c.Issuer, c.Name)
		}
	}

	issuer, err := loader.Load(issuerID)
	if err != nil {
		return nil, fail("no such clientId")
	}
	if !cert.Verify(c, issuer.AccessToken) {
		return nil, fail("ext.certificate.signature is not valid")
	}

	effective := res.ExpandScopes(append(
		append([]scope.Scope{}, issuer.Scopes...),
		role.ActivationPattern(role.ClientRoleID(issuerID)),
	))
	if !scope.Satisfies(effective, c.Scopes) {
		return nil, fail("ext.certificate issuer `%s` doesn't have sufficient scopes", issuerID)
	}
	effective = c.Scopes
	if payload.hasAuthScopes {
		if !scope.Satisfies(effective, payload.AuthorizedScopes) {
			return nil, fail("ext.authorizedScopes oversteps your scopes")
		}
		effective = payload.AuthorizedScopes
	}

	clientID := issuerID
	if c.Name != "" {
		clientID = c.Name
	}
	expiry := c.Expiry
	return &Result{
		Status:    "success",
		ClientID:  clientID,
		Scopes:    effective,
		Scheme:    "hawk-cert",
		ExpiresAt: &expiry,
	}, nil
}
