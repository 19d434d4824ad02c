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

// Package cert implements temporary certificates: signed, time-boxed
// delegations of a subset of an issuer's scopes to a derived access
// token, layered on top of a HAWK credential rather than replacing it.
package cert

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/scopekeeper/scopekeeper/internal/scope"
)

// Version is the only certificate wire version this package understands.
const Version = 1

// Cert is a temporary certificate as carried in a HAWK ext field: a
// time-boxed, signed grant of scopes derived from an issuer's own
// access token.
type Cert struct {
	Version   int
	Seed      string
	Start     int64 // milliseconds since epoch
	Expiry    int64 // milliseconds since epoch
	Scopes    []scope.Scope
	Name      string // optional named delegation
	Issuer    string // clientId of the issuing credential, if delegated
	Signature []byte
}

// MaxLifetime is the longest span a certificate's [Start, Expiry] window
// may cover, per §4.4.4 rule 4.
const MaxLifetime = 31 * 24 * time.Hour

var (
	ErrUnsupportedVersion = errors.New("cert: unsupported version")
	ErrExpired            = errors.New("cert: expired")
	ErrNotYetValid        = errors.New("cert: not yet valid")
	ErrTooLong            = errors.New("cert: exceeds max lifetime")
	ErrBadSignature       = errors.New("cert: signature mismatch")
)

// signingLine is the canonical, line-separated representation signed
// and verified by Sign/Verify, per §4.4.3:
//
//	version:<version>
//	[name:<name>]
//	[issuer:<issuer>]
//	seed:<seed>
//	start:<start>
//	expiry:<expiry>
//	scopes:
//	<scope1>
//	<scope2>
//	...
//
// The name/issuer lines appear iff the corresponding field is set; the
// scope list is newline-joined with no leading newline before the
// first scope. Field order and separators are fixed by the wire
// format; changing either breaks every certificate already in the
// wild.
func signingLine(c *Cert) string {
	var b strings.Builder
	b.WriteString("version:")
	b.WriteString(strconv.Itoa(c.Version))
	b.WriteByte('\n')
	if c.Name != "" {
		b.WriteString("name:")
		b.WriteString(c.Name)
		b.WriteByte('\n')
	}
	if c.Issuer != "" {
		b.WriteString("issuer:")
		b.WriteString(c.Issuer)
		b.WriteByte('\n')
	}
	b.WriteString("seed:")
	b.WriteString(c.Seed)
	b.WriteByte('\n')
	b.WriteString("start:")
	b.WriteString(strconv.FormatInt(c.Start, 10))
	b.WriteByte('\n')
	b.WriteString("expiry:")
	b.WriteString(strconv.FormatInt(c.Expiry, 10))
	b.WriteByte('\n')
	b.WriteString("scopes:")
	for _, s := range c.Scopes {
		b.WriteByte('\n')
		b.WriteString(string(s))
	}
	return b.String()
}

// Sign computes the certificate's signature under accessToken, the
// issuing credential's own HAWK key, and stores it on c.
func Sign(c *Cert, accessToken string) {
	mac := hmac.New(sha256.New, []byte(accessToken))
	mac.Write([]byte(signingLine(c)))
	c.Signature = mac.Sum(nil)
}

// Verify reports whether c's signature is valid under accessToken, in
// constant time.
func Verify(c *Cert, accessToken string) bool {
	mac := hmac.New(sha256.New, []byte(accessToken))
	mac.Write([]byte(signingLine(c)))
	expected := mac.Sum(nil)
	return subtle.ConstantTimeCompare(expected, c.Signature) == 1
}

// DerivedAccessToken computes the access token a holder of a valid
// certificate authenticates future requests with:
// HMAC-SHA256(issuerAccessToken, seed), base64 URL-safe encoded.
func DerivedAccessToken(issuerAccessToken, seed string) string {
	mac := hmac.New(sha256.New, []byte(issuerAccessToken))
	mac.Write([]byte(seed))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// CheckWindow reports whether now (milliseconds since epoch) falls
// within [c.Start, c.Expiry] and that window spans no more than
// MaxLifetime, per §4.4.4 rule 4.
func CheckWindow(c *Cert, now int64) error {
	if c.Start > now {
		return ErrNotYetValid
	}
	if c.Expiry < now {
		return ErrExpired
	}
	if time.Duration(c.Expiry-c.Start)*time.Millisecond > MaxLifetime {
		return ErrTooLong
	}
	return nil
}
