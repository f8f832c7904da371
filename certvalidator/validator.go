// Package certvalidator decides whether a tenant's signing certificate may be
// used to sign electronic invoices.
//
// Validation is a set of independent checks. All of them run, so a single
// Result lists every problem at once. Hard problems go to Errors and make the
// certificate unusable; soft problems go to Warnings.
package certvalidator

import (
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	"github.com/georgepadayatti/taxsign/expiry"
	"github.com/georgepadayatti/taxsign/keys"
	"github.com/georgepadayatti/taxsign/kind"
	"github.com/jonboulle/clockwork"
)

// Common errors
var (
	ErrNotValidated = errors.New("certificate bundle did not pass validation")
)

// Policy holds the limits a certificate is measured against.
type Policy struct {
	// MinRSABits is the smallest accepted RSA modulus.
	MinRSABits int

	// MaxValidityYears is the longest validity window, in calendar years,
	// accepted without a warning. Zero disables the check.
	MaxValidityYears int

	// AllowedCountries restricts the subject country. Empty means any.
	AllowedCountries []string

	// TrustedIssuers lists recognised issuer organizations. Empty disables the check.
	TrustedIssuers []string

	// Thresholds drive the expiring-soon warning.
	Thresholds expiry.Thresholds
}

// DefaultPolicy returns the policy applied when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		MinRSABits:       2048,
		MaxValidityYears: 3,
		Thresholds:       expiry.DefaultThresholds,
	}
}

// Result is the itemized outcome of validating one bundle.
type Result struct {
	IsValid   bool           `json:"is_valid"`
	Errors    []kind.Error   `json:"errors"`
	Warnings  []kind.Warning `json:"warnings"`
	Facts     *Facts         `json:"facts,omitempty"`
	Expiry    expiry.State   `json:"expiry"`
	CheckedAt time.Time      `json:"checked_at"`

	bundle *keys.Bundle
}

// HasError reports whether k is among the result's errors.
func (r *Result) HasError(k kind.Error) bool {
	for _, e := range r.Errors {
		if e == k {
			return true
		}
	}
	return false
}

// HasWarning reports whether w is among the result's warnings.
func (r *Result) HasWarning(w kind.Warning) bool {
	for _, x := range r.Warnings {
		if x == w {
			return true
		}
	}
	return false
}

// Bundle returns the validated bundle. It fails unless the result is valid.
func (r *Result) Bundle() (*ValidatedBundle, error) {
	if r == nil || !r.IsValid || r.bundle == nil {
		if r != nil && len(r.Errors) > 0 {
			return nil, fmt.Errorf("%w: %v", ErrNotValidated, r.Errors)
		}
		return nil, ErrNotValidated
	}
	return &ValidatedBundle{
		key:   r.bundle.PrivateKey,
		cert:  r.bundle.Certificate,
		chain: r.bundle.Chain,
		facts: r.Facts,
	}, nil
}

// ValidatedBundle is a bundle that passed validation. It can only be obtained
// from a valid Result.
type ValidatedBundle struct {
	key   keys.PrivateKey
	cert  *x509.Certificate
	chain []*x509.Certificate
	facts *Facts
}

// PrivateKey returns the signing key.
func (b *ValidatedBundle) PrivateKey() keys.PrivateKey { return b.key }

// Certificate returns the end-entity certificate.
func (b *ValidatedBundle) Certificate() *x509.Certificate { return b.cert }

// Chain returns the remaining bundle certificates.
func (b *ValidatedBundle) Chain() []*x509.Certificate { return b.chain }

// Facts returns the facts of the end-entity certificate.
func (b *ValidatedBundle) Facts() *Facts { return b.facts }

// Validator applies a Policy to bundles.
type Validator struct {
	policy Policy
	clock  clockwork.Clock
}

// NewValidator creates a validator. A nil clock uses the wall clock.
func NewValidator(policy Policy, clock clockwork.Clock) *Validator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if policy.Thresholds == (expiry.Thresholds{}) {
		policy.Thresholds = expiry.DefaultThresholds
	}
	return &Validator{policy: policy, clock: clock}
}

// Policy returns the validator's policy.
func (v *Validator) Policy() Policy {
	return v.policy
}

// candidate is what the checks look at.
type candidate struct {
	cert   *x509.Certificate
	chain  []*x509.Certificate
	facts  *Facts
	expiry expiry.State
	now    time.Time
}

// Validate checks bundle at the validator's current time.
func (v *Validator) Validate(bundle *keys.Bundle) *Result {
	return v.ValidateAt(bundle, v.clock.Now())
}

// ValidateAt checks bundle as of now.
func (v *Validator) ValidateAt(bundle *keys.Bundle, now time.Time) *Result {
	result := &Result{
		Errors:    []kind.Error{},
		Warnings:  []kind.Warning{},
		CheckedAt: now.UTC(),
	}
	if bundle == nil || bundle.Certificate == nil || bundle.PrivateKey == nil {
		result.Errors = append(result.Errors, kind.MissingKeyOrCert)
		return result
	}

	c := &candidate{
		cert:  bundle.Certificate,
		chain: bundle.Chain,
		facts: FactsOf(bundle.Certificate),
		now:   now,
	}
	c.expiry = expiry.ClassifyWith(c.facts.NotAfter, now, v.policy.Thresholds)
	result.Facts = c.facts
	result.Expiry = c.expiry

	// Hand-built bundles skip the loader's key matching.
	if !keys.PublicKeysEqual(bundle.PrivateKey.Public(), bundle.Certificate.PublicKey) {
		result.Errors = append(result.Errors, kind.MissingKeyOrCert)
	}

	for _, chk := range checks {
		f := chk(c, &v.policy)
		if f.err != "" {
			result.Errors = append(result.Errors, f.err)
		}
		if f.warn != "" {
			result.Warnings = append(result.Warnings, f.warn)
		}
	}

	result.IsValid = len(result.Errors) == 0
	if result.IsValid {
		result.bundle = bundle
	}
	return result
}
