// Package kind defines the problem taxonomy shared by bundle loading,
// certificate validation, signing and signature verification.
//
// Validation problems are reported as values inside results; loading, signing
// and verification failures are returned as *Failure errors that match their
// kind with errors.Is.
package kind

import (
	"errors"
	"fmt"
)

// Error identifies a hard failure.
type Error string

// Bundle loading.
const (
	Malformed        Error = "MALFORMED"
	BadPassword      Error = "BAD_PASSWORD"
	MissingKeyOrCert Error = "MISSING_KEY_OR_CERT"
)

// Certificate validation.
const (
	Expired                      Error = "EXPIRED"
	NotYetValid                  Error = "NOT_YET_VALID"
	MissingDigitalSignatureUsage Error = "MISSING_DIGITAL_SIGNATURE_USAGE"
	UnsupportedKeyAlgorithm      Error = "UNSUPPORTED_KEY_ALGORITHM"
	WeakKey                      Error = "WEAK_KEY"
	NotEndEntity                 Error = "NOT_END_ENTITY"
	UnsupportedJurisdiction      Error = "UNSUPPORTED_JURISDICTION"
)

// Signing.
const (
	InvalidInputXML Error = "INVALID_INPUT_XML"
	SigningFailed   Error = "SIGNING_FAILED"
)

// Signature verification.
const (
	MissingSignatureElement Error = "MISSING_SIGNATURE_ELEMENT"
	MalformedSignatureBlock Error = "MALFORMED_SIGNATURE_BLOCK"
	SignatureMismatch       Error = "SIGNATURE_MISMATCH"
)

// Error makes a kind usable as an errors.Is target.
func (e Error) Error() string {
	return string(e)
}

// Warning identifies a soft issue that never blocks use of a certificate.
type Warning string

const (
	DeprecatedSignatureAlgorithm Warning = "DEPRECATED_SIGNATURE_ALGORITHM"
	IncompleteChain              Warning = "INCOMPLETE_CHAIN"
	ExcessiveValidityPeriod      Warning = "EXCESSIVE_VALIDITY_PERIOD"
	MissingNonRepudiationUsage   Warning = "MISSING_NON_REPUDIATION_USAGE"
	ExpiringSoon                 Warning = "EXPIRING_SOON"
	UnrecognizedIssuer           Warning = "UNRECOGNIZED_ISSUER"
)

// Failure is an error carrying its taxonomy kind and the underlying cause.
type Failure struct {
	Kind Error
	Err  error
}

// Fail creates a Failure of kind k wrapping err.
func Fail(k Error, err error) *Failure {
	return &Failure{Kind: k, Err: err}
}

// Failf creates a Failure of kind k with a formatted cause.
func Failf(k Error, format string, args ...any) *Failure {
	return &Failure{Kind: k, Err: fmt.Errorf(format, args...)}
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return string(f.Kind)
	}
	return fmt.Sprintf("%s: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Is reports whether target is the kind of this failure.
func (f *Failure) Is(target error) bool {
	k, ok := target.(Error)
	return ok && k == f.Kind
}

// Of returns the kind of err, or the empty kind if err is not a Failure.
func Of(err error) Error {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}
