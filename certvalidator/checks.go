package certvalidator

import (
	"bytes"
	"crypto/x509"
	"strings"

	"github.com/georgepadayatti/taxsign/expiry"
	"github.com/georgepadayatti/taxsign/kind"
)

// finding is the outcome of a single check: at most one error or warning.
type finding struct {
	err  kind.Error
	warn kind.Warning
}

func fail(k kind.Error) finding   { return finding{err: k} }
func warn(w kind.Warning) finding { return finding{warn: w} }

// check inspects one aspect of a candidate and reports at most one problem.
type check func(c *candidate, p *Policy) finding

// checks run in this order; every check runs regardless of earlier findings.
var checks = []check{
	checkTemporal,
	checkDigitalSignatureUsage,
	checkNonRepudiationUsage,
	checkKeyAlgorithm,
	checkKeyStrength,
	checkSignatureAlgorithm,
	checkEndEntity,
	checkChain,
	checkValidityPeriod,
	checkJurisdiction,
	checkIssuer,
	checkExpiringSoon,
}

func checkTemporal(c *candidate, _ *Policy) finding {
	switch {
	case c.now.Before(c.facts.NotBefore):
		return fail(kind.NotYetValid)
	case c.now.After(c.facts.NotAfter):
		return fail(kind.Expired)
	}
	return finding{}
}

func checkDigitalSignatureUsage(c *candidate, _ *Policy) finding {
	if !c.facts.KeyUsage.DigitalSignature {
		return fail(kind.MissingDigitalSignatureUsage)
	}
	return finding{}
}

// checkNonRepudiationUsage only warns when the certificate declares usages
// and leaves non-repudiation out. A certificate without the extension is
// already rejected by checkDigitalSignatureUsage.
func checkNonRepudiationUsage(c *candidate, _ *Policy) finding {
	ku := c.facts.KeyUsage
	if ku.Present && !ku.NonRepudiation {
		return warn(kind.MissingNonRepudiationUsage)
	}
	return finding{}
}

func checkKeyAlgorithm(c *candidate, _ *Policy) finding {
	if c.cert.PublicKeyAlgorithm != x509.RSA {
		return fail(kind.UnsupportedKeyAlgorithm)
	}
	return finding{}
}

func checkKeyStrength(c *candidate, p *Policy) finding {
	if c.cert.PublicKeyAlgorithm == x509.RSA && c.facts.PublicKeySize < p.MinRSABits {
		return fail(kind.WeakKey)
	}
	return finding{}
}

var deprecatedSignatureAlgorithms = map[x509.SignatureAlgorithm]bool{
	x509.MD2WithRSA:    true,
	x509.MD5WithRSA:    true,
	x509.SHA1WithRSA:   true,
	x509.DSAWithSHA1:   true,
	x509.ECDSAWithSHA1: true,
}

func checkSignatureAlgorithm(c *candidate, _ *Policy) finding {
	if deprecatedSignatureAlgorithms[c.cert.SignatureAlgorithm] {
		return warn(kind.DeprecatedSignatureAlgorithm)
	}
	return finding{}
}

func checkEndEntity(c *candidate, _ *Policy) finding {
	if c.facts.KeyUsage.IsCA {
		return fail(kind.NotEndEntity)
	}
	return finding{}
}

// checkChain matches issuer and subject names within the bundle. It does not
// verify signatures or reach a trust anchor.
func checkChain(c *candidate, _ *Policy) finding {
	if len(c.chain) == 0 {
		return finding{}
	}
	set := append([]*x509.Certificate{c.cert}, c.chain...)
	for i, cert := range set {
		if bytes.Equal(cert.RawIssuer, cert.RawSubject) {
			continue
		}
		found := false
		for j, other := range set {
			if i != j && bytes.Equal(other.RawSubject, cert.RawIssuer) {
				found = true
				break
			}
		}
		if !found {
			return warn(kind.IncompleteChain)
		}
	}
	return finding{}
}

func checkValidityPeriod(c *candidate, p *Policy) finding {
	if p.MaxValidityYears <= 0 {
		return finding{}
	}
	if c.facts.NotAfter.After(c.facts.NotBefore.AddDate(p.MaxValidityYears, 0, 0)) {
		return warn(kind.ExcessiveValidityPeriod)
	}
	return finding{}
}

func checkJurisdiction(c *candidate, p *Policy) finding {
	if len(p.AllowedCountries) == 0 {
		return finding{}
	}
	if !containsFold(p.AllowedCountries, c.facts.Subject.Country) {
		return fail(kind.UnsupportedJurisdiction)
	}
	return finding{}
}

func checkIssuer(c *candidate, p *Policy) finding {
	if len(p.TrustedIssuers) == 0 {
		return finding{}
	}
	if !containsFold(p.TrustedIssuers, c.facts.Issuer.Organization) {
		return warn(kind.UnrecognizedIssuer)
	}
	return finding{}
}

// checkExpiringSoon warns while the certificate is still usable but already
// inside the notification window.
func checkExpiringSoon(c *candidate, _ *Policy) finding {
	if c.now.Before(c.facts.NotBefore) || c.now.After(c.facts.NotAfter) {
		return finding{}
	}
	if c.expiry.Tier >= expiry.Info {
		return warn(kind.ExpiringSoon)
	}
	return finding{}
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
