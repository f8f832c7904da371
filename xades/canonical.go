package xades

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"
	"github.com/russellhaering/goxmldsig/etreeutils"
)

// Common errors
var (
	ErrEmptyDocument   = errors.New("document is empty")
	ErrNoSingleRoot    = errors.New("document must have exactly one root element")
	ErrTextOutsideRoot = errors.New("document has character data outside the root element")
)

var canonicalizer = dsig.MakeC14N10RecCanonicalizer()

// parseDocument reads a well-formed XML document with a single root element.
func parseDocument(data []byte) (*etree.Document, *etree.Element, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil, ErrEmptyDocument
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, nil, fmt.Errorf("parse XML: %w", err)
	}

	roots := 0
	for _, tok := range doc.Child {
		switch t := tok.(type) {
		case *etree.Element:
			roots++
		case *etree.CharData:
			if !t.IsWhitespace() {
				return nil, nil, ErrTextOutsideRoot
			}
		}
	}
	if roots != 1 {
		return nil, nil, ErrNoSingleRoot
	}
	return doc, doc.Root(), nil
}

// canonicalDocument applies the enveloped-signature transform followed by
// C14N 1.0 to root. sig, when non-nil, is the direct child of root to leave
// out. Content outside the root element is not covered.
func canonicalDocument(root, sig *etree.Element) ([]byte, error) {
	if sig == nil {
		return canonicalizer.Canonicalize(root)
	}

	idx := -1
	for i, tok := range root.Child {
		if tok == etree.Token(sig) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, errors.New("signature is not a child of the root element")
	}

	stripped := root.Copy()
	stripped.RemoveChild(stripped.Child[idx])
	return canonicalizer.Canonicalize(stripped)
}

// canonicalSignedInfo canonicalizes signedInfo with every namespace that is
// in scope at its position in the document.
func canonicalSignedInfo(signedInfo *etree.Element) ([]byte, error) {
	ctx, err := etreeutils.NSBuildParentContext(signedInfo)
	if err != nil {
		return nil, err
	}
	detached, err := etreeutils.NSDetatch(ctx, signedInfo)
	if err != nil {
		return nil, err
	}
	return canonicalizer.Canonicalize(detached)
}
