// Package merkle combines the four leaf digests into a two-level root.
//
// The pairing is fixed: {text, image} form the base leaf and
// {signature, stamp} the marks leaf. Leaves are hex strings joined by
// string concatenation, and an empty string is a legal operand.
package merkle

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"github.com/wudi/docseal/digest"
)

// Tree is the intermediate and final nodes for one set of leaves.
type Tree struct {
	BaseLeaf  string `json:"baseLeaf"`
	MarksLeaf string `json:"marksLeaf"`
	Root      string `json:"root"`
}

// Pairs computes both leaves and the root.
func Pairs(text, image, signature, stamp string) Tree {
	base := Pair(text, image)
	marks := Pair(signature, stamp)
	return Tree{BaseLeaf: base, MarksLeaf: marks, Root: digest.String(base + marks)}
}

// Pair digests the concatenation of left and right.
func Pair(left, right string) string { return digest.String(left + right) }

// Combine returns the root over text, image, signature and stamp in that
// order.
func Combine(text, image, signature, stamp string) string {
	return Pairs(text, image, signature, stamp).Root
}

// VerifyBase reports whether text and image reproduce the claimed base
// leaf, independent of any marks.
func VerifyBase(text, image, baseLeaf string) bool {
	return equal(Pair(text, image), baseLeaf)
}

// VerifyMarks reports whether signature and stamp reproduce the claimed
// marks leaf.
func VerifyMarks(signature, stamp, marksLeaf string) bool {
	return equal(Pair(signature, stamp), marksLeaf)
}

// VerifyRoot checks a root given both leaves.
func VerifyRoot(baseLeaf, marksLeaf, root string) bool {
	return equal(Pair(baseLeaf, marksLeaf), root)
}

// Verify recomputes the root from all four leaves.
func Verify(text, image, signature, stamp, root string) bool {
	return equal(Combine(text, image, signature, stamp), root)
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// RootCID names the root as a CIDv1 with the raw codec. The content it
// addresses is baseLeaf+marksLeaf, whose SHA-256 is the root.
func RootCID(root string) (cid.Cid, error) {
	if !digest.Valid(root) {
		return cid.Undef, fmt.Errorf("merkle: invalid root %q", root)
	}
	raw, _ := hex.DecodeString(root)
	sum, err := multihash.Encode(raw, multihash.SHA2_256)
	if err != nil {
		return cid.Undef, fmt.Errorf("merkle: encode multihash: %w", err)
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// RootFromCID recovers the hex root from a CID produced by RootCID.
func RootFromCID(c cid.Cid) (string, error) {
	decoded, err := multihash.Decode(c.Hash())
	if err != nil {
		return "", fmt.Errorf("merkle: decode multihash: %w", err)
	}
	if decoded.Code != multihash.SHA2_256 {
		return "", fmt.Errorf("merkle: unexpected hash function %#x", decoded.Code)
	}
	return hex.EncodeToString(decoded.Digest), nil
}
