package pipeline

import (
	"github.com/wudi/docseal/merkle"
	"github.com/wudi/docseal/render"
)

// HashBundle holds the four leaf digests and the root that commits to
// them. Absent leaves are empty strings.
type HashBundle struct {
	TextHash      string `json:"textHash"`
	ImageHash     string `json:"imageHash"`
	SignatureHash string `json:"signatureHash"`
	StampHash     string `json:"stampHash"`
	MerkleRoot    string `json:"merkleRoot"`
}

// Tree returns the intermediate pair digests of b.
func (b HashBundle) Tree() merkle.Tree {
	return merkle.Pairs(b.TextHash, b.ImageHash, b.SignatureHash, b.StampHash)
}

// Recombine replaces the region leaves of b and recomputes the root. The
// text and image leaves are reused as is.
func Recombine(b HashBundle, signatureHash, stampHash string) HashBundle {
	b.SignatureHash = signatureHash
	b.StampHash = stampHash
	b.MerkleRoot = merkle.Combine(b.TextHash, b.ImageHash, b.SignatureHash, b.StampHash)
	return b
}

// Result is the outcome of one extraction.
type Result struct {
	Bundle HashBundle
	// Page is the canonical page the image leaf was computed from. It is
	// kept so regions can be added later without rendering again. Nil for
	// documents without an image leaf.
	Page *render.Page
	// RegionErr is set when the base leaves were extracted but a region
	// could not be.
	RegionErr error
	// RegionsIgnored is set when regions were supplied for a document
	// that does not take them, so the empty region leaves do not mean
	// "no region selected".
	RegionsIgnored bool
}

// Final reports whether the bundle is complete and may be submitted.
func (r Result) Final() bool {
	return r.RegionErr == nil && r.Bundle.MerkleRoot != ""
}
