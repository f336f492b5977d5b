package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wudi/docseal/merkle"
	"github.com/wudi/docseal/pipeline"
)

// errMismatch signals a completed verification that failed. The verdicts
// have already been printed.
var errMismatch = errors.New("bundle does not match document")

// verdict is the outcome of checking one claimed bundle.
type verdict struct {
	Base  bool `json:"base"`
	Marks bool `json:"marks"`
	Root  bool `json:"root"`
	// Consistent reports whether the claimed root follows from the claimed
	// leaves at all.
	Consistent bool `json:"consistent"`
}

func (v verdict) ok() bool { return v.Base && v.Marks && v.Root && v.Consistent }

// check compares a recomputed bundle with a claimed one pair by pair, so
// a verifier holding only region evidence can still confirm the marks.
func check(claimed, got pipeline.HashBundle) verdict {
	ct := claimed.Tree()
	gt := got.Tree()
	return verdict{
		Base:       merkle.VerifyBase(got.TextHash, got.ImageHash, ct.BaseLeaf),
		Marks:      merkle.VerifyMarks(got.SignatureHash, got.StampHash, ct.MarksLeaf),
		Root:       merkle.VerifyRoot(gt.BaseLeaf, gt.MarksLeaf, claimed.MerkleRoot),
		Consistent: merkle.Verify(claimed.TextHash, claimed.ImageHash, claimed.SignatureHash, claimed.StampHash, claimed.MerkleRoot),
	}
}

func newVerifyCmd(a *app) *cobra.Command {
	var (
		regions    regionFlags
		mimeType   string
		bundlePath string
	)
	cmd := &cobra.Command{
		Use:   "verify FILE --bundle BUNDLE.json",
		Short: "Check a document against a claimed hash bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(bundlePath)
			if err != nil {
				return err
			}
			var claimed pipeline.HashBundle
			if err := json.Unmarshal(raw, &claimed); err != nil {
				return fmt.Errorf("bundle %s: %w", bundlePath, err)
			}
			sig, stamp, err := regions.parse()
			if err != nil {
				return err
			}
			out, err := a.hashFile(cmd.Context(), args[0], mimeType, sig, stamp, false)
			if err != nil {
				return err
			}
			v := check(claimed, out.HashBundle)
			if err := writeJSON(cmd.OutOrStdout(), v); err != nil {
				return err
			}
			if !v.ok() {
				return errMismatch
			}
			return nil
		},
	}
	regions.register(cmd)
	cmd.Flags().StringVar(&mimeType, "mime", "", "MIME type; sniffed from the name and content when empty")
	cmd.Flags().StringVar(&bundlePath, "bundle", "", "Claimed hash bundle JSON")
	_ = cmd.MarkFlagRequired("bundle")
	return cmd
}
