package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/wudi/docseal/content"
	"github.com/wudi/docseal/merkle"
	"github.com/wudi/docseal/pipeline"
	"github.com/wudi/docseal/region"
)

// hashOutput is the JSON printed for one file.
type hashOutput struct {
	File string `json:"file,omitempty"`
	pipeline.HashBundle
	RootCID        string `json:"rootCid,omitempty"`
	Final          bool   `json:"final"`
	RegionsIgnored bool   `json:"regionsIgnored,omitempty"`
	Error          string `json:"error,omitempty"`
}

func newHashCmd(a *app) *cobra.Command {
	var (
		regions  regionFlags
		mimeType string
		withCID  bool
	)
	cmd := &cobra.Command{
		Use:   "hash FILE",
		Short: "Print the hash bundle of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sig, stamp, err := regions.parse()
			if err != nil {
				return err
			}
			out, err := a.hashFile(cmd.Context(), args[0], mimeType, sig, stamp, withCID)
			if out != nil {
				if werr := writeJSON(cmd.OutOrStdout(), out); werr != nil {
					return werr
				}
			}
			return err
		},
	}
	regions.register(cmd)
	cmd.Flags().StringVar(&mimeType, "mime", "", "MIME type; sniffed from the name and content when empty")
	cmd.Flags().BoolVar(&withCID, "cid", false, "Also print the root as a CIDv1")
	return cmd
}

// hashFile extracts path. A region failure still yields the base bundle
// alongside the error.
func (a *app) hashFile(ctx context.Context, path, mimeType string, sig, stamp *region.Region, withCID bool) (*hashOutput, error) {
	data, err := readFile(path, a.cfg.Limits.MaxFileSize)
	if err != nil {
		return nil, err
	}
	if mimeType == "" {
		mimeType = content.Sniff(filepath.Base(path), data)
	}
	res, err := a.pipe.ExtractBytes(ctx, data, mimeType, sig, stamp)
	if err != nil && res.RegionErr == nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	out := &hashOutput{HashBundle: res.Bundle, Final: res.Final(), RegionsIgnored: res.RegionsIgnored}
	if res.RegionErr != nil {
		out.Error = res.RegionErr.Error()
	}
	if withCID {
		c, cerr := merkle.RootCID(res.Bundle.MerkleRoot)
		if cerr != nil {
			return nil, cerr
		}
		out.RootCID = c.String()
	}
	return out, err
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
