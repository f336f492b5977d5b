package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wudi/docseal/digest"
	"github.com/wudi/docseal/merkle"
)

func newCombineCmd() *cobra.Command {
	var tree bool
	cmd := &cobra.Command{
		Use:   "combine TEXT IMAGE [SIGNATURE] [STAMP]",
		Short: "Combine leaf hashes into a Merkle root",
		Long:  `Combines hex leaf hashes. Omitted region leaves are empty strings, as they are when no region was selected.`,
		Args:  cobra.RangeArgs(2, 4),
		// leaf arithmetic needs no config or pipeline
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			leaves := make([]string, 4)
			copy(leaves, args)
			for i, l := range leaves {
				if l != "" && !digest.Valid(l) {
					return fmt.Errorf("leaf %d: %q is not a lowercase hex SHA-256", i+1, l)
				}
			}
			t := merkle.Pairs(leaves[0], leaves[1], leaves[2], leaves[3])
			if tree {
				return writeJSON(cmd.OutOrStdout(), t)
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), t.Root)
			return err
		},
	}
	cmd.Flags().BoolVar(&tree, "tree", false, "Print the base leaf, marks leaf and root as JSON")
	return cmd
}
