// Package cli assembles the three reproducible entry points §6 names:
// hashing, delta and recover. It is the CLI surface the spec explicitly
// calls out as a non-core, but still owned, part of this module.
package cli

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// New builds the root command, wiring "hashing", "delta" and "recover" as
// subcommands exactly as described in §6.
func New(log *logrus.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "memsnap",
		Short:         "deduplicate and reconstruct KVM/QEMU memory snapshots",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newHashingCmd(log))
	root.AddCommand(newDeltaCmd(log))
	root.AddCommand(newRecoverCmd(log))
	return root
}
