package cli

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/elijah-cloudlet/memoverlay/internal/baseindex"
	"github.com/elijah-cloudlet/memoverlay/internal/delta"
	"github.com/elijah-cloudlet/memoverlay/internal/reconstruct"
)

// newRecoverCmd implements "recover -b BASE -d DELTA": resolve DELTA
// against BASE and reconstruct BASE.recover, optionally byte-verifying the
// result against an original modified snapshot (§6).
func newRecoverCmd(log *logrus.Logger) *cobra.Command {
	var (
		basePath     string
		baseDiskPath string
		deltaPath    string
		outPath      string
		verifyAgainst string
	)
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "reconstruct a modified snapshot from a base and an overlay file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if basePath == "" || deltaPath == "" {
				return errors.New("recover: -b/--base and -d/--delta are required")
			}
			entry := log.WithFields(logrus.Fields{
				"command": "recover",
				"base":    basePath,
				"delta":   deltaPath,
			})

			base, err := baseindex.Open(basePath, basePath+".meta")
			if err != nil {
				return err
			}
			defer base.Close()

			var baseDisk *baseindex.Index
			if baseDiskPath != "" {
				baseDisk, err = baseindex.Open(baseDiskPath, baseDiskPath+".meta")
				if err != nil {
					return err
				}
				defer baseDisk.Close()
			}

			items, err := delta.FromFile(deltaPath)
			if err != nil {
				return err
			}
			entry.WithField("items", len(items)).Info("loaded overlay file")

			if err := delta.Resolve(items, base, baseDisk); err != nil {
				return err
			}

			if outPath == "" {
				outPath = basePath + ".recover"
			}
			overlayMap, err := reconstruct.Run(basePath, items, outPath)
			if err != nil {
				return err
			}
			entry.WithFields(logrus.Fields{
				"output":  outPath,
				"overlay": overlayMap,
			}).Info("reconstructed snapshot")

			if verifyAgainst != "" {
				if err := reconstruct.Verify(outPath, verifyAgainst, items); err != nil {
					return err
				}
				entry.Info("verified reconstructed snapshot against original")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&basePath, "base", "b", "", "path to the base memory snapshot")
	cmd.Flags().StringVar(&baseDiskPath, "base-disk", "", "optional path to a base disk snapshot")
	cmd.Flags().StringVarP(&deltaPath, "delta", "d", "", "path to the overlay (.delta) file")
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "output path; defaults to BASE.recover")
	cmd.Flags().StringVar(&verifyAgainst, "verify", "", "path to the original modified snapshot to verify against")
	return cmd
}
