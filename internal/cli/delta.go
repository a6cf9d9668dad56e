package cli

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/elijah-cloudlet/memoverlay/internal/baseindex"
	"github.com/elijah-cloudlet/memoverlay/internal/delta"
	"github.com/elijah-cloudlet/memoverlay/internal/differ"
	"github.com/elijah-cloudlet/memoverlay/internal/freepfn"
)

// newDeltaCmd implements "delta -m MOD -b BASE": diff MOD against BASE
// (BASE.meta must already exist) and write MOD.delta (§6).
func newDeltaCmd(log *logrus.Logger) *cobra.Command {
	var (
		modifiedPath string
		basePath     string
		baseDiskPath string
		scannerBin   string
		pglistAddr   string
		pfn0Addr     string
	)
	cmd := &cobra.Command{
		Use:   "delta",
		Short: "diff a modified snapshot against a base snapshot into an overlay file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if modifiedPath == "" || basePath == "" {
				return errors.New("delta: -m/--modified and -b/--base are required")
			}
			entry := log.WithFields(logrus.Fields{
				"command":  "delta",
				"modified": modifiedPath,
				"base":     basePath,
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

			opts := differ.Options{
				BaseDisk: baseDisk,
				Log:      entry,
			}
			if scannerBin != "" {
				opts.FreePfn = &freepfn.Config{
					Binary:     scannerBin,
					PglistAddr: pglistAddr,
					Pfn0Addr:   pfn0Addr,
				}
			}

			result, err := differ.Run(context.Background(), modifiedPath, base, opts)
			if err != nil {
				return err
			}

			stats := delta.Statistics(result.Items)
			entry.WithFields(logrus.Fields{
				"items":  len(result.Items),
				"freed":  result.FreedCount,
				"raw":    stats.Count[delta.RefRaw],
				"xdelta": stats.Count[delta.RefXdelta],
				"zero":   stats.Count[delta.RefZero],
			}).Info("classified modified snapshot")

			outPath := modifiedPath + ".delta"
			if err := delta.ToFile(outPath, result.Items); err != nil {
				return err
			}
			entry.WithField("output", outPath).Info("wrote overlay file")
			return nil
		},
	}
	cmd.Flags().StringVarP(&modifiedPath, "modified", "m", "", "path to the modified memory snapshot")
	cmd.Flags().StringVarP(&basePath, "base", "b", "", "path to the base memory snapshot")
	cmd.Flags().StringVar(&baseDiskPath, "base-disk", "", "optional path to a base disk snapshot")
	cmd.Flags().StringVar(&scannerBin, "free-pfn-scanner", "", "optional path to the external free-page-frame scanner binary")
	cmd.Flags().StringVar(&pglistAddr, "pglist-addr", "", "guest kernel page-list head address (hex), required with --free-pfn-scanner")
	cmd.Flags().StringVar(&pfn0Addr, "pfn0-addr", "", "guest kernel pfn0 address (hex), required with --free-pfn-scanner")
	return cmd
}
