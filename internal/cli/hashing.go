package cli

import (
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/elijah-cloudlet/memoverlay/internal/baseindex"
	"github.com/elijah-cloudlet/memoverlay/internal/pagehash"
)

// newHashingCmd implements "hashing -b BASE": compute BASE's HashList,
// write it to BASE.meta, then reload and verify it hash-by-hash against
// the freshly computed list, exiting non-zero on any mismatch (§6).
func newHashingCmd(log *logrus.Logger) *cobra.Command {
	var basePath string
	cmd := &cobra.Command{
		Use:   "hashing",
		Short: "build and verify a base snapshot's .meta hash index",
		RunE: func(cmd *cobra.Command, args []string) error {
			if basePath == "" {
				return errors.New("hashing: -b/--base is required")
			}
			entry := log.WithField("command", "hashing").WithField("base", basePath)

			f, err := os.Open(basePath)
			if err != nil {
				return errors.Wrap(err, "hashing: open base file")
			}
			stat, err := f.Stat()
			if err != nil {
				f.Close()
				return errors.Wrap(err, "hashing: stat base file")
			}
			list, err := pagehash.Hash(f, 0, stat.Size())
			f.Close()
			if err != nil {
				return err
			}
			entry.WithField("pages", len(list)).Info("computed base hash list")

			metaPath := basePath + ".meta"
			if err := baseindex.WriteMeta(metaPath, list); err != nil {
				return err
			}

			reloaded, err := baseindex.ReadMeta(metaPath)
			if err != nil {
				return err
			}
			if len(reloaded) != len(list) {
				return errors.Errorf("hashing: meta round-trip length mismatch: wrote %d, read %d", len(list), len(reloaded))
			}
			for i := range list {
				if reloaded[i] != list[i] {
					return errors.Errorf("hashing: meta round-trip mismatch at entry %d", i)
				}
			}
			entry.Info("meta file verified against freshly computed hash list")
			return nil
		},
	}
	cmd.Flags().StringVarP(&basePath, "base", "b", "", "path to the base memory snapshot")
	return cmd
}
