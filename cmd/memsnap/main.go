// Command memsnap is the CLI front end for the memory-snapshot
// deduplication and reconstruction engine: it wires the hashing, delta and
// recover subcommands described in §6 onto a single cobra root command.
package main

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/elijah-cloudlet/memoverlay/internal/cli"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	root := cli.New(log)
	if err := root.Execute(); err != nil {
		log.WithError(err).Error("memsnap failed")
		os.Exit(1)
	}
}
