// Package qemuformat holds the wire-format constants of the QEMU migration
// stream (version 3) used by libvirt-wrapped memory snapshots. Apart from
// these constants, the one process-wide setting in the module is
// xdelta.Binary, a package-level variable naming the xdelta3 executable;
// everything else is an explicit parameter.
package qemuformat

// PageSize is the guest memory page granularity used for hashing, diffing
// and reconstruction. It must divide every region length the core operates
// on.
const PageSize = 4096

// RamMagic and RamVersion identify the migration stream as a KVM/QEMU RAM
// section in the v3 wire format. The parser locates the RAM section by the
// "pc.ram" identifier and does not check the stream against these values.
const (
	RamMagic   uint32 = 0x5145564d
	RamVersion uint32 = 3
)

// RamIDString is the block id QEMU uses for the primary guest RAM region.
const RamIDString = "pc.ram"

// Flag bits carried in the 8-byte word that precedes every body record and,
// shifted left one field, the word that precedes the block directory.
const (
	FlagCompress = 0x02
	FlagMemSize  = 0x04
	FlagPage     = 0x08
	FlagEOS      = 0x10
	FlagContinue = 0x20
	FlagRaw      = 0x40
)
