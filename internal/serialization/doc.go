// Package serialization reads and writes single-variable tensor files.
//
// Every persisted variable lives in its own file, named after the
// variable. The file layout is:
//
//	Fixed header (64 bytes):
//	  0x00  [4 bytes: Magic "BORN"]
//	  0x04  [4 bytes: Version (uint32 LE) = 2]
//	  0x08  [4 bytes: Flags (uint32 LE)]
//	  0x0C  [4 bytes: Reserved]
//	  0x10  [8 bytes: Header size (uint64 LE)]
//	  0x18  [8 bytes: Data size (uint64 LE)]
//	  0x20  [32 bytes: SHA-256 of the data section]
//	[Header: JSON metadata describing exactly one tensor]
//	[Padding to a 64-byte boundary]
//	[Tensor data: raw bytes]
//
// Example usage:
//
//	err := serialization.WriteTensorFile("model/fc_0.w_0", "fc_0.w_0", raw, map[string]string{
//	    serialization.MetaLoDLevel: "0",
//	})
//
//	f, err := serialization.ReadTensorFile("model/fc_0.w_0", serialization.ReaderOptions{})
//	raw := f.Tensor
package serialization
