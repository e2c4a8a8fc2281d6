// Package cmd implements the hcdkv command-line interface. The tool opens a
// local store, runs one operation against it and closes it again, which makes
// it useful for inspecting data directories and for benchmarking engine and
// variant choices on real hardware.
//
// Subpackages:
//
//   - kv: put, get, mget, del, stats and perf against a store described by flags
//     or HCDKV_* environment variables
//   - util: shared flag and configuration handling (internal use)
//
// See hcdkv -help for a list of all commands.
package cmd
