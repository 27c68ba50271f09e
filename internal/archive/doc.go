// Package archive reads and writes single-file session archives.
//
// An archive bundles a session record with its materialized payloads
// (dataset, filter state, chart configurations) for transfer between
// hosts. The on-disk layout is:
//
//	magic (8) | format version (1) | header len (4, BE) | header JSON |
//	body len (4, BE) | body | sha256 trailer (32)
//
// The trailer covers every preceding byte. The body is the JSON-encoded
// payload bundle, optionally sealed with an AEAD cipher keyed from a
// passphrase; the header carries the KDF salt and cipher name, and is
// bound to the sealed body as additional authenticated data. Inspect
// reads the header and verifies the trailer without a passphrase.
//
// Writes go through a temp file and rename, so a crashed export never
// leaves a partial archive at the target path.
package archive
