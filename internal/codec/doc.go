// Package codec implements the persisted payload envelope for TabVault.
//
// Every value the engine writes to a storage adapter travels as a
// Payload: the JSON text of the value, transparently gzip-compressed and
// base64-armored once it crosses the compression threshold. The envelope
// records which form it holds so readers never guess.
//
// The 2-bytes-per-character size estimate is part of the capacity
// contract: capacity limits were calibrated against it, so it must not
// drift even though the stored form is UTF-8.
package codec
