// Package capability sizes TabVault's persistence behavior to the host.
//
// Detection reads two coarse hints (total memory, CPU count), classifies
// the host into one of three tiers, and hands back a Limits profile:
// how many sessions to retain, how large a serialized dataset may grow
// before chunking, and how much a single chunk may cost to materialize.
// Detection is deterministic and never fails; a host that reveals
// nothing gets the conservative mid-tier defaults.
//
// The MemoryProbe interface decouples restore-time pressure checks from
// host introspection so tests can dictate pressure directly.
package capability
