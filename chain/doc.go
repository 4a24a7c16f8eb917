/*
Package chain implements in-process execution host for the vault contracts.

Chain keeps contract storages in a single neo-go storage.Store. Every state
transition is performed within an invocation (see Chain.Invoke): all writes
are staged in a storage.MemCachedStore layered over the persistent store and
flushed only if the invocation succeeds. Any error discards the layer, so
either all effects of the invocation are applied or none.

Invocations never overlap. Invoke and View started while another invocation
is executing return ErrReentrantCall without waiting, whatever context they
are given, so callers serialize their invocations. Contracts guard their
mutating methods with Tx.Enter to reject callbacks into themselves made
within the same invocation (e.g. from a token transfer hook).

# Storage model

Each contract owns the storage scope

	0x70 | contract hash (20 bytes, BE) | key

Contracts operate on keys relative to their scope (see Storage).

# Notifications

Contracts emit notifications via Tx.Notify. Notifications are delivered to
subscribers (see Chain.Subscribe) after the invocation is committed, and
dropped otherwise.
*/
package chain
