/*
Package dump persists contract storages of the vault environment and reads
them back.

Dumps let the operator move the vault state between stores, inspect it with
regular text tools and reproduce incidents in tests. Every dump is a pair of
human-readable files in one directory, see Creator for the format.
*/
package dump
