/*
Package dump provides I/O operations for snapshots of the ledger store.

Snapshot allows to move ledger between stores of different types, to inspect
it offline and to reproduce a particular state in tests. Dumps are stored in
the file system using human-readable encoding.
*/
package dump
