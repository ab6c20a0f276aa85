/*
Package ledger implements storage of the non-transferable value ledger.

Every account holds per-scope, per-class available amounts. The zero scope
(None) of an account is the sum over all of its concrete scopes and is updated
in the same step as the concrete entry. Value deposited into a counterparty
scope is tracked in escrow sub-ledgers of the source scope; the zero
counterparty aggregates all counterparties of that source scope. Escrowed value
still belongs to the account. The total supply mirrors the sum of all account
totals (available plus escrow) per scope and class.

All mutations are done within Tx, which wraps [storage.MemCachedStore] over the
backing store, so nothing reaches the store until Tx.Commit. Every operation
computes all new values before any of them is written, so a failed operation
leaves Tx untouched.

# Storage layout

	'v'                                     store layout version
	'n'                                     registration counter
	'a' | account                           Account record
	'b' | account | scope | class           available amount
	'e' | account | scope | party | class   escrowed amount
	's' | scope | class                     total supply

Hashes are stored big-endian, amounts are 8-byte little-endian.
*/
package ledger
