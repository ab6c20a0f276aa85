/*
Package settlement describes two-phase settlement of value moved between an
account and application scopes.

A settlement is started by an optimistic ledger mutation which yields a Token.
The Token carries everything needed to finish the settlement: the parameters of
the operation and the per-class breakdown of the mutation. The remote
application is then invoked through RemoteCaller, and once the call produces an
Outcome, the Token is resolved. Resolution derives the used amount with
UsedAmount and either finalizes or reverses the optimistic mutation.

	Initiated --dispatch--> Awaiting --resolve--> Resolved
	    |                      |
	    +-----resolve----------+--not ready--> Aborted

No pending settlement is persisted.
*/
package settlement
