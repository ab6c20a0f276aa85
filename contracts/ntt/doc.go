/*
Package ntt implements the non-transferable value ledger contract.

Value can not be transferred between accounts. It is issued by application
scopes (Mint), deposited into other applications and withdrawn back, and burned
with the consent of the issuing application. Deposits, withdrawals and burns
are two-phase: the ledger applies an optimistic change, calls the remote
application through settlement.RemoteCaller and finishes the operation when the
call outcome is passed to Resolve.

Every settlement call requires registered caller, proof-of-intent deposit of
at least Params.MinAttachedDeposit and budget exceeding
Params.CallBudget+Params.ResolveBudget. All checks are done before any change.

# Contract notifications

Notifications are emitted after the change is committed.

Mint notification. This notification is produced when an application issues
value to the account.

	Mint:
	  - name: account
	    type: Hash160
	  - name: amount
	    type: Integer
	  - name: scope
	    type: Hash160
	  - name: counterparty
	    type: Null
	  - name: class
	    type: Integer

Deposit notification. This notification is produced when value of the account
is escrowed to the receiver application.

	Deposit:
	  - name: account
	    type: Hash160
	  - name: amount
	    type: Integer
	  - name: scope
	    type: Hash160
	  - name: counterparty
	    type: Hash160
	  - name: class
	    type: Integer

Withdraw notification. This notification is produced when escrowed value
returns to the account: on withdrawal from the application and on refund of
the unused deposit.

	Withdraw:
	  - name: account
	    type: Hash160
	  - name: amount
	    type: Integer
	  - name: scope
	    type: Hash160
	  - name: counterparty
	    type: Hash160
	  - name: class
	    type: Integer

Burn notification. This notification is produced when value is destroyed: on
resolved burn and on forced unregistration (with None scope).

	Burn:
	  - name: account
	    type: Hash160
	  - name: amount
	    type: Integer
	  - name: scope
	    type: Hash160
	  - name: counterparty
	    type: Null
	  - name: class
	    type: Integer
*/
package ntt
