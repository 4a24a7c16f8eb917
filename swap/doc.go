/*
Package swap implements swap routing used by single-token vault deposits.

Vault never computes routes. Off-chain side (Quoter) builds call data for a
router, the vault only checks the router is whitelisted, executes the call
data and accounts the amounts. AggregationRouter is an in-process router
converting assets at oracle prices from its own inventory.

Call data is a protobuf message, see CallData.

Contract notifications

	Swapped:
	  - name: sender
	    type: Hash160
	  - name: src
	    type: Hash160
	  - name: dst
	    type: Hash160
	  - name: amount
	    type: Integer
	  - name: return
	    type: Integer

	FeeChanged:
	  - name: bps
	    type: Integer

Contract storage scheme

	| Key  | Value                 |
	|------|-----------------------|
	| 'o'  | owner address         |
	| 'r'  | oracle router address |
	| 'f'  | fee in basis points   |
*/
package swap
