/*
Package token implements fungible token ledger used for collateral assets,
strategy shares and the stable token.

Token owner assigns the minter, the only account allowed to issue and destroy
tokens. Transfers on behalf of other accounts require prior approval.

# Contract notifications

Transfer notification. Null stands for the mint/burn side.

	Transfer:
	  - name: from
	    type: Hash160
	  - name: to
	    type: Hash160
	  - name: amount
	    type: Integer

TransferX notification. This is enhanced transfer notification with details.
Details of mint and burn are prefixed with 0x01 and 0x02 respectively.

	TransferX:
	  - name: from
	    type: Hash160
	  - name: to
	    type: Hash160
	  - name: amount
	    type: Integer
	  - name: details
	    type: ByteArray

Approval notification.

	Approval:
	  - name: owner
	    type: Hash160
	  - name: spender
	    type: Hash160
	  - name: amount
	    type: Integer

Mint and Burn notifications.

	Mint:
	  - name: to
	    type: Hash160
	  - name: amount
	    type: Integer

	Burn:
	  - name: from
	    type: Hash160
	  - name: amount
	    type: Integer

MinterChanged notification.

	MinterChanged:
	  - name: minter
	    type: Hash160

Contract storage scheme

	| Key                            | Value             |
	|--------------------------------|-------------------|
	| 'o'                            | owner address     |
	| 'm'                            | minter address    |
	| 's'                            | total supply      |
	| 'b' + account                  | balance           |
	| 'a' + owner + spender          | allowance         |
*/
package token
