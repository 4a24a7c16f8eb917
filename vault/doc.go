/*
Package vault implements the BentoUSD reserve vault.

Vault mints BentoUSD against a weighted basket of collateral assets priced by
the oracle router, delegates idle collateral to yield strategies and redeems
BentoUSD back into the basket. Core is the vault logic deployed behind
proxy.Proxy: all the state lives in the storage scope of the proxy and the
proxy address holds the collateral. Vault wraps Core into atomic invocations
of the chain.

# Basket math

Deposit or redemption value V (18 decimals) is split between active assets
(weight > 0) in registration order as V * weight / totalWeight rounded down.
The last active asset takes the remainder of the division, so the shares sum
up to V exactly. Each share is converted into asset units at the oracle price
and rescaled to the asset decimals rounding down. Truncation dust stays with
the depositor on mint: minted BentoUSD equals the oracle value of the pulled
amounts, which is at most V and differs from it by at most one native unit
per asset.

Contract notifications

	AssetAdded:
	  - name: asset
	    type: Hash160
	  - name: weight
	    type: Integer

	AssetChanged:
	  - name: asset
	    type: Hash160
	  - name: weight
	    type: Integer

	StrategyChanged:
	  - name: asset
	    type: Hash160
	  - name: kind
	    type: Integer
	  - name: strategy
	    type: Hash160

	RouterWhitelisted:
	  - name: router
	    type: Hash160
	  - name: allowed
	    type: Boolean

	Minted:
	  - name: depositor
	    type: Hash160
	  - name: depositAsset
	    type: Hash160 (Null for basket deposits)
	  - name: minted
	    type: Integer

	Redeemed:
	  - name: redeemer
	    type: Hash160
	  - name: burnt
	    type: Integer
	  - name: amounts
	    type: Array

	Allocated:
	  - name: asset
	    type: Hash160
	  - name: assets
	    type: Integer
	  - name: shares
	    type: Integer

	UnstakeRequested:
	  - name: asset
	    type: Hash160
	  - name: id
	    type: ByteString
	  - name: assets
	    type: Integer
	  - name: cooldownEnd
	    type: Integer

	UnstakeClaimed:
	  - name: asset
	    type: Hash160
	  - name: assets
	    type: Integer

Contract storage scheme

	| Key                | Value                         |
	|--------------------|-------------------------------|
	| 'o'                | owner address                 |
	| 'v'                | logic version                 |
	| 'w'                | total weight                  |
	| 'l'                | serialized list of assets     |
	| 'a' + asset        | serialized AssetInfo          |
	| 'b'                | BentoUSD address              |
	| 'r'                | oracle router address         |
	| 'x' + router       | whitelisted router flag       |
	| 'p' + asset        | serialized StrategyPosition   |
	| 'u' + asset + id   | serialized UnstakeRequest     |
	| 'n'                | unstake request nonce         |
*/
package vault
