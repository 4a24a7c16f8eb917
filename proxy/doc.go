/*
Package proxy implements timelocked upgradable proxy of the vault logic.

Proxy owns the storage of the system and delegates all logic to its current
Implementation. Implementation is replaced in two steps: the owner sets a
pending implementation which starts the timelock, and after the timelock
expires the owner transfers the proxy to the pending implementation. Setting
another pending implementation restarts the timelock.

On transfer the new implementation migrates the proxy storage within the
same invocation, so a failed migration keeps the old implementation in
place.

Contract notifications

	PendingImplementationSet:
	  - name: implementation
	    type: Hash160
	  - name: timelockExpiry
	    type: Integer

	Upgraded:
	  - name: implementation
	    type: Hash160
	  - name: version
	    type: Integer

	ProxyOwnershipTransferred:
	  - name: previousOwner
	    type: Hash160
	  - name: newOwner
	    type: Hash160

# Contract storage scheme

Proxy keys start with 0xff byte, the rest of the storage belongs to the
implementation.

	| Key          | Value                           |
	|--------------|---------------------------------|
	| 0xff 'o'     | proxy owner address             |
	| 0xff 'i'     | current implementation address  |
	| 0xff 'p'     | pending implementation address  |
	| 0xff 'e'     | timelock expiry, ns             |
	| 0xff 't'     | timelock duration, ns           |
*/
package proxy
