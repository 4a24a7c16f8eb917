package common

var (
	mintPrefix     = []byte{0x01}
	burnPrefix     = []byte{0x02}
	depositPrefix  = []byte{0x03}
	redeemPrefix   = []byte{0x04}
	allocatePrefix = []byte{0x05}
	swapPrefix     = []byte{0x10}
)

func MintTransferDetails(txDetails []byte) []byte {
	return append(append([]byte{}, mintPrefix...), txDetails...)
}

func BurnTransferDetails(txDetails []byte) []byte {
	return append(append([]byte{}, burnPrefix...), txDetails...)
}

func DepositTransferDetails(txDetails []byte) []byte {
	return append(append([]byte{}, depositPrefix...), txDetails...)
}

func RedeemTransferDetails(txDetails []byte) []byte {
	return append(append([]byte{}, redeemPrefix...), txDetails...)
}

func AllocateTransferDetails(txDetails []byte) []byte {
	return append(append([]byte{}, allocatePrefix...), txDetails...)
}

func SwapTransferDetails(txDetails []byte) []byte {
	return append(append([]byte{}, swapPrefix...), txDetails...)
}
