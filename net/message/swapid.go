package message

import "github.com/xmrbtcswap/swapd/common/types"

// SwapIDOf returns the swap ID carried by msg, if its type carries one.
// SwapRequest (no swap exists yet) and the relay messages (matched by
// outpoint instead) report ok=false.
func SwapIDOf(msg interface{ Type() byte }) (types.SwapID, bool) {
	switch m := msg.(type) {
	case *SwapResponse:
		return m.SwapID, true
	case *BobKeysMessage:
		return m.SwapID, true
	case *AliceKeysAndSignaturesMessage:
		return m.SwapID, true
	case *LockProofMessage:
		return m.SwapID, true
	case *TransferProofMessage:
		return m.SwapID, true
	case *EncryptedSignatureMessage:
		return m.SwapID, true
	default:
		return types.SwapID{}, false
	}
}
