package bob

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/xmrbtcswap/swapd/bitcoin"
	"github.com/xmrbtcswap/swapd/coins"
	"github.com/xmrbtcswap/swapd/common"
	"github.com/xmrbtcswap/swapd/common/types"
	"github.com/xmrbtcswap/swapd/crypto/adaptor"
	"github.com/xmrbtcswap/swapd/crypto/moneroc"
	"github.com/xmrbtcswap/swapd/crypto/secp256k1"
	"github.com/xmrbtcswap/swapd/net"
	"github.com/xmrbtcswap/swapd/net/message"
	"github.com/xmrbtcswap/swapd/protocol"
	"github.com/xmrbtcswap/swapd/protocol/backend"
	"github.com/xmrbtcswap/swapd/protocol/swap"
)

var errUnexpectedMessage = errors.New("bob: unexpected message for current state")

// defaultFeePerTx is the flat satoshi fee subtracted at every hop of the
// swap's Bitcoin leg. A real deployment would size this from the node's fee
// estimator; a fixed fee keeps every pre-signed leaf's sighash reproducible
// without a second round of fee negotiation (Non-goal: dynamic fee bumping).
const defaultFeePerTx = 1000

// swapState drives one of Bob's swaps from Started through to a terminal
// state, the mirror of alice.swapState from the taker's side: Bob funds and
// broadcasts tx_lock himself instead of waiting for it, and has no host-run
// pump for his own dialed substream, so run starts one itself.
type swapState struct {
	backend.Backend
	ctx    context.Context
	cancel context.CancelFunc

	info *swap.Info

	msgCh chan common.Message
	done  chan struct{}

	feePerTx int64
}

var _ net.SwapState = (*swapState)(nil)

// newSwapStateFromStart begins driving a freshly negotiated swap.
func newSwapStateFromStart(b backend.Backend, started Started, ch *Channel, info *swap.Info) *swapState {
	ctx, cancel := context.WithCancel(b.Ctx())
	s := &swapState{
		Backend:  b,
		ctx:      ctx,
		cancel:   cancel,
		info:     info,
		msgCh:    make(chan common.Message, 16),
		done:     make(chan struct{}),
		feePerTx: defaultFeePerTx,
	}
	go s.run(started, ch)
	return s
}

// newSwapStateFromOngoing resumes a swap from its last persisted state
// (§4.E "resuming a swap"), found after a restart with no live Channel.
func newSwapStateFromOngoing(b backend.Backend, last State, info *swap.Info) *swapState {
	ctx, cancel := context.WithCancel(b.Ctx())
	s := &swapState{
		Backend:  b,
		ctx:      ctx,
		cancel:   cancel,
		info:     info,
		msgCh:    make(chan common.Message, 16),
		done:     make(chan struct{}),
		feePerTx: defaultFeePerTx,
	}
	go s.runFrom(last)
	return s
}

// ID implements net.SwapState.
func (s *swapState) ID() types.SwapID {
	return s.info.ID
}

// HandleProtocolMessage implements net.SwapState. Called synchronously from
// this swap's own stream-pump goroutine or from the host's one-shot
// substream handlers (TransferProofMessage, EncryptedSignatureMessage), so
// it only ever hands msg off to the run loop rather than processing it
// inline.
func (s *swapState) HandleProtocolMessage(msg common.Message) error {
	select {
	case s.msgCh <- msg:
		return nil
	case <-s.done:
		return fmt.Errorf("bob: swap %s already finished", s.info.ID)
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

// Exit implements net.SwapState, cancelling the run loop and waiting for it
// to reach a checkpoint.
func (s *swapState) Exit() error {
	s.cancel()
	<-s.done
	return nil
}

// recvMessage blocks for the next protocol message addressed to this swap.
func (s *swapState) recvMessage() (common.Message, error) {
	select {
	case msg := <-s.msgCh:
		return msg, nil
	case <-s.ctx.Done():
		return nil, s.ctx.Err()
	}
}

// pumpChannel forwards every message arriving on ch's substream into msgCh,
// for as long as the substream stays open. Unlike Alice's inbound substream,
// which net.Host pumps on her behalf, Bob dialed this stream himself, so
// nothing else will ever read from it; this goroutine is that reader.
func (s *swapState) pumpChannel(ch *Channel) {
	for {
		msg, err := ch.Stream.Receive()
		if err != nil {
			return
		}
		if err := s.HandleProtocolMessage(msg); err != nil {
			return
		}
	}
}

func (s *swapState) run(started Started, ch *Channel) {
	defer close(s.done)
	go s.pumpChannel(ch)

	cur, err := s.handleStarted(started, ch)
	if err != nil {
		log.Warnf("swap %s: negotiation failed: %s", started.SwapID, err)
		s.finish(SafelyAborted{})
		return
	}
	s.runUntil(cur)
}

// runFrom resumes a swap that was still in flight when the daemon last
// stopped. Negotiated and BtcLocked both depend on the live substream
// carried in their Channel field, which is never persisted, so there is no
// way to continue negotiating or to learn Alice's transfer proof once the
// process restarts; resuming into either state goes straight to
// SafelyAborted rather than stalling on a message that can never arrive.
func (s *swapState) runFrom(last State) {
	defer close(s.done)
	switch last.(type) {
	case Negotiated, BtcLocked:
		s.runUntil(SafelyAborted{})
	default:
		s.runUntil(last)
	}
}

// runUntil is the transition loop §4.E's table describes: checkpoint the
// current state, stop if it is terminal, otherwise step forward.
func (s *swapState) runUntil(cur State) {
	for {
		if err := s.checkpoint(cur); err != nil {
			log.Errorf("failed to checkpoint swap %s: %s", s.info.ID, err)
		}

		if IsTerminal(cur) {
			s.complete(cur)
			return
		}

		next, err := s.step(cur)
		if err != nil {
			log.Warnf("swap %s: %s", s.info.ID, err)
			next = s.onError(cur)
		}
		cur = next
	}
}

func (s *swapState) step(cur State) (State, error) {
	switch st := cur.(type) {
	case Negotiated:
		return s.handleNegotiated(st)
	case BtcLocked:
		return s.handleBtcLocked(st)
	case XmrLockProofReceived:
		return s.handleXmrLockProofReceived(st)
	case XmrLocked:
		return s.handleXmrLocked(st)
	case EncSigSent:
		return s.handleEncSigSent(st)
	case BtcRedeemed:
		return s.handleBtcRedeemed(st)
	case CancelTimelockExpired:
		return s.handleCancelTimelockExpired(st)
	case BtcCancelled:
		return s.handleBtcCancelled(st)
	default:
		return nil, fmt.Errorf("bob: no transition defined for %T", cur)
	}
}

// materialOf extracts the Material embedded in every non-terminal State past
// Negotiated, so onError can fall back to the right abort path without a
// type switch over every concrete state again.
func materialOf(cur State) *Material {
	switch st := cur.(type) {
	case Negotiated:
		return st.Material
	case BtcLocked:
		return st.Material
	case XmrLockProofReceived:
		return st.Material
	case XmrLocked:
		return st.Material
	case EncSigSent:
		return st.Material
	case BtcRedeemed:
		return st.Material
	case CancelTimelockExpired:
		return st.Material
	case BtcCancelled:
		return st.Material
	default:
		return nil
	}
}

// onError decides where an unrecoverable step error lands: before tx_lock is
// broadcast nothing irreversible has happened, so the swap can simply abort;
// afterward, the only safe move left is the cancel path (§8 invariant 1).
func (s *swapState) onError(cur State) State {
	m := materialOf(cur)
	if m == nil {
		return SafelyAborted{}
	}

	switch cur.(type) {
	case Negotiated:
		return SafelyAborted{}
	default:
		return CancelTimelockExpired{Material: m}
	}
}

func (s *swapState) checkpoint(cur State) error {
	encoded, err := MarshalState(cur)
	if err != nil {
		return err
	}
	if err := s.StateStore().PutLatestState(s.info.ID, encoded); err != nil {
		return err
	}

	if status, ok := statusFor(cur); ok {
		s.info.Status = status
		return s.SwapManager().WriteSwapToDB(s.info)
	}
	return nil
}

func statusFor(cur State) (types.Status, bool) {
	switch cur.(type) {
	case Started:
		return types.ExpectingKeys, true
	case Negotiated:
		return types.KeysExchanged, true
	case BtcLocked:
		return types.BTCLocked, true
	case XmrLockProofReceived, XmrLocked, EncSigSent:
		return types.XMRLocked, true
	case BtcRedeemed, XmrRedeemed:
		return types.CompletedSuccess, true
	case CancelTimelockExpired, BtcCancelled, BtcRefunded, BtcPunished:
		return types.CompletedRefund, true
	case SafelyAborted:
		return types.CompletedAbort, true
	default:
		return 0, false
	}
}

func (s *swapState) complete(cur State) {
	if status, ok := statusFor(cur); ok {
		s.info.Status = status
	}
	if err := s.SwapManager().CompleteOngoingSwap(s.info); err != nil {
		log.Errorf("failed to complete swap %s: %s", s.info.ID, err)
	}
}

// finish checkpoints and completes a terminal state reached before Material
// existed (a key-exchange failure straight out of Started).
func (s *swapState) finish(final State) {
	if err := s.checkpoint(final); err != nil {
		log.Errorf("failed to checkpoint swap %s: %s", s.info.ID, err)
	}
	s.complete(final)
}

// handleStarted runs negotiation (§4.C Message0/Message1/Message2): Bob
// funds tx_lock (without broadcasting it yet, since an unconfirmed lock
// commits nothing irreversible), pre-signs the cancel and refund leaves, and
// exchanges BobKeysMessage/LockProofMessage for Alice's keys and
// signatures.
//
// tx_lock's outpoint is fixed as soon as FundLockTx returns: segwit txids
// never commit to witness data, so Bob can compute every later leaf's
// sighash before ever broadcasting anything, the same way Alice precomputes
// tx_cancel's outpoint in her own handleStarted.
func (s *swapState) handleStarted(started Started, ch *Channel) (State, error) {
	lockTree := bitcoin.NewLockScriptTree(started.AliceBitcoinPublicKey, started.BobLockKey.Public(), s.SwapConfig().CancelTimelock)
	cancelTree := bitcoin.NewCancelScriptTree(started.AliceBitcoinPublicKey, started.BobLockKey.Public(), s.SwapConfig().PunishTimelock)

	bobRefundAddr, err := s.BTCWallet().NewChangeAddress(s.ctx)
	if err != nil {
		return nil, fmt.Errorf("bob: requesting refund address: %w", err)
	}

	sats, err := coins.BTCToSats(started.BTCAmount)
	if err != nil {
		return nil, fmt.Errorf("bob: converting btc amount: %w", err)
	}

	lockTx, err := bitcoin.BuildLockTx(lockTree, int64(sats))
	if err != nil {
		return nil, fmt.Errorf("bob: building tx_lock: %w", err)
	}
	if err := s.BTCWallet().FundLockTx(s.ctx, lockTx, int64(sats), defaultFeePerTx); err != nil {
		return nil, fmt.Errorf("bob: funding tx_lock: %w", err)
	}

	lockOutpoint, err := lockOutpointOf(lockTx, lockTree)
	if err != nil {
		return nil, fmt.Errorf("bob: locating tx_lock output: %w", err)
	}

	var buf bytes.Buffer
	if err := lockTx.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("bob: serializing tx_lock: %w", err)
	}

	m := &Material{
		SwapID:                started.SwapID,
		PeerID:                ch.Stream.PeerID(),
		BTCAmount:             started.BTCAmount,
		XMRAmount:             started.XMRAmount,
		CancelTimelock:        s.SwapConfig().CancelTimelock,
		PunishTimelock:        s.SwapConfig().PunishTimelock,
		Own:                   started.Own,
		BobLockKey:            started.BobLockKey,
		BobRefundAddr:         bobRefundAddr,
		AliceBitcoinPublicKey: started.AliceBitcoinPublicKey,
		LockTree:              lockTree,
		CancelTree:            cancelTree,
		LockTxBytes:           buf.Bytes(),
		LockOutpoint:          lockOutpoint,
	}

	cancelSighash, err := cancelLeafSighash(m)
	if err != nil {
		return nil, fmt.Errorf("bob: computing tx_cancel sighash: %w", err)
	}
	cancelSig, err := adaptor.Sign(m.BobLockKey, cancelSighash)
	if err != nil {
		return nil, fmt.Errorf("bob: signing tx_cancel: %w", err)
	}

	cancelOutpoint := precomputedCancelOutpoint(m)
	refundSighash, err := refundLeafSighash(m, cancelOutpoint)
	if err != nil {
		return nil, fmt.Errorf("bob: computing tx_refund sighash: %w", err)
	}
	refundSig, err := adaptor.Sign(m.BobLockKey, refundSighash)
	if err != nil {
		return nil, fmt.Errorf("bob: signing tx_refund: %w", err)
	}

	m.CancelSig = cancelSig
	m.RefundSig = refundSig

	keysMsg := &message.BobKeysMessage{
		SwapID:             m.SwapID,
		BitcoinPublicKey:   m.BobLockKey.Public(),
		PublicSpendKey:     m.Own.PublicKeyPair.SpendKey(),
		PrivateViewKey:     m.Own.PrivateKeyPair.ViewKey(),
		DLEqProof:          m.Own.DLEqProof.Proof(),
		Secp256k1PublicKey: m.Own.Secp256k1PublicKey,
	}
	if err := ch.Stream.Send(keysMsg); err != nil {
		return nil, fmt.Errorf("bob: sending keys: %w", err)
	}

	lockProof := &message.LockProofMessage{
		SwapID:     m.SwapID,
		LockTxPSBT: m.LockTxBytes,
		RefundSig:  refundSig,
		CancelSig:  cancelSig,
	}
	if err := ch.Stream.Send(lockProof); err != nil {
		return nil, fmt.Errorf("bob: sending tx_lock proof: %w", err)
	}

	msg, err := s.recvMessage()
	if err != nil {
		return nil, err
	}
	aliceMsg, ok := msg.(*message.AliceKeysAndSignaturesMessage)
	if !ok {
		return nil, fmt.Errorf("%w: got %T while negotiating", errUnexpectedMessage, msg)
	}

	verified, err := protocol.VerifyKeysAndProof(aliceMsg.DLEqProof, aliceMsg.Secp256k1PublicKey, aliceMsg.PublicSpendKey)
	if err != nil {
		return nil, fmt.Errorf("bob: verifying alice's key-split proof: %w", err)
	}
	if !aliceMsg.BitcoinPublicKey.Equal(m.AliceBitcoinPublicKey) {
		return nil, fmt.Errorf("bob: alice's bitcoin public key does not match her swap response")
	}
	if !aliceMsg.CancelSig.Verify(m.AliceBitcoinPublicKey, cancelSighash) {
		return nil, fmt.Errorf("bob: alice's tx_cancel signature does not verify")
	}

	punishSighash, err := punishLeafSighash(m, cancelOutpoint, aliceMsg.PayoutAddress)
	if err != nil {
		return nil, fmt.Errorf("bob: computing tx_punish sighash: %w", err)
	}
	if !aliceMsg.PunishSig.Verify(m.AliceBitcoinPublicKey, punishSighash) {
		return nil, fmt.Errorf("bob: alice's tx_punish signature does not verify")
	}

	m.AliceSecp256k1PublicKey = verified.Secp256k1PublicKey
	m.AlicePublicSpendKey = verified.Ed25519PublicKey
	m.AlicePrivateViewKey = aliceMsg.PrivateViewKey
	m.AlicePayoutAddr = aliceMsg.PayoutAddress
	m.AliceCancelSig = aliceMsg.CancelSig
	m.AlicePunishSig = aliceMsg.PunishSig

	return Negotiated{Material: m, Channel: ch}, nil
}

// lockOutpointOf scans tx's outputs for the one paying tree's Taproot
// output key. A wallet's funding pass may place the lock output at any
// index alongside a change output, so the index cannot simply be assumed.
func lockOutpointOf(tx *wire.MsgTx, tree *bitcoin.LockScriptTree) (*bitcoin.LockedOutpoint, error) {
	outputKey, _ := tree.OutputKey()
	wantScript, err := txscript.PayToTaprootScript(outputKey)
	if err != nil {
		return nil, err
	}
	for i, out := range tx.TxOut {
		if bytes.Equal(out.PkScript, wantScript) {
			return &bitcoin.LockedOutpoint{
				Hash:  tx.TxHash(),
				Index: uint32(i),
				Value: out.Value,
			}, nil
		}
	}
	return nil, fmt.Errorf("tx_lock carries no output paying the negotiated script tree")
}

// precomputedCancelOutpoint derives tx_cancel's outpoint without
// broadcasting it: BuildCancelTx is a pure function of m.LockOutpoint,
// m.CancelTree, the cancel timelock, and the fixed fee, all already known.
func precomputedCancelOutpoint(m *Material) bitcoin.LockedOutpoint {
	tx := bitcoin.BuildCancelTx(*m.LockOutpoint, m.CancelTree, m.CancelTimelock, defaultFeePerTx)
	return bitcoin.LockedOutpoint{
		Hash:  tx.TxHash(),
		Index: 0,
		Value: m.LockOutpoint.Value - defaultFeePerTx,
	}
}

func lockPrevOut(m *Material) (*wire.TxOut, error) {
	outputKey, _ := m.LockTree.OutputKey()
	script, err := txscript.PayToTaprootScript(outputKey)
	if err != nil {
		return nil, err
	}
	return &wire.TxOut{Value: m.LockOutpoint.Value, PkScript: script}, nil
}

func cancelPrevOut(m *Material, cancelOutpoint bitcoin.LockedOutpoint) (*wire.TxOut, error) {
	outputKey := m.CancelTree.OutputKey()
	script, err := txscript.PayToTaprootScript(outputKey)
	if err != nil {
		return nil, err
	}
	return &wire.TxOut{Value: cancelOutpoint.Value, PkScript: script}, nil
}

// cancelLeafSighash computes the sighash Alice and Bob each sign over
// tx_cancel's cancel leaf.
func cancelLeafSighash(m *Material) ([32]byte, error) {
	prevOut, err := lockPrevOut(m)
	if err != nil {
		return [32]byte{}, err
	}
	tx := bitcoin.BuildCancelTx(*m.LockOutpoint, m.CancelTree, m.CancelTimelock, defaultFeePerTx)
	return bitcoin.TapLeafSighash(tx, prevOut, m.LockTree.CancelLeaf.Script)
}

// redeemLeafSighash computes the sighash Alice and Bob each sign over
// tx_lock's redeem leaf, paying straight to Alice's chosen payout address.
func redeemLeafSighash(m *Material) ([32]byte, error) {
	prevOut, err := lockPrevOut(m)
	if err != nil {
		return [32]byte{}, err
	}
	tx := bitcoin.BuildRedeemTx(*m.LockOutpoint, m.AlicePayoutAddr, defaultFeePerTx)
	return bitcoin.TapLeafSighash(tx, prevOut, m.LockTree.RedeemLeaf.Script)
}

// refundLeafSighash computes the sighash Bob signs over tx_cancel's refund
// leaf, spending cancelOutpoint back to his own refund address.
func refundLeafSighash(m *Material, cancelOutpoint bitcoin.LockedOutpoint) ([32]byte, error) {
	prevOut, err := cancelPrevOut(m, cancelOutpoint)
	if err != nil {
		return [32]byte{}, err
	}
	tx := bitcoin.BuildRefundTx(cancelOutpoint, m.BobRefundAddr, defaultFeePerTx)
	return bitcoin.TapLeafSighash(tx, prevOut, m.CancelTree.RefundLeaf.Script)
}

// punishLeafSighash computes the sighash Alice signs over tx_cancel's
// punish leaf, spending cancelOutpoint to her payout address.
func punishLeafSighash(m *Material, cancelOutpoint bitcoin.LockedOutpoint, alicePayoutAddr []byte) ([32]byte, error) {
	prevOut, err := cancelPrevOut(m, cancelOutpoint)
	if err != nil {
		return [32]byte{}, err
	}
	tx := bitcoin.BuildPunishTx(cancelOutpoint, m.PunishTimelock, alicePayoutAddr, defaultFeePerTx)
	return bitcoin.TapLeafSighash(tx, prevOut, m.CancelTree.PunishLeaf.Script)
}

// handleNegotiated broadcasts tx_lock and waits for it to reach the
// configured confirmation depth, recording the height that confirmation
// happened at, the basis the cancel timelock counts forward from (§4.D).
func (s *swapState) handleNegotiated(st Negotiated) (State, error) {
	tx := wire.NewMsgTx(2)
	if err := tx.Deserialize(bytes.NewReader(st.Material.LockTxBytes)); err != nil {
		return nil, fmt.Errorf("bob: decoding tx_lock: %w", err)
	}
	if _, err := s.BTCWallet().Broadcast(s.ctx, tx); err != nil {
		return nil, fmt.Errorf("bob: broadcasting tx_lock: %w", err)
	}

	if err := bitcoin.WaitForConfirmations(s.ctx, s.BTCWallet(), st.Material.LockOutpoint.Hash, s.SwapConfig().BitcoinConfirmations); err != nil {
		return nil, fmt.Errorf("bob: waiting for tx_lock confirmations: %w", err)
	}

	height, err := s.BTCWallet().BlockHeight(s.ctx)
	if err != nil {
		return nil, err
	}
	st.Material.LockConfirmHeight = height

	return BtcLocked{Material: st.Material, Channel: st.Channel}, nil
}

// handleBtcLocked waits for Alice's transfer proof, the signal that she has
// sent the XMR leg on chain.
func (s *swapState) handleBtcLocked(st BtcLocked) (State, error) {
	msg, err := s.recvMessage()
	if err != nil {
		return nil, err
	}
	proof, ok := msg.(*message.TransferProofMessage)
	if !ok {
		return nil, fmt.Errorf("%w: got %T while expecting transfer proof", errUnexpectedMessage, msg)
	}

	return XmrLockProofReceived{Material: st.Material, Channel: st.Channel, TxHash: proof.TxHash, KeyImage: proof.KeyImage}, nil
}

// handleXmrLockProofReceived waits for the XMR transfer itself to reach the
// configured confirmation depth on the jointly-derived address, the same
// way Alice waits for Bob's half of the lock.
func (s *swapState) handleXmrLockProofReceived(st XmrLockProofReceived) (State, error) {
	if err := s.awaitXMRLocked(st.Material); err != nil {
		return nil, fmt.Errorf("bob: waiting for xmr lock: %w", err)
	}
	return XmrLocked{Material: st.Material}, nil
}

// awaitXMRLocked opens a view-only wallet over the jointly-derived address
// and polls its balance until funds show up, the same lockFunds/GetBalance
// shape the teacher's xmrmaker/xmrtaker use.
func (s *swapState) awaitXMRLocked(m *Material) error {
	alicePublic := moneroc.NewPublicKeyPair(m.AlicePublicSpendKey, m.AlicePrivateViewKey.Public())
	joint := moneroc.SumSpendAndViewKeys(m.Own.PublicKeyPair, alicePublic)
	jointViewKey := m.Own.PrivateKeyPair.ViewKey().Add(m.AlicePrivateViewKey)
	addr := moneroc.NewAddress(joint.SpendKey(), joint.ViewKey(), moneroNetwork(s.Env()))

	walletFile := fmt.Sprintf("swapd-watch-%x", m.SwapID)
	if err := s.XMRClient().GenerateViewOnlyWalletFromKeys(jointViewKey, addr, walletFile, ""); err != nil {
		return err
	}
	if err := s.XMRClient().OpenWallet(walletFile, ""); err != nil {
		return err
	}

	for {
		if err := s.XMRClient().Refresh(); err != nil {
			return err
		}

		balance, err := s.XMRClient().GetBalance(0)
		if err != nil {
			return err
		}
		if balance.Balance > 0 && balance.UnlockedBalance > 0 {
			return nil
		}

		if err := common.SleepWithContext(s.ctx, xmrPollInterval); err != nil {
			return err
		}
	}
}

func moneroNetwork(env common.Environment) moneroc.Network {
	if env == common.Mainnet {
		return moneroc.Mainnet
	}
	return moneroc.Stagenet
}

// handleXmrLocked sends Bob's encrypted redeem signature (Message3), the
// adaptor point being Alice's key-split point so that once she decrypts it,
// broadcasts tx_redeem, and Bob later observes the result, he can recover
// her key-split secret from the published signature the same way she would
// recover his from tx_refund.
func (s *swapState) handleXmrLocked(st XmrLocked) (State, error) {
	m := st.Material

	redeemSighash, err := redeemLeafSighash(m)
	if err != nil {
		return nil, err
	}

	encSig, err := adaptor.Encrypt(m.BobLockKey, m.AliceSecp256k1PublicKey, redeemSighash)
	if err != nil {
		return nil, fmt.Errorf("bob: encrypting redeem signature: %w", err)
	}
	m.RedeemEncSig = encSig

	if err := s.Net().SendEncryptedSignature(s.ctx, m.PeerID, &message.EncryptedSignatureMessage{SwapID: m.SwapID, EncSig: encSig}); err != nil {
		return nil, fmt.Errorf("bob: sending encrypted redeem signature: %w", err)
	}

	return EncSigSent{Material: m}, nil
}

// handleEncSigSent races tx_lock's output being spent (by either tx_redeem
// or, if Alice never redeems, tx_cancel) against cancel_timelock maturity
// (§4.F race semantics). Bob has no message to wait on here the way Alice
// does in her analogous state: Alice never announces her redemption, so the
// only way to learn about it is watching chain.
func (s *swapState) handleEncSigSent(st EncSigSent) (State, error) {
	m := st.Material

	spentCh := make(chan *wire.MsgTx, 1)
	spentErrCh := make(chan error, 1)
	go func() {
		tx, err := s.BTCWallet().WatchSpend(s.ctx, wire.OutPoint{Hash: m.LockOutpoint.Hash, Index: m.LockOutpoint.Index})
		if err != nil {
			spentErrCh <- err
			return
		}
		spentCh <- tx
	}()

	timelockCh := make(chan error, 1)
	go func() {
		timelockCh <- bitcoin.WaitForRelativeTimelock(s.ctx, s.BTCWallet(), m.LockConfirmHeight, m.CancelTimelock)
	}()

	select {
	case tx := <-spentCh:
		isCancel, err := spendsToCancelTree(m, tx)
		if err != nil {
			return nil, err
		}
		if isCancel {
			return BtcCancelled{Material: m, CancelTxid: [32]byte(tx.TxHash())}, nil
		}

		spendKey, err := recoverRedeemSpendKey(m, tx)
		if err != nil {
			// tx_redeem confirmed but the secret could not be recovered
			// (Alice's decrypted signature never matched Message3's
			// commitment): the swap still resolved on the Bitcoin side,
			// just without Bob's XMR recovery.
			log.Warnf("swap %s: tx_redeem observed but spend key not recovered: %s", m.SwapID, err)
			return BtcRedeemed{Material: m, SpendKey: nil}, nil
		}
		return BtcRedeemed{Material: m, SpendKey: spendKey}, nil
	case err := <-spentErrCh:
		return nil, err
	case err := <-timelockCh:
		if err != nil {
			return nil, err
		}
		return CancelTimelockExpired{Material: m}, nil
	case <-s.ctx.Done():
		return nil, s.ctx.Err()
	}
}

// spendsToCancelTree reports whether tx's first output pays m.CancelTree,
// the shape tx_cancel (as opposed to tx_redeem, which pays an external
// address) takes.
func spendsToCancelTree(m *Material, tx *wire.MsgTx) (bool, error) {
	outputKey := m.CancelTree.OutputKey()
	script, err := txscript.PayToTaprootScript(outputKey)
	if err != nil {
		return false, err
	}
	return len(tx.TxOut) > 0 && bytes.Equal(tx.TxOut[0].PkScript, script), nil
}

// recoverRedeemSpendKey extracts Alice's published tx_redeem signature from
// tx's witness and recombines it with the encrypted commitment Bob sent
// ahead of time to recover her key-split secret, completing the combined
// Monero spend key s = s_A + s_B.
func recoverRedeemSpendKey(m *Material, tx *wire.MsgTx) (*moneroc.PrivateSpendKey, error) {
	if m.RedeemEncSig == nil {
		return nil, fmt.Errorf("no redeem encrypted signature on file")
	}
	if len(tx.TxIn) == 0 || len(tx.TxIn[0].Witness) < 2 {
		return nil, fmt.Errorf("tx_redeem has no witness data")
	}

	// RedeemWitness pushes [bobSig, aliceSig, script, controlBlock]; index 1
	// is Alice's plain signature, the one she decrypted herself.
	witness := tx.TxIn[0].Witness[1]
	if len(witness) != 64 {
		return nil, fmt.Errorf("unexpected tx_redeem witness length %d", len(witness))
	}
	var sBytes [32]byte
	copy(sBytes[:], witness[32:64])

	// R never changes between Encrypt and Decrypt, so the commitment Bob
	// already holds carries the same R the published signature does; only
	// the published scalar s is new information.
	published := &adaptor.Signature{R: m.RedeemEncSig.R, S: secp256k1.ScalarFromBytes(sBytes)}

	t, err := adaptor.Recover(m.RedeemEncSig, published)
	if err != nil {
		return nil, fmt.Errorf("recovering alice's key-split secret: %w", err)
	}

	aliceSpendKey, err := moneroc.NewPrivateSpendKeyFromCanonicalScalar(t.Bytes())
	if err != nil {
		return nil, err
	}
	return m.Own.PrivateKeyPair.SpendKey().Add(aliceSpendKey), nil
}

// handleBtcRedeemed reconstructs the full Monero spend key, when it was
// recovered, and sweeps the originally-locked XMR to a wallet Bob controls.
func (s *swapState) handleBtcRedeemed(st BtcRedeemed) (State, error) {
	m := st.Material
	if st.SpendKey == nil {
		return SafelyAborted{}, nil
	}

	vk := m.Own.PrivateKeyPair.ViewKey().Add(m.AlicePrivateViewKey)
	recovered := moneroc.NewPrivateKeyPair(st.SpendKey, vk)

	walletFile := fmt.Sprintf("swapd-recovery-%x", m.SwapID)
	xmrNet := moneroNetwork(s.Env())
	if err := s.XMRClient().GenerateFromKeys(recovered, walletFile, "", xmrNet); err != nil {
		return nil, fmt.Errorf("bob: generating recovery wallet: %w", err)
	}
	if err := s.XMRClient().OpenWallet(walletFile, ""); err != nil {
		return nil, fmt.Errorf("bob: opening recovery wallet: %w", err)
	}
	if err := s.XMRClient().Refresh(); err != nil {
		return nil, fmt.Errorf("bob: refreshing recovery wallet: %w", err)
	}

	ownAddr := m.Own.PrivateKeyPair.Address(xmrNet)
	if _, err := s.XMRClient().SweepAll(ownAddr, 0); err != nil {
		return nil, fmt.Errorf("bob: sweeping recovered xmr: %w", err)
	}

	return XmrRedeemed{}, nil
}

// handleCancelTimelockExpired broadcasts tx_cancel using both parties'
// pre-exchanged cancel-leaf signatures.
func (s *swapState) handleCancelTimelockExpired(st CancelTimelockExpired) (State, error) {
	m := st.Material

	if m.AliceCancelSig == nil {
		return nil, fmt.Errorf("bob: no cancel signature received from alice")
	}

	witness, err := bitcoin.CancelWitness(m.LockTree, m.AliceCancelSig, m.CancelSig)
	if err != nil {
		return nil, err
	}

	tx := bitcoin.BuildCancelTx(*m.LockOutpoint, m.CancelTree, m.CancelTimelock, defaultFeePerTx)
	tx.TxIn[0].Witness = witness

	txHash, err := s.BTCWallet().Broadcast(s.ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("bob: broadcasting tx_cancel: %w", err)
	}

	return BtcCancelled{Material: m, CancelTxid: [32]byte(txHash)}, nil
}

// handleBtcCancelled sends Bob's encrypted refund commitment (so Alice can
// recover his key-split secret if he stalls), then broadcasts tx_refund
// immediately: the refund leaf carries no timelock of its own, unlike the
// punish leaf's punishTimelock, so an honest Bob always wins the race
// against Alice unless he goes silent.
func (s *swapState) handleBtcCancelled(st BtcCancelled) (State, error) {
	m := st.Material
	cancelOutpoint := bitcoin.LockedOutpoint{
		Hash:  chainhash.Hash(st.CancelTxid),
		Index: 0,
		Value: m.LockOutpoint.Value - defaultFeePerTx,
	}

	refundSighash, err := refundLeafSighash(m, cancelOutpoint)
	if err != nil {
		return nil, err
	}

	encSig, err := adaptor.Encrypt(m.BobLockKey, m.Own.Secp256k1PublicKey, refundSighash)
	if err != nil {
		return nil, fmt.Errorf("bob: encrypting refund signature: %w", err)
	}
	if err := s.Net().SendEncryptedSignature(s.ctx, m.PeerID, &message.EncryptedSignatureMessage{SwapID: m.SwapID, EncSig: encSig}); err != nil {
		log.Warnf("swap %s: sending refund encrypted signature: %s", m.SwapID, err)
	}

	t := secp256k1.ScalarFromBytes(m.Own.PrivateKeyPair.SpendKey().Bytes())
	bobSig := encSig.Decrypt(t)

	witness, err := bitcoin.RefundWitness(m.CancelTree, bobSig)
	if err != nil {
		return nil, err
	}

	tx := bitcoin.BuildRefundTx(cancelOutpoint, m.BobRefundAddr, defaultFeePerTx)
	tx.TxIn[0].Witness = witness

	if _, err := s.BTCWallet().Broadcast(s.ctx, tx); err != nil {
		log.Warnf("swap %s: broadcasting tx_refund: %s", m.SwapID, err)
	}

	spentTx, err := s.BTCWallet().WatchSpend(s.ctx, wire.OutPoint{Hash: chainhash.Hash(st.CancelTxid), Index: 0})
	if err != nil {
		return nil, err
	}

	if len(spentTx.TxOut) > 0 && bytes.Equal(spentTx.TxOut[0].PkScript, m.BobRefundAddr) {
		return BtcRefunded{}, nil
	}
	return BtcPunished{}, nil
}
