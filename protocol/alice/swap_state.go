package alice

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/xmrbtcswap/swapd/bitcoin"
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

var errUnexpectedMessage = errors.New("alice: unexpected message for current state")

// defaultFeePerTx is the flat satoshi fee subtracted at every hop of the
// swap's Bitcoin leg. A real deployment would size this from the node's fee
// estimator; a fixed fee keeps every pre-signed leaf's sighash reproducible
// without a second round of fee negotiation (Non-goal: dynamic fee bumping).
const defaultFeePerTx = 1000

// swapState drives one of Alice's swaps from Started through to a terminal
// state, the way the teacher's protocol/xmrmaker.swapState drives a single
// contract-backed swap. Bitcoin confirmations are polled rather than
// delivered as Ethereum log subscriptions, so this version threads its own
// message channel instead of xmrmaker's per-event channel set.
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
// the host's per-stream goroutine, so it only ever hands msg off to the run
// loop rather than processing it inline.
func (s *swapState) HandleProtocolMessage(msg common.Message) error {
	select {
	case s.msgCh <- msg:
		return nil
	case <-s.done:
		return fmt.Errorf("alice: swap %s already finished", s.info.ID)
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

func (s *swapState) run(started Started, ch *Channel) {
	defer close(s.done)

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
// way to continue negotiating or to learn Bob's transfer proof once the
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
	case XmrLocked:
		return s.handleXmrLocked(st)
	case EncSigLearned:
		return s.handleEncSigLearned(st)
	case CancelTimelockExpired:
		return s.handleCancelTimelockExpired(st)
	case BtcCancelled:
		return s.handleBtcCancelled(st)
	case BtcPunishable:
		return s.handleBtcPunishable(st)
	case BtcRefunded:
		return s.handleBtcRefunded(st)
	default:
		return nil, fmt.Errorf("alice: no transition defined for %T", cur)
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
	case XmrLocked:
		return st.Material
	case EncSigLearned:
		return st.Material
	case CancelTimelockExpired:
		return st.Material
	case BtcCancelled:
		return st.Material
	case BtcPunishable:
		return st.Material
	case BtcRefunded:
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
	case XmrLocked, EncSigLearned:
		return types.XMRLocked, true
	case BtcRedeemed:
		return types.CompletedSuccess, true
	case BtcCancelled, BtcPunishable, BtcRefunded, BtcPunished, XmrRefunded:
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

// handleStarted runs negotiation's second half (§4.C Message0/Message1):
// Alice waits for Bob's keys and his partially-signed tx_lock together (they
// can arrive in either order over the same substream), verifies his DLEQ
// proof, builds the shared script trees, and countersigns the cancel and
// punish leaves in advance.
//
// Bob's tx_lock is already fully input-selected by the time he sends it here
// (LockProofMessage.LockTxPSBT): segwit txids never commit to witness data,
// so its outpoint is already fixed and Alice can compute it directly from the
// unsigned transaction bytes, without waiting for a confirmation. That
// outpoint is what makes it possible to sign tx_cancel and tx_punish up
// front, since every later leaf signature needs a concrete previous output
// to commit to.
func (s *swapState) handleStarted(started Started, ch *Channel) (State, error) {
	var (
		bobKeys   *message.BobKeysMessage
		lockProof *message.LockProofMessage
	)

	for bobKeys == nil || lockProof == nil {
		msg, err := s.recvMessage()
		if err != nil {
			return nil, err
		}
		switch m := msg.(type) {
		case *message.BobKeysMessage:
			bobKeys = m
		case *message.LockProofMessage:
			lockProof = m
		default:
			return nil, fmt.Errorf("%w: got %T while negotiating", errUnexpectedMessage, msg)
		}
	}

	verified, err := protocol.VerifyKeysAndProof(bobKeys.DLEqProof, bobKeys.Secp256k1PublicKey, bobKeys.PublicSpendKey)
	if err != nil {
		return nil, fmt.Errorf("alice: verifying bob's key-split proof: %w", err)
	}

	punishAddr, err := s.BTCWallet().NewChangeAddress(s.ctx)
	if err != nil {
		return nil, fmt.Errorf("alice: requesting punish address: %w", err)
	}

	m := &Material{
		SwapID:                started.SwapID,
		PeerID:                ch.Stream.PeerID(),
		BTCAmount:             started.BTCAmount,
		XMRAmount:             started.XMRAmount,
		CancelTimelock:        s.SwapConfig().CancelTimelock,
		PunishTimelock:        s.SwapConfig().PunishTimelock,
		Own:                   started.Own,
		AliceLockKey:          started.AliceLockKey,
		BobSecp256k1PublicKey: verified.Secp256k1PublicKey,
		BobPublicSpendKey:     verified.Ed25519PublicKey,
		BobPrivateViewKey:     bobKeys.PrivateViewKey,
		BobBitcoinPublicKey:   bobKeys.BitcoinPublicKey,
		PunishAddr:            punishAddr,
	}
	m.buildTrees()

	lockOutpoint, err := findLockOutpoint(lockProof.LockTxPSBT, m.LockTree)
	if err != nil {
		return nil, fmt.Errorf("alice: locating tx_lock output: %w", err)
	}
	m.LockOutpoint = lockOutpoint

	cancelSighash, err := cancelLeafSighash(m)
	if err != nil {
		return nil, fmt.Errorf("alice: computing tx_cancel sighash: %w", err)
	}
	if !lockProof.CancelSig.Verify(m.BobBitcoinPublicKey, cancelSighash) {
		return nil, fmt.Errorf("alice: bob's tx_cancel signature does not verify")
	}
	cancelSig, err := adaptor.Sign(m.AliceLockKey, cancelSighash)
	if err != nil {
		return nil, fmt.Errorf("alice: signing tx_cancel: %w", err)
	}

	cancelOutpoint := precomputedCancelOutpoint(m)
	punishSighash, err := punishLeafSighash(m, cancelOutpoint)
	if err != nil {
		return nil, fmt.Errorf("alice: computing tx_punish sighash: %w", err)
	}
	punishSig, err := adaptor.Sign(m.AliceLockKey, punishSighash)
	if err != nil {
		return nil, fmt.Errorf("alice: signing tx_punish: %w", err)
	}

	m.CancelSig = cancelSig
	m.PunishSig = punishSig
	m.BobCancelSig = lockProof.CancelSig
	m.RefundSig = lockProof.RefundSig

	reply := &message.AliceKeysAndSignaturesMessage{
		SwapID:             m.SwapID,
		BitcoinPublicKey:   m.AliceLockKey.Public(),
		PublicSpendKey:     m.Own.PublicKeyPair.SpendKey(),
		PrivateViewKey:     m.Own.PrivateKeyPair.ViewKey(),
		DLEqProof:          m.Own.DLEqProof.Proof(),
		Secp256k1PublicKey: m.Own.Secp256k1PublicKey,
		CancelSig:          cancelSig,
		PunishSig:          punishSig,
		PayoutAddress:      m.PunishAddr,
	}
	if err := ch.Stream.Send(reply); err != nil {
		return nil, fmt.Errorf("alice: sending key/signature reply: %w", err)
	}

	return Negotiated{Material: m, Channel: ch}, nil
}

// findLockOutpoint parses Bob's raw (unsigned-witness) tx_lock bytes and
// returns the outpoint of the output paying the shared Taproot tree.
func findLockOutpoint(rawTx []byte, tree *bitcoin.LockScriptTree) (*bitcoin.LockedOutpoint, error) {
	tx := wire.NewMsgTx(2)
	if err := tx.Deserialize(bytes.NewReader(rawTx)); err != nil {
		return nil, fmt.Errorf("decoding tx_lock: %w", err)
	}

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
// tx_lock's redeem leaf, paying straight to Alice.
func redeemLeafSighash(m *Material) ([32]byte, error) {
	prevOut, err := lockPrevOut(m)
	if err != nil {
		return [32]byte{}, err
	}
	tx := bitcoin.BuildRedeemTx(*m.LockOutpoint, redeemDestination(m), defaultFeePerTx)
	return bitcoin.TapLeafSighash(tx, prevOut, m.LockTree.RedeemLeaf.Script)
}

// redeemDestination reuses the punish address chosen at negotiation time,
// since both are "pay Alice directly" outputs and there is no benefit to a
// second fresh address that a pre-signed leaf would need to commit to early.
func redeemDestination(m *Material) []byte {
	return m.PunishAddr
}

// punishLeafSighash computes the sighash Alice signs over tx_cancel's punish
// leaf, spending cancelOutpoint to her own pre-chosen address.
func punishLeafSighash(m *Material, cancelOutpoint bitcoin.LockedOutpoint) ([32]byte, error) {
	prevOut, err := cancelPrevOut(m, cancelOutpoint)
	if err != nil {
		return [32]byte{}, err
	}
	tx := bitcoin.BuildPunishTx(cancelOutpoint, m.PunishTimelock, m.PunishAddr, defaultFeePerTx)
	return bitcoin.TapLeafSighash(tx, prevOut, m.CancelTree.PunishLeaf.Script)
}

// handleNegotiated waits for tx_lock to reach the configured confirmation
// depth and records the height at which that happened, the basis the cancel
// timelock counts forward from (§4.D).
func (s *swapState) handleNegotiated(st Negotiated) (State, error) {
	if err := bitcoin.WaitForConfirmations(s.ctx, s.BTCWallet(), st.Material.LockOutpoint.Hash, s.SwapConfig().BitcoinConfirmations); err != nil {
		return nil, fmt.Errorf("waiting for tx_lock confirmations: %w", err)
	}

	height, err := s.BTCWallet().BlockHeight(s.ctx)
	if err != nil {
		return nil, err
	}
	st.Material.LockConfirmHeight = height

	return BtcLocked{Material: st.Material, Channel: st.Channel}, nil
}

// handleBtcLocked waits for Bob's transfer proof, then for the XMR transfer
// itself to reach the configured confirmation depth on the jointly-derived
// address.
func (s *swapState) handleBtcLocked(st BtcLocked) (State, error) {
	msg, err := s.recvMessage()
	if err != nil {
		return nil, err
	}
	if _, ok := msg.(*message.TransferProofMessage); !ok {
		return nil, fmt.Errorf("%w: got %T while expecting transfer proof", errUnexpectedMessage, msg)
	}

	if err := s.awaitXMRLocked(st.Material); err != nil {
		return nil, fmt.Errorf("waiting for xmr lock: %w", err)
	}

	return XmrLocked{Material: st.Material}, nil
}

// awaitXMRLocked opens a view-only wallet over the jointly-derived address
// and polls its balance until funds show up, the same lockFunds/GetBalance
// shape the teacher's xmrmaker/xmrtaker use, run from the payee side instead
// of the payer side.
func (s *swapState) awaitXMRLocked(m *Material) error {
	bobPublic := moneroc.NewPublicKeyPair(m.BobPublicSpendKey, m.BobPrivateViewKey.Public())
	joint := moneroc.SumSpendAndViewKeys(m.Own.PublicKeyPair, bobPublic)
	jointViewKey := m.Own.PrivateKeyPair.ViewKey().Add(m.BobPrivateViewKey)
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

// handleXmrLocked races Bob's redeem encrypted signature against cancel
// timelock maturity (§4.E race semantics): whichever happens first decides
// whether Alice redeems or starts the cancel path.
func (s *swapState) handleXmrLocked(st XmrLocked) (State, error) {
	timelockCh := make(chan error, 1)
	go func() {
		timelockCh <- bitcoin.WaitForRelativeTimelock(s.ctx, s.BTCWallet(), st.Material.LockConfirmHeight, st.Material.CancelTimelock)
	}()

	for {
		select {
		case msg := <-s.msgCh:
			encSigMsg, ok := msg.(*message.EncryptedSignatureMessage)
			if !ok {
				continue
			}
			return EncSigLearned{Material: st.Material, EncSig: encSigMsg.EncSig}, nil
		case err := <-timelockCh:
			if err != nil {
				return nil, err
			}
			return CancelTimelockExpired{Material: st.Material}, nil
		case <-s.ctx.Done():
			return nil, s.ctx.Err()
		}
	}
}

// handleEncSigLearned decrypts Bob's redeem-leaf signature using Alice's own
// key-split scalar as the adaptor secret, combines it with her own signature,
// and broadcasts tx_redeem.
func (s *swapState) handleEncSigLearned(st EncSigLearned) (State, error) {
	m := st.Material

	redeemSighash, err := redeemLeafSighash(m)
	if err != nil {
		return nil, err
	}

	if err := st.EncSig.Verify(m.BobBitcoinPublicKey, m.Own.Secp256k1PublicKey, redeemSighash); err != nil {
		return nil, fmt.Errorf("bob's encrypted redeem signature does not verify: %w", err)
	}

	t := secp256k1.ScalarFromBytes(m.Own.PrivateKeyPair.SpendKey().Bytes())
	bobSig := st.EncSig.Decrypt(t)
	if !bobSig.Verify(m.BobBitcoinPublicKey, redeemSighash) {
		return nil, fmt.Errorf("decrypted redeem signature does not verify")
	}

	aliceSig, err := adaptor.Sign(m.AliceLockKey, redeemSighash)
	if err != nil {
		return nil, err
	}

	witness, err := bitcoin.RedeemWitness(m.LockTree, aliceSig, bobSig)
	if err != nil {
		return nil, err
	}

	tx := bitcoin.BuildRedeemTx(*m.LockOutpoint, redeemDestination(m), defaultFeePerTx)
	tx.TxIn[0].Witness = witness

	if _, err := s.BTCWallet().Broadcast(s.ctx, tx); err != nil {
		return nil, fmt.Errorf("broadcasting tx_redeem: %w", err)
	}

	return BtcRedeemed{}, nil
}

// handleCancelTimelockExpired broadcasts tx_cancel using both parties'
// pre-exchanged cancel-leaf signatures.
func (s *swapState) handleCancelTimelockExpired(st CancelTimelockExpired) (State, error) {
	m := st.Material

	if m.BobCancelSig == nil {
		return nil, fmt.Errorf("alice: no cancel signature received from bob")
	}

	witness, err := bitcoin.CancelWitness(m.LockTree, m.CancelSig, m.BobCancelSig)
	if err != nil {
		return nil, err
	}

	tx := bitcoin.BuildCancelTx(*m.LockOutpoint, m.CancelTree, m.CancelTimelock, defaultFeePerTx)
	tx.TxIn[0].Witness = witness

	txHash, err := s.BTCWallet().Broadcast(s.ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("broadcasting tx_cancel: %w", err)
	}

	return BtcCancelled{Material: m, CancelTxid: [32]byte(txHash)}, nil
}

// handleBtcCancelled waits for tx_cancel to confirm and records the height
// it confirmed at, the basis the punish timelock counts forward from.
func (s *swapState) handleBtcCancelled(st BtcCancelled) (State, error) {
	if err := bitcoin.WaitForConfirmations(s.ctx, s.BTCWallet(), chainhash.Hash(st.CancelTxid), 1); err != nil {
		return nil, err
	}

	height, err := s.BTCWallet().BlockHeight(s.ctx)
	if err != nil {
		return nil, err
	}
	st.Material.CancelConfirmHeight = height

	return BtcPunishable{Material: st.Material, CancelTxid: st.CancelTxid}, nil
}

// handleBtcPunishable races three things at once: Bob's own tx_refund
// appearing on chain, his encrypted refund commitment arriving over the
// substream (stored for later recovery once tx_refund does appear), and
// punish_timelock maturing with no tx_refund in sight.
func (s *swapState) handleBtcPunishable(st BtcPunishable) (State, error) {
	m := st.Material
	cancelOutpoint := bitcoin.LockedOutpoint{
		Hash:  chainhash.Hash(st.CancelTxid),
		Index: 0,
		Value: m.LockOutpoint.Value - defaultFeePerTx,
	}

	spentCh := make(chan *wire.MsgTx, 1)
	spentErrCh := make(chan error, 1)
	go func() {
		tx, err := s.BTCWallet().WatchSpend(s.ctx, wire.OutPoint{Hash: chainhash.Hash(st.CancelTxid), Index: 0})
		if err != nil {
			spentErrCh <- err
			return
		}
		spentCh <- tx
	}()

	timelockCh := make(chan error, 1)
	go func() {
		timelockCh <- bitcoin.WaitForRelativeTimelock(s.ctx, s.BTCWallet(), m.CancelConfirmHeight, m.PunishTimelock)
	}()

	for {
		select {
		case msg := <-s.msgCh:
			if encSigMsg, ok := msg.(*message.EncryptedSignatureMessage); ok {
				m.RefundEncSig = encSigMsg.EncSig
			}
		case tx := <-spentCh:
			spendKey, err := recoverRefundSpendKey(m, tx)
			if err != nil {
				// tx_refund confirmed but the secret could not be
				// recovered (Bob never sent RefundEncSig): the swap
				// still resolved, just without Alice's XMR recovery.
				log.Warnf("swap %s: tx_refund observed but spend key not recovered: %s", m.SwapID, err)
				return BtcRefunded{Material: m, SpendKey: nil}, nil
			}
			return BtcRefunded{Material: m, SpendKey: spendKey}, nil
		case err := <-spentErrCh:
			return nil, err
		case err := <-timelockCh:
			if err != nil {
				return nil, err
			}
			return s.punish(m, cancelOutpoint)
		case <-s.ctx.Done():
			return nil, s.ctx.Err()
		}
	}
}

// recoverRefundSpendKey extracts Bob's published tx_refund signature from
// tx's witness and recombines it with the encrypted commitment he sent
// ahead of time to recover his key-split secret, completing the combined
// Monero spend key s = s_A + s_B.
func recoverRefundSpendKey(m *Material, tx *wire.MsgTx) (*moneroc.PrivateSpendKey, error) {
	if m.RefundEncSig == nil {
		return nil, fmt.Errorf("no refund encrypted signature on file")
	}
	if len(tx.TxIn) == 0 || len(tx.TxIn[0].Witness) == 0 {
		return nil, fmt.Errorf("tx_refund has no witness data")
	}

	witness := tx.TxIn[0].Witness[0]
	if len(witness) != 64 {
		return nil, fmt.Errorf("unexpected tx_refund witness length %d", len(witness))
	}
	var sBytes [32]byte
	copy(sBytes[:], witness[32:64])

	// R never changes between Encrypt and Decrypt, so the commitment
	// Alice already holds carries the same R the published signature
	// does; only the published scalar s is new information.
	published := &adaptor.Signature{R: m.RefundEncSig.R, S: secp256k1.ScalarFromBytes(sBytes)}

	t, err := adaptor.Recover(m.RefundEncSig, published)
	if err != nil {
		return nil, fmt.Errorf("recovering bob's key-split secret: %w", err)
	}

	bobSpendKey, err := moneroc.NewPrivateSpendKeyFromCanonicalScalar(t.Bytes())
	if err != nil {
		return nil, err
	}
	return m.Own.PrivateKeyPair.SpendKey().Add(bobSpendKey), nil
}

// punish broadcasts tx_punish, spending tx_cancel's punish leaf with Alice's
// own pre-signed signature.
func (s *swapState) punish(m *Material, cancelOutpoint bitcoin.LockedOutpoint) (State, error) {
	witness, err := bitcoin.PunishWitness(m.CancelTree, m.PunishSig)
	if err != nil {
		return nil, err
	}

	tx := bitcoin.BuildPunishTx(cancelOutpoint, m.PunishTimelock, m.PunishAddr, defaultFeePerTx)
	tx.TxIn[0].Witness = witness

	if _, err := s.BTCWallet().Broadcast(s.ctx, tx); err != nil {
		return nil, fmt.Errorf("broadcasting tx_punish: %w", err)
	}

	return BtcPunished{}, nil
}

// handleBtcRefunded reconstructs the full Monero spend key, when it was
// recovered, and sweeps the originally-locked XMR back to a wallet Alice
// controls.
func (s *swapState) handleBtcRefunded(st BtcRefunded) (State, error) {
	m := st.Material
	if st.SpendKey == nil {
		return SafelyAborted{}, nil
	}

	vk := m.Own.PrivateKeyPair.ViewKey().Add(m.BobPrivateViewKey)
	recovered := moneroc.NewPrivateKeyPair(st.SpendKey, vk)

	walletFile := fmt.Sprintf("swapd-recovery-%x", m.SwapID)
	xmrNet := moneroNetwork(s.Env())
	if err := s.XMRClient().GenerateFromKeys(recovered, walletFile, "", xmrNet); err != nil {
		return nil, fmt.Errorf("generating recovery wallet: %w", err)
	}
	if err := s.XMRClient().OpenWallet(walletFile, ""); err != nil {
		return nil, fmt.Errorf("opening recovery wallet: %w", err)
	}
	if err := s.XMRClient().Refresh(); err != nil {
		return nil, fmt.Errorf("refreshing recovery wallet: %w", err)
	}

	ownAddr := m.Own.PrivateKeyPair.Address(xmrNet)
	if _, err := s.XMRClient().SweepAll(ownAddr, 0); err != nil {
		return nil, fmt.Errorf("sweeping recovered xmr: %w", err)
	}

	return XmrRefunded{}, nil
}
