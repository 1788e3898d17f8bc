// Package monero wraps monero-wallet-rpc for the two things swapd needs
// from it: generating a view-only wallet over the jointly-derived address
// once a swap's Monero half is known, and sweeping a completed claim out to
// the owner's real wallet (§4.A, §4.E "ClaimMonero").
package monero

import (
	"encoding/hex"
	"fmt"

	logging "github.com/ipfs/go-log"

	"github.com/MarinX/monerorpc/wallet"

	"github.com/xmrbtcswap/swapd/crypto/moneroc"
)

var log = logging.Logger("monero")

// WalletClient is everything swapd needs from monero-wallet-rpc. Grounded on
// noot's monero.Client interface (same method set, same GenerateFromKeys/
// GenerateViewOnlyWalletFromKeys split: both roles open a view-only wallet
// to confirm the XMR lock, and a full wallet from the recovered spend key
// once one is learned, Bob after tx_redeem and Alice after tx_refund).
type WalletClient interface {
	GetHeight() (uint64, error)
	GetBalance(accountIdx uint64) (*wallet.GetBalanceResponse, error)
	Transfer(to moneroc.Address, accountIdx uint64, amount uint64) (*wallet.TransferResponse, error)
	SweepAll(to moneroc.Address, accountIdx uint64) (*wallet.SweepAllResponse, error)
	GenerateFromKeys(kp *moneroc.PrivateKeyPair, filename, password string, net moneroc.Network) error
	GenerateViewOnlyWalletFromKeys(vk *moneroc.PrivateViewKey, addr moneroc.Address, filename, password string) error
	OpenWallet(filename, password string) error
	CloseWallet() error
	Refresh() error

	getChainHeight() (uint64, error)
	refresh() error
}

type walletClient struct {
	rpc      *wallet.Client
	endpoint string
}

// NewWalletClient dials monero-wallet-rpc at endpoint.
func NewWalletClient(endpoint string) WalletClient {
	return &walletClient{
		rpc:      wallet.New(wallet.Config{Address: endpoint}),
		endpoint: endpoint,
	}
}

func (c *walletClient) GetHeight() (uint64, error) {
	resp, err := c.rpc.GetHeight()
	if err != nil {
		return 0, fmt.Errorf("monero: get_height: %w", err)
	}
	return uint64(resp.Height), nil
}

func (c *walletClient) getChainHeight() (uint64, error) {
	return c.GetHeight()
}

func (c *walletClient) GetBalance(accountIdx uint64) (*wallet.GetBalanceResponse, error) {
	resp, err := c.rpc.GetBalance(&wallet.GetBalanceRequest{AccountIndex: uint64(accountIdx)})
	if err != nil {
		return nil, fmt.Errorf("monero: get_balance: %w", err)
	}
	return resp, nil
}

func (c *walletClient) Transfer(to moneroc.Address, accountIdx uint64, amount uint64) (*wallet.TransferResponse, error) {
	resp, err := c.rpc.Transfer(&wallet.TransferRequest{
		Destinations: []wallet.Destination{
			{Address: string(to), Amount: amount},
		},
		AccountIndex: accountIdx,
	})
	if err != nil {
		return nil, fmt.Errorf("monero: transfer: %w", err)
	}
	return resp, nil
}

func (c *walletClient) SweepAll(to moneroc.Address, accountIdx uint64) (*wallet.SweepAllResponse, error) {
	resp, err := c.rpc.SweepAll(&wallet.SweepAllRequest{
		Address:      string(to),
		AccountIndex: accountIdx,
	})
	if err != nil {
		return nil, fmt.Errorf("monero: sweep_all: %w", err)
	}
	return resp, nil
}

// GenerateFromKeys creates a full spend+view wallet from kp, used once a
// swap party has recovered the combined spend key s = s_A + s_B (§3).
func (c *walletClient) GenerateFromKeys(kp *moneroc.PrivateKeyPair, filename, password string, net moneroc.Network) error {
	addr := kp.Address(net)
	sk := kp.SpendKey().Bytes()
	vk := kp.ViewKey().Bytes()

	_, err := c.rpc.GenerateFromKeys(&wallet.GenerateFromKeysRequest{
		Filename: filename,
		Password: password,
		Address:  string(addr),
		Spendkey: hex.EncodeToString(sk[:]),
		Viewkey:  hex.EncodeToString(vk[:]),
	})
	if err != nil {
		return fmt.Errorf("monero: generate_from_keys: %w", err)
	}
	return nil
}

// GenerateViewOnlyWalletFromKeys creates a watch-only wallet so a party can
// observe the jointly-derived address confirm funds without being able to
// spend from it before the swap's secret is recovered.
func (c *walletClient) GenerateViewOnlyWalletFromKeys(vk *moneroc.PrivateViewKey, addr moneroc.Address, filename, password string) error {
	vb := vk.Bytes()
	_, err := c.rpc.GenerateFromKeys(&wallet.GenerateFromKeysRequest{
		Filename: filename,
		Password: password,
		Address:  string(addr),
		Viewkey:  hex.EncodeToString(vb[:]),
	})
	if err != nil {
		return fmt.Errorf("monero: generate_from_keys (view-only): %w", err)
	}
	return nil
}

func (c *walletClient) OpenWallet(filename, password string) error {
	_, err := c.rpc.OpenWallet(&wallet.OpenWalletRequest{Filename: filename, Password: password})
	if err != nil {
		return fmt.Errorf("monero: open_wallet: %w", err)
	}
	return nil
}

func (c *walletClient) CloseWallet() error {
	if err := c.rpc.CloseWallet(); err != nil {
		return fmt.Errorf("monero: close_wallet: %w", err)
	}
	return nil
}

func (c *walletClient) Refresh() error {
	return c.refresh()
}

func (c *walletClient) refresh() error {
	_, err := c.rpc.Refresh(&wallet.RefreshRequest{})
	if err != nil {
		return fmt.Errorf("monero: refresh: %w", err)
	}
	return nil
}
