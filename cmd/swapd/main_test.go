package main

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"

	"github.com/xmrbtcswap/swapd/common"
	"github.com/xmrbtcswap/swapd/common/types"
)

func TestParseEnv(t *testing.T) {
	cases := map[string]common.Environment{
		"mainnet":     common.Mainnet,
		"stagenet":    common.Stagenet,
		"dev":         common.Development,
		"development": common.Development,
	}
	for in, want := range cases {
		got, err := parseEnv(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	_, err := parseEnv("testnet")
	require.Error(t, err)
}

func TestChainParamsForEnv(t *testing.T) {
	require.Equal(t, &chaincfg.MainNetParams, chainParamsForEnv(common.Mainnet))
	require.Equal(t, &chaincfg.TestNet3Params, chainParamsForEnv(common.Stagenet))
	require.Equal(t, &chaincfg.RegressionNetParams, chainParamsForEnv(common.Development))
}

func TestExitForStatus_UnexpectedStatus(t *testing.T) {
	err := exitForStatus(types.ExpectingKeys)
	require.Error(t, err)
}

func TestNewApp_Commands(t *testing.T) {
	app := newApp()
	names := make(map[string]bool)
	for _, cmd := range app.Commands {
		names[cmd.Name] = true
	}
	require.True(t, names["start-alice"])
	require.True(t, names["start-bob"])
	require.True(t, names["resume"])
}
