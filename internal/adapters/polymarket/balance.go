package polymarket

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
)

const usdcEAddress = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"

var balanceOfABI abi.ABI

func init() {
	var err error
	balanceOfABI, err = abi.JSON(strings.NewReader(`[{
		"name":"balanceOf","type":"function",
		"inputs":[{"name":"account","type":"address"}],
		"outputs":[{"name":"","type":"uint256"}]
	}]`))
	if err != nil {
		panic("balanceOf abi: " + err.Error())
	}
}

// ChainReader lee el colateral on-chain de la cuenta que fondea las órdenes.
type ChainReader struct {
	rpc   *ethclient.Client
	owner common.Address
}

// NewChainReader conecta al RPC de Polygon.
func NewChainReader(rpcURL, owner string) (*ChainReader, error) {
	if !common.IsHexAddress(owner) {
		return nil, fmt.Errorf("polymarket.NewChainReader: invalid owner %q", owner)
	}
	rpc, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("polymarket.NewChainReader: dial rpc: %w", err)
	}
	return &ChainReader{rpc: rpc, owner: common.HexToAddress(owner)}, nil
}

// USDCBalance devuelve el saldo USDC.e en unidades de dólar.
func (r *ChainReader) USDCBalance(ctx context.Context) (decimal.Decimal, error) {
	callData, err := balanceOfABI.Pack("balanceOf", r.owner)
	if err != nil {
		return decimal.Zero, fmt.Errorf("polymarket.USDCBalance: pack: %w", err)
	}

	token := common.HexToAddress(usdcEAddress)
	result, err := r.rpc.CallContract(ctx, ethereum.CallMsg{
		To:   &token,
		Data: callData,
	}, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("polymarket.USDCBalance: rpc call: %w", err)
	}

	vals, err := balanceOfABI.Unpack("balanceOf", result)
	if err != nil || len(vals) == 0 {
		return decimal.Zero, fmt.Errorf("polymarket.USDCBalance: unpack: %w", err)
	}
	raw, ok := vals[0].(*big.Int)
	if !ok {
		return decimal.Zero, fmt.Errorf("polymarket.USDCBalance: unexpected type %T", vals[0])
	}
	return decimal.NewFromBigInt(raw, -6), nil
}

// Close libera la conexión RPC.
func (r *ChainReader) Close() {
	r.rpc.Close()
}
