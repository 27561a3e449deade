package onchain

// allowance.go: preflight on-chain de colateral para órdenes BUY.
//
// Un BUY en el CLOB transfiere USDC.e desde la cuenta que fondea hacia el
// exchange, así que el exchange necesita allowance ERC20 sobre esa cuenta.
// Check solo lee. Ensure además envía approve(max) cuando el firmante es el
// dueño de los fondos (EOA); para proxy y safe la aprobación se hace fuera.

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
)

const (
	polygonChainID = int64(137)

	// USDC.e collateral on Polygon
	usdcEAddress = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"

	// Exchange contracts that pull collateral on BUY fills
	normalExchange  = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"
	negRiskExchange = "0xC5d563A36AE78145C45a50134d48A1215220f80a"

	approvalGasLimit = uint64(80_000)
	usdcDecimals     = 6
)

// Exchanges lista los spenders que deben tener allowance.
var Exchanges = []string{normalExchange, negRiskExchange}

var erc20ABI abi.ABI

func init() {
	var err error
	erc20ABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "approve",
			"type": "function",
			"inputs": [
				{"name": "spender", "type": "address"},
				{"name": "amount", "type": "uint256"}
			],
			"outputs": [{"name": "", "type": "bool"}]
		},
		{
			"name": "allowance",
			"type": "function",
			"inputs": [
				{"name": "owner", "type": "address"},
				{"name": "spender", "type": "address"}
			],
			"outputs": [{"name": "", "type": "uint256"}]
		}
	]`))
	if err != nil {
		panic("erc20 abi parse: " + err.Error())
	}
}

// Shortfall es un spender sin allowance suficiente.
type Shortfall struct {
	Spender   string
	Allowance decimal.Decimal // USDC
}

// Allowances verifica (y opcionalmente fija) el allowance USDC.e del dueño de
// los fondos hacia los exchanges.
type Allowances struct {
	client *ethclient.Client
	owner  common.Address
	signer *ecdsa.PrivateKey // nil = solo lectura
	wait   time.Duration
}

// NewAllowances conecta al RPC. signer solo se usa si su dirección es owner.
func NewAllowances(rpcURL, owner string, signer *ecdsa.PrivateKey) (*Allowances, error) {
	if !common.IsHexAddress(owner) {
		return nil, fmt.Errorf("onchain.NewAllowances: invalid owner %q", owner)
	}
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("onchain.NewAllowances: dial rpc: %w", err)
	}
	a := &Allowances{client: client, owner: common.HexToAddress(owner), wait: 3 * time.Second}
	if signer != nil && crypto.PubkeyToAddress(signer.PublicKey) == a.owner {
		a.signer = signer
	}
	return a, nil
}

// Check devuelve los exchanges cuyo allowance está por debajo de floor USDC.
func (a *Allowances) Check(ctx context.Context, floor decimal.Decimal) ([]Shortfall, error) {
	var out []Shortfall
	for _, ex := range Exchanges {
		raw, err := a.allowance(ctx, common.HexToAddress(ex))
		if err != nil {
			return nil, fmt.Errorf("onchain.Check: allowance for %s: %w", ex, err)
		}
		got := decimal.NewFromBigInt(raw, -usdcDecimals)
		if got.LessThan(floor) {
			out = append(out, Shortfall{Spender: ex, Allowance: got})
			continue
		}
		slog.Debug("onchain: USDC.e allowance sufficient", "exchange", ex, "allowance", got.StringFixed(2))
	}
	return out, nil
}

// Ensure fija approve(max) en cada exchange con allowance insuficiente.
// Sin firmante propio devuelve error listando lo que falta.
func (a *Allowances) Ensure(ctx context.Context, floor decimal.Decimal) error {
	missing, err := a.Check(ctx, floor)
	if err != nil {
		return err
	}
	if len(missing) == 0 {
		return nil
	}
	if a.signer == nil {
		names := make([]string, len(missing))
		for i, m := range missing {
			names[i] = m.Spender
		}
		return fmt.Errorf("onchain.Ensure: USDC.e allowance below $%s for %s; approve from the funding wallet",
			floor.StringFixed(2), strings.Join(names, ", "))
	}

	maxUint256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	for _, m := range missing {
		slog.Info("onchain: setting USDC.e approval", "exchange", m.Spender)
		if err := a.approve(ctx, common.HexToAddress(m.Spender), maxUint256); err != nil {
			return fmt.Errorf("onchain.Ensure: approve %s: %w", m.Spender, err)
		}
		slog.Info("onchain: USDC.e approval set", "exchange", m.Spender)
	}
	return nil
}

// Close libera la conexión RPC.
func (a *Allowances) Close() {
	a.client.Close()
}

func (a *Allowances) allowance(ctx context.Context, spender common.Address) (*big.Int, error) {
	callData, err := erc20ABI.Pack("allowance", a.owner, spender)
	if err != nil {
		return nil, err
	}

	token := common.HexToAddress(usdcEAddress)
	result, err := a.client.CallContract(ctx, ethereum.CallMsg{
		To:   &token,
		Data: callData,
	}, nil)
	if err != nil {
		return nil, err
	}

	vals, err := erc20ABI.Unpack("allowance", result)
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("empty allowance result")
	}
	v, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected allowance type %T", vals[0])
	}
	return v, nil
}

func (a *Allowances) approve(ctx context.Context, spender common.Address, amount *big.Int) error {
	callData, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return err
	}

	nonce, err := a.client.PendingNonceAt(ctx, a.owner)
	if err != nil {
		return fmt.Errorf("nonce: %w", err)
	}
	gasPrice, err := a.client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("gas price: %w", err)
	}
	// +10% para entrar antes
	gasPrice = new(big.Int).Div(new(big.Int).Mul(gasPrice, big.NewInt(11)), big.NewInt(10))

	token := common.HexToAddress(usdcEAddress)
	tx := types.NewTransaction(nonce, token, big.NewInt(0), approvalGasLimit, gasPrice, callData)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(big.NewInt(polygonChainID)), a.signer)
	if err != nil {
		return fmt.Errorf("sign: %w", err)
	}
	if err := a.client.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	receiptCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	receipt, err := a.waitForReceipt(receiptCtx, signed.Hash())
	if err != nil {
		return fmt.Errorf("wait receipt %s: %w", signed.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("approve tx %s reverted", signed.Hash().Hex())
	}
	return nil
}

// waitForReceipt hace polling del recibo hasta confirmarse o cancelar el ctx.
func (a *Allowances) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(a.wait)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			receipt, err := a.client.TransactionReceipt(ctx, txHash)
			if err != nil {
				continue // todavía no minada
			}
			return receipt, nil
		}
	}
}
