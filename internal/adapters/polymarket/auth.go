package polymarket

// auth.go: Polymarket CLOB authenticated client.
//
// Implements two-level authentication:
//   L1: EIP-712 signature with wallet private key → derive API credentials
//   L2: HMAC-SHA256 signing of every authenticated request

import (
	"context"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/polymarket/go-order-utils/pkg/builder"
	gomodel "github.com/polymarket/go-order-utils/pkg/model"
	"github.com/shopspring/decimal"
)

const (
	polygonChainID = int64(137)

	// CLOB EIP-712 auth domain
	clobDomainName    = "ClobAuthDomain"
	clobDomainVersion = "1"
	// Message signed for deriving API keys
	clobAuthMessage = "This message attests that I control the given wallet"

	// Taker address; zero address = public order
	zeroAddress = "0x0000000000000000000000000000000000000000"

	// Signature types accepted by the exchange contracts.
	SignatureEOA        = 0
	SignaturePolyProxy  = 1
	SignatureGnosisSafe = 2
)

// apiCredentials holds the CLOB API credentials derived from a wallet.
type apiCredentials struct {
	APIKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// AuthConfig selects the wallet used for signing and funding orders.
type AuthConfig struct {
	PrivateKeyHex string // Polygon private key, with or without 0x
	Funder        string // proxy/safe address holding the funds; empty = signer
	SignatureType int
}

// AuthClient wraps the base Client with L1/L2 auth capabilities.
type AuthClient struct {
	*Client
	privateKey    *ecdsa.PrivateKey
	address       common.Address // signer
	funder        common.Address // maker
	signatureType int
	orderBuilder  builder.ExchangeOrderBuilder

	mu    sync.Mutex
	creds *apiCredentials
}

// NewAuthClient creates an authenticated trading client.
func NewAuthClient(ep Endpoints, cfg AuthConfig) (*AuthClient, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(cfg.PrivateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("auth: invalid private key: %w", err)
	}
	switch cfg.SignatureType {
	case SignatureEOA, SignaturePolyProxy, SignatureGnosisSafe:
	default:
		return nil, fmt.Errorf("auth: unknown signature type %d", cfg.SignatureType)
	}

	addr := crypto.PubkeyToAddress(key.PublicKey)
	funder := addr
	if cfg.Funder != "" {
		if !common.IsHexAddress(cfg.Funder) {
			return nil, fmt.Errorf("auth: invalid funder address %q", cfg.Funder)
		}
		funder = common.HexToAddress(cfg.Funder)
	}

	return &AuthClient{
		Client:        NewClient(ep),
		privateKey:    key,
		address:       addr,
		funder:        funder,
		signatureType: cfg.SignatureType,
		orderBuilder:  builder.NewExchangeOrderBuilderImpl(big.NewInt(polygonChainID), nil),
	}, nil
}

// Address returns the signer address.
func (ac *AuthClient) Address() string {
	return ac.address.Hex()
}

// Funder returns the address that owns positions and collateral.
func (ac *AuthClient) Funder() string {
	return ac.funder.Hex()
}

// EnsureCreds derives API credentials via L1 auth once and caches them.
func (ac *AuthClient) EnsureCreds(ctx context.Context) error {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	if ac.creds != nil {
		return nil
	}

	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig, err := ac.signClobAuth(ts, "0")
	if err != nil {
		return fmt.Errorf("auth: sign l1: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ac.clobBase+"/auth/derive-api-key", nil)
	if err != nil {
		return fmt.Errorf("auth: derive-api-key request: %w", err)
	}
	req.Header.Set("POLY_ADDRESS", ac.address.Hex())
	req.Header.Set("POLY_SIGNATURE", sig)
	req.Header.Set("POLY_TIMESTAMP", ts)
	req.Header.Set("POLY_NONCE", "0")

	resp, err := ac.http.Do(req)
	if err != nil {
		return fmt.Errorf("auth: derive-api-key: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("auth: derive-api-key status %d: %s", resp.StatusCode, body)
	}

	var creds apiCredentials
	if err := json.Unmarshal(body, &creds); err != nil {
		return fmt.Errorf("auth: parse creds: %w", err)
	}
	if creds.APIKey == "" || creds.Secret == "" {
		return fmt.Errorf("auth: derive-api-key returned empty credentials")
	}
	ac.creds = &creds
	return nil
}

func (ac *AuthClient) credentials() (*apiCredentials, error) {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	if ac.creds == nil {
		return nil, fmt.Errorf("auth: credentials not derived yet")
	}
	return ac.creds, nil
}

// EIP-712 type hashes (computed once).
var (
	eip712DomainTypeHash = crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,uint256 chainId)",
	))
	clobAuthTypeHash = crypto.Keccak256Hash([]byte(
		"ClobAuth(address address,string timestamp,uint256 nonce,string message)",
	))
)

// clobAuthDomainSeparator computes the EIP-712 domain separator for ClobAuthDomain.
func clobAuthDomainSeparator() common.Hash {
	var buf []byte
	buf = append(buf, eip712DomainTypeHash.Bytes()...)
	buf = append(buf, crypto.Keccak256Hash([]byte(clobDomainName)).Bytes()...)
	buf = append(buf, crypto.Keccak256Hash([]byte(clobDomainVersion)).Bytes()...)
	buf = append(buf, common.LeftPadBytes(big.NewInt(polygonChainID).Bytes(), 32)...)
	return crypto.Keccak256Hash(buf)
}

// signClobAuth signs the ClobAuth EIP-712 typed data for L1 auth.
func (ac *AuthClient) signClobAuth(timestamp, nonce string) (string, error) {
	nonceInt, ok := new(big.Int).SetString(nonce, 10)
	if !ok {
		return "", fmt.Errorf("invalid nonce: %s", nonce)
	}

	var structBuf []byte
	structBuf = append(structBuf, clobAuthTypeHash.Bytes()...)
	structBuf = append(structBuf, common.LeftPadBytes(ac.address.Bytes(), 32)...)
	structBuf = append(structBuf, crypto.Keccak256Hash([]byte(timestamp)).Bytes()...)
	structBuf = append(structBuf, common.LeftPadBytes(nonceInt.Bytes(), 32)...)
	structBuf = append(structBuf, crypto.Keccak256Hash([]byte(clobAuthMessage)).Bytes()...)
	structHash := crypto.Keccak256Hash(structBuf)

	var rawBuf []byte
	rawBuf = append(rawBuf, 0x19, 0x01)
	rawBuf = append(rawBuf, clobAuthDomainSeparator().Bytes()...)
	rawBuf = append(rawBuf, structHash.Bytes()...)
	msgHash := crypto.Keccak256Hash(rawBuf)

	sig, err := crypto.Sign(msgHash.Bytes(), ac.privateKey)
	if err != nil {
		return "", err
	}
	sig[64] += 27
	return "0x" + fmt.Sprintf("%x", sig), nil
}

// l2Headers returns the authenticated headers for L2 API calls.
// path excludes the query string.
func (ac *AuthClient) l2Headers(method, path, body string) (map[string]string, error) {
	creds, err := ac.credentials()
	if err != nil {
		return nil, err
	}

	ts := strconv.FormatInt(time.Now().Unix(), 10)
	msg := ts + strings.ToUpper(method) + path + body

	secretBytes, err := base64.URLEncoding.DecodeString(creds.Secret)
	if err != nil {
		return nil, fmt.Errorf("auth: decode secret: %w", err)
	}

	mac := hmac.New(sha256.New, secretBytes)
	mac.Write([]byte(msg))
	sig := base64.URLEncoding.EncodeToString(mac.Sum(nil))

	return map[string]string{
		"POLY_ADDRESS":    ac.address.Hex(),
		"POLY_SIGNATURE":  sig,
		"POLY_TIMESTAMP":  ts,
		"POLY_API_KEY":    creds.APIKey,
		"POLY_PASSPHRASE": creds.Passphrase,
	}, nil
}

// doL2 executes an authenticated L2 HTTP request with rate limiting.
// HMAC headers are regenerated on every attempt so the timestamp stays fresh.
// POST is never retried: a 5xx may still have created the order.
func (ac *AuthClient) doL2(ctx context.Context, method, path string, query url.Values, reqBody, out any) error {
	var bodyStr string
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		bodyStr = string(b)
	}

	fullURL := ac.clobBase + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}
	policy := ac.retry
	if method == http.MethodPost {
		policy = ac.noRetry
	}

	respBody, err := ac.do(ctx, ac.clobLimiter, policy, func() (*http.Request, error) {
		headers, err := ac.l2Headers(method, path, bodyStr)
		if err != nil {
			return nil, err
		}
		var bodyReader io.Reader
		if bodyStr != "" {
			bodyReader = strings.NewReader(bodyStr)
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		return req, nil
	})
	if err != nil {
		return err
	}
	return decodeBody(respBody, out)
}

// buildSignedOrder creates an EIP-712 signed BUY order.
// price must sit on the tick grid; shares are truncated to 2 decimals.
func (ac *AuthClient) buildSignedOrder(tokenID string, price, shares, tick decimal.Decimal, negRisk bool, feeRateBps int) (*gomodel.SignedOrder, error) {
	makerAmount, takerAmount, err := orderAmounts(price, shares, tick)
	if err != nil {
		return nil, err
	}

	verifyingContract := gomodel.CTFExchange
	if negRisk {
		verifyingContract = gomodel.NegRiskCTFExchange
	}

	orderData := &gomodel.OrderData{
		Maker:         ac.funder.Hex(),
		Taker:         zeroAddress,
		TokenId:       tokenID,
		MakerAmount:   makerAmount.String(),
		TakerAmount:   takerAmount.String(),
		FeeRateBps:    strconv.Itoa(feeRateBps),
		Nonce:         "0",
		Signer:        ac.address.Hex(),
		Expiration:    "0",
		Side:          gomodel.BUY,
		SignatureType: gomodel.SignatureType(ac.signatureType),
	}

	signed, err := ac.orderBuilder.BuildSignedOrder(ac.privateKey, orderData, verifyingContract)
	if err != nil {
		return nil, fmt.Errorf("build signed order: %w", err)
	}
	return signed, nil
}

// orderAmounts converts a BUY of shares at price into on-chain units (6 decimals).
// The exchange checks makerAmount == price × takerAmount exactly, so shares are
// truncated to cents first and the product is computed in decimal.
func orderAmounts(price, shares, tick decimal.Decimal) (maker, taker *big.Int, err error) {
	if !tick.IsPositive() {
		return nil, nil, fmt.Errorf("invalid tick size %s", tick)
	}
	if !price.IsPositive() || price.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, nil, fmt.Errorf("price %s out of range", price)
	}
	if !price.Mod(tick).IsZero() {
		return nil, nil, fmt.Errorf("price %s not on tick %s", price, tick)
	}

	sharesCents := shares.Truncate(2)
	if !sharesCents.IsPositive() {
		return nil, nil, fmt.Errorf("invalid amounts: shares=%s", shares)
	}

	taker = sharesCents.Shift(6).BigInt()
	maker = sharesCents.Mul(price).Shift(6).BigInt()
	if maker.Sign() <= 0 {
		return nil, nil, fmt.Errorf("invalid amounts: maker=%s taker=%s", maker, taker)
	}
	return maker, taker, nil
}
