// Package clobbroker is a Broker Operations Port (C7) implementation that
// EIP-712-signs outbound order placements before submitting them to a CLOB
// HTTP API, generalizing the surrounding bot's Polymarket execution client
// to the engine's Broker interface.
package clobbroker

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/algoforge/ordergroup/internal/domain"
)

const (
	chainID       = 137 // Polygon mainnet
	signatureType = 0   // EOA wallet
	usdcDecimals  = 1_000_000
)

// Broker submits signed orders to a CLOB HTTP API and returns order handles
// carrying the ID the API assigns; it keeps no record of placed orders.
type Broker struct {
	baseURL         string
	exchangeAddress string
	privateKey      *ecdsa.PrivateKey
	address         string
	httpClient      *http.Client
	dryRun          bool
}

// New creates a clobbroker.Broker for baseURL/exchangeAddress, signing with
// privateKeyHex (a hex-encoded secp256k1 key, with or without 0x prefix). An
// empty privateKeyHex puts the broker in dry-run mode: orders are assigned a
// synthetic ID and logged, never submitted or signed.
func New(baseURL, exchangeAddress, privateKeyHex string) (*Broker, error) {
	b := &Broker{
		baseURL:         baseURL,
		exchangeAddress: exchangeAddress,
		httpClient:      &http.Client{Timeout: 30 * time.Second},
		dryRun:          privateKeyHex == "",
	}
	if b.dryRun {
		log.Warn().Msg("clobbroker: no private key configured, running in dry-run mode")
		return b, nil
	}

	pkHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := crypto.HexToECDSA(pkHex)
	if err != nil {
		return nil, fmt.Errorf("clobbroker: invalid private key: %w", err)
	}
	b.privateKey = pk
	b.address = crypto.PubkeyToAddress(pk.PublicKey).Hex()

	log.Info().Str("address", b.address).Msg("clobbroker: execution client initialized")
	return b, nil
}

// PlaceOrder signs spec as an EIP-712 order and submits it to the CLOB.
func (b *Broker) PlaceOrder(spec domain.OrderSpec) (*domain.Order, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	if b.dryRun {
		id := domain.OrderID("DRY_" + uuid.New().String())
		log.Info().
			Str("order_id", string(id)).
			Str("side", string(spec.Side)).
			Str("type", string(spec.Type)).
			Str("price", spec.Price.String()).
			Str("volume", spec.Volume.String()).
			Msg("clobbroker: dry-run order placed")
		return &domain.Order{ID: id, Spec: spec, State: domain.OrderActive, Balance: spec.Volume}, nil
	}

	signed, err := b.buildSignedOrder(spec)
	if err != nil {
		return nil, fmt.Errorf("clobbroker: build signed order: %w", err)
	}

	respBody, err := b.post("/order", signedOrderPayload{Order: *signed, Owner: b.address})
	if err != nil {
		return nil, fmt.Errorf("clobbroker: submit order: %w", err)
	}

	var result struct {
		OrderID  string `json:"orderID"`
		ErrorMsg string `json:"errorMsg"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("clobbroker: parse response: %w", err)
	}
	if result.ErrorMsg != "" {
		return nil, fmt.Errorf("clobbroker: API error: %s", result.ErrorMsg)
	}

	log.Info().Str("order_id", result.OrderID).Str("security", spec.Security).Msg("clobbroker: order placed")
	return &domain.Order{ID: domain.OrderID(result.OrderID), Spec: spec, State: domain.OrderActive, Balance: spec.Volume}, nil
}

// CancelOrder requests cancellation of order by its broker-assigned ID.
func (b *Broker) CancelOrder(order *domain.Order) error {
	if b.dryRun {
		log.Info().Str("order_id", string(order.ID)).Msg("clobbroker: dry-run cancel")
		return nil
	}

	_, err := b.delete("/order", map[string]string{"orderID": string(order.ID)})
	if err != nil {
		return fmt.Errorf("clobbroker: cancel order: %w", err)
	}
	log.Info().Str("order_id", string(order.ID)).Msg("clobbroker: order cancelled")
	return nil
}

type signedOrder struct {
	Salt          string `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	Security      string `json:"security"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	Side          string `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

type signedOrderPayload struct {
	Order signedOrder `json:"order"`
	Owner string      `json:"owner"`
}

func (b *Broker) buildSignedOrder(spec domain.OrderSpec) (*signedOrder, error) {
	var makerAmount, takerAmount decimal.Decimal
	scale := decimal.NewFromInt(usdcDecimals)
	if spec.Side == domain.Buy {
		makerAmount = spec.Volume.Mul(spec.Price).Mul(scale).Floor()
		takerAmount = spec.Volume.Mul(scale).Floor()
	} else {
		makerAmount = spec.Volume.Mul(scale).Floor()
		takerAmount = spec.Volume.Mul(spec.Price).Mul(scale).Floor()
	}

	order := &signedOrder{
		Salt:          generateSalt(),
		Maker:         b.address,
		Signer:        b.address,
		Taker:         "0x0000000000000000000000000000000000000000",
		Security:      spec.Security,
		MakerAmount:   makerAmount.String(),
		TakerAmount:   takerAmount.String(),
		Expiration:    "0",
		Nonce:         "0",
		Side:          string(spec.Side),
		SignatureType: signatureType,
	}

	sig, err := b.signOrderEIP712(order)
	if err != nil {
		return nil, err
	}
	order.Signature = sig
	return order, nil
}

func (b *Broker) signOrderEIP712(order *signedOrder) (string, error) {
	domainSeparator := buildDomainSeparator(b.exchangeAddress, chainID)
	orderHash := buildOrderStructHash(order)

	data := append([]byte("\x19\x01"), domainSeparator[:]...)
	data = append(data, orderHash[:]...)
	finalHash := crypto.Keccak256(data)

	sig, err := crypto.Sign(finalHash, b.privateKey)
	if err != nil {
		return "", err
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return hexutil.Encode(sig), nil
}

func buildDomainSeparator(contractAddr string, chainID int) [32]byte {
	domainTypeHash := crypto.Keccak256([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	nameHash := crypto.Keccak256([]byte("OrderGroup Exchange"))
	versionHash := crypto.Keccak256([]byte("1"))
	chainIDBytes := common.LeftPadBytes(big.NewInt(int64(chainID)).Bytes(), 32)
	contractPadded := common.LeftPadBytes(common.HexToAddress(contractAddr).Bytes(), 32)

	var data []byte
	data = append(data, domainTypeHash...)
	data = append(data, nameHash...)
	data = append(data, versionHash...)
	data = append(data, chainIDBytes...)
	data = append(data, contractPadded...)

	hash := crypto.Keccak256(data)
	var result [32]byte
	copy(result[:], hash)
	return result
}

func buildOrderStructHash(order *signedOrder) [32]byte {
	orderTypeHash := crypto.Keccak256([]byte("Order(uint256 salt,address maker,address signer,address taker,uint256 makerAmount,uint256 takerAmount,uint256 expiration,uint256 nonce,uint8 side,uint8 signatureType)"))

	sideVal := 0
	if order.Side == string(domain.Sell) {
		sideVal = 1
	}

	var data []byte
	data = append(data, orderTypeHash...)
	data = append(data, padUint256(order.Salt)...)
	data = append(data, common.LeftPadBytes(common.HexToAddress(order.Maker).Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(common.HexToAddress(order.Signer).Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(common.HexToAddress(order.Taker).Bytes(), 32)...)
	data = append(data, padUint256(order.MakerAmount)...)
	data = append(data, padUint256(order.TakerAmount)...)
	data = append(data, padUint256(order.Expiration)...)
	data = append(data, padUint256(order.Nonce)...)
	data = append(data, common.LeftPadBytes([]byte{byte(sideVal)}, 32)...)
	data = append(data, common.LeftPadBytes([]byte{byte(order.SignatureType)}, 32)...)

	hash := crypto.Keccak256(data)
	var result [32]byte
	copy(result[:], hash)
	return result
}

func padUint256(s string) []byte {
	n := new(big.Int)
	n.SetString(s, 10)
	return common.LeftPadBytes(n.Bytes(), 32)
}

func generateSalt() string {
	b := make([]byte, 32)
	rand.Read(b)
	return new(big.Int).SetBytes(b).String()
}

func (b *Broker) post(path string, body interface{}) ([]byte, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, b.baseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return b.do(req)
}

func (b *Broker) delete(path string, body interface{}) ([]byte, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodDelete, b.baseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return b.do(req)
}

func (b *Broker) do(req *http.Request) ([]byte, error) {
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
