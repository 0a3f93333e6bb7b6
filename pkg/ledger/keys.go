package ledger

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Pebble key schema. Every entity lives at a key that is a pure function of a
// fixed label plus its natural identifiers, so lookups need no index:
//
//	pool                     singleton registry
//	vault                    custodial collateral balance (big-endian uint64)
//	sym:{symbol}             symbol registry entry
//	escrow:{symbol}          escrowed shares (big-endian uint64)
//	acc:{address}            user account
//	buy:{address}:{id}       buy order
//	sell:{address}:{id}      sell order
//	evt:{seq}                audit event, seq zero-padded for replay ordering
const (
	keyPool      = "pool"
	keyVault     = "vault"
	prefixSymbol = "sym:"
	prefixEscrow = "escrow:"
	prefixAcct   = "acc:"
	prefixBuy    = "buy:"
	prefixSell   = "sell:"
	prefixEvent  = "evt:"
)

func symbolKey(symbol string) []byte {
	return []byte(prefixSymbol + symbol)
}

func escrowKey(symbol string) []byte {
	return []byte(prefixEscrow + symbol)
}

func accountKey(addr common.Address) []byte {
	return []byte(prefixAcct + addr.Hex())
}

// Order ids are zero-padded so per-user range scans come back in placement order.
func buyOrderKey(user common.Address, id uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", prefixBuy, user.Hex(), id))
}

func sellOrderKey(user common.Address, id uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", prefixSell, user.Hex(), id))
}

func eventKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixEvent, seq))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}

// DeriveAddress computes the deterministic address of an entity from a fixed
// label and its natural key parts: keccak256(label || part...)[12:]. The same
// tuple always maps to the same address, so clients can locate any entity from
// public identifiers alone.
func DeriveAddress(label string, parts ...[]byte) common.Address {
	data := []byte(label)
	for _, p := range parts {
		data = append(data, p...)
	}
	return common.BytesToAddress(crypto.Keccak256(data)[12:])
}

// PoolAddress is the derived address of the singleton pool registry.
func PoolAddress() common.Address {
	return DeriveAddress("trading_pool")
}

// VaultAddress is the derived address of the custodial collateral vault.
func VaultAddress() common.Address {
	return DeriveAddress("trading_pool_vault")
}

// SymbolAddress derives the registry address for a traded symbol.
func SymbolAddress(symbol string) common.Address {
	return DeriveAddress("stock_mint_info", []byte(symbol))
}

// EscrowAddress derives the share escrow address for a traded symbol.
func EscrowAddress(symbol string) common.Address {
	return DeriveAddress("escrow", []byte(symbol))
}

// BuyOrderAddress derives a buy order's address from its owner and id.
func BuyOrderAddress(user common.Address, id uint64) common.Address {
	return DeriveAddress("buy_order", user.Bytes(), orderIDBytes(id))
}

// SellOrderAddress derives a sell order's address from its owner and id.
func SellOrderAddress(user common.Address, id uint64) common.Address {
	return DeriveAddress("sell_order", user.Bytes(), orderIDBytes(id))
}

func orderIDBytes(id uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], id)
	return b[:]
}
