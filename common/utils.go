// Package common contains shared types and helpers used by the fee estimation
// pipeline and the various commands.
package common

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var Printer = message.NewPrinter(language.English)

func GetEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

// ParseAddress validates a 20-byte hex address and returns it lowercased,
// ready for checksum-insensitive comparison.
func ParseAddress(s string) (string, error) {
	if !ethcommon.IsHexAddress(s) {
		return "", fmt.Errorf("invalid address: %q", s)
	}
	return strings.ToLower(ethcommon.HexToAddress(s).Hex()), nil
}

// WeiToEther converts an amount in wei to a float amount in ether. Estimates
// downstream are float math anyway, so the precision loss is acceptable.
func WeiToEther(wei *big.Int) float64 {
	f, _ := new(big.Float).Quo(
		new(big.Float).SetInt(wei),
		new(big.Float).SetInt(big.NewInt(params.Ether)),
	).Float64()
	return f
}

// ParseWeiString parses a decimal wei string (explorer APIs return these) into
// a big.Int. Invalid input yields zero.
func ParseWeiString(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return new(big.Int)
	}
	return n
}

// DayBucket maps a unix timestamp to its UTC day id, the key used by the
// daily fee index.
func DayBucket(timestamp int64) int64 {
	return timestamp / 86_400
}

func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	var chunks [][]T
	for size < len(items) {
		items, chunks = items[size:], append(chunks, items[:size])
	}
	if len(items) > 0 {
		chunks = append(chunks, items)
	}
	return chunks
}

// Reverse returns a reversed copy. The zk estimator needs oldest-first order
// for batch detection, while explorers return newest-first.
func Reverse[T any](items []T) []T {
	out := make([]T, len(items))
	for i, item := range items {
		out[len(items)-1-i] = item
	}
	return out
}

func TruncateHash(hash string) string {
	if len(hash) <= 12 {
		return hash
	}
	return hash[:6] + "..." + hash[len(hash)-6:]
}
