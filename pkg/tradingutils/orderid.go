package tradingutils

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// clientIDGenerator issues compact client order IDs. Binance caps the client
// order ID at 36 characters; the format below stays under 20.
type clientIDGenerator struct {
	mu       sync.Mutex
	lastSec  int64
	sequence int
}

var globalIDGen = &clientIDGenerator{}

// NewClientOrderID builds an ID of the form {price_int}_{side}_{unix}{seq},
// e.g. "1003000_B_1702468800001". The price is scaled to an integer by the
// price precision so the ID carries no dot.
func NewClientOrderID(price decimal.Decimal, side string, priceDecimals int) string {
	globalIDGen.mu.Lock()
	defer globalIDGen.mu.Unlock()

	priceInt := price.Shift(int32(priceDecimals)).Round(0).IntPart()

	sideCode := "B"
	if side == "SELL" {
		sideCode = "S"
	}

	currentSec := time.Now().Unix()
	if currentSec != globalIDGen.lastSec {
		globalIDGen.lastSec = currentSec
		globalIDGen.sequence = 0
	}
	globalIDGen.sequence++

	return fmt.Sprintf("%d_%s_%d%03d", priceInt, sideCode, currentSec, globalIDGen.sequence%1000)
}

// ParseClientOrderID recovers the price, side, and placement second from an
// ID produced by NewClientOrderID. ok is false for foreign IDs.
func ParseClientOrderID(id string, priceDecimals int) (price decimal.Decimal, side string, placedSec int64, ok bool) {
	parts := strings.Split(id, "_")
	if len(parts) != 3 {
		return decimal.Zero, "", 0, false
	}

	priceInt, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return decimal.Zero, "", 0, false
	}
	price = decimal.NewFromInt(priceInt).Shift(int32(-priceDecimals))

	switch parts[1] {
	case "B":
		side = "BUY"
	case "S":
		side = "SELL"
	default:
		return decimal.Zero, "", 0, false
	}

	if len(parts[2]) < 10 {
		return decimal.Zero, "", 0, false
	}
	placedSec, err = strconv.ParseInt(parts[2][:10], 10, 64)
	if err != nil {
		return decimal.Zero, "", 0, false
	}
	return price, side, placedSec, true
}
