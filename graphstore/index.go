package graphstore

import (
	"math/big"
	"time"
)

// Urbit represents absolute time as an @da atom: 2^64 subsecond ticks, with
// the epoch deep in the past. Graph node indexes are conventionally the
// posting time as an @da, so these constants and conversions live here.
var (
	// daUnixEpoch is ~1970.1.1 as an @da atom.
	daUnixEpoch, _ = new(big.Int).SetString("170141184475152167957503069145530368000", 10)
	// daSecond is ~s1, one second of @da ticks (2^64).
	daSecond = new(big.Int).Lsh(big.NewInt(1), 64)
)

// DaTime converts t to an @da atom.
func DaTime(t time.Time) *big.Int {
	ms := big.NewInt(t.UnixMilli())
	ticks := ms.Mul(ms, daSecond)
	ticks.Div(ticks, big.NewInt(1000))
	return ticks.Add(ticks, daUnixEpoch)
}

// DaIndex returns the conventional graph node index for time t: the @da atom
// in decimal with a leading slash.
func DaIndex(t time.Time) string {
	return "/" + DaTime(t).String()
}
