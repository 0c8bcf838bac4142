package round

import (
	"crypto/sha256"
	"strconv"
)

// Shuffle returns the forging order for a round. The seed is the sha256 of
// the decimal round number; each seed drives four swaps and is then hashed
// again. The outer loop step skips one slot after every four swaps, which is
// part of the consensus ordering and must not be "fixed".
func Shuffle(list []string, round uint64) []string {
	out := append([]string(nil), list...)
	n := len(out)
	if n == 0 {
		return out
	}
	seed := sha256.Sum256([]byte(strconv.FormatUint(round, 10)))
	for i := 0; i < n; i++ {
		for x := 0; x < 4 && i < n; i, x = i+1, x+1 {
			j := int(seed[x]) % n
			out[i], out[j] = out[j], out[i]
		}
		seed = sha256.Sum256(seed[:])
	}
	return out
}
