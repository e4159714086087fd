package fees

import "github.com/holiman/uint256"

// MaxU128 is the largest value representable in 128 bits.
var MaxU128 = new(uint256.Int).SubUint64(new(uint256.Int).Lsh(uint256.NewInt(1), 128), 1)

// SaturateU128 clamps v to MaxU128. The result is always a fresh value.
func SaturateU128(v *uint256.Int) *uint256.Int {
	if v.BitLen() > 128 {
		return new(uint256.Int).Set(MaxU128)
	}
	return new(uint256.Int).Set(v)
}
