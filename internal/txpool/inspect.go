package txpool

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	insoTypes "github.com/insoblok/inso-txpool/pkg/types"
)

const creationPrefix = "contract creation"

// InspectSummary is the lightweight view of one pooled transaction. It
// serializes to "<to>: <value> wei + <gas> gas × <gasPrice> wei", with
// "contract creation" in place of a missing recipient.
type InspectSummary struct {
	To       *common.Address
	Value    *big.Int
	Gas      uint64
	GasPrice *big.Int
}

func summarize(tx insoTypes.PoolTransaction) InspectSummary {
	return InspectSummary{
		To:       tx.To(),
		Value:    tx.Value(),
		Gas:      tx.Gas(),
		GasPrice: tx.GasFeeCap(),
	}
}

func (s InspectSummary) String() string {
	target := creationPrefix
	if s.To != nil {
		target = s.To.Hex()
	}
	return fmt.Sprintf("%s: %v wei + %v gas × %v wei", target, s.Value, s.Gas, s.GasPrice)
}

func (s InspectSummary) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *InspectSummary) UnmarshalJSON(input []byte) error {
	var str string
	if err := json.Unmarshal(input, &str); err != nil {
		return err
	}
	target, rest, ok := strings.Cut(str, ": ")
	if !ok {
		return fmt.Errorf("invalid inspect summary %q", str)
	}
	// <value> wei + <gas> gas × <price> wei
	f := strings.Fields(rest)
	if len(f) != 8 || f[1] != "wei" || f[2] != "+" || f[4] != "gas" || f[5] != "×" || f[7] != "wei" {
		return fmt.Errorf("invalid inspect summary %q", str)
	}
	value, price := f[0], f[6]
	gas, err := strconv.ParseUint(f[3], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid inspect gas %q: %w", f[3], err)
	}

	out := InspectSummary{Gas: gas}
	if target != creationPrefix {
		if !common.IsHexAddress(target) {
			return fmt.Errorf("invalid inspect recipient %q", target)
		}
		to := common.HexToAddress(target)
		out.To = &to
	}
	if out.Value, ok = new(big.Int).SetString(value, 10); !ok {
		return fmt.Errorf("invalid inspect value %q", value)
	}
	if out.GasPrice, ok = new(big.Int).SetString(price, 10); !ok {
		return fmt.Errorf("invalid inspect gas price %q", price)
	}
	*s = out
	return nil
}
