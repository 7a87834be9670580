package skills

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/igorsilveira/tokenlens/pkg/a2a"
)

var (
	evmAddressRe    = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	solanaAddressRe = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)
)

type RiskBaselineInput struct {
	TokenAddress string `json:"tokenAddress"`
	Chain        string `json:"chain"`
}

type HealthCheckInput struct {
	TokenAddress string `json:"tokenAddress"`
	Chain        string `json:"chain"`
	DevWallet    string `json:"devWallet,omitempty"`
}

// decodeInput converts a loosely typed payload into one of the input
// structs above.
func decodeInput(raw map[string]any, out any) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("invalid input: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return fmt.Errorf("invalid input: %s must be a %s", typeErr.Field, typeErr.Type)
		}
		return fmt.Errorf("invalid input: %w", err)
	}
	return nil
}

// resolveTarget validates a token address and normalizes its chain. The
// chain is matched case-insensitively; when empty it is inferred from the
// address format.
func resolveTarget(address, chain string) (string, string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", "", errors.New("tokenAddress is required")
	}

	switch strings.ToLower(strings.TrimSpace(chain)) {
	case "base":
		chain = a2a.ChainBase
	case "solana":
		chain = a2a.ChainSolana
	case "":
		switch {
		case evmAddressRe.MatchString(address):
			chain = a2a.ChainBase
		case solanaAddressRe.MatchString(address):
			chain = a2a.ChainSolana
		default:
			return "", "", fmt.Errorf("invalid token address %q", address)
		}
	default:
		return "", "", fmt.Errorf("unsupported chain %q (supported: %s, %s)", chain, a2a.ChainBase, a2a.ChainSolana)
	}

	if !validAddress(address, chain) {
		return "", "", fmt.Errorf("invalid %s token address %q", chain, address)
	}
	return address, chain, nil
}

func validAddress(address, chain string) bool {
	if chain == a2a.ChainBase {
		return evmAddressRe.MatchString(address)
	}
	return solanaAddressRe.MatchString(address)
}
