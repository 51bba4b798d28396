package scenario

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// AccountAddress derives the externally owned address used for a named
// scenario actor.
func AccountAddress(name string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("account:" + name))[12:])
}

// ParseAddresses converts string addresses into common.Address.
func ParseAddresses(inputs []string) ([]common.Address, error) {
	addresses := make([]common.Address, 0, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if !common.IsHexAddress(input) {
			return nil, fmt.Errorf("invalid address: %s", input)
		}
		addresses = append(addresses, common.HexToAddress(input))
	}
	return addresses, nil
}

// ParseAmount parses a decimal or 0x-prefixed amount.
func ParseAmount(input string) (*uint256.Int, error) {
	input = strings.TrimSpace(input)
	if strings.HasPrefix(input, "0x") || strings.HasPrefix(input, "0X") {
		v, err := uint256.FromHex(input)
		if err != nil {
			return nil, fmt.Errorf("invalid amount %q: %w", input, err)
		}
		return v, nil
	}
	v, err := uint256.FromDecimal(input)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", input, err)
	}
	return v, nil
}

// Resolver maps scenario references to addresses and code ids.
type Resolver struct {
	labels map[string]common.Address
	codes  map[string]uint64
}

func NewResolver(codes map[string]uint64) *Resolver {
	return &Resolver{labels: make(map[string]common.Address), codes: codes}
}

// Bind associates label with addr, replacing any earlier binding.
func (r *Resolver) Bind(label string, addr common.Address) {
	r.labels[label] = addr
}

// Labels returns a copy of the bound labels.
func (r *Resolver) Labels() map[string]common.Address {
	out := make(map[string]common.Address, len(r.labels))
	for k, v := range r.labels {
		out[k] = v
	}
	return out
}

func (r *Resolver) Code(name string) (uint64, error) {
	id, ok := r.codes[strings.TrimPrefix(name, "#")]
	if !ok {
		return 0, fmt.Errorf("unknown code %q", name)
	}
	return id, nil
}

// Address resolves a hex address or an "@label". Unbound labels name
// scenario actors.
func (r *Resolver) Address(ref string) (common.Address, error) {
	ref = strings.TrimSpace(ref)
	if label, ok := strings.CutPrefix(ref, "@"); ok && label != "" {
		if addr, bound := r.labels[label]; bound {
			return addr, nil
		}
		return AccountAddress(label), nil
	}
	if common.IsHexAddress(ref) {
		return common.HexToAddress(ref), nil
	}
	return common.Address{}, fmt.Errorf("invalid address reference %q", ref)
}

// Expand rewrites references inside a JSON document.
func (r *Resolver) Expand(raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 {
		return raw, nil
	}
	doc, err := decodeJSON(raw)
	if err != nil {
		return nil, err
	}
	expanded, err := r.expand(doc)
	if err != nil {
		return nil, err
	}
	return json.Marshal(expanded)
}

func (r *Resolver) expand(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, child := range t {
			out, err := r.expand(child)
			if err != nil {
				return nil, err
			}
			t[k] = out
		}
		return t, nil
	case []interface{}:
		for i, child := range t {
			out, err := r.expand(child)
			if err != nil {
				return nil, err
			}
			t[i] = out
		}
		return t, nil
	case string:
		switch {
		case strings.HasPrefix(t, "@"):
			addr, err := r.Address(t)
			if err != nil {
				return nil, err
			}
			return addr.Hex(), nil
		case strings.HasPrefix(t, "#"):
			id, err := r.Code(t)
			if err != nil {
				return nil, err
			}
			return json.Number(fmt.Sprint(id)), nil
		}
		return t, nil
	default:
		return v, nil
	}
}

func decodeJSON(raw []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return doc, nil
}

// matches reports whether every field present in want has the same value in
// got. Arrays must match element-wise; strings compare case-insensitively
// and numeric strings compare by value.
func matches(want, got interface{}) bool {
	switch w := want.(type) {
	case map[string]interface{}:
		g, ok := got.(map[string]interface{})
		if !ok {
			return false
		}
		for k, wv := range w {
			gv, ok := g[k]
			if !ok || !matches(wv, gv) {
				return false
			}
		}
		return true
	case []interface{}:
		g, ok := got.([]interface{})
		if !ok || len(g) != len(w) {
			return false
		}
		for i := range w {
			if !matches(w[i], g[i]) {
				return false
			}
		}
		return true
	case nil:
		return got == nil
	default:
		if got == nil {
			return false
		}
		ws, gs := fmt.Sprint(want), fmt.Sprint(got)
		if strings.EqualFold(ws, gs) {
			return true
		}
		wn, werr := ParseAmount(ws)
		gn, gerr := ParseAmount(gs)
		return werr == nil && gerr == nil && wn.Eq(gn)
	}
}
