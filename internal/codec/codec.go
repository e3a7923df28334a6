// Package codec decodes raw chain logs into the four known crowdfunding
// events, the way go-ethereum's accounts/abi package unpacks log topics
// and data against an ABI: topic0 selects the event, remaining indexed
// parameters come from topics[1..], non-indexed parameters are ABI
// decoded from Data.
package codec

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// EventKind enumerates the four known events plus a catch-all.
type EventKind string

const (
	CampaignCreated  EventKind = "CampaignCreated"
	DonationReceived EventKind = "DonationReceived"
	Withdrawn        EventKind = "Withdrawn"
	Refunded         EventKind = "Refunded"
	Unknown          EventKind = "Unknown"
)

// descriptor pairs an event kind with its ABI argument list (in
// canonical signature order) and precomputed topic0.
type descriptor struct {
	kind      EventKind
	signature string
	args      abi.Arguments
	topic0    common.Hash
}

func topic(signature string) common.Hash {
	return crypto.Keccak256Hash([]byte(signature))
}

var descriptors = []descriptor{
	{
		kind:      CampaignCreated,
		signature: "CampaignCreated(address,address,address,uint256,uint256,string)",
		args: namedArgs(
			named{"factory", "address", true},
			named{"campaign", "address", true},
			named{"creator", "address", true},
			named{"goal", "uint256", false},
			named{"deadline", "uint256", false},
			named{"cid", "string", false},
		),
	},
	{
		kind:      DonationReceived,
		signature: "DonationReceived(address,address,uint256,uint256,uint256)",
		args: namedArgs(
			named{"campaign", "address", true},
			named{"donor", "address", true},
			named{"amount", "uint256", false},
			named{"newTotalRaised", "uint256", false},
			named{"timestamp", "uint256", false},
		),
	},
	{
		kind:      Withdrawn,
		signature: "Withdrawn(address,address,uint256,uint256)",
		args: namedArgs(
			named{"campaign", "address", true},
			named{"creator", "address", true},
			named{"amount", "uint256", false},
			named{"timestamp", "uint256", false},
		),
	},
	{
		kind:      Refunded,
		signature: "Refunded(address,address,uint256,uint256)",
		args: namedArgs(
			named{"campaign", "address", true},
			named{"donor", "address", true},
			named{"amount", "uint256", false},
			named{"timestamp", "uint256", false},
		),
	},
}

type named struct {
	name    string
	typ     string
	indexed bool
}

func namedArgs(ns ...named) abi.Arguments {
	var out abi.Arguments
	for _, n := range ns {
		ty, err := abi.NewType(n.typ, "", nil)
		if err != nil {
			panic(fmt.Sprintf("codec: bad abi type %q: %v", n.typ, err))
		}
		out = append(out, abi.Argument{Name: n.name, Type: ty, Indexed: n.indexed})
	}
	return out
}

func init() {
	for i := range descriptors {
		descriptors[i].topic0 = topic(descriptors[i].signature)
	}
}

// TopicForKind returns the precomputed topic0 for a known event kind, or
// the zero hash for Unknown.
func TopicForKind(kind EventKind) common.Hash {
	for _, d := range descriptors {
		if d.kind == kind {
			return d.topic0
		}
	}
	return common.Hash{}
}

// AllTopics returns topic0 for every known event, in the fixed order
// CampaignCreated, DonationReceived, Withdrawn, Refunded. The producer
// does not use it: it fetches logs with no topic filter and lets Decode
// pick the event by topic0.
func AllTopics() []common.Hash {
	out := make([]common.Hash, 0, len(descriptors))
	for _, d := range descriptors {
		out = append(out, d.topic0)
	}
	return out
}

// OrderedArgs preserves ABI declaration order for canonical JSON
// rendering; replaying the same log twice must produce byte-identical
// event_data.
type OrderedArgs struct {
	names  []string
	values map[string]any
}

// Get returns a decoded argument by name.
func (a OrderedArgs) Get(name string) (any, bool) {
	v, ok := a.values[name]
	return v, ok
}

// Names returns the argument names in ABI declaration order.
func (a OrderedArgs) Names() []string { return a.names }

// DecodedEvent is the tagged result of decoding one log.
type DecodedEvent struct {
	Kind EventKind
	Args OrderedArgs
}

// ErrUnknownTopic is returned when topic0 doesn't match any known event;
// callers log a debug message and drop the log, per spec.md §4.2.
var ErrUnknownTopic = fmt.Errorf("codec: unknown event topic")

// Decode maps a raw log's topics and data to a DecodedEvent. Addresses
// and hashes are lowercased at decode time so replay is deterministic.
func Decode(log types.Log) (DecodedEvent, error) {
	if len(log.Topics) == 0 {
		return DecodedEvent{}, ErrUnknownTopic
	}
	var d *descriptor
	for i := range descriptors {
		if descriptors[i].topic0 == log.Topics[0] {
			d = &descriptors[i]
			break
		}
	}
	if d == nil {
		return DecodedEvent{}, ErrUnknownTopic
	}

	names := make([]string, 0, len(d.args))
	values := make(map[string]any, len(d.args))

	indexedIdx := 1 // topics[0] is topic0
	var nonIndexed abi.Arguments
	for _, arg := range d.args {
		names = append(names, arg.Name)
		if arg.Indexed {
			if indexedIdx >= len(log.Topics) {
				return DecodedEvent{}, fmt.Errorf("codec: %s missing topic for %s", d.kind, arg.Name)
			}
			values[arg.Name] = decodeIndexed(arg.Type, log.Topics[indexedIdx])
			indexedIdx++
		} else {
			nonIndexed = append(nonIndexed, arg)
		}
	}

	if len(nonIndexed) > 0 {
		unpacked, err := nonIndexed.UnpackValues(log.Data)
		if err != nil {
			return DecodedEvent{}, fmt.Errorf("codec: unpack %s data: %w", d.kind, err)
		}
		for i, arg := range nonIndexed {
			values[arg.Name] = unpacked[i]
		}
	}

	normalizeAddressesAndStrings(values)

	return DecodedEvent{Kind: d.kind, Args: OrderedArgs{names: names, values: values}}, nil
}

func decodeIndexed(ty abi.Type, topic common.Hash) any {
	switch ty.T {
	case abi.AddressTy:
		return common.BytesToAddress(topic.Bytes())
	default:
		return new(big.Int).SetBytes(topic.Bytes())
	}
}

func normalizeAddressesAndStrings(values map[string]any) {
	for k, v := range values {
		switch t := v.(type) {
		case common.Address:
			values[k] = strings.ToLower(t.Hex())
		case common.Hash:
			values[k] = strings.ToLower(t.Hex())
		}
	}
}
