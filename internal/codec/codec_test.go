package codec

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func packUint256(n *big.Int) []byte {
	ty, _ := abi.NewType("uint256", "", nil)
	args := abi.Arguments{{Type: ty}}
	b, err := args.Pack(n)
	if err != nil {
		panic(err)
	}
	return b
}

func packMulti(values ...any) []byte {
	var args abi.Arguments
	var packed []any
	for _, v := range values {
		switch v.(type) {
		case *big.Int:
			ty, _ := abi.NewType("uint256", "", nil)
			args = append(args, abi.Argument{Type: ty})
		case string:
			ty, _ := abi.NewType("string", "", nil)
			args = append(args, abi.Argument{Type: ty})
		default:
			panic("packMulti: unsupported value type")
		}
		packed = append(packed, v)
	}
	b, err := args.Pack(packed...)
	if err != nil {
		panic(err)
	}
	return b
}

func addressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

func TestDecodeCampaignCreated(t *testing.T) {
	factory := common.HexToAddress("0x1111111111111111111111111111111111111111")
	campaign := common.HexToAddress("0x2222222222222222222222222222222222222222")
	creator := common.HexToAddress("0x3333333333333333333333333333333333333333")

	log := types.Log{
		Topics: []common.Hash{
			topic("CampaignCreated(address,address,address,uint256,uint256,string)"),
			addressTopic(factory),
			addressTopic(campaign),
			addressTopic(creator),
		},
		Data: packMulti(big.NewInt(1000), big.NewInt(1999999999), "bafybeigdyr"),
	}

	decoded, err := Decode(log)
	require.NoError(t, err)
	require.Equal(t, CampaignCreated, decoded.Kind)

	factoryArg, ok := decoded.Args.Get("factory")
	require.True(t, ok)
	require.Equal(t, "0x1111111111111111111111111111111111111111", factoryArg)

	goalArg, ok := decoded.Args.Get("goal")
	require.True(t, ok)
	require.Equal(t, big.NewInt(1000), goalArg)

	cidArg, ok := decoded.Args.Get("cid")
	require.True(t, ok)
	require.Equal(t, "bafybeigdyr", cidArg)

	require.Equal(t, []string{"factory", "campaign", "creator", "goal", "deadline", "cid"}, decoded.Args.Names())
}

func TestDecodeUnknownTopic(t *testing.T) {
	log := types.Log{
		Topics: []common.Hash{crypto.Keccak256Hash([]byte("SomethingElse()"))},
	}
	_, err := Decode(log)
	require.ErrorIs(t, err, ErrUnknownTopic)
}

func TestDecodeNoTopics(t *testing.T) {
	_, err := Decode(types.Log{})
	require.ErrorIs(t, err, ErrUnknownTopic)
}

func TestDecodeMissingIndexedTopic(t *testing.T) {
	log := types.Log{
		Topics: []common.Hash{topic("Withdrawn(address,address,uint256,uint256)")},
		Data:   packMulti(big.NewInt(1), big.NewInt(2)),
	}
	_, err := Decode(log)
	require.Error(t, err)
}

func TestAllTopicsOrderAndTopicForKind(t *testing.T) {
	all := AllTopics()
	require.Len(t, all, 4)
	require.Equal(t, TopicForKind(CampaignCreated), all[0])
	require.Equal(t, TopicForKind(DonationReceived), all[1])
	require.Equal(t, TopicForKind(Withdrawn), all[2])
	require.Equal(t, TopicForKind(Refunded), all[3])
	require.Equal(t, common.Hash{}, TopicForKind(Unknown))
}

func TestCanonicalJSONIsDeterministicAcrossReplays(t *testing.T) {
	donor := common.HexToAddress("0x4444444444444444444444444444444444444444")
	campaign := common.HexToAddress("0x5555555555555555555555555555555555555555")

	log := types.Log{
		Topics: []common.Hash{
			topic("DonationReceived(address,address,uint256,uint256,uint256)"),
			addressTopic(campaign),
			addressTopic(donor),
		},
		Data: packMulti(big.NewInt(500), big.NewInt(1500), big.NewInt(1700000000)),
	}

	first, err := Decode(log)
	require.NoError(t, err)
	second, err := Decode(log)
	require.NoError(t, err)

	firstJSON, err := first.Args.CanonicalJSON()
	require.NoError(t, err)
	secondJSON, err := second.Args.CanonicalJSON()
	require.NoError(t, err)
	require.Equal(t, firstJSON, secondJSON)

	m, err := first.Args.StringMap()
	require.NoError(t, err)
	require.Equal(t, "500", m["amount"])
	require.Equal(t, "1500", m["newTotalRaised"])
}
