package asset

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tokenAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Asset
	}{
		{"ETH", Native()},
		{"eth", Native()},
		{"native", Native()},
		{"0x0000000000000000000000000000000000000000", Native()},
		{tokenAddr.Hex(), External(tokenAddr)},
		{"  " + tokenAddr.Hex() + " ", External(tokenAddr)},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := Parse("BMR")
	assert.ErrorIs(t, err, ErrInvalidAsset)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Native().Validate())
	assert.NoError(t, External(tokenAddr).Validate())
	assert.ErrorIs(t, External(common.Address{}).Validate(), ErrInvalidAsset)
	assert.ErrorIs(t, Asset{}.Validate(), ErrInvalidAsset)
}

func TestAddressAccessors(t *testing.T) {
	_, ok := Native().Address()
	assert.False(t, ok)
	assert.Equal(t, common.Address{}, Native().WireAddress())

	addr, ok := External(tokenAddr).Address()
	assert.True(t, ok)
	assert.Equal(t, tokenAddr, addr)
	assert.Equal(t, External(tokenAddr), FromWireAddress(tokenAddr))
	assert.Equal(t, Native(), FromWireAddress(common.Address{}))
}

func TestCompare(t *testing.T) {
	other := common.HexToAddress("0x0000000000000000000000000000000000000001")
	assert.Equal(t, -1, Native().Compare(External(other)))
	assert.Equal(t, 1, External(tokenAddr).Compare(External(other)))
	assert.Equal(t, 0, Native().Compare(Native()))
}

func TestJSON(t *testing.T) {
	type cell struct {
		Asset Asset `json:"asset"`
	}
	out, err := json.Marshal(cell{Asset: External(tokenAddr)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"asset":"`+tokenAddr.Hex()+`"}`, string(out))

	var back cell
	require.NoError(t, json.Unmarshal([]byte(`{"asset":"ETH"}`), &back))
	assert.True(t, back.Asset.IsNative())

	_, err = json.Marshal(cell{})
	assert.Error(t, err)
}
