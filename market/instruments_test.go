package market

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveSymbol(t *testing.T) {
	tests := []struct {
		coin    string
		want    string
		wantErr error
	}{
		{"bitcoin", "BTCUSDT", nil},
		{"Ethereum", "ETHUSDT", nil},
		{" solana ", "SOLUSDT", nil},
		{"BNBUSDT", "BNBUSDT", nil},
		{"notacoin", "", ErrDataUnavailable},
		{"", "", ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.coin, func(t *testing.T) {
			got, err := ResolveSymbol(tt.coin)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCoinForSymbol(t *testing.T) {
	coin, ok := CoinForSymbol("DOGEUSDT")
	assert.True(t, ok)
	assert.Equal(t, "dogecoin", coin)

	_, ok = CoinForSymbol("NOPE")
	assert.False(t, ok)
}

func TestValidationError(t *testing.T) {
	err := Invalid("amount", "must be positive, got %v", -1)
	assert.EqualError(t, err, "invalid amount: must be positive, got -1")
	assert.True(t, IsValidation(err))

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "amount", ve.Field)

	assert.False(t, IsValidation(ErrDataUnavailable))
}
