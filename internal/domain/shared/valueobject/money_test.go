package valueobject

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMoney(t *testing.T) {
	t.Run("creates money with amount and currency", func(t *testing.T) {
		m, err := NewMoney(decimal.NewFromInt(1500), KES)
		require.NoError(t, err)
		assert.True(t, m.Amount().Equal(decimal.NewFromInt(1500)))
		assert.Equal(t, KES, m.Currency())
	})

	t.Run("rejects empty currency", func(t *testing.T) {
		_, err := NewMoney(decimal.NewFromInt(100), "")
		assert.Error(t, err)
	})

	t.Run("from string", func(t *testing.T) {
		m, err := NewMoneyFromString("1234.56", USD)
		require.NoError(t, err)
		assert.Equal(t, "1234.56", m.Amount().String())
	})

	t.Run("from invalid string", func(t *testing.T) {
		_, err := NewMoneyFromString("not-a-number", USD)
		assert.Error(t, err)
	})
}

func TestMoneyArithmetic(t *testing.T) {
	a := NewMoneyKES(decimal.NewFromInt(100))
	b := NewMoneyKES(decimal.NewFromInt(40))

	t.Run("add", func(t *testing.T) {
		sum, err := a.Add(b)
		require.NoError(t, err)
		assert.True(t, sum.Amount().Equal(decimal.NewFromInt(140)))
	})

	t.Run("subtract", func(t *testing.T) {
		diff, err := a.Subtract(b)
		require.NoError(t, err)
		assert.True(t, diff.Amount().Equal(decimal.NewFromInt(60)))
	})

	t.Run("mismatched currencies error", func(t *testing.T) {
		usd, _ := NewMoney(decimal.NewFromInt(10), USD)
		_, err := a.Add(usd)
		assert.Error(t, err)
		_, err = a.Subtract(usd)
		assert.Error(t, err)
		_, err = a.LessThan(usd)
		assert.Error(t, err)
	})

	t.Run("immutability", func(t *testing.T) {
		_, err := a.Add(b)
		require.NoError(t, err)
		assert.True(t, a.Amount().Equal(decimal.NewFromInt(100)))
	})

	t.Run("negate and abs", func(t *testing.T) {
		neg := a.Negate()
		assert.True(t, neg.IsNegative())
		assert.True(t, neg.Abs().Equals(a))
	})
}

func TestMoneyComparison(t *testing.T) {
	small := NewMoneyKES(decimal.NewFromInt(5))
	large := NewMoneyKES(decimal.NewFromInt(50))

	lt, err := small.LessThan(large)
	require.NoError(t, err)
	assert.True(t, lt)

	gt, err := large.GreaterThan(small)
	require.NoError(t, err)
	assert.True(t, gt)

	lte, err := small.LessThanOrEqual(NewMoneyKES(decimal.NewFromInt(5)))
	require.NoError(t, err)
	assert.True(t, lte)

	assert.True(t, small.Equals(NewMoneyKES(decimal.NewFromInt(5))))
	assert.False(t, small.Equals(large))
}

func TestMoneyZero(t *testing.T) {
	z := ZeroKES()
	assert.True(t, z.IsZero())
	assert.False(t, z.IsPositive())
	assert.False(t, z.IsNegative())
	assert.Equal(t, KES, z.Currency())
}

func TestMoneyJSON(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		m, _ := NewMoneyFromString("999.99", USD)
		data, err := json.Marshal(m)
		require.NoError(t, err)
		assert.JSONEq(t, `{"amount":"999.99","currency":"USD"}`, string(data))

		var decoded Money
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.True(t, m.Equals(decoded))
	})

	t.Run("missing currency defaults", func(t *testing.T) {
		var decoded Money
		require.NoError(t, json.Unmarshal([]byte(`{"amount":"10"}`), &decoded))
		assert.Equal(t, DefaultCurrency, decoded.Currency())
	})

	t.Run("invalid amount", func(t *testing.T) {
		var decoded Money
		err := json.Unmarshal([]byte(`{"amount":"abc","currency":"KES"}`), &decoded)
		assert.Error(t, err)
	})
}

func TestMoneyString(t *testing.T) {
	m, _ := NewMoneyFromString("1500.5", KES)
	assert.Equal(t, "1500.5 KES", m.String())
}
