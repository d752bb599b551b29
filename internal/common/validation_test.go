package common

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type ratedInput struct {
	Name string          `validate:"required"`
	Rate decimal.Decimal `validate:"min=0,max=100"`
}

func TestNewValidatorHandlesDecimalRangeTags(t *testing.T) {
	v := NewValidator()

	require.NoError(t, v.Struct(ratedInput{Name: "consult", Rate: decimal.NewFromInt(11)}))
	require.NoError(t, v.Struct(ratedInput{Name: "consult", Rate: decimal.Zero}))

	err := v.Struct(ratedInput{Name: "consult", Rate: decimal.NewFromInt(150)})
	require.Error(t, err)

	err = v.Struct(ratedInput{Name: "consult", Rate: decimal.NewFromInt(-1)})
	require.Error(t, err)
}
