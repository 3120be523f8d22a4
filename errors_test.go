package sqlkit

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAggregate(t *testing.T) {
	assert.NoError(t, aggregate(nil))

	one := errors.New("one")
	assert.Same(t, one, aggregate([]error{one}))

	two := errors.New("two")
	err := aggregate([]error{one, two})
	var agg *AggregateError
	assert.ErrorAs(t, err, &agg)
	assert.Len(t, agg.Errors, 2)
	assert.True(t, errors.Is(err, two))
	assert.Equal(t, "sqlkit: multiple errors:\n  [1] one\n  [2] two", err.Error())
}
