package bigquerylib

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPartitionID(t *testing.T) {
	assert.Equal(t, "20240114", PartitionID(time.Date(2024, 1, 14, 0, 0, 0, 0, time.UTC)))
}

func TestYesterdayPartitionID(t *testing.T) {
	{
		// Mid-month
		now := time.Date(2024, 1, 15, 3, 30, 0, 0, time.UTC)
		assert.Equal(t, "20240114", YesterdayPartitionID(now))
	}
	{
		// Month boundary
		now := time.Date(2024, 3, 1, 0, 5, 0, 0, time.UTC)
		assert.Equal(t, "20240229", YesterdayPartitionID(now))
	}
	{
		// Year boundary
		now := time.Date(2024, 1, 1, 23, 59, 0, 0, time.UTC)
		assert.Equal(t, "20231231", YesterdayPartitionID(now))
	}
}
