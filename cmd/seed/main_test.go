package main

import (
	"encoding/json"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking-engine/internal/directory"
)

func TestGeneratedCatalogLoads(t *testing.T) {
	file := generateCatalog(gofakeit.New(42), 30)
	require.Len(t, file.Doctors, 30)

	data, err := json.Marshal(file)
	require.NoError(t, err)

	dir, err := directory.Parse(data)
	require.NoError(t, err)
	assert.Equal(t, 30, dir.Len())

	for _, rec := range file.Doctors {
		assert.Greater(t, rec.Fees.InPerson, 0, rec.ID)
		assert.GreaterOrEqual(t, rec.Fees.Online, 0, rec.ID)
		assert.NotEmpty(t, rec.WeeklySchedule, rec.ID)
	}
	for condition, ids := range file.ConditionMap {
		for _, id := range ids {
			_, err := dir.Get(id)
			assert.NoError(t, err, "%s -> %s", condition, id)
		}
	}
}
