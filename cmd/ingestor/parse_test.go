package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/proxima/internal/core/domain"
)

func TestParseCSV(t *testing.T) {
	data := "\ufeffid,name,lat,lng,region,is_online,specialty\n" +
		"cpt-1,Cape Town Clinic,-33.92,18.42,,false,cardiology\n" +
		"nbo-1,Nairobi Telehealth,,,Kenya,true,\n" +
		"bad-1,Junk Coordinates,n/a,,South Africa,0,\n" +
		",No Id,1,2,,true,\n"

	entities, skipped, err := parseCatalog([]byte(data), "csv")
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, entities, 3)

	cpt := entities[0]
	assert.Equal(t, "cpt-1", cpt.ID)
	require.NotNil(t, cpt.ExactLocation)
	assert.Equal(t, "-33.92", cpt.ExactLocation.Lat)
	assert.Equal(t, "18.42", cpt.ExactLocation.Lng)
	assert.False(t, cpt.IsOnline)
	assert.Equal(t, map[string]any{"specialty": "cardiology"}, cpt.Attributes)

	nbo := entities[1]
	assert.Nil(t, nbo.ExactLocation)
	assert.Equal(t, "Kenya", nbo.RegionName)
	assert.True(t, nbo.IsOnline)
	assert.Nil(t, nbo.Attributes)

	bad := entities[2]
	require.NotNil(t, bad.ExactLocation)
	assert.Equal(t, "n/a", bad.ExactLocation.Lat)
	assert.Nil(t, bad.ExactLocation.Lng)
}

func TestParseCSV_RequiresIDColumn(t *testing.T) {
	_, _, err := parseCatalog([]byte("name,lat\nx,1\n"), "csv")
	assert.Error(t, err)
}

func TestParseJSON(t *testing.T) {
	data := `[
		{"id": "a", "name": "A", "exact_location": {"lat": "-33.9", "lng": 18.4}, "is_online": true},
		{"id": "b", "name": "B", "region_name": "Kenya"},
		{"id": "", "name": "nameless id"}
	]`

	entities, skipped, err := parseCatalog([]byte(data), "json")
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, entities, 2)
	assert.Equal(t, &domain.RawPoint{Lat: "-33.9", Lng: 18.4}, entities[0].ExactLocation)
	assert.Equal(t, "Kenya", entities[1].RegionName)
}

func TestParseCatalog_UnknownFormat(t *testing.T) {
	_, _, err := parseCatalog([]byte("x"), "xml")
	assert.Error(t, err)
}
