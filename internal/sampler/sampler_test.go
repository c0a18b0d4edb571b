package sampler

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var refDay = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	recs, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return recs
}

func TestGenerate_Shape(t *testing.T) {
	t.Parallel()

	res, err := generate(t.TempDir(), 42, refDay)
	require.NoError(t, err)
	require.Len(t, res.Files, 3)
	assert.Equal(t, SubDir, filepath.Base(res.Dir))

	owners := readCSV(t, filepath.Join(res.Dir, "owners.csv"))
	animals := readCSV(t, filepath.Join(res.Dir, "animals.csv"))
	pets := readCSV(t, filepath.Join(res.Dir, "pets.csv"))

	assert.Equal(t, []string{"id", "name", "zipcode"}, owners[0])
	assert.Len(t, owners, ownerCount+1)
	assert.Equal(t, []string{"id", "type", "subtype"}, animals[0])
	assert.Len(t, animals, animalCount+1)
	assert.Equal(t, []string{"id", "owner_id", "animal_id", "name", "dob"}, pets[0])

	ownerIDs := map[string]int{}
	for _, r := range owners[1:] {
		_, err := uuid.Parse(r[0])
		require.NoError(t, err)
		ownerIDs[r[0]] = 0
	}
	animalIDs := map[string]bool{}
	for _, r := range animals[1:] {
		animalIDs[r[0]] = true
		assert.Contains(t, animalSubtypes[r[1]], r[2])
	}

	oldest := refDay.AddDate(-maxPetAgeYears, 0, -1)
	for _, r := range pets[1:] {
		_, known := ownerIDs[r[1]]
		require.True(t, known, "pet %s has unknown owner", r[0])
		ownerIDs[r[1]]++
		assert.True(t, animalIDs[r[2]])

		dob, err := time.Parse(time.DateOnly, r[4])
		require.NoError(t, err)
		assert.True(t, dob.Before(refDay) && dob.After(oldest), "dob %s", r[4])
	}
	for id, n := range ownerIDs {
		assert.True(t, n >= 1 && n <= maxPetsPerOwner, "owner %s has %d pets", id, n)
	}
	assert.Equal(t, len(pets)-1, res.Files[2].Rows)
}

func TestGenerate_SeedIsDeterministic(t *testing.T) {
	t.Parallel()

	a, err := generate(t.TempDir(), 7, refDay)
	require.NoError(t, err)
	b, err := generate(t.TempDir(), 7, refDay)
	require.NoError(t, err)
	c, err := generate(t.TempDir(), 8, refDay)
	require.NoError(t, err)

	for i := range a.Files {
		ab, err := os.ReadFile(a.Files[i].Path)
		require.NoError(t, err)
		bb, err := os.ReadFile(b.Files[i].Path)
		require.NoError(t, err)
		cb, err := os.ReadFile(c.Files[i].Path)
		require.NoError(t, err)
		assert.Equal(t, ab, bb)
		assert.NotEqual(t, ab, cb)
	}
}
