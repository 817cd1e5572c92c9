package snapshot_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Mj37-com/medallion-warehouse-go/warehouse"
	"github.com/Mj37-com/medallion-warehouse-go/warehouse/snapshot"
)

var productTracked = warehouse.TrackedAttributes{"name", "current_price"}

func Test_Decide_OpensFirstVersions_WhenNothingIsStored(t *testing.T) {
	// arrange
	day1 := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	batch := warehouse.EntityBatch{
		givenProduct(t, "P1", "Walnut Desk", "10"),
		givenProduct(t, "P2", "Desk Lamp", "25"),
	}

	// act
	changes, err := snapshot.Decide(batch, noOpenVersions(), productTracked, snapshot.RejectDuplicates, day1)

	// assert
	assert.NoError(t, err)
	assert.Empty(t, changes.Closes)
	assert.Len(t, changes.Opens, 2)
	assert.Equal(t, 0, changes.Unchanged)
	assertOpenVersion(t, changes.Opens[0], "P1", day1)
	assertOpenVersion(t, changes.Opens[1], "P2", day1)
}

func Test_Decide_ClosesAndOpens_WhenTrackedAttributeChanged(t *testing.T) {
	// arrange - P1 was loaded on day 1 with price 10, arrives on day 2 with price 12
	day1 := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)

	open := givenOpenVersions(t, day1, givenProduct(t, "P1", "Walnut Desk", "10"))
	batch := warehouse.EntityBatch{givenProduct(t, "P1", "Walnut Desk", "12")}

	// act
	changes, err := snapshot.Decide(batch, open, productTracked, snapshot.RejectDuplicates, day2)

	// assert
	assert.NoError(t, err)
	assert.Len(t, changes.Closes, 1)
	assert.Len(t, changes.Opens, 1)
	assert.Equal(t, 0, changes.Unchanged)

	assert.Equal(t, "P1", changes.Closes[0].NaturalKey)
	assert.Equal(t, open["P1"].Fingerprint, changes.Closes[0].ExpectedFingerprint)
	assert.Equal(t, day2, changes.Closes[0].CloseAt)

	assertOpenVersion(t, changes.Opens[0], "P1", day2)
	assert.Equal(t, "12", changes.Opens[0].Attributes["current_price"])
	assert.Equal(t, changes.Closes[0].CloseAt, changes.Opens[0].EffectiveStart,
		"successor start must equal predecessor end, intervals stay contiguous")
}

func Test_Decide_ProducesNoWrites_WhenBatchMatchesStoredState(t *testing.T) {
	// arrange - P1 arrives on day 3 with the same price it already has
	day2 := time.Date(2024, 3, 2, 2, 0, 0, 0, time.UTC)
	day3 := day2.Add(24 * time.Hour)

	open := givenOpenVersions(t, day2, givenProduct(t, "P1", "Walnut Desk", "12"))
	batch := warehouse.EntityBatch{givenProduct(t, "P1", "Walnut Desk", "12")}

	// act
	changes, err := snapshot.Decide(batch, open, productTracked, snapshot.RejectDuplicates, day3)

	// assert
	assert.NoError(t, err)
	assert.True(t, changes.IsEmpty(), "an unchanged batch must produce zero writes")
	assert.Equal(t, 1, changes.Unchanged)
}

func Test_Decide_IgnoresUntrackedAttributeChanges(t *testing.T) {
	// arrange
	day1 := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)

	stored := givenProduct(t, "P1", "Walnut Desk", "10")
	stored.Attributes["restock_note"] = "old note"
	open := givenOpenVersions(t, day1, stored)

	arriving := givenProduct(t, "P1", "Walnut Desk", "10")
	arriving.Attributes["restock_note"] = "new note"

	// act
	changes, err := snapshot.Decide(warehouse.EntityBatch{arriving}, open, productTracked, snapshot.RejectDuplicates, day2)

	// assert
	assert.NoError(t, err)
	assert.True(t, changes.IsEmpty(), "untracked attribute changes must not open versions")
	assert.Equal(t, 1, changes.Unchanged)
}

func Test_Decide_LeavesDisappearedKeysUntouched(t *testing.T) {
	// arrange - P2 is missing from the batch, its open version must survive
	day1 := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)

	open := givenOpenVersions(t, day1,
		givenProduct(t, "P1", "Walnut Desk", "10"),
		givenProduct(t, "P2", "Desk Lamp", "25"),
	)
	batch := warehouse.EntityBatch{givenProduct(t, "P1", "Walnut Desk", "10")}

	// act
	changes, err := snapshot.Decide(batch, open, productTracked, snapshot.RejectDuplicates, day2)

	// assert
	assert.NoError(t, err)
	assert.True(t, changes.IsEmpty())

	for _, versionClose := range changes.Closes {
		assert.NotEqual(t, "P2", versionClose.NaturalKey, "absence from a batch is not a deletion")
	}
}

func Test_Decide_Fails_WhenBatchContainsDuplicateKey(t *testing.T) {
	// arrange
	day1 := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	batch := warehouse.EntityBatch{
		givenProduct(t, "P1", "Walnut Desk", "10"),
		givenProduct(t, "P1", "Walnut Desk", "11"),
	}

	// act
	_, err := snapshot.Decide(batch, noOpenVersions(), productTracked, snapshot.RejectDuplicates, day1)

	// assert
	assert.Error(t, err)
	assert.ErrorIs(t, err, warehouse.ErrDuplicateKeyInBatch)
	assert.ErrorContains(t, err, "P1")
}

func Test_Decide_ResolvesDuplicates_WhenLastSeenWins(t *testing.T) {
	// arrange
	day1 := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	batch := warehouse.EntityBatch{
		givenProduct(t, "P1", "Walnut Desk", "10"),
		givenProduct(t, "P1", "Walnut Desk", "11"),
		givenProduct(t, "P2", "Desk Lamp", "25"),
	}

	// act
	changes, err := snapshot.Decide(batch, noOpenVersions(), productTracked, snapshot.LastSeenWins, day1)

	// assert
	assert.NoError(t, err)
	assert.Len(t, changes.Opens, 2)
	assert.Equal(t, 1, changes.DuplicatesResolved)
	assert.Equal(t, "11", changes.Opens[0].Attributes["current_price"], "the record seen last must win")
	assert.Equal(t, "P2", changes.Opens[1].NaturalKey, "first-seen order must be preserved")
}

func Test_Decide_Fails_WhenTrackedAttributeMissing(t *testing.T) {
	// arrange
	day1 := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	broken, buildErr := warehouse.BuildEntityRecord("P1", map[string]string{"name": "Walnut Desk"})
	assert.NoError(t, buildErr)

	// act
	_, err := snapshot.Decide(warehouse.EntityBatch{broken}, noOpenVersions(), productTracked, snapshot.RejectDuplicates, day1)

	// assert
	assert.Error(t, err)
	assert.ErrorIs(t, err, warehouse.ErrSchemaViolation)
}

func Test_Decide_Fails_WhenRunTimestampDoesNotAdvance(t *testing.T) {
	// arrange - same timestamp as the open version but different content
	day1 := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)

	open := givenOpenVersions(t, day1, givenProduct(t, "P1", "Walnut Desk", "10"))
	batch := warehouse.EntityBatch{givenProduct(t, "P1", "Walnut Desk", "12")}

	// act
	_, err := snapshot.Decide(batch, open, productTracked, snapshot.RejectDuplicates, day1)

	// assert
	assert.Error(t, err)
	assert.ErrorIs(t, err, warehouse.ErrInvariantViolation)
}

func Test_Decide_MixedBatch_ProducesConsistentChangeSet(t *testing.T) {
	// arrange - one new key, one changed key, one unchanged key
	day1 := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)

	open := givenOpenVersions(t, day1,
		givenProduct(t, "P1", "Walnut Desk", "10"),
		givenProduct(t, "P2", "Desk Lamp", "25"),
	)
	batch := warehouse.EntityBatch{
		givenProduct(t, "P1", "Walnut Desk", "12"),
		givenProduct(t, "P2", "Desk Lamp", "25"),
		givenProduct(t, "P3", "Bookshelf", "89"),
	}

	// act
	changes, err := snapshot.Decide(batch, open, productTracked, snapshot.RejectDuplicates, day2)

	// assert
	assert.NoError(t, err)
	assert.Len(t, changes.Closes, 1)
	assert.Len(t, changes.Opens, 2)
	assert.Equal(t, 1, changes.Unchanged)
	assert.Equal(t, "P1", changes.Closes[0].NaturalKey)
}

// Test helper functions with t.Helper() for better error reporting

func givenProduct(t *testing.T, naturalKey, name, price string) warehouse.EntityRecord {
	t.Helper()

	record, err := warehouse.BuildEntityRecord(naturalKey, map[string]string{
		"name":          name,
		"current_price": price,
	})
	assert.NoError(t, err)

	return record
}

func givenOpenVersions(t *testing.T, asOf time.Time, records ...warehouse.EntityRecord) map[string]warehouse.EntityVersion {
	t.Helper()

	open := make(map[string]warehouse.EntityVersion, len(records))
	for _, record := range records {
		fingerprint, err := warehouse.Fingerprint(record, productTracked)
		assert.NoError(t, err)

		open[record.NaturalKey] = warehouse.BuildOpenEntityVersion(record.NaturalKey, record.Attributes, fingerprint, asOf)
	}

	return open
}

func noOpenVersions() map[string]warehouse.EntityVersion {
	return map[string]warehouse.EntityVersion{}
}

func assertOpenVersion(t *testing.T, version warehouse.EntityVersion, naturalKey string, start time.Time) {
	t.Helper()

	assert.Equal(t, naturalKey, version.NaturalKey)
	assert.True(t, version.IsOpen())
	assert.Equal(t, start, version.EffectiveStart)
	assert.NotEmpty(t, version.Fingerprint)
}
