package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asteroid-belt/prepsync/internal/models"
)

// testDB creates a temporary test database.
func testDB(t *testing.T) *DB {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db, err := New(Config{
		Path:        dbPath,
		Debug:       false,
		MaxIdleConn: 1,
		MaxOpenConn: 1,
	})
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Failed to close test database: %v", err)
		}
	})

	return db
}

func TestNew(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "prepsync.db")

	db, err := New(DefaultConfig(dbPath))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "database file was not created")
	assert.Equal(t, dbPath, db.Path())
	assert.False(t, db.InMemory())

	version, err := db.GetSyncMeta(models.SyncMetaSchemaVersion)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, version)
}

func TestNew_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "nested", "dirs", "prepsync.db")

	db, err := New(DefaultConfig(dbPath))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	_, err = os.Stat(filepath.Dir(dbPath))
	assert.NoError(t, err, "nested directories were not created")
}

func TestNew_StorageUnavailable(t *testing.T) {
	tmpDir := t.TempDir()
	blocker := filepath.Join(tmpDir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	_, err := New(DefaultConfig(filepath.Join(blocker, "sub", "prepsync.db")))
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestNewMemory(t *testing.T) {
	db, err := NewMemory()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	assert.True(t, db.InMemory())
	ctx := context.Background()
	require.NoError(t, db.Put(ctx, &models.Record{Collection: models.CollectionQuestions, Key: "q1", Data: "{}"}))
	rec, err := db.Get(ctx, models.CollectionQuestions, "q1")
	require.NoError(t, err)
	assert.NotNil(t, rec)
}

func TestRecordCRUD(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	rec, err := db.Get(ctx, models.CollectionQuestions, "missing")
	require.NoError(t, err)
	assert.Nil(t, rec, "not found is not an error")

	before := time.Now().Add(-time.Second)
	q := &models.Record{
		Collection: models.CollectionQuestions,
		Key:        "two-sum",
		Category:   "arrays",
		Data:       `{"title":"Two Sum"}`,
	}
	require.NoError(t, db.Put(ctx, q))
	assert.True(t, q.LastModified.After(before), "put must stamp lastModified")

	got, err := db.Get(ctx, models.CollectionQuestions, "two-sum")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "arrays", got.Category)

	// Upsert is idempotent on the primary key.
	q.Data = `{"title":"Two Sum II"}`
	require.NoError(t, db.Put(ctx, q))
	require.NoError(t, db.Put(ctx, q))
	all, err := db.GetAll(ctx, models.CollectionQuestions)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, `{"title":"Two Sum II"}`, all[0].Data)

	require.NoError(t, db.Delete(ctx, models.CollectionQuestions, "two-sum"))
	require.NoError(t, db.Delete(ctx, models.CollectionQuestions, "two-sum"))
	got, err = db.Get(ctx, models.CollectionQuestions, "two-sum")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPut_RequiresKey(t *testing.T) {
	db := testDB(t)
	assert.Error(t, db.Put(context.Background(), &models.Record{Collection: models.CollectionQuestions}))
}

func TestFindByIndex(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	for _, r := range []models.Record{
		{Collection: models.CollectionQuestions, Key: "q1", Category: "arrays"},
		{Collection: models.CollectionQuestions, Key: "q2", Category: "graphs"},
		{Collection: models.CollectionQuestions, Key: "q3", Category: "arrays"},
		{Collection: models.CollectionTracks, Key: "t1", TrackName: "go"},
	} {
		rec := r
		require.NoError(t, db.Put(ctx, &rec))
	}

	arrays, err := db.FindByIndex(ctx, models.CollectionQuestions, IndexCategory, "arrays")
	require.NoError(t, err)
	require.Len(t, arrays, 2)
	assert.Equal(t, "q1", arrays[0].Key)
	assert.Equal(t, "q3", arrays[1].Key)

	tracks, err := db.FindByIndex(ctx, models.CollectionTracks, IndexTrackName, "go")
	require.NoError(t, err)
	assert.Len(t, tracks, 1)

	_, err = db.FindByIndex(ctx, models.CollectionTracks, "color", "red")
	assert.Error(t, err)
}

func TestListSince(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	require.NoError(t, db.Put(ctx, &models.Record{Collection: models.CollectionCategories, Key: "arrays"}))

	recent, err := db.ListSince(ctx, models.CollectionCategories, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Len(t, recent, 1)

	future, err := db.ListSince(ctx, models.CollectionCategories, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, future)
}

func TestClearOfflineData(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	doc := models.NewProgressDocument("u1", time.Now())
	require.NoError(t, db.PutProgress(ctx, doc))
	require.NoError(t, db.PutSettings(ctx, models.NewSettingsDocument("u1", time.Now())))
	require.NoError(t, db.Put(ctx, &models.Record{Collection: models.CollectionQuestions, Key: "q1"}))
	require.NoError(t, db.InsertQueueItem(ctx, &models.SyncQueueItem{Type: "progress", MaxAttempts: 3, Timestamp: time.Now()}))

	require.NoError(t, db.ClearOfflineData(ctx))

	got, err := db.GetProgress(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, got)
	count, _, err := db.QueueSummary(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	q, err := db.Get(ctx, models.CollectionQuestions, "q1")
	require.NoError(t, err)
	assert.NotNil(t, q, "content collections survive a clear")
}

func TestProgressRoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	doc := models.NewProgressDocument("u1", time.Now())
	doc.Tracks["go"] = models.TrackProgress{
		CompletedDays: map[int]models.DayCompletion{3: {StudyTime: 600}},
		CurrentDay:    4,
	}
	doc.Statistics.QuestionsStudied = []string{"q1"}
	require.NoError(t, db.PutProgress(ctx, doc))

	got, err := db.GetProgress(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(600), got.Tracks["go"].CompletedDays[3].StudyTime)
	assert.Equal(t, 4, got.Tracks["go"].CurrentDay)
	assert.Equal(t, []string{"q1"}, got.Statistics.QuestionsStudied)

	rec, err := db.Get(ctx, models.CollectionProgress, "user_u1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "u1", rec.UserID)
}

func TestPutProgress_RejectsInvalid(t *testing.T) {
	db := testDB(t)
	err := db.PutProgress(context.Background(), &models.ProgressDocument{})
	assert.ErrorIs(t, err, models.ErrInvalidDocument)
}

func TestGetProgress_Malformed(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	require.NoError(t, db.Put(ctx, &models.Record{
		Collection: models.CollectionProgress,
		Key:        UserKey("u1"),
		Data:       "{not json",
	}))
	_, err := db.GetProgress(ctx, "u1")
	assert.Error(t, err)
}

func TestSettingsRoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	s := models.NewSettingsDocument("u1", time.Now())
	require.NoError(t, s.Set("theme.mode", "dark"))
	require.NoError(t, db.PutSettings(ctx, s))

	got, err := db.GetSettings(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	v, ok := got.Get("theme.mode")
	assert.True(t, ok)
	assert.Equal(t, "dark", v)
}

func TestQueueOrdering(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	base := time.Now()

	items := []models.SyncQueueItem{
		{Type: "a", Priority: 1, Timestamp: base.Add(2 * time.Second), MaxAttempts: 3},
		{Type: "b", Priority: 2, Timestamp: base.Add(3 * time.Second), MaxAttempts: 3},
		{Type: "c", Priority: 1, Timestamp: base.Add(1 * time.Second), MaxAttempts: 3},
	}
	for i := range items {
		require.NoError(t, db.InsertQueueItem(ctx, &items[i]))
		assert.NotZero(t, items[i].ID)
	}

	got, err := db.ListQueueItems(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "b", got[0].Type)
	assert.Equal(t, "c", got[1].Type)
	assert.Equal(t, "a", got[2].Type)

	count, oldest, err := db.QueueSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	assert.True(t, oldest.Equal(items[2].Timestamp), "oldest = %v", oldest)

	got[0].Attempts = 2
	got[0].LastError = "boom"
	require.NoError(t, db.UpdateQueueItem(ctx, &got[0]))
	require.NoError(t, db.DeleteQueueItem(ctx, got[1].ID))

	after, err := db.ListQueueItems(ctx)
	require.NoError(t, err)
	require.Len(t, after, 2)
	assert.Equal(t, 2, after[0].Attempts)
	assert.Equal(t, "boom", after[0].LastError)
}

func TestUpdateQueueItemPersistsMaxAttempts(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	item := &models.SyncQueueItem{Type: "progress", Operation: "question_studied", MaxAttempts: 3, Timestamp: time.Now()}
	require.NoError(t, db.InsertQueueItem(ctx, item))

	item.Attempts = 1
	item.MaxAttempts = 5
	require.NoError(t, db.UpdateQueueItem(ctx, item))

	items, err := db.ListQueueItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Attempts)
	assert.Equal(t, 5, items[0].MaxAttempts)
}

func TestGetOrCreateLocalUserID_Stable(t *testing.T) {
	db := testDB(t)

	first := db.GetOrCreateLocalUserID()
	second := db.GetOrCreateLocalUserID()
	assert.NotEmpty(t, first)
	assert.Equal(t, first, second)
}

func TestGetStats(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	require.NoError(t, db.Put(ctx, &models.Record{Collection: models.CollectionQuestions, Key: "q1"}))
	require.NoError(t, db.Put(ctx, &models.Record{Collection: models.CollectionQuestions, Key: "q2"}))
	require.NoError(t, db.InsertQueueItem(ctx, &models.SyncQueueItem{Type: "progress", MaxAttempts: 3, Timestamp: time.Now()}))

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Records[models.CollectionQuestions])
	assert.Equal(t, int64(1), stats.QueuedItems)
	assert.Positive(t, stats.SizeBytes)
}
