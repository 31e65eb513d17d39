package corpus

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hyperjump/skillrank/internal/models"
	"github.com/hyperjump/skillrank/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestLoad_YAML(t *testing.T) {
	c, err := Load(filepath.Join("testdata", "corpus.yaml"))
	require.NoError(t, err)
	require.Len(t, c.Postings, 3)
	require.Len(t, c.Candidates, 4)

	assert.Equal(t, []string{"Java", "Spring Boot", "SQL"}, c.Postings[0].Skills)
	assert.True(t, c.Postings[0].IsEligible(), "eligible defaults to true")
	assert.False(t, c.Postings[2].IsEligible())
	assert.True(t, c.Candidates[1].IsEligible())
	assert.Empty(t, c.Candidates[3].Skills)

	assert.Equal(t, c.Postings, c.Records(models.KindPosting))
	candidates := c.Records(models.KindCandidate)
	require.Len(t, candidates, 4)
	assert.Equal(t, int64(13), candidates[3].ID)
}

func TestParse_JSON(t *testing.T) {
	data := []byte(`{
		"postings": [{"id": 1, "skills": ["Go"]}],
		"candidates": [{"id": 2, "eligible": false, "skills": ["Rust", "C++"]}]
	}`)
	c, err := Parse(data, ".JSON")
	require.NoError(t, err)
	require.Len(t, c.Postings, 1)
	require.Len(t, c.Candidates, 1)
	assert.True(t, c.Postings[0].IsEligible())
	assert.False(t, c.Candidates[0].IsEligible())
	assert.Equal(t, []string{"Rust", "C++"}, c.Candidates[0].Skills)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte("postings:\n  - id: 1\n  - id: 1\n"), ".yaml")
	assert.ErrorContains(t, err, "duplicate posting id 1")

	// The same id under different kinds is fine.
	_, err = Parse([]byte("postings:\n  - id: 1\ncandidates:\n  - id: 1\n"), ".yaml")
	assert.NoError(t, err)

	_, err = Parse([]byte("{not json"), ".json")
	assert.Error(t, err)

	_, err = Parse([]byte("postings: [oops"), ".yaml")
	assert.Error(t, err)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "corpus.csv"))
	assert.ErrorContains(t, err, "unsupported corpus format")

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.xlsx")

	f := excelize.NewFile()
	_, err := f.NewSheet("Postings")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("Postings", "A1", &[]any{"ID", "Skills", "Eligible"}))
	require.NoError(t, f.SetSheetRow("Postings", "A2", &[]any{"1", "Java, Spring Boot; SQL", "yes"}))
	require.NoError(t, f.SetSheetRow("Postings", "A3", &[]any{"2", "Welding", "closed"}))
	require.NoError(t, f.SetSheetRow("Postings", "A4", &[]any{"", "skipped row", ""}))

	_, err = f.NewSheet("candidates")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("candidates", "A1", &[]any{"skills", "id"}))
	require.NoError(t, f.SetSheetRow("candidates", "A2", &[]any{"Python", "10"}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	c, err := Load(path)
	require.NoError(t, err)
	require.Len(t, c.Postings, 2)
	require.Len(t, c.Candidates, 1)

	assert.Equal(t, int64(1), c.Postings[0].ID)
	assert.Equal(t, []string{"Java", "Spring Boot", "SQL"}, c.Postings[0].Skills)
	assert.True(t, c.Postings[0].IsEligible())
	assert.False(t, c.Postings[1].IsEligible())

	assert.Equal(t, int64(10), c.Candidates[0].ID)
	assert.Equal(t, []string{"Python"}, c.Candidates[0].Skills)
	assert.True(t, c.Candidates[0].IsEligible())
}

func TestLoad_XLSXWithoutKnownSheets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "other.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	_, err := Load(path)
	assert.ErrorContains(t, err, "no postings or candidates sheet")
}

func TestParseRows(t *testing.T) {
	_, err := parseRows([][]string{{"name", "skills"}})
	assert.ErrorContains(t, err, "header must name id and skills")

	_, err = parseRows([][]string{{"id", "skills"}, {"x1", "Go"}})
	assert.ErrorContains(t, err, `row 2: invalid id "x1"`)

	_, err = parseRows([][]string{{"id", "skills", "eligible"}, {"1", "Go", "maybe"}})
	assert.ErrorContains(t, err, "invalid eligible value")

	recs, err := parseRows(nil)
	assert.NoError(t, err)
	assert.Nil(t, recs)

	// Short rows read missing cells as empty.
	recs, err = parseRows([][]string{{"id", "skills", "eligible"}, {"3"}})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Empty(t, recs[0].Skills)
	assert.Nil(t, recs[0].Eligible)
}

type notification struct {
	kind     models.Kind
	id       int64
	deleted  bool
	eligible bool
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []notification
}

func (n *fakeNotifier) EntityChanged(_ context.Context, kind models.Kind, id int64, _ []string, eligible bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notification{kind: kind, id: id, eligible: eligible})
	return nil
}

func (n *fakeNotifier) EntityDeleted(kind models.Kind, id int64) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notification{kind: kind, id: id, deleted: true})
	return true
}

func newTestStorage(t *testing.T) storage.Storage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	c, err := Load(filepath.Join("testdata", "corpus.yaml"))
	require.NoError(t, err)

	n := &fakeNotifier{}
	sum, err := Apply(ctx, store, c, ApplyOptions{Notifier: n})
	require.NoError(t, err)
	assert.Equal(t, 7, sum.Created)
	assert.Equal(t, 0, sum.Updated)
	assert.True(t, sum.Touched(models.KindPosting))
	assert.True(t, sum.Touched(models.KindCandidate))
	assert.Len(t, n.events, 7)

	eligible, err := store.CountEligible(ctx, models.KindCandidate)
	require.NoError(t, err)
	assert.Equal(t, int64(3), eligible)

	// Re-applying the same corpus changes nothing.
	n.events = nil
	sum, err = Apply(ctx, store, c, ApplyOptions{Notifier: n})
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Created)
	assert.Equal(t, 7, sum.Unchanged)
	assert.Empty(t, sum.Changed)
	assert.Empty(t, n.events)

	// Change one posting's skills and close one candidate.
	c.Postings[0].Skills = []string{"Kotlin"}
	closed := false
	c.Candidates[0].Eligible = &closed
	n.events = nil
	sum, err = Apply(ctx, store, c, ApplyOptions{Notifier: n})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Updated)
	assert.Equal(t, 5, sum.Unchanged)
	assert.ElementsMatch(t, []notification{
		{kind: models.KindPosting, id: 1, eligible: true},
		{kind: models.KindCandidate, id: 10, eligible: false},
	}, n.events)

	got, err := store.GetEntity(ctx, models.KindPosting, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Kotlin"}, got.Skills)
}

func TestApply_Prune(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	c, err := Load(filepath.Join("testdata", "corpus.yaml"))
	require.NoError(t, err)
	_, err = Apply(ctx, store, c, ApplyOptions{})
	require.NoError(t, err)

	c.Postings = c.Postings[:1]

	// Without Prune, dropped records stay stored.
	sum, err := Apply(ctx, store, c, ApplyOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Deleted)
	count, err := store.CountEntities(ctx, models.KindPosting)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	n := &fakeNotifier{}
	sum, err = Apply(ctx, store, c, ApplyOptions{Prune: true, Notifier: n})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Deleted)
	assert.True(t, sum.Touched(models.KindPosting))
	assert.False(t, sum.Touched(models.KindCandidate))
	assert.ElementsMatch(t, []notification{
		{kind: models.KindPosting, id: 2, deleted: true},
		{kind: models.KindPosting, id: 3, deleted: true},
	}, n.events)

	count, err = store.CountEntities(ctx, models.KindPosting)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestApply_CancelledContext(t *testing.T) {
	store := newTestStorage(t)
	c, err := Parse([]byte("postings:\n  - id: 1\n    skills: [Go]\n"), ".yaml")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Apply(ctx, store, c, ApplyOptions{})
	assert.Error(t, err)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
