package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/precinct/internal/apperror"
	"github.com/sakif/precinct/internal/idgen"
	"github.com/sakif/precinct/internal/model"
)

// =========================================================================
// HELPERS
// =========================================================================

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// openTestStore opens a store in dir and closes it when the test ends.
// Pass "" for a fresh temp directory.
func openTestStore(t *testing.T, dir string, opts ...Option) *Store {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	opts = append([]Option{WithLogger(quietLogger()), WithClock(func() time.Time { return fixedNow })}, opts...)
	s, err := Open(dir, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testCitation(amount string) *model.Citation {
	return &model.Citation{
		Roster: model.Roster{
			OfficerBadges:    []string{"101"},
			OfficerUsernames: []string{"jdoe"},
			OfficerRanks:     []string{"Deputy"},
			OfficerUserIDs:   []string{"1234"},
		},
		Charges: model.Charges{
			PenalCodes:  []string{"PC-1"},
			AmountsDue:  []string{amount},
			JailTimes:   []string{"None"},
			TotalAmount: amount,
		},
		ViolatorFirstName: "Sam",
		ViolatorLastName:  "Stone",
		ViolatorSignature: "S. Stone",
		RecordMeta:        model.RecordMeta{IssuedBy: 1},
	}
}

func createCitation(t *testing.T, s *Store) *model.Citation {
	t.Helper()
	c := testCitation("250.00")
	require.NoError(t, s.Citations().Create(context.Background(), c))
	return c
}

// =========================================================================
// RECORDS
// =========================================================================

func TestCitationCreateAndGet(t *testing.T) {
	s := openTestStore(t, "")
	ctx := context.Background()

	c := createCitation(t, s)
	assert.Len(t, c.ID, 21)
	assert.Equal(t, fixedNow, c.CreatedAt)
	assert.Equal(t, fixedNow, c.UpdatedAt)

	got, err := s.Citations().GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, *c, *got)
}

func TestCitationGetByID_NotFound(t *testing.T) {
	s := openTestStore(t, "")

	_, err := s.Citations().GetByID(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestCitationUpdate_AttachesReference(t *testing.T) {
	s := openTestStore(t, "")
	ctx := context.Background()
	c := createCitation(t, s)

	got, err := s.Citations().Update(ctx, c.ID, model.CitationPatch{
		DiscordMessageID: model.Some("msg-1"),
	})
	require.NoError(t, err)
	require.NotNil(t, got.DiscordMessageID)
	assert.Equal(t, "msg-1", *got.DiscordMessageID)

	// explicit null clears it again
	got, err = s.Citations().Update(ctx, c.ID, model.CitationPatch{
		DiscordMessageID: model.Null[string](),
	})
	require.NoError(t, err)
	assert.Nil(t, got.DiscordMessageID)
}

func TestCount_DeleteDoesNotDecrement(t *testing.T) {
	s := openTestStore(t, "")
	ctx := context.Background()

	a := createCitation(t, s)
	createCitation(t, s)
	createCitation(t, s)

	removed, err := s.Citations().Delete(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, removed.ID)

	n, err := s.Citations().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	list, err := s.Citations().List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestDeleteAll_ResetsCount(t *testing.T) {
	s := openTestStore(t, "")
	ctx := context.Background()

	for range 5 {
		require.NoError(t, s.Arrests().Create(ctx, &model.Arrest{SuspectFirstName: "X"}))
	}

	removed, err := s.Arrests().DeleteAll(ctx)
	require.NoError(t, err)
	assert.Len(t, removed, 5)

	n, err := s.Arrests().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	list, err := s.Arrests().List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestNumericRecordIDs_SkipUsedIDs(t *testing.T) {
	dir := t.TempDir()
	// an older file already holds id "1" but claims the next id is 1
	writeFile(t, dir, "citations.json", `{"citations":[{"id":"1"}],"nextCitationId":1}`)

	s := openTestStore(t, dir, WithRecordIDs(idgen.Numeric))
	c := createCitation(t, s)
	assert.Equal(t, "2", c.ID)
}

// =========================================================================
// PERSISTENCE
// =========================================================================

func TestReopen_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(dir, WithLogger(quietLogger()))
	require.NoError(t, err)

	u := &model.User{Username: "Ada", PasswordHash: "h", BadgeNumber: "7"}
	require.NoError(t, s.Users().Create(ctx, u))
	c := testCitation("99.50")
	require.NoError(t, s.Citations().Create(ctx, c))
	_, err = s.Blocked().Add(ctx, "Mallory")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s2 := openTestStore(t, dir)

	gotUser, err := s2.Users().GetByUsername(ctx, "ada")
	require.NoError(t, err)
	assert.Equal(t, u.ID, gotUser.ID)
	assert.Equal(t, "7", gotUser.BadgeNumber)

	gotCitation, err := s2.Citations().GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "99.50", gotCitation.TotalAmount)
	assert.True(t, gotCitation.CreatedAt.Equal(c.CreatedAt))

	n, err := s2.Citations().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	blocked, err := s2.Blocked().Contains(ctx, "MALLORY")
	require.NoError(t, err)
	assert.True(t, blocked)

	// user ids keep counting after a reopen
	u2 := &model.User{Username: "grace"}
	require.NoError(t, s2.Users().Create(ctx, u2))
	assert.Equal(t, u.ID+1, u2.ID)
}

func TestUsersFileLayout(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t, dir)
	require.NoError(t, s.Users().Create(context.Background(), &model.User{Username: "ada"}))

	var doc struct {
		Users      [][]json.RawMessage `json:"users"`
		NextUserID int64               `json:"nextUserId"`
	}
	data, err := os.ReadFile(filepath.Join(dir, "users.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &doc))

	require.Len(t, doc.Users, 1)
	require.Len(t, doc.Users[0], 2)
	assert.Equal(t, "1", string(doc.Users[0][0]))
	assert.Equal(t, int64(2), doc.NextUserID)
}

func TestCount_FlooredByLiveSize(t *testing.T) {
	dir := t.TempDir()
	// tally says 1 but four citations exist, e.g. after a crash between writes
	writeFile(t, dir, "users.json", `{"users":[],"nextUserId":1,"deletedUsernames":[],"citationCount":1,"arrestCount":0}`)
	writeFile(t, dir, "citations.json", `{"citations":[{"id":"a"},{"id":"b"},{"id":"c"},{"id":"d"}],"nextCitationId":1}`)

	s := openTestStore(t, dir)
	n, err := s.Citations().Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	require.NoError(t, s.Flush(context.Background()))
	data, err := os.ReadFile(filepath.Join(dir, "users.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"citationCount": 4`)
}

func TestOpen_MissingFilesAreEmpty(t *testing.T) {
	s := openTestStore(t, "")
	ctx := context.Background()

	users, err := s.Users().List(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)

	n, err := s.Arrests().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOpen_CorruptFileIsQuarantined(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "arrests.json", `{"arrests": [`)
	writeFile(t, dir, "citations.json", `{"citations":[{"id":"keep"}],"nextCitationId":2}`)

	s := openTestStore(t, dir)
	ctx := context.Background()

	arrests, err := s.Arrests().List(ctx)
	require.NoError(t, err)
	assert.Empty(t, arrests)

	// the good file is untouched
	_, err = s.Citations().GetByID(ctx, "keep")
	require.NoError(t, err)

	matches, err := filepath.Glob(filepath.Join(dir, "arrests.json.corrupt-*"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.True(t, strings.HasSuffix(matches[0], ".corrupt-1772366400"))
}

func TestWriteFailure_RollsBack(t *testing.T) {
	s := openTestStore(t, "")
	ctx := context.Background()
	createCitation(t, s)

	s.writeFile = func(string, []byte, os.FileMode) error { return errors.New("disk full") }

	err := s.Citations().Create(ctx, testCitation("1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	s.writeFile = func(name string, data []byte, perm os.FileMode) error {
		return os.WriteFile(name, data, perm)
	}

	list, err := s.Citations().List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1, "failed create must not stay in memory")

	n, err := s.Citations().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestWriteFailure_RestoresEarlierDocuments(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t, dir)
	ctx := context.Background()
	createCitation(t, s)

	// citations.json succeeds, users.json fails
	s.writeFile = func(name string, data []byte, perm os.FileMode) error {
		if filepath.Base(name) == "users.json" {
			return errors.New("disk full")
		}
		return os.WriteFile(name, data, perm)
	}
	require.Error(t, s.Citations().Create(ctx, testCitation("1")))

	var doc citationsDoc
	data, err := os.ReadFile(filepath.Join(dir, "citations.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Len(t, doc.Citations, 1)
}

func TestOpen_SecondOpenIsLocked(t *testing.T) {
	dir := t.TempDir()
	openTestStore(t, dir)

	_, err := Open(dir, WithLogger(quietLogger()))
	assert.ErrorIs(t, err, ErrLocked)
}

func TestCancelledContext(t *testing.T) {
	s := openTestStore(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Citations().Create(ctx, testCitation("1"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClose_Twice(t *testing.T) {
	s, err := Open(t.TempDir(), WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.NoError(t, s.Close())

	_, err = s.Users().List(context.Background())
	assert.Error(t, err)
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}
