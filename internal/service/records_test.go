package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sakif/precinct/internal/apperror"
	"github.com/sakif/precinct/internal/model"
	"github.com/sakif/precinct/internal/notify"
)

var errSinkDown = errors.New("discord unreachable")

// =========================================================================
// CREATE
// =========================================================================

func TestCitationCreate_SinkDownStillSaves(t *testing.T) {
	store := newTestStore(t)
	sink := &mockSink{}
	sink.On("Post", mock.Anything, mock.Anything).Return("", errSinkDown)
	svc := NewCitationService(store.Citations(), sink, quietLogger())
	ctx := context.Background()

	c, err := svc.Create(ctx, officer, citationDraft())
	require.NoError(t, err)
	assert.Equal(t, "250.00", c.TotalAmount)
	assert.Equal(t, int64(0), c.TotalJailTime)
	assert.Nil(t, c.DiscordMessageID)
	assert.Equal(t, officer.UserID, c.IssuedBy)

	stored, err := store.Citations().GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "250.00", stored.TotalAmount)

	// no reference, so deleting must not touch the sink
	require.NoError(t, svc.Delete(ctx, c.ID))
	sink.AssertNotCalled(t, "Retract", mock.Anything, mock.Anything, mock.Anything)

	_, err = store.Citations().GetByID(ctx, c.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestCitationCreate_AttachesReference(t *testing.T) {
	store := newTestStore(t)
	sink := &mockSink{}
	sink.On("Post", mock.Anything, mock.MatchedBy(func(n notify.Notice) bool {
		return n.Kind == model.KindCitation && n.Citation != nil && n.Citation.TotalAmount == "250.00"
	})).Return("msg-1", nil).Once()
	sink.On("Retract", mock.Anything, model.KindCitation, "msg-1").Return(nil).Once()
	svc := NewCitationService(store.Citations(), sink, quietLogger())
	ctx := context.Background()

	c, err := svc.Create(ctx, officer, citationDraft())
	require.NoError(t, err)
	require.NotNil(t, c.DiscordMessageID)
	assert.Equal(t, "msg-1", *c.DiscordMessageID)

	require.NoError(t, svc.Delete(ctx, c.ID))
	sink.AssertExpectations(t)
}

func TestCitationCreate_IgnoresClientTotals(t *testing.T) {
	store := newTestStore(t)
	svc := NewCitationService(store.Citations(), notify.Nop{}, quietLogger())

	draft := citationDraft()
	draft.ID = "chosen-by-client"
	draft.PenalCodes = []string{"(1)01", "(2)02"}
	draft.AmountsDue = []string{"$1,000.50", "20"}
	draft.JailTimes = []string{"1 day", "30 min"}
	draft.TotalAmount = "1.00"
	draft.TotalJailTime = 5

	c, err := svc.Create(context.Background(), officer, draft)
	require.NoError(t, err)
	assert.Equal(t, "1020.50", c.TotalAmount)
	assert.Equal(t, int64(86400+1800), c.TotalJailTime)
	assert.NotEqual(t, "chosen-by-client", c.ID)
}

func TestCreate_RejectsBadArraysBeforeAnySideEffect(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*model.Citation)
		wantField string
	}{
		{"no officers", func(c *model.Citation) { c.Roster = model.Roster{} }, "officerBadges"},
		{"too many officers", func(c *model.Citation) {
			c.Roster = model.Roster{
				OfficerBadges:    []string{"1", "2", "3", "4"},
				OfficerUsernames: []string{"a", "b", "c", "d"},
				OfficerRanks:     []string{"", "", "", ""},
				OfficerUserIDs:   []string{"", "", "", ""},
			}
		}, "officerBadges"},
		{"roster mismatch", func(c *model.Citation) { c.OfficerRanks = []string{"a", "b"} }, "officerRanks"},
		{"user ids mismatch", func(c *model.Citation) { c.OfficerUserIDs = nil }, "officerUserIds"},
		{"charges mismatch", func(c *model.Citation) { c.AmountsDue = []string{"1", "2"} }, "penalCodes"},
		{"no charges", func(c *model.Citation) { c.Charges = model.Charges{} }, "penalCodes"},
		{"bad amount", func(c *model.Citation) { c.AmountsDue = []string{"lots"} }, "amountsDue"},
		{"missing violator", func(c *model.Citation) { c.ViolatorLastName = " " }, "violatorLastName"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)
			sink := &mockSink{}
			svc := NewCitationService(store.Citations(), sink, quietLogger())

			draft := citationDraft()
			tt.mutate(&draft)
			_, err := svc.Create(context.Background(), officer, draft)

			var appErr *apperror.AppError
			require.ErrorAs(t, err, &appErr)
			assert.True(t, errors.Is(err, apperror.ErrValidation))
			assert.Equal(t, tt.wantField, appErr.Field)

			sink.AssertNotCalled(t, "Post", mock.Anything, mock.Anything)
			list, err := store.Citations().List(context.Background())
			require.NoError(t, err)
			assert.Empty(t, list)
		})
	}
}

func TestArrestCreate_SignaturesMustMatchRoster(t *testing.T) {
	store := newTestStore(t)
	svc := NewArrestService(store.Arrests(), notify.Nop{}, quietLogger())

	for name, sigs := range map[string][]string{
		"too many": {"one", "two"},
		"missing":  nil,
	} {
		t.Run(name, func(t *testing.T) {
			draft := arrestDraft()
			draft.OfficerSignatures = sigs
			_, err := svc.Create(context.Background(), officer, draft)
			var appErr *apperror.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, "officerSignatures", appErr.Field)
		})
	}
}

func TestCreate_PostTimeoutStillSaves(t *testing.T) {
	store := newTestStore(t)
	sink := &mockSink{}
	sink.On("Post", mock.Anything, mock.Anything).After(500*time.Millisecond).Return("late", nil)
	svc := NewArrestService(store.Arrests(), notify.WithTimeout(sink, 20*time.Millisecond), quietLogger())

	a, err := svc.Create(context.Background(), officer, arrestDraft())
	require.NoError(t, err)
	assert.Nil(t, a.DiscordMessageID)
	assert.Equal(t, int64(600), a.TotalJailTime)
	assert.True(t, a.WarrantRequired())
}

// =========================================================================
// COUNTS
// =========================================================================

func TestCount_ThreeCreatesOneDelete(t *testing.T) {
	store := newTestStore(t)
	svc := NewCitationService(store.Citations(), notify.Nop{}, quietLogger())
	ctx := context.Background()

	var ids []string
	for range 3 {
		c, err := svc.Create(ctx, officer, citationDraft())
		require.NoError(t, err)
		ids = append(ids, c.ID)
	}
	require.NoError(t, svc.Delete(ctx, ids[1]))

	n, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	list, err := svc.List(ctx, officer, false)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestCount_NeverBelowListLength(t *testing.T) {
	store := newTestStore(t)
	svc := NewCitationService(store.Citations(), notify.Nop{}, quietLogger())
	ctx := context.Background()

	var ids []string
	for i := range 6 {
		c, err := svc.Create(ctx, officer, citationDraft())
		require.NoError(t, err)
		ids = append(ids, c.ID)
		if i%2 == 1 {
			require.NoError(t, svc.Delete(ctx, ids[i-1]))
		}

		n, err := svc.Count(ctx)
		require.NoError(t, err)
		list, err := svc.List(ctx, officer, false)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, int64(len(list)))
		assert.Equal(t, int64(i+1), n)
	}
}

// =========================================================================
// DELETE ALL
// =========================================================================

func TestArrestDeleteAll_SinkUnreachable(t *testing.T) {
	store := newTestStore(t)
	sink := &mockSink{}
	sink.On("Post", mock.Anything, mock.Anything).Return("msg-a", nil).Once()
	sink.On("Post", mock.Anything, mock.Anything).Return("msg-b", nil).Once()
	sink.On("Post", mock.Anything, mock.Anything).Return("", errSinkDown)
	sink.On("Retract", mock.Anything, model.KindArrest, mock.Anything).Return(errSinkDown)
	svc := NewArrestService(store.Arrests(), sink, quietLogger())
	ctx := context.Background()

	for range 5 {
		_, err := svc.Create(ctx, officer, arrestDraft())
		require.NoError(t, err)
	}

	res, err := svc.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, BulkDeleteResult{DeletedCount: 5, RetractFailures: 2}, res)

	sink.AssertNumberOfCalls(t, "Retract", 2)
	sink.AssertCalled(t, "Retract", mock.Anything, model.KindArrest, "msg-a")
	sink.AssertCalled(t, "Retract", mock.Anything, model.KindArrest, "msg-b")

	n, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	list, err := svc.List(ctx, chief, true)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDelete_RetractFailureStillDeletes(t *testing.T) {
	store := newTestStore(t)
	sink := &mockSink{}
	sink.On("Post", mock.Anything, mock.Anything).Return("msg-1", nil)
	sink.On("Retract", mock.Anything, model.KindCitation, "msg-1").Return(errSinkDown)
	svc := NewCitationService(store.Citations(), sink, quietLogger())
	ctx := context.Background()

	c, err := svc.Create(ctx, officer, citationDraft())
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, c.ID))

	_, err = svc.Get(ctx, chief, c.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestDelete_NotFound(t *testing.T) {
	store := newTestStore(t)
	svc := NewCitationService(store.Citations(), notify.Nop{}, quietLogger())

	err := svc.Delete(context.Background(), "missing")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

// =========================================================================
// READS
// =========================================================================

func TestList_OwnOrAll(t *testing.T) {
	store := newTestStore(t)
	svc := NewCitationService(store.Citations(), notify.Nop{}, quietLogger())
	ctx := context.Background()

	first, err := svc.Create(ctx, officer, citationDraft())
	require.NoError(t, err)
	_, err = svc.Create(ctx, other, citationDraft())
	require.NoError(t, err)
	second, err := svc.Create(ctx, officer, citationDraft())
	require.NoError(t, err)

	mine, err := svc.List(ctx, officer, false)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, second.ID, mine[0].ID, "newest first")
	assert.Equal(t, first.ID, mine[1].ID)

	all, err := svc.List(ctx, chief, true)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = svc.List(ctx, officer, true)
	assert.True(t, errors.Is(err, apperror.ErrForbidden))
}

func TestGet_OnlyIssuerOrAdmin(t *testing.T) {
	store := newTestStore(t)
	svc := NewCitationService(store.Citations(), notify.Nop{}, quietLogger())
	ctx := context.Background()

	c, err := svc.Create(ctx, officer, citationDraft())
	require.NoError(t, err)

	_, err = svc.Get(ctx, officer, c.ID)
	assert.NoError(t, err)
	_, err = svc.Get(ctx, chief, c.ID)
	assert.NoError(t, err)
	_, err = svc.Get(ctx, other, c.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

// =========================================================================
// REPOST / ADJUST
// =========================================================================

func TestRepost(t *testing.T) {
	store := newTestStore(t)
	sink := &mockSink{}
	sink.On("Post", mock.Anything, mock.Anything).Return("", errSinkDown).Twice()
	sink.On("Post", mock.Anything, mock.MatchedBy(func(n notify.Notice) bool {
		return n.Citation != nil && n.Citation.ID != ""
	})).Return("msg-9", nil).Once()
	svc := NewCitationService(store.Citations(), sink, quietLogger())
	ctx := context.Background()

	c, err := svc.Create(ctx, officer, citationDraft())
	require.NoError(t, err)
	require.Nil(t, c.DiscordMessageID)

	// still down: the caller hears about it this time
	_, err = svc.Repost(ctx, c.ID)
	assert.True(t, errors.Is(err, apperror.ErrUnavailable))

	got, err := svc.Repost(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.DiscordMessageID)
	assert.Equal(t, "msg-9", *got.DiscordMessageID)

	_, err = svc.Repost(ctx, c.ID)
	assert.True(t, errors.Is(err, apperror.ErrConflict))
	sink.AssertExpectations(t)
}

func TestRepost_NotificationsDisabled(t *testing.T) {
	store := newTestStore(t)
	svc := NewArrestService(store.Arrests(), notify.Nop{}, quietLogger())
	ctx := context.Background()

	a, err := svc.Create(ctx, officer, arrestDraft())
	require.NoError(t, err)

	_, err = svc.Repost(ctx, a.ID)
	assert.True(t, errors.Is(err, apperror.ErrUnavailable))
}

func TestArrestAdjust(t *testing.T) {
	store := newTestStore(t)
	svc := NewArrestService(store.Arrests(), notify.Nop{}, quietLogger())
	ctx := context.Background()

	a, err := svc.Create(ctx, officer, arrestDraft())
	require.NoError(t, err)
	require.True(t, a.WarrantRequired())

	got, err := svc.Adjust(ctx, a.ID, model.ArrestPatch{
		TimeServed:       model.Some(true),
		CourtDate:        model.Some("2026-04-01"),
		DiscordMessageID: model.Some("forged"),
	})
	require.NoError(t, err)
	assert.False(t, got.WarrantRequired())
	assert.Equal(t, "2026-04-01", got.CourtDate)
	assert.Equal(t, "Mission Row", got.CourtLocation)
	assert.Nil(t, got.DiscordMessageID, "the message reference cannot be set by hand")

	got, err = svc.Adjust(ctx, a.ID, model.ArrestPatch{
		TimeServed:    model.Some(false),
		TotalJailTime: model.Some(int64(0)),
	})
	require.NoError(t, err)
	assert.False(t, got.WarrantRequired(), "no jail time left means no warrant")

	_, err = svc.Adjust(ctx, a.ID, model.ArrestPatch{TotalJailTime: model.Some(int64(-1))})
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	_, err = svc.Adjust(ctx, "missing", model.ArrestPatch{})
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}
