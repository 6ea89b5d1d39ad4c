package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sakif/precinct/internal/auth"
	"github.com/sakif/precinct/internal/model"
	"github.com/sakif/precinct/internal/notify"
	"github.com/sakif/precinct/internal/repository/jsonfile"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// mockSink records sink calls. Tests program it with On(...).Return(...).
type mockSink struct {
	mock.Mock
}

func (m *mockSink) Post(ctx context.Context, n notify.Notice) (string, error) {
	args := m.Called(ctx, n)
	return args.String(0), args.Error(1)
}

func (m *mockSink) Retract(ctx context.Context, kind model.Kind, ref string) error {
	return m.Called(ctx, kind, ref).Error(0)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// tickingClock returns one second later on every call, so records created
// in a test have distinct, ordered timestamps.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func newTestStore(t *testing.T) *jsonfile.Store {
	t.Helper()
	s, err := jsonfile.Open(t.TempDir(),
		jsonfile.WithLogger(quietLogger()),
		jsonfile.WithClock(tickingClock()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestUserService(t *testing.T, store *jsonfile.Store, cfg UserServiceConfig) *UserService {
	t.Helper()
	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	require.NoError(t, err)
	return NewUserService(store, tokens, auth.NewPasswordServiceForTest(4), cfg, quietLogger())
}

func citationDraft() model.Citation {
	return model.Citation{
		Roster: model.Roster{
			OfficerBadges:    []string{"101"},
			OfficerUsernames: []string{"ada"},
			OfficerRanks:     []string{"Sergeant"},
			OfficerUserIDs:   []string{"999"},
		},
		Charges: model.Charges{
			PenalCodes: []string{"(8)15"},
			AmountsDue: []string{"250.00"},
			JailTimes:  []string{"None"},
		},
		ViolatorFirstName: "John",
		ViolatorLastName:  "Doe",
		ViolatorSignature: "J. Doe",
	}
}

func arrestDraft() model.Arrest {
	c := citationDraft()
	return model.Arrest{
		Roster:            c.Roster,
		Charges:           model.Charges{PenalCodes: []string{"(1)01"}, AmountsDue: []string{"1000"}, JailTimes: []string{"10 min"}},
		OfficerSignatures: []string{"A. Lovelace"},
		SuspectFirstName:  "Jane",
		SuspectLastName:   "Roe",
		CourtLocation:     "Mission Row",
	}
}

var (
	officer = Viewer{UserID: 1}
	other   = Viewer{UserID: 2}
	chief   = Viewer{UserID: 3, IsAdmin: true}
)
