package service

import (
	"context"
	"log/slog"

	"github.com/sakif/precinct/internal/apperror"
	"github.com/sakif/precinct/internal/model"
	"github.com/sakif/precinct/internal/notify"
	"github.com/sakif/precinct/internal/repository"
)

// ArrestService files and moderates arrest reports.
type ArrestService struct {
	book *recordBook[model.Arrest, *model.Arrest, model.ArrestPatch]
}

func NewArrestService(repo repository.ArrestRepository, sink notify.Sink, logger *slog.Logger) *ArrestService {
	return &ArrestService{book: &recordBook[model.Arrest, *model.Arrest, model.ArrestPatch]{
		kind:   model.KindArrest,
		repo:   repo,
		sink:   sink,
		logger: logger,
		notice: notify.ArrestNotice,
		withRef: func(ref string) model.ArrestPatch {
			return model.ArrestPatch{DiscordMessageID: model.Some(ref)}
		},
	}}
}

// Create validates draft, computes its totals and files it for the viewer.
func (s *ArrestService) Create(ctx context.Context, v Viewer, draft model.Arrest) (*model.Arrest, error) {
	a := draft
	a.RecordMeta = model.RecordMeta{IssuedBy: v.UserID}

	extra := map[string][]string{"officerSignatures": a.OfficerSignatures}
	if err := validateRoster(a.Roster, extra); err != nil {
		return nil, err
	}
	if err := requireText("suspectFirstName", a.SuspectFirstName); err != nil {
		return nil, err
	}
	if err := requireText("suspectLastName", a.SuspectLastName); err != nil {
		return nil, err
	}
	if err := applyTotals(&a.Charges); err != nil {
		return nil, err
	}
	if a.MugshotBase64 != nil && *a.MugshotBase64 == "" {
		a.MugshotBase64 = nil
	}

	if err := s.book.file(ctx, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *ArrestService) Get(ctx context.Context, v Viewer, id string) (*model.Arrest, error) {
	return s.book.get(ctx, v, id)
}

func (s *ArrestService) List(ctx context.Context, v Viewer, all bool) ([]model.Arrest, error) {
	return s.book.list(ctx, v, all)
}

// Adjust applies an admin correction to the jail time, time served flag,
// court details or notes. The warrant flag follows from the new values.
func (s *ArrestService) Adjust(ctx context.Context, id string, patch model.ArrestPatch) (*model.Arrest, error) {
	// the message reference is only ever set by a post
	patch.DiscordMessageID = model.Nullable[string]{}

	if patch.TotalJailTime.Set {
		if patch.TotalJailTime.Value == nil {
			return nil, apperror.ValidationFailed("totalJailTime", "totalJailTime cannot be null")
		}
		if *patch.TotalJailTime.Value < 0 {
			return nil, apperror.ValidationFailed("totalJailTime", "totalJailTime cannot be negative")
		}
	}
	if patch.TimeServed.Set && patch.TimeServed.Value == nil {
		return nil, apperror.ValidationFailed("timeServed", "timeServed cannot be null")
	}

	a, err := s.book.repo.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.book.logger.Info("arrest adjusted",
		slog.String("id", id),
		slog.Int64("totalJailTime", a.TotalJailTime),
		slog.Bool("warrantRequired", a.WarrantRequired()))
	return a, nil
}

func (s *ArrestService) Delete(ctx context.Context, id string) error {
	return s.book.delete(ctx, id)
}

func (s *ArrestService) DeleteAll(ctx context.Context) (BulkDeleteResult, error) {
	return s.book.deleteAll(ctx)
}

func (s *ArrestService) Repost(ctx context.Context, id string) (*model.Arrest, error) {
	return s.book.repost(ctx, id)
}

func (s *ArrestService) Count(ctx context.Context) (int64, error) {
	return s.book.count(ctx)
}
