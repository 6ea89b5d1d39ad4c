package service

import (
	"context"
	"log/slog"

	"github.com/sakif/precinct/internal/model"
	"github.com/sakif/precinct/internal/notify"
	"github.com/sakif/precinct/internal/repository"
)

// CitationService files and moderates citations.
type CitationService struct {
	book *recordBook[model.Citation, *model.Citation, model.CitationPatch]
}

func NewCitationService(repo repository.CitationRepository, sink notify.Sink, logger *slog.Logger) *CitationService {
	return &CitationService{book: &recordBook[model.Citation, *model.Citation, model.CitationPatch]{
		kind:   model.KindCitation,
		repo:   repo,
		sink:   sink,
		logger: logger,
		notice: notify.CitationNotice,
		withRef: func(ref string) model.CitationPatch {
			return model.CitationPatch{DiscordMessageID: model.Some(ref)}
		},
	}}
}

// Create validates draft, computes its totals and files it for the viewer.
// Any id, totals or message reference on draft are ignored.
func (s *CitationService) Create(ctx context.Context, v Viewer, draft model.Citation) (*model.Citation, error) {
	c := draft
	c.RecordMeta = model.RecordMeta{IssuedBy: v.UserID}

	if err := validateRoster(c.Roster, nil); err != nil {
		return nil, err
	}
	if err := requireText("violatorFirstName", c.ViolatorFirstName); err != nil {
		return nil, err
	}
	if err := requireText("violatorLastName", c.ViolatorLastName); err != nil {
		return nil, err
	}
	if err := applyTotals(&c.Charges); err != nil {
		return nil, err
	}

	if err := s.book.file(ctx, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *CitationService) Get(ctx context.Context, v Viewer, id string) (*model.Citation, error) {
	return s.book.get(ctx, v, id)
}

// List returns the viewer's citations, or all of them for an admin asking
// for all, newest first.
func (s *CitationService) List(ctx context.Context, v Viewer, all bool) ([]model.Citation, error) {
	return s.book.list(ctx, v, all)
}

// Delete removes a citation and retracts its Discord post.
func (s *CitationService) Delete(ctx context.Context, id string) error {
	return s.book.delete(ctx, id)
}

func (s *CitationService) DeleteAll(ctx context.Context) (BulkDeleteResult, error) {
	return s.book.deleteAll(ctx)
}

func (s *CitationService) Repost(ctx context.Context, id string) (*model.Citation, error) {
	return s.book.repost(ctx, id)
}

func (s *CitationService) Count(ctx context.Context) (int64, error) {
	return s.book.count(ctx)
}
