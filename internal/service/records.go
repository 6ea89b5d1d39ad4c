// Package service holds the business rules between the HTTP handlers and the
// record store:
//
//	handler (HTTP) → service (rules) → repository (store)
//	                        ↘ notify.Sink (Discord)
//
// The store is always the source of truth. The sink is called outside any
// store lock and its failures are logged, never returned from create or
// delete.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/sakif/precinct/internal/apperror"
	"github.com/sakif/precinct/internal/model"
	"github.com/sakif/precinct/internal/notify"
	"github.com/sakif/precinct/internal/repository"
)

// Viewer is who is asking. Officers see their own reports, admins see all.
type Viewer struct {
	UserID  int64
	IsAdmin bool
}

// BulkDeleteResult reports a delete-all. RetractFailures counts notifications
// that could not be taken down; the records are gone either way.
type BulkDeleteResult struct {
	DeletedCount    int `json:"deletedCount"`
	RetractFailures int `json:"retractFailures"`
}

type recordPtr[R any] interface {
	*R
	Meta() *model.RecordMeta
}

// recordBook is the part of citation and arrest handling that does not care
// which one it is: the post → attach → persist sequence on create, and
// cascading retraction on delete.
type recordBook[R any, PR recordPtr[R], P any] struct {
	kind   model.Kind
	repo   repository.RecordRepository[R, P]
	sink   notify.Sink
	logger *slog.Logger

	notice func(*R) notify.Notice
	// withRef builds the patch that records a notification reference.
	withRef func(ref string) P
}

// file posts rec, stores the returned reference on it and persists it.
// A failed post is logged and the record is stored without a reference.
func (b *recordBook[R, PR, P]) file(ctx context.Context, rec *R) error {
	meta := PR(rec).Meta()

	ref, err := b.sink.Post(ctx, b.notice(rec))
	switch {
	case err != nil:
		b.logger.Warn("discord post failed, saving without message reference",
			slog.String("kind", string(b.kind)),
			slog.Int64("issuedBy", meta.IssuedBy),
			slog.String("error", err.Error()))
		meta.DiscordMessageID = nil
	case ref != "":
		meta.DiscordMessageID = &ref
	default:
		meta.DiscordMessageID = nil
	}

	if err := b.repo.Create(ctx, rec); err != nil {
		if ref != "" {
			// the post is now an orphan; try to take it back down
			b.retract(ctx, ref)
		}
		return fmt.Errorf("service: storing %s: %w", b.kind, err)
	}

	b.logger.Info(string(b.kind)+" created",
		slog.String("id", meta.ID),
		slog.Int64("issuedBy", meta.IssuedBy),
		slog.Bool("posted", meta.DiscordMessageID != nil))
	return nil
}

// retract takes a notification down, logging instead of failing.
func (b *recordBook[R, PR, P]) retract(ctx context.Context, ref string) bool {
	if err := b.sink.Retract(ctx, b.kind, ref); err != nil {
		b.logger.Warn("discord retract failed",
			slog.String("kind", string(b.kind)),
			slog.String("messageId", ref),
			slog.String("error", err.Error()))
		return false
	}
	return true
}

func (b *recordBook[R, PR, P]) get(ctx context.Context, v Viewer, id string) (*R, error) {
	rec, err := b.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !v.IsAdmin && PR(rec).Meta().IssuedBy != v.UserID {
		// not yours: same answer as a missing id
		return nil, apperror.NotFound(string(b.kind), id)
	}
	return rec, nil
}

// list returns the viewer's records, or everyone's when all is set (admins
// only), newest first.
func (b *recordBook[R, PR, P]) list(ctx context.Context, v Viewer, all bool) ([]R, error) {
	if all && !v.IsAdmin {
		return nil, apperror.Forbidden("only admins can list every " + string(b.kind))
	}
	recs, err := b.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if !all {
		recs = slices.DeleteFunc(recs, func(r R) bool {
			return PR(&r).Meta().IssuedBy != v.UserID
		})
	}
	slices.SortStableFunc(recs, func(a, c R) int {
		return PR(&c).Meta().CreatedAt.Compare(PR(&a).Meta().CreatedAt)
	})
	return recs, nil
}

// delete removes the record, then retracts its notification if it has one.
func (b *recordBook[R, PR, P]) delete(ctx context.Context, id string) error {
	removed, err := b.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if ref := PR(removed).Meta().DiscordMessageID; ref != nil && *ref != "" {
		b.retract(ctx, *ref)
	}
	b.logger.Info(string(b.kind)+" deleted", slog.String("id", id))
	return nil
}

// deleteAll empties the collection and then tries to retract every
// notification, carrying on past failures.
func (b *recordBook[R, PR, P]) deleteAll(ctx context.Context) (BulkDeleteResult, error) {
	removed, err := b.repo.DeleteAll(ctx)
	if err != nil {
		return BulkDeleteResult{}, err
	}

	res := BulkDeleteResult{DeletedCount: len(removed)}
	for i := range removed {
		ref := PR(&removed[i]).Meta().DiscordMessageID
		if ref == nil || *ref == "" {
			continue
		}
		if !b.retract(ctx, *ref) {
			res.RetractFailures++
		}
	}

	b.logger.Info("all "+string(b.kind)+"s deleted",
		slog.Int("deleted", res.DeletedCount),
		slog.Int("retractFailures", res.RetractFailures))
	return res, nil
}

// repost sends a record that has no live notification again and records
// the new reference. Unlike create, a failed post is returned to the caller.
func (b *recordBook[R, PR, P]) repost(ctx context.Context, id string) (*R, error) {
	rec, err := b.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ref := PR(rec).Meta().DiscordMessageID; ref != nil && *ref != "" {
		return nil, &apperror.AppError{
			Err:     apperror.ErrConflict,
			Message: fmt.Sprintf("%s %s is already posted", b.kind, id),
		}
	}

	ref, err := b.sink.Post(ctx, b.notice(rec))
	if err != nil {
		b.logger.Warn("discord repost failed",
			slog.String("kind", string(b.kind)),
			slog.String("id", id),
			slog.String("error", err.Error()))
		return nil, apperror.Unavailable("discord could not be reached, try again later")
	}
	if ref == "" {
		return nil, apperror.Unavailable("discord notifications are disabled")
	}

	updated, err := b.repo.Update(ctx, id, b.withRef(ref))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			// deleted while we were posting
			b.retract(ctx, ref)
		}
		return nil, err
	}
	b.logger.Info(string(b.kind)+" reposted", slog.String("id", id), slog.String("messageId", ref))
	return updated, nil
}

// count is the "ever issued" tally.
func (b *recordBook[R, PR, P]) count(ctx context.Context) (int64, error) {
	return b.repo.Count(ctx)
}
