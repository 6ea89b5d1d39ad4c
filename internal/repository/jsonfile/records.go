package jsonfile

import (
	"context"
	"fmt"
	"slices"

	"github.com/sakif/precinct/internal/apperror"
	"github.com/sakif/precinct/internal/counter"
	"github.com/sakif/precinct/internal/idgen"
	"github.com/sakif/precinct/internal/model"
	"github.com/sakif/precinct/internal/repository"
)

// recordPtr is satisfied by *model.Citation and *model.Arrest, which get
// Meta from the embedded model.RecordMeta.
type recordPtr[R any] interface {
	*R
	Meta() *model.RecordMeta
}

type patcher[R any] interface {
	Apply(*R)
}

// recordRepo is one record collection. The accessor funcs pick its slice,
// tally and id sequence out of a state, so the same code serves citations
// and arrests.
type recordRepo[R any, PR recordPtr[R], P patcher[R]] struct {
	s     *Store
	kind  model.Kind
	file  fileID
	items func(*state) *[]R
	tally func(*state) *counter.Tally
	seq   func(*state) *idgen.Sequence
}

type (
	citationRepo = recordRepo[model.Citation, *model.Citation, model.CitationPatch]
	arrestRepo   = recordRepo[model.Arrest, *model.Arrest, model.ArrestPatch]
)

var (
	_ repository.CitationRepository = (*citationRepo)(nil)
	_ repository.ArrestRepository   = (*arrestRepo)(nil)
)

func newCitationRepo(s *Store) *citationRepo {
	return &citationRepo{
		s:     s,
		kind:  model.KindCitation,
		file:  fileCitations,
		items: func(st *state) *[]model.Citation { return &st.citations },
		tally: func(st *state) *counter.Tally { return &st.citationCount },
		seq:   func(st *state) *idgen.Sequence { return &st.nextCitationID },
	}
}

func newArrestRepo(s *Store) *arrestRepo {
	return &arrestRepo{
		s:     s,
		kind:  model.KindArrest,
		file:  fileArrests,
		items: func(st *state) *[]model.Arrest { return &st.arrests },
		tally: func(st *state) *counter.Tally { return &st.arrestCount },
		seq:   func(st *state) *idgen.Sequence { return &st.nextArrestID },
	}
}

// maxIDAttempts bounds retries when the id strategy returns an id already in use.
const maxIDAttempts = 5

func (r *recordRepo[R, PR, P]) Create(ctx context.Context, rec *R) error {
	var created R
	err := r.s.withWrite(ctx, []fileID{r.file, fileUsers}, func(st *state) error {
		items := r.items(st)

		id, err := r.newID(st, *items)
		if err != nil {
			return err
		}

		created = *rec
		meta := PR(&created).Meta()
		now := r.s.now()
		meta.ID = id
		meta.CreatedAt = now
		meta.UpdatedAt = now

		*items = append(*items, created)
		r.tally(st).OnCreate(len(*items))
		return nil
	})
	if err != nil {
		return err
	}
	*rec = created
	return nil
}

func (r *recordRepo[R, PR, P]) newID(st *state, items []R) (string, error) {
	for range maxIDAttempts {
		id, err := r.s.recordID(r.seq(st).Next())
		if err != nil {
			return "", err
		}
		if r.indexOf(items, id) < 0 {
			return id, nil
		}
	}
	return "", fmt.Errorf("jsonfile: no free %s id after %d attempts", r.kind, maxIDAttempts)
}

func (r *recordRepo[R, PR, P]) indexOf(items []R, id string) int {
	return slices.IndexFunc(items, func(item R) bool {
		return PR(&item).Meta().ID == id
	})
}

func (r *recordRepo[R, PR, P]) GetByID(ctx context.Context, id string) (*R, error) {
	var out *R
	err := r.s.withRead(func(st *state) error {
		items := *r.items(st)
		i := r.indexOf(items, id)
		if i < 0 {
			return apperror.NotFound(string(r.kind), id)
		}
		rec := items[i]
		out = &rec
		return nil
	})
	return out, err
}

func (r *recordRepo[R, PR, P]) List(ctx context.Context) ([]R, error) {
	var out []R
	err := r.s.withRead(func(st *state) error {
		out = slices.Clone(*r.items(st))
		return nil
	})
	return out, err
}

func (r *recordRepo[R, PR, P]) Update(ctx context.Context, id string, patch P) (*R, error) {
	var out *R
	err := r.s.withWrite(ctx, []fileID{r.file}, func(st *state) error {
		items := *r.items(st)
		i := r.indexOf(items, id)
		if i < 0 {
			return apperror.NotFound(string(r.kind), id)
		}
		patch.Apply(&items[i])
		PR(&items[i]).Meta().UpdatedAt = r.s.now()

		rec := items[i]
		out = &rec
		return nil
	})
	return out, err
}

func (r *recordRepo[R, PR, P]) Delete(ctx context.Context, id string) (*R, error) {
	var out *R
	err := r.s.withWrite(ctx, []fileID{r.file}, func(st *state) error {
		items := r.items(st)
		i := r.indexOf(*items, id)
		if i < 0 {
			return apperror.NotFound(string(r.kind), id)
		}
		rec := (*items)[i]
		out = &rec
		*items = slices.Delete(*items, i, i+1)
		return nil
	})
	return out, err
}

func (r *recordRepo[R, PR, P]) DeleteAll(ctx context.Context) ([]R, error) {
	var removed []R
	err := r.s.withWrite(ctx, []fileID{r.file, fileUsers}, func(st *state) error {
		items := r.items(st)
		removed = *items
		*items = nil
		r.tally(st).Reset()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func (r *recordRepo[R, PR, P]) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.s.withTally(ctx, func(st *state) error {
		n = r.tally(st).Get(len(*r.items(st)))
		return nil
	})
	return n, err
}
