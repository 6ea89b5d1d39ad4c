package jsonfile

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/sakif/precinct/internal/counter"
	"github.com/sakif/precinct/internal/idgen"
	"github.com/sakif/precinct/internal/model"
)

// =========================================================================
// IN-MEMORY STATE
// =========================================================================

type usernameEntries = []model.UsernameEntry

// state is everything the store knows. Mutations go through withWrite, which
// works on a clone; only tally reads touch the live state directly.
type state struct {
	users            []model.User // ordered by id
	nextUserID       idgen.Sequence
	deletedUsernames []string
	citationCount    counter.Tally
	arrestCount      counter.Tally

	citations      []model.Citation
	nextCitationID idgen.Sequence
	arrests        []model.Arrest
	nextArrestID   idgen.Sequence

	blocked    usernameEntries
	terminated usernameEntries
}

// clone copies every slice header's backing array. Elements are copied by
// value; nested slices inside records are shared, which is fine because
// nothing edits them in place.
func (st *state) clone() *state {
	c := *st
	c.users = slices.Clone(st.users)
	c.deletedUsernames = slices.Clone(st.deletedUsernames)
	c.citations = slices.Clone(st.citations)
	c.arrests = slices.Clone(st.arrests)
	c.blocked = slices.Clone(st.blocked)
	c.terminated = slices.Clone(st.terminated)
	return &c
}

// =========================================================================
// ON-DISK DOCUMENTS
// =========================================================================

type fileID int

const (
	fileCitations fileID = iota
	fileArrests
	fileBlocked
	fileTerminated
	fileUsers // last: holds the tallies
)

// allFiles is also the write order.
var allFiles = []fileID{fileCitations, fileArrests, fileBlocked, fileTerminated, fileUsers}

var fileNames = map[fileID]string{
	fileUsers:      "users.json",
	fileCitations:  "citations.json",
	fileArrests:    "arrests.json",
	fileBlocked:    "blocked_usernames.json",
	fileTerminated: "terminated_usernames.json",
}

type usersDoc struct {
	Users            []userEntry `json:"users"`
	NextUserID       int64       `json:"nextUserId"`
	DeletedUsernames []string    `json:"deletedUsernames"`
	CitationCount    int64       `json:"citationCount"`
	ArrestCount      int64       `json:"arrestCount"`
}

// userEntry is stored as a two element array: [id, user].
type userEntry struct {
	ID   int64
	User model.User
}

func (e userEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.ID, e.User})
}

func (e *userEntry) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("user entry: want [id, user], got %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &e.ID); err != nil {
		return fmt.Errorf("user entry id: %w", err)
	}
	if err := json.Unmarshal(pair[1], &e.User); err != nil {
		return fmt.Errorf("user entry %d: %w", e.ID, err)
	}
	return nil
}

type citationsDoc struct {
	Citations      []model.Citation `json:"citations"`
	NextCitationID int64            `json:"nextCitationId"`
}

type arrestsDoc struct {
	Arrests      []model.Arrest `json:"arrests"`
	NextArrestID int64          `json:"nextArrestId,omitempty"`
}

// encode builds the document for one file. Empty collections are written as
// [] rather than null.
func encode(st *state, id fileID) any {
	switch id {
	case fileUsers:
		doc := usersDoc{
			Users:            make([]userEntry, 0, len(st.users)),
			NextUserID:       st.nextUserID.Peek(),
			DeletedUsernames: orEmpty(st.deletedUsernames),
			CitationCount:    st.citationCount.Value(),
			ArrestCount:      st.arrestCount.Value(),
		}
		for _, u := range st.users {
			doc.Users = append(doc.Users, userEntry{ID: u.ID, User: u})
		}
		return doc
	case fileCitations:
		return citationsDoc{Citations: orEmpty(st.citations), NextCitationID: st.nextCitationID.Peek()}
	case fileArrests:
		return arrestsDoc{Arrests: orEmpty(st.arrests), NextArrestID: st.nextArrestID.Peek()}
	case fileBlocked:
		return orEmpty(st.blocked)
	case fileTerminated:
		return orEmpty(st.terminated)
	}
	panic(fmt.Sprintf("jsonfile: unknown file id %d", id))
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// =========================================================================
// WRITING
// =========================================================================

// writeLocked persists the given documents from st in write order. If a later
// document fails after earlier ones were replaced, the earlier ones are put
// back from the live state so the directory stays consistent with memory.
func (s *Store) writeLocked(st *state, files ...fileID) error {
	ordered := make([]fileID, 0, len(files))
	for _, id := range allFiles {
		if slices.Contains(files, id) {
			ordered = append(ordered, id)
		}
	}

	for i, id := range ordered {
		if err := s.writeDoc(st, id); err != nil {
			if st != s.st {
				for _, done := range ordered[:i] {
					if rerr := s.writeDoc(s.st, done); rerr != nil {
						s.logger.Error("restoring document after failed write",
							slog.String("file", fileNames[done]),
							slog.String("error", rerr.Error()))
					}
				}
			}
			return err
		}
	}
	return nil
}

func (s *Store) writeDoc(st *state, id fileID) error {
	data, err := json.MarshalIndent(encode(st, id), "", "  ")
	if err != nil {
		return fmt.Errorf("jsonfile: encoding %s: %w", fileNames[id], err)
	}
	path := filepath.Join(s.dir, fileNames[id])
	if err := s.writeFile(path, data, 0o600); err != nil {
		return fmt.Errorf("jsonfile: writing %s: %w", fileNames[id], err)
	}
	return nil
}

// =========================================================================
// LOADING
// =========================================================================

// load reads every document. A missing document is an empty collection. A
// document that does not parse is moved aside and treated as empty, so one
// bad file can't keep the portal down.
func (s *Store) load() (*state, error) {
	users, err := readDoc[usersDoc](s, fileUsers)
	if err != nil {
		return nil, err
	}
	citations, err := readDoc[citationsDoc](s, fileCitations)
	if err != nil {
		return nil, err
	}
	arrests, err := readDoc[arrestsDoc](s, fileArrests)
	if err != nil {
		return nil, err
	}
	blocked, err := readDoc[usernameEntries](s, fileBlocked)
	if err != nil {
		return nil, err
	}
	terminated, err := readDoc[usernameEntries](s, fileTerminated)
	if err != nil {
		return nil, err
	}

	st := &state{
		nextUserID:       *idgen.NewSequence(users.NextUserID),
		deletedUsernames: users.DeletedUsernames,
		citationCount:    counter.New(users.CitationCount),
		arrestCount:      counter.New(users.ArrestCount),
		citations:        citations.Citations,
		nextCitationID:   *idgen.NewSequence(citations.NextCitationID),
		arrests:          arrests.Arrests,
		nextArrestID:     *idgen.NewSequence(arrests.NextArrestID),
		blocked:          blocked,
		terminated:       terminated,
	}

	for _, e := range users.Users {
		u := e.User
		u.ID = e.ID
		st.users = append(st.users, u)
		st.nextUserID.Observe(u.ID)
	}
	slices.SortFunc(st.users, func(a, b model.User) int { return cmp.Compare(a.ID, b.ID) })

	for _, c := range st.citations {
		observeRecordID(&st.nextCitationID, c.ID)
	}
	for _, a := range st.arrests {
		observeRecordID(&st.nextArrestID, a.ID)
	}
	return st, nil
}

// observeRecordID keeps the per-collection sequence ahead of numeric ids
// written by an older version or by the numeric strategy.
func observeRecordID(seq *idgen.Sequence, id string) {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		seq.Observe(n)
	}
}

func readDoc[T any](s *Store, id fileID) (T, error) {
	var doc T
	path := filepath.Join(s.dir, fileNames[id])

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, fmt.Errorf("jsonfile: reading %s: %w", fileNames[id], err)
	}

	if err := json.Unmarshal(data, &doc); err != nil {
		aside := fmt.Sprintf("%s.corrupt-%d", path, s.now().Unix())
		s.logger.Warn("unreadable data file, starting it fresh",
			slog.String("file", fileNames[id]),
			slog.String("movedTo", filepath.Base(aside)),
			slog.String("error", err.Error()),
		)
		if rerr := os.Rename(path, aside); rerr != nil {
			return doc, fmt.Errorf("jsonfile: quarantining %s: %w", fileNames[id], rerr)
		}
		var empty T
		return empty, nil
	}
	return doc, nil
}
