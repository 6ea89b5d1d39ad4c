package model

import "time"

// Kind names a record collection. It doubles as the Discord channel selector.
type Kind string

const (
	KindCitation Kind = "citation"
	KindArrest   Kind = "arrest"
)

// MaxOfficers is the largest roster a single report may carry.
const MaxOfficers = 3

// RecordMeta holds the fields every filed report shares. It is embedded in
// Citation and Arrest, so its JSON fields are flattened into theirs.
//
// DiscordMessageID is the reference returned by the notification sink when
// the report was posted. Nil means "never posted" or "post failed"; deleting
// the record only retracts a message when it is set.
type RecordMeta struct {
	ID               string    `json:"id"`
	DiscordMessageID *string   `json:"discordMessageId"`
	IssuedBy         int64     `json:"issuedBy"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Meta gives generic store code access to the shared fields.
func (m *RecordMeta) Meta() *RecordMeta { return m }

// Roster is the list of officers on a report, stored as parallel arrays.
// All four slices must have the same length, between 1 and MaxOfficers.
type Roster struct {
	OfficerBadges    []string `json:"officerBadges"`
	OfficerUsernames []string `json:"officerUsernames"`
	OfficerRanks     []string `json:"officerRanks"`
	OfficerUserIDs   []string `json:"officerUserIds"` // Discord user IDs, for mentions
}

// Charges holds the penal codes and what each one costs.
// PenalCodes, AmountsDue and JailTimes are parallel. The totals are always
// derived from them; TotalJailTime is in seconds.
type Charges struct {
	PenalCodes    []string `json:"penalCodes"`
	AmountsDue    []string `json:"amountsDue"`
	JailTimes     []string `json:"jailTimes"`
	TotalAmount   string   `json:"totalAmount"`
	TotalJailTime int64    `json:"totalJailTime"`
}

// Citation is a ticket issued to a violator.
type Citation struct {
	RecordMeta
	Roster
	Charges

	ViolatorFirstName string  `json:"violatorFirstName"`
	ViolatorLastName  string  `json:"violatorLastName"`
	ViolatorSignature string  `json:"violatorSignature"`
	AdditionalNotes   *string `json:"additionalNotes"`
}

// CitationPatch is the set of citation fields that can change after filing.
type CitationPatch struct {
	DiscordMessageID Nullable[string] `json:"discordMessageId"`
	AdditionalNotes  Nullable[string] `json:"additionalNotes"`
}

func (p CitationPatch) Apply(c *Citation) {
	p.DiscordMessageID.ApplyTo(&c.DiscordMessageID)
	p.AdditionalNotes.ApplyTo(&c.AdditionalNotes)
}

// Arrest is an arrest report. It carries everything a citation does plus
// booking and court details.
type Arrest struct {
	RecordMeta
	Roster
	Charges

	OfficerSignatures []string `json:"officerSignatures"`

	SuspectFirstName string `json:"suspectFirstName"`
	SuspectLastName  string `json:"suspectLastName"`
	SuspectSignature string `json:"suspectSignature"`

	MugshotBase64   *string `json:"mugshotBase64"`
	TimeServed      bool    `json:"timeServed"`
	CourtLocation   string  `json:"courtLocation"`
	CourtDate       string  `json:"courtDate"`
	CourtPhone      string  `json:"courtPhone"`
	AdditionalNotes *string `json:"additionalNotes"`
}

// WarrantRequired reports whether the suspect still owes jail time.
// It is derived from the stored totals and never persisted.
func (a Arrest) WarrantRequired() bool {
	return !a.TimeServed && a.TotalJailTime > 0
}

// ArrestPatch is the set of arrest fields an admin may adjust.
type ArrestPatch struct {
	DiscordMessageID Nullable[string] `json:"discordMessageId"`
	AdditionalNotes  Nullable[string] `json:"additionalNotes"`
	TotalJailTime    Nullable[int64]  `json:"totalJailTime"`
	TimeServed       Nullable[bool]   `json:"timeServed"`
	CourtLocation    Nullable[string] `json:"courtLocation"`
	CourtDate        Nullable[string] `json:"courtDate"`
	CourtPhone       Nullable[string] `json:"courtPhone"`
}

func (p ArrestPatch) Apply(a *Arrest) {
	p.DiscordMessageID.ApplyTo(&a.DiscordMessageID)
	p.AdditionalNotes.ApplyTo(&a.AdditionalNotes)
	if p.TotalJailTime.Set && p.TotalJailTime.Value != nil {
		a.TotalJailTime = *p.TotalJailTime.Value
	}
	if p.TimeServed.Set && p.TimeServed.Value != nil {
		a.TimeServed = *p.TimeServed.Value
	}
	setString(p.CourtLocation, &a.CourtLocation)
	setString(p.CourtDate, &a.CourtDate)
	setString(p.CourtPhone, &a.CourtPhone)
}

// setString applies a patch to a plain string field; null clears it to "".
func setString(p Nullable[string], dst *string) {
	if !p.Set {
		return
	}
	if p.Value == nil {
		*dst = ""
		return
	}
	*dst = *p.Value
}

// ArrestView adds the derived warrant flag to the stored arrest.
type ArrestView struct {
	Arrest
	WarrantRequired bool `json:"warrantRequired"`
}

func (a Arrest) View() ArrestView {
	return ArrestView{Arrest: a, WarrantRequired: a.WarrantRequired()}
}
