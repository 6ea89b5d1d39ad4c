package notify

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/sakif/precinct/internal/model"
)

const (
	colorCitation = 0xF1C40F
	colorArrest   = 0xE74C3C
	colorWarrant  = 0x8E44AD

	// Discord rejects embed field values longer than this.
	maxFieldLen = 1024

	mugshotName = "mugshot.png"
)

// buildMessage renders a notice as a Discord message: one embed, plus the
// mugshot as an attachment for arrests that have one.
func buildMessage(n Notice, logger *slog.Logger) (*discordgo.MessageSend, error) {
	switch n.Kind {
	case model.KindCitation:
		if n.Citation == nil {
			return nil, fmt.Errorf("notify: citation notice without citation")
		}
		c := n.Citation
		embed := &discordgo.MessageEmbed{
			Title: "Citation Issued",
			Color: colorCitation,
			Fields: []*discordgo.MessageEmbedField{
				field("Violator", c.ViolatorFirstName+" "+c.ViolatorLastName, true),
				field("Officers", officers(c.Roster), true),
				field("Charges", charges(c.Charges), false),
				field("Total Fine", "$"+c.TotalAmount, true),
				field("Total Jail Time", jailTime(c.TotalJailTime), true),
			},
			Footer:    footer("Citation", c.ID),
			Timestamp: timestamp(c.CreatedAt),
		}
		if c.AdditionalNotes != nil && *c.AdditionalNotes != "" {
			embed.Fields = append(embed.Fields, field("Notes", *c.AdditionalNotes, false))
		}
		return &discordgo.MessageSend{Content: mentions(c.OfficerUserIDs), Embeds: []*discordgo.MessageEmbed{embed}}, nil

	case model.KindArrest:
		if n.Arrest == nil {
			return nil, fmt.Errorf("notify: arrest notice without arrest")
		}
		a := n.Arrest
		embed := &discordgo.MessageEmbed{
			Title: "Arrest Report",
			Color: colorArrest,
			Fields: []*discordgo.MessageEmbedField{
				field("Suspect", a.SuspectFirstName+" "+a.SuspectLastName, true),
				field("Officers", officers(a.Roster), true),
				field("Charges", charges(a.Charges), false),
				field("Total Fine", "$"+a.TotalAmount, true),
				field("Total Jail Time", jailTime(a.TotalJailTime), true),
				field("Time Served", yesNo(a.TimeServed), true),
			},
			Footer:    footer("Arrest", a.ID),
			Timestamp: timestamp(a.CreatedAt),
		}
		if a.WarrantRequired() {
			embed.Title = "Arrest Report (Warrant Required)"
			embed.Color = colorWarrant
		}
		if a.CourtDate != "" || a.CourtLocation != "" {
			court := strings.TrimSpace(strings.Join([]string{a.CourtLocation, a.CourtDate, a.CourtPhone}, "\n"))
			embed.Fields = append(embed.Fields, field("Court", court, false))
		}
		if a.AdditionalNotes != nil && *a.AdditionalNotes != "" {
			embed.Fields = append(embed.Fields, field("Notes", *a.AdditionalNotes, false))
		}

		msg := &discordgo.MessageSend{Content: mentions(a.OfficerUserIDs), Embeds: []*discordgo.MessageEmbed{embed}}
		if a.MugshotBase64 != nil && *a.MugshotBase64 != "" {
			img, err := decodeImage(*a.MugshotBase64)
			if err != nil {
				// still post the report, just without the picture
				logger.Warn("skipping unreadable mugshot",
					slog.String("arrest", a.ID),
					slog.String("error", err.Error()))
			} else {
				msg.Files = []*discordgo.File{{Name: mugshotName, ContentType: "image/png", Reader: bytes.NewReader(img)}}
				embed.Image = &discordgo.MessageEmbedImage{URL: "attachment://" + mugshotName}
			}
		}
		return msg, nil
	}
	return nil, fmt.Errorf("notify: unknown record kind %q", n.Kind)
}

// A record is posted before it is stored, so a first post has no id or
// creation time yet. Reposts carry both.
func footer(label, id string) *discordgo.MessageEmbedFooter {
	if id == "" {
		return nil
	}
	return &discordgo.MessageEmbedFooter{Text: label + " " + id}
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return time.Now().UTC().Format(time.RFC3339)
	}
	return t.UTC().Format(time.RFC3339)
}

func field(name, value string, inline bool) *discordgo.MessageEmbedField {
	if value == "" {
		value = "-"
	}
	if len(value) > maxFieldLen {
		value = value[:maxFieldLen-3] + "..."
	}
	return &discordgo.MessageEmbedField{Name: name, Value: value, Inline: inline}
}

func officers(r model.Roster) string {
	lines := make([]string, 0, len(r.OfficerBadges))
	for i, badge := range r.OfficerBadges {
		line := "#" + badge
		if i < len(r.OfficerRanks) && r.OfficerRanks[i] != "" {
			line += " " + r.OfficerRanks[i]
		}
		if i < len(r.OfficerUsernames) {
			line += " " + r.OfficerUsernames[i]
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func charges(c model.Charges) string {
	lines := make([]string, 0, len(c.PenalCodes))
	for i, code := range c.PenalCodes {
		lines = append(lines, fmt.Sprintf("%s | $%s | %s", code, at(c.AmountsDue, i), at(c.JailTimes, i)))
	}
	return strings.Join(lines, "\n")
}

func at(s []string, i int) string {
	if i < len(s) {
		return s[i]
	}
	return ""
}

func mentions(ids []string) string {
	var parts []string
	for _, id := range ids {
		if id != "" {
			parts = append(parts, "<@"+id+">")
		}
	}
	return strings.Join(parts, " ")
}

func jailTime(seconds int64) string {
	if seconds == 0 {
		return "None"
	}
	return (time.Duration(seconds) * time.Second).String()
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// decodeImage accepts raw base64 or a data URL ("data:image/png;base64,...").
func decodeImage(s string) ([]byte, error) {
	if i := strings.Index(s, ","); strings.HasPrefix(s, "data:") && i >= 0 {
		s = s[i+1:]
	}
	img, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("notify: decoding mugshot: %w", err)
	}
	return img, nil
}
