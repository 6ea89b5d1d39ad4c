package service

import (
	"fmt"
	"strings"

	"github.com/sakif/precinct/internal/apperror"
	"github.com/sakif/precinct/internal/charges"
	"github.com/sakif/precinct/internal/model"
)

// validateRoster checks the parallel officer arrays. extra holds further
// per-officer arrays (arrest signatures) that must line up too.
func validateRoster(r model.Roster, extra map[string][]string) error {
	n := len(r.OfficerBadges)
	if n < 1 || n > model.MaxOfficers {
		return apperror.ValidationFailed("officerBadges",
			fmt.Sprintf("a report needs between 1 and %d officers (got %d)", model.MaxOfficers, n))
	}

	lengths := map[string]int{
		"officerUsernames": len(r.OfficerUsernames),
		"officerRanks":     len(r.OfficerRanks),
		"officerUserIds":   len(r.OfficerUserIDs),
	}
	for name, arr := range extra {
		lengths[name] = len(arr)
	}
	for _, name := range []string{"officerUsernames", "officerRanks", "officerUserIds", "officerSignatures"} {
		l, ok := lengths[name]
		if ok && l != n {
			return apperror.ValidationFailed(name,
				fmt.Sprintf("%s has %d entries but there are %d officers", name, l, n))
		}
	}

	for i, badge := range r.OfficerBadges {
		if strings.TrimSpace(badge) == "" {
			return apperror.ValidationFailed("officerBadges", fmt.Sprintf("officer %d has no badge number", i+1))
		}
	}
	return nil
}

func requireText(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return apperror.ValidationFailed(field, field+" is required")
	}
	return nil
}

// applyTotals validates the charge arrays and overwrites the totals.
func applyTotals(c *model.Charges) error {
	totals, err := charges.Compute(c.PenalCodes, c.AmountsDue, c.JailTimes)
	if err != nil {
		return err
	}
	c.TotalAmount = totals.Amount
	c.TotalJailTime = totals.JailTime
	return nil
}
