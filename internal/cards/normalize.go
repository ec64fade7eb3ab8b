package cards

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Selection controls which released sets are generated. Scratch sets are always selected.
type Selection struct {
	All    bool
	SetIDs []string
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("yaml"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return v
}

// Normalize builds a Catalog from src, deciding every record's SetRef once and
// recording all data-integrity findings in the catalog report.
func Normalize(src *Source, sel Selection) *Catalog {
	cat := &Catalog{
		setIndex: make(map[string]int),
		bySet:    make(map[string][]int),
	}
	if src == nil {
		return cat
	}

	normalizeSets(cat, src.Sets, sel)
	normalizeCards(cat, src.Cards)
	return cat
}

func normalizeSets(cat *Catalog, sets []SourceSet, sel Selection) {
	for i, raw := range sets {
		raw.ID = strings.TrimSpace(raw.ID)
		raw.Name = strings.TrimSpace(raw.Name)
		if missing := missingFields(raw); len(missing) > 0 {
			for _, field := range missing {
				cat.Report.add(Finding{
					Category: CategoryMissingField,
					Severity: SeverityFatal,
					SetID:    raw.ID,
					Field:    field,
					Message:  fmt.Sprintf("set #%d (%q) is missing required field %q", i+1, raw.ID, field),
				})
			}
			if raw.ID == "" {
				continue
			}
		}
		if _, dup := cat.setIndex[raw.ID]; dup {
			cat.Report.add(Finding{
				Category: CategoryDuplicateSet,
				Severity: SeverityFatal,
				SetID:    raw.ID,
				Message:  fmt.Sprintf("set %q is defined more than once", raw.ID),
			})
			continue
		}
		set := CardSet{
			ID:       raw.ID,
			Name:     raw.Name,
			Codes:    raw.Codes,
			Scratch:  raw.Scratch,
			Selected: raw.Scratch || sel.All || slices.Contains(sel.SetIDs, raw.ID),
		}
		cat.setIndex[set.ID] = len(cat.Sets)
		cat.Sets = append(cat.Sets, set)
	}

	if sel.All {
		return
	}
	for _, id := range sel.SetIDs {
		if _, ok := cat.setIndex[id]; !ok {
			cat.Report.add(Finding{
				Category: CategoryUnknownSelection,
				Severity: SeverityWarning,
				SetID:    id,
				Message:  fmt.Sprintf("selected set %q is not present in the card data", id),
			})
		}
	}
}

func normalizeCards(cat *Catalog, cards []SourceCard) {
	byID := make(map[string][]int)
	for i, raw := range cards {
		raw.ID = strings.TrimSpace(raw.ID)
		raw.Set = strings.TrimSpace(raw.Set)
		raw.Name = strings.TrimSpace(raw.Name)
		if missing := missingFields(raw); len(missing) > 0 {
			for _, field := range missing {
				cat.Report.add(Finding{
					Category: CategoryMissingField,
					Severity: SeverityFatal,
					RecordID: raw.ID,
					SetID:    raw.Set,
					Field:    field,
					Message:  fmt.Sprintf("card #%d (%q) is missing required field %q", i+1, raw.ID, field),
				})
			}
			if raw.ID == "" {
				continue
			}
		}
		byID[raw.ID] = append(byID[raw.ID], len(cat.Records))
		cat.Records = append(cat.Records, CardRecord{
			ID:           raw.ID,
			SetID:        raw.Set,
			Name:         raw.Name,
			Scratch:      raw.Scratch,
			Fields:       raw.Fields,
			Translations: raw.Translations,
		})
	}

	filtered := resolveDuplicates(cat, byID)

	for idx := range cat.Records {
		rec := &cat.Records[idx]
		if _, skip := filtered[idx]; skip {
			rec.Ref = FilteredDuplicate()
			continue
		}
		if rec.SetID == "" {
			continue
		}
		if _, ok := cat.setIndex[rec.SetID]; !ok {
			cat.Report.add(Finding{
				Category: CategoryUnknownSet,
				Severity: SeverityFatal,
				RecordID: rec.ID,
				SetID:    rec.SetID,
				Message:  fmt.Sprintf("card %q references unknown set %q", rec.ID, rec.SetID),
			})
			continue
		}
		rec.Ref = Resolved(rec.SetID)
		cat.bySet[rec.SetID] = append(cat.bySet[rec.SetID], idx)
	}
}

// resolveDuplicates reports records sharing an identifier and returns the
// indexes of scratch records shadowed by a released record.
func resolveDuplicates(cat *Catalog, byID map[string][]int) map[int]struct{} {
	filtered := make(map[int]struct{})
	ids := make([]string, 0, len(byID))
	for id, indexes := range byID {
		if len(indexes) > 1 {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	for _, id := range ids {
		var released, scratch []int
		for _, idx := range byID[id] {
			if cat.Records[idx].Scratch {
				scratch = append(scratch, idx)
			} else {
				released = append(released, idx)
			}
		}
		if len(released) > 1 {
			cat.Report.add(Finding{
				Category: CategoryDuplicateFatal,
				Severity: SeverityFatal,
				RecordID: id,
				Message:  fmt.Sprintf("card id %q is used by %d released cards", id, len(released)),
			})
		}
		if len(scratch) > 1 {
			cat.Report.add(Finding{
				Category: CategoryDuplicateFatal,
				Severity: SeverityFatal,
				RecordID: id,
				Message:  fmt.Sprintf("card id %q is used by %d scratch cards", id, len(scratch)),
			})
		}
		if len(released) > 0 && len(scratch) > 0 {
			cat.Report.add(Finding{
				Category: CategoryDuplicate,
				Severity: SeverityWarning,
				RecordID: id,
				SetID:    cat.Records[scratch[0]].SetID,
				Message:  fmt.Sprintf("scratch card %q duplicates a released card and is ignored", id),
			})
			for _, idx := range scratch {
				filtered[idx] = struct{}{}
			}
		}
	}
	return filtered
}

func missingFields(value any) []string {
	err := validate.Struct(value)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return fields
}
