package change

import (
	"fmt"
	"sort"
	"strings"
)

// MigrationHint is a heuristic guidance entry derived from a change's diff
type MigrationHint struct {
	EngineKey      string `json:"engine_key"`
	Change         string `json:"change"`
	MigrationType  string `json:"migration_type"`  // additive, breaking, compatible
	ConsumerAction string `json:"consumer_action"` // none_required, recommended, required
	Notes          string `json:"notes"`
}

// legacyPromptFields are the prompt columns whose changes produce
// compatibility hints
var legacyPromptFields = []string{"extraction_prompt", "curation_prompt", "concretization_prompt"}

// HintsFor derives migration hints from an event's stored diff. The analysis
// is shallow: it compares top-level schema key sets and looks for touched
// legacy prompt fields, and always produces at least a generic review hint.
func HintsFor(e *Event) []MigrationHint {
	hints := []MigrationHint{}

	if e.Diff != nil && e.ConstructType == "engine" {
		if _, ok := e.Diff["canonical_schema"]; ok {
			oldSchema := schemaOf(e.OldValue)
			newSchema := schemaOf(e.NewValue)

			if len(oldSchema) > 0 && len(newSchema) > 0 {
				added := missingKeys(newSchema, oldSchema)
				if len(added) > 0 {
					hints = append(hints, MigrationHint{
						EngineKey:      e.ConstructKey,
						Change:         fmt.Sprintf("Added schema fields: %s", strings.Join(added, ", ")),
						MigrationType:  "additive",
						ConsumerAction: "none_required",
						Notes:          "New optional fields added, existing code unaffected",
					})
				}

				removed := missingKeys(oldSchema, newSchema)
				if len(removed) > 0 {
					hints = append(hints, MigrationHint{
						EngineKey:      e.ConstructKey,
						Change:         fmt.Sprintf("Removed schema fields: %s", strings.Join(removed, ", ")),
						MigrationType:  "breaking",
						ConsumerAction: "required",
						Notes:          "Fields removed - consumers must update code that references these fields",
					})
				}
			}
		}

		for _, field := range legacyPromptFields {
			if _, ok := e.Diff[field]; ok {
				hints = append(hints, MigrationHint{
					EngineKey:      e.ConstructKey,
					Change:         fmt.Sprintf("Updated %s", strings.ReplaceAll(field, "_", " ")),
					MigrationType:  "compatible",
					ConsumerAction: "recommended",
					Notes:          "Prompt updated - consumers should verify outputs still meet expectations",
				})
			}
		}
	}

	if len(hints) == 0 {
		change := "General update"
		if e.ChangeSummary != nil && *e.ChangeSummary != "" {
			change = *e.ChangeSummary
		}
		hints = append(hints, MigrationHint{
			EngineKey:      e.ConstructKey,
			Change:         change,
			MigrationType:  "compatible",
			ConsumerAction: "recommended",
			Notes:          "Review changes to ensure compatibility with your use case",
		})
	}

	return hints
}

func schemaOf(value map[string]interface{}) map[string]interface{} {
	if value == nil {
		return nil
	}
	schema, _ := value["canonical_schema"].(map[string]interface{})
	return schema
}

// missingKeys returns the keys of a that are absent from b, sorted
func missingKeys(a, b map[string]interface{}) []string {
	keys := []string{}
	for k := range a {
		if _, ok := b[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
