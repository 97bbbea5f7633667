// Package assemble builds the structured survey record out of the normalized
// text fields and the stored file links. Pure data transformation, no I/O.
package assemble

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"intakeservice/internal/classify"
	"intakeservice/internal/model"
)

const (
	// AnonymousParticipant is the sentinel used when no name field arrives.
	AnonymousParticipant = "anonymous"

	recordVersion = "2"
)

// Section is a named group of Likert-scale items, scored by the mean of the
// answered ones.
type Section struct {
	Name  string
	Items []string
}

// Sections is the fixed survey schema, in presentation order.
var Sections = []Section{
	{Name: "interactional_justice", Items: []string{"ij_1", "ij_2", "ij_3", "ij_4"}},
	{Name: "procedural_justice", Items: []string{"pj_1", "pj_2", "pj_3", "pj_4"}},
	{Name: "distributive_justice", Items: []string{"dj_1", "dj_2", "dj_3", "dj_4"}},
	{Name: "informational_justice", Items: []string{"infj_1", "infj_2", "infj_3", "infj_4"}},
}

// ParticipantName derives the participant identifier from the raw fields,
// falling back to the anonymous sentinel. Safe to call before assembly.
func ParticipantName(fields map[string]string) string {
	if name := strings.TrimSpace(fieldValue(fields, "name")); name != "" {
		return name
	}
	return AnonymousParticipant
}

// fieldValue looks up a schema key, accepting the container-prefixed names
// the JSON-blob submission shape produces (survey_ij_1 for ij_1,
// participant_name for name). Exact names win; among prefixed candidates
// the lexicographically first is taken so the result does not depend on
// map order.
func fieldValue(fields map[string]string, key string) string {
	if v, ok := fields[key]; ok {
		return v
	}
	suffix := "_" + key
	var candidates []string
	for name := range fields {
		if strings.HasSuffix(name, suffix) {
			candidates = append(candidates, name)
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	sort.Strings(candidates)
	return fields[candidates[0]]
}

// DocumentID builds the immutable record identifier from the submission
// timestamp and the participant name.
func DocumentID(now time.Time, participantName string) string {
	return now.UTC().Format(time.RFC3339) + "_" + participantName
}

// Assemble merges normalized fields and stored file links into one record.
// Missing demographic fields default to the empty string, missing survey
// items to nil; assembly itself can never fail.
func Assemble(now time.Time, fields map[string]string, links []LinkedFile) *model.StructuredRecord {
	name := ParticipantName(fields)
	documentID := DocumentID(now, name)

	record := &model.StructuredRecord{
		DocumentID: documentID,
		Participant: model.Participant{
			Name:       name,
			Gender:     fieldValue(fields, "gender"),
			Age:        fieldValue(fields, "age"),
			Education:  fieldValue(fields, "education"),
			Occupation: fieldValue(fields, "occupation"),
			Email:      fieldValue(fields, "email"),
		},
		Condition: model.Condition{
			Condition: fieldValue(fields, "condition"),
			Group:     fieldValue(fields, "group"),
		},
		Survey: make(map[string]map[string]*int, len(Sections)),
		Scores: make(map[string]*float64, len(Sections)),
		Files: model.FileRefs{
			AudioFiles: map[string]model.FileLink{},
			PDFFiles:   map[string]model.FileLink{},
		},
		Metadata: model.RecordMeta{
			DocumentID: documentID,
			CreatedAt:  now.UTC(),
			Version:    recordVersion,
		},
	}

	for _, section := range Sections {
		items := make(map[string]*int, len(section.Items))
		for _, key := range section.Items {
			items[key] = parseItem(fieldValue(fields, key))
		}
		record.Survey[section.Name] = items
		record.Scores[section.Name] = sectionScore(items)
	}

	// Collisions overwrite in file-processing order, last write wins.
	for _, lf := range links {
		switch lf.Key.Kind {
		case classify.KindAudio:
			record.Files.AudioFiles[lf.Key.RecordKey()] = lf.Link
		case classify.KindConsentPDF, classify.KindSurveyPDF:
			record.Files.PDFFiles[lf.Key.RecordKey()] = lf.Link
		}
	}

	return record
}

// LinkedFile pairs a stored file link with its classified output key.
type LinkedFile struct {
	Key  classify.OutputKey
	Link model.FileLink
}

func parseItem(raw string) *int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return nil
	}
	return &n
}

// sectionScore is the mean of the answered items rounded to two decimals,
// nil when the whole section is unanswered.
func sectionScore(items map[string]*int) *float64 {
	sum, count := 0, 0
	for _, v := range items {
		if v == nil {
			continue
		}
		sum += *v
		count++
	}
	if count == 0 {
		return nil
	}
	mean := math.Round(float64(sum)/float64(count)*100) / 100
	return &mean
}
