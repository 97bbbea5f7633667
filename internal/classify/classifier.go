// Package classify maps uploaded form-field names to the semantic output
// keys used for object storage and record linking.
package classify

import (
	"fmt"
	"strconv"
	"strings"
)

type Kind int

const (
	KindAudio Kind = iota
	KindConsentPDF
	KindSurveyPDF
)

// OutputKey identifies where a stored file belongs in a submission record.
type OutputKey struct {
	Kind     Kind
	Question int // set for KindAudio only
}

// String is the storage key name: Audio_3, PDF_Consent, PDF_Survey.
func (k OutputKey) String() string {
	switch k.Kind {
	case KindAudio:
		return fmt.Sprintf("Audio_%d", k.Question)
	case KindConsentPDF:
		return "PDF_Consent"
	case KindSurveyPDF:
		return "PDF_Survey"
	}
	return ""
}

// RecordKey is the grouping key inside the record's files block:
// question_<n> under audioFiles, consent/survey under pdfFiles.
func (k OutputKey) RecordKey() string {
	switch k.Kind {
	case KindAudio:
		return fmt.Sprintf("question_%d", k.Question)
	case KindConsentPDF:
		return "consent"
	case KindSurveyPDF:
		return "survey"
	}
	return ""
}

type rule struct {
	marker string
	build  func(fieldName string) (OutputKey, bool)
}

// Rules are checked in order; the first matching marker wins. Adding a file
// category means appending a rule here, nothing else changes.
var rules = []rule{
	{marker: "audio", build: audioKey},
	{marker: "consent", build: func(string) (OutputKey, bool) {
		return OutputKey{Kind: KindConsentPDF}, true
	}},
	{marker: "survey", build: func(string) (OutputKey, bool) {
		return OutputKey{Kind: KindSurveyPDF}, true
	}},
}

// Classify resolves a form-field name to its output key. Unrecognized names
// return ok=false: the file is still uploaded but not linked into the record.
func Classify(fieldName string) (OutputKey, bool) {
	name := strings.ToLower(fieldName)
	for _, r := range rules {
		if strings.Contains(name, r.marker) {
			return r.build(name)
		}
	}
	return OutputKey{}, false
}

// audioKey extracts the question number as the first integer token after the
// audio marker, e.g. audio_q_3 -> 3.
func audioKey(fieldName string) (OutputKey, bool) {
	rest := fieldName[strings.Index(fieldName, "audio")+len("audio"):]
	for _, tok := range strings.FieldsFunc(rest, func(r rune) bool {
		return r < '0' || r > '9'
	}) {
		n, err := strconv.Atoi(tok)
		if err != nil {
			continue
		}
		return OutputKey{Kind: KindAudio, Question: n}, true
	}
	return OutputKey{}, false
}
