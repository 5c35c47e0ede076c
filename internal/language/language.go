package language

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type entry struct {
	code    string   // ISO 639-1 (2-letter)
	display string   // Human-readable name
	words   []string // Full word forms (e.g. "english")
}

var languages = []entry{
	{"en", "English", []string{"english"}},
	{"es", "Spanish", []string{"spanish"}},
	{"fr", "French", []string{"french"}},
	{"de", "German", []string{"german"}},
	{"it", "Italian", []string{"italian"}},
	{"pt", "Portuguese", []string{"portuguese"}},
	{"ja", "Japanese", []string{"japanese"}},
	{"ko", "Korean", []string{"korean"}},
	{"zh", "Chinese", []string{"chinese"}},
	{"ru", "Russian", []string{"russian"}},
	{"ar", "Arabic", []string{"arabic"}},
	{"hi", "Hindi", []string{"hindi"}},
	{"nl", "Dutch", []string{"dutch"}},
	{"pl", "Polish", []string{"polish"}},
	{"sv", "Swedish", []string{"swedish"}},
	{"da", "Danish", []string{"danish"}},
	{"no", "Norwegian", []string{"norwegian"}},
	{"fi", "Finnish", []string{"finnish"}},
}

// Index maps built at init time.
var (
	byCode map[string]*entry
	byWord map[string]*entry
)

func init() {
	byCode = make(map[string]*entry, len(languages))
	byWord = make(map[string]*entry, len(languages))
	for i := range languages {
		e := &languages[i]
		byCode[e.code] = e
		for _, w := range e.words {
			byWord[w] = e
		}
	}
}

func lookup(hint string) *entry {
	hint = strings.ToLower(strings.TrimSpace(hint))
	if hint == "" {
		return nil
	}
	if e, ok := byCode[hint]; ok {
		return e
	}
	if e, ok := byWord[hint]; ok {
		return e
	}
	return nil
}

// Normalize converts a caller-supplied language hint into the two-letter code
// the transcription backend expects. Full words ("portuguese") and BCP-47 tags
// ("pt-BR") both resolve to their base code. Unrecognizable hints return
// empty, which lets the backend auto-detect.
func Normalize(hint string) string {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		return ""
	}
	if e := lookup(hint); e != nil {
		return e.code
	}
	tag, err := language.Parse(hint)
	if err != nil {
		return ""
	}
	base, confidence := tag.Base()
	if confidence == language.No {
		return ""
	}
	return base.String()
}

// Display returns a human-readable name for a language hint. Unrecognized
// hints are title-cased as given; empty input reads as automatic detection.
func Display(hint string) string {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		return "Auto-detect"
	}
	if e := lookup(hint); e != nil {
		return e.display
	}
	if code := Normalize(hint); code != "" {
		if e := lookup(code); e != nil {
			return e.display
		}
	}
	return cases.Title(language.English).String(hint)
}
