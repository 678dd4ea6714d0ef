package session

import "fmt"

// CitationStyle describes how references are rendered for a given
// style guide.
type CitationStyle struct {
	Name                    string `json:"name"`
	DisplayName             string `json:"display_name"`
	NoteType                string `json:"note_type"` // "endnotes" or "footnotes"
	InTextFormat            string `json:"in_text_format"`
	BibliographyTitle       string `json:"bibliography_title"`
	BibliographyTitleNative string `json:"bibliography_title_native"`
	AuthorConnector         string `json:"author_connector"`
	EtAlThreshold           int    `json:"et_al_threshold"`
}

// citationStyles is the registry of recognized styles.
var citationStyles = map[string]CitationStyle{
	"apa7": {
		Name:                    "apa7",
		DisplayName:             "APA 7th Edition",
		NoteType:                "endnotes",
		InTextFormat:            "(Author, Year)",
		BibliographyTitle:       "References",
		BibliographyTitleNative: "참고문헌",
		AuthorConnector:         "&",
		EtAlThreshold:           3,
	},
	"chicago17": {
		Name:                    "chicago17",
		DisplayName:             "Chicago 17th Edition",
		NoteType:                "footnotes",
		InTextFormat:            "(Author Year)",
		BibliographyTitle:       "Bibliography",
		BibliographyTitleNative: "참고문헌",
		AuthorConnector:         "and",
		EtAlThreshold:           4,
	},
	"mla9": {
		Name:                    "mla9",
		DisplayName:             "MLA 9th Edition",
		NoteType:                "endnotes",
		InTextFormat:            "(Author Page)",
		BibliographyTitle:       "Works Cited",
		BibliographyTitleNative: "인용 문헌",
		AuthorConnector:         "and",
		EtAlThreshold:           3,
	},
	"harvard": {
		Name:                    "harvard",
		DisplayName:             "Harvard",
		NoteType:                "endnotes",
		InTextFormat:            "(Author Year)",
		BibliographyTitle:       "Reference List",
		BibliographyTitleNative: "참고문헌",
		AuthorConnector:         "and",
		EtAlThreshold:           4,
	},
	"ieee": {
		Name:                    "ieee",
		DisplayName:             "IEEE",
		NoteType:                "endnotes",
		InTextFormat:            "[n]",
		BibliographyTitle:       "References",
		BibliographyTitleNative: "참고문헌",
		AuthorConnector:         "and",
		EtAlThreshold:           6,
	},
}

// LookupCitationStyle resolves a style name.
func LookupCitationStyle(name string) (CitationStyle, error) {
	style, ok := citationStyles[name]
	if !ok {
		return CitationStyle{}, fmt.Errorf("unrecognized citation style %q", name)
	}
	return style, nil
}

// CitationStyleNames lists the recognized style names.
func CitationStyleNames() []string {
	return []string{"apa7", "chicago17", "mla9", "harvard", "ieee"}
}
