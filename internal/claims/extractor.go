package claims

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gtext "github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"
)

// Extractor parses structured claim blocks out of agent markdown outputs.
//
// Two forms are accepted:
//
//  1. A "Claims" section heading followed by a fenced YAML block holding
//     a `claims:` list (the canonical form).
//  2. Plain-text "Claim <id>" blocks with Type:/Statement:/Sources:/
//     Confidence:/Uncertainty: field lines.
//
// A document with no claims section yields an empty list, not an error.
type Extractor struct {
	md goldmark.Markdown
}

// NewExtractor creates a claim extractor.
func NewExtractor() *Extractor {
	return &Extractor{md: goldmark.New()}
}

// yamlBlock mirrors the fenced claim block schema.
type yamlBlock struct {
	Claims []Claim `yaml:"claims"`
}

// Extract returns the ordered claims found in the markdown document.
// Each claim is tagged with the source document name.
func (e *Extractor) Extract(document, markdown string) ([]Claim, error) {
	src := []byte(markdown)
	root := e.md.Parser().Parse(gtext.NewReader(src))

	block, found := e.claimsFence(root, src)
	if found {
		extracted, err := parseYAMLBlock(block)
		if err != nil {
			return nil, fmt.Errorf("claims block in %s: %w", document, err)
		}
		tagDocument(extracted, document)
		return extracted, nil
	}

	// Secondary form: inline Claim blocks in plain text.
	extracted := parsePlainBlocks(markdown)
	tagDocument(extracted, document)
	return extracted, nil
}

// claimsFence locates the first fenced code block following a "Claims"
// heading (case-insensitive).
func (e *Extractor) claimsFence(root ast.Node, src []byte) (string, bool) {
	inClaims := false
	var content string
	found := false

	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || found {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			title := strings.TrimSpace(string(node.Text(src)))
			inClaims = strings.EqualFold(title, "claims")
		case *ast.FencedCodeBlock:
			if !inClaims {
				return ast.WalkContinue, nil
			}
			lang := strings.ToLower(string(node.Language(src)))
			if lang != "" && lang != "yaml" && lang != "yml" {
				return ast.WalkContinue, nil
			}
			var sb strings.Builder
			lines := node.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				sb.Write(seg.Value(src))
			}
			content = sb.String()
			found = true
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})

	return content, found
}

// parseYAMLBlock decodes the fenced block, tolerating an empty list.
func parseYAMLBlock(content string) ([]Claim, error) {
	var block yamlBlock
	if err := yaml.Unmarshal([]byte(content), &block); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if block.Claims == nil {
		return []Claim{}, nil
	}
	return block.Claims, nil
}

var (
	claimHeaderRe = regexp.MustCompile(`(?i)^#*\s*claim\s+([A-Za-z0-9_.-]+)\s*$`)
	fieldRe       = regexp.MustCompile(`^\s*(?i:(type|statement|sources|confidence|uncertainty))\s*:\s*(.*)$`)
)

// parsePlainBlocks scans for individual "Claim X" blocks with labelled
// field lines. Unparseable fields are skipped rather than failing the
// whole document.
func parsePlainBlocks(markdown string) []Claim {
	extracted := []Claim{}
	var current *Claim

	flush := func() {
		if current != nil && current.Text != "" {
			extracted = append(extracted, *current)
		}
		current = nil
	}

	scanner := bufio.NewScanner(strings.NewReader(markdown))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		if m := claimHeaderRe.FindStringSubmatch(line); m != nil {
			flush()
			current = &Claim{ID: m[1], Sources: []Source{}}
			continue
		}
		if current == nil {
			continue
		}

		m := fieldRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		value := strings.TrimSpace(m[2])
		switch strings.ToLower(m[1]) {
		case "type":
			current.Type = ClaimType(strings.ToUpper(value))
		case "statement":
			current.Text = value
		case "sources":
			current.Sources = parseInlineSources(value)
		case "confidence":
			if f, err := strconv.ParseFloat(strings.TrimSuffix(value, "%"), 64); err == nil {
				current.Confidence = f
			}
		case "uncertainty":
			current.Uncertainty = value
		}
	}
	flush()

	return extracted
}

// parseInlineSources splits a semicolon-separated source list. Each
// entry may carry a "PRIMARY:" style prefix; entries without a prefix
// default to SECONDARY.
func parseInlineSources(value string) []Source {
	if value == "" || strings.EqualFold(value, "none") {
		return []Source{}
	}
	var sources []Source
	for _, part := range strings.Split(value, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		src := Source{Type: SourceSecondary, Reference: part}
		if idx := strings.Index(part, ":"); idx > 0 {
			prefix := SourceType(strings.ToUpper(strings.TrimSpace(part[:idx])))
			if prefix.Valid() {
				src.Type = prefix
				src.Reference = strings.TrimSpace(part[idx+1:])
			}
		}
		sources = append(sources, src)
	}
	return sources
}

func tagDocument(extracted []Claim, document string) {
	for i := range extracted {
		extracted[i].Document = document
	}
}
