package checklist

import (
	"github.com/praxislabs/thesisd/internal/session"
	"github.com/praxislabs/thesisd/internal/steps"
)

// Status is an item's progress state. Only the completed state counts
// toward progress; in-progress marks the step the orchestrator is
// currently executing.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Item is one checklist row.
type Item struct {
	Step   int
	Title  string
	Status Status
}

// phaseTitles maps each phase to its display heading.
var phaseTitles = map[steps.Phase]string{
	steps.Phase0:      "Phase 0 — Initialization",
	steps.Phase1Wave1: "Phase 1 Wave 1 — Literature Search",
	steps.Phase1Wave2: "Phase 1 Wave 2 — Deep Analysis",
	steps.Phase1Wave3: "Phase 1 Wave 3 — Critical Review",
	steps.Phase1Wave4: "Phase 1 Wave 4 — Synthesis",
	steps.Phase1Wave5: "Phase 1 Wave 5 — Quality Assurance",
	steps.HITL2:       "HITL-2 — Direction Checkpoint",
	steps.Phase2:      "Phase 2 — Research Design",
	steps.Phase3:      "Phase 3 — Thesis Writing",
	steps.Phase4:      "Phase 4 — Publication Strategy",
	steps.Completion:  "Completion",
}

// fixedTitles holds the titles for every step outside the research-type
// branch window. Index 0 is step 1.
var fixedTitles = map[int]string{
	// Phase 0
	1: "Collect topic and mode",
	2: "Determine research type",
	3: "Select discipline profile",
	4: "Configure citation style",
	5: "Create project directory skeleton",
	6: "Initialize session state",
	7: "Generate research questions",
	8: "HITL-1: approve scope and questions",

	// Wave 1 — search
	9:  "Build keyword matrix",
	10: "Primary database search",
	11: "Secondary database search",
	12: "Grey literature scan",
	13: "Citation chaining (backward)",
	14: "Citation chaining (forward)",
	15: "Deduplicate results",
	16: "Screen titles and abstracts",
	17: "Rank sources by relevance",
	18: "HITL: approve source corpus",
	19: "Retrieve full texts",
	20: "Extract bibliographic records",
	21: "Tag sources by theme",
	22: "Wave 1 summary and cache",

	// Wave 2 — deep analysis
	23: "Assign analysis batches",
	24: "Methodology extraction batch 1",
	25: "Methodology extraction batch 2",
	26: "Findings extraction batch 1",
	27: "Findings extraction batch 2",
	28: "Theoretical framing extraction",
	29: "Sample and context coding",
	30: "Effect and outcome coding",
	31: "Limitations coding",
	32: "Claim extraction batch 1",
	33: "Claim extraction batch 2",
	34: "Source verification pass",
	35: "Evidence table assembly",
	36: "Contradiction flagging",
	37: "Quality appraisal (study design)",
	38: "Quality appraisal (reporting)",
	39: "Cross-source claim audit",
	40: "Wave 2 summary and cache",

	// Wave 3 — critical review
	41: "Framework selection for critique",
	42: "Bias assessment batch 1",
	43: "Bias assessment batch 2",
	44: "Validity threats analysis",
	45: "Replication status review",
	46: "Generalizability analysis",
	47: "Conflicting evidence adjudication",
	48: "Gap identification (methodological)",
	49: "Gap identification (empirical)",
	50: "Gap identification (theoretical)",
	51: "Critique synthesis batch 1",
	52: "Critique synthesis batch 2",
	53: "Counter-argument mapping",
	54: "Strength-of-evidence grading",
	55: "Claim re-scoring after critique",
	56: "Consistency check against wave 2",
	57: "Critical appendix drafting",
	58: "Wave 3 summary and cache",

	// Wave 4 — synthesis
	59: "Thematic clustering",
	60: "Cross-theme mapping",
	61: "Chronological trend analysis",
	62: "Theoretical integration",
	63: "Conceptual model drafting",
	64: "Synthesis matrix assembly",
	65: "Narrative synthesis part 1",
	66: "Narrative synthesis part 2",
	67: "Research gap consolidation",
	68: "Framework alignment check",
	69: "Consistency check against waves 2-3",
	70: "Synthesis claim grounding audit",
	71: "Literature map rendering",
	72: "Wave 4 summary and cache",

	// Wave 5 — quality assurance
	73: "Coverage audit against keyword matrix",
	74: "Recency audit",
	75: "Citation integrity check",
	76: "Claim-source link verification",
	77: "Hallucination sweep of wave outputs",
	78: "Cross-wave consistency report",
	79: "Claim re-scoring of weak claims",
	80: "Literature review chapter draft",
	81: "Chapter revision for flow",
	82: "Reference list generation",
	83: "HITL: approve literature review",

	// HITL-2 bridge
	84: "Compile open questions for supervisor",
	85: "Summarize evidence strength per question",
	86: "Draft candidate research designs",
	87: "Risk and feasibility notes",
	88: "Prepare checkpoint packet",
	89: "HITL-2: approve research direction",

	// Phase 2 — research design (95-98 come from the branch table)
	90:  "Restate research questions and hypotheses",
	91:  "Methodology selection rationale",
	92:  "Research paradigm statement",
	93:  "Study design specification",
	94:  "Variable and construct definitions",
	99:  "Ethics and review-board considerations",
	100: "Data management plan",
	101: "Timeline and milestones",
	102: "Limitations and delimitations",
	103: "Methodology chapter draft",
	104: "Design consistency check against literature",
	105: "Claim grounding audit of design",
	106: "Methodology chapter revision",
	107: "Design summary and cache",
	108: "HITL: approve research design",

	// Phase 3 — thesis writing
	109: "HITL: confirm chapter outline",
	110: "Introduction chapter draft",
	111: "Background and context section",
	112: "Literature chapter integration pass",
	113: "Methodology chapter integration pass",
	114: "HITL: mid-thesis review",
	115: "Results and analysis chapter draft",
	116: "Discussion chapter draft",
	117: "Implications section",
	118: "Conclusion chapter draft",
	119: "Abstract draft",
	120: "Cross-chapter consistency check",
	121: "Hallucination sweep of full draft",
	122: "Citation and reference audit",
	123: "Full-draft revision pass",
	124: "Front and back matter assembly",
	125: "HITL: approve full draft",

	// Phase 4 — publication strategy
	126: "Target venue shortlist",
	127: "Venue fit analysis",
	128: "Article extraction plan",
	129: "Article 1 draft (core findings)",
	130: "Article 1 revision",
	131: "Article 2 draft (methodology)",
	132: "Article 2 revision",
	133: "Conference abstract drafts",
	134: "Cover letter drafts",
	135: "Reviewer response strategy",
	136: "Plagiarism self-check",
	137: "Formatting to venue guidelines",
	138: "Supplementary materials packaging",
	139: "Data and code availability statements",
	140: "Authorship and contribution statements",
	141: "Preprint preparation",
	142: "Submission package assembly",
	143: "Publication claim grounding audit",
	144: "Publication consistency check",
	145: "Publication strategy document",
	146: "HITL: approve publication plan",

	// Completion
	147: "Final session snapshot",
	148: "Archive working files",
	149: "Completion report generation",
	150: "Mark workflow complete",
}

// branchTitles supplies steps 95-98 per research type. Methodology
// steps are the only part of the workflow that varies by type.
var branchTitles = map[session.ResearchType][4]string{
	session.TypeQuantitative: {
		"Sampling and power analysis",
		"Instrument selection and validity",
		"Statistical analysis plan",
		"Pilot and reliability plan",
	},
	session.TypeQualitative: {
		"Participant selection strategy",
		"Interview and observation protocol",
		"Coding and thematic analysis plan",
		"Trustworthiness and reflexivity plan",
	},
	session.TypeMixed: {
		"Integration design and sequencing",
		"Instrument and protocol suite",
		"Joint analysis and integration plan",
		"Legitimation and quality plan",
	},
	session.TypePhilosophical: {
		"Argument reconstruction plan",
		"Conceptual analysis method",
		"Dialectical engagement plan",
		"Normative evaluation criteria",
	},
}

// Generate builds the full item list for a research type. Unset or
// unknown types fall back to the quantitative branch, matching the
// default methodology path.
func Generate(rt session.ResearchType) []Item {
	branch, ok := branchTitles[rt]
	if !ok {
		branch = branchTitles[session.TypeQuantitative]
	}

	items := make([]Item, 0, steps.TotalSteps)
	for step := 1; step <= steps.TotalSteps; step++ {
		title := fixedTitles[step]
		if step >= steps.ResearchTypeBranch.First && step <= steps.ResearchTypeBranch.Last {
			title = branch[step-steps.ResearchTypeBranch.First]
		}
		items = append(items, Item{Step: step, Title: title, Status: StatusPending})
	}
	return items
}
