// Package session is the authoritative, crash-safe representation of a
// thesis project's workflow state. All writes go through a deep-merge
// update with an atomic write-temp-then-rename, so a crash leaves
// either the previous state or the new state, never a torn file.
package session

import "time"

// KnownVersions are the session schema versions this build can read.
var KnownVersions = map[string]bool{
	"1.0.0": true,
	"2.0.0": true,
	"2.1.0": true,
}

// CurrentVersion is written by Init.
const CurrentVersion = "2.1.0"

// Mode is how the project was started.
type Mode string

const (
	ModeTopic       Mode = "topic"
	ModeQuestion    Mode = "question"
	ModeReview      Mode = "review"
	ModeLearning    Mode = "learning"
	ModePaperUpload Mode = "paper-upload"
	ModeProposal    Mode = "proposal"
)

// Valid reports whether m is a recognized start mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeTopic, ModeQuestion, ModeReview, ModeLearning, ModePaperUpload, ModeProposal:
		return true
	}
	return false
}

// ResearchType drives methodology branching.
type ResearchType string

const (
	TypeQuantitative  ResearchType = "quantitative"
	TypeQualitative   ResearchType = "qualitative"
	TypeMixed         ResearchType = "mixed"
	TypePhilosophical ResearchType = "philosophical"
	TypeUnset         ResearchType = ""
)

// Valid reports whether rt is a recognized research type. The unset
// type is valid only inside a stored session, never as explicit input.
func (rt ResearchType) Valid() bool {
	switch rt {
	case TypeQuantitative, TypeQualitative, TypeMixed, TypePhilosophical:
		return true
	}
	return false
}

// Paths records where the project lives. The resolver validates that
// AbsolutePath matches reality on every startup.
type Paths struct {
	BaseDir      string `json:"base_dir"`
	OutputDir    string `json:"output_dir"`
	AbsolutePath string `json:"absolute_path"`
}

// Research holds the scholarly metadata.
type Research struct {
	Topic             string       `json:"topic"`
	TopicSlug         string       `json:"topic_slug"`
	Mode              Mode         `json:"mode"`
	Type              ResearchType `json:"type"`
	Discipline        string       `json:"discipline"`
	ResearchQuestions []string     `json:"research_questions"`
	Hypotheses        []string     `json:"hypotheses"`
}

// Workflow tracks execution position.
type Workflow struct {
	CurrentPhase   string `json:"current_phase"`
	CurrentStep    int    `json:"current_step"`
	TotalSteps     int    `json:"total_steps"`
	LastCheckpoint int    `json:"last_checkpoint"`
	LastAgent      string `json:"last_agent"`
}

// Options configures the authoring pipeline.
type Options struct {
	LiteratureDepth      string         `json:"literature_depth"`
	TheoreticalFramework string         `json:"theoretical_framework"`
	CitationStyle        string         `json:"citation_style"`
	CitationConfig       *CitationStyle `json:"citation_config,omitempty"`
	Language             string         `json:"language"`
	ThesisFormat         string         `json:"thesis_format"`
}

// Quality accumulates gate evidence.
type Quality struct {
	SRCSScores       []map[string]any `json:"srcs_scores"`
	GRAValidations   []map[string]any `json:"gra_validations"`
	PlagiarismChecks []map[string]any `json:"plagiarism_checks"`
}

// Snapshot is a labelled copy of workflow state, taken at phase
// boundaries and HITL approvals.
type Snapshot struct {
	Label    string    `json:"label"`
	TakenAt  time.Time `json:"taken_at"`
	Workflow Workflow  `json:"workflow"`
}

// ReworkRecord documents an explicit gate-driven step regression, the
// only sanctioned way current_step moves backward.
type ReworkRecord struct {
	FromStep int       `json:"from_step"`
	ToStep   int       `json:"to_step"`
	Reason   string    `json:"reason"`
	At       time.Time `json:"at"`
}

// CompletionRecord marks a terminal workflow state.
type CompletionRecord struct {
	State  string    `json:"state"` // completed | paused-awaiting-hitl | failed-after-retries
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

// Session is the persisted schema of session.json.
type Session struct {
	Version          string            `json:"version"`
	WorkingDir       string            `json:"working_dir"`
	Paths            Paths             `json:"paths"`
	Research         Research          `json:"research"`
	Workflow         Workflow          `json:"workflow"`
	Options          Options           `json:"options"`
	Quality          Quality           `json:"quality"`
	ContextSnapshots []Snapshot        `json:"context_snapshots"`
	ReworkHistory    []ReworkRecord    `json:"rework_history,omitempty"`
	Completion       *CompletionRecord `json:"completion,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}
