package model

// GradeLevel is the learner's level attached to a session.
type GradeLevel string

const (
	GradeMiddleSchool    GradeLevel = "Middle School (6-8)"
	GradeHighSchool      GradeLevel = "High School (9-10)"
	GradeSeniorSecondary GradeLevel = "Senior Secondary (11-12)"
	GradeEarlyCollege    GradeLevel = "Early College"
)

// Valid reports whether g is one of the known grade levels.
func (g GradeLevel) Valid() bool {
	switch g {
	case GradeMiddleSchool, GradeHighSchool, GradeSeniorSecondary, GradeEarlyCollege:
		return true
	}
	return false
}

// Subject is the study subject attached to a session.
type Subject string

const (
	SubjectGeneral         Subject = "General Study"
	SubjectMathematics     Subject = "Mathematics"
	SubjectScience         Subject = "Science (Phy/Chem/Bio)"
	SubjectCommerce        Subject = "Commerce & Economics"
	SubjectComputerScience Subject = "Computer Science & AI"
	SubjectEnglish         Subject = "English & Literature"
)

// Valid reports whether s is one of the known subjects.
func (s Subject) Valid() bool {
	switch s {
	case SubjectGeneral, SubjectMathematics, SubjectScience, SubjectCommerce, SubjectComputerScience, SubjectEnglish:
		return true
	}
	return false
}

// Mode is the response-generation tier selected per turn.
type Mode string

const (
	ModeFast   Mode = "lite"
	ModeSearch Mode = "search"
	ModeDeep   Mode = "complex"
)

// ParseMode maps a wire value to a Mode. Unknown values fall back to ModeFast.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case ModeSearch:
		return ModeSearch
	case ModeDeep:
		return ModeDeep
	default:
		return ModeFast
	}
}

// Complexity is the difficulty tier of a learning environment.
type Complexity string

const (
	ComplexityFoundational Complexity = "foundational"
	ComplexityIntermediate Complexity = "intermediate"
	ComplexityAdvanced     Complexity = "advanced"
)

// Archetype is the teaching persona of a learning environment.
type Archetype string

const (
	ArchetypeSocratic Archetype = "socratic"
	ArchetypeCoach    Archetype = "coach"
	ArchetypeLecturer Archetype = "lecturer"
	ArchetypePeer     Archetype = "peer"
)

// LearningEnvironment is a user-defined preset that alters the instruction
// context sent to the generation collaborator.
type LearningEnvironment struct {
	ID          string     `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	Icon        string     `json:"icon" yaml:"icon"`
	Subject     Subject    `json:"subject" yaml:"subject"`
	Complexity  Complexity `json:"complexity" yaml:"complexity"`
	Archetype   Archetype  `json:"archetype" yaml:"archetype"`
	Instruction string     `json:"instruction,omitempty" yaml:"instruction,omitempty"`
}
