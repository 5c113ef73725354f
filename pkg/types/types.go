package types

// Point is a single selected hold position in image-pixel space
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Contents carries the route metadata attached to a processing session
type Contents struct {
	SessionID  string `json:"sessionId"`
	Grade      string `json:"grade"`
	Gym        string `json:"gym" validate:"required"`
	Style      string `json:"style" validate:"required"`
	TryCount   uint   `json:"tryCount"`
	IsGenerate bool   `json:"isGenerate"`
}

// ResultPayload is the terminal artifact for one session: a processed
// image reference (data URI, URL or file path) and the generated post text
type ResultPayload struct {
	Image    string `json:"image"`
	Contents string `json:"contents"`
}

// SessionEntry is the single in-flight journey tracked between the
// submission step and the result step
type SessionEntry struct {
	SessionID string `json:"sessionId"`
	ImageRef  string `json:"imageRef"`
}

// Grades lists the gym grade vocabulary offered by the contents form,
// easiest first
var Grades = []string{
	"10級", "9級", "8級", "7級", "6級", "5級", "4級", "3級", "2級", "1級",
	"初段", "二段", "三段",
}

// ValidGrade reports whether grade is one of the form's grade options.
// The empty grade is allowed: grading a route is optional.
func ValidGrade(grade string) bool {
	if grade == "" {
		return true
	}
	for _, g := range Grades {
		if g == grade {
			return true
		}
	}
	return false
}
