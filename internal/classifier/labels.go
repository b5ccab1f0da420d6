package classifier

// Label identifies one of the three triage classes the model predicts, in
// class-index order: CONTROL (0), AD (1), PD (2).
type Label string

const (
	LabelControl Label = "CONTROL"
	LabelAD      Label = "AD"
	LabelPD      Label = "PD"
)

// NumClasses is the size of the model's output distribution.
const NumClasses = 3

// classLabels maps class index to label, preserving the model's output order.
var classLabels = [NumClasses]Label{LabelControl, LabelAD, LabelPD}

// PredictionResult is the raw outcome of one forward pass.
type PredictionResult struct {
	ClassID       int
	Label         Label
	Confidence    float32
	Probabilities [NumClasses]float32
}

// ConfidenceBreakdown holds per-class confidences as percentages rounded to
// two decimal places.
type ConfidenceBreakdown struct {
	Control   float64 `json:"control"`
	Alzheimer float64 `json:"alzheimer"`
	Parkinson float64 `json:"parkinson"`
}

// DiagnosticPayload is the enriched, caller-facing result bundle: the
// prediction joined with static per-class descriptive metadata.
type DiagnosticPayload struct {
	Name              string              `json:"name"`
	FullName          string              `json:"full_name"`
	Description       string              `json:"description"`
	Recommendation    string              `json:"recommendation"`
	Confidence        ConfidenceBreakdown `json:"confidence"`
	PrimaryConfidence float64             `json:"primary_confidence"`
}
