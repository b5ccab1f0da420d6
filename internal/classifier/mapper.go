package classifier

import "math"

// classDetails is the static descriptive metadata attached to each class.
type classDetails struct {
	Name           string
	FullName       string
	Description    string
	Recommendation string
}

var classDetailsTable = map[Label]classDetails{
	LabelControl: {
		Name:           "CONTROL",
		FullName:       "Normal Brain Scan",
		Description:    "The brain scan appears normal with no signs of neurological disorders.",
		Recommendation: "Continue regular health monitoring. Maintain a healthy lifestyle with proper diet, exercise, and mental stimulation.",
	},
	LabelAD: {
		Name:           "AD",
		FullName:       "Alzheimer's Disease",
		Description:    "The scan shows patterns consistent with Alzheimer's disease, characterized by brain tissue changes.",
		Recommendation: "Consult with a neurologist for comprehensive evaluation and potential treatment options. Early intervention may help manage symptoms.",
	},
	LabelPD: {
		Name:           "PD",
		FullName:       "Parkinson's Disease",
		Description:    "The scan indicates patterns associated with Parkinson's disease, affecting movement and motor functions.",
		Recommendation: "Schedule an appointment with a movement disorder specialist. Physical therapy and medication may help manage symptoms.",
	},
}

// MapToPayload translates a raw prediction into the diagnostic payload. It is
// total: a class id outside the known range falls back to the CONTROL entry
// rather than failing.
func MapToPayload(result PredictionResult) DiagnosticPayload {
	label := LabelControl
	if result.ClassID >= 0 && result.ClassID < NumClasses {
		label = classLabels[result.ClassID]
	}
	details := classDetailsTable[label]

	return DiagnosticPayload{
		Name:           details.Name,
		FullName:       details.FullName,
		Description:    details.Description,
		Recommendation: details.Recommendation,
		Confidence: ConfidenceBreakdown{
			Control:   roundPercent(result.Probabilities[0]),
			Alzheimer: roundPercent(result.Probabilities[1]),
			Parkinson: roundPercent(result.Probabilities[2]),
		},
		PrimaryConfidence: roundPercent(result.Confidence),
	}
}

// roundPercent converts a [0,1] probability to a percentage rounded to two
// decimal places.
func roundPercent(p float32) float64 {
	return math.Round(float64(p)*10000) / 100
}
