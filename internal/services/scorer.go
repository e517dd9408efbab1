package services

import (
	"github.com/CesarGoto1/SecurityEye/internal/models"
)

// Severity tiers and verdicts produced by the local scorer.
const (
	SeverityNormal   = "NORMAL"
	SeverityModerate = "MODERATE"
	SeverityHigh     = "HIGH"

	VerdictFatigue = "fatigue detected"
	VerdictNormal  = "normal state"
)

// The recommendation list is fixed and non-personalized.
var generalRecommendations = []string{
	"Apply the 20-20-20 rule",
	"Blink consciously",
	"Take a break",
}

// FatigueScore accumulates the threshold weights over a measurement.
// Rules are independent; none short-circuits another. The two "low value
// means fatigue" rules (blink rate, gaze velocity) require a positive
// reading so that an empty measurement scores zero.
func FatigueScore(m *models.Measurement) int {
	score := 0
	if m.Perclos >= 28 {
		score += 3
	}
	if m.BlinkRateMin > 0 && m.BlinkRateMin <= 5 {
		score += 3
	}
	if m.PctIncompletos >= 20 {
		score += 2
	}
	if m.TiempoCierre >= 0.4 {
		score++
	}
	if m.NumBostezos >= 1 {
		score++
	}
	if m.VelocidadOcular > 0 && m.VelocidadOcular < 0.02 {
		score++
	}
	if m.NivelSubjetivo >= 7 {
		score++
	}
	if m.Alertas >= 2 {
		score += 2
	}
	return score
}

// LocalDiagnosis is the deterministic fallback diagnosis. Identical
// input always yields an identical object.
func LocalDiagnosis(m *models.Measurement) models.Diagnosis {
	score := FatigueScore(m)

	severity := SeverityNormal
	switch {
	case score >= 7:
		severity = SeverityHigh
	case score >= 4:
		severity = SeverityModerate
	}

	verdict := VerdictNormal
	if score >= 3 {
		verdict = VerdictFatigue
	}

	return models.Diagnosis{
		DiagnosticoGeneral:       verdict,
		SeveridadFatigaFinal:     severity,
		RecomendacionesGenerales: generalRecommendations,
	}
}
