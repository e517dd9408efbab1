package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/CesarGoto1/SecurityEye/internal/models"
)

func TestFatigueScore(t *testing.T) {
	tests := []struct {
		name string
		m    models.Measurement
		want int
	}{
		{
			name: "empty measurement scores zero",
			m:    models.Measurement{},
			want: 0,
		},
		{
			name: "moderate mix",
			m: models.Measurement{
				Perclos:         30,   // +3
				BlinkRateMin:    12,   // no
				PctIncompletos:  25,   // +2
				TiempoCierre:    0.3,  // no
				NumBostezos:     1,    // +1
				VelocidadOcular: 0.05, // no
				NivelSubjetivo:  5,    // no
				Alertas:         1,    // no
			},
			want: 6,
		},
		{
			name: "every rule fires",
			m: models.Measurement{
				Perclos:         28,
				BlinkRateMin:    5,
				PctIncompletos:  20,
				TiempoCierre:    0.4,
				NumBostezos:     1,
				VelocidadOcular: 0.01,
				NivelSubjetivo:  7,
				Alertas:         2,
			},
			want: 14,
		},
		{
			name: "thresholds just below",
			m: models.Measurement{
				Perclos:         27.9,
				BlinkRateMin:    5.1,
				PctIncompletos:  19.9,
				TiempoCierre:    0.39,
				NumBostezos:     0,
				VelocidadOcular: 0.02,
				NivelSubjetivo:  6,
				Alertas:         1,
			},
			want: 0,
		},
		{
			name: "slow blinking only counts when measured",
			m: models.Measurement{
				BlinkRateMin: 3,
			},
			want: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FatigueScore(&tt.m))
		})
	}
}

func TestLocalDiagnosis(t *testing.T) {
	t.Run("moderate fatigue", func(t *testing.T) {
		d := LocalDiagnosis(&models.Measurement{
			Perclos:        30,
			PctIncompletos: 25,
			NumBostezos:    1,
		})
		assert.Equal(t, VerdictFatigue, d.DiagnosticoGeneral)
		assert.Equal(t, SeverityModerate, d.SeveridadFatigaFinal)
		assert.Equal(t, generalRecommendations, d.RecomendacionesGenerales)
	})

	t.Run("high severity at seven", func(t *testing.T) {
		d := LocalDiagnosis(&models.Measurement{
			Perclos:      30, // +3
			BlinkRateMin: 2,  // +3
			NumBostezos:  2,  // +1
		})
		assert.Equal(t, SeverityHigh, d.SeveridadFatigaFinal)
		assert.Equal(t, VerdictFatigue, d.DiagnosticoGeneral)
	})

	t.Run("clean measurement stays normal", func(t *testing.T) {
		d := LocalDiagnosis(&models.Measurement{})
		assert.Equal(t, VerdictNormal, d.DiagnosticoGeneral)
		assert.Equal(t, SeverityNormal, d.SeveridadFatigaFinal)
		assert.Len(t, d.RecomendacionesGenerales, 3)
	})

	t.Run("fatigue verdict below moderate tier", func(t *testing.T) {
		// score 3: detected by the verdict, still NORMAL severity
		d := LocalDiagnosis(&models.Measurement{Perclos: 28})
		assert.Equal(t, VerdictFatigue, d.DiagnosticoGeneral)
		assert.Equal(t, SeverityNormal, d.SeveridadFatigaFinal)
	})

	t.Run("deterministic", func(t *testing.T) {
		m := models.Measurement{Perclos: 45, Alertas: 3}
		assert.Equal(t, LocalDiagnosis(&m), LocalDiagnosis(&m))
	})
}
