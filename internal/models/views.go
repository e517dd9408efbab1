package models

import "encoding/json"

// Read-side projections. These mirror the columns the dashboard and the
// admin listing consume; nothing here participates in the lifecycle.

type HistoryRow struct {
	SesionID        int64           `json:"sesion_id"`
	Fecha           string          `json:"fecha"`
	TipoActividad   string          `json:"tipo_actividad"`
	TotalSegundos   int             `json:"total_segundos"`
	Alertas         int             `json:"alertas"`
	EsFatiga        bool            `json:"es_fatiga"`
	Perclos         *float64        `json:"perclos"`
	VelocidadOcular *float64        `json:"velocidad_ocular"`
	NumBostezos     *int            `json:"num_bostezos"`
	BlinkRateMin    *float64        `json:"blink_rate_min"`
	DiagnosticoJSON json.RawMessage `json:"diagnostico_json,omitempty"`
}

type HistoryAverages struct {
	PerclosAvg     float64 `json:"perclos_avg"`
	AlertasTotal   int     `json:"alertas_total"`
	TiempoTotalMin float64 `json:"tiempo_total_min"`
}

type AdminSessionRow struct {
	SesionID        int64    `json:"sesion_id"`
	Estudiante      string   `json:"estudiante"`
	Fecha           string   `json:"fecha"`
	TipoActividad   string   `json:"tipo_actividad"`
	TotalSegundos   int      `json:"total_segundos"`
	Alertas         int      `json:"alertas"`
	EsFatiga        bool     `json:"es_fatiga"`
	Perclos         *float64 `json:"perclos"`
	VelocidadOcular *float64 `json:"velocidad_ocular"`
	NumBostezos     *int     `json:"num_bostezos"`
}

// SessionDetail joins the session row with its newest measurement and
// the attached diagnosis, when either exists.
type SessionDetail struct {
	ID              int64           `json:"id"`
	UsuarioID       int64           `json:"usuario_id"`
	TipoActividad   string          `json:"tipo_actividad"`
	TotalSegundos   int             `json:"total_segundos"`
	Alertas         int             `json:"alertas"`
	KssFinal        int             `json:"kss_final"`
	EsFatiga        bool            `json:"es_fatiga"`
	FechaInicio     string          `json:"fecha_inicio"`
	FechaFin        *string         `json:"fecha_fin"`
	Perclos         *float64        `json:"perclos"`
	VelocidadOcular *float64        `json:"velocidad_ocular"`
	NumBostezos     *int            `json:"num_bostezos"`
	BlinkRateMin    *float64        `json:"blink_rate_min"`
	Parpadeos       *int            `json:"parpadeos"`
	MaxSinParpadeo  *int            `json:"max_sin_parpadeo"`
	MomentosFatiga  json.RawMessage `json:"momentos_fatiga,omitempty"`
	DiagnosticoJSON json.RawMessage `json:"diagnostico_json,omitempty"`
}

// StageRow serves the legacy per-stage read path. The continuous model
// never writes etapa; rows without one are skipped by the caller.
type StageRow struct {
	Etapa           string  `json:"etapa"`
	Perclos         float64 `json:"perclos"`
	Parpadeos       int     `json:"parpadeos"`
	VelocidadOcular float64 `json:"velocidad_ocular"`
	NumBostezos     int     `json:"num_bostezos"`
	NivelSubjetivo  int     `json:"nivel_subjetivo"`
	EstadoFatiga    string  `json:"estado_fatiga"`
}

// SessionClose captures the terminal values written when a session ends.
type SessionClose struct {
	TotalSegundos int
	Alertas       int
	KssFinal      int
	EsFatiga      bool
	Resumen       json.RawMessage
}
