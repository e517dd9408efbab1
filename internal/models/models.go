package models

import (
	"encoding/json"
	"time"
)

type User struct {
	ID           int64      `json:"id"`
	Nombre       string     `json:"nombre"`
	Apellido     string     `json:"apellido"`
	Correo       string     `json:"correo"`
	PasswordHash string     `json:"-"`
	RolID        int        `json:"rol_id"`
	Rol          string     `json:"rol"`
	UltimoAcceso *time.Time `json:"ultimo_acceso,omitempty"`
}

// Session is one continuous monitoring run. FechaFin stays nil until the
// session is closed; a closed session is immutable except for diagnosis
// attachment and rest-activity appends to Resumen.
type Session struct {
	ID            int64           `json:"sesion_id"`
	UsuarioID     int64           `json:"usuario_id"`
	TipoActividad string          `json:"tipo_actividad"`
	Fuente        string          `json:"fuente,omitempty"`
	FechaInicio   time.Time       `json:"fecha_inicio"`
	FechaFin      *time.Time      `json:"fecha_fin,omitempty"`
	TotalSegundos int             `json:"total_segundos"`
	Alertas       int             `json:"alertas"`
	KssFinal      int             `json:"kss_final,omitempty"`
	EsFatiga      bool            `json:"es_fatiga"`
	Resumen       json.RawMessage `json:"resumen,omitempty"`
}

// Measurement is the single terminal record of a session. Written once,
// never updated. Etapa only exists for legacy per-stage rows.
type Measurement struct {
	ID              int64           `json:"id"`
	SesionID        int64           `json:"sesion_id"`
	Actividad       string          `json:"actividad"`
	Parpadeos       int             `json:"parpadeos"`
	BlinkRateMin    float64         `json:"blink_rate_min"`
	Perclos         float64         `json:"perclos"`
	EarPromedio     *float64        `json:"ear_promedio,omitempty"`
	PctIncompletos  float64         `json:"pct_incompletos"`
	TiempoCierre    float64         `json:"tiempo_cierre"`
	NumBostezos     int             `json:"num_bostezos"`
	VelocidadOcular float64         `json:"velocidad_ocular"`
	NivelFatiga     int             `json:"nivel_fatiga"`
	EstadoFatiga    string          `json:"estado_fatiga"`
	MaxSinParpadeo  int             `json:"max_sin_parpadeo"`
	Alertas         int             `json:"alertas"`
	MomentosFatiga  json.RawMessage `json:"momentos_fatiga,omitempty"`
	NivelSubjetivo  int             `json:"nivel_subjetivo,omitempty"`
	Etapa           *string         `json:"etapa,omitempty"`
	Fecha           time.Time       `json:"fecha"`
}

// Diagnosis is the structured verdict stored per session, at most one row.
type Diagnosis struct {
	DiagnosticoGeneral       string   `json:"diagnostico_general"`
	SeveridadFatigaFinal     string   `json:"severidad_fatiga_final"`
	RecomendacionesGenerales []string `json:"recomendaciones_generales"`
}

// SessionSummary is the normalized payload sent to the diagnosis webhook
// and stored as the session's resumen at closure. KssFinal is omitted
// when the user did not report a sleepiness score.
type SessionSummary struct {
	TiempoTotalSeg  int     `json:"tiempo_total_seg"`
	Perclos         float64 `json:"perclos"`
	Sebr            int     `json:"sebr"`
	BlinkRateMin    float64 `json:"blink_rate_min"`
	PctIncompletos  float64 `json:"pct_incompletos"`
	NumBostezos     int     `json:"num_bostezos"`
	VelocidadOcular float64 `json:"velocidad_ocular"`
	AlertasTotales  int     `json:"alertas_totales"`
	KssFinal        int     `json:"kss_final,omitempty"`
}

// RestActivity is one entry of the static rest-activity catalog.
type RestActivity struct {
	ID            int    `json:"id"`
	Nombre        string `json:"nombre"`
	DuracionSeg   int    `json:"duracion_seg"`
	Instrucciones string `json:"instrucciones"`
}

// RestLogEntry is the schema-less fragment appended to a session's
// resumen when the user completes a rest activity. Append-only.
type RestLogEntry struct {
	Tipo        string    `json:"tipo"`
	ActividadID int       `json:"actividad_id"`
	Actividad   string    `json:"actividad"`
	DuracionSeg int       `json:"duracion_seg"`
	Timestamp   time.Time `json:"timestamp"`
}
