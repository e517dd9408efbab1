package models

import "encoding/json"

type RegisterRequest struct {
	Nombre     string `json:"nombre" validate:"required"`
	Apellido   string `json:"apellido" validate:"required"`
	Correo     string `json:"correo" validate:"required,email"`
	Contrasena string `json:"contrasena" validate:"required,min=8"`
}

type LoginRequest struct {
	Correo     string `json:"correo" validate:"required,email"`
	Contrasena string `json:"contrasena" validate:"required"`
}

type CreateSessionRequest struct {
	UsuarioID     int64  `json:"usuario_id" validate:"required"`
	TipoActividad string `json:"tipo_actividad" validate:"required"`
	Fuente        string `json:"fuente"`
}

// FatigueResultRequest is the terminal measurement snapshot the client
// submits when continuous monitoring ends. SesionID is optional; when
// zero the newest open session of the user is resolved.
type FatigueResultRequest struct {
	SesionID        int64             `json:"sesion_id"`
	UsuarioID       int64             `json:"usuario_id" validate:"required"`
	Actividad       string            `json:"actividad"`
	Sebr            int               `json:"sebr"`
	BlinkRateMin    float64           `json:"blink_rate_min"`
	Perclos         float64           `json:"perclos"`
	EarPromedio     *float64          `json:"ear_promedio"`
	PctIncompletos  float64           `json:"pct_incompletos"`
	TiempoCierre    float64           `json:"tiempo_cierre"`
	NumBostezos     int               `json:"num_bostezos"`
	VelocidadOcular float64           `json:"velocidad_ocular"`
	EsFatiga        bool              `json:"es_fatiga"`
	TiempoTotalSeg  int               `json:"tiempo_total_seg"`
	MaxSinParpadeo  int               `json:"max_sin_parpadeo"`
	Alertas         int               `json:"alertas"`
	MomentosFatiga  []json.RawMessage `json:"momentos_fatiga"`
	KssFinal        int               `json:"kss_final"`
}

type DashboardRequest struct {
	UsuarioID int64 `json:"usuario_id" validate:"required"`
}

type DetailRequest struct {
	SesionID int64 `json:"sesion_id" validate:"required"`
}

type RestLogRequest struct {
	SesionID        int64  `json:"sesion_id" validate:"required"`
	ActividadID     int    `json:"actividad_id" validate:"required"`
	ActividadNombre string `json:"actividad_nombre" validate:"required"`
	DuracionSeg     int    `json:"duracion_seg" validate:"required"`
}
