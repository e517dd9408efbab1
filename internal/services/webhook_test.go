package services

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CesarGoto1/SecurityEye/internal/logging"
	"github.com/CesarGoto1/SecurityEye/internal/models"
)

const testWebhookURL = "https://n8n.example.com/webhook/visual-fatigue-diagnosis"

func newMockedClient(t *testing.T) *DiagnosisClient {
	t.Helper()
	c := NewDiagnosisClient(testWebhookURL, logging.NewNop())
	httpmock.ActivateNonDefault(c.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)
	return c
}

func TestDiagnoseFlatObject(t *testing.T) {
	c := newMockedClient(t)
	httpmock.RegisterResponder(http.MethodPost, testWebhookURL,
		httpmock.NewStringResponder(200, `{"diagnostico_general":"fatiga leve"}`))

	diag, err := c.Diagnose(context.Background(), models.SessionSummary{Perclos: 31.5})
	require.NoError(t, err)
	assert.JSONEq(t, `{"diagnostico_general":"fatiga leve"}`, string(diag))
}

func TestDiagnoseArrayWithJSONKey(t *testing.T) {
	c := newMockedClient(t)
	httpmock.RegisterResponder(http.MethodPost, testWebhookURL,
		httpmock.NewStringResponder(200,
			`[{"json":{"diagnostico_general":"fatiga severa","severidad_fatiga_final":"HIGH"}}]`))

	diag, err := c.Diagnose(context.Background(), models.SessionSummary{})
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"diagnostico_general":"fatiga severa","severidad_fatiga_final":"HIGH"}`,
		string(diag))
}

func TestDiagnoseArrayPlainElement(t *testing.T) {
	c := newMockedClient(t)
	httpmock.RegisterResponder(http.MethodPost, testWebhookURL,
		httpmock.NewStringResponder(200, `[{"diagnostico_general":"ok"},{"ignored":true}]`))

	diag, err := c.Diagnose(context.Background(), models.SessionSummary{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"diagnostico_general":"ok"}`, string(diag))
}

func TestDiagnoseSendsSummaryPayload(t *testing.T) {
	c := newMockedClient(t)
	var got struct {
		ResumenSesion models.SessionSummary `json:"resumen_sesion"`
	}
	httpmock.RegisterResponder(http.MethodPost, testWebhookURL,
		func(req *http.Request) (*http.Response, error) {
			if err := json.NewDecoder(req.Body).Decode(&got); err != nil {
				return httpmock.NewStringResponse(400, err.Error()), nil
			}
			return httpmock.NewStringResponse(200, `{}`), nil
		})

	_, err := c.Diagnose(context.Background(), models.SessionSummary{
		TiempoTotalSeg: 300,
		Perclos:        42.0,
		AlertasTotales: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, 300, got.ResumenSesion.TiempoTotalSeg)
	assert.Equal(t, 42.0, got.ResumenSesion.Perclos)
	assert.Equal(t, 4, got.ResumenSesion.AlertasTotales)
}

func TestDiagnoseFailureModes(t *testing.T) {
	tests := []struct {
		name      string
		responder httpmock.Responder
	}{
		{"server error", httpmock.NewStringResponder(500, `{"detail":"boom"}`)},
		{"invalid JSON", httpmock.NewStringResponder(200, `not json`)},
		{"empty body", httpmock.NewStringResponder(200, ``)},
		{"empty array", httpmock.NewStringResponder(200, `[]`)},
		{"array of scalars", httpmock.NewStringResponder(200, `[1,2]`)},
		{"bare string", httpmock.NewStringResponder(200, `"done"`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newMockedClient(t)
			httpmock.RegisterResponder(http.MethodPost, testWebhookURL, tt.responder)

			diag, err := c.Diagnose(context.Background(), models.SessionSummary{})
			assert.Error(t, err)
			assert.Nil(t, diag)
		})
	}
}

func TestDiagnoseUnconfiguredURL(t *testing.T) {
	c := NewDiagnosisClient("", logging.NewNop())
	_, err := c.Diagnose(context.Background(), models.SessionSummary{})
	assert.Error(t, err)
}

func TestUnwrapDiagnosisPrecedence(t *testing.T) {
	// The "json" wrapper wins over sibling keys in the same element.
	diag, err := unwrapDiagnosis([]byte(`[{"other":1,"json":{"a":2}}]`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":2}`, string(diag))
}
