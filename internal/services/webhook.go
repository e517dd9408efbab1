package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/CesarGoto1/SecurityEye/internal/apperrors"
	"github.com/CesarGoto1/SecurityEye/internal/logging"
	"github.com/CesarGoto1/SecurityEye/internal/models"
)

const webhookTimeout = 60 * time.Second

// DiagnosisClient calls the external diagnosis webhook. Every failure
// mode collapses to an error the lifecycle manager absorbs; nothing
// here may abort a session closure.
type DiagnosisClient struct {
	url        string
	httpClient *http.Client
	logger     logging.Logger
}

func NewDiagnosisClient(url string, logger logging.Logger) *DiagnosisClient {
	return &DiagnosisClient{
		url:        url,
		httpClient: &http.Client{Timeout: webhookTimeout},
		logger:     logger,
	}
}

type webhookPayload struct {
	ResumenSesion models.SessionSummary `json:"resumen_sesion"`
}

// Diagnose posts the normalized session summary and unwraps the
// response into a single flat diagnosis object.
func (c *DiagnosisClient) Diagnose(ctx context.Context, summary models.SessionSummary) (json.RawMessage, error) {
	if c.url == "" {
		return nil, apperrors.ExternalService(nil, "diagnosis webhook not configured")
	}

	body, err := json.Marshal(webhookPayload{ResumenSesion: summary})
	if err != nil {
		return nil, apperrors.ExternalService(err, "encode webhook payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.ExternalService(err, "build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debugf("diagnosis webhook payload: %s", body)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.ExternalService(err, "call diagnosis webhook")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.ExternalService(err, "read webhook response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperrors.ExternalService(
			fmt.Errorf("status %d: %s", resp.StatusCode, raw), "diagnosis webhook failed")
	}

	diag, err := unwrapDiagnosis(raw)
	if err != nil {
		return nil, apperrors.ExternalService(err, "unexpected webhook response shape")
	}
	return diag, nil
}

// unwrapDiagnosis normalizes the two shapes the webhook is known to
// produce. Precedence:
//  1. array -> first element; if that element is an object carrying a
//     "json" key, the nested value wins, otherwise the element itself
//  2. object -> the object verbatim
// Anything else is rejected.
func unwrapDiagnosis(body []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errors.New("empty response body")
	}

	switch trimmed[0] {
	case '[':
		var arr []json.RawMessage
		if err := json.Unmarshal(trimmed, &arr); err != nil {
			return nil, err
		}
		if len(arr) == 0 {
			return nil, errors.New("empty response array")
		}
		elem := bytes.TrimSpace(arr[0])
		if len(elem) == 0 || elem[0] != '{' {
			return nil, errors.New("array element is not an object")
		}
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal(elem, &wrapper); err != nil {
			return nil, err
		}
		if nested, ok := wrapper["json"]; ok {
			return nested, nil
		}
		return elem, nil

	case '{':
		if !json.Valid(trimmed) {
			return nil, errors.New("invalid JSON object")
		}
		return trimmed, nil

	default:
		return nil, fmt.Errorf("unsupported response shape starting with %q", trimmed[0])
	}
}
