package utils

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func envelopeFor(t *testing.T, handler fiber.Handler) (int, map[string]any) {
	t.Helper()

	app := fiber.New()
	app.Get("/", handler)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding body %q: %v", string(raw), err)
	}
	return resp.StatusCode, payload
}

func TestSuccessEnvelope(t *testing.T) {
	status, payload := envelopeFor(t, func(c *fiber.Ctx) error {
		return Success(c, fiber.StatusOK, fiber.Map{"count": 3})
	})

	if status != http.StatusOK {
		t.Fatalf("expected status 200, got %d", status)
	}
	if success, _ := payload["success"].(bool); !success {
		t.Fatalf("expected success=true, got %+v", payload)
	}
	data, ok := payload["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected data object, got %+v", payload)
	}
	if got := data["count"].(float64); got != 3 {
		t.Fatalf("expected count 3, got %v", got)
	}
}

func TestErrorEnvelope(t *testing.T) {
	status, payload := envelopeFor(t, func(c *fiber.Ctx) error {
		return Error(c, fiber.StatusNotFound, "file not found")
	})

	if status != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", status)
	}
	if success, _ := payload["success"].(bool); success {
		t.Fatalf("expected success=false, got %+v", payload)
	}
	if got, _ := payload["error"].(string); got != "file not found" {
		t.Fatalf("expected error %q, got %q", "file not found", got)
	}
}
