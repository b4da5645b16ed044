package db

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestExtractTenantID(t *testing.T) {
	e := echo.New()

	tests := []struct {
		name   string
		header string
		query  string
		want   string
	}{
		{"header wins", "acme", "other", "acme"},
		{"query fallback", "", "acme", "acme"},
		{"default fallback", "", "", "demo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/"
			if tt.query != "" {
				target = "/?tenant_id=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("X-Tenant-ID", tt.header)
			}
			c := e.NewContext(req, httptest.NewRecorder())

			if got := extractTenantID(c, "demo"); got != tt.want {
				t.Errorf("extractTenantID = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTenantIDPattern(t *testing.T) {
	valid := []string{"acme", "lab_01", "A1"}
	for _, id := range valid {
		if !tenantIDPattern.MatchString(id) {
			t.Errorf("expected %q to be a valid tenant id", id)
		}
	}
	invalid := []string{"", "acme-lab", "a;DROP SCHEMA shared", "a b"}
	for _, id := range invalid {
		if tenantIDPattern.MatchString(id) {
			t.Errorf("expected %q to be rejected", id)
		}
	}
}

func TestWithTenant_RoundTrip(t *testing.T) {
	ctx := WithTenant(context.Background(), "acme")
	if got := TenantFromContext(ctx); got != "acme" {
		t.Errorf("TenantFromContext = %q, want acme", got)
	}
	if got := TenantFromContext(context.Background()); got != "" {
		t.Errorf("TenantFromContext on empty context = %q, want empty", got)
	}
}
