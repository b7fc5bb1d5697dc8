package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/SessionWarden/go-session-warden/models"
)

func TestOptimizeForPlatform_DoesNotMutateInput(t *testing.T) {
	payload := models.PushPayload{
		Title: strings.Repeat("t", 200),
		Body:  strings.Repeat("b", 400),
		Data:  map[string]string{"k": "v"},
	}

	out := OptimizeForPlatform(models.PlatformIOS, payload, time.Hour)

	if payload.Title != strings.Repeat("t", 200) {
		t.Error("input title was mutated")
	}
	if payload.Sound != "" || payload.TTL != 0 {
		t.Error("input payload was mutated")
	}

	out.Data["k"] = "changed"
	if payload.Data["k"] != "v" {
		t.Error("input data map was shared with the output")
	}
}

func TestOptimizeForPlatform_Truncation(t *testing.T) {
	payload := models.PushPayload{
		Title: strings.Repeat("t", 200),
		Body:  strings.Repeat("b", 400),
	}

	cases := []struct {
		platform  models.Platform
		wantTitle int
		wantBody  int
	}{
		{models.PlatformIOS, 50, 178},
		{models.PlatformAndroid, 65, 240},
		{models.PlatformWeb, 50, 120},
	}

	for _, tc := range cases {
		out := OptimizeForPlatform(tc.platform, payload, time.Hour)
		if got := len([]rune(out.Title)); got != tc.wantTitle {
			t.Errorf("%s: expected title length %d, got %d", tc.platform, tc.wantTitle, got)
		}
		if got := len([]rune(out.Body)); got != tc.wantBody {
			t.Errorf("%s: expected body length %d, got %d", tc.platform, tc.wantBody, got)
		}
		if !strings.HasSuffix(out.Title, "…") {
			t.Errorf("%s: expected truncated title to end with ellipsis", tc.platform)
		}
	}
}

func TestOptimizeForPlatform_ShortContentUntouched(t *testing.T) {
	payload := models.PushPayload{Title: "Alert", Body: "Something happened"}

	out := OptimizeForPlatform(models.PlatformWeb, payload, time.Hour)
	if out.Title != "Alert" || out.Body != "Something happened" {
		t.Errorf("expected short content untouched, got %q / %q", out.Title, out.Body)
	}
}

func TestOptimizeForPlatform_Defaults(t *testing.T) {
	out := OptimizeForPlatform(models.PlatformAndroid, models.PushPayload{Title: "a"}, 0)

	if out.Sound != "default" {
		t.Errorf("expected default sound, got %q", out.Sound)
	}
	if out.Icon != "ic_notification" {
		t.Errorf("expected default icon, got %q", out.Icon)
	}
	if out.TTL != time.Hour {
		t.Errorf("expected fallback TTL of 1h, got %v", out.TTL)
	}
}

func TestOptimizeForPlatform_ExplicitFieldsKept(t *testing.T) {
	payload := models.PushPayload{
		Title: "a",
		Sound: "chime",
		Icon:  "custom.png",
		TTL:   10 * time.Minute,
	}

	out := OptimizeForPlatform(models.PlatformIOS, payload, time.Hour)
	if out.Sound != "chime" || out.Icon != "custom.png" || out.TTL != 10*time.Minute {
		t.Errorf("expected explicit fields kept, got %+v", out)
	}
}
