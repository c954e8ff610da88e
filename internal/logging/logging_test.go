package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestSetupWriter(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	if err := SetupWriter(&buf, "warn", false); err != nil {
		t.Fatalf("SetupWriter failed: %v", err)
	}

	log.Info().Msg("hidden")
	log.Warn().Str("element", "img-1").Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("Info should be filtered at warn level")
	}
	if !strings.Contains(out, `"element":"img-1"`) || !strings.Contains(out, `"level":"warn"`) {
		t.Errorf("Unexpected output %s", out)
	}
}

func TestSetupWriterPretty(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	if err := SetupWriter(&buf, "", true); err != nil {
		t.Fatalf("SetupWriter failed: %v", err)
	}
	log.Info().Msg("console")
	if strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), "console") {
		t.Errorf("Expected console formatted output, got %q", buf.String())
	}
}

func TestSetupInvalidLevel(t *testing.T) {
	if err := SetupWriter(&bytes.Buffer{}, "loud", false); err == nil {
		t.Error("Expected error for invalid level")
	}
}
