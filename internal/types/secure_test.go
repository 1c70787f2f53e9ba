package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

const testSecret = "123456:telegram-bot-token"

func TestSecretString_Redaction(t *testing.T) {
	s := SecretString(testSecret)

	for name, got := range map[string]string{
		"String":     s.String(),
		"Sprintf %s": fmt.Sprintf("%s", s),
		"Sprintf %v": fmt.Sprintf("%v", s),
	} {
		if strings.Contains(got, testSecret) {
			t.Errorf("%s leaked the raw secret: %q", name, got)
		}
	}

	data, err := json.Marshal(struct {
		Token SecretString `json:"token"`
	}{s})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `{"token":"***REDACTED***"}` {
		t.Errorf("json = %s", data)
	}
}

func TestSecretString_SlogRedaction(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logger.Info("config", "token", SecretString(testSecret))

	if strings.Contains(buf.String(), testSecret) {
		t.Errorf("slog output leaked the raw secret: %s", buf.String())
	}
}

func TestSecretString_Unmask(t *testing.T) {
	s := SecretString(testSecret)
	if s.Unmask() != testSecret {
		t.Errorf("Unmask() = %q", s.Unmask())
	}
	if !s.IsSet() || SecretString("").IsSet() {
		t.Error("IsSet mismatch")
	}
}
