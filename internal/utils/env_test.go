package utils

import (
	"testing"
	"time"
)

func TestSafeEnv(t *testing.T) {
	const key = "_SYNAPIRT_TEST_SAFEENV"
	t.Setenv(key, "")
	if got := SafeEnv(key, "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
	t.Setenv(key, "value")
	if got := SafeEnv(key, "fallback"); got != "value" {
		t.Fatalf("expected 'value', got %q", got)
	}
}

func TestTypedEnv(t *testing.T) {
	const key = "_SYNAPIRT_TEST_TYPED"
	t.Setenv(key, " 42 ")
	if got := EnvInt(key, 1); got != 42 {
		t.Fatalf("EnvInt: got %d", got)
	}
	if got := EnvFloat(key, 1); got != 42 {
		t.Fatalf("EnvFloat: got %v", got)
	}
	if got := EnvBool(key, true); got != true {
		t.Fatalf("EnvBool should fall back on %q", "42")
	}
	t.Setenv(key, "false")
	if got := EnvBool(key, true); got {
		t.Fatalf("EnvBool: got %v", got)
	}
	if got := EnvInt(key, 7); got != 7 {
		t.Fatalf("EnvInt fallback: got %d", got)
	}
	t.Setenv(key, "90s")
	if got := EnvDuration(key, time.Second); got != 90*time.Second {
		t.Fatalf("EnvDuration: got %v", got)
	}
	t.Setenv(key, "a, ,b")
	if got := EnvList(key, nil); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("EnvList: got %v", got)
	}
}
