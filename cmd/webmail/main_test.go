package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/99designs/keyring"

	"github.com/nhle/webmail/internal/credential"
)

func TestRun_ArgumentErrors(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "missing.yaml")

	tests := []struct {
		name    string
		args    []string
		stdin   string
		wantErr string
	}{
		{name: "unknown command", args: []string{"-config", cfgPath, "bogus"}, wantErr: "unknown command"},
		{name: "secret without action", args: []string{"-config", cfgPath, "secret"}, wantErr: "usage"},
		{name: "unknown secret action", args: []string{"-config", cfgPath, "secret", "rotate"}, wantErr: "unknown secret command"},
		{name: "empty secret", args: []string{"-config", cfgPath, "secret", "set"}, stdin: "  \n", wantErr: "client secret is empty"},
		{name: "bad flag", args: []string{"-nope"}, wantErr: "not defined"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			err := run(tt.args, strings.NewReader(tt.stdin), &stdout, &stderr)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestSecret_SetAndDelete(t *testing.T) {
	store := credential.NewSecretStore(keyring.NewArrayKeyring(nil))

	var out bytes.Buffer
	if err := secret([]string{"set"}, store, strings.NewReader("GOCSPX-xyz\n"), &out); err != nil {
		t.Fatalf("secret set: %v", err)
	}
	if got, err := store.ClientSecret(); err != nil || got != "GOCSPX-xyz" {
		t.Fatalf("stored secret = %q, %v", got, err)
	}

	// A secret piped without a trailing newline is accepted too.
	if err := secret([]string{"set"}, store, strings.NewReader("GOCSPX-rotated"), &out); err != nil {
		t.Fatalf("secret set without newline: %v", err)
	}
	if got, _ := store.ClientSecret(); got != "GOCSPX-rotated" {
		t.Errorf("stored secret = %q", got)
	}

	out.Reset()
	if err := secret([]string{"delete"}, store, nil, &out); err != nil {
		t.Fatalf("secret delete: %v", err)
	}
	if !strings.Contains(out.String(), "removed") {
		t.Errorf("delete output = %q", out.String())
	}

	out.Reset()
	if err := secret([]string{"delete"}, store, nil, &out); err != nil {
		t.Fatalf("deleting an absent secret: %v", err)
	}
	if !strings.Contains(out.String(), "No client secret") {
		t.Errorf("second delete output = %q", out.String())
	}
}
