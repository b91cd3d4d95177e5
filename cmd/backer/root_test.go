package main

import (
	"testing"

	"github.com/spf13/cobra"
)

func TestRootRegistersCommands(t *testing.T) {
	root := newRootCommand()
	want := []string{
		"daemon", "start", "stop", "restart", "status",
		"backup", "index", "restore", "list",
		"history", "logs", "test-notify", "config",
	}
	registered := make(map[string]bool)
	for _, cmd := range root.Commands() {
		registered[cmd.Name()] = true
	}
	for _, name := range want {
		if !registered[name] {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestShouldSkipConfigLoad(t *testing.T) {
	parent := &cobra.Command{Use: "config"}
	child := &cobra.Command{
		Use:         "init",
		Annotations: map[string]string{"skipConfigLoad": "true"},
	}
	parent.AddCommand(child)
	if !shouldSkipConfigLoad(child) {
		t.Fatalf("annotated command should skip config load")
	}
	if shouldSkipConfigLoad(parent) {
		t.Fatalf("unannotated command should load config")
	}

	grandchild := &cobra.Command{Use: "dump"}
	child.AddCommand(grandchild)
	if !shouldSkipConfigLoad(grandchild) {
		t.Fatalf("annotation should apply to descendants")
	}
}
