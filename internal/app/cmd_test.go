package app

import (
	"io"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewRootCommand_RegistersSubcommands(t *testing.T) {
	root := NewRootCommand(io.Discard)

	var got []string
	for _, c := range root.Commands() {
		got = append(got, c.Name())
	}
	sort.Strings(got)

	want := []string{
		string(CommandHealthcheck),
		string(CommandMigrate),
		string(CommandOnboard),
		string(CommandSandbox),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("サブコマンドが一致しない (-want +got):\n%s", diff)
	}
}

func TestNewRootCommand_OnboardHasScriptFlag(t *testing.T) {
	root := NewRootCommand(io.Discard)

	cmd, _, err := root.Find([]string{string(CommandOnboard)})
	if err != nil {
		t.Fatalf("onboardコマンドが見つからない: %v", err)
	}
	if cmd.Flags().Lookup("script") == nil {
		t.Error("onboardは--scriptフラグを持つべき")
	}
}

func TestNewRootCommand_MigrateDefaultTarget(t *testing.T) {
	root := NewRootCommand(io.Discard)

	cmd, _, err := root.Find([]string{string(CommandMigrate)})
	if err != nil {
		t.Fatalf("migrateコマンドが見つからない: %v", err)
	}
	f := cmd.Flags().Lookup("target")
	if f == nil {
		t.Fatal("migrateは--targetフラグを持つべき")
	}
	if f.DefValue != migrateTargetAll {
		t.Errorf("--targetのデフォルト = %q, want %q", f.DefValue, migrateTargetAll)
	}
}
