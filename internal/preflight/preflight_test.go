package preflight

import (
	"errors"
	"os/exec"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func fakeLookPath(present ...string) LookPathFunc {
	set := map[string]bool{}
	for _, p := range present {
		set[p] = true
	}
	return func(file string) (string, error) {
		if set[file] {
			return "/usr/bin/" + file, nil
		}
		return "", exec.ErrNotFound
	}
}

func TestCheckAllPresent(t *testing.T) {
	look := fakeLookPath("find", "goaccess", "gunzip", "aws")
	var lookups []string
	counting := func(file string) (string, error) {
		lookups = append(lookups, file)
		return look(file)
	}
	if err := Check(counting, []string{"find", "goaccess", "gunzip", "aws", "aws"}); err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if diff := cmp.Diff([]string{"find", "goaccess", "gunzip", "aws"}, lookups); diff != "" {
		t.Fatalf("each command should be looked up once (-want +got):\n%s", diff)
	}
}

func TestCheckRepeatedMissingNamedOnce(t *testing.T) {
	err := Check(fakeLookPath(), []string{"goaccess", "goaccess"})
	var me *MissingError
	if !errors.As(err, &me) || len(me.Commands) != 1 {
		t.Fatalf("expected goaccess reported once, got %v", err)
	}
}

func TestCheckNamesEveryMissingCommand(t *testing.T) {
	err := Check(fakeLookPath("find", "aws"), []string{"find", "goaccess", "gunzip", "aws"})
	var me *MissingError
	if !errors.As(err, &me) {
		t.Fatalf("expected *MissingError, got %v", err)
	}
	if diff := cmp.Diff([]string{"goaccess", "gunzip"}, me.Commands); diff != "" {
		t.Fatalf("missing commands mismatch (-want +got):\n%s", diff)
	}
	if want := "could not find 'goaccess', 'gunzip' in PATH"; err.Error() != want {
		t.Fatalf("expected %q, got %q", want, err.Error())
	}
}
