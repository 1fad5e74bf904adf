package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestStepWeightsSumTo100(t *testing.T) {
	total := 0
	for _, s := range Steps {
		total += s.Weight
	}
	if total != 100 {
		t.Fatalf("step weights sum to %d, want 100", total)
	}
	if len(Steps) != 6 {
		t.Fatalf("expected 6 steps, got %d", len(Steps))
	}
}

func TestWeightBefore(t *testing.T) {
	cases := map[StepID]int{
		StepSystemCheck:  0,
		StepGUITools:     10,
		StepCLITools:     40,
		StepPackages:     65,
		StepDotfiles:     85,
		StepVerification: 95,
	}
	for id, want := range cases {
		if got := WeightBefore(id); got != want {
			t.Errorf("WeightBefore(%s) = %d, want %d", id, got, want)
		}
	}
}

func TestPercentRoundsHalfUp(t *testing.T) {
	cases := []struct{ done, total, want int }{
		{1, 2, 50}, {2, 2, 100}, {1, 3, 33}, {2, 3, 67}, {3, 3, 100},
		{1, 8, 13}, {0, 5, 0}, {0, 0, 100},
	}
	for _, c := range cases {
		if got := Percent(c.done, c.total); got != c.want {
			t.Errorf("Percent(%d, %d) = %d, want %d", c.done, c.total, got, c.want)
		}
	}
}

func TestPackageSetJSONKeepsOrder(t *testing.T) {
	var set PackageSet
	if err := json.Unmarshal([]byte(`{"npm":["left-pad","react"],"brew":"wget","pip":{"file":"req.txt"}}`), &set); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(set) != 3 || set[0].Manager != "npm" || set[1].Manager != "brew" || set[2].Manager != "pip" {
		t.Fatalf("unexpected order: %+v", set)
	}
	total, err := set.Total()
	if err != nil || total != 4 {
		t.Fatalf("Total() = %d, %v; want 4", total, err)
	}
	names, list, err := set[1].Items()
	if err != nil || list || len(names) != 1 || names[0] != "wget" {
		t.Fatalf("scalar Items() = %v, %v, %v", names, list, err)
	}
	names, _, _ = set[2].Items()
	if names[0] != `{"file":"req.txt"}` {
		t.Fatalf("object scalar = %q", names[0])
	}

	out, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"npm":["left-pad","react"],"brew":"wget","pip":{"file":"req.txt"}}`
	if string(out) != want {
		t.Fatalf("marshal = %s, want %s", out, want)
	}
}

func TestPackageSetYAMLKeepsOrder(t *testing.T) {
	var tpl Template
	doc := "name: Go\npackages:\n  go:\n    - golang.org/x/tools/gopls\n  brew: jq\n"
	if err := yaml.Unmarshal([]byte(doc), &tpl); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(tpl.Packages) != 2 || tpl.Packages[0].Manager != "go" || tpl.Packages[1].Manager != "brew" {
		t.Fatalf("unexpected packages: %+v", tpl.Packages)
	}
}

func TestPackageGroupInvalidList(t *testing.T) {
	g := PackageGroup{Manager: "npm", Raw: json.RawMessage(`[1, 2]`)}
	_, err := g.Count()
	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if valErr.Field != "packages.npm" {
		t.Errorf("field = %s", valErr.Field)
	}
}

func TestDotfileName(t *testing.T) {
	if got := (Dotfile{Filename: ".zshrc"}).Name(0); got != ".zshrc" {
		t.Errorf("got %s", got)
	}
	if got := (Dotfile{}).Name(2); got != "config_2" {
		t.Errorf("got %s", got)
	}
}

func TestTemplateRequirementDefaults(t *testing.T) {
	tpl := Template{}
	if tpl.SetupTime() != DefaultSetupTime || tpl.Difficulty() != DefaultDifficulty {
		t.Fatalf("unexpected defaults %q %q", tpl.SetupTime(), tpl.Difficulty())
	}
	tpl.Requirements = map[string]any{"difficulty": "Beginner"}
	if tpl.Difficulty() != "Beginner" {
		t.Fatalf("difficulty = %q", tpl.Difficulty())
	}
}

func TestAsAppError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("workspace ws-1: %w", ErrNotFound), http.StatusNotFound},
		{ErrConflict, http.StatusConflict},
		{&ValidationError{Field: "packages", Message: "bad"}, http.StatusUnprocessableEntity},
		{&StepError{Step: StepGUITools, Err: errors.New("boom")}, http.StatusInternalServerError},
		{NewAppError(ErrBadRequest, "x"), http.StatusBadRequest},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := AsAppError(c.err).Code.HTTPStatus(); got != c.want {
			t.Errorf("%v: status %d, want %d", c.err, got, c.want)
		}
	}
}

func TestParseEnums(t *testing.T) {
	if _, err := ParseWorkspaceStatus("installed"); err == nil {
		t.Error("installed must not be a workspace status")
	}
	if _, err := ParseLogKind("gui_tools"); err != nil {
		t.Error(err)
	}
	if _, err := ParseLogStatus("done"); err == nil {
		t.Error("expected error for unknown log status")
	}
}

func TestCanStartInstall(t *testing.T) {
	for status, want := range map[WorkspaceStatus]bool{
		WorkspaceInstalling: false,
		WorkspaceArchived:   false,
		WorkspaceActive:     true,
		WorkspaceInactive:   true,
		WorkspaceError:      true,
	} {
		if got := status.CanStartInstall(); got != want {
			t.Errorf("%s: got %v, want %v", status, got, want)
		}
	}
}
