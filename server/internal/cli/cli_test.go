package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/kong"

	"github.com/floorscore/floorscore/pkg/csvio"
	"github.com/floorscore/floorscore/pkg/efficiency"
)

func testContext() (*Context, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return &Context{Out: &out, Err: &errOut, Profiles: efficiency.DefaultProfiles()}, &out, &errOut
}

// --- score ---

func TestScore(t *testing.T) {
	ctx, out, _ := testContext()
	cmd := &ScoreCmd{Hours: 8, Products: 144, Rework: 2, Downtime: 10}
	if err := cmd.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// 144 / (8*20) = 90, penalty 4 + 5
	for _, want := range []string{"81%", "medium", "default", "rework penalty"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestScore_Overrides(t *testing.T) {
	ctx, out, _ := testContext()
	cmd := &ScoreCmd{Hours: 1, Products: 30, Target: 20, Ceiling: "clamp"}
	if err := cmd.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "100%") || !strings.Contains(out.String(), "overage") {
		t.Errorf("clamped overage not reported:\n%s", out.String())
	}
}

func TestScore_ZeroHours(t *testing.T) {
	ctx, _, _ := testContext()
	err := (&ScoreCmd{Hours: 0, Products: 5}).Run(ctx)
	if !errors.Is(err, efficiency.ErrInvalidDivisor) {
		t.Errorf("err = %v, want ErrInvalidDivisor", err)
	}
}

func TestScore_SkillProfile(t *testing.T) {
	ctx, out, _ := testContext()
	fast := efficiency.DefaultParams()
	fast.TargetRatePerHour = 40
	ctx.Profiles.BySkill = map[string]efficiency.Params{"Welding": fast}

	if err := (&ScoreCmd{Hours: 1, Products: 20, Skill: "welding"}).Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "Welding") || !strings.Contains(out.String(), "50%") {
		t.Errorf("profile not applied:\n%s", out.String())
	}
}

// --- batch ---

const batchCSV = "ID,Worker ID,Skill,Total Hours Worked,Products Made,Rework Count,Downtime Minutes\n" +
	"1,W1,,8,160,0,0\n" +
	"2,W2,,8,120,1,10\n" +
	"3,W3,,0,10,0,0\n" +
	"4,W4,,8,160,0,0\n"

func TestBatch(t *testing.T) {
	ctx, out, errOut := testContext()
	if err := Batch(ctx, strings.NewReader(batchCSV)); err != nil {
		t.Fatalf("Batch: %v", err)
	}

	rows, err := csvio.ReadAll(strings.NewReader(out.String()))
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("output rows = %d, want 4", len(rows))
	}
	if got := rows[0].Raw["efficiency"]; got != "100" {
		t.Errorf("row 1 efficiency = %v, want 100", got)
	}
	// 120/160 = 75, penalty 2 + 5
	if got := rows[1].Raw["efficiency"]; got != "68" {
		t.Errorf("row 2 efficiency = %v, want 68", got)
	}
	if got, _ := rows[2].Raw["error"].(string); !strings.Contains(got, "total_hours_worked") {
		t.Errorf("row 3 error = %q, want total_hours_worked failure", got)
	}

	summary := errOut.String()
	for _, want := range []string{"line 4:", "scored: 3, invalid: 1", "average: 89.33%", "best: 1 (100%)", "worst: 2 (68%)"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
}

func TestBatch_AllInvalid(t *testing.T) {
	ctx, _, _ := testContext()
	in := "worker_id,total_hours_worked,products_made,rework_count,downtime_minutes\nW1,-1,5,0,0\n"
	if err := Batch(ctx, strings.NewReader(in)); !errors.Is(err, ErrNoValidRows) {
		t.Errorf("err = %v, want ErrNoValidRows", err)
	}
}

func TestBatch_Empty(t *testing.T) {
	ctx, _, _ := testContext()
	if err := Batch(ctx, strings.NewReader("")); !errors.Is(err, csvio.ErrNoHeader) {
		t.Errorf("err = %v, want ErrNoHeader", err)
	}
}

// --- params ---

func TestParams(t *testing.T) {
	ctx, out, _ := testContext()
	slow := efficiency.DefaultParams()
	slow.TargetRatePerHour = 12
	slow.Ceiling = efficiency.CeilingClamp
	ctx.Profiles.BySkill = map[string]efficiency.Params{"assembly": slow}

	if err := (&ParamsCmd{}).Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3:\n%s", len(lines), out.String())
	}
	if !strings.HasPrefix(lines[1], "default") || !strings.Contains(lines[1], "none") {
		t.Errorf("default row = %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "assembly") || !strings.Contains(lines[2], "clamp") {
		t.Errorf("assembly row = %q", lines[2])
	}
}

// --- profiles and parsing ---

func TestLoadProfiles(t *testing.T) {
	p, err := LoadProfiles("")
	if err != nil {
		t.Fatalf("LoadProfiles(\"\"): %v", err)
	}
	if p.Default.TargetRatePerHour != efficiency.DefaultTargetRatePerHour {
		t.Errorf("default target = %v", p.Default.TargetRatePerHour)
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "scoring:\n  target_rate_per_hour: 25\n  profiles:\n    welding:\n      target_rate_per_hour: 10\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	p, err = LoadProfiles(path)
	if err != nil {
		t.Fatalf("LoadProfiles: %v", err)
	}
	if p.Default.TargetRatePerHour != 25 || p.BySkill["welding"].TargetRatePerHour != 10 {
		t.Errorf("profiles = %+v", p)
	}
	if p.BySkill["welding"].ReworkPenaltyPerUnit != p.Default.ReworkPenaltyPerUnit {
		t.Error("profile did not inherit rework penalty from default")
	}
}

func TestKongParse(t *testing.T) {
	var root struct {
		Score  ScoreCmd  `cmd:""`
		Params ParamsCmd `cmd:""`
	}
	parser, err := kong.New(&root, kong.Exit(func(int) { t.Fatal("unexpected exit") }))
	if err != nil {
		t.Fatalf("kong.New: %v", err)
	}
	kctx, err := parser.Parse([]string{"score", "--hours", "8", "--products", "160"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ctx, out, _ := testContext()
	if err := kctx.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "100%") {
		t.Errorf("output:\n%s", out.String())
	}
}
