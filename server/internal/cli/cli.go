package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/floorscore/floorscore/pkg/csvio"
	"github.com/floorscore/floorscore/pkg/efficiency"
	"github.com/floorscore/floorscore/server/internal/config"
)

// Context is passed to every command's Run method.
type Context struct {
	Out      io.Writer
	Err      io.Writer
	Profiles efficiency.Profiles
}

// LoadProfiles reads the scoring section of a floorscore-server config file.
// An empty path yields the built-in defaults.
func LoadProfiles(path string) (efficiency.Profiles, error) {
	if path == "" {
		return config.Default().Scoring.Resolve(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return efficiency.Profiles{}, err
	}
	return cfg.Scoring.Resolve(), nil
}

// ScoreCmd scores a single shift given on the command line.
type ScoreCmd struct {
	Hours    float64 `required:"" help:"Total hours worked."`
	Products int     `required:"" help:"Products made."`
	Rework   int     `default:"0" help:"Reworked units."`
	Downtime float64 `default:"0" help:"Downtime in minutes."`
	Skill    string  `help:"Skill profile to score with."`
	Target   float64 `help:"Override the target rate per hour."`
	Ceiling  string  `help:"Override the ceiling policy (none, clamp)."`
}

func (c *ScoreCmd) Run(ctx *Context) error {
	p, profile := ctx.Profiles.For(c.Skill)
	if c.Target != 0 {
		p.TargetRatePerHour = c.Target
	}
	if c.Ceiling != "" {
		p.Ceiling = efficiency.CeilingPolicy(c.Ceiling)
	}
	if err := p.Validate(); err != nil {
		return err
	}

	rec := efficiency.Record{
		TotalHoursWorked: c.Hours,
		ProductsMade:     c.Products,
		ReworkCount:      c.Rework,
		DowntimeMinutes:  c.Downtime,
	}
	if err := rec.Check(); err != nil {
		return err
	}
	sc := efficiency.Compute(rec, p)

	tw := tabwriter.NewWriter(ctx.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "profile\t%s\n", profile)
	fmt.Fprintf(tw, "base\t%.2f\n", sc.Base)
	fmt.Fprintf(tw, "rework penalty\t%.2f\n", sc.ReworkPenalty)
	fmt.Fprintf(tw, "downtime penalty\t%.2f\n", sc.DowntimePenalty)
	fmt.Fprintf(tw, "raw\t%.2f\n", sc.Raw)
	fmt.Fprintf(tw, "efficiency\t%d%%\n", sc.Value)
	fmt.Fprintf(tw, "band\t%s\n", sc.Band())
	if sc.Overage {
		fmt.Fprintf(tw, "overage\tyes, review the inputs\n")
	}
	return tw.Flush()
}

// batchColumns is the annotated CSV layout written by BatchCmd.
var batchColumns = []string{
	"line", "id", efficiency.FieldWorkerID, "skill",
	efficiency.FieldTotalHoursWorked, efficiency.FieldProductsMade,
	efficiency.FieldReworkCount, efficiency.FieldDowntimeMinutes,
	"efficiency", "band", "overage", "profile", "error",
}

// ErrNoValidRows is returned when every row of a batch failed validation.
var ErrNoValidRows = errors.New("no valid rows")

// BatchCmd scores every row of a CSV file.
type BatchCmd struct {
	File string `arg:"" type:"existingfile" help:"CSV file with one shift per row."`
}

func (c *BatchCmd) Run(ctx *Context) error {
	f, err := os.Open(c.File)
	if err != nil {
		return err
	}
	defer f.Close()
	return Batch(ctx, f)
}

// Batch scores the CSV read from r, writes the annotated rows to ctx.Out and
// the summary and row errors to ctx.Err.
func Batch(ctx *Context, r io.Reader) error {
	rows, err := csvio.ReadAll(r)
	if err != nil {
		return err
	}
	w, err := csvio.NewWriter(ctx.Out, batchColumns)
	if err != nil {
		return err
	}

	var (
		entries []efficiency.Entry
		invalid int
	)
	for _, row := range rows {
		id := csvio.Format(row.Raw["id"])
		if id == "" {
			id = strconv.Itoa(row.Line)
		}
		skill := csvio.Format(row.Raw["skill"])
		p, profile := ctx.Profiles.For(skill)

		out := map[string]any{"line": row.Line, "id": id, "skill": skill, "profile": profile}
		rec, sc, err := efficiency.ScoreRaw(row.Raw, p)
		if err != nil {
			invalid++
			out["error"] = err.Error()
			for _, col := range batchColumns[2:8] {
				if v, ok := row.Raw.Lookup(col); ok {
					out[col] = v
				}
			}
			fmt.Fprintf(ctx.Err, "line %d: %v\n", row.Line, err)
		} else {
			out[efficiency.FieldWorkerID] = rec.WorkerID
			out[efficiency.FieldTotalHoursWorked] = rec.TotalHoursWorked
			out[efficiency.FieldProductsMade] = rec.ProductsMade
			out[efficiency.FieldReworkCount] = rec.ReworkCount
			out[efficiency.FieldDowntimeMinutes] = rec.DowntimeMinutes
			out["efficiency"] = sc.Value
			out["band"] = sc.Band()
			out["overage"] = sc.Overage
			entries = append(entries, efficiency.Entry{RecordID: id, Value: sc.Value})
		}
		if err := w.Write(out); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	sum, err := efficiency.Aggregate(efficiency.Entries(entries))
	if err != nil {
		fmt.Fprintf(ctx.Err, "rows: %d, invalid: %d\n", len(rows), invalid)
		return ErrNoValidRows
	}
	fmt.Fprintf(ctx.Err, "rows: %d, scored: %d, invalid: %d\n", len(rows), sum.Count, invalid)
	fmt.Fprintf(ctx.Err, "average: %.2f%%\n", sum.RoundedAverage(2))
	fmt.Fprintf(ctx.Err, "best: %s (%d%%)\n", sum.Best.RecordID, sum.Best.Value)
	fmt.Fprintf(ctx.Err, "worst: %s (%d%%)\n", sum.Worst.RecordID, sum.Worst.Value)
	return nil
}

// ParamsCmd prints the effective scoring parameters.
type ParamsCmd struct{}

func (c *ParamsCmd) Run(ctx *Context) error {
	tw := tabwriter.NewWriter(ctx.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROFILE\tTARGET/H\tREWORK/UNIT\tDOWNTIME/MIN\tCEILING")
	row := func(name string, p efficiency.Params) {
		ceiling := p.Ceiling
		if ceiling == "" {
			ceiling = efficiency.CeilingNone
		}
		fmt.Fprintf(tw, "%s\t%g\t%g\t%g\t%s\n", name,
			p.TargetRatePerHour, p.ReworkPenaltyPerUnit, p.DowntimeCostPerMinute, ceiling)
	}
	row("default", ctx.Profiles.Default)
	for _, name := range ctx.Profiles.Skills() {
		row(name, ctx.Profiles.BySkill[name])
	}
	return tw.Flush()
}
