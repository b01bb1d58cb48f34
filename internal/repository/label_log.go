package repository

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/carolinacraus/market-state-api/internal/domain/models"
	domrepo "github.com/carolinacraus/market-state-api/internal/domain/repository"
	applogger "github.com/carolinacraus/market-state-api/pkg/logger"
	"github.com/carolinacraus/market-state-api/pkg/util"
)

const ledgerSep = ", "

// TextLabelLog is a pair of plain-text ledgers: "date, regime" lines and
// "date, regime, diagnostic" lines. Each file is checked for existing dates
// independently, so a crash between the two appends heals on the next run.
type TextLabelLog struct {
	statesPath string
	diagPath   string
	l          *applogger.Logger
}

var _ domrepo.LabelLog = (*TextLabelLog)(nil)

func NewTextLabelLog(statesPath, diagPath string) *TextLabelLog {
	return &TextLabelLog{statesPath: statesPath, diagPath: diagPath}
}

// SetLogger injects a structured logger.
func (g *TextLabelLog) SetLogger(l *applogger.Logger) { g.l = l }

// Entries returns the ledger in file order, with diagnostics joined by date.
func (g *TextLabelLog) Entries(ctx context.Context) ([]models.LogEntry, error) {
	states, err := readLedger(g.statesPath, false)
	if err != nil {
		return nil, err
	}
	diags, err := readLedger(g.diagPath, true)
	if err != nil {
		return nil, err
	}
	byDate := make(map[string]string, len(diags))
	for _, d := range diags {
		byDate[models.DayKey(d.Date)] = d.Diagnostic
	}
	for i := range states {
		states[i].Diagnostic = byDate[models.DayKey(states[i].Date)]
	}
	return states, ctx.Err()
}

// Append writes labels whose date is absent from each file. Labels repeated
// within the batch are written once. The count is for the states ledger.
func (g *TextLabelLog) Append(ctx context.Context, labels []models.Label) (int, error) {
	if len(labels) == 0 {
		return 0, nil
	}
	n, err := appendLedger(g.statesPath, labels, func(l models.Label) string {
		return util.FormatDay(l.Date) + ledgerSep + string(l.Regime)
	})
	if err != nil {
		return n, err
	}
	if err := ctx.Err(); err != nil {
		return n, err
	}
	d, err := appendLedger(g.diagPath, labels, func(l models.Label) string {
		return util.FormatDay(l.Date) + ledgerSep + string(l.Regime) + ledgerSep + oneLine(l.Diagnostic)
	})
	if err != nil {
		return n, err
	}
	if n != d {
		g.l.Warn("ledger files out of step",
			applogger.String("states", filepath.Base(g.statesPath)),
			applogger.Int("states_appended", n),
			applogger.Int("diagnostics_appended", d),
		)
	}
	return n, nil
}

// Rewrite replaces both ledgers with labels sorted by date.
func (g *TextLabelLog) Rewrite(ctx context.Context, labels []models.Label) error {
	sorted := append([]models.Label(nil), labels...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })
	sorted = dedupeLabels(sorted, nil)

	var states, diags strings.Builder
	for _, l := range sorted {
		day := util.FormatDay(l.Date)
		states.WriteString(day + ledgerSep + string(l.Regime) + "\n")
		diags.WriteString(day + ledgerSep + string(l.Regime) + ledgerSep + oneLine(l.Diagnostic) + "\n")
	}
	if err := writeFileAtomic(g.statesPath, states.String()); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return writeFileAtomic(g.diagPath, diags.String())
}

func readLedger(path string, withDiag bool) ([]models.LogEntry, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	var out []models.LogEntry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		e, ok := parseLedgerLine(sc.Text(), withDiag)
		if ok {
			out = append(out, e)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read ledger %s: %w", filepath.Base(path), err)
	}
	return out, nil
}

// parseLedgerLine splits on the first two separators; diagnostics may
// contain commas.
func parseLedgerLine(line string, withDiag bool) (models.LogEntry, bool) {
	day, rest, ok := strings.Cut(strings.TrimSpace(line), ",")
	if !ok {
		return models.LogEntry{}, false
	}
	date, ok := util.ParseDay(day)
	if !ok {
		return models.LogEntry{}, false
	}
	e := models.LogEntry{Date: date}
	regime := rest
	if withDiag {
		regime, e.Diagnostic, _ = strings.Cut(rest, ",")
		e.Diagnostic = strings.TrimSpace(e.Diagnostic)
	}
	e.Regime = models.Regime(strings.TrimSpace(regime))
	if e.Regime == "" {
		return models.LogEntry{}, false
	}
	return e, true
}

func appendLedger(path string, labels []models.Label, render func(models.Label) string) (int, error) {
	existing, err := readLedger(path, false)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]struct{}, len(existing))
	for _, e := range existing {
		seen[models.DayKey(e.Date)] = struct{}{}
	}
	fresh := dedupeLabels(labels, seen)
	if len(fresh) == 0 {
		return 0, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("create ledger dir: %w", err)
	}
	needsNewline, err := missingTrailingNewline(path)
	if err != nil {
		return 0, err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open ledger %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	var b strings.Builder
	if needsNewline {
		b.WriteByte('\n')
	}
	for _, l := range fresh {
		b.WriteString(render(l))
		b.WriteByte('\n')
	}
	if _, err := f.WriteString(b.String()); err != nil {
		return 0, fmt.Errorf("append ledger %s: %w", filepath.Base(path), err)
	}
	return len(fresh), f.Sync()
}

// dedupeLabels drops labels whose date is in seen or already taken earlier
// in the slice. seen is updated.
func dedupeLabels(labels []models.Label, seen map[string]struct{}) []models.Label {
	if seen == nil {
		seen = make(map[string]struct{}, len(labels))
	}
	out := make([]models.Label, 0, len(labels))
	for _, l := range labels {
		key := models.DayKey(l.Date)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, l)
	}
	return out
}

func missingTrailingNewline(path string) (bool, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil || st.Size() == 0 {
		return false, err
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, st.Size()-1); err != nil {
		return false, err
	}
	return last[0] != '\n', nil
}

func writeFileAtomic(path, content string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func oneLine(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
