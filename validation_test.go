package formz

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

// waitFor polls cond until it holds or the deadline passes. Used for the
// handful of tests that exercise real asynchronous execution.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func noSpaces(value any, _ ValidationContext) *ValidationError {
	if s, ok := value.(string); ok && strings.Contains(s, " ") {
		return &ValidationError{Code: "noSpaces", Message: "spaces not allowed"}
	}
	return nil
}

func TestAddValidator_RunsOnWrite(t *testing.T) {
	form, _ := New(GroupSpec{"username": F("ok")})
	defer form.Dispose()

	if err := form.AddValidator("username", noSpaces); err != nil {
		t.Fatalf("AddValidator failed: %v", err)
	}

	fd, _ := form.FieldAt("username")
	fd.SetValue("has space")

	errs := fd.Errors()
	if len(errs) != 1 || errs[0].Code != "noSpaces" {
		t.Fatalf("expected noSpaces finding, got %v", errs)
	}
	if fd.Status() != StatusInvalid {
		t.Errorf("expected invalid, got %s", fd.Status())
	}

	fd.SetValue("fixed")
	if len(fd.Errors()) != 0 {
		t.Errorf("expected findings cleared, got %v", fd.Errors())
	}
}

func TestAddValidator_UnknownPath(t *testing.T) {
	form, _ := New(GroupSpec{"a": F(1)})
	defer form.Dispose()

	err := form.AddValidator("missing", noSpaces)
	if err == nil {
		t.Fatal("expected error for unknown target")
	}
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Errorf("expected *ConfigError, got %T", err)
	}
}

func TestAddValidator_WildcardCoversNewItems(t *testing.T) {
	form, _ := New(GroupSpec{
		"tags": &ArraySpec{Of: F(""), Values: []any{"seed"}},
	})
	defer form.Dispose()

	if err := form.AddValidator("tags[*]", Required()); err != nil {
		t.Fatalf("wildcard registration failed: %v", err)
	}

	arr, _ := form.ArrayAt("tags")
	item := arr.Push("")
	item.SetValue("")

	if item.Valid() {
		t.Error("expected wildcard validator to cover pushed item")
	}
	item.SetValue("filled")
	if !item.Valid() {
		t.Errorf("expected valid after fill, got %v", item.Errors())
	}
}

func TestAddValidator_WhenGatesAndWithdraws(t *testing.T) {
	form, _ := New(GroupSpec{
		"country": F("NO"),
		"state":   F(""),
	})
	defer form.Dispose()

	err := form.AddValidator("state", Required(),
		When("country", func(v any) bool { return v == "US" }))
	if err != nil {
		t.Fatalf("AddValidator failed: %v", err)
	}

	fd, _ := form.FieldAt("state")
	form.Validate(context.Background())
	if !fd.Valid() {
		t.Fatal("expected gated-off validator to not run")
	}

	country, _ := form.FieldAt("country")
	country.SetValue("US")
	form.Validate(context.Background())
	if fd.Valid() {
		t.Fatal("expected required state for US")
	}

	// Gating back off withdraws the finding.
	country.SetValue("NO")
	form.Validate(context.Background())
	if !fd.Valid() {
		t.Errorf("expected finding withdrawn, got %v", fd.Errors())
	}
}

func TestAddValidator_AsWarningDoesNotBlock(t *testing.T) {
	form, _ := New(GroupSpec{"bio": F("short")})
	defer form.Dispose()

	form.AddValidator("bio", MinLength(10), AsWarning())

	if !form.Validate(context.Background()) {
		t.Error("expected warnings to not block validity")
	}
	fd, _ := form.FieldAt("bio")
	errs := fd.Errors()
	if len(errs) != 1 || errs[0].Severity != SeverityWarning {
		t.Fatalf("expected one warning, got %v", errs)
	}
	if !fd.Valid() {
		t.Error("expected field valid with warning only")
	}
}

func TestAsyncValidator_SyncModeFlush(t *testing.T) {
	form, _ := New(GroupSpec{"username": F("")}, WithSyncMode())
	defer form.Dispose()

	var calls atomic.Int32
	form.AddAsyncValidator("username", func(_ context.Context, value any, _ ValidationContext) (*ValidationError, error) {
		calls.Add(1)
		if value == "taken" {
			return &ValidationError{Code: "usernameTaken", Message: "already in use"}, nil
		}
		return nil, nil
	})

	fd, _ := form.FieldAt("username")
	fd.SetValue("taken")

	if !fd.Pending() {
		t.Fatal("expected pending while queued")
	}
	if calls.Load() != 0 {
		t.Fatal("expected no execution before Flush")
	}

	form.Flush(context.Background())

	if fd.Pending() {
		t.Error("expected pending cleared after Flush")
	}
	errs := fd.Errors()
	if len(errs) != 1 || errs[0].Code != "usernameTaken" {
		t.Fatalf("expected usernameTaken, got %v", errs)
	}

	fd.SetValue("free")
	form.Flush(context.Background())
	if !fd.Valid() {
		t.Errorf("expected valid, got %v", fd.Errors())
	}
}

func TestAsyncValidator_SyncFailureSkipsAsync(t *testing.T) {
	form, _ := New(GroupSpec{"email": F("")}, WithSyncMode())
	defer form.Dispose()

	var asyncCalls atomic.Int32
	form.AddValidator("email", Required())
	form.AddAsyncValidator("email", func(context.Context, any, ValidationContext) (*ValidationError, error) {
		asyncCalls.Add(1)
		return nil, nil
	})

	fd, _ := form.FieldAt("email")
	fd.SetValue("")
	form.Flush(context.Background())

	if asyncCalls.Load() != 0 {
		t.Error("expected async skipped while sync fails")
	}
	if fd.Pending() {
		t.Error("expected no pending for a sync-rejected value")
	}
}

func TestAsyncValidator_StaleEpochDropped(t *testing.T) {
	form, _ := New(GroupSpec{"q": F("")}, WithSyncMode())
	defer form.Dispose()

	var seen []any
	form.AddAsyncValidator("q", func(_ context.Context, value any, _ ValidationContext) (*ValidationError, error) {
		seen = append(seen, value)
		return &ValidationError{Code: "always", Message: "x"}, nil
	})

	fd, _ := form.FieldAt("q")
	fd.SetValue("first")
	fd.SetValue("second")
	form.Flush(context.Background())

	// The queue keeps only the newest job per registration; the first
	// write never executes and never lands a finding for a stale value.
	if len(seen) != 1 || seen[0] != "second" {
		t.Errorf("expected only the newest value checked, got %v", seen)
	}
	if len(fd.Errors()) != 1 {
		t.Errorf("expected exactly one finding, got %v", fd.Errors())
	}
}

func TestAsyncValidator_FaultBecomesCheckFailed(t *testing.T) {
	form, _ := New(GroupSpec{"q": F("")}, WithSyncMode())
	defer form.Dispose()

	fault := errors.New("upstream unreachable")
	form.AddAsyncValidator("q", func(context.Context, any, ValidationContext) (*ValidationError, error) {
		return nil, fault
	})

	fd, _ := form.FieldAt("q")
	fd.SetValue("anything")
	form.Flush(context.Background())

	if fd.Pending() {
		t.Error("expected pending resolved on fault")
	}
	errs := fd.Errors()
	if len(errs) != 1 || errs[0].Code != "checkFailed" {
		t.Fatalf("expected checkFailed, got %v", errs)
	}
	if form.LastError() == nil {
		t.Error("expected fault recorded in LastError")
	}
}

func TestAsyncValidator_ErrorHistory(t *testing.T) {
	form, _ := New(GroupSpec{"q": F("")}, WithSyncMode(), WithErrorHistorySize(4))
	defer form.Dispose()

	form.AddAsyncValidator("q", func(context.Context, any, ValidationContext) (*ValidationError, error) {
		return nil, errors.New("boom")
	})

	fd, _ := form.FieldAt("q")
	fd.SetValue("a")
	form.Flush(context.Background())
	fd.SetValue("b")
	form.Flush(context.Background())

	if got := len(form.ErrorHistory()); got != 2 {
		t.Errorf("expected 2 retained faults, got %d", got)
	}
}

func TestAsyncValidator_DebounceCoalesces(t *testing.T) {
	clock := clockz.NewFakeClock()
	form, _ := New(GroupSpec{"q": F("")}, WithClock(clock))
	defer form.Dispose()

	var calls atomic.Int32
	var last atomic.Value
	form.AddAsyncValidator("q", func(_ context.Context, value any, _ ValidationContext) (*ValidationError, error) {
		calls.Add(1)
		last.Store(value)
		return nil, nil
	}, WithDebounce(100*time.Millisecond))

	fd, _ := form.FieldAt("q")
	fd.SetValue("a")
	fd.SetValue("ab")
	fd.SetValue("abc")

	// Let the newest run reach its debounce timer; earlier runs are
	// canceled before their validators execute.
	time.Sleep(20 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatalf("expected no execution during debounce, got %d", calls.Load())
	}

	clock.Advance(150 * time.Millisecond)
	clock.BlockUntilReady()

	waitFor(t, func() bool { return !fd.Pending() }, "pending never resolved")
	if calls.Load() != 1 {
		t.Errorf("expected 1 coalesced execution, got %d", calls.Load())
	}
	if last.Load() != "abc" {
		t.Errorf("expected newest value, got %v", last.Load())
	}
}

func TestAsyncValidator_RealModeResult(t *testing.T) {
	form, _ := New(GroupSpec{"username": F("")})
	defer form.Dispose()

	form.AddAsyncValidator("username", func(_ context.Context, value any, _ ValidationContext) (*ValidationError, error) {
		if value == "taken" {
			return &ValidationError{Code: "usernameTaken", Message: "in use"}, nil
		}
		return nil, nil
	}, WithDebounce(0))

	fd, _ := form.FieldAt("username")
	fd.SetValue("taken")

	waitFor(t, func() bool { return !fd.Pending() }, "pending never resolved")
	errs := fd.Errors()
	if len(errs) != 1 || errs[0].Code != "usernameTaken" {
		t.Fatalf("expected usernameTaken, got %v", errs)
	}
	if fd.Status() != StatusInvalid {
		t.Errorf("expected invalid, got %s", fd.Status())
	}
}

func TestTreeValidator_DateRange(t *testing.T) {
	form, _ := New(GroupSpec{
		"start": F(5),
		"end":   F(3),
	})
	defer form.Dispose()

	err := form.AddTreeValidator(func(doc map[string]any) map[string][]ValidationError {
		start, _ := doc["start"].(int)
		end, _ := doc["end"].(int)
		if end < start {
			return map[string][]ValidationError{
				"end": {{Code: "beforeStart", Message: "end precedes start"}},
			}
		}
		return nil
	}, "start", "end")
	if err != nil {
		t.Fatalf("AddTreeValidator failed: %v", err)
	}

	form.Validate(context.Background())
	endFd, _ := form.FieldAt("end")
	if endFd.Valid() {
		t.Fatal("expected end flagged")
	}

	// Fixing either dependency withdraws the finding.
	startFd, _ := form.FieldAt("start")
	startFd.SetValue(1)
	if !endFd.Valid() {
		t.Errorf("expected finding withdrawn, got %v", endFd.Errors())
	}
}

func TestTreeValidator_RunsOnDependencyChangeOnly(t *testing.T) {
	form, _ := New(GroupSpec{
		"watched":   F(1),
		"unrelated": F(1),
	})
	defer form.Dispose()

	var runs atomic.Int32
	form.AddTreeValidator(func(doc map[string]any) map[string][]ValidationError {
		runs.Add(1)
		return nil
	}, "watched")

	before := runs.Load()
	un, _ := form.FieldAt("unrelated")
	un.SetValue(2)
	if runs.Load() != before {
		t.Error("expected no run for unrelated change")
	}

	w, _ := form.FieldAt("watched")
	w.SetValue(2)
	if runs.Load() != before+1 {
		t.Errorf("expected one run for watched change, got %d", runs.Load()-before)
	}
}

func TestTreeValidator_UnknownDependency(t *testing.T) {
	form, _ := New(GroupSpec{"a": F(1)})
	defer form.Dispose()

	err := form.AddTreeValidator(func(map[string]any) map[string][]ValidationError {
		return nil
	}, "missing")
	if err == nil {
		t.Fatal("expected error for unknown dependency")
	}
}

func TestValidate_ReportsBlockingOnly(t *testing.T) {
	form, _ := New(GroupSpec{
		"ok":      F("fine"),
		"warned":  F("x"),
		"broken":  F(""),
		"skipped": &FieldSpec{Value: "", Disabled: true},
	})
	defer form.Dispose()

	form.AddValidator("warned", MinLength(5), AsWarning())
	form.AddValidator("broken", Required())
	form.AddValidator("skipped", Required())

	if form.Validate(context.Background()) {
		t.Fatal("expected invalid document")
	}

	broken, _ := form.FieldAt("broken")
	broken.SetValue("now filled")
	if !form.Validate(context.Background()) {
		t.Errorf("expected valid document; errors: %v", form.Errors())
	}
}

func TestRevalidate_RerunsTarget(t *testing.T) {
	form, _ := New(GroupSpec{"code": F("ok")})
	defer form.Dispose()

	accept := true
	form.AddValidator("code", func(any, ValidationContext) *ValidationError {
		if accept {
			return nil
		}
		return &ValidationError{Code: "rejected", Message: "no"}
	})

	fd, _ := form.FieldAt("code")
	if !fd.Valid() {
		t.Fatal("expected valid initially")
	}

	// External state changed; the value did not.
	accept = false
	if err := form.Revalidate("code"); err != nil {
		t.Fatalf("Revalidate failed: %v", err)
	}
	if fd.Valid() {
		t.Error("expected revalidation to pick up new outcome")
	}

	// Dangling paths are a no-op; only malformed syntax errors.
	if err := form.Revalidate("nope"); err != nil {
		t.Errorf("expected dangling path no-op, got %v", err)
	}
	if err := form.Revalidate("a..b"); err == nil {
		t.Error("expected error for malformed path")
	}
}

func TestValidationContext_CarriesPathAndDocument(t *testing.T) {
	form, _ := New(GroupSpec{
		"profile": GroupSpec{"name": F("x")},
	})
	defer form.Dispose()

	var gotPath string
	var gotDoc map[string]any
	form.AddValidator("profile.name", func(_ any, vc ValidationContext) *ValidationError {
		gotPath = vc.Path
		gotDoc, _ = vc.Document.(map[string]any)
		return nil
	})

	fd, _ := form.FieldAt("profile.name")
	fd.SetValue("y")

	if gotPath != "profile.name" {
		t.Errorf("expected path 'profile.name', got %q", gotPath)
	}
	profile, _ := gotDoc["profile"].(map[string]any)
	if profile["name"] != "y" {
		t.Errorf("expected document snapshot with new value, got %v", gotDoc)
	}
}

func TestCompositeValidator_RunsOnDescendantWrite(t *testing.T) {
	form, _ := New(GroupSpec{
		"address": GroupSpec{"city": F(""), "zip": F("")},
	})
	defer form.Dispose()

	form.AddValidator("address", func(value any, _ ValidationContext) *ValidationError {
		m, _ := value.(map[string]any)
		if m["city"] == "" && m["zip"] == "" {
			return &ValidationError{Code: "emptyAddress", Message: "fill something"}
		}
		return nil
	})

	g, _ := form.GroupAt("address")
	form.Validate(context.Background())
	if g.Valid() {
		t.Fatal("expected empty address flagged")
	}

	city, _ := form.FieldAt("address.city")
	city.SetValue("Oslo")
	if !g.Valid() {
		t.Errorf("expected ancestor revalidated on child write, got %v", g.Errors())
	}
}
