package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"taxlab-hq/ledger/pkg/country"
	"taxlab-hq/ledger/pkg/country/uk"
	"taxlab-hq/ledger/pkg/dataset"
	"taxlab-hq/ledger/pkg/engine"
	"taxlab-hq/ledger/pkg/patch"
	"taxlab-hq/ledger/pkg/reform"
	"taxlab-hq/ledger/pkg/tasks"
	"taxlab-hq/ledger/pkg/tasks/store"
)

func newRuntime(t *testing.T) *Runtime {
	t.Helper()
	c, err := uk.New(country.Config{Households: 80, Seed: 11})
	if err != nil {
		t.Fatalf("uk.New() error = %v", err)
	}
	ds, err := dataset.NewSQLiteStore(&dataset.SQLiteConfig{
		Path:    filepath.Join(t.TempDir(), "datasets.db"),
		WALMode: true,
	})
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { ds.Close() })

	rt, err := NewRuntime(RuntimeConfig{
		Country:     c,
		Store:       ds,
		Parallelism: 2,
		Now:         func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewRuntime() error = %v", err)
	}
	return rt
}

func newServer(t *testing.T, rt *Runtime, runner *tasks.Runner) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	Mount(mux, rt, MountConfig{Runner: runner, MaxBodyBytes: 1 << 16})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, srv *httptest.Server, path string, body any) (int, map[string]any) {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s error = %v", path, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode %s response: %v", path, err)
	}
	return resp.StatusCode, out
}

func get(t *testing.T, srv *httptest.Server, path string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s error = %v", path, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode %s response: %v", path, err)
	}
	return resp.StatusCode, out
}

func errorCode(body map[string]any) string {
	detail, _ := body["error"].(map[string]any)
	code, _ := detail["code"].(string)
	return code
}

func TestPath(t *testing.T) {
	if got := Path("uk", "population_breakdown"); got != "/uk/api/population-breakdown" {
		t.Errorf("Path() = %s", got)
	}
}

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		body    string
		want    []Field
		wantErr string
	}{
		{
			name:  "query order kept",
			query: "higher_rate=0.41&basic_rate=0.21",
			want:  []Field{{"higher_rate", "0.41"}, {"basic_rate", "0.21"}},
		},
		{
			name:  "repeated query keeps first",
			query: "basic_rate=0.21&basic_rate=0.3",
			want:  []Field{{"basic_rate", "0.21"}},
		},
		{
			name:  "body wins in place",
			query: "basic_rate=0.21&policy_date=20230101",
			body:  `{"add_rate": 0.5, "basic_rate": 0.25}`,
			want:  []Field{{"basic_rate", 0.25}, {"policy_date", "20230101"}, {"add_rate", 0.5}},
		},
		{
			name:    "array body",
			body:    `[1, 2]`,
			wantErr: CodeInvalidJSON,
		},
		{
			name:    "trailing data",
			body:    `{"a": 1} {}`,
			wantErr: CodeInvalidJSON,
		},
		{
			name:    "too large",
			body:    `{"a": "` + strings.Repeat("x", 200) + `"}`,
			wantErr: CodeRequestTooLarge,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/uk/api/ubi?"+tt.query, strings.NewReader(tt.body))
			p, err := ParseRequest(r, 128)
			if tt.wantErr != "" {
				var reqErr *RequestError
				if !errors.As(err, &reqErr) || reqErr.Code != tt.wantErr {
					t.Fatalf("ParseRequest() error = %v, want code %s", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRequest() error = %v", err)
			}
			got := p.Fields()
			if len(got) != len(tt.want) {
				t.Fatalf("fields = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("field %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestPayloadKeyIgnoresOrder(t *testing.T) {
	a := NewPayload(Field{"basic_rate", 0.21}, Field{"higher_rate", 0.41})
	b := NewPayload(Field{"higher_rate", 0.41}, Field{"basic_rate", 0.21})
	ka, err := tasks.Key("uk_ubi", a, "1")
	if err != nil {
		t.Fatal(err)
	}
	kb, _ := tasks.Key("uk_ubi", b, "1")
	if ka != kb {
		t.Errorf("keys differ: %s != %s", ka, kb)
	}
}

func TestHandleError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCode  int
		wantParam string
		wantCode2 string
	}{
		{"unknown lever", &reform.LeverError{Lever: "nope", Err: reform.ErrUnknownLever}, 400, "nope", CodeUnknownLever},
		{"bad value", &reform.LeverError{Lever: "basic_rate", Value: "x", Err: reform.ErrInvalidValue}, 400, "basic_rate", CodeInvalidValue},
		{"bad path", &patch.PathError{Path: "tax.nope", Segment: "nope", Reason: "no such child"}, 400, "tax.nope", CodeInvalidPath},
		{"household", &HouseholdError{Field: "people.a.age", Err: ErrInputValue}, 400, "household.people.a.age", CodeInvalidHousehold},
		{"policy date", fmt.Errorf("parse: %w", reform.ErrInvalidDate), 400, reform.PolicyDate, CodeInvalidDate},
		{"closed", tasks.ErrClosed, 503, "", "shutting_down"},
		{"dataset", &dataset.LoadError{Year: 2022, Cause: dataset.ErrCorrupt}, 503, "", CodeDatasetError},
		{"other", errors.New("boom"), 500, "", CodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := HandleError(tt.err)
			if got := resp.Error.HTTPStatusCode(); got != tt.wantCode {
				t.Errorf("status = %d, want %d", got, tt.wantCode)
			}
			if resp.Error.Param != tt.wantParam {
				t.Errorf("param = %q, want %q", resp.Error.Param, tt.wantParam)
			}
			if resp.Error.Code != tt.wantCode2 {
				t.Errorf("code = %q, want %q", resp.Error.Code, tt.wantCode2)
			}
		})
	}
	if strings.Contains(HandleError(errors.New("secret detail")).Error.Message, "secret") {
		t.Error("internal error detail leaked to the response")
	}
}

func TestNum(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{12.5, "12.50"},
		{4200, "4k"},
		{2_300_000, "2m"},
		{3_210_000_000, "3.21bn"},
		{45_600_000_000, "45.6bn"},
		{1_230_000_000_000, "1.23tr"},
		{-4200, "-4k"},
	}
	for _, tt := range tests {
		if got := num(tt.in); got != tt.want {
			t.Errorf("num(%v) = %s, want %s", tt.in, got, tt.want)
		}
	}
	if got := money("£", -3_210_000_000); got != "-£3.21bn" {
		t.Errorf("money() = %s", got)
	}
}

func TestColour(t *testing.T) {
	ranks := []int{0, 1, -1, 2}
	if got := colour(0, ranks); got != "rgb(97, 97, 97)" {
		t.Errorf("colour(0) = %s", got)
	}
	light, dark := colour(1, ranks), colour(2, ranks)
	if light == dark {
		t.Errorf("ranks 1 and 2 share colour %s", light)
	}
	if light != "rgb(102, 208, 150)" {
		t.Errorf("colour(1) = %s", light)
	}
	if got := colour(-1, ranks); got != "rgb(113, 113, 113)" {
		t.Errorf("colour(-1) = %s", got)
	}
}

func TestPctChange(t *testing.T) {
	if got := pctChange(0, 5); got != 0 {
		t.Errorf("pctChange(0, 5) = %v", got)
	}
	if got := pctChange(0.2, 0.15); math.Abs(got+0.25) > 1e-12 {
		t.Errorf("pctChange(0.2, 0.15) = %v", got)
	}
}

func TestMetadataEndpoints(t *testing.T) {
	srv := newServer(t, newRuntime(t), nil)

	code, params := get(t, srv, "/uk/api/parameters")
	if code != http.StatusOK {
		t.Fatalf("parameters status = %d", code)
	}
	lever, ok := params["basic_rate"].(map[string]any)
	if !ok {
		t.Fatalf("parameters missing basic_rate: %v", params)
	}
	if lever["parameter"] != "tax.income_tax.rates.basic" {
		t.Errorf("basic_rate parameter = %v", lever["parameter"])
	}

	code, dated := get(t, srv, "/uk/api/parameters?policy_date=20200101")
	if code != http.StatusOK || dated["basic_rate"] == nil {
		t.Errorf("dated parameters status = %d", code)
	}

	code, body := get(t, srv, "/uk/api/parameters?policy_date=yesterday")
	if code != http.StatusBadRequest || errorCode(body) != CodeInvalidDate {
		t.Errorf("bad policy_date = %d %v", code, body)
	}

	code, vars := get(t, srv, "/uk/api/variables")
	if code != http.StatusOK {
		t.Fatalf("variables status = %d", code)
	}
	age, _ := vars["age"].(map[string]any)
	if age["entity"] != "person" || age["input"] != true {
		t.Errorf("variables[age] = %v", age)
	}

	code, entities := get(t, srv, "/uk/api/entities")
	if code != http.StatusOK {
		t.Fatalf("entities status = %d", code)
	}
	hh, _ := entities["household"].(map[string]any)
	if hh["is_group"] != true {
		t.Errorf("entities[household] = %v", hh)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newServer(t, newRuntime(t), nil)
	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/uk/api/entities", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}

func TestHouseholdReform(t *testing.T) {
	srv := newServer(t, newRuntime(t), nil)
	household := map[string]any{
		"people": map[string]any{
			"adult": map[string]any{"age": 35, "employment_income": 30000},
			"child": map[string]any{"age": 6},
		},
	}

	code, body := post(t, srv, "/uk/api/household-reform", map[string]any{
		"household":  household,
		"basic_rate": 0.25,
	})
	if code != http.StatusOK {
		t.Fatalf("status = %d, body = %v", code, body)
	}
	tax, _ := body["household_tax"].(map[string]any)
	if tax["new"].(float64) <= tax["old"].(float64) {
		t.Errorf("household_tax = %v, want a rise", tax)
	}
	net, _ := body["household_net_income"].(map[string]any)
	if d := net["difference"].(float64); d >= 0 {
		t.Errorf("net income difference = %v, want negative", d)
	}
	mtr, _ := body["marginal_tax_rate"].(map[string]any)
	if mtr["new"].(float64) <= mtr["old"].(float64) {
		t.Errorf("marginal_tax_rate = %v, want a rise", mtr)
	}

	// The description may also arrive as a JSON string.
	encoded, _ := json.Marshal(household)
	code, _ = post(t, srv, "/uk/api/household-reform", map[string]any{"household": string(encoded)})
	if code != http.StatusOK {
		t.Errorf("string household status = %d", code)
	}
}

func TestHouseholdReformErrors(t *testing.T) {
	srv := newServer(t, newRuntime(t), nil)
	tests := []struct {
		name      string
		body      map[string]any
		wantParam string
	}{
		{"missing", map[string]any{"basic_rate": 0.21}, "household"},
		{"no people", map[string]any{"household": map[string]any{"people": map[string]any{}}}, "household.people"},
		{"unknown input", map[string]any{"household": map[string]any{
			"people": map[string]any{"a": map[string]any{"shoe_size": 9}},
		}}, "household.people.a.shoe_size"},
		{"wrong entity", map[string]any{"household": map[string]any{
			"people": map[string]any{"a": map[string]any{"land_value": 9}},
		}}, "household.people.a.land_value"},
		{"bad value", map[string]any{"household": map[string]any{
			"people": map[string]any{"a": map[string]any{"age": "old"}},
		}}, "household.people.a.age"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := post(t, srv, "/uk/api/household-reform", tt.body)
			if code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", code)
			}
			detail, _ := body["error"].(map[string]any)
			if detail["param"] != tt.wantParam {
				t.Errorf("param = %v, want %s", detail["param"], tt.wantParam)
			}
		})
	}
}

func TestPopulationReformInline(t *testing.T) {
	srv := newServer(t, newRuntime(t), nil)

	code, body := post(t, srv, "/uk/api/population-reform", map[string]any{"basic_rate": 0.21})
	if code != http.StatusOK {
		t.Fatalf("status = %d, body = %v", code, body)
	}
	if body["status"] != string(store.StatusCompleted) {
		t.Errorf("status field = %v", body["status"])
	}
	impact := body["budgetary_impact"].(float64)
	if impact >= 0 {
		t.Errorf("budgetary_impact = %v, want revenue raised", impact)
	}
	if s, _ := body["budgetary_impact_str"].(string); !strings.HasPrefix(s, "-£") {
		t.Errorf("budgetary_impact_str = %q", s)
	}
	if loser := body["loser_share"].(float64); loser <= 0 || loser > 1 {
		t.Errorf("loser_share = %v", loser)
	}
	if winner := body["winner_share"].(float64); winner != 0 {
		t.Errorf("winner_share = %v, want 0 for a tax rise", winner)
	}
	deciles, _ := body["average_decile_impact"].([]any)
	if len(deciles) != 10 {
		t.Errorf("average_decile_impact has %d entries", len(deciles))
	}
}

func TestPopulationReformValidatesSynchronously(t *testing.T) {
	rt := newRuntime(t)
	runner, err := tasks.NewRunner(store.NewMemoryBackend(), tasks.Config{Version: "test", Workers: 1})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = runner.Close(context.Background()) })
	srv := newServer(t, rt, runner)

	code, body := post(t, srv, "/uk/api/population-reform", map[string]any{"no_such_lever": 1})
	if code != http.StatusBadRequest || errorCode(body) != CodeUnknownLever {
		t.Fatalf("status = %d, body = %v", code, body)
	}
	p := NewPayload(Field{"no_such_lever", 1.0})
	if _, err := runner.Lookup(context.Background(), "uk_population_reform", p); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("invalid request was cached: %v", err)
	}
}

func TestPopulationReformCached(t *testing.T) {
	rt := newRuntime(t)
	runner, err := tasks.NewRunner(store.NewMemoryBackend(), tasks.Config{Version: "test", Workers: 2})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = runner.Close(context.Background()) })
	srv := newServer(t, rt, runner)

	code, body := get(t, srv, "/uk/api/population-reform?basic_rate=0.21")
	if code != http.StatusAccepted || body["status"] != string(store.StatusQueued) {
		t.Fatalf("first request = %d %v, want 202 queued", code, body)
	}

	deadline := time.Now().Add(30 * time.Second)
	for {
		code, body = get(t, srv, "/uk/api/population-reform?basic_rate=0.21")
		if code == http.StatusOK {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("task never finished: %v", body)
		}
		time.Sleep(20 * time.Millisecond)
	}
	if body["status"] != string(store.StatusCompleted) {
		t.Fatalf("final status = %v", body)
	}
	if body["budgetary_impact"].(float64) >= 0 {
		t.Errorf("budgetary_impact = %v", body["budgetary_impact"])
	}
}

func TestPopulationBreakdown(t *testing.T) {
	srv := newServer(t, newRuntime(t), nil)

	code, body := post(t, srv, "/uk/api/population-breakdown", map[string]any{
		"basic_rate":  0.25,
		"higher_rate": 0.45,
	})
	if code != http.StatusOK {
		t.Fatalf("status = %d, body = %v", code, body)
	}
	spending, _ := body["spending"].([]any)
	cumulative, _ := body["cumulative_spending"].([]any)
	if len(spending) != 2 || len(cumulative) != 2 {
		t.Fatalf("spending = %v, cumulative = %v", spending, cumulative)
	}
	sum := spending[0].(float64) + spending[1].(float64)
	if math.Abs(sum-cumulative[1].(float64)) > 0.02 {
		t.Errorf("spending sums to %v, cumulative = %v", sum, cumulative[1])
	}
	rows, _ := body["breakdown"].([]any)
	first, _ := rows[0].(map[string]any)
	if first["rank"].(float64) != 0 || first["colour"] != "rgb(97, 97, 97)" {
		t.Errorf("first provision = %v", first)
	}
	provisions, _ := body["provisions"].([]any)
	if len(provisions) != 2 {
		t.Errorf("provisions = %v", provisions)
	}
}

func TestUBI(t *testing.T) {
	srv := newServer(t, newRuntime(t), nil)

	code, body := post(t, srv, "/uk/api/ubi", map[string]any{"basic_rate": 0.3})
	if code != http.StatusOK {
		t.Fatalf("status = %d, body = %v", code, body)
	}
	if amount := body["UBI"].(float64); amount <= 0 {
		t.Errorf("UBI = %v, want positive for a tax rise", amount)
	}

	code, body = post(t, srv, "/uk/api/ubi", map[string]any{"basic_rate": 0.1})
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if amount := body["UBI"].(float64); amount != 0 {
		t.Errorf("UBI = %v, want 0 for a tax cut", amount)
	}
}

func TestDefaultBaselineShared(t *testing.T) {
	rt := newRuntime(t)
	ctx := context.Background()
	if err := rt.Warm(ctx); err != nil {
		t.Fatal(err)
	}

	plain, err := rt.Compile(ctx, NewPayload(Field{"basic_rate", 0.21}))
	if err != nil {
		t.Fatal(err)
	}
	a, _, err := rt.Simulations(ctx, plain)
	if err != nil {
		t.Fatal(err)
	}
	b, _, err := rt.Simulations(ctx, plain)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("default baseline rebuilt between requests")
	}

	dated, err := rt.Compile(ctx, NewPayload(Field{reform.BaselinePolicyDate, "20200101"}, Field{"basic_rate", 0.21}))
	if err != nil {
		t.Fatal(err)
	}
	if !dated.BaselineDivergesFromDefault {
		t.Fatal("baseline_policy_date did not diverge the baseline")
	}
	c, _, err := rt.Simulations(ctx, dated)
	if err != nil {
		t.Fatal(err)
	}
	if c == a {
		t.Error("diverging baseline reused the default simulation")
	}

	if err := rt.Reload(); err != nil {
		t.Fatal(err)
	}
	d, _, err := rt.Simulations(ctx, plain)
	if err != nil {
		t.Fatal(err)
	}
	if d == a {
		t.Error("Reload() kept the memoised baseline")
	}
}

func TestDefaultBaselineFollowsDate(t *testing.T) {
	rt := newRuntime(t)
	ctx := context.Background()
	today := time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC)
	rt.now = func() time.Time { return today }

	if err := rt.Warm(ctx); err != nil {
		t.Fatal(err)
	}
	plain := NewPayload(Field{"basic_rate", 0.21})
	simulate := func() *engine.Simulation {
		t.Helper()
		bundle, err := rt.Compile(ctx, plain)
		if err != nil {
			t.Fatal(err)
		}
		if bundle.BaselineDivergesFromDefault {
			t.Fatal("plain reform diverged the baseline")
		}
		baseline, _, err := rt.Simulations(ctx, bundle)
		if err != nil {
			t.Fatal(err)
		}
		return baseline
	}

	first := simulate()
	if again := simulate(); again != first {
		t.Error("baseline rebuilt on the same day")
	}

	today = today.Add(2 * time.Hour)
	next := simulate()
	if next == first {
		t.Error("baseline frozen on the previous day was reused after midnight")
	}
	if again := simulate(); again != next {
		t.Error("new day's baseline was not memoised")
	}
}
