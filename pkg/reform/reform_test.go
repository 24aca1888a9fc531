package reform

import (
	"errors"
	"testing"
	"time"

	"taxlab-hq/ledger/pkg/catalog"
	"taxlab-hq/ledger/pkg/engine"
	"taxlab-hq/ledger/pkg/patch"
)

const testTree = `
tax:
  basic:
    metadata:
      name: basic_rate
      label: Basic rate
      unit: /1
    values:
      2015-01-01: 0.2
  allowance:
    metadata:
      name: personal_allowance
      label: Personal allowance
      unit: currency-GBP
      period: year
    values:
      2015-01-01: 12570
  bands:
    metadata:
      name: ni
      label: NI
    brackets:
      - threshold:
          2015-01-01: 0
        rate:
          2015-01-01: 0.12
benefit:
  abolish_child_benefit:
    metadata:
      name: abolish_child_benefit
      label: Abolish child benefit
      unit: abolition
      variable: child_benefit
    values:
      2015-01-01: false
  universal:
    metadata:
      name: universal
      label: Universal credit
    values:
      2015-01-01: true
  region:
    metadata:
      name: region_mode
      label: Region mode
      value_type: Enum
    values:
      2015-01-01: NONE
`

var now = time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	root, err := engine.LoadParameters([]byte(testTree))
	if err != nil {
		t.Fatalf("LoadParameters() error = %v", err)
	}
	return catalog.Build(engine.NewSystem(root, nil), now)
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		in      any
		want    bool
		wantErr bool
	}{
		{in: true, want: true},
		{in: "true", want: true},
		{in: 1.0, want: true},
		{in: 1, want: true},
		{in: "1", want: true},
		{in: false, want: false},
		{in: "false", want: false},
		{in: 0.0, want: false},
		{in: 0, want: false},
		{in: "0", want: false},
		{in: "yes", wantErr: true},
		{in: 2.0, wantErr: true},
		{in: "True", wantErr: true},
		{in: nil, wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseBool(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseBool(%#v) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err != nil && !errors.Is(err, ErrInvalidValue) {
			t.Errorf("ParseBool(%#v) error = %v, want ErrInvalidValue", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseBool(%#v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCoerce(t *testing.T) {
	cat := testCatalog(t)
	tests := []struct {
		lever   string
		in      any
		want    any
		wantErr bool
	}{
		{lever: "basic_rate", in: 0.21, want: 0.21},
		{lever: "basic_rate", in: "0.21", want: 0.21},
		{lever: "basic_rate", in: []any{"0.3", "0.4"}, want: 0.3},
		{lever: "basic_rate", in: "abc", wantErr: true},
		{lever: "basic_rate", in: true, wantErr: true},
		{lever: "basic_rate", in: []any{}, wantErr: true},
		{lever: "universal", in: "0", want: false},
		{lever: "region_mode", in: "SCOTLAND", want: "SCOTLAND"},
	}
	for _, tt := range tests {
		lever, ok := cat.Lookup(tt.lever)
		if !ok {
			t.Fatalf("lever %s missing from catalog", tt.lever)
		}
		got, err := Coerce(lever, tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("Coerce(%s, %#v) error = %v, wantErr %v", tt.lever, tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("Coerce(%s, %#v) = %#v, want %#v", tt.lever, tt.in, got, tt.want)
		}
	}
}

func TestCompileOnePatchPerLever(t *testing.T) {
	cat := testCatalog(t)
	defaults := []patch.Patch{patch.ParametricSet{Path: "tax.basic", Value: 0.2, Period: engine.Year(2022)}}

	for _, lever := range cat.Levers() {
		t.Run(lever.Name, func(t *testing.T) {
			bundle, err := Compile([]LeverValue{{Name: lever.Name, Value: lever.Value}}, cat, defaults, now)
			if err != nil {
				t.Fatalf("Compile() error = %v", err)
			}
			added := len(bundle.ReformPatches) - len(bundle.BaselinePatches)
			if added != 1 {
				t.Errorf("reform adds %d patches, want 1", added)
			}
			if len(bundle.Provisions) != 1 {
				t.Errorf("provisions = %d, want 1", len(bundle.Provisions))
			}
			if bundle.BaselineDivergesFromDefault {
				t.Error("baseline should not diverge without baseline levers")
			}
		})
	}
}

func TestCompileBundleShape(t *testing.T) {
	cat := testCatalog(t)
	defaults := []patch.Patch{patch.ParametricSet{Path: "tax.basic", Value: 0.2, Period: engine.Year(2022)}}
	levers := []LeverValue{
		{Name: "household", Value: map[string]any{"people": 1}},
		{Name: "basic_rate", Value: 0.21},
		{Name: "baseline_personal_allowance", Value: "10000"},
		{Name: "country_specific", Value: "uk"},
		{Name: "ni_1_rate", Value: 0.1},
		{Name: "abolish_child_benefit", Value: "true"},
	}

	bundle, err := Compile(levers, cat, defaults, now)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	// defaults, freeze, one baseline lever
	if len(bundle.BaselinePatches) != 3 {
		t.Fatalf("baseline patches = %d, want 3", len(bundle.BaselinePatches))
	}
	for i, p := range bundle.BaselinePatches {
		if bundle.ReformPatches[i] != p {
			t.Errorf("reform patch %d does not repeat the baseline prefix", i)
		}
	}
	if _, ok := bundle.BaselinePatches[1].(patch.FreezeParameters); !ok {
		t.Errorf("patch 1 = %T, want FreezeParameters after defaults", bundle.BaselinePatches[1])
	}
	if len(bundle.ReformPatches) != 6 {
		t.Errorf("reform patches = %d, want 6", len(bundle.ReformPatches))
	}
	if !bundle.BaselineDivergesFromDefault {
		t.Error("baseline lever should make the baseline diverge")
	}
	if !bundle.PolicyDate.Equal(now) {
		t.Errorf("policy date = %v, want now", bundle.PolicyDate)
	}

	wantNames := []string{"basic_rate", "ni_1_rate", "abolish_child_benefit"}
	if len(bundle.Provisions) != len(wantNames) {
		t.Fatalf("provisions = %d, want %d", len(bundle.Provisions), len(wantNames))
	}
	for i, name := range wantNames {
		if bundle.Provisions[i].Name != name {
			t.Errorf("provision %d = %s, want %s", i, bundle.Provisions[i].Name, name)
		}
	}

	ni, ok := bundle.Provisions[1].Patch.(patch.ScaleComponentSet)
	if !ok || ni.Path != "tax.bands" || ni.Index != 0 || ni.Component != "rate" {
		t.Errorf("ni patch = %#v", bundle.Provisions[1].Patch)
	}
	ab, ok := bundle.Provisions[2].Patch.(patch.AbolitionToggle)
	if !ok || !ab.Enabled || ab.Variables[0] != "child_benefit" {
		t.Errorf("abolition patch = %#v", bundle.Provisions[2].Patch)
	}
}

func TestCompileBasicRateTargetsCatalogPath(t *testing.T) {
	cat := testCatalog(t)
	bundle, err := Compile([]LeverValue{{Name: "basic_rate", Value: 0.21}}, cat, nil, now)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	added := bundle.ReformPatches[len(bundle.ReformPatches)-1]
	lever, _ := cat.Lookup("basic_rate")
	if added.Target() != lever.Path {
		t.Errorf("patch target = %s, want %s", added.Target(), lever.Path)
	}
	if got := bundle.Provisions[0].Label; got != "Set basic rate to 21.0%" {
		t.Errorf("label = %q", got)
	}
	if got := bundle.Provisions[0].Description; got != "Increase Basic rate from 20% to 21%" {
		t.Errorf("description = %q", got)
	}
}

func TestCompilePolicyDate(t *testing.T) {
	cat := testCatalog(t)
	tests := []struct {
		name     string
		levers   []LeverValue
		wantDate time.Time
		diverges bool
		wantErr  error
	}{
		{
			name:     "policy date number",
			levers:   []LeverValue{{Name: "policy_date", Value: 20190406.0}},
			wantDate: time.Date(2019, 4, 6, 0, 0, 0, 0, time.UTC),
			diverges: true,
		},
		{
			name:     "baseline policy date with reform lever",
			levers:   []LeverValue{{Name: "baseline_policy_date", Value: "2018-01-01"}, {Name: "basic_rate", Value: 0.25}},
			wantDate: time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC),
			diverges: true,
		},
		{
			name:    "bad date",
			levers:  []LeverValue{{Name: "policy_date", Value: "yesterday"}},
			wantErr: ErrInvalidDate,
		},
		{
			name:     "no date",
			levers:   []LeverValue{{Name: "basic_rate", Value: 0.25}},
			wantDate: now,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bundle, err := Compile(tt.levers, cat, nil, now)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Compile() error = %v", err)
			}
			if !bundle.PolicyDate.Equal(tt.wantDate) {
				t.Errorf("policy date = %v, want %v", bundle.PolicyDate, tt.wantDate)
			}
			if bundle.BaselineDivergesFromDefault != tt.diverges {
				t.Errorf("diverges = %v, want %v", bundle.BaselineDivergesFromDefault, tt.diverges)
			}
			freeze := bundle.BaselinePatches[0].(patch.FreezeParameters)
			if !freeze.Date.Equal(tt.wantDate) {
				t.Errorf("freeze date = %v", freeze.Date)
			}
		})
	}
}

func TestCompileAllOrNothing(t *testing.T) {
	cat := testCatalog(t)
	tests := []struct {
		name    string
		levers  []LeverValue
		wantErr error
		lever   string
	}{
		{
			name:    "unknown lever",
			levers:  []LeverValue{{Name: "basic_rate", Value: 0.21}, {Name: "nope", Value: 1}},
			wantErr: ErrUnknownLever,
			lever:   "nope",
		},
		{
			name:    "unknown baseline lever",
			levers:  []LeverValue{{Name: "baseline_nope", Value: 1}},
			wantErr: ErrUnknownLever,
			lever:   "baseline_nope",
		},
		{
			name:    "bad boolean",
			levers:  []LeverValue{{Name: "abolish_child_benefit", Value: "maybe"}},
			wantErr: ErrInvalidValue,
			lever:   "abolish_child_benefit",
		},
		{
			name:    "non-numeric float",
			levers:  []LeverValue{{Name: "basic_rate", Value: "lots"}},
			wantErr: ErrInvalidValue,
			lever:   "basic_rate",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bundle, err := Compile(tt.levers, cat, nil, now)
			if bundle != nil {
				t.Error("failed compile returned a bundle")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			var leverErr *LeverError
			if !errors.As(err, &leverErr) || leverErr.Lever != tt.lever {
				t.Errorf("error = %#v, want LeverError for %s", err, tt.lever)
			}
		})
	}
}

func TestMalformedBracketPath(t *testing.T) {
	lever := &catalog.Lever{Name: "broken", Kind: catalog.KindScaleComponent, Path: "tax.bands[one].rate", ValueType: catalog.ValueFloat}
	_, err := leverPatch(lever, 0.1, engine.Year(2022))
	var pathErr *patch.PathError
	if !errors.As(err, &pathErr) {
		t.Fatalf("error = %v, want PathError", err)
	}
	if pathErr.Segment != "bands[one]" {
		t.Errorf("segment = %q, want bands[one]", pathErr.Segment)
	}
}

func TestLabels(t *testing.T) {
	cat := testCatalog(t)
	lookup := func(name string) *catalog.Lever {
		l, _ := cat.Lookup(name)
		return l
	}
	tests := []struct {
		lever string
		value any
		label string
		desc  string
	}{
		{"basic_rate", 0.21, "Set basic rate to 21.0%", "Increase Basic rate from 20% to 21%"},
		{"personal_allowance", 10000.0, "Set personal allowance to £10,000.00/year", "Decrease Personal allowance from £12570/year to £10000/year"},
		{"abolish_child_benefit", true, "Abolish child_benefit", "Abolish child benefit"},
		{"universal", false, "Revoke universal credit", "Universal credit"},
		{"universal", true, "Universal credit", "Universal credit"},
		{"region_mode", "WALES", "Set region mode to WALES", "Region mode"},
	}
	for _, tt := range tests {
		l := lookup(tt.lever)
		if got := Label(l, tt.value); got != tt.label {
			t.Errorf("Label(%s, %v) = %q, want %q", tt.lever, tt.value, got, tt.label)
		}
		if got := Summary(l, tt.value); got != tt.desc {
			t.Errorf("Summary(%s, %v) = %q, want %q", tt.lever, tt.value, got, tt.desc)
		}
	}
}
