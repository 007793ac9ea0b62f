package lacore

import "testing"

func TestKnownModelsLoadedFromEmbeddedYAML(t *testing.T) {
	if len(KnownModels) == 0 {
		t.Fatal("KnownModels is empty, embedded models.yaml failed to populate it")
	}
	for name, m := range KnownModels {
		if m.Name != name {
			t.Errorf("model keyed %q has Name %q", name, m.Name)
		}
		if m.MaxSamplerateHz == 0 {
			t.Errorf("model %q has zero MaxSamplerateHz", name)
		}
		if m.ChannelCount == 0 {
			t.Errorf("model %q has zero ChannelCount", name)
		}
	}
}

func TestFamilyResolvedFromFamilyName(t *testing.T) {
	var sawSigma, sawLA2016 bool
	for _, m := range KnownModels {
		switch m.Family {
		case FamilySigma:
			sawSigma = true
			if m.FamilyName == "la2016" {
				t.Errorf("model %q: FamilyName la2016 resolved to FamilySigma", m.Name)
			}
		case FamilyLA2016:
			sawLA2016 = true
			if m.FamilyName != "la2016" {
				t.Errorf("model %q: FamilyName %q resolved to FamilyLA2016", m.Name, m.FamilyName)
			}
		}
	}
	if !sawSigma || !sawLA2016 {
		t.Fatalf("expected both families represented in the embedded table, sigma=%v la2016=%v", sawSigma, sawLA2016)
	}
}

func TestSigmaVariantResourceNames(t *testing.T) {
	var cases = map[SigmaVariant]string{
		SigmaVariant50MHz:  "sigma-50",
		SigmaVariant100MHz: "sigma-100",
		SigmaVariant200MHz: "sigma-200",
		SigmaVariantSync:   "sigma-sync",
		SigmaVariantPhasor: "sigma-phasor",
	}
	for v, want := range cases {
		if got := v.resourceName(); got != want {
			t.Errorf("variant %d: resourceName() = %q, want %q", v, got, want)
		}
	}
}
