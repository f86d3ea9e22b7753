package match

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Tier numbers of the cascade, in confidence order. A source entity matched
// at one tier is never revisited by later ones.
const (
	TierDomainAuthority = 1 // attested domain -> reference_id bridge
	TierExactName       = 2 // exact normalized name within same state
	TierDomainKeyword   = 3 // domain keyword substring + state + postal5
	TierFuzzyZip        = 4 // similarity >= high threshold + postal5
	TierFuzzyCity       = 5 // similarity >= medium threshold + state + city
	TierFuzzyZipLoose   = 6 // similarity >= low threshold + postal5 only

	MaxTier = TierFuzzyZipLoose
)

// methodName labels each tier the way the match table records it.
var methodName = map[int]string{
	TierDomainAuthority: "domain_authority",
	TierExactName:       "exact_name_state",
	TierDomainKeyword:   "domain_keyword_geo",
	TierFuzzyZip:        "fuzzy_name_zip",
	TierFuzzyCity:       "fuzzy_name_city",
	TierFuzzyZipLoose:   "fuzzy_name_zip_loose",
}

// Thresholds holds the similarity cutoffs for the fuzzy tiers. All are
// inclusive: a candidate scoring exactly the threshold is accepted.
type Thresholds struct {
	FuzzyZip      float64 `yaml:"fuzzy_zip" mapstructure:"fuzzy_zip"`
	FuzzyCity     float64 `yaml:"fuzzy_city" mapstructure:"fuzzy_city"`
	FuzzyZipLoose float64 `yaml:"fuzzy_zip_loose" mapstructure:"fuzzy_zip_loose"`
}

// DefaultThresholds returns the production cutoffs. The tight-ZIP tier can
// afford the loosest effective gate of the three because the geography is
// narrow; the state+city tier sits between.
func DefaultThresholds() Thresholds {
	return Thresholds{
		FuzzyZip:      0.5,
		FuzzyCity:     0.4,
		FuzzyZipLoose: 0.3,
	}
}

// Validate checks that every threshold is a usable similarity cutoff.
func (t Thresholds) Validate() error {
	for _, v := range []float64{t.FuzzyZip, t.FuzzyCity, t.FuzzyZipLoose} {
		if v <= 0 || v > 1 {
			return eris.Errorf("match: threshold %v out of range (0, 1]", v)
		}
	}
	return nil
}

// LoadThresholds reads a tier-threshold override file. The YAML has a
// top-level "tiers" key:
//
//	tiers:
//	  fuzzy_zip: 0.55
//	  fuzzy_city: 0.45
//	  fuzzy_zip_loose: 0.35
//
// Missing keys keep their defaults.
func LoadThresholds(path string) (Thresholds, error) {
	t := DefaultThresholds()

	data, err := os.ReadFile(path)
	if err != nil {
		return t, eris.Wrapf(err, "match: read tiers file %s", path)
	}

	var wrapper struct {
		Tiers Thresholds `yaml:"tiers"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return t, eris.Wrapf(err, "match: parse tiers file %s", path)
	}

	if wrapper.Tiers.FuzzyZip > 0 {
		t.FuzzyZip = wrapper.Tiers.FuzzyZip
	}
	if wrapper.Tiers.FuzzyCity > 0 {
		t.FuzzyCity = wrapper.Tiers.FuzzyCity
	}
	if wrapper.Tiers.FuzzyZipLoose > 0 {
		t.FuzzyZipLoose = wrapper.Tiers.FuzzyZipLoose
	}

	return t, t.Validate()
}
