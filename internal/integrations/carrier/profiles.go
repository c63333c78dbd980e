package carrier

import (
	"regexp"
	"strings"

	"github.com/litperpro/litper/internal/models"
)

// Profile describes the numbering scheme of one carrier.
type Profile struct {
	Carrier  models.CarrierType
	Patterns []*regexp.Regexp
}

// Detect is a pure format check.
func (p Profile) Detect(trackingNumber string) bool {
	tn := strings.ToUpper(strings.TrimSpace(trackingNumber))
	if tn == "" {
		return false
	}
	for _, re := range p.Patterns {
		if re.MatchString(tn) {
			return true
		}
	}
	return false
}

var (
	coordinadoraProfile = Profile{
		Carrier:  models.CarrierCoordinadora,
		Patterns: []*regexp.Regexp{regexp.MustCompile(`^\d{10,11}$`)},
	}
	servientregaProfile = Profile{
		Carrier: models.CarrierServientrega,
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`^\d{9}$`),
			regexp.MustCompile(`^SE\d{8,12}$`),
		},
	}
	interrapidisimoProfile = Profile{
		Carrier: models.CarrierInterrapidisimo,
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`^IR\d{8,12}$`),
			regexp.MustCompile(`^\d{13,14}$`),
		},
	}
	enviaProfile = Profile{
		Carrier: models.CarrierEnvia,
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`^ENV\d{6,12}$`),
			regexp.MustCompile(`^\d{8}$`),
		},
	}
	tccProfile = Profile{
		Carrier: models.CarrierTCC,
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`^TCC\d{6,12}$`),
			regexp.MustCompile(`^\d{15}$`),
		},
	}
)

// ProfileFor returns the numbering profile of a known carrier.
func ProfileFor(c models.CarrierType) (Profile, bool) {
	switch c {
	case models.CarrierCoordinadora:
		return coordinadoraProfile, true
	case models.CarrierServientrega:
		return servientregaProfile, true
	case models.CarrierInterrapidisimo:
		return interrapidisimoProfile, true
	case models.CarrierEnvia:
		return enviaProfile, true
	case models.CarrierTCC:
		return tccProfile, true
	}
	return Profile{Carrier: models.CarrierUnknown}, false
}
