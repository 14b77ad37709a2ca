// Package scene parses the naming conventions of the satellite products a job can reference.
package scene

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const timeLayout = "20060102T150405"

// Polarizations supported for interferometric processing.
const (
	PolarizationVV = "VV"
	PolarizationHH = "HH"
)

var (
	// S1A_IW_SLC__1SDV_20200203T172103_20200203T172122_031091_03929B_3048
	reSentinel1 = regexp.MustCompile(
		`^S1([A-D])_(IW|EW|WV|S[1-6])_(SLC_|GRDH|GRDM|RAW_|OCN_)_(\d)S([SD])([VH])_` +
			`(\d{8}T\d{6})_(\d{8}T\d{6})_(\d{6})_[0-9A-F]{6}_[0-9A-F]{4}$`,
	)
	// S1_136231_IW2_20200604T022312_VV_7C85-BURST
	reBurst = regexp.MustCompile(
		`^S1_(\d{6})_(IW[1-3]|EW[1-5])_(\d{8}T\d{6})_(VV|VH|HH|HV)_([0-9A-F]{4})-BURST$`,
	)
)

// thirdPartyPrefixes identify scenes from missions served outside the primary catalog.
var thirdPartyPrefixes = []string{
	// Sentinel-2, every naming generation
	"S2",
	// Landsat 8/9 OLI(-TIRS)
	"LC08_", "LC09_", "LO08_", "LO09_",
	// Landsat 7 ETM+ and Landsat 4/5 TM
	"LE07_", "LT04_", "LT05_",
}

// IsThirdParty reports whether name follows a non-primary-catalog naming convention and
// is therefore exempt from existence checks.
func IsThirdParty(name string) bool {
	for _, p := range thirdPartyPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// Sentinel1 is a parsed Sentinel-1 SLC/GRD product name.
type Sentinel1 struct {
	Name          string
	Mission       string
	Mode          string
	ProductType   string
	Polarizations string // e.g. "VV+VH"
	Start         time.Time
	Stop          time.Time
	AbsoluteOrbit int
}

// RelativeOrbit returns the track number derived from the absolute orbit.
func (s Sentinel1) RelativeOrbit() int {
	offset := 73
	switch s.Mission {
	case "B":
		offset = 27
	case "C":
		offset = 172
	}
	return ((s.AbsoluteOrbit-offset)%175+175)%175 + 1
}

// PrimaryPolarization returns the co-polarized channel, VV or HH.
func (s Sentinel1) PrimaryPolarization() string {
	return s.Polarizations[:2]
}

// ParseSentinel1 parses an SLC or GRD product name.
func ParseSentinel1(name string) (Sentinel1, bool) {
	m := reSentinel1.FindStringSubmatch(name)
	if m == nil {
		return Sentinel1{}, false
	}
	start, err := time.Parse(timeLayout, m[7])
	if err != nil {
		return Sentinel1{}, false
	}
	stop, err := time.Parse(timeLayout, m[8])
	if err != nil {
		return Sentinel1{}, false
	}
	orbit, err := strconv.Atoi(m[9])
	if err != nil {
		return Sentinel1{}, false
	}

	pols := m[6] + m[6]
	if m[5] == "D" {
		cross := "H"
		if m[6] == "H" {
			cross = "V"
		}
		pols += "+" + m[6] + cross
	}

	return Sentinel1{
		Name:          name,
		Mission:       m[1],
		Mode:          m[2],
		ProductType:   strings.TrimRight(m[3], "_"),
		Polarizations: pols,
		Start:         start,
		Stop:          stop,
		AbsoluteOrbit: orbit,
	}, true
}

// Burst is a parsed Sentinel-1 single-burst product name.
type Burst struct {
	Name         string
	BurstNumber  int
	Swath        string
	Start        time.Time
	Polarization string
}

// ID returns the burst identifier shared by every acquisition of the same ground footprint.
func (b Burst) ID() string {
	return strconv.Itoa(b.BurstNumber) + "_" + b.Swath
}

// ParseBurst parses a burst product name.
func ParseBurst(name string) (Burst, bool) {
	m := reBurst.FindStringSubmatch(name)
	if m == nil {
		return Burst{}, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return Burst{}, false
	}
	start, err := time.Parse(timeLayout, m[3])
	if err != nil {
		return Burst{}, false
	}
	return Burst{Name: name, BurstNumber: n, Swath: m[2], Start: start, Polarization: m[4]}, true
}

// Polarization returns the co-polarized channel of a Sentinel-1 SLC/GRD or burst name.
func Polarization(name string) (string, bool) {
	if b, ok := ParseBurst(name); ok {
		return b.Polarization, true
	}
	if s, ok := ParseSentinel1(name); ok {
		return s.PrimaryPolarization(), true
	}
	return "", false
}

// AcquisitionTime returns the start time encoded in a Sentinel-1 or burst name.
func AcquisitionTime(name string) (time.Time, bool) {
	if b, ok := ParseBurst(name); ok {
		return b.Start, true
	}
	if s, ok := ParseSentinel1(name); ok {
		return s.Start, true
	}
	return time.Time{}, false
}
