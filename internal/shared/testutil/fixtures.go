package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// RegistryCSV classifies the fixture countries.
const RegistryCSV = `iso_code,name_short,continent,un_region,income_level
KEN,Kenya,Africa,Eastern Africa,Lower middle income
UGA,Uganda,Africa,Eastern Africa,Low income
ETH,Ethiopia,Africa,Eastern Africa,Low income
SSD,South Sudan,Africa,Eastern Africa,Low income
NGA,Nigeria,Africa,Western Africa,Lower middle income
MLI,Mali,Africa,Western Africa,Low income
HTI,Haiti,America,Caribbean,Lower middle income
AFG,Afghanistan,Asia,Southern Asia,Low income
YEM,Yemen,Asia,Western Asia,Low income
LBN,Lebanon,Asia,Western Asia,Lower middle income
`

// HungerCSV is a dated indicator with one superseded row per country for
// KEN and an unrecognised code.
const HungerCSV = `iso_code,date,value,source
KEN,2021-01-01,28.0,wfp
KEN,2022-01-01,31.5,wfp
UGA,2022-01-01,42.0,wfp
ETH,2022-01-01,22.1,wfp
SSD,2022-01-01,61.0,wfp
NGA,2022-01-01,19.4,wfp
HTI,2022-01-01,46.0,wfp
AFG,2022-01-01,70.2,wfp
YEM,2022-01-01,,wfp
xx,2022-01-01,10.0,wfp
`

// InflationCSV is an undated indicator.
const InflationCSV = `iso_code,value
KEN,7.9
UGA,6.8
ETH,33.9
SSD,17.6
NGA,18.8
MLI,9.7
HTI,27.6
AFG,10.6
YEM,29.5
LBN,171.2
`

// ReservesCSV is an indicator where more is better.
const ReservesCSV = `iso_code,value
KEN,4.1
UGA,4.3
ETH,1.2
NGA,5.6
MLI,5.0
HTI,3.2
LBN,9.8
`

// WriteFile writes content under a fresh temporary directory and returns its path.
func WriteFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture %s: %v", name, err)
	}
	return path
}
