package address

import "strings"

// stateNames maps USPS state abbreviations to full names.
var stateNames = map[string]string{
	"AL": "ALABAMA", "AK": "ALASKA", "AZ": "ARIZONA", "AR": "ARKANSAS",
	"CA": "CALIFORNIA", "CO": "COLORADO", "CT": "CONNECTICUT", "DE": "DELAWARE",
	"FL": "FLORIDA", "GA": "GEORGIA", "HI": "HAWAII", "ID": "IDAHO",
	"IL": "ILLINOIS", "IN": "INDIANA", "IA": "IOWA", "KS": "KANSAS",
	"KY": "KENTUCKY", "LA": "LOUISIANA", "ME": "MAINE", "MD": "MARYLAND",
	"MA": "MASSACHUSETTS", "MI": "MICHIGAN", "MN": "MINNESOTA", "MS": "MISSISSIPPI",
	"MO": "MISSOURI", "MT": "MONTANA", "NE": "NEBRASKA", "NV": "NEVADA",
	"NH": "NEW HAMPSHIRE", "NJ": "NEW JERSEY", "NM": "NEW MEXICO", "NY": "NEW YORK",
	"NC": "NORTH CAROLINA", "ND": "NORTH DAKOTA", "OH": "OHIO", "OK": "OKLAHOMA",
	"OR": "OREGON", "PA": "PENNSYLVANIA", "RI": "RHODE ISLAND", "SC": "SOUTH CAROLINA",
	"SD": "SOUTH DAKOTA", "TN": "TENNESSEE", "TX": "TEXAS", "UT": "UTAH",
	"VT": "VERMONT", "VA": "VIRGINIA", "WA": "WASHINGTON", "WV": "WEST VIRGINIA",
	"WI": "WISCONSIN", "WY": "WYOMING", "DC": "DISTRICT OF COLUMBIA", "PR": "PUERTO RICO",
	"GU": "GUAM", "VI": "VIRGIN ISLANDS",
}

var stateAbbrs = func() map[string]string {
	m := make(map[string]string, len(stateNames))
	for abbr, full := range stateNames {
		m[full] = abbr
	}
	return m
}()

// StateCode returns the USPS abbreviation for an abbreviation or full state
// name, or "" if the input is not a state.
func StateCode(s string) string {
	u := strings.ToUpper(strings.TrimSpace(s))
	if _, ok := stateNames[u]; ok {
		return u
	}
	return stateAbbrs[u]
}

// streetTypes maps every accepted spelling of a street suffix to its USPS
// standard abbreviation.
var streetTypes = map[string]string{
	"ALLEY": "ALY", "ALY": "ALY",
	"AVENUE": "AVE", "AVE": "AVE", "AV": "AVE", "AVEN": "AVE",
	"BOULEVARD": "BLVD", "BLVD": "BLVD", "BOUL": "BLVD",
	"CIRCLE": "CIR", "CIR": "CIR",
	"COURT": "CT", "CT": "CT",
	"COVE": "CV", "CV": "CV",
	"CROSSING": "XING", "XING": "XING",
	"DRIVE": "DR", "DR": "DR", "DRV": "DR",
	"EXPRESSWAY": "EXPY", "EXPY": "EXPY",
	"FREEWAY": "FWY", "FWY": "FWY",
	"HIGHWAY": "HWY", "HWY": "HWY",
	"LANE": "LN", "LN": "LN",
	"LOOP":    "LOOP",
	"PARKWAY": "PKWY", "PKWY": "PKWY", "PKY": "PKWY",
	"PIKE":  "PIKE",
	"PLACE": "PL", "PL": "PL",
	"PLAZA": "PLZ", "PLZ": "PLZ",
	"POINT": "PT", "PT": "PT",
	"ROAD": "RD", "RD": "RD",
	"ROUTE": "RTE", "RTE": "RTE",
	"SQUARE": "SQ", "SQ": "SQ",
	"STREET": "ST", "ST": "ST", "STR": "ST",
	"TERRACE": "TER", "TER": "TER",
	"TRAIL": "TRL", "TRL": "TRL",
	"TURNPIKE": "TPKE", "TPKE": "TPKE",
	"WAY": "WAY",
}

var directionals = map[string]string{
	"NORTH": "N", "N": "N", "SOUTH": "S", "S": "S", "EAST": "E", "E": "E", "WEST": "W", "W": "W",
	"NORTHEAST": "NE", "NE": "NE", "NORTHWEST": "NW", "NW": "NW",
	"SOUTHEAST": "SE", "SE": "SE", "SOUTHWEST": "SW", "SW": "SW",
}

// unitDesignators start the secondary unit part of a street line.
var unitDesignators = map[string]bool{
	"SUITE": true, "STE": true, "APT": true, "APARTMENT": true, "UNIT": true, "#": true,
	"FL": true, "FLOOR": true, "RM": true, "ROOM": true, "BLDG": true, "BUILDING": true,
	"DEPT": true,
}
